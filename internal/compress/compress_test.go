package compress

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripReducesSize(t *testing.T) {
	input := []byte(strings.Repeat("INSERT INTO public.users VALUES (1, 'alice');\n", 500))

	for _, codec := range []string{Gzip, Zstd} {
		t.Run(codec, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(codec, &buf, 0)
			require.NoError(t, err)
			_, err = w.Write(input)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			assert.Less(t, buf.Len(), len(input))

			r, err := NewReader(codec, &buf)
			require.NoError(t, err)
			defer r.Close()
			out, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, input, out)
		})
	}
}

func TestNoneIsPassthrough(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(None, &buf, 0)
	require.NoError(t, err)
	_, err = w.Write([]byte("SELECT 1;"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, "SELECT 1;", buf.String())
}

func TestUnsupportedCodec(t *testing.T) {
	_, err := NewWriter("bzip2", io.Discard, 0)
	assert.ErrorContains(t, err, "unsupported compression: bzip2")

	_, err = NewReader("lz4", strings.NewReader(""))
	assert.ErrorContains(t, err, "unsupported compression: lz4")
}

func TestRatio(t *testing.T) {
	tests := []struct {
		name      string
		original  int64
		stored    int64
		wantRatio float64
		wantSaved float64
	}{
		{name: "four to one", original: 4000, stored: 1000, wantRatio: 4, wantSaved: 75},
		{name: "no change", original: 1000, stored: 1000, wantRatio: 1, wantSaved: 0},
		{name: "grew", original: 100, stored: 125, wantRatio: 0.8, wantSaved: -25},
		{name: "empty stored", original: 1000, stored: 0, wantRatio: 0, wantSaved: 100},
		{name: "empty original", original: 0, stored: 0, wantRatio: 0, wantSaved: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.wantRatio, Ratio(tt.original, tt.stored), 1e-9)
			assert.InDelta(t, tt.wantSaved, SavedPercent(tt.original, tt.stored), 1e-9)
		})
	}
}

func TestDetectAndExtension(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"appdb_backup_2026-10-16_03.00.sql", None},
		{"appdb_backup_2026-10-16_03.00.sql.gz", Gzip},
		{"appdb_backup_2026-10-16_03.00.sql.zst", Zstd},
		{"appdb_backup_2026-10-16_03.00.sql.gz.age", Gzip},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got := Detect(tt.filename)
			assert.Equal(t, tt.want, got)
			assert.True(t, strings.HasSuffix(strings.TrimSuffix(tt.filename, ".age"), ".sql"+Extension(got)))
		})
	}
}
