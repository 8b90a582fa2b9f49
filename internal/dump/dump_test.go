package dump

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakePgDump(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "pg_dump")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func baseOptions(binary string) Options {
	return Options{
		Binary:   binary,
		Host:     "db.internal",
		Port:     5432,
		User:     "backup",
		Password: "s3cr3t",
		Database: "orders",
		Timeout:  10 * time.Second,
	}
}

func TestArgs(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "stream mode",
			opts: baseOptions("pg_dump"),
			want: []string{"-h", "db.internal", "-p", "5432", "-U", "backup", "-d", "orders", "--no-password"},
		},
		{
			name: "file mode verbose",
			opts: func() Options {
				o := baseOptions("pg_dump")
				o.Verbose = true
				o.OutputFile = "/tmp/orders.sql"
				return o
			}(),
			want: []string{"-h", "db.internal", "-p", "5432", "-U", "backup", "-d", "orders", "--no-password", "-v", "-f", "/tmp/orders.sql"},
		},
		{
			name: "extra args",
			opts: func() Options {
				o := baseOptions("pg_dump")
				o.Port = 6543
				o.ExtraArgs = []string{"--no-synchronized-snapshots", "--no-tablespaces"}
				return o
			}(),
			want: []string{"-h", "db.internal", "-p", "6543", "-U", "backup", "-d", "orders", "--no-password", "--no-synchronized-snapshots", "--no-tablespaces"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Args(tt.opts)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, strings.Join(got, " "), tt.opts.Password)
		})
	}
}

func TestEnv(t *testing.T) {
	opts := baseOptions("pg_dump")
	env := Env(opts)
	assert.Contains(t, env, "PGPASSWORD=s3cr3t")
	assert.NotContains(t, env, "PGSSLMODE=")

	opts.SSLMode = "require"
	assert.Contains(t, Env(opts), "PGSSLMODE=require")
}

func TestRunStream(t *testing.T) {
	bin := fakePgDump(t, `echo "pg_dump: dumping contents of table public.users" >&2
printf 'CREATE TABLE public.users (id int);\n'
printf 'pw=%s ssl=%s\n' "$PGPASSWORD" "$PGSSLMODE"`)

	opts := baseOptions(bin)
	opts.SSLMode = "require"

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), opts, &out))
	assert.Equal(t, "CREATE TABLE public.users (id int);\npw=s3cr3t ssl=require\n", out.String())
}

func TestRunFileMode(t *testing.T) {
	bin := fakePgDump(t, `for last; do :; done
printf 'CREATE TABLE public.t (id int);\n' > "$last"`)

	opts := baseOptions(bin)
	opts.OutputFile = filepath.Join(t.TempDir(), "orders.sql")

	require.NoError(t, Run(context.Background(), opts, nil))
	data, err := os.ReadFile(opts.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE public.t (id int);\n", string(data))
}

func TestRunExitError(t *testing.T) {
	bin := fakePgDump(t, `echo 'pg_dump: error: connection to server failed' >&2
exit 1`)

	err := Run(context.Background(), baseOptions(bin), &bytes.Buffer{})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Code)
	assert.Equal(t, "pg_dump failed with return code 1: pg_dump: error: connection to server failed", err.Error())
}

func TestRunTimeout(t *testing.T) {
	bin := fakePgDump(t, `exec sleep 10`)

	opts := baseOptions(bin)
	opts.Timeout = 200 * time.Millisecond

	start := time.Now()
	err := Run(context.Background(), opts, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "after 200ms")
	assert.Less(t, time.Since(start), 8*time.Second)
}

func TestRunCanceled(t *testing.T) {
	bin := fakePgDump(t, `exec sleep 10`)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	err := Run(ctx, baseOptions(bin), &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRunSinkError(t *testing.T) {
	bin := fakePgDump(t, `yes 'INSERT INTO t VALUES (1);' | head -n 100000`)

	err := Run(context.Background(), baseOptions(bin), failingWriter{})
	assert.ErrorContains(t, err, "disk full")
}

func TestRunMissingBinary(t *testing.T) {
	opts := baseOptions(filepath.Join(t.TempDir(), "does-not-exist"))
	err := Run(context.Background(), opts, &bytes.Buffer{})
	assert.ErrorContains(t, err, "failed to start pg_dump")
}

func TestRunRequiresOutput(t *testing.T) {
	err := Run(context.Background(), baseOptions("pg_dump"), nil)
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	bin := fakePgDump(t, `echo 'pg_dump (PostgreSQL) 16.2'`)

	v, err := Version(context.Background(), bin)
	require.NoError(t, err)
	assert.Equal(t, "pg_dump (PostgreSQL) 16.2", v)
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{limit: 8}
	_, _ = tb.Write([]byte("0123456789"))
	_, _ = tb.Write([]byte("ab"))
	assert.Equal(t, "456789ab", tb.String())
	assert.Equal(t, 8, tb.Len())
}
