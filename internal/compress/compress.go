package compress

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const (
	None = "none"
	Gzip = "gzip"
	Zstd = "zstd"
)

func Supported(name string) bool {
	switch name {
	case None, Gzip, Zstd:
		return true
	}
	return false
}

// Extension returns the file suffix appended after ".sql".
func Extension(name string) string {
	switch name {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	}
	return ""
}

func ContentType(name string) string {
	switch name {
	case Gzip:
		return "application/gzip"
	case Zstd:
		return "application/zstd"
	}
	return "application/sql"
}

// Detect guesses the codec of a local file from its name, ignoring a trailing ".age".
func Detect(filename string) string {
	name := strings.TrimSuffix(filename, ".age")
	switch {
	case strings.HasSuffix(name, ".gz"):
		return Gzip
	case strings.HasSuffix(name, ".zst"):
		return Zstd
	}
	return None
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w with the named codec. A level of 0 selects the codec default.
func NewWriter(name string, w io.Writer, level int) (io.WriteCloser, error) {
	switch name {
	case None, "":
		return nopWriteCloser{w}, nil
	case Gzip:
		if level == 0 {
			level = gzip.DefaultCompression
		}
		gw, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		return gw, nil
	case Zstd:
		var opts []zstd.EOption
		if level > 0 {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		zw, err := zstd.NewWriter(w, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return zw, nil
	}
	return nil, fmt.Errorf("unsupported compression: %s", name)
}

func NewReader(name string, r io.Reader) (io.ReadCloser, error) {
	switch name {
	case None, "":
		return io.NopCloser(r), nil
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gr, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	}
	return nil, fmt.Errorf("unsupported compression: %s", name)
}

// Ratio is original/stored, e.g. 4.0 when the stored file is a quarter of the dump.
func Ratio(original, stored int64) float64 {
	if stored <= 0 {
		return 0
	}
	return float64(original) / float64(stored)
}

func SavedPercent(original, stored int64) float64 {
	if original <= 0 {
		return 0
	}
	return 100 * (1 - float64(stored)/float64(original))
}
