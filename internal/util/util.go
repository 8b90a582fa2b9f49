package util

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"pgbackup/internal/logging"
)

const ManifestSuffix = ".manifest.yaml"

// FileName returns "{db}_backup_{ts}{ext}" with ts formatted by layout.
func FileName(database string, timestamp time.Time, layout, ext string) string {
	return fmt.Sprintf("%s_backup_%s%s", database, timestamp.Format(layout), ext)
}

func ObjectKey(prefix, fileName string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return fileName
	}
	return path.Join(prefix, fileName)
}

func ManifestKey(key string) string {
	return key + ManifestSuffix
}

func S3URI(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}

func LockPath(scratchDir, database string) string {
	return filepath.Join(scratchDir, fmt.Sprintf("pgbackup-%s.lock", database))
}

func SetupDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// SetupLogging builds the process logger. logPath is optional; when set the
// returned file must be closed by the caller.
func SetupLogging(out io.Writer, level, format, logPath string) (*slog.Logger, *os.File, error) {
	if logPath == "" {
		logger, err := logging.NewLogger(out, level, format)
		return logger, nil, err
	}

	if err := SetupDirectories(filepath.Dir(logPath)); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return logging.NewFileLogger(out, level, format, logPath)
}
