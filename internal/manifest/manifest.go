package manifest

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"strings"

	"pgbackup/internal/dump"

	"gopkg.in/yaml.v3"
)

func osRelease() string {
	f, err := os.Open("/etc/os-release")
	if err != nil {
		return "unknown"
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if v, ok := strings.CutPrefix(scanner.Text(), "PRETTY_NAME="); ok {
			return strings.Trim(v, `"`)
		}
	}
	return "unknown"
}

// GetSystemInfo describes the host running the dump. A missing pg_dump
// version is logged, not fatal.
func GetSystemInfo(ctx context.Context, pgDumpBinary string) SystemInfo {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	info := SystemInfo{
		Hostname: hostname,
		OS:       osRelease(),
	}

	version, err := dump.Version(ctx, pgDumpBinary)
	if err != nil {
		slog.Warn("Failed to get pg_dump version", "error", err)
		version = "unknown"
	}
	info.PgDumpVersion = version

	return info
}

func Marshal(m *Backup) ([]byte, error) {
	return yaml.Marshal(m)
}

func Write(filename string, m *Backup) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}

func Read(filename string) (*Backup, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var m Backup
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
