package manifest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	m := &Backup{
		RunID:      "8d3c7a36-4f0e-4a57-9d55-6a3c3f0c2b11",
		Datetime:   1_700_000_000,
		Timestamp:  "2023-11-14_22.13",
		BackupType: "weekly",
		System:     SystemInfo{Hostname: "lambda", OS: "Amazon Linux 2023", PgDumpVersion: "pg_dump (PostgreSQL) 16.2"},
		Database:   Database{Name: "orders", Host: "db.internal", Port: 5432},
		Artifact: Artifact{
			Bucket:        "backups",
			Key:           "weekly/orders_backup_2023-11-14_22.13.sql",
			Compression:   "none",
			Blake3Hash:    "af1349b9",
			StoredBytes:   2048,
			OriginalBytes: 2048,
			Tables:        4,
			Complete:      true,
		},
	}

	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, Write(path, m))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "blake3_hash: af1349b9")
	assert.NotContains(t, string(data), "server_version", "empty server version is omitted")
}

func TestReadMissing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGetSystemInfo(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	bin := filepath.Join(t.TempDir(), "pg_dump")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho 'pg_dump (PostgreSQL) 15.6'\n"), 0o755))

	info := GetSystemInfo(context.Background(), bin)
	assert.NotEmpty(t, info.Hostname)
	assert.NotEmpty(t, info.OS)
	assert.Equal(t, "pg_dump (PostgreSQL) 15.6", info.PgDumpVersion)

	info = GetSystemInfo(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, "unknown", info.PgDumpVersion)
}
