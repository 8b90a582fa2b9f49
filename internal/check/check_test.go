package check

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"pgbackup/internal/config"
	"pgbackup/internal/pgcheck"
	"pgbackup/internal/remote"
	"pgbackup/internal/secrets"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	remote.Backend
	err error
}

func (f fakeStore) VerifyCredentials(context.Context) error { return f.err }

type fakeProber struct {
	got pgcheck.Target
	err error
}

func (f *fakeProber) ServerVersion(_ context.Context, t pgcheck.Target) (string, error) {
	f.got = t
	return "16.2", f.err
}

type fakeResolver struct{}

func (fakeResolver) Resolve(context.Context, string) (secrets.Credentials, error) {
	return secrets.Credentials{Username: "rds", Password: "pw"}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	bin := filepath.Join(t.TempDir(), "pg_dump")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho 'pg_dump (PostgreSQL) 16.2'\n"), 0o755))

	cfg := &config.Config{
		Database: config.Database{Host: "db", Name: "orders", User: "u", Password: "p"},
		Dump:     config.Dump{Binary: bin},
		S3:       config.S3Config{Bucket: "backups"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestRunAllPass(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer

	err := Run(context.Background(), cfg, Deps{Store: fakeStore{}, Prober: &fakeProber{}}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "pg_dump (PostgreSQL) 16.2")
	assert.Contains(t, out.String(), "database orders on db:5432 (PostgreSQL 16.2): OK")
	assert.Contains(t, out.String(), "S3 bucket backups: OK")
	assert.Contains(t, out.String(), "all checks passed")
}

func TestRunUsesSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.SecretARN = "arn:secret"
	prober := &fakeProber{}

	require.NoError(t, Run(context.Background(), cfg, Deps{Store: fakeStore{}, Prober: prober, Secrets: fakeResolver{}}, &bytes.Buffer{}))
	assert.Equal(t, "rds", prober.got.User)
	assert.Equal(t, "pw", prober.got.Password)
}

func TestRunFailures(t *testing.T) {
	t.Run("missing pg_dump", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Dump.Binary = filepath.Join(t.TempDir(), "nope")
		err := Run(context.Background(), cfg, Deps{Store: fakeStore{}}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "pg_dump")
	})

	t.Run("database unreachable", func(t *testing.T) {
		cfg := testConfig(t)
		err := Run(context.Background(), cfg, Deps{Store: fakeStore{}, Prober: &fakeProber{err: errors.New("refused")}}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "database: refused")
	})

	t.Run("bucket inaccessible", func(t *testing.T) {
		cfg := testConfig(t)
		err := Run(context.Background(), cfg, Deps{Store: fakeStore{err: errors.New("403")}}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "S3 credentials: 403")
	})
}

func TestRunWarnsOnArchiveStorageClass(t *testing.T) {
	cfg := testConfig(t)
	cfg.S3.StorageClass = types.StorageClassDeepArchive
	var out bytes.Buffer

	require.NoError(t, Run(context.Background(), cfg, Deps{Store: fakeStore{}}, &out))
	assert.Contains(t, out.String(), "warning: storage class DEEP_ARCHIVE is not immediately accessible")
}
