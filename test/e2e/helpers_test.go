//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pgbackup/internal/remote"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"
)

// Defaults match the docker compose services used in CI: postgres:16 and
// minio with the admin/password root credentials.
const (
	defaultPGHost   = "127.0.0.1"
	defaultPGPort   = "5432"
	defaultPGUser   = "postgres"
	defaultPGPass   = "postgres"
	defaultPGDB     = "pgbackup_e2e"
	defaultEndpoint = "http://127.0.0.1:9000"
	minioAccessKey  = "admin"
	minioSecretKey  = "password"
	minioBucket     = "pgbackup-test"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type env struct {
	host, port, user, password, database string
	endpoint                             string
}

func loadEnv() env {
	return env{
		host:     getenv("E2E_PGHOST", defaultPGHost),
		port:     getenv("E2E_PGPORT", defaultPGPort),
		user:     getenv("E2E_PGUSER", defaultPGUser),
		password: getenv("E2E_PGPASSWORD", defaultPGPass),
		database: getenv("E2E_PGDATABASE", defaultPGDB),
		endpoint: getenv("E2E_S3_ENDPOINT", defaultEndpoint),
	}
}

// vars returns the environment a pgbackup process runs with.
func (e env) vars(extra ...string) []string {
	vars := append(os.Environ(),
		"PGHOST="+e.host,
		"PGPORT="+e.port,
		"PGUSER="+e.user,
		"PGPASSWORD="+e.password,
		"PGDATABASE="+e.database,
		"PGSSLMODE=disable",
		"S3_BUCKET="+minioBucket,
		"S3_REGION=us-east-1",
		"S3_ENDPOINT="+e.endpoint,
		"S3_SSE=none",
		"S3_PREFIX=e2e",
		"AWS_ACCESS_KEY_ID="+minioAccessKey,
		"AWS_SECRET_ACCESS_KEY="+minioSecretKey,
		"LOG_FORMAT=text",
	)
	return append(vars, extra...)
}

func buildBinary(t *testing.T) string {
	t.Helper()
	binary := filepath.Join(t.TempDir(), "pgbackup")

	cmd := exec.Command("go", "build", "-o", binary, "./../../cmd/pgbackup")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "build failed: %s", string(out))
	return binary
}

// run returns stdout; stderr carries the slog output and is appended to the
// error.
func run(t *testing.T, binary string, vars []string, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = vars
	cmd.Dir = t.TempDir()
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return strings.TrimSpace(stdout.String()), fmt.Errorf("%w\nstderr: %s", err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

func mustRun(t *testing.T, binary string, vars []string, args ...string) string {
	t.Helper()
	out, err := run(t, binary, vars, args...)
	require.NoError(t, err, "pgbackup %v failed\noutput: %s", args, out)
	return out
}

func createBucket(t *testing.T, e env) {
	t.Helper()
	t.Setenv("AWS_ACCESS_KEY_ID", minioAccessKey)
	t.Setenv("AWS_SECRET_ACCESS_KEY", minioSecretKey)

	ctx := context.Background()
	cfg, err := remote.LoadAWSConfig(ctx, "us-east-1", e.endpoint, 3)
	require.NoError(t, err)

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(e.endpoint)
		o.UsePathStyle = true
	})
	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(minioBucket)})
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		require.NoError(t, err)
	}
}
