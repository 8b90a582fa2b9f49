package main

import (
	"context"
	"errors"
	"testing"

	"pgbackup/internal/backup"
	"pgbackup/internal/config"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	result backup.Result
}

func (s stubRunner) Run(context.Context) backup.Result { return s.result }

func validConfig() (*config.Config, error) {
	cfg := &config.Config{
		Database: config.Database{Host: "db", Name: "orders", User: "u", Password: "p"},
		S3:       config.S3Config{Bucket: "backups"},
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func TestHandleSuccess(t *testing.T) {
	h := &handler{
		loadConfig: validConfig,
		newRunner: func(context.Context, *config.Config) (runner, error) {
			return stubRunner{result: backup.Result{StatusCode: 200, Body: `{"message":"ok"}`}}, nil
		},
	}

	res, err := h.Handle(context.Background(), events.CloudWatchEvent{ID: "evt-1", Source: "aws.events"})
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)
}

func TestHandleConfigError(t *testing.T) {
	h := &handler{
		loadConfig: func() (*config.Config, error) {
			return nil, errors.New("config validation failed: s3.bucket is required")
		},
	}

	res, err := h.Handle(context.Background(), events.CloudWatchEvent{})
	require.NoError(t, err)
	assert.Equal(t, 500, res.StatusCode)
	assert.JSONEq(t, `{"error":"Backup failed: config validation failed: s3.bucket is required"}`, res.Body)
}

func TestHandleInitError(t *testing.T) {
	h := &handler{
		loadConfig: validConfig,
		newRunner: func(context.Context, *config.Config) (runner, error) {
			return nil, errors.New("failed to load AWS config: no region")
		},
	}

	res, err := h.Handle(context.Background(), events.CloudWatchEvent{})
	require.NoError(t, err)
	assert.Equal(t, 500, res.StatusCode)
	assert.Contains(t, res.Body, "no region")
}
