package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"pgbackup/internal/crypto"
	"pgbackup/internal/inspect"
	"pgbackup/internal/remote"

	"filippo.io/age"
	"github.com/goccy/go-json"
)

type inspectOutput struct {
	File   string        `json:"file"`
	Blake3 string        `json:"blake3"`
	Stats  inspect.Stats `json:"stats"`
}

func inspectDump(ctx context.Context, configPath, file, key, identityPath string) error {
	if file == "" && key == "" {
		return fmt.Errorf("a FILE argument or --key is required")
	}

	var identity age.Identity
	if identityPath != "" {
		id, err := crypto.ParseIdentityFile(identityPath)
		if err != nil {
			return err
		}
		identity = id
	}

	if key != "" {
		cfg, cleanup, err := setup(configPath)
		if err != nil {
			return err
		}
		defer cleanup()

		awsCfg, err := remote.LoadAWSConfig(ctx, cfg.S3.Region, cfg.S3.Endpoint, cfg.S3RetryAttempts())
		if err != nil {
			return err
		}
		store, err := remote.NewS3(awsCfg, cfg.S3.Bucket, cfg.S3.Endpoint, cfg.S3.StorageClass)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 backend: %w", err)
		}

		dir, err := os.MkdirTemp(cfg.Dump.ScratchDir, "pgbackup-inspect-")
		if err != nil {
			return fmt.Errorf("failed to create temp dir: %w", err)
		}
		defer os.RemoveAll(dir)

		// Keep the object's base name so compression and encryption are detected.
		file = filepath.Join(dir, path.Base(key))
		if err := store.Download(ctx, key, file); err != nil {
			return err
		}
	}

	stats, err := inspect.File(file, identity)
	if err != nil {
		return err
	}
	hash, err := crypto.BLAKE3File(file)
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", file, err)
	}
	slog.Debug("Inspected dump", "file", file, "tables", stats.Tables)

	name := file
	if key != "" {
		name = key
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(inspectOutput{File: name, Blake3: hash, Stats: stats})
}
