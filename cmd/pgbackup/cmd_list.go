package main

import (
	"context"
	"fmt"
	"os"

	"pgbackup/internal/list"
	"pgbackup/internal/remote"
)

func listBackups(ctx context.Context, configPath string, limit int) error {
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

	return list.Run(ctx, store, cfg.S3.Bucket, cfg.KeyPrefix(), limit, os.Stdout)
}
