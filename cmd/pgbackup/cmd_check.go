package main

import (
	"context"
	"fmt"
	"os"

	"pgbackup/internal/check"
	"pgbackup/internal/pgcheck"
	"pgbackup/internal/remote"
	"pgbackup/internal/secrets"
)

func runCheck(ctx context.Context, configPath string) error {
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
		return fmt.Errorf("S3 init: %w", err)
	}

	deps := check.Deps{Store: store, Prober: pgcheck.PGX{}}
	if cfg.Database.SecretARN != "" {
		deps.Secrets = secrets.NewFromConfig(awsCfg)
	}

	return check.Run(ctx, cfg, deps, os.Stdout)
}
