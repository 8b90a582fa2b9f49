package backup

import (
	"context"
	"fmt"
	"log/slog"

	"pgbackup/internal/config"
	"pgbackup/internal/metrics"
	"pgbackup/internal/notify"
	"pgbackup/internal/pgcheck"
	"pgbackup/internal/remote"
	"pgbackup/internal/secrets"
)

// NewFromAWS wires a Runner to S3, Secrets Manager and SNS using the
// default AWS credential chain.
func NewFromAWS(ctx context.Context, cfg *config.Config) (*Runner, error) {
	awsCfg, err := remote.LoadAWSConfig(ctx, cfg.S3.Region, cfg.S3.Endpoint, cfg.S3RetryAttempts())
	if err != nil {
		return nil, err
	}

	store, err := remote.NewS3(awsCfg, cfg.S3.Bucket, cfg.S3.Endpoint, cfg.S3.StorageClass)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 backend: %w", err)
	}
	slog.Debug("S3 backend initialized", "bucket", cfg.S3.Bucket, "region", awsCfg.Region, "prefix", cfg.KeyPrefix())

	deps := Deps{
		Store:   store,
		Metrics: metrics.New(),
		Prober:  pgcheck.PGX{},
	}
	if cfg.Database.SecretARN != "" {
		deps.Secrets = secrets.NewFromConfig(awsCfg)
	}
	if cfg.Notify.TopicARN != "" {
		deps.Notifier = notify.NewFromConfig(awsCfg, cfg.Notify.TopicARN)
	}

	return New(cfg, deps)
}
