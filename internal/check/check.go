package check

import (
	"context"
	"fmt"
	"io"

	"pgbackup/internal/config"
	"pgbackup/internal/dump"
	"pgbackup/internal/pgcheck"
	"pgbackup/internal/remote"
	"pgbackup/internal/secrets"
)

type Deps struct {
	Store   remote.Backend
	Prober  pgcheck.Prober
	Secrets secrets.Resolver
}

// Run verifies everything a backup needs before one is scheduled: pg_dump,
// database reachability and bucket access. Progress is printed to out.
func Run(ctx context.Context, cfg *config.Config, deps Deps, out io.Writer) error {
	fmt.Fprintln(out, "config: OK")

	path, err := dump.Lookup(cfg.Dump.Binary)
	if err != nil {
		return fmt.Errorf("pg_dump: %w", err)
	}
	version, err := dump.Version(ctx, path)
	if err != nil {
		return fmt.Errorf("pg_dump: %w", err)
	}
	fmt.Fprintf(out, "pg_dump %s (%s): OK\n", path, version)

	target := pgcheck.Target{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Name,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
	}
	if cfg.Database.SecretARN != "" {
		if deps.Secrets == nil {
			return fmt.Errorf("secret resolver is required when database.secret_arn is set")
		}
		creds, err := deps.Secrets.Resolve(ctx, cfg.Database.SecretARN)
		if err != nil {
			return fmt.Errorf("database credentials: %w", err)
		}
		target.User, target.Password = creds.Username, creds.Password
		fmt.Fprintf(out, "secret %s: OK\n", cfg.Database.SecretARN)
	}

	if deps.Prober != nil {
		serverVersion, err := deps.Prober.ServerVersion(ctx, target)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		fmt.Fprintf(out, "database %s on %s:%d (PostgreSQL %s): OK\n", cfg.Database.Name, cfg.Database.Host, cfg.Database.Port, serverVersion)
	}

	if err := remote.ValidateStorageClass(string(cfg.S3.StorageClass)); err != nil {
		fmt.Fprintf(out, "warning: %v\n", err)
	}
	if err := deps.Store.VerifyCredentials(ctx); err != nil {
		return fmt.Errorf("S3 credentials: %w", err)
	}
	fmt.Fprintf(out, "S3 bucket %s: OK\n", cfg.S3.Bucket)

	fmt.Fprintln(out, "all checks passed")
	return nil
}
