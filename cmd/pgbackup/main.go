package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

var version = "0.1.0"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Usage:   "path to configuration yaml file (environment variables override it)",
		Sources: cli.EnvVars("PGBACKUP_CONFIG"),
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "pgbackup",
		Usage:   "PostgreSQL backups to S3",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Dump the database and upload it",
				Flags: []cli.Flag{configFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runBackup(ctx, cmd.String("config"))
				},
			},
			{
				Name:  "check",
				Usage: "Verify pg_dump, database connectivity and bucket access",
				Flags: []cli.Flag{configFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runCheck(ctx, cmd.String("config"))
				},
			},
			{
				Name:  "list",
				Usage: "List backups in the bucket, newest first",
				Flags: []cli.Flag{
					configFlag(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of backups to show (0 for all)",
						Value: 0,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return listBackups(ctx, cmd.String("config"), cmd.Int("limit"))
				},
			},
			{
				Name:      "inspect",
				Usage:     "Count tables and sequences in a dump file or uploaded object",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "key",
						Usage: "Object key to download and inspect instead of a local file",
					},
					&cli.StringFlag{
						Name:  "identity",
						Usage: "Path to age private key file for encrypted dumps",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return inspectDump(ctx, cmd.String("config"), cmd.Args().First(), cmd.String("key"), cmd.String("identity"))
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		if ctx.Err() == context.Canceled {
			fmt.Fprintln(os.Stderr, "\nBackup interrupted")
			os.Exit(130)
		}
		slog.Error("CLI error", "error", err)
		os.Exit(1)
	}
}
