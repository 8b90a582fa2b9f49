package main

import (
	"context"
	"log/slog"
	"os"

	"pgbackup/internal/backup"
	"pgbackup/internal/config"
	"pgbackup/internal/logging"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
)

type runner interface {
	Run(ctx context.Context) backup.Result
}

type handler struct {
	loadConfig func() (*config.Config, error)
	newRunner  func(ctx context.Context, cfg *config.Config) (runner, error)
}

// Handle runs one backup per scheduled event. Failures are reported in the
// Result, never as an invocation error, so the scheduler does not retry.
func (h *handler) Handle(ctx context.Context, event events.CloudWatchEvent) (backup.Result, error) {
	cfg, err := h.loadConfig()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		return backup.Failure(err, config.DefaultDumpTimeout), nil
	}

	if logger, err := logging.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format); err == nil {
		slog.SetDefault(logger)
	}
	slog.Info("Scheduled event received", "id", event.ID, "source", event.Source, "time", event.Time)

	r, err := h.newRunner(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize backup", "error", err)
		return backup.Failure(err, cfg.Dump.Timeout), nil
	}

	return r.Run(ctx), nil
}

func main() {
	h := &handler{
		loadConfig: config.LoadEnv,
		newRunner: func(ctx context.Context, cfg *config.Config) (runner, error) {
			r, err := backup.NewFromAWS(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
	}
	lambda.Start(h.Handle)
}
