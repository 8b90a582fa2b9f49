package main

import (
	"fmt"
	"log/slog"
	"os"

	"pgbackup/internal/config"
	"pgbackup/internal/util"
)

// setup loads the configuration and installs the default logger. The
// returned cleanup closes the optional log file.
func setup(configPath string) (*config.Config, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, logFile, err := util.SetupLogging(os.Stderr, cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	slog.SetDefault(logger)

	cleanup := func() {
		if logFile != nil {
			logFile.Close()
		}
	}
	return cfg, cleanup, nil
}
