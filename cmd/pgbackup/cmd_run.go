package main

import (
	"context"
	"fmt"

	"pgbackup/internal/backup"
)

func runBackup(ctx context.Context, configPath string) error {
	cfg, cleanup, err := setup(configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	runner, err := backup.NewFromAWS(ctx, cfg)
	if err != nil {
		return err
	}

	res := runner.Run(ctx)
	fmt.Println(res.Body)
	if res.StatusCode != 200 {
		return fmt.Errorf("backup failed with status %d", res.StatusCode)
	}
	return nil
}
