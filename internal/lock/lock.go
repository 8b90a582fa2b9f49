package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

type Entry struct {
	Pid       int    `yaml:"pid"`
	Database  string `yaml:"database"`
	RunID     string `yaml:"run_id"`
	StartedAt string `yaml:"started_at"`
}

// read returns nil when no lock file exists.
func read(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := yaml.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func write(path string, entry *Entry) error {
	data, err := yaml.Marshal(entry)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// alive treats EPERM as alive: the pid exists but belongs to another user.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return !errors.Is(syscall.Kill(pid, 0), syscall.ESRCH)
}

// Acquire takes the per-database lock at lockPath. A lock left behind by a
// dead process is reclaimed. The returned release function is idempotent.
func Acquire(lockPath, database, runID string) (func() error, error) {
	existing, err := read(lockPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read lock: %w", err)
	}

	if existing != nil && existing.Pid > 0 && alive(existing.Pid) {
		return nil, fmt.Errorf("backup of %s already running (pid %d, run %s, started %s)",
			existing.Database, existing.Pid, existing.RunID, existing.StartedAt)
	}

	entry := &Entry{
		Pid:       os.Getpid(),
		Database:  database,
		RunID:     runID,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := write(lockPath, entry); err != nil {
		return nil, fmt.Errorf("failed to write lock: %w", err)
	}

	release := func() error {
		if err := os.Remove(lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}

	return release, nil
}
