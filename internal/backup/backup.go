package backup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"pgbackup/internal/compress"
	"pgbackup/internal/config"
	"pgbackup/internal/crypto"
	"pgbackup/internal/dump"
	"pgbackup/internal/inspect"
	"pgbackup/internal/lock"
	"pgbackup/internal/manifest"
	"pgbackup/internal/metrics"
	"pgbackup/internal/notify"
	"pgbackup/internal/pgcheck"
	"pgbackup/internal/remote"
	"pgbackup/internal/secrets"
	"pgbackup/internal/util"

	"filippo.io/age"
	"github.com/google/uuid"
)

var (
	ErrMissingOutput = errors.New("backup file was not created")
	ErrTooSmall      = errors.New("backup file is too small")
	ErrTooFewTables  = errors.New("backup contains too few tables")
)

const (
	writeBufferSize = 1 << 20
	reportTimeout   = 30 * time.Second
)

// Artifact is the local dump file of one run, alive until cleanup.
type Artifact struct {
	Path         string
	Key          string
	FileName     string
	Timestamp    string
	OriginalSize int64
	StoredSize   int64
	Compression  string
	Ratio        float64
	Stats        inspect.Stats
	Blake3       string
	Encrypted    bool
}

// Deps are the collaborators of a Runner. Secrets, Notifier, Metrics and
// Prober are optional.
type Deps struct {
	Store    remote.Backend
	Secrets  secrets.Resolver
	Notifier notify.Publisher
	Metrics  *metrics.Recorder
	Prober   pgcheck.Prober
	Now      func() time.Time
	NewID    func() string
}

type Runner struct {
	cfg       *config.Config
	deps      Deps
	recipient age.Recipient
}

func New(cfg *config.Config, deps Deps) (*Runner, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if cfg.Database.SecretARN != "" && deps.Secrets == nil {
		return nil, fmt.Errorf("secret resolver is required when database.secret_arn is set")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	r := &Runner{cfg: cfg, deps: deps}
	if cfg.Encrypted() {
		recipient, err := crypto.ParseRecipient(cfg.Dump.AgePublicKey)
		if err != nil {
			return nil, err
		}
		r.recipient = recipient
	}
	return r, nil
}

// Run performs one backup and never returns an error: every failure is
// reported through the Result.
func (r *Runner) Run(ctx context.Context) Result {
	start := r.deps.Now()
	runID := r.deps.NewID()
	database := r.cfg.Database.Name

	slog.Info("Backup started",
		"runId", runID,
		"database", database,
		"host", r.cfg.Database.Host,
		"compression", r.cfg.Dump.Compression,
		"encrypted", r.cfg.Encrypted(),
	)

	artifact, err := r.backup(ctx, runID, start)
	duration := r.deps.Now().Sub(start)

	// Reporting must outlive an interrupted run.
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	var result Result
	if err != nil {
		slog.Error("Backup failed", "runId", runID, "database", database, "error", err, "duration", duration)
		result = Failure(err, r.cfg.Dump.Timeout)
		r.notifyFailure(reportCtx, err, start, runID)
	} else {
		location := util.S3URI(r.cfg.S3.Bucket, artifact.Key)
		slog.Info("Backup completed successfully",
			"runId", runID,
			"database", database,
			"location", location,
			"sizeMB", megabytes(artifact.StoredSize),
			"tables", artifact.Stats.Tables,
			"duration", duration,
		)
		result = Success(database, location, runID, artifact, duration)
		r.notifySuccess(reportCtx, artifact, location, runID, duration)
	}

	r.recordMetrics(reportCtx, artifact, err == nil, start, duration)
	return result
}

func (r *Runner) backup(ctx context.Context, runID string, start time.Time) (*Artifact, error) {
	if ctx.Err() != nil {
		return nil, fmt.Errorf("backup cancelled before start: %w", ctx.Err())
	}

	opts, err := r.dumpOptions(ctx)
	if err != nil {
		return nil, err
	}

	scratch := r.cfg.Dump.ScratchDir
	if err := util.SetupDirectories(scratch); err != nil {
		return nil, err
	}

	releaseLock, err := lock.Acquire(util.LockPath(scratch, r.cfg.Database.Name), r.cfg.Database.Name, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if err := releaseLock(); err != nil {
			slog.Warn("Failed to release lock", "error", err)
		}
	}()

	ts := start.UTC()
	codec := r.cfg.Dump.Compression
	ext := ".sql" + compress.Extension(codec)
	if r.recipient != nil {
		ext += ".age"
	}
	fileName := util.FileName(r.cfg.Database.Name, ts, r.cfg.S3.TimestampLayout, ext)

	a := &Artifact{
		Path:        filepath.Join(scratch, fileName),
		Key:         util.ObjectKey(r.cfg.KeyPrefix(), fileName),
		FileName:    fileName,
		Timestamp:   ts.Format(r.cfg.S3.TimestampLayout),
		Compression: codec,
		Encrypted:   r.recipient != nil,
	}
	slog.Info("Backup file", "file", fileName, "path", a.Path)

	defer removeFile(a.Path)

	if codec == compress.None && r.recipient == nil {
		opts.OutputFile = a.Path
		err = r.dumpToFile(ctx, opts, a)
	} else {
		err = r.dumpToStream(ctx, opts, a)
	}
	if err != nil {
		return nil, err
	}
	a.Ratio = compress.Ratio(a.OriginalSize, a.StoredSize)

	slog.Info("Backup file size",
		"bytes", a.StoredSize,
		"mb", megabytes(a.StoredSize),
		"originalBytes", a.OriginalSize,
		"ratio", round2(a.Ratio),
		"savedPercent", round2(compress.SavedPercent(a.OriginalSize, a.StoredSize)),
		"tables", a.Stats.Tables,
		"sequences", a.Stats.Sequences,
		"blake3", a.Blake3,
	)

	if err := r.validate(a); err != nil {
		return nil, err
	}

	if err := r.upload(ctx, a); err != nil {
		return nil, err
	}

	if r.cfg.UploadManifest() {
		if err := r.uploadManifest(ctx, a, opts, runID, start); err != nil {
			r.removeUploaded(ctx, a.Key)
			return nil, err
		}
	}

	return a, nil
}

func (r *Runner) dumpOptions(ctx context.Context) (dump.Options, error) {
	db := r.cfg.Database
	user, password := db.User, db.Password
	if db.SecretARN != "" {
		creds, err := r.deps.Secrets.Resolve(ctx, db.SecretARN)
		if err != nil {
			return dump.Options{}, fmt.Errorf("failed to resolve database credentials: %w", err)
		}
		user, password = creds.Username, creds.Password
	}

	return dump.Options{
		Binary:    r.cfg.Dump.Binary,
		Host:      db.Host,
		Port:      db.Port,
		User:      user,
		Password:  password,
		Database:  db.Name,
		SSLMode:   db.SSLMode,
		Verbose:   r.cfg.Dump.Verbose,
		ExtraArgs: r.cfg.Dump.ExtraArgs,
		Timeout:   r.cfg.Dump.Timeout,
	}, nil
}

// dumpToFile lets pg_dump write the artifact itself, then inspects it.
func (r *Runner) dumpToFile(ctx context.Context, opts dump.Options, a *Artifact) error {
	if err := dump.Run(ctx, opts, nil); err != nil {
		return err
	}

	fi, err := os.Stat(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrMissingOutput, a.Path)
		}
		return fmt.Errorf("failed to stat backup file: %w", err)
	}

	stats, err := inspect.File(a.Path, nil)
	if err != nil {
		return err
	}
	hash, err := crypto.BLAKE3File(a.Path)
	if err != nil {
		return fmt.Errorf("failed to hash backup file: %w", err)
	}

	a.Stats = stats
	a.OriginalSize = fi.Size()
	a.StoredSize = fi.Size()
	a.Blake3 = hash
	return nil
}

// dumpToStream pipes pg_dump stdout through the inspector and the
// compressor (and age, when configured) into the artifact file, hashing
// the stored bytes on the way.
func (r *Runner) dumpToStream(ctx context.Context, opts dump.Options, a *Artifact) error {
	f, err := os.OpenFile(a.Path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, writeBufferSize)
	digest := crypto.NewDigest()
	var w io.Writer = io.MultiWriter(bw, digest)

	var closers []io.Closer
	if r.recipient != nil {
		ew, err := crypto.Encrypt(w, r.recipient)
		if err != nil {
			return err
		}
		w = ew
		closers = append(closers, ew)
	}

	cw, err := compress.NewWriter(a.Compression, w, r.cfg.Dump.CompressionLevel)
	if err != nil {
		return err
	}
	closers = append(closers, cw)

	scanner := inspect.New()
	if err := dump.Run(ctx, opts, io.MultiWriter(cw, scanner)); err != nil {
		// Release encoder resources; the partial file is removed by the caller.
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
		return err
	}

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			return fmt.Errorf("failed to finalize backup file: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close backup file: %w", err)
	}

	a.Stats = scanner.Stats()
	a.OriginalSize = a.Stats.Bytes
	a.StoredSize = digest.Size()
	a.Blake3 = digest.Sum()
	return nil
}

func (r *Runner) validate(a *Artifact) error {
	if minSize := r.cfg.MinSize(); a.OriginalSize < minSize {
		return fmt.Errorf("%w (%d bytes), likely empty or failed", ErrTooSmall, a.OriginalSize)
	}
	if a.StoredSize == 0 {
		return fmt.Errorf("%w: %s is empty", ErrMissingOutput, a.Path)
	}
	if a.Stats.Tables < r.cfg.Dump.MinTables {
		return fmt.Errorf("%w: found %d, expected at least %d", ErrTooFewTables, a.Stats.Tables, r.cfg.Dump.MinTables)
	}
	if !a.Stats.Complete {
		slog.Warn("Dump completion marker not found", "file", a.FileName)
	}
	return nil
}

func (r *Runner) uploadOptions(contentType string, metadata map[string]string) remote.UploadOptions {
	return remote.UploadOptions{
		ContentType: contentType,
		Metadata:    metadata,
		SSE:         r.cfg.S3.SSE,
		KMSKeyID:    r.cfg.S3.KMSKeyID,
	}
}

func (r *Runner) upload(ctx context.Context, a *Artifact) error {
	contentType := compress.ContentType(a.Compression)
	if a.Encrypted {
		contentType = "application/octet-stream"
	}

	metadata := map[string]string{
		"database":      r.cfg.Database.Name,
		"timestamp":     a.Timestamp,
		"backup-type":   r.cfg.S3.BackupType,
		"compression":   a.Compression,
		"original-size": strconv.FormatInt(a.OriginalSize, 10),
		"tables":        strconv.Itoa(a.Stats.Tables),
		"sequences":     strconv.Itoa(a.Stats.Sequences),
		"encrypted":     strconv.FormatBool(a.Encrypted),
	}
	metadata[remote.MetadataBlake3] = a.Blake3

	slog.Info("Uploading to S3", "location", util.S3URI(r.cfg.S3.Bucket, a.Key))
	if err := r.deps.Store.Upload(ctx, a.Path, a.Key, r.uploadOptions(contentType, metadata)); err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}
	return nil
}

func (r *Runner) uploadManifest(ctx context.Context, a *Artifact, opts dump.Options, runID string, start time.Time) error {
	system := manifest.GetSystemInfo(ctx, r.cfg.Dump.Binary)
	if r.deps.Prober != nil {
		version, err := r.deps.Prober.ServerVersion(ctx, pgcheck.Target{
			Host:     opts.Host,
			Port:     opts.Port,
			Database: opts.Database,
			User:     opts.User,
			Password: opts.Password,
			SSLMode:  opts.SSLMode,
		})
		if err != nil {
			slog.Warn("Failed to get server version", "error", err)
		} else {
			system.ServerVersion = version
		}
	}

	m := &manifest.Backup{
		RunID:      runID,
		Datetime:   start.Unix(),
		Timestamp:  a.Timestamp,
		BackupType: r.cfg.S3.BackupType,
		DurationMS: r.deps.Now().Sub(start).Milliseconds(),
		System:     system,
		Database: manifest.Database{
			Name: r.cfg.Database.Name,
			Host: r.cfg.Database.Host,
			Port: r.cfg.Database.Port,
		},
		Artifact: manifest.Artifact{
			Bucket:           r.cfg.S3.Bucket,
			Key:              a.Key,
			FileName:         a.FileName,
			Compression:      a.Compression,
			Encrypted:        a.Encrypted,
			AgePublicKey:     r.cfg.Dump.AgePublicKey,
			Blake3Hash:       a.Blake3,
			StoredBytes:      a.StoredSize,
			OriginalBytes:    a.OriginalSize,
			CompressionRatio: round2(a.Ratio),
			Tables:           a.Stats.Tables,
			Sequences:        a.Stats.Sequences,
			Complete:         a.Stats.Complete,
		},
	}

	path := a.Path + util.ManifestSuffix
	if err := manifest.Write(path, m); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	defer removeFile(path)

	metadata := map[string]string{
		"database":    r.cfg.Database.Name,
		"timestamp":   a.Timestamp,
		"backup-type": r.cfg.S3.BackupType,
	}
	if err := r.deps.Store.Upload(ctx, path, util.ManifestKey(a.Key), r.uploadOptions("application/yaml", metadata)); err != nil {
		return fmt.Errorf("failed to upload manifest: %w", err)
	}
	return nil
}

// removeUploaded deletes an artifact whose run is reported as failed, so
// the bucket only holds backups that were reported as successful.
func (r *Runner) removeUploaded(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	if err := r.deps.Store.Delete(ctx, key); err != nil {
		slog.Error("Failed to remove artifact of failed run", "key", key, "error", err)
		return
	}
	slog.Info("Removed artifact of failed run", "key", key)
}

func (r *Runner) notifySuccess(ctx context.Context, a *Artifact, location, runID string, duration time.Duration) {
	if r.deps.Notifier == nil || !r.cfg.NotifyOnSuccess() {
		return
	}
	subject, message := notify.SuccessMessage(notify.Report{
		Database:         r.cfg.Database.Name,
		Location:         location,
		StoredBytes:      a.StoredSize,
		OriginalBytes:    a.OriginalSize,
		Compression:      a.Compression,
		CompressionRatio: a.Ratio,
		Tables:           a.Stats.Tables,
		Sequences:        a.Stats.Sequences,
		Encrypted:        a.Encrypted,
		Duration:         duration,
		Timestamp:        a.Timestamp,
		RunID:            runID,
	})
	if err := r.deps.Notifier.Publish(ctx, subject, message); err != nil {
		slog.Warn("Failed to send success notification", "error", err)
	}
}

func (r *Runner) notifyFailure(ctx context.Context, cause error, at time.Time, runID string) {
	if r.deps.Notifier == nil || !r.cfg.NotifyOnFailure() {
		return
	}
	subject, message := notify.FailureMessage(r.cfg.Database.Name, errors.New(ErrorMessage(cause, r.cfg.Dump.Timeout)), at, runID)
	if err := r.deps.Notifier.Publish(ctx, subject, message); err != nil {
		slog.Warn("Failed to send failure notification", "error", err)
	}
}

func (r *Runner) recordMetrics(ctx context.Context, a *Artifact, success bool, start time.Time, duration time.Duration) {
	if r.deps.Metrics == nil {
		return
	}
	outcome := metrics.Outcome{Success: success, At: start, Duration: duration}
	if a != nil {
		outcome.StoredBytes = a.StoredSize
		outcome.OriginalBytes = a.OriginalSize
		outcome.Tables = a.Stats.Tables
		outcome.Sequences = a.Stats.Sequences
	}
	r.deps.Metrics.Observe(outcome)

	if r.cfg.Metrics.PushgatewayURL == "" {
		return
	}
	if err := r.deps.Metrics.Push(ctx, r.cfg.Metrics.PushgatewayURL, r.cfg.Metrics.Job, r.cfg.Database.Name); err != nil {
		slog.Warn("Failed to push metrics", "error", err)
	}
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to clean up", "file", path, "error", err)
		return
	}
	slog.Debug("Cleaned up", "file", path)
}
