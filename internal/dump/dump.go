package dump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrTimeout is returned when pg_dump outlives Options.Timeout.
var ErrTimeout = errors.New("pg_dump timed out")

const (
	stderrLimit = 64 << 10
	waitDelay   = 5 * time.Second
)

type Options struct {
	Binary    string
	Host      string
	Port      int
	User      string
	Password  string
	Database  string
	SSLMode   string
	Verbose   bool
	ExtraArgs []string
	Timeout   time.Duration
	// OutputFile switches to file mode: pg_dump writes the file itself via -f.
	OutputFile string
}

type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("pg_dump failed with return code %d: %s", e.Code, strings.TrimSpace(e.Stderr))
}

// Args builds the pg_dump argument list. The password is passed through
// the environment and never appears here.
func Args(opts Options) []string {
	args := []string{
		"-h", opts.Host,
		"-p", strconv.Itoa(opts.Port),
		"-U", opts.User,
		"-d", opts.Database,
		"--no-password",
	}
	if opts.Verbose {
		args = append(args, "-v")
	}
	args = append(args, opts.ExtraArgs...)
	if opts.OutputFile != "" {
		args = append(args, "-f", opts.OutputFile)
	}
	return args
}

func Env(opts Options) []string {
	env := append(os.Environ(), "PGPASSWORD="+opts.Password)
	if opts.SSLMode != "" {
		env = append(env, "PGSSLMODE="+opts.SSLMode)
	}
	return env
}

// Run executes pg_dump. In stream mode (no OutputFile) stdout is copied
// into sink; in file mode sink may be nil.
func Run(ctx context.Context, opts Options, sink io.Writer) error {
	if opts.OutputFile == "" && sink == nil {
		return fmt.Errorf("pg_dump needs either an output file or a sink")
	}

	runCtx := ctx
	var cancelTimeout context.CancelFunc = func() {}
	if opts.Timeout > 0 {
		runCtx, cancelTimeout = context.WithTimeout(ctx, opts.Timeout)
	}
	defer cancelTimeout()
	runCtx, cancel := context.WithCancel(runCtx)
	defer cancel()

	args := Args(opts)
	mode := "stream"
	if opts.OutputFile != "" {
		mode = "file"
	}
	slog.Info("Running pg_dump",
		"database", opts.Database,
		"host", opts.Host,
		"port", opts.Port,
		"mode", mode,
		"timeout", opts.Timeout,
		"args", args,
	)

	stderr := &tailBuffer{limit: stderrLimit}
	cmd := exec.CommandContext(runCtx, opts.Binary, args...)
	cmd.Env = Env(opts)
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	var copyErr error
	var wg sync.WaitGroup
	var pr *os.File

	if sink != nil && opts.OutputFile == "" {
		var pw *os.File
		var err error
		pr, pw, err = os.Pipe()
		if err != nil {
			return fmt.Errorf("failed to create pipe: %w", err)
		}
		cmd.Stdout = pw

		if err := cmd.Start(); err != nil {
			pw.Close()
			pr.Close()
			slog.Error("Failed to start pg_dump", "binary", opts.Binary, "error", err)
			return fmt.Errorf("failed to start pg_dump: %w", err)
		}
		// Close our copy of the write end so the reader sees EOF when pg_dump exits.
		pw.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := io.Copy(sink, pr); err != nil {
				copyErr = err
				cancel()
				// Keep draining so pg_dump is not blocked on a full pipe while it is killed.
				_, _ = io.Copy(io.Discard, pr)
			}
		}()
	} else if err := cmd.Start(); err != nil {
		slog.Error("Failed to start pg_dump", "binary", opts.Binary, "error", err)
		return fmt.Errorf("failed to start pg_dump: %w", err)
	}

	start := time.Now()
	waitErr := cmd.Wait()
	wg.Wait()
	if pr != nil {
		pr.Close()
	}

	if stderr.Len() > 0 {
		slog.Debug("pg_dump output", "stderr", stderr.String())
	}

	switch {
	case copyErr != nil:
		slog.Error("Failed to write pg_dump output", "error", copyErr)
		return fmt.Errorf("failed to write dump output: %w", copyErr)
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		slog.Error("pg_dump timed out", "timeout", opts.Timeout)
		return fmt.Errorf("%w after %s", ErrTimeout, opts.Timeout)
	case waitErr != nil:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			slog.Error("pg_dump failed", "code", exitErr.ExitCode(), "stderr", stderr.String())
			return &ExitError{Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return fmt.Errorf("pg_dump failed: %w", waitErr)
	}

	slog.Info("pg_dump completed", "database", opts.Database, "duration", time.Since(start))
	return nil
}

// Version returns the first line of `pg_dump --version`.
func Version(ctx context.Context, binary string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get pg_dump version: %w", err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return line, nil
}

func Lookup(binary string) (string, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("%s not found: %w", binary, err)
	}
	return path, nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buf)
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
