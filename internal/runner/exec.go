package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

const stderrTailBytes = 2048

// ExecRunner runs commands as child processes and streams their output.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// NewExecRunner streams child output to the given writers. Nil writers are
// replaced by os.Stdout / os.Stderr.
func NewExecRunner(stdout, stderr io.Writer, logger *slog.Logger) *ExecRunner {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ExecRunner{Stdout: stdout, Stderr: stderr, Logger: logger}
}

// Run starts the command and blocks until it exits. A non-zero exit becomes
// an *ExitError carrying the tail of stderr.
func (r *ExecRunner) Run(ctx context.Context, c Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	tail := &tailBuffer{max: stderrTailBytes}
	cmd.Stdout = r.Stdout
	cmd.Stderr = io.MultiWriter(r.Stderr, tail)

	line := c.String()
	r.Logger.Debug("exec.start", "command", line, "dir", c.Dir)
	started := time.Now()
	err := cmd.Run()
	elapsed := time.Since(started)
	if err == nil {
		r.Logger.Debug("exec.done", "command", line, "duration", elapsed)
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		r.Logger.Error("exec.failed", "command", line, "exit_code", exitErr.ExitCode(), "duration", elapsed)
		return &ExitError{
			Command: line,
			Code:    exitErr.ExitCode(),
			Stderr:  redact(tail.String(), c.Secrets),
			Err:     err,
		}
	}
	r.Logger.Error("exec.error", "command", line, "err", err)
	return err
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
