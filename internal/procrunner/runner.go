// Package procrunner runs external commands under a uniform
// timeout/kill/capture contract. Every tool adapter and syntax checker
// goes through this single entry point.
package procrunner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// Sentinel exit codes for invocations that never produced a real exit
// status. Real tools report non-negative codes, so negatives are safe.
const (
	// ExitTimeout marks a process killed after exceeding its deadline.
	ExitTimeout = -2

	// ExitStartFailure marks a command that could not be launched at all
	// (binary missing, permission denied).
	ExitStartFailure = -3
)

// Result captures one subprocess invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Runner executes commands in a working directory with a bounded timeout.
type Runner struct {
	logger *zap.Logger
}

// New creates a Runner. A nil logger is replaced with a no-op logger.
func New(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger}
}

// Run executes argv[0] with argv[1:] in dir, killing the process when
// timeout expires. The process is never left running: on timeout it is
// killed and the result carries ExitTimeout.
func (r *Runner) Run(ctx context.Context, dir string, argv []string, timeout time.Duration) *Result {
	if len(argv) == 0 {
		return &Result{ExitCode: ExitStartFailure, Stderr: "empty command"}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	// Grace period between SIGKILL on context expiry and giving up on
	// Wait, so a wedged tool cannot wedge the pipeline.
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case err == nil:
		res.ExitCode = 0
	case runCtx.Err() == context.DeadlineExceeded:
		res.ExitCode = ExitTimeout
		res.TimedOut = true
		r.logger.Warn("command timed out",
			zap.String("command", argv[0]),
			zap.Duration("timeout", timeout),
		)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = ExitStartFailure
			if res.Stderr == "" {
				res.Stderr = err.Error()
			}
			r.logger.Warn("command failed to start",
				zap.String("command", argv[0]),
				zap.Error(err),
			)
		}
	}

	return res
}
