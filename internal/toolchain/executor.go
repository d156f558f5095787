package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"reelsmith/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	// Run executes binary and returns its stdout. A non-zero exit yields a
	// *CommandError carrying the stderr tail as diagnostics.
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

// CommandExecutor runs real processes.
type CommandExecutor struct{}

func (CommandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), &CommandError{Binary: binary, Stderr: tail(stderr.String(), 2048), Err: err}
	}
	return stdout.Bytes(), nil
}

// CommandError describes a failed external command. The stderr tail is kept
// out of Error so it never reaches job records; loggers read it through
// Diagnostics.
type CommandError struct {
	Binary string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Binary, e.Err)
}

// Diagnostics returns the captured stderr tail.
func (e *CommandError) Diagnostics() string { return e.Stderr }

func (e *CommandError) Unwrap() error { return e.Err }

// RunWithTimeout runs binary under a deadline. Hitting the deadline is
// reported as services.ErrTimeout; cancellation of the parent context is
// passed through unchanged.
func RunWithTimeout(ctx context.Context, executor Executor, timeout time.Duration, binary string, args []string) ([]byte, error) {
	if executor == nil {
		executor = CommandExecutor{}
	}
	runCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	out, err := executor.Run(runCtx, binary, args)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return out, fmt.Errorf("%w: %s exceeded %s: %w", services.ErrTimeout, binary, timeout, err)
	}
	return out, err
}

func tail(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return "..." + value[len(value)-limit:]
}
