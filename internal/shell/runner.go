// Package shell runs external commands with a bounded timeout.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds every external call that does not carry its own deadline.
const DefaultTimeout = 5 * time.Second

// ErrTimeout is returned when a command did not finish before its deadline.
var ErrTimeout = errors.New("command timed out")

// Runner executes an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandError describes a command that started but exited unsuccessfully.
type CommandError struct {
	Name     string
	Args     []string
	Stderr   string
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Name, strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Timeout applied when ctx has no deadline. Zero means DefaultTimeout.
	Timeout time.Duration
	// Env replaces the child environment when non-nil.
	Env []string
}

// NewExecRunner returns a runner using the given per-call timeout.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout}
}

// Run executes name with args. Stdout is returned on success; on failure the
// error is a *CommandError carrying stderr, or wraps ErrTimeout.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		timeout := r.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if r.Env != nil {
		cmd.Env = r.Env
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), ErrTimeout)
	}
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return stdout.Bytes(), &CommandError{
			Name:     name,
			Args:     args,
			Stderr:   strings.TrimSpace(stderr.String()),
			ExitCode: exitCode,
			Err:      err,
		}
	}
	return stdout.Bytes(), nil
}

// Output runs the command and returns trimmed stdout, or "" on any failure.
func Output(ctx context.Context, r Runner, name string, args ...string) string {
	out, err := r.Run(ctx, name, args...)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// OK reports whether the command exited successfully.
func OK(ctx context.Context, r Runner, name string, args ...string) bool {
	_, err := r.Run(ctx, name, args...)
	return err == nil
}
