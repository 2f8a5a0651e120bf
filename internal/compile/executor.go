package compile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"time"
)

// ErrExecutableNotFound reports a compiler that could not be started
// because it does not exist.
var ErrExecutableNotFound = errors.New("executable not found")

// Invocation describes one process to run.
type Invocation struct {
	Executable string
	Args       []string
	// Stdin is piped to the process when non-nil.
	Stdin []byte
	Dir   string
}

// Output is what a finished process produced. A non-zero ExitCode is not
// an error.
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Elapsed  time.Duration
}

// Executor runs compiler processes.
type Executor interface {
	Run(ctx context.Context, inv Invocation) (Output, error)
}

// ExecExecutor runs processes with os/exec.
type ExecExecutor struct {
	// WaitDelay bounds how long output pipes are drained after the process
	// is killed on cancellation.
	WaitDelay time.Duration
}

// NewExecExecutor returns an ExecExecutor with a one second WaitDelay.
func NewExecExecutor() *ExecExecutor {
	return &ExecExecutor{WaitDelay: time.Second}
}

// Run starts the process and waits for it. It returns ctx.Err() when the
// context ended the process, and ErrExecutableNotFound when it could not start.
func (e *ExecExecutor) Run(ctx context.Context, inv Invocation) (Output, error) {
	cmd := exec.CommandContext(ctx, inv.Executable, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.WaitDelay = e.WaitDelay
	if inv.Stdin != nil {
		cmd.Stdin = bytes.NewReader(inv.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	out := Output{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Elapsed: time.Since(start),
	}
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		out.ExitCode = -1
		return out, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return out, fmt.Errorf("%w: %s", ErrExecutableNotFound, inv.Executable)
	}
	return out, fmt.Errorf("run %s: %w", inv.Executable, err)
}
