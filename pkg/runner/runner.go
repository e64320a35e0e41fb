// Package runner runs external commands such as helm, kubectl and gcloud.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Runner runs a command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	logger *zap.Logger
}

// NewExecRunner creates a runner backed by os/exec.
func NewExecRunner(logger *zap.Logger) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{logger: logger}
}

// Run executes the command and returns its stdout. On failure the error
// carries the captured stderr.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("executing command", zap.String("command", name), zap.Strings("args", args))

	if err := cmd.Run(); err != nil {
		r.logger.Debug("command failed",
			zap.String("command", name),
			zap.Error(err),
			zap.String("stderr", stderr.String()))
		return stdout.Bytes(), &Error{Command: append([]string{name}, args...), Err: err, Stderr: stderr.String()}
	}
	return stdout.Bytes(), nil
}

// Error is a failed command.
type Error struct {
	Command []string
	Err     error
	Stderr  string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Command, " "), e.Err)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += "\nstderr: " + stderr
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}
