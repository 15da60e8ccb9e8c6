// Package system wraps external control-plane commands (nmcli, systemctl,
// rfkill) behind a Runner so callers can be tested without a live host.
package system

import (
	"context"
	"os/exec"
	"strings"

	"github.com/pixelpi-co-uk/pixelpi/internal/log"
)

// Runner executes a system command and returns its captured output.
type Runner interface {
	// Run executes name with args and returns combined stdout. A non-zero
	// exit status is returned as an error carrying the captured stderr.
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Error("Command failed",
			"command", name+" "+strings.Join(args, " "),
			"stderr", strings.TrimSpace(stderr.String()),
			"error", err)
		return stdout.String(), &CommandError{
			Command: append([]string{name}, args...),
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}

	return stdout.String(), nil
}

// CommandError reports a failed external command with its captured stderr.
type CommandError struct {
	Command []string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	msg := strings.Join(e.Command, " ") + ": " + e.Err.Error()
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
