package util

import (
	"context"
	"os/exec"
)

// CommandRunner executes external commands.
type CommandRunner interface {
	// RunQuiet executes a command without streaming and returns the captured
	// combined output, on success and on failure.
	RunQuiet(ctx context.Context, name string, args ...string) (output []byte, err error)
}

// DefaultCommandRunner implements CommandRunner with os/exec. Output is
// always captured, never streamed: stdout is the protocol channel when
// running as a language server.
type DefaultCommandRunner struct{}

// NewCommandRunner creates a DefaultCommandRunner.
func NewCommandRunner() *DefaultCommandRunner {
	return &DefaultCommandRunner{}
}

func (r *DefaultCommandRunner) RunQuiet(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:fslint // CommandRunner is the abstraction layer
	return cmd.CombinedOutput()
}
