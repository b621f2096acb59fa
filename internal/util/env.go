package util

import (
	"log/slog"

	"github.com/spf13/afero"
)

// Env contains environment dependencies that can be mocked for testing.
type Env struct {
	// Fs is the filesystem to use for file operations.
	Fs afero.Fs
	// Cmd is the command runner for executing external commands.
	Cmd CommandRunner
	// Log receives structured diagnostics about what the process is doing.
	Log *slog.Logger
}

// NewEnv creates an Env with the given filesystem.
func NewEnv(fs afero.Fs) *Env {
	return &Env{Fs: fs, Cmd: NewCommandRunner(), Log: DiscardLogger()}
}

// NewOsEnv creates an Env backed by the real filesystem.
func NewOsEnv() *Env {
	return NewEnv(afero.NewOsFs())
}

// ReadOnly returns a copy whose filesystem rejects writes. Use it for
// steps that only read files, like loading configuration.
func (e *Env) ReadOnly() *Env {
	return &Env{Fs: afero.NewReadOnlyFs(e.Fs), Cmd: e.Cmd, Log: e.Log}
}

// NewTestEnv creates an Env with in-memory filesystem and mock command runner (for testing).
func NewTestEnv() *Env {
	return &Env{
		Fs:  afero.NewMemMapFs(),
		Cmd: NewMockCommandRunner(),
		Log: DiscardLogger(),
	}
}

// WithCommandRunner returns a copy with the given command runner.
func (e *Env) WithCommandRunner(cmd CommandRunner) *Env {
	return &Env{Fs: e.Fs, Cmd: cmd, Log: e.Log}
}

// WithLogger returns a copy with the given logger.
func (e *Env) WithLogger(log *slog.Logger) *Env {
	if log == nil {
		log = DiscardLogger()
	}
	return &Env{Fs: e.Fs, Cmd: e.Cmd, Log: log}
}
