package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bolasblack/stylesync/internal/checker"
	"github.com/bolasblack/stylesync/internal/config"
	"github.com/bolasblack/stylesync/internal/util"
)

// Common error messages for CLI commands.
const (
	ErrMsgConfigNotFound = "configuration not found: run 'stylesync init' first"
	ErrMsgNoJar          = "checkstyle.jar is not set in " + util.ConfigFilename
)

// loadConfig loads the configuration at path, or <cwd>/.stylesync.toml when
// path is empty, and resolves it against cwd.
// A missing file yields the defaults unless required is set.
func loadConfig(env *util.Env, cwd, path string, required bool) (config.Config, string, error) {
	if path == "" {
		path = filepath.Join(cwd, util.ConfigFilename)
	}
	var (
		cfg config.Config
		err error
	)
	if required {
		cfg, err = config.LoadConfig(env, path)
	} else {
		cfg, err = config.LoadOrDefault(env, path)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.Config{}, path, errors.New(ErrMsgConfigNotFound)
		}
		return config.Config{}, path, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg.Resolve(cwd), path, nil
}

// newChecker builds the Checkstyle CLI checker for a resolved config.
func newChecker(env *util.Env, cfg config.Config) (*checker.CLI, error) {
	if cfg.Checkstyle.Jar == "" {
		return nil, errors.New(ErrMsgNoJar)
	}
	return checker.NewCLI(env, checker.CLIOptions{Java: cfg.Checkstyle.Java, Jar: cfg.Checkstyle.Jar}), nil
}

// getCwd returns the current working directory or an error.
func getCwd() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return cwd, nil
}

// commandContext returns the command's context, which is nil when a RunE
// is invoked directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// envFor returns the Env injected into the command's context, or an
// OS-backed one.
func envFor(cmd *cobra.Command) *util.Env {
	return util.EnvOrDefault(commandContext(cmd))
}

// progressStep writes a progress message with → prefix (step in progress).
var progressStep = util.ProgressStep

// progressDone writes a progress message with ✓ prefix (step completed).
// Delegates to util.ProgressDone for shared implementation.
var progressDone = util.ProgressDone

// progressFail writes a progress message with ✗ prefix (step failed).
// Delegates to util.ProgressFail for shared implementation.
var progressFail = util.ProgressFail
