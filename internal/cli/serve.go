package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bolasblack/stylesync/internal/lsp"
	"github.com/bolasblack/stylesync/internal/util"
)

var (
	serveConfig   string
	serveLogFile  string
	serveLogLevel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the language server on stdio",
	Long: `Run the stylesync language server, speaking LSP over stdin and stdout.

The workspace root sent by the editor decides which .stylesync.toml is
loaded. Logs go to stderr unless --log-file is given.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "Configuration file (default: <workspace root>/"+util.ConfigFilename+")")
	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "", "Append logs to this file instead of stderr")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level: debug, info, warn or error (default: $"+util.LogLevelEnv+" or info)")
}

func runServe(cmd *cobra.Command, args []string) error {
	env := envFor(cmd)

	var logOut io.Writer = cmd.ErrOrStderr()
	if serveLogFile != "" {
		f, err := env.Fs.OpenFile(serveLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	level := util.LevelFromEnv()
	if serveLogLevel != "" {
		level = util.ParseLevel(serveLogLevel)
	}
	env = env.WithLogger(util.NewLogger(logOut, level))

	configPath := serveConfig
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return fmt.Errorf("failed to resolve config path: %w", err)
		}
		configPath = abs
	}

	server := lsp.NewServer(cmd.InOrStdin(), cmd.OutOrStdout(), lsp.ServerOptions{
		Env:        env,
		ConfigPath: configPath,
		Version:    Version,
	})
	if err := server.Run(commandContext(cmd)); err != nil && !errors.Is(err, lsp.ErrExit) {
		return err
	}
	return nil
}
