// Package cli implements the stylesync command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bolasblack/stylesync/internal/util"
)

var (
	// Version, Commit, and Date are set at build time via ldflags
	Version = "dev"
	Commit  = ""
	Date    = ""
)

var rootCmd = &cobra.Command{
	Use:   "stylesync",
	Short: "stylesync - Checkstyle diagnostics for unsaved Java buffers",
	Long: `stylesync keeps Checkstyle diagnostics live while you type.

It mirrors unsaved editor buffers into a scratch directory, batches edits
into debounced check runs and maps the results back onto your files.
Run 'stylesync serve' from an editor, or 'stylesync check' in a terminal.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GetRootCmd returns the root command for documentation generation.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("%s version %s\ncommit: %s\ndate: %s\n", util.AppName, Version, Commit, Date))

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(checkstyleVersionCmd)
}
