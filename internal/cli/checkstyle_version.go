package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkstyleVersionConfig string

var checkstyleVersionCmd = &cobra.Command{
	Use:   "checkstyle-version",
	Short: "Print the version of the configured Checkstyle jar",
	Args:  cobra.NoArgs,
	RunE:  runCheckstyleVersion,
}

func init() {
	checkstyleVersionCmd.Flags().StringVar(&checkstyleVersionConfig, "config", "", "Configuration file (default: ./.stylesync.toml)")
}

func runCheckstyleVersion(cmd *cobra.Command, args []string) error {
	cwd, err := getCwd()
	if err != nil {
		return err
	}
	env := envFor(cmd).ReadOnly()

	cfg, _, err := loadConfig(env, cwd, checkstyleVersionConfig, true)
	if err != nil {
		return err
	}
	chk, err := newChecker(env, cfg)
	if err != nil {
		return err
	}
	version, err := chk.Version(commandContext(cmd))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Checkstyle %s (%s)\n", version, cfg.Checkstyle.Jar)
	return nil
}
