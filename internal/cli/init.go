package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bolasblack/stylesync/internal/config"
	"github.com/bolasblack/stylesync/internal/util"
)

var initTemplate string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize stylesync configuration in current directory",
	Long: `Initialize stylesync by creating a .stylesync.toml configuration file in the current directory.

Without --template you are asked to pick one when running in a terminal;
otherwise the Google template is used.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initTemplate, "template", "", "Configuration template: google or sun")
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := getCwd()
	if err != nil {
		return err
	}

	template, err := chooseTemplate(initTemplate, term.IsTerminal(int(os.Stdin.Fd())))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	progressStep(out, "Writing %s configuration\n", template)
	path, err := initConfig(envFor(cmd), cwd, template)
	if err != nil {
		return err
	}
	progressDone(out, "Created %s\n", path)
	fmt.Fprintln(out, "Set checkstyle.jar to your Checkstyle jar, then run 'stylesync check' or start 'stylesync serve' from your editor.")
	return nil
}

// chooseTemplate validates flag, or asks for a template when interactive.
func chooseTemplate(flag string, interactive bool) (config.Template, error) {
	if flag != "" {
		for _, t := range config.Templates {
			if string(t) == flag {
				return t, nil
			}
		}
		return "", fmt.Errorf("unknown template %q (available: %v)", flag, config.Templates)
	}
	if !interactive {
		return config.TemplateGoogle, nil
	}

	var selected string
	err := huh.NewSelect[string]().
		Title("Select a template").
		Options(
			huh.NewOption("Google - Google Java Style (google_checks.xml)", string(config.TemplateGoogle)),
			huh.NewOption("Sun - Sun Code Conventions (sun_checks.xml)", string(config.TemplateSun)),
		).
		Value(&selected).
		Run()
	if err != nil {
		return "", fmt.Errorf("template selection cancelled: %w", err)
	}
	return config.Template(selected), nil
}

// initConfig writes the template to <cwd>/.stylesync.toml and refuses to
// overwrite an existing file.
func initConfig(env *util.Env, cwd string, template config.Template) (string, error) {
	path := filepath.Join(cwd, util.ConfigFilename)
	if _, err := env.Fs.Stat(path); err == nil {
		return "", fmt.Errorf("configuration file already exists: %s", path)
	}
	if err := config.GenerateConfig(env.Fs, path, config.TemplateFor(template)); err != nil {
		return "", fmt.Errorf("failed to generate configuration: %w", err)
	}
	return path, nil
}
