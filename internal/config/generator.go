// generator.go provides config templates for stylesync init.
//
// init and defaults are complementary: fields with defaults (java, autocheck,
// extensions, sync) are left out of generated files.

package config

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// SchemaComment is the TOML comment that references the JSON Schema for editor autocomplete.
const SchemaComment = "#:schema https://raw.githubusercontent.com/bolasblack/stylesync/refs/heads/master/stylesync-config.schema.json\n\n"

// Template represents a configuration template type.
type Template string

const (
	// TemplateGoogle checks against Google's Java style.
	TemplateGoogle Template = "google"
	// TemplateSun checks against Sun's code conventions.
	TemplateSun Template = "sun"
)

// Templates lists the available templates in display order.
var Templates = []Template{TemplateGoogle, TemplateSun}

// TemplateConfig holds a Config and the comments attached to it.
type TemplateConfig struct {
	Config   Config
	Includes []string
	// ConfigurationComment is inserted before the "configuration" key.
	ConfigurationComment string
}

// TemplateFor returns the TemplateConfig for template. Unknown templates fall
// back to TemplateGoogle.
func TemplateFor(template Template) TemplateConfig {
	switch template {
	case TemplateSun:
		return TemplateConfig{
			Config: Config{Checkstyle: Checkstyle{
				Jar:           "${workspaceFolder}/.stylesync/checkstyle-all.jar",
				Configuration: "/sun_checks.xml",
			}},
			ConfigurationComment: "bundled with Checkstyle, replace with a path to use your own rules",
		}
	default:
		return TemplateConfig{
			Config: Config{Checkstyle: Checkstyle{
				Jar:           "${workspaceFolder}/.stylesync/checkstyle-all.jar",
				Configuration: "/google_checks.xml",
				Properties: map[string]string{
					"org.checkstyle.google.suppressionfilter.config": "${workspaceFolder}/checkstyle-suppressions.xml",
				},
			}},
			ConfigurationComment: "bundled with Checkstyle, replace with a path to use your own rules",
		}
	}
}

// GenerateConfig writes tc as TOML to path, prefixed with the schema comment.
func GenerateConfig(fs afero.Fs, path string, tc TemplateConfig) error {
	content, err := RenderTemplate(tc)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// RenderTemplate returns the TOML content for tc.
func RenderTemplate(tc TemplateConfig) (string, error) {
	schema := SchemaConfig{
		Includes:   tc.Includes,
		Checkstyle: tc.Config.Checkstyle,
		Sync:       tc.Config.Sync,
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(schema); err != nil {
		return "", fmt.Errorf("encode template: %w", err)
	}

	content := buf.String()
	if tc.ConfigurationComment != "" {
		content = insertComment(content, "[checkstyle]", "configuration", tc.ConfigurationComment)
	}
	return SchemaComment + content, nil
}

// insertComment inserts a comment before the first key in section.
func insertComment(content, section, key, comment string) string {
	lines := strings.Split(content, "\n")
	var result []string
	inSection := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			inSection = trimmed == section
			result = append(result, line)
			continue
		}
		if inSection && strings.HasPrefix(trimmed, key) {
			result = append(result, "# "+comment)
			inSection = false
		}
		result = append(result, line)
	}

	return strings.Join(result, "\n")
}
