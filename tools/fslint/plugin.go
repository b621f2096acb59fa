package fslint

import (
	"fmt"

	"github.com/golangci/plugin-module-register/register"
	"golang.org/x/tools/go/analysis"
)

func init() {
	register.Plugin("fslint", New)
}

// PluginSettings is the settings block of the fslint entry under
// linters.settings.custom in .golangci.yml.
type PluginSettings struct {
	// Config is the rule file, DefaultConfigFile when empty.
	Config string `json:"config"`
}

// New creates the golangci-lint plugin from its settings.
func New(settings any) (register.LinterPlugin, error) {
	s, err := register.DecodeSettings[PluginSettings](settings)
	if err != nil {
		return nil, fmt.Errorf("fslint: invalid settings: %w", err)
	}
	if s.Config == "" {
		s.Config = DefaultConfigFile
	}
	return &plugin{config: s.Config}, nil
}

type plugin struct {
	config string
}

// BuildAnalyzers rejects an unreadable rule file up front.
func (p *plugin) BuildAnalyzers() ([]*analysis.Analyzer, error) {
	if _, err := loadConfig(p.config); err != nil {
		return nil, fmt.Errorf("fslint: %w", err)
	}
	return []*analysis.Analyzer{NewAnalyzer(p.config)}, nil
}

func (p *plugin) GetLoadMode() string {
	return register.LoadModeSyntax
}
