package lsp

import (
	"encoding/json"
	"sync"

	"github.com/bolasblack/stylesync/internal/config"
)

// settings merges .stylesync.toml with client overrides. It implements
// diagnostics.ConfigAccessor; every read resolves the current values.
type settings struct {
	mu       sync.RWMutex
	file     config.Config
	root     string
	override stylesyncSettings
}

func newSettings(file config.Config, root string) *settings {
	return &settings{file: file, root: root}
}

func (s *settings) effective() config.Config {
	s.mu.RLock()
	cfg := s.file
	o := s.override
	root := s.root
	s.mu.RUnlock()

	if o.Configuration != nil {
		cfg.Checkstyle.Configuration = *o.Configuration
	}
	if o.Properties != nil {
		cfg.Checkstyle.Properties = o.Properties
	}
	if o.AutoCheck != nil {
		enabled := *o.AutoCheck
		cfg.Checkstyle.AutoCheck = &enabled
	}
	return cfg.Resolve(root)
}

// CheckConfigPath implements diagnostics.ConfigAccessor.
func (s *settings) CheckConfigPath() string {
	return s.effective().Checkstyle.Configuration
}

// Properties implements diagnostics.ConfigAccessor.
func (s *settings) Properties() map[string]string {
	return s.effective().Checkstyle.CheckProperties()
}

// AutoCheck implements diagnostics.ConfigAccessor.
func (s *settings) AutoCheck() bool {
	return s.effective().Checkstyle.AutoCheckEnabled()
}

// Extensions implements diagnostics.ConfigAccessor.
func (s *settings) Extensions() []string {
	return s.effective().Checkstyle.Extensions
}

// apply stores client overrides from a settings payload and reports whether
// anything changed.
func (s *settings) apply(raw json.RawMessage) (bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	var parsed lspSettings
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	before, _ := json.Marshal(s.override)
	s.override = parsed.Stylesync
	after, _ := json.Marshal(s.override)
	return string(before) != string(after), nil
}
