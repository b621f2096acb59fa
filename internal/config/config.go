// Package config handles parsing and writing of stylesync configuration files (.stylesync.toml).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bolasblack/stylesync/internal/util"
)

// Defaults applied by LoadConfig for fields the file leaves empty.
const (
	DefaultJava        = "java"
	DefaultDebounceMS  = 200
	DefaultMaxAttempts = 5
	DefaultExtension   = ".java"

	// CharsetProperty carries Checkstyle.Charset to the checker.
	CharsetProperty = "checkstyle.charset"
)

// Checkstyle configures how files are checked.
type Checkstyle struct {
	Java          string            `toml:"java,omitempty" json:"java,omitempty" jsonschema:"description=Java executable used to run Checkstyle"`
	Jar           string            `toml:"jar,omitempty" json:"jar,omitempty" jsonschema:"description=Path to the Checkstyle all-in-one jar"`
	Configuration string            `toml:"configuration,omitempty" json:"configuration,omitempty" jsonschema:"description=Checkstyle XML configuration path or /google_checks.xml or /sun_checks.xml"`
	Properties    map[string]string `toml:"properties,omitempty" json:"properties,omitempty" jsonschema:"description=Properties referenced by the configuration (${workspaceFolder} is expanded)"`
	Charset       string            `toml:"charset,omitempty" json:"charset,omitempty" jsonschema:"description=Source file charset"`
	AutoCheck     *bool             `toml:"autocheck,omitempty" json:"autocheck,omitempty" jsonschema:"description=Check files while they are edited (default true)"`
	Extensions    []string          `toml:"extensions,omitempty" json:"extensions,omitempty" jsonschema:"description=File extensions to check (default [.java])"`
}

// Sync configures buffer mirroring and batching.
type Sync struct {
	DebounceMS  int    `toml:"debounce_ms,omitempty" json:"debounce_ms,omitempty" jsonschema:"minimum=0,description=Quiet window in milliseconds before edited files are checked"`
	MaxAttempts int    `toml:"max_attempts,omitempty" json:"max_attempts,omitempty" jsonschema:"minimum=1,description=Attempts per mirror write before giving up"`
	Storage     string `toml:"storage,omitempty" json:"storage,omitempty" jsonschema:"description=Directory holding the mirror scratch directory (default: OS temp dir)"`
}

// Config is the merged configuration used internally by the program.
type Config struct {
	Checkstyle Checkstyle `toml:"checkstyle" json:"checkstyle" jsonschema:"description=Checkstyle invocation"`
	Sync       Sync       `toml:"sync,omitempty" json:"sync,omitempty" jsonschema:"description=Buffer mirroring"`
}

// rawConfig is what a single file may contain before includes are merged.
type rawConfig struct {
	Includes   []string   `toml:"includes,omitempty"`
	Checkstyle Checkstyle `toml:"checkstyle"`
	Sync       Sync       `toml:"sync,omitempty"`
}

// SchemaConfig is the exported type for JSON schema generation.
// It represents what users can write in .stylesync.toml files.
type SchemaConfig struct {
	Includes   []string   `toml:"includes,omitempty" json:"includes,omitempty" jsonschema:"description=Other config files to include and merge (supports glob patterns)"`
	Checkstyle Checkstyle `toml:"checkstyle" json:"checkstyle" jsonschema:"description=Checkstyle invocation"`
	Sync       Sync       `toml:"sync,omitempty" json:"sync,omitempty" jsonschema:"description=Buffer mirroring"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Checkstyle.Java == "" {
		c.Checkstyle.Java = DefaultJava
	}
	if c.Checkstyle.AutoCheck == nil {
		enabled := true
		c.Checkstyle.AutoCheck = &enabled
	}
	if len(c.Checkstyle.Extensions) == 0 {
		c.Checkstyle.Extensions = []string{DefaultExtension}
	}
	if c.Sync.DebounceMS <= 0 {
		c.Sync.DebounceMS = DefaultDebounceMS
	}
	if c.Sync.MaxAttempts <= 0 {
		c.Sync.MaxAttempts = DefaultMaxAttempts
	}
}

// LoadConfig reads a configuration file, merges its includes and applies
// defaults.
func LoadConfig(env *util.Env, path string) (Config, error) {
	cfg, err := LoadWithIncludes(env, path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadOrDefault is LoadConfig that falls back to DefaultConfig when path
// does not exist.
func LoadOrDefault(env *util.Env, path string) (Config, error) {
	if _, err := env.Fs.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return LoadConfig(env, path)
}

// AutoCheckEnabled reports whether files are checked while edited.
func (c Checkstyle) AutoCheckEnabled() bool {
	return c.AutoCheck == nil || *c.AutoCheck
}

// Debounce returns the debounce window.
func (s Sync) Debounce() time.Duration {
	return time.Duration(s.DebounceMS) * time.Millisecond
}

// CheckProperties returns the properties handed to the checker, including
// the charset when one is configured.
func (c Checkstyle) CheckProperties() map[string]string {
	props := make(map[string]string, len(c.Properties)+1)
	for k, v := range c.Properties {
		props[k] = v
	}
	if c.Charset != "" {
		if _, ok := props[CharsetProperty]; !ok {
			props[CharsetProperty] = c.Charset
		}
	}
	return props
}

var workspaceFolderPattern = regexp.MustCompile(`(?i)\$\{workspacefolder\}`)

// expandWorkspaceFolder replaces up to n occurrences of ${workspaceFolder}.
func expandWorkspaceFolder(value, root string, n int) string {
	for i := 0; i < n; i++ {
		loc := workspaceFolderPattern.FindStringIndex(value)
		if loc == nil {
			break
		}
		value = value[:loc[0]] + root + value[loc[1]:]
	}
	return value
}

// Resolve returns a copy with ${workspaceFolder} expanded and relative paths
// made absolute against workspaceRoot. Builtin Checkstyle configurations are
// kept as they are.
func (c Config) Resolve(workspaceRoot string) Config {
	out := c
	cs := &out.Checkstyle

	if workspaceRoot != "" {
		cs.Configuration = expandWorkspaceFolder(cs.Configuration, workspaceRoot, 1)
		cs.Jar = expandWorkspaceFolder(cs.Jar, workspaceRoot, 1)
		out.Sync.Storage = expandWorkspaceFolder(out.Sync.Storage, workspaceRoot, 1)
		if len(c.Checkstyle.Properties) > 0 {
			cs.Properties = make(map[string]string, len(c.Checkstyle.Properties))
			for k, v := range c.Checkstyle.Properties {
				cs.Properties[k] = expandWorkspaceFolder(v, workspaceRoot, 2)
			}
		}
	}

	cs.Configuration = absPath(cs.Configuration, workspaceRoot, true)
	cs.Jar = absPath(cs.Jar, workspaceRoot, false)
	out.Sync.Storage = absPath(out.Sync.Storage, workspaceRoot, false)
	cs.Extensions = normalizeExtensions(cs.Extensions)
	return out
}

func absPath(path, root string, allowBuiltin bool) string {
	if path == "" || root == "" || filepath.IsAbs(path) {
		return path
	}
	if allowBuiltin && (path == "/google_checks.xml" || path == "/sun_checks.xml") {
		return path
	}
	return filepath.Join(root, path)
}

func normalizeExtensions(exts []string) []string {
	seen := make(map[string]bool, len(exts))
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if !seen[ext] {
			seen[ext] = true
			out = append(out, ext)
		}
	}
	return out
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	if c.Sync.DebounceMS < 0 {
		return fmt.Errorf("sync.debounce_ms must not be negative: %d", c.Sync.DebounceMS)
	}
	if c.Sync.MaxAttempts < 0 {
		return fmt.Errorf("sync.max_attempts must not be negative: %d", c.Sync.MaxAttempts)
	}
	return nil
}
