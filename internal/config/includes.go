package config

import (
	"fmt"
	"path/filepath"
	"sort"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"github.com/bolasblack/stylesync/internal/util"
)

// LoadWithIncludes loads config with includes support.
// It processes includes recursively, merging configs in the order they are specified.
func LoadWithIncludes(env *util.Env, path string) (Config, error) {
	return loadWithIncludes(env.Fs, path, make(map[string]bool))
}

func loadWithIncludes(fs afero.Fs, path string, visited map[string]bool) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	if visited[absPath] {
		return Config{}, fmt.Errorf("circular include detected: %s", path)
	}
	visited[absPath] = true

	data, err := afero.ReadFile(fs, absPath)
	if err != nil {
		return Config{}, err
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	baseDir := filepath.Dir(absPath)

	// Includes first (depth-first), then the current file on top.
	var merged Config
	for _, includePattern := range raw.Includes {
		resolvedPattern := includePattern
		if !filepath.IsAbs(includePattern) {
			resolvedPattern = filepath.Join(baseDir, includePattern)
		}

		matchedFiles, err := expandGlob(fs, resolvedPattern)
		if err != nil {
			return Config{}, fmt.Errorf("failed to expand glob %s: %w", includePattern, err)
		}

		for _, includePath := range matchedFiles {
			included, err := loadWithIncludes(fs, includePath, visited)
			if err != nil {
				return Config{}, fmt.Errorf("failed to load include %s: %w", includePath, err)
			}
			merged = mergeConfigs(merged, included)
		}
	}

	current := Config{Checkstyle: raw.Checkstyle, Sync: raw.Sync}
	if len(raw.Includes) == 0 {
		return current, nil
	}
	return mergeConfigs(merged, current), nil
}

// isGlobPattern checks if the pattern contains glob special characters.
func isGlobPattern(pattern string) bool {
	for _, c := range pattern {
		switch c {
		case '*', '?', '[':
			return true
		}
	}
	return false
}

// expandGlob expands a glob pattern and returns sorted matched files.
// For literal paths (no glob characters), returns error if file doesn't exist.
// For glob patterns, returns empty slice if no files match.
func expandGlob(fs afero.Fs, pattern string) ([]string, error) {
	if !isGlobPattern(pattern) {
		if _, err := fs.Stat(pattern); err != nil {
			return nil, err
		}
		return []string{pattern}, nil
	}

	matches, err := afero.Glob(fs, pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// mergeConfigs merges overlay config into base config.
// Objects: deep merge (recursive)
// Arrays: append (concatenate)
// Same key: overlay wins
func mergeConfigs(base, overlay Config) Config {
	result := base
	cs, ov := &result.Checkstyle, overlay.Checkstyle

	if ov.Java != "" {
		cs.Java = ov.Java
	}
	if ov.Jar != "" {
		cs.Jar = ov.Jar
	}
	if ov.Configuration != "" {
		cs.Configuration = ov.Configuration
	}
	if ov.Charset != "" {
		cs.Charset = ov.Charset
	}
	if ov.AutoCheck != nil {
		enabled := *ov.AutoCheck
		cs.AutoCheck = &enabled
	}
	if len(ov.Extensions) > 0 {
		cs.Extensions = append(append([]string(nil), cs.Extensions...), ov.Extensions...)
	}
	if len(ov.Properties) > 0 {
		props := make(map[string]string, len(cs.Properties)+len(ov.Properties))
		for k, v := range cs.Properties {
			props[k] = v
		}
		for k, v := range ov.Properties {
			props[k] = v
		}
		cs.Properties = props
	}

	if overlay.Sync.DebounceMS != 0 {
		result.Sync.DebounceMS = overlay.Sync.DebounceMS
	}
	if overlay.Sync.MaxAttempts != 0 {
		result.Sync.MaxAttempts = overlay.Sync.MaxAttempts
	}
	if overlay.Sync.Storage != "" {
		result.Sync.Storage = overlay.Sync.Storage
	}

	return result
}
