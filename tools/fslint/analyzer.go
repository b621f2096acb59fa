// Package fslint reports direct filesystem calls in stylesync's internal
// packages, where every file operation must go through an afero.Fs so that
// tests can run against an in-memory filesystem.
//
// It runs standalone through Analyzer (-config flag) or inside golangci-lint
// as a module plugin (see plugin.go).
package fslint

import (
	"fmt"
	"go/ast"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/tools/go/analysis"
)

// DefaultConfigFile is the rule file the plugin reads when its settings
// name none. Relative to the directory golangci-lint runs in.
const DefaultConfigFile = "fslint.toml"

// defaultHint is suggested for forbidden calls without a configured hint.
const defaultHint = "env.Fs"

// Config represents the fslint configuration.
type Config struct {
	ScanDirs        []string            `toml:"scan_dirs"`
	AllowedPackages []string            `toml:"allowed_packages"`
	ForbiddenCalls  map[string][]string `toml:"forbidden_calls"`
	// Hints maps "pkg.Func" to the replacement named in the report.
	Hints map[string]string `toml:"hints"`
	// SkipTests leaves _test.go files unchecked.
	SkipTests bool `toml:"skip_tests"`
}

// hintFor returns the replacement suggested for pkg.fn.
func (c *Config) hintFor(pkg, fn string) string {
	if hint, ok := c.Hints[pkg+"."+fn]; ok && hint != "" {
		return hint
	}
	return defaultHint
}

// forbidden reports whether pkg.fn is listed under forbidden_calls.
func (c *Config) forbidden(pkg, fn string) bool {
	for _, name := range c.ForbiddenCalls[pkg] {
		if name == fn {
			return true
		}
	}
	return false
}

// Analyzer reads its rules from the file given with -config.
var Analyzer = NewAnalyzer("")

// NewAnalyzer returns an fslint analyzer reading its rules from configPath.
// The file is read once, on the first package analyzed.
func NewAnalyzer(configPath string) *analysis.Analyzer {
	l := &configLoader{path: configPath}
	a := &analysis.Analyzer{
		Name: "fslint",
		Doc:  "reports direct filesystem calls outside the packages allowed to touch the OS filesystem",
		Run: func(pass *analysis.Pass) (any, error) {
			cfg, err := l.load()
			if err != nil {
				return nil, err
			}
			inspectPackage(pass, cfg)
			return nil, nil
		},
	}
	a.Flags.StringVar(&l.path, "config", configPath, "path to fslint config file (required)")
	return a
}

type configLoader struct {
	path string

	once sync.Once
	cfg  *Config
	err  error
}

func (l *configLoader) load() (*Config, error) {
	l.once.Do(func() { l.cfg, l.err = loadConfig(l.path) })
	return l.cfg, l.err
}

func loadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required (use -config flag)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

func inspectPackage(pass *analysis.Pass, cfg *Config) {
	pkgPath := pass.Pkg.Path()
	if !shouldScanPackage(pkgPath, cfg.ScanDirs) || isAllowedPackage(pkgPath, cfg.AllowedPackages) {
		return
	}

	for _, file := range pass.Files {
		if cfg.SkipTests && isTestFile(pass.Fset.Position(file.Pos()).Filename) {
			continue
		}
		imports := importNames(file)
		ast.Inspect(file, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			alias, pkg, fn, ok := qualifiedCall(call, imports)
			if ok && cfg.forbidden(pkg, fn) {
				pass.Reportf(call.Pos(), "direct filesystem operation %s.%s is not allowed in this package (use %s instead)", alias, fn, cfg.hintFor(pkg, fn))
			}
			return true
		})
	}
}

// qualifiedCall splits a call of the form alias.Func into the alias, the
// imported package path and the function name.
func qualifiedCall(call *ast.CallExpr, imports map[string]string) (alias, pkg, fn string, ok bool) {
	sel, isSel := call.Fun.(*ast.SelectorExpr)
	if !isSel {
		return "", "", "", false
	}
	ident, isIdent := sel.X.(*ast.Ident)
	if !isIdent {
		return "", "", "", false
	}
	pkg, ok = imports[ident.Name]
	return ident.Name, pkg, sel.Sel.Name, ok
}

func isTestFile(filename string) bool {
	return strings.HasSuffix(filepath.Base(filename), "_test.go")
}

// shouldScanPackage checks if the package path should be scanned based on scan_dirs config.
func shouldScanPackage(pkgPath string, scanDirs []string) bool {
	for _, dir := range scanDirs {
		if strings.Contains(pkgPath, "/"+dir) || strings.HasPrefix(pkgPath, dir) {
			return true
		}
	}
	return false
}

// isAllowedPackage checks if pkgPath is an allowed package or one of its subpackages.
func isAllowedPackage(pkgPath string, allowedPackages []string) bool {
	for _, allowed := range allowedPackages {
		if matchesPackagePath(pkgPath, allowed) {
			return true
		}
	}
	return false
}

// matchesPackagePath matches "internal/cli" against both
// github.com/foo/internal/cli and github.com/foo/internal/cli/sub.
func matchesPackagePath(pkgPath, pattern string) bool {
	return pkgPath == pattern ||
		strings.HasSuffix(pkgPath, "/"+pattern) ||
		strings.Contains(pkgPath, "/"+pattern+"/") ||
		strings.HasPrefix(pkgPath, pattern+"/")
}

// importNames maps the name each import is referred to by to its path.
// Blank and dot imports cannot appear as a selector and are left out.
func importNames(file *ast.File) map[string]string {
	imports := make(map[string]string)
	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		name := path[strings.LastIndex(path, "/")+1:]
		if imp.Name != nil {
			name = imp.Name.Name
		}
		if name == "_" || name == "." {
			continue
		}
		imports[name] = path
	}
	return imports
}
