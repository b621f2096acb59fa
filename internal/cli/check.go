package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bolasblack/stylesync/internal/checker"
	"github.com/bolasblack/stylesync/internal/config"
	"github.com/bolasblack/stylesync/internal/diagnostics"
	"github.com/bolasblack/stylesync/internal/mirror"
	"github.com/bolasblack/stylesync/internal/util"
)

var (
	checkConfig string
	checkJSON   bool
)

var checkCmd = &cobra.Command{
	Use:   "check FILE...",
	Short: "Check files on disk once and print the violations",
	Long: `Run one Checkstyle pass over the given files as they are on disk.

Files whose extension is not listed in checkstyle.extensions are skipped.
Exits with a non-zero status when any error-severity violation is found.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkConfig, "config", "", "Configuration file (default: ./.stylesync.toml)")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the report as JSON")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cwd, err := getCwd()
	if err != nil {
		return err
	}
	env := envFor(cmd)

	report, err := checkFiles(commandContext(cmd), env, cwd, checkConfig, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if checkJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(out, cwd, report)
	}

	if n := report.count(checker.SeverityError); n > 0 {
		return fmt.Errorf("found %d error(s)", n)
	}
	return nil
}

// checkReport is the outcome of a one-shot check.
type checkReport struct {
	Files   []fileReport `json:"files"`
	Skipped []string     `json:"skipped,omitempty"`
}

type fileReport struct {
	Path       string              `json:"path"`
	Violations []checker.Violation `json:"violations"`
}

func (r *checkReport) count(severity checker.Severity) int {
	n := 0
	for _, f := range r.Files {
		for _, v := range f.Violations {
			if v.Severity == severity {
				n++
			}
		}
	}
	return n
}

// checkFiles runs a single diagnostics cycle over files through the same
// Manager the language server uses, with no open documents.
func checkFiles(ctx context.Context, env *util.Env, cwd, configPath string, files []string) (*checkReport, error) {
	// Inputs are only read; the scratch dir and properties file need env.
	input := env.ReadOnly()
	cfg, _, err := loadConfig(input, cwd, configPath, false)
	if err != nil {
		return nil, err
	}
	if cfg.Checkstyle.Configuration == "" {
		return nil, fmt.Errorf("checkstyle.configuration is not set in %s", util.ConfigFilename)
	}
	chk, err := newChecker(env, cfg)
	if err != nil {
		return nil, err
	}

	report := &checkReport{}
	collector := newCollector()
	for _, file := range files {
		path := file
		if !filepath.IsAbs(path) {
			path = filepath.Join(cwd, path)
		}
		path = filepath.Clean(path)
		if _, err := input.Fs.Stat(path); err != nil {
			return nil, fmt.Errorf("cannot check %s: %w", file, err)
		}
		if !hasExtension(path, cfg.Checkstyle.Extensions) {
			report.Skipped = append(report.Skipped, path)
			continue
		}
		collector.track(path)
	}
	if len(collector.paths) == 0 {
		return report, nil
	}

	synchronizer := mirror.NewSynchronizer(mirror.Options{
		Fs:  env.Fs,
		Dir: mirror.ScratchDir(""),
		Log: env.Log,
	})
	manager := diagnostics.NewManager(diagnostics.Options{
		Source:   noDocuments{},
		Sync:     synchronizer,
		Checker:  chk,
		Sink:     collector,
		Config:   staticConfig{cfg.Checkstyle},
		Reporter: collector,
		Fs:       env.Fs,
		Debounce: cfg.Sync.Debounce(),
		Log:      env.Log,
	})
	manager.Activate()
	manager.GetDiagnostics(collector.resources())
	drainErr := manager.Drain(ctx)
	if err := manager.Dispose(); err != nil {
		env.Log.Warn("failed to clean up", slog.String("error", err.Error()))
	}
	if drainErr != nil {
		return nil, drainErr
	}
	if err := collector.failure(); err != nil {
		return nil, err
	}

	report.Files = collector.files()
	return report, nil
}

func hasExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range extensions {
		if allowed == ext {
			return true
		}
	}
	return false
}

func fileURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// collector is the Sink and Reporter of a one-shot check.
type collector struct {
	paths map[string]string // uri -> path

	mu      sync.Mutex
	results map[string][]checker.Violation
	errs    []error
}

func newCollector() *collector {
	return &collector{
		paths:   make(map[string]string),
		results: make(map[string][]checker.Violation),
	}
}

func (c *collector) track(path string) {
	c.paths[fileURI(path)] = path
}

func (c *collector) resources() []diagnostics.Resource {
	out := make([]diagnostics.Resource, 0, len(c.paths))
	for uri, path := range c.paths {
		out = append(out, diagnostics.Resource{URI: uri, Path: path})
	}
	return out
}

// Publish implements diagnostics.Sink.
func (c *collector) Publish(uri string, violations []checker.Violation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[uri] = violations
}

// Clear implements diagnostics.Sink.
func (c *collector) Clear(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.results, uri)
}

// ReportError implements diagnostics.Reporter.
func (c *collector) ReportError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

// ReportSuccess implements diagnostics.Reporter.
func (c *collector) ReportSuccess(diagnostics.Summary) {}

func (c *collector) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := errors.Join(c.errs...)
	var modErr *checker.ModuleInitError
	if errors.As(err, &modErr) {
		return fmt.Errorf("%s: %w", modErr.Hint(), err)
	}
	return err
}

// files returns every tracked file in path order, including clean ones.
func (c *collector) files() []fileReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]fileReport, 0, len(c.paths))
	for uri, path := range c.paths {
		violations := append([]checker.Violation{}, c.results[uri]...)
		sort.SliceStable(violations, func(i, j int) bool {
			if violations[i].Line != violations[j].Line {
				return violations[i].Line < violations[j].Line
			}
			return violations[i].Column < violations[j].Column
		})
		out = append(out, fileReport{Path: path, Violations: violations})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// noDocuments is a DocumentSource without open buffers.
type noDocuments struct{}

func (noDocuments) Subscribe(diagnostics.Handler) func() { return func() {} }
func (noDocuments) OpenDocuments() []mirror.Document     { return nil }

// staticConfig serves a resolved configuration that never changes.
type staticConfig struct {
	cs config.Checkstyle
}

func (s staticConfig) CheckConfigPath() string       { return s.cs.Configuration }
func (s staticConfig) Properties() map[string]string { return s.cs.CheckProperties() }
func (s staticConfig) AutoCheck() bool               { return false }
func (s staticConfig) Extensions() []string          { return s.cs.Extensions }

var (
	severityColors = map[checker.Severity]*color.Color{
		checker.SeverityError:   color.New(color.FgRed, color.Bold),
		checker.SeverityWarning: color.New(color.FgYellow),
		checker.SeverityInfo:    color.New(color.FgCyan),
	}
	pathColor = color.New(color.Bold)
	ruleColor = color.New(color.Faint)
)

// printReport writes one line per violation, relative to cwd, then a summary.
func printReport(w io.Writer, cwd string, report *checkReport) {
	total := 0
	for _, f := range report.Files {
		name := f.Path
		if rel, err := filepath.Rel(cwd, f.Path); err == nil && !strings.HasPrefix(rel, "..") {
			name = rel
		}
		for _, v := range f.Violations {
			c, ok := severityColors[v.Severity]
			if !ok {
				continue
			}
			total++
			fmt.Fprintf(w, "%s:%d:%d: %s %s", pathColor.Sprint(name), v.Line, v.Column, c.Sprint(string(v.Severity)), v.Message)
			if v.RuleID != "" {
				fmt.Fprintf(w, " %s", ruleColor.Sprintf("[%s]", v.RuleID))
			}
			fmt.Fprintln(w)
		}
	}
	for _, path := range report.Skipped {
		progressFail(w, "Skipped %s (extension not checked)\n", path)
	}
	progressDone(w, "%d file(s) checked, %d violation(s)\n", len(report.Files), total)
}
