// Package checker runs Checkstyle over a set of files and returns the
// violations it reports, keyed by the path each file was checked under.
package checker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Severity is the Checkstyle severity level of a violation.
type Severity string

const (
	SeverityIgnore  Severity = "ignore"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ParseSeverity normalizes a severity name. Unknown names map to error.
func ParseSeverity(name string) Severity {
	switch s := Severity(strings.ToLower(strings.TrimSpace(name))); s {
	case SeverityIgnore, SeverityInfo, SeverityWarning, SeverityError:
		return s
	default:
		return SeverityError
	}
}

// Violation is one reported problem. Line and Column are 1-based; a zero
// Column means the whole line.
type Violation struct {
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	RuleID   string   `json:"ruleId"`
}

// Result maps each checked path to its violations.
type Result map[string][]Violation

// Checker checks files against a configuration. Implementations must allow
// a new call to start before a previous one has returned.
type Checker interface {
	Check(ctx context.Context, paths []string, configPath string, properties map[string]string) (Result, error)
}

// Builtin configurations shipped inside the Checkstyle jar.
const (
	GoogleChecks = "/google_checks.xml"
	SunChecks    = "/sun_checks.xml"
)

// IsBuiltinConfig reports whether path names a configuration bundled with
// Checkstyle rather than a file on disk.
func IsBuiltinConfig(path string) bool {
	return path == GoogleChecks || path == SunChecks
}

var (
	// ErrNoReport is returned when Checkstyle exits without an XML report.
	ErrNoReport = errors.New("checkstyle produced no report")
	// ErrNoJar is returned when no Checkstyle jar is configured.
	ErrNoJar = errors.New("checkstyle jar is not configured")
)

// ModuleInitError is Checkstyle failing to set up a module of the
// configuration, usually a config written for another Checkstyle version.
type ModuleInitError struct {
	Module  string
	Message string
}

func (e *ModuleInitError) Error() string {
	return fmt.Sprintf("cannot initialize module %s - %s", e.Module, e.Message)
}

// Hint is the user-facing explanation of the failure.
func (e *ModuleInitError) Hint() string {
	return fmt.Sprintf("Module %s initialization failed. It may be caused by wrong configuration or incompatible version.", e.Module)
}

var moduleInitRe = regexp.MustCompile(`cannot initialize module (.+?) - (.*)`)

// detectModuleInit extracts a ModuleInitError from tool output.
func detectModuleInit(output string) *ModuleInitError {
	m := moduleInitRe.FindStringSubmatch(output)
	if m == nil {
		return nil
	}
	return &ModuleInitError{Module: m[1], Message: strings.TrimSpace(m[2])}
}
