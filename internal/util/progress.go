// Package util provides shared plumbing for the CLI, the language server and
// the checker: command execution, environment injection, logging and
// progress output.
package util

import (
	"fmt"
	"io"
)

// Progress writes a progress message if not in quiet mode.
func Progress(w io.Writer, format string, args ...any) {
	if w != nil {
		_, _ = fmt.Fprintf(w, format, args...)
	}
}

// ProgressStep writes a progress message with → prefix (step in progress).
func ProgressStep(w io.Writer, format string, args ...any) {
	Progress(w, "→ "+format, args...)
}

// ProgressDone writes a progress message with ✓ prefix (step completed).
func ProgressDone(w io.Writer, format string, args ...any) {
	Progress(w, "✓ "+format, args...)
}

// ProgressFail writes a progress message with ✗ prefix (step failed).
func ProgressFail(w io.Writer, format string, args ...any) {
	Progress(w, "✗ "+format, args...)
}
