package diagnostics

import (
	"fmt"

	"github.com/bolasblack/stylesync/internal/checker"
	"github.com/bolasblack/stylesync/internal/mirror"
)

// Handler receives document lifecycle events.
type Handler interface {
	DocumentOpened(doc mirror.Document)
	DocumentChanged(doc mirror.Document)
	DocumentClosed(doc mirror.Document)
}

// DocumentSource supplies editor buffers and their lifecycle events.
type DocumentSource interface {
	// Subscribe registers h and returns a function that removes it.
	// Subscribe must not call h synchronously.
	Subscribe(h Handler) (unsubscribe func())
	// OpenDocuments returns the buffers that are currently open.
	OpenDocuments() []mirror.Document
}

// Sink stores per-resource results. Publish replaces whatever was stored
// for the resource.
type Sink interface {
	Publish(uri string, violations []checker.Violation)
	Clear(uri string)
}

// ConfigAccessor exposes the current configuration. Values are read once per
// cycle and never cached by the Manager.
type ConfigAccessor interface {
	CheckConfigPath() string
	Properties() map[string]string
	AutoCheck() bool
	// Extensions lists the file extensions that are checked, with the dot.
	Extensions() []string
}

// Summary describes a successful cycle.
type Summary struct {
	Files int
	// Violations excludes ignore-severity entries, which sinks never show.
	Violations int
}

// Reporter surfaces cycle outcomes to the user.
type Reporter interface {
	ReportError(err error)
	ReportSuccess(summary Summary)
}

// Resource identifies a file to check: its stable URI and its path on disk.
type Resource struct {
	URI  string
	Path string
}

// ConfigNotFoundError reports a configuration path that does not exist.
type ConfigNotFoundError struct {
	Path string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("checkstyle configuration %s does not exist", e.Path)
}
