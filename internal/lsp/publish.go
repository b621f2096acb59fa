package lsp

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/bolasblack/stylesync/internal/checker"
	"github.com/bolasblack/stylesync/internal/diagnostics"
	"github.com/bolasblack/stylesync/internal/mirror"
)

const diagnosticSource = "Checkstyle"

// LSP diagnostic severities.
const (
	severityError       = 1
	severityWarning     = 2
	severityInformation = 3
)

type notifier interface {
	notify(method string, params any) error
}

// publisher is the diagnostics.Sink that forwards results to the client.
type publisher struct {
	out notifier
	log *slog.Logger

	mu        sync.Mutex
	published map[string]int // uri -> number of diagnostics last sent
}

func newPublisher(out notifier, log *slog.Logger) *publisher {
	return &publisher{out: out, log: log, published: make(map[string]int)}
}

// Publish implements diagnostics.Sink.
func (p *publisher) Publish(uri string, violations []checker.Violation) {
	list := toDiagnostics(violations)
	p.mu.Lock()
	p.published[uri] = len(list)
	p.mu.Unlock()
	p.send(uri, list)
}

// Clear implements diagnostics.Sink.
func (p *publisher) Clear(uri string) {
	p.mu.Lock()
	_, had := p.published[uri]
	delete(p.published, uri)
	p.mu.Unlock()
	if had {
		p.send(uri, nil)
	}
}

// URIs returns every resource that currently has published diagnostics.
func (p *publisher) URIs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	uris := make([]string, 0, len(p.published))
	for uri := range p.published {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

// ClearAll withdraws every published diagnostic.
func (p *publisher) ClearAll() {
	for _, uri := range p.URIs() {
		p.Clear(uri)
	}
}

func (p *publisher) send(uri string, list []lspDiagnostic) {
	if list == nil {
		list = []lspDiagnostic{}
	}
	err := p.out.notify("textDocument/publishDiagnostics", publishDiagnosticsParams{URI: uri, Diagnostics: list})
	if err != nil {
		p.log.Warn("failed to publish diagnostics", slog.String("uri", uri), slog.String("error", err.Error()))
	}
}

// toDiagnostics converts violations, dropping ignored ones. A violation
// covers its line from the reported column to the end.
func toDiagnostics(violations []checker.Violation) []lspDiagnostic {
	list := make([]lspDiagnostic, 0, len(violations))
	for _, v := range violations {
		if v.Severity == checker.SeverityIgnore {
			continue
		}
		startLine := max(v.Line-1, 0)
		startChar := max(v.Column-1, 0)
		list = append(list, lspDiagnostic{
			Range: lspRange{
				Start: position{Line: startLine, Character: startChar},
				End:   position{Line: startLine + 1, Character: 0},
			},
			Severity: severityOf(v.Severity),
			Code:     v.RuleID,
			Source:   diagnosticSource,
			Message:  v.Message,
		})
	}
	return list
}

func severityOf(s checker.Severity) int {
	switch s {
	case checker.SeverityInfo:
		return severityInformation
	case checker.SeverityWarning:
		return severityWarning
	default:
		return severityError
	}
}

// reporter implements diagnostics.Reporter and receives abandoned mirror
// writes. Errors are shown to the user and mark the status as failed.
type reporter struct {
	out notifier
	log *slog.Logger
}

// ReportError implements diagnostics.Reporter.
func (r *reporter) ReportError(err error) {
	r.log.Debug("reporting error", slog.String("error", err.Error()))

	message := fmt.Sprintf("Checkstyle failed: %v", err)
	var modErr *checker.ModuleInitError
	var retryErr *mirror.RetryError
	var notFound *diagnostics.ConfigNotFoundError
	switch {
	case errors.As(err, &modErr):
		message = modErr.Hint()
	case errors.As(err, &retryErr):
		message = fmt.Sprintf("Unable to sync unsaved changes of %s: %v", retryErr.RealPath, retryErr.Err)
	case errors.As(err, &notFound):
		message = fmt.Sprintf("Checkstyle configuration %s does not exist.", notFound.Path)
	case errors.Is(err, checker.ErrNoJar):
		message = "Checkstyle jar is not configured. Set checkstyle.jar in .stylesync.toml."
	}

	r.notify("window/showMessage", showMessageParams{Type: messageError, Message: message})
	r.notify("stylesync/status", statusParams{State: "error", Message: message})
}

// ReportSuccess implements diagnostics.Reporter.
func (r *reporter) ReportSuccess(summary diagnostics.Summary) {
	r.notify("stylesync/status", statusParams{State: "ok", Files: summary.Files, Violations: summary.Violations})
}

func (r *reporter) notify(method string, params any) {
	if err := r.out.notify(method, params); err != nil {
		r.log.Warn("failed to send notification", slog.String("method", method), slog.String("error", err.Error()))
	}
}
