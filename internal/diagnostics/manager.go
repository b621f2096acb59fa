// Package diagnostics turns editor activity into batched Checkstyle runs.
//
// The Manager tracks open documents through mirror.SyncedFile, collects
// edited files in a pending set and runs one check cycle once edits have
// been quiet for the debounce window. A cycle flushes mirrors, checks the
// mirror (or on-disk) paths and publishes results under the real URIs.
package diagnostics

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/bolasblack/stylesync/internal/checker"
	"github.com/bolasblack/stylesync/internal/mirror"
	"github.com/bolasblack/stylesync/internal/util"
)

// DefaultDebounce is the quiet window before pending files are checked.
const DefaultDebounce = 200 * time.Millisecond

// State is the lifecycle state of a Manager.
type State int

const (
	StateDisabled State = iota
	StateListening
	StateNotListening
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateListening:
		return "listening"
	case StateNotListening:
		return "enabled (not listening)"
	default:
		return "unknown"
	}
}

// Options wires a Manager to its collaborators.
type Options struct {
	Source DocumentSource
	// Sync mirrors tracked documents. When nil a Synchronizer under a fresh
	// OS temp directory is used.
	Sync     *mirror.Synchronizer
	Checker  checker.Checker
	Sink     Sink
	Config   ConfigAccessor
	Reporter Reporter
	// Fs is used to verify that the configuration file exists.
	Fs       afero.Fs
	Debounce time.Duration
	Log      *slog.Logger
}

// Manager is the diagnostic orchestrator. It is safe for concurrent use.
type Manager struct {
	source   DocumentSource
	sync     *mirror.Synchronizer
	checker  checker.Checker
	sink     Sink
	config   ConfigAccessor
	reporter Reporter
	fs       afero.Fs
	debounce time.Duration
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       State
	unsubscribe func()
	files       map[string]*mirror.SyncedFile // uri -> tracked document
	pending     map[string]string             // uri -> real path
	timer       *time.Timer
	generation  uint64
	cycles      sync.WaitGroup
}

// NewManager creates a Manager in StateDisabled.
func NewManager(opts Options) *Manager {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	log := util.OrDiscard(opts.Log)
	synchronizer := opts.Sync
	if synchronizer == nil {
		synchronizer = mirror.NewSynchronizer(mirror.Options{Fs: fs, Dir: mirror.ScratchDir(""), Log: log})
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		source:   opts.Source,
		sync:     synchronizer,
		checker:  opts.Checker,
		sink:     opts.Sink,
		config:   opts.Config,
		reporter: opts.Reporter,
		fs:       fs,
		debounce: debounce,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		files:    make(map[string]*mirror.SyncedFile),
		pending:  make(map[string]string),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Activate enables the Manager. With autocheck on it starts listening to
// document events and tracks every document that is already open.
func (m *Manager) Activate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateDisabled || m.ctx.Err() != nil {
		return
	}
	if m.config.AutoCheck() {
		m.listenLocked()
	} else {
		m.state = StateNotListening
	}
}

// SetAutoCheck switches between listening and not listening. It has no
// effect on a disabled Manager.
func (m *Manager) SetAutoCheck(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.state == StateNotListening && enabled:
		m.listenLocked()
	case m.state == StateListening && !enabled:
		m.stopListeningLocked()
		m.state = StateNotListening
	}
}

func (m *Manager) listenLocked() {
	m.state = StateListening
	if m.source == nil {
		return
	}
	m.unsubscribe = m.source.Subscribe(m)
	for _, doc := range m.source.OpenDocuments() {
		m.openLocked(doc)
	}
}

func (m *Manager) stopListeningLocked() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	for uri, f := range m.files {
		f.Close()
		delete(m.files, uri)
	}
}

// Dispose stops listening, waits for running cycles and removes every
// mirror. The Manager cannot be activated again.
func (m *Manager) Dispose() error {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.generation++
	m.stopListeningLocked()
	m.pending = make(map[string]string)
	m.state = StateDisabled
	m.mu.Unlock()

	m.cancel()
	m.cycles.Wait()
	return m.sync.Dispose()
}

// GetDiagnostics schedules a check of resources. Resources that are not
// tracked documents are checked at their on-disk path. Resources outside the
// file scheme or with an unchecked extension are ignored.
func (m *Manager) GetDiagnostics(resources []Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateDisabled {
		return
	}
	requested := false
	for _, r := range resources {
		if !m.accepts(r.URI, r.Path) {
			continue
		}
		m.pending[r.URI] = r.Path
		requested = true
	}
	if requested {
		m.armLocked()
	}
}

// DocumentOpened implements Handler.
func (m *Manager) DocumentOpened(doc mirror.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateListening {
		return
	}
	m.openLocked(doc)
}

func (m *Manager) openLocked(doc mirror.Document) {
	uri := doc.URI()
	if !m.accepts(uri, doc.Path()) {
		return
	}
	if _, ok := m.files[uri]; ok {
		return
	}
	f := mirror.NewSyncedFile(doc, m.sync)
	m.files[uri] = f
	f.Open()
	m.requestLocked(uri, doc.Path())
}

// DocumentChanged implements Handler.
func (m *Manager) DocumentChanged(doc mirror.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateListening {
		return
	}
	f, ok := m.files[doc.URI()]
	if !ok {
		return
	}
	f.ContentChanged(doc)
	m.requestLocked(doc.URI(), doc.Path())
}

// DocumentClosed implements Handler.
func (m *Manager) DocumentClosed(doc mirror.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[doc.URI()]
	if !ok {
		return
	}
	delete(m.files, doc.URI())
	f.Close()
}

func (m *Manager) requestLocked(uri, path string) {
	m.pending[uri] = path
	m.armLocked()
}

// armLocked (re)starts the debounce timer. Every call within the window
// pushes the cycle back; there is never more than one timer.
func (m *Manager) armLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.generation++
	generation := m.generation
	m.timer = time.AfterFunc(m.debounce, func() { m.fire(generation) })
}

// fire runs a cycle unless the timer that called it has been superseded
// after it already expired.
func (m *Manager) fire(generation uint64) {
	m.mu.Lock()
	if m.state == StateDisabled || generation != m.generation {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.cycles.Add(1)
	m.mu.Unlock()

	defer m.cycles.Done()
	m.runCycle(m.ctx)
}

// Drain cancels the debounce timer, runs the pending cycle right away and
// waits for every running cycle to finish.
func (m *Manager) Drain(ctx context.Context) error {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.generation++
	run := m.state != StateDisabled && len(m.pending) > 0
	if run {
		m.cycles.Add(1)
	}
	m.mu.Unlock()

	if run {
		m.runCycle(ctx)
		m.cycles.Done()
	}

	done := make(chan struct{})
	go func() {
		m.cycles.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runCycle checks every pending file once. The pending set is taken over at
// the start, so files requested while the cycle runs go to the next one.
func (m *Manager) runCycle(ctx context.Context) {
	m.mu.Lock()
	pending := m.pending
	m.pending = make(map[string]string)
	m.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	if err := m.sync.Flush(ctx); err != nil {
		m.log.Warn("failed to flush mirrors", slog.String("error", err.Error()))
		return
	}

	checkMap := m.checkMap(pending)

	configPath := m.config.CheckConfigPath()
	if configPath == "" {
		m.log.Info("configuration not set, skip the check")
		return
	}
	if !checker.IsBuiltinConfig(configPath) {
		if exists, err := afero.Exists(m.fs, configPath); err != nil || !exists {
			m.report(&ConfigNotFoundError{Path: configPath})
			return
		}
	}

	paths := make([]string, 0, len(checkMap))
	for path, uri := range checkMap {
		m.sink.Clear(uri)
		paths = append(paths, path)
	}
	sort.Strings(paths)

	m.log.Debug("checking files", slog.Int("files", len(paths)))
	results, err := m.checker.Check(ctx, paths, configPath, m.config.Properties())
	if err != nil {
		m.log.Error("check failed", slog.String("error", err.Error()))
		m.report(err)
		return
	}

	summary := Summary{}
	for path, violations := range results {
		uri, ok := checkMap[filepath.Clean(path)]
		if !ok {
			m.log.Warn("unable to map check file back to real uri", slog.String("path", path))
			continue
		}
		m.sink.Publish(uri, violations)
		summary.Files++
		for _, v := range violations {
			if v.Severity != checker.SeverityIgnore {
				summary.Violations++
			}
		}
	}
	if m.reporter != nil {
		m.reporter.ReportSuccess(summary)
	}
}

// checkMap maps the path each pending file is checked under back to its URI.
func (m *Manager) checkMap(pending map[string]string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	checkMap := make(map[string]string, len(pending))
	for uri, path := range pending {
		if f, ok := m.files[uri]; ok {
			path = f.CheckPath()
		}
		checkMap[filepath.Clean(path)] = uri
	}
	return checkMap
}

func (m *Manager) report(err error) {
	if m.reporter != nil {
		m.reporter.ReportError(err)
	}
}

func (m *Manager) accepts(uri, path string) bool {
	if !strings.HasPrefix(uri, "file:") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range m.config.Extensions() {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}
