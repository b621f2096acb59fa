// Package mirror keeps on-disk copies of unsaved editor buffers so that a
// file-based checker can read them.
//
// Callers record intent with Open, Change and Close; nothing touches the
// filesystem until Flush. Flush applies queued requests strictly in
// submission order per real path, with different paths running concurrently.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/bolasblack/stylesync/internal/util"
)

// DefaultMaxAttempts bounds how often a single mirror request is tried.
const DefaultMaxAttempts = 5

// ErrDisposed is returned by Flush after Dispose.
var ErrDisposed = errors.New("mirror: synchronizer disposed")

// RetryError reports a request that was abandoned after MaxAttempts failures.
type RetryError struct {
	RealPath string
	Op       string
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("failed to %s mirror of %s after %d attempts: %v", e.Op, e.RealPath, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// Options configures a Synchronizer.
type Options struct {
	// Fs is the filesystem holding the scratch directory.
	Fs afero.Fs
	// Dir is the scratch directory. It is owned exclusively by the
	// Synchronizer and removed by Dispose.
	Dir string
	// MaxAttempts bounds retries per request (default DefaultMaxAttempts).
	MaxAttempts int
	// Log receives per-attempt failures and abandoned requests.
	Log *slog.Logger
	// OnError is called exactly once for every abandoned request with a
	// *RetryError. It must not block.
	OnError func(err error)
}

type opKind int

const (
	opCreate opKind = iota
	opWrite
	opRemove
)

func (k opKind) String() string {
	switch k {
	case opCreate:
		return "create"
	case opWrite:
		return "write"
	case opRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// entry is one managed lifetime of a real file, from Open to Close.
// A reopened file gets a fresh entry, so requests queued for the previous
// lifetime still act on the path that lifetime used.
type entry struct {
	realPath string
	mirror   string
	salt     int
	// scheduled is set once a create or write for this entry has been handed
	// to the I/O queue. Until then a Close needs no I/O at all.
	scheduled bool
	// written is set while the file at mirror holds a successfully written
	// snapshot. A relocation clears it.
	written bool
}

type request struct {
	kind    opKind
	entry   *entry
	content []byte
}

// Synchronizer mirrors buffers into a scratch directory.
type Synchronizer struct {
	fs          afero.Fs
	dir         string
	maxAttempts int
	log         *slog.Logger
	onError     func(err error)

	mu       sync.Mutex
	managed  map[string]*entry    // real path -> live entry
	pending  map[string][]request // real path -> queued requests
	order    []string             // real paths in first-submission order
	queue    *keyedQueue
	disposed bool
}

// NewSynchronizer creates a Synchronizer. The scratch directory is created
// lazily by the first write.
func NewSynchronizer(opts Options) *Synchronizer {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	onError := opts.OnError
	if onError == nil {
		onError = func(error) {}
	}
	return &Synchronizer{
		fs:          fs,
		dir:         opts.Dir,
		maxAttempts: attempts,
		log:         util.OrDiscard(opts.Log),
		onError:     onError,
		managed:     make(map[string]*entry),
		pending:     make(map[string][]request),
		queue:       newKeyedQueue(),
	}
}

// Dir returns the scratch directory.
func (s *Synchronizer) Dir() string { return s.dir }

// Open makes realPath managed and queues creation of its mirror.
// Opening an already managed path is a no-op. Returns the mirror path.
func (s *Synchronizer) Open(realPath string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ""
	}
	if e, ok := s.managed[realPath]; ok {
		return e.mirror
	}
	e := &entry{realPath: realPath}
	e.mirror = filepath.Join(s.dir, MirrorName(realPath, e.salt))
	s.managed[realPath] = e
	s.enqueueLocked(request{kind: opCreate, entry: e})
	return e.mirror
}

// Change queues a whole-content write for a managed path.
// Paths that are not managed are ignored.
func (s *Synchronizer) Change(realPath, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	e, ok := s.managed[realPath]
	if !ok {
		return
	}
	s.enqueueLocked(request{kind: opWrite, entry: e, content: []byte(content)})
}

// Close releases realPath and queues removal of its mirror. Writes still
// waiting in the queue for this path are dropped.
func (s *Synchronizer) Close(realPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	e, ok := s.managed[realPath]
	if !ok {
		return
	}
	delete(s.managed, realPath)
	s.enqueueLocked(request{kind: opRemove, entry: e})
}

// HasMirror reports whether realPath is managed.
func (s *Synchronizer) HasMirror(realPath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.managed[realPath]
	return ok
}

// MirrorPath returns the current mirror path of a managed realPath.
func (s *Synchronizer) MirrorPath(realPath string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.managed[realPath]
	if !ok {
		return "", false
	}
	return e.mirror, true
}

// WrittenMirrorPath returns the mirror path of a managed realPath once a
// create or write has succeeded there. A mirror whose writes were all
// abandoned is reported as missing.
func (s *Synchronizer) WrittenMirrorPath(realPath string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.managed[realPath]
	if !ok || !e.written {
		return "", false
	}
	return e.mirror, true
}

// enqueueLocked appends req to its path's queue, coalescing with requests
// that have not been flushed yet:
//   - a write supersedes a queued create or write of the same lifetime
//   - a remove drops queued creates and writes of the same lifetime, and
//     is itself dropped when nothing was ever scheduled for that lifetime
func (s *Synchronizer) enqueueLocked(req request) {
	key := req.entry.realPath
	queue := s.pending[key]

	switch req.kind {
	case opCreate:
		if n := len(queue); n > 0 && queue[n-1].entry == req.entry && queue[n-1].kind != opRemove {
			return
		}
	case opWrite:
		if n := len(queue); n > 0 && queue[n-1].entry == req.entry && queue[n-1].kind != opRemove {
			queue[n-1] = req
			s.pending[key] = queue
			return
		}
	case opRemove:
		for n := len(queue); n > 0 && queue[n-1].entry == req.entry && queue[n-1].kind != opRemove; n = len(queue) {
			queue = queue[:n-1]
		}
		if !req.entry.scheduled {
			s.setQueueLocked(key, queue)
			return
		}
	}
	s.setQueueLocked(key, append(queue, req))
}

func (s *Synchronizer) setQueueLocked(key string, queue []request) {
	if len(queue) == 0 {
		delete(s.pending, key)
		return
	}
	if _, ok := s.pending[key]; !ok {
		s.order = append(s.order, key)
	}
	s.pending[key] = queue
}

// Flush hands every queued request to the per-path I/O queue and waits until
// all paths, including those still busy from earlier flushes, have settled.
// Per-request failures are retried and reported through OnError; they never
// fail Flush. ctx only bounds the wait.
func (s *Synchronizer) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	pending, order := s.pending, s.order
	s.pending = make(map[string][]request)
	s.order = nil
	for _, key := range order {
		for _, req := range pending[key] {
			if req.kind != opRemove {
				req.entry.scheduled = true
			}
			s.queue.Submit(key, func() { s.apply(req) })
		}
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, tail := range s.queue.Tails() {
		g.Go(func() error {
			select {
			case <-tail:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}

// Dispose waits for in-flight I/O and deletes the scratch directory.
func (s *Synchronizer) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	s.pending = make(map[string][]request)
	s.order = nil
	s.managed = make(map[string]*entry)
	s.mu.Unlock()

	for _, tail := range s.queue.Tails() {
		<-tail
	}
	if s.dir == "" {
		return nil
	}
	if err := s.fs.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove scratch directory %s: %w", s.dir, err)
	}
	return nil
}

func (s *Synchronizer) apply(req request) {
	defer func() {
		if r := recover(); r != nil {
			s.abandon(req, 1, fmt.Errorf("panic: %v", r))
		}
	}()

	var op func(path string) error
	switch req.kind {
	case opCreate:
		op = s.createFile
	case opWrite:
		op = func(path string) error { return s.writeFile(path, req.content) }
	case opRemove:
		op = s.removeFile
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		path := s.mirrorOf(req.entry)
		lastErr = op(path)
		if lastErr == nil {
			if req.kind != opRemove {
				s.markWritten(req.entry, path)
			}
			return
		}
		s.log.Debug("mirror operation failed",
			slog.String("op", req.kind.String()),
			slog.String("path", req.entry.realPath),
			slog.String("mirror", path),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()))
		if attempt < s.maxAttempts && req.kind != opRemove {
			s.relocate(req.entry, path)
		}
	}
	s.abandon(req, s.maxAttempts, lastErr)
}

func (s *Synchronizer) abandon(req request, attempts int, err error) {
	rerr := &RetryError{
		RealPath: req.entry.realPath,
		Op:       req.kind.String(),
		Attempts: attempts,
		Err:      err,
	}
	s.log.Error("abandoned mirror request", slog.String("error", rerr.Error()))
	s.onError(rerr)
}

func (s *Synchronizer) mirrorOf(e *entry) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.mirror
}

func (s *Synchronizer) markWritten(e *entry, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.mirror == path {
		e.written = true
	}
}

// relocate moves e to a freshly salted mirror path and drops the old file,
// which may hold a partial write.
func (s *Synchronizer) relocate(e *entry, failed string) {
	s.mu.Lock()
	if e.mirror == failed {
		e.written = false
		e.salt++
		e.mirror = filepath.Join(s.dir, MirrorName(e.realPath, e.salt))
	}
	s.mu.Unlock()
	_ = s.fs.Remove(failed)
}

func (s *Synchronizer) createFile(path string) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// writeFile replaces the mirror through a rename so a checker still reading
// the previous content never sees a half-written file.
func (s *Synchronizer) writeFile(path string, content []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	part := path + ".part"
	if err := afero.WriteFile(s.fs, part, content, 0o644); err != nil {
		_ = s.fs.Remove(part)
		return err
	}
	if err := s.fs.Rename(part, path); err != nil {
		_ = s.fs.Remove(part)
		return err
	}
	return nil
}

func (s *Synchronizer) removeFile(path string) error {
	if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
