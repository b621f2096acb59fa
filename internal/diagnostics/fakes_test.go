package diagnostics

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/bolasblack/stylesync/internal/checker"
	"github.com/bolasblack/stylesync/internal/mirror"
)

type fakeDoc struct {
	mu    sync.Mutex
	uri   string
	path  string
	dirty bool
	text  string
}

func newDoc(path, text string) *fakeDoc {
	return &fakeDoc{uri: "file://" + path, path: path, text: text}
}

func (d *fakeDoc) URI() string  { return d.uri }
func (d *fakeDoc) Path() string { return d.path }

func (d *fakeDoc) IsDirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

func (d *fakeDoc) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

func (d *fakeDoc) edit(text string) {
	d.mu.Lock()
	d.text, d.dirty = text, true
	d.mu.Unlock()
}

type fakeSource struct {
	mu      sync.Mutex
	handler Handler
	docs    []mirror.Document
}

func (s *fakeSource) Subscribe(h Handler) func() {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.handler = nil
		s.mu.Unlock()
	}
}

func (s *fakeSource) OpenDocuments() []mirror.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mirror.Document(nil), s.docs...)
}

func (s *fakeSource) current() Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

func (s *fakeSource) open(doc *fakeDoc) {
	s.mu.Lock()
	s.docs = append(s.docs, doc)
	s.mu.Unlock()
	if h := s.current(); h != nil {
		h.DocumentOpened(doc)
	}
}

func (s *fakeSource) change(doc *fakeDoc, text string) {
	doc.edit(text)
	if h := s.current(); h != nil {
		h.DocumentChanged(doc)
	}
}

func (s *fakeSource) close(doc *fakeDoc) {
	s.mu.Lock()
	for i, d := range s.docs {
		if d == mirror.Document(doc) {
			s.docs = append(s.docs[:i], s.docs[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	if h := s.current(); h != nil {
		h.DocumentClosed(doc)
	}
}

type recordingSink struct {
	mu        sync.Mutex
	published map[string][]checker.Violation
	publishes []string
	clears    []string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{published: make(map[string][]checker.Violation)}
}

func (s *recordingSink) Publish(uri string, violations []checker.Violation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published[uri] = violations
	s.publishes = append(s.publishes, uri)
}

func (s *recordingSink) Clear(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.published, uri)
	s.clears = append(s.clears, uri)
}

func (s *recordingSink) snapshot() (map[string][]checker.Violation, []string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	published := make(map[string][]checker.Violation, len(s.published))
	for k, v := range s.published {
		published[k] = v
	}
	return published, append([]string(nil), s.publishes...), append([]string(nil), s.clears...)
}

// scriptedChecker records every call together with the content of each
// checked file at the time of the call.
type scriptedChecker struct {
	fs afero.Fs

	mu       sync.Mutex
	calls    [][]string
	contents []map[string]string
	respond  func(paths []string) (checker.Result, error)
}

func (c *scriptedChecker) Check(_ context.Context, paths []string, _ string, _ map[string]string) (checker.Result, error) {
	contents := make(map[string]string, len(paths))
	for _, p := range paths {
		data, err := afero.ReadFile(c.fs, p)
		if err == nil {
			contents[p] = string(data)
		}
	}

	c.mu.Lock()
	c.calls = append(c.calls, append([]string(nil), paths...))
	c.contents = append(c.contents, contents)
	respond := c.respond
	c.mu.Unlock()

	if respond == nil {
		result := checker.Result{}
		for _, p := range paths {
			result[p] = []checker.Violation{{Line: 1, Message: "from " + p, Severity: checker.SeverityWarning, RuleID: "FakeCheck"}}
		}
		return result, nil
	}
	return respond(paths)
}

func (c *scriptedChecker) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *scriptedChecker) call(i int) ([]string, map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[i], c.contents[i]
}

type fakeConfig struct {
	mu         sync.Mutex
	configPath string
	properties map[string]string
	autoCheck  bool
	extensions []string
}

func (c *fakeConfig) CheckConfigPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configPath
}

func (c *fakeConfig) Properties() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.properties
}

func (c *fakeConfig) AutoCheck() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoCheck
}

func (c *fakeConfig) Extensions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.extensions
}

type recordingReporter struct {
	mu        sync.Mutex
	errs      []error
	summaries []Summary
}

func (r *recordingReporter) ReportError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingReporter) ReportSuccess(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, s)
}

func (r *recordingReporter) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func isMirrorPath(p string) bool {
	return strings.HasPrefix(p, scratchDir+"/")
}

// partFailingFs rejects every temporary mirror write.
type partFailingFs struct {
	afero.Fs
}

func (f *partFailingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if strings.HasSuffix(name, ".part") {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return f.Fs.OpenFile(name, flag, perm)
}
