package lsp

import (
	"sync"

	"github.com/spf13/afero"

	"github.com/bolasblack/stylesync/internal/diagnostics"
	"github.com/bolasblack/stylesync/internal/mirror"
)

// document is an open editor buffer as seen through the protocol.
type document struct {
	uri  string
	path string

	mu      sync.Mutex
	version int
	text    string
	dirty   bool
}

func (d *document) URI() string  { return d.uri }
func (d *document) Path() string { return d.path }

func (d *document) IsDirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

func (d *document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// documentStore tracks open documents and fans their lifecycle events out
// to subscribers. It implements diagnostics.DocumentSource.
type documentStore struct {
	fs afero.Fs

	mu       sync.Mutex
	docs     map[string]*document
	handlers map[int]diagnostics.Handler
	nextID   int
}

func newDocumentStore(fs afero.Fs) *documentStore {
	return &documentStore{
		fs:       fs,
		docs:     make(map[string]*document),
		handlers: make(map[int]diagnostics.Handler),
	}
}

// Subscribe implements diagnostics.DocumentSource.
func (s *documentStore) Subscribe(h diagnostics.Handler) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = h
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}
}

// OpenDocuments implements diagnostics.DocumentSource.
func (s *documentStore) OpenDocuments() []mirror.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := make([]mirror.Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	return docs
}

func (s *documentStore) get(uri string) (*document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[uri]
	return d, ok
}

func (s *documentStore) uris() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	uris := make([]string, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	return uris
}

func (s *documentStore) subscribers() []diagnostics.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	handlers := make([]diagnostics.Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	return handlers
}

// open registers a buffer. It is dirty when its text differs from the file
// on disk, or when the file cannot be read.
func (s *documentStore) open(uri, path string, version int, text string) *document {
	dirty := true
	if data, err := afero.ReadFile(s.fs, path); err == nil {
		dirty = string(data) != text
	}
	d := &document{uri: uri, path: path, version: version, text: text, dirty: dirty}

	s.mu.Lock()
	s.docs[uri] = d
	s.mu.Unlock()

	for _, h := range s.subscribers() {
		h.DocumentOpened(d)
	}
	return d
}

func (s *documentStore) change(uri string, version int, changes []textDocumentContentChangeEvent) (*document, bool) {
	d, ok := s.get(uri)
	if !ok {
		return nil, false
	}
	d.mu.Lock()
	d.text = applyChanges(d.text, changes)
	d.version = version
	d.dirty = true
	d.mu.Unlock()

	for _, h := range s.subscribers() {
		h.DocumentChanged(d)
	}
	return d, true
}

// save marks a buffer as matching the disk again.
func (s *documentStore) save(uri string, text *string) (*document, bool) {
	d, ok := s.get(uri)
	if !ok {
		return nil, false
	}
	d.mu.Lock()
	changed := text != nil && *text != d.text
	if text != nil {
		d.text = *text
	}
	d.dirty = false
	d.mu.Unlock()

	if changed {
		for _, h := range s.subscribers() {
			h.DocumentChanged(d)
		}
	}
	return d, true
}

func (s *documentStore) close(uri string) (*document, bool) {
	s.mu.Lock()
	d, ok := s.docs[uri]
	delete(s.docs, uri)
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	for _, h := range s.subscribers() {
		h.DocumentClosed(d)
	}
	return d, true
}
