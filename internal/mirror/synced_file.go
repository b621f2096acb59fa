package mirror

import "sync"

// Document is the minimal view of an editor buffer the mirror needs.
type Document interface {
	// URI is the stable identity of the real resource.
	URI() string
	// Path is the filesystem path of the real resource.
	Path() string
	// IsDirty reports unsaved modifications.
	IsDirty() bool
	// Text returns a point-in-time snapshot of the full buffer.
	Text() string
}

// SyncedFile tracks whether one open document has a mirror.
// All methods only queue intent on the Synchronizer; the on-disk state is
// correct after the next Flush.
type SyncedFile struct {
	sync *Synchronizer

	mu       sync.Mutex
	doc      Document
	mirrored bool
}

// NewSyncedFile binds doc to s. Call Open before anything else.
func NewSyncedFile(doc Document, s *Synchronizer) *SyncedFile {
	return &SyncedFile{doc: doc, sync: s}
}

// RealURI returns the identity of the real resource.
func (f *SyncedFile) RealURI() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc.URI()
}

// RealPath returns the filesystem path of the real resource.
func (f *SyncedFile) RealPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc.Path()
}

// CheckPath is the path the checker should read: the mirror while one is
// managed and written, the real file otherwise.
func (f *SyncedFile) CheckPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := f.doc.Path()
	if !f.mirrored {
		return path
	}
	if mirror, ok := f.sync.WrittenMirrorPath(path); ok {
		return mirror
	}
	return path
}

// Open requests a mirror right away if the buffer already has unsaved
// changes. A clean buffer gets its mirror on the first edit.
func (f *SyncedFile) Open() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mirrored || !f.doc.IsDirty() {
		return
	}
	f.sync.Open(f.doc.Path())
	f.sync.Change(f.doc.Path(), f.doc.Text())
	f.mirrored = true
}

// ContentChanged queues the latest full snapshot of doc.
func (f *SyncedFile) ContentChanged(doc Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc != nil {
		f.doc = doc
	}
	if !f.mirrored {
		f.sync.Open(f.doc.Path())
		f.mirrored = true
	}
	f.sync.Change(f.doc.Path(), f.doc.Text())
}

// Close requests removal of the mirror.
func (f *SyncedFile) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mirrored = false
	f.sync.Close(f.doc.Path())
}
