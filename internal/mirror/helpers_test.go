package mirror

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

const testDir = "/scratch"

// fakeDoc is a Document backed by plain fields.
type fakeDoc struct {
	uri   string
	path  string
	dirty bool
	text  string
}

func (d *fakeDoc) URI() string   { return d.uri }
func (d *fakeDoc) Path() string  { return d.path }
func (d *fakeDoc) IsDirty() bool { return d.dirty }
func (d *fakeDoc) Text() string  { return d.text }

func newDoc(path, text string, dirty bool) *fakeDoc {
	return &fakeDoc{uri: "file://" + path, path: path, text: text, dirty: dirty}
}

// recordingFs wraps an afero.Fs, counting mutating calls, injecting failures
// and detecting overlapping writes to the same mirror.
type recordingFs struct {
	afero.Fs

	mu       sync.Mutex
	ops      []string
	failOpen func(name string) bool
	delay    time.Duration
	active   map[string]int
	overlap  bool
	written  map[string][]string
}

func newRecordingFs() *recordingFs {
	return &recordingFs{
		Fs:      afero.NewMemMapFs(),
		active:  make(map[string]int),
		written: make(map[string][]string),
	}
}

func (r *recordingFs) record(op string) {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
}

func (r *recordingFs) opCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

func (r *recordingFs) countOps(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, op := range r.ops {
		if strings.HasPrefix(op, prefix) {
			n++
		}
	}
	return n
}

func (r *recordingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE) == 0 {
		return r.Fs.OpenFile(name, flag, perm)
	}
	r.record("open " + name)
	target := strings.TrimSuffix(name, ".part")
	r.mu.Lock()
	r.active[target]++
	if r.active[target] > 1 {
		r.overlap = true
	}
	fail := r.failOpen != nil && r.failOpen(name)
	r.mu.Unlock()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if fail {
		r.done(target)
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	f, err := r.Fs.OpenFile(name, flag, perm)
	if err != nil || !strings.HasSuffix(name, ".part") {
		r.done(target)
	}
	return f, err
}

func (r *recordingFs) done(target string) {
	r.mu.Lock()
	r.active[target]--
	r.mu.Unlock()
}

func (r *recordingFs) Rename(oldname, newname string) error {
	r.record("rename " + newname)
	content, _ := afero.ReadFile(r.Fs, oldname)
	err := r.Fs.Rename(oldname, newname)
	r.mu.Lock()
	if err == nil {
		r.written[newname] = append(r.written[newname], string(content))
	}
	r.active[newname]--
	r.mu.Unlock()
	return err
}

func (r *recordingFs) Remove(name string) error {
	r.record("remove " + name)
	return r.Fs.Remove(name)
}

func (r *recordingFs) MkdirAll(path string, perm os.FileMode) error {
	return r.Fs.MkdirAll(path, perm)
}

func (r *recordingFs) hadOverlap() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overlap
}

func (r *recordingFs) writes(path string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.written[path]...)
}

func errPermission() error { return os.ErrPermission }
