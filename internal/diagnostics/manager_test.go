package diagnostics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bolasblack/stylesync/internal/checker"
	"github.com/bolasblack/stylesync/internal/mirror"
)

const (
	scratchDir = "/scratch"
	configPath = "/w/checks.xml"
)

type harness struct {
	fs       afero.Fs
	source   *fakeSource
	sink     *recordingSink
	checker  *scriptedChecker
	config   *fakeConfig
	reporter *recordingReporter
	sync     *mirror.Synchronizer
	manager  *Manager
}

func newHarness(t *testing.T, debounce time.Duration) *harness {
	t.Helper()
	return newHarnessOn(t, debounce, afero.NewMemMapFs(), nil)
}

// newHarnessOn builds a harness whose synchronizer writes through syncFs,
// a wrapper of fs, when one is given.
func newHarnessOn(t *testing.T, debounce time.Duration, fs afero.Fs, syncFs afero.Fs) *harness {
	t.Helper()
	if syncFs == nil {
		syncFs = fs
	}
	require.NoError(t, afero.WriteFile(fs, configPath, []byte("<module name=\"Checker\"/>"), 0o644))
	for _, p := range []string{"/w/A.java", "/w/B.java", "/w/C.java"} {
		require.NoError(t, afero.WriteFile(fs, p, []byte("class X {}"), 0o644))
	}

	h := &harness{
		fs:       fs,
		source:   &fakeSource{},
		sink:     newRecordingSink(),
		checker:  &scriptedChecker{fs: fs},
		config:   &fakeConfig{configPath: configPath, autoCheck: true, extensions: []string{".java"}},
		reporter: &recordingReporter{},
	}
	h.sync = mirror.NewSynchronizer(mirror.Options{Fs: syncFs, Dir: scratchDir, OnError: h.reporter.ReportError})
	h.manager = NewManager(Options{
		Source:   h.source,
		Sync:     h.sync,
		Checker:  h.checker,
		Sink:     h.sink,
		Config:   h.config,
		Reporter: h.reporter,
		Fs:       fs,
		Debounce: debounce,
	})
	t.Cleanup(func() { _ = h.manager.Dispose() })
	return h
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.manager.Drain(ctx))
}

func TestManager_DebounceCoalescesEdits(t *testing.T) {
	h := newHarness(t, 150*time.Millisecond)
	h.manager.Activate()

	doc := newDoc("/w/A.java", "class A {}")
	h.source.open(doc)
	h.source.change(doc, "class A { int a; }")
	time.Sleep(50 * time.Millisecond)
	h.source.change(doc, "class A { int a; int b; }")

	require.Eventually(t, func() bool { return h.checker.callCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 1, h.checker.callCount())

	paths, contents := h.checker.call(0)
	require.Len(t, paths, 1)
	assert.True(t, isMirrorPath(paths[0]), "edited document must be checked through its mirror, got %s", paths[0])
	assert.Equal(t, "class A { int a; int b; }", contents[paths[0]])

	published, _, _ := h.sink.snapshot()
	require.Len(t, published, 1)
	assert.Equal(t, []checker.Violation{{Line: 1, Message: "from " + paths[0], Severity: checker.SeverityWarning, RuleID: "FakeCheck"}}, published[doc.URI()])
}

func TestManager_SpacedEditsRunSeparateCycles(t *testing.T) {
	h := newHarness(t, 20*time.Millisecond)
	h.manager.Activate()

	doc := newDoc("/w/A.java", "class A {}")
	h.source.open(doc)
	require.Eventually(t, func() bool { return h.checker.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	for i := 2; i <= 4; i++ {
		h.source.change(doc, "class A { /* edit */ }")
		require.Eventually(t, func() bool { return h.checker.callCount() == i }, 2*time.Second, 5*time.Millisecond)
	}
}

func TestManager_BatchContainsEveryEditedFile(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.manager.Activate()

	a, b := newDoc("/w/A.java", "class A {}"), newDoc("/w/B.java", "class B {}")
	h.source.open(a)
	h.source.open(b)
	h.source.change(a, "class A { }")
	h.drain(t)

	require.Equal(t, 1, h.checker.callCount())
	paths, _ := h.checker.call(0)
	assert.Len(t, paths, 2)
}

func TestManager_CleanDocumentsUseRealPath(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.manager.Activate()

	h.source.open(newDoc("/w/A.java", "class X {}"))
	h.drain(t)

	paths, _ := h.checker.call(0)
	assert.Equal(t, []string{"/w/A.java"}, paths)
}

func TestManager_MappingFidelity(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.checker.respond = func(paths []string) (checker.Result, error) {
		result := checker.Result{}
		for _, p := range paths {
			result[p] = []checker.Violation{{Line: 2, Message: p, Severity: checker.SeverityError}}
		}
		result["/elsewhere/Unexpected.java"] = []checker.Violation{{Line: 1}}
		return result, nil
	}
	h.manager.Activate()

	dirty := newDoc("/w/A.java", "class A {}")
	h.source.open(dirty)
	h.source.change(dirty, "class A { void m() {} }")
	h.manager.GetDiagnostics([]Resource{
		{URI: "file:///w/B.java", Path: "/w/B.java"},
		{URI: "file:///w/C.java", Path: "/w/C.java"},
	})
	h.drain(t)

	published, publishes, _ := h.sink.snapshot()
	assert.Len(t, publishes, 3)
	assert.ElementsMatch(t, []string{"file:///w/A.java", "file:///w/B.java", "file:///w/C.java"}, publishes)
	assert.Equal(t, "/w/B.java", published["file:///w/B.java"][0].Message)
	assert.Equal(t, "/w/C.java", published["file:///w/C.java"][0].Message)
	assert.True(t, isMirrorPath(published["file:///w/A.java"][0].Message))

	h.reporter.mu.Lock()
	defer h.reporter.mu.Unlock()
	require.Len(t, h.reporter.summaries, 1)
	assert.Equal(t, Summary{Files: 3, Violations: 3}, h.reporter.summaries[0])
}

func TestManager_CheckerFailurePublishesNothing(t *testing.T) {
	h := newHarness(t, time.Hour)
	boom := errors.New("jvm crashed")
	h.checker.respond = func([]string) (checker.Result, error) { return nil, boom }
	h.manager.Activate()

	h.source.open(newDoc("/w/A.java", "class X {}"))
	h.drain(t)

	published, publishes, clears := h.sink.snapshot()
	assert.Empty(t, published)
	assert.Empty(t, publishes)
	assert.Equal(t, []string{"file:///w/A.java"}, clears)
	require.Len(t, h.reporter.errors(), 1)
	assert.ErrorIs(t, h.reporter.errors()[0], boom)

	// The failed file is not retried until something requests it again.
	h.drain(t)
	assert.Equal(t, 1, h.checker.callCount())
}

func TestManager_SkipsWhenUnconfigured(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.config.configPath = ""
	h.manager.Activate()

	h.source.open(newDoc("/w/A.java", "class X {}"))
	h.drain(t)

	assert.Zero(t, h.checker.callCount())
	assert.Empty(t, h.reporter.errors())
}

func TestManager_MissingConfigurationFile(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.config.configPath = "/w/missing.xml"
	h.manager.Activate()

	h.source.open(newDoc("/w/A.java", "class X {}"))
	h.drain(t)

	assert.Zero(t, h.checker.callCount())
	errs := h.reporter.errors()
	require.Len(t, errs, 1)
	var notFound *ConfigNotFoundError
	require.ErrorAs(t, errs[0], &notFound)
	assert.Equal(t, "/w/missing.xml", notFound.Path)
}

func TestManager_BuiltinConfigurationNeedsNoFile(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.config.configPath = checker.GoogleChecks
	h.manager.Activate()

	h.source.open(newDoc("/w/A.java", "class X {}"))
	h.drain(t)

	assert.Equal(t, 1, h.checker.callCount())
}

func TestManager_IgnoresUncheckedResources(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.manager.Activate()

	h.source.open(newDoc("/w/notes.txt", "hello"))
	h.source.open(&fakeDoc{uri: "untitled:Untitled-1", path: "Untitled-1.java"})
	h.manager.GetDiagnostics([]Resource{{URI: "git:/w/A.java", Path: "/w/A.java"}})
	h.drain(t)

	assert.Zero(t, h.checker.callCount())
}

func TestManager_ExtensionMatchIsCaseInsensitive(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.manager.Activate()

	h.manager.GetDiagnostics([]Resource{{URI: "file:///w/Legacy.JAVA", Path: "/w/Legacy.JAVA"}})
	h.drain(t)

	assert.Equal(t, 1, h.checker.callCount())
}

func TestManager_CloseRemovesMirror(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.manager.Activate()

	doc := newDoc("/w/A.java", "class A {}")
	h.source.open(doc)
	h.source.change(doc, "class A { }")
	h.drain(t)

	mirrorPath, ok := h.sync.MirrorPath("/w/A.java")
	require.True(t, ok)

	h.source.close(doc)
	h.manager.GetDiagnostics([]Resource{{URI: doc.URI(), Path: doc.Path()}})
	h.drain(t)

	exists, err := afero.Exists(h.fs, mirrorPath)
	require.NoError(t, err)
	assert.False(t, exists)
	paths, _ := h.checker.call(1)
	assert.Equal(t, []string{"/w/A.java"}, paths)
}

func TestManager_StateTransitions(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.config.autoCheck = false
	assert.Equal(t, StateDisabled, h.manager.State())

	h.manager.Activate()
	assert.Equal(t, StateNotListening, h.manager.State())
	assert.Nil(t, h.source.current())

	doc := newDoc("/w/A.java", "class A {}")
	h.source.open(doc)
	h.drain(t)
	assert.Zero(t, h.checker.callCount(), "events are ignored while not listening")

	h.manager.SetAutoCheck(true)
	assert.Equal(t, StateListening, h.manager.State())
	assert.NotNil(t, h.source.current())
	h.drain(t)
	assert.Equal(t, 1, h.checker.callCount(), "documents open before listening are picked up")

	h.source.change(doc, "class A { }")
	h.drain(t)
	require.True(t, h.sync.HasMirror("/w/A.java"))

	h.manager.SetAutoCheck(false)
	assert.Equal(t, StateNotListening, h.manager.State())
	assert.Nil(t, h.source.current())
	assert.False(t, h.sync.HasMirror("/w/A.java"))

	require.NoError(t, h.manager.Dispose())
	assert.Equal(t, StateDisabled, h.manager.State())
	exists, err := afero.DirExists(h.fs, scratchDir)
	require.NoError(t, err)
	assert.False(t, exists)

	h.manager.Activate()
	assert.Equal(t, StateDisabled, h.manager.State(), "a disposed manager stays disabled")
}

func TestManager_GetDiagnosticsWhileNotListening(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.config.autoCheck = false
	h.manager.Activate()

	h.manager.GetDiagnostics([]Resource{{URI: "file:///w/B.java", Path: "/w/B.java"}})
	h.drain(t)

	require.Equal(t, 1, h.checker.callCount())
	paths, _ := h.checker.call(0)
	assert.Equal(t, []string{"/w/B.java"}, paths)
}

func TestManager_RequestsDuringCycleGoToNextCycle(t *testing.T) {
	h := newHarness(t, time.Hour)
	started := make(chan struct{})
	release := make(chan struct{})
	first := true
	h.checker.respond = func(paths []string) (checker.Result, error) {
		if first {
			first = false
			close(started)
			<-release
		}
		return checker.Result{}, nil
	}
	h.manager.Activate()
	h.manager.GetDiagnostics([]Resource{{URI: "file:///w/B.java", Path: "/w/B.java"}})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.manager.Drain(context.Background())
	}()
	<-started
	h.manager.GetDiagnostics([]Resource{{URI: "file:///w/C.java", Path: "/w/C.java"}})
	close(release)
	<-done

	h.drain(t)
	require.Equal(t, 2, h.checker.callCount())
	paths, _ := h.checker.call(1)
	assert.Equal(t, []string{"/w/C.java"}, paths)
}

func TestManager_AbandonedMirrorFallsBackToRealFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	h := newHarnessOn(t, time.Hour, fs, &partFailingFs{Fs: fs})
	h.manager.Activate()

	doc := newDoc("/w/A.java", "class X {}")
	h.source.open(doc)
	h.source.change(doc, "class A { int a; }")
	h.drain(t)

	require.Equal(t, 1, h.checker.callCount())
	paths, contents := h.checker.call(0)
	assert.Equal(t, []string{"/w/A.java"}, paths, "a mirror that was never written must not be checked")
	assert.Equal(t, "class X {}", contents["/w/A.java"])

	published, _, _ := h.sink.snapshot()
	assert.Contains(t, published, doc.URI())

	var rerr *mirror.RetryError
	errs := h.reporter.errors()
	require.Len(t, errs, 1)
	require.ErrorAs(t, errs[0], &rerr)
	assert.Equal(t, "/w/A.java", rerr.RealPath)
}

func TestManager_SummarySkipsIgnoredViolations(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.checker.respond = func(paths []string) (checker.Result, error) {
		return checker.Result{paths[0]: {
			{Line: 1, Severity: checker.SeverityIgnore, RuleID: "Hidden"},
			{Line: 2, Severity: checker.SeverityWarning, RuleID: "Shown"},
			{Line: 3, Severity: checker.SeverityError, RuleID: "Shown"},
		}}, nil
	}
	h.manager.Activate()

	h.manager.GetDiagnostics([]Resource{{URI: "file:///w/B.java", Path: "/w/B.java"}})
	h.drain(t)

	h.reporter.mu.Lock()
	defer h.reporter.mu.Unlock()
	require.Len(t, h.reporter.summaries, 1)
	assert.Equal(t, Summary{Files: 1, Violations: 2}, h.reporter.summaries[0])
}
