package lsp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bolasblack/stylesync/internal/checker"
	"github.com/bolasblack/stylesync/internal/diagnostics"
	"github.com/bolasblack/stylesync/internal/mirror"
	"github.com/bolasblack/stylesync/internal/util"
)

type sentNotification struct {
	method string
	params json.RawMessage
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingNotifier) notify(method string, params any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{method: method, params: data})
	return nil
}

func (r *recordingNotifier) byMethod(method string) []json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []json.RawMessage
	for _, n := range r.sent {
		if n.method == method {
			out = append(out, n.params)
		}
	}
	return out
}

func TestToDiagnostics(t *testing.T) {
	got := toDiagnostics([]checker.Violation{
		{Line: 3, Column: 5, Message: "boom", Severity: checker.SeverityError, RuleID: "LineLengthCheck"},
		{Line: 1, Column: 0, Message: "warn", Severity: checker.SeverityWarning, RuleID: "JavadocCheck"},
		{Line: 0, Column: 0, Message: "file level", Severity: checker.SeverityInfo},
		{Line: 2, Column: 1, Message: "hidden", Severity: checker.SeverityIgnore},
	})

	require.Len(t, got, 3)

	assert.Equal(t, lspRange{Start: position{Line: 2, Character: 4}, End: position{Line: 3}}, got[0].Range)
	assert.Equal(t, severityError, got[0].Severity)
	assert.Equal(t, "LineLengthCheck", got[0].Code)
	assert.Equal(t, diagnosticSource, got[0].Source)
	assert.Equal(t, "boom", got[0].Message)

	assert.Equal(t, position{Line: 0, Character: 0}, got[1].Range.Start)
	assert.Equal(t, severityWarning, got[1].Severity)

	assert.Equal(t, lspRange{End: position{Line: 1}}, got[2].Range)
	assert.Equal(t, severityInformation, got[2].Severity)
}

func TestPublisher(t *testing.T) {
	out := &recordingNotifier{}
	p := newPublisher(out, util.DiscardLogger())

	p.Clear("file:///w/A.java")
	assert.Empty(t, out.byMethod("textDocument/publishDiagnostics"), "clearing an unpublished uri sends nothing")

	p.Publish("file:///w/B.java", []checker.Violation{{Line: 1, Column: 1, Severity: checker.SeverityError}})
	p.Publish("file:///w/A.java", nil)
	assert.Equal(t, []string{"file:///w/A.java", "file:///w/B.java"}, p.URIs())

	p.ClearAll()
	assert.Empty(t, p.URIs())

	sent := out.byMethod("textDocument/publishDiagnostics")
	require.Len(t, sent, 4)
	var last publishDiagnosticsParams
	require.NoError(t, json.Unmarshal(sent[3], &last))
	assert.NotNil(t, last.Diagnostics)
	assert.Empty(t, last.Diagnostics)
}

func TestReporterMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "module init",
			err:  fmt.Errorf("wrapped: %w", &checker.ModuleInitError{Module: "TreeWalker", Message: "bad"}),
			want: "Module TreeWalker initialization failed. It may be caused by wrong configuration or incompatible version.",
		},
		{
			name: "mirror retry",
			err:  &mirror.RetryError{RealPath: "/w/A.java", Op: "write", Attempts: 5, Err: errors.New("disk full")},
			want: "Unable to sync unsaved changes of /w/A.java: disk full",
		},
		{
			name: "missing configuration",
			err:  &diagnostics.ConfigNotFoundError{Path: "/w/checks.xml"},
			want: "Checkstyle configuration /w/checks.xml does not exist.",
		},
		{
			name: "generic",
			err:  errors.New("exit status 2"),
			want: "Checkstyle failed: exit status 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &recordingNotifier{}
			r := &reporter{out: out, log: util.DiscardLogger()}
			r.ReportError(tt.err)

			shown := out.byMethod("window/showMessage")
			require.Len(t, shown, 1)
			var msg showMessageParams
			require.NoError(t, json.Unmarshal(shown[0], &msg))
			assert.Equal(t, messageError, msg.Type)
			assert.Equal(t, tt.want, msg.Message)

			status := out.byMethod("stylesync/status")
			require.Len(t, status, 1)
			var st statusParams
			require.NoError(t, json.Unmarshal(status[0], &st))
			assert.Equal(t, "error", st.State)
		})
	}
}

func TestReporterSuccess(t *testing.T) {
	out := &recordingNotifier{}
	r := &reporter{out: out, log: util.DiscardLogger()}
	r.ReportSuccess(diagnostics.Summary{Files: 2, Violations: 7})

	status := out.byMethod("stylesync/status")
	require.Len(t, status, 1)
	var st statusParams
	require.NoError(t, json.Unmarshal(status[0], &st))
	assert.Equal(t, statusParams{State: "ok", Files: 2, Violations: 7}, st)
	assert.Empty(t, out.byMethod("window/showMessage"))
}

func TestReporterLogsNeutrally(t *testing.T) {
	var buf bytes.Buffer
	out := &recordingNotifier{}
	r := &reporter{out: out, log: util.NewLogger(&buf, slog.LevelDebug)}

	r.ReportError(&mirror.RetryError{RealPath: "/w/A.java", Op: "write", Attempts: 5, Err: errors.New("disk full")})

	assert.Contains(t, buf.String(), "reporting error")
	assert.NotContains(t, buf.String(), "check failed")
	assert.NotContains(t, buf.String(), "level=ERROR", "the synchronizer already logged the failure")
	assert.Len(t, out.byMethod("window/showMessage"), 1)
}
