package cli

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/bolasblack/stylesync/internal/util"
)

func frame(payload string) string {
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(payload), payload)
}

func TestServeCommand(t *testing.T) {
	env := util.NewTestEnv()
	t.Cleanup(func() {
		serveLogFile = ""
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
	})

	in := strings.NewReader(
		frame(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"rootUri":"file:///w"}}`) +
			frame(`{"jsonrpc":"2.0","id":2,"method":"shutdown"}`) +
			frame(`{"jsonrpc":"2.0","method":"exit"}`))
	var out bytes.Buffer
	rootCmd.SetIn(in)
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"serve", "--log-file", "/var/log/stylesync.log"})

	if err := rootCmd.ExecuteContext(util.WithEnv(context.Background(), env)); err != nil {
		t.Fatalf("serve error = %v", err)
	}
	if !strings.Contains(out.String(), `"name":"stylesync"`) {
		t.Errorf("expected initialize result with server info, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), `"id":2`) {
		t.Errorf("expected shutdown response, got:\n%s", out.String())
	}

	logs, err := afero.ReadFile(env.Fs, "/var/log/stylesync.log")
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(logs), "initialized") {
		t.Errorf("expected initialized log entry, got:\n%s", logs)
	}
}
