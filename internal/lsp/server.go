// Package lsp serves stylesync over the Language Server Protocol on stdio.
//
// The server keeps the text of open documents, feeds their lifecycle into a
// diagnostics.Manager and publishes Checkstyle results as diagnostics.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/bolasblack/stylesync/internal/checker"
	"github.com/bolasblack/stylesync/internal/config"
	"github.com/bolasblack/stylesync/internal/diagnostics"
	"github.com/bolasblack/stylesync/internal/mirror"
	"github.com/bolasblack/stylesync/internal/util"
)

var (
	// ErrExit signals a graceful shutdown after receiving "exit".
	ErrExit = errors.New("lsp exit")
	// ErrExitWithoutShutdown signals an "exit" without a preceding "shutdown".
	ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")
)

// CommandCheckCode checks the URIs given as arguments, or every open
// document when there are none.
const CommandCheckCode = "stylesync.checkCode"

// ServerOptions configures the language server.
type ServerOptions struct {
	// Env supplies the filesystem, command runner and logger.
	Env *util.Env
	// ConfigPath overrides <workspace root>/.stylesync.toml.
	ConfigPath string
	// Checker replaces the Checkstyle CLI.
	Checker checker.Checker
	// Version is reported in serverInfo.
	Version string
}

// Server handles stdio JSON-RPC.
type Server struct {
	in     *bufio.Reader
	out    *bufio.Writer
	sendMu sync.Mutex

	env  *util.Env
	log  *slog.Logger
	opts ServerOptions

	docs      *documentStore
	publisher *publisher
	reporter  *reporter

	mu                sync.Mutex
	root              string
	settings          *settings
	manager           *diagnostics.Manager
	shutdownRequested bool
}

// NewServer constructs a new LSP server.
func NewServer(in io.Reader, out io.Writer, opts ServerOptions) *Server {
	env := opts.Env
	if env == nil {
		env = util.NewOsEnv()
	}
	log := util.OrDiscard(env.Log)
	s := &Server{
		in:   bufio.NewReader(in),
		out:  bufio.NewWriter(out),
		env:  env,
		log:  log,
		opts: opts,
		docs: newDocumentStore(env.Fs),
	}
	s.publisher = newPublisher(s, log)
	s.reporter = &reporter{out: s, log: log}
	return s
}

// Run serves requests until the client exits or closes the stream.
func (s *Server) Run(ctx context.Context) error {
	defer s.dispose()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := readMessage(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.log.Warn("failed to parse message", slog.String("error", err.Error()))
			continue
		}
		if msg.Method == "" {
			continue
		}
		if err := s.handleMessage(&msg); err != nil {
			return err
		}
	}
}

func (s *Server) handleMessage(msg *rpcMessage) error {
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "exit":
		s.mu.Lock()
		requested := s.shutdownRequested
		s.mu.Unlock()
		if requested {
			return ErrExit
		}
		return ErrExitWithoutShutdown
	}

	if s.currentManager() == nil {
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, codeServerNotInitialized, "server not initialized")
		}
		return nil
	}

	switch msg.Method {
	case "initialized":
		s.currentManager().Activate()
		return nil
	case "shutdown":
		return s.handleShutdown(msg)
	case "workspace/didChangeConfiguration":
		return s.handleDidChangeConfiguration(msg)
	case "workspace/executeCommand":
		return s.handleExecuteCommand(msg)
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didSave":
		return s.handleDidSave(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	default:
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, codeMethodNotFound, "method not found")
		}
		return nil
	}
}

func (s *Server) currentManager() *diagnostics.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager
}

func (s *Server) handleInitialize(msg *rpcMessage) error {
	if s.currentManager() != nil {
		return s.sendError(msg.ID, codeInvalidRequest, "server already initialized")
	}
	var params initializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, codeInvalidParams, "invalid params")
		}
	}
	root := ""
	if params.RootURI != "" {
		root = uriToPath(params.RootURI)
	}
	if root == "" && params.RootPath != "" {
		root = params.RootPath
	}
	if root == "" && len(params.WorkspaceFolders) > 0 {
		root = uriToPath(params.WorkspaceFolders[0].URI)
	}
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}

	cfg, loadErr := s.loadConfig(root)
	st := newSettings(cfg, root)
	if _, err := st.apply(params.InitializationOptions); err != nil {
		s.log.Warn("ignoring invalid initializationOptions", slog.String("error", err.Error()))
	}
	manager := s.newManager(cfg.Resolve(root), st)

	s.mu.Lock()
	s.root = root
	s.settings = st
	s.manager = manager
	s.mu.Unlock()

	s.log.Info("initialized", slog.String("root", root))
	result := initializeResult{
		Capabilities: serverCapabilities{
			TextDocumentSync: textDocumentSyncOptions{
				OpenClose: true,
				Change:    2,
				Save:      saveOptions{IncludeText: true},
			},
			ExecuteCommandProvider: &executeCommandOptions{Commands: []string{CommandCheckCode}},
		},
		ServerInfo: serverInfo{Name: util.AppName, Version: s.opts.Version},
	}
	if err := s.sendResponse(msg.ID, result); err != nil {
		return err
	}
	if loadErr != nil {
		s.reporter.ReportError(loadErr)
	}
	return nil
}

func (s *Server) loadConfig(root string) (config.Config, error) {
	path := s.opts.ConfigPath
	if path == "" {
		if root == "" {
			return config.DefaultConfig(), nil
		}
		path = filepath.Join(root, util.ConfigFilename)
	}
	cfg, err := config.LoadOrDefault(s.env, path)
	if err != nil {
		return config.DefaultConfig(), err
	}
	return cfg, nil
}

func (s *Server) newManager(cfg config.Config, st *settings) *diagnostics.Manager {
	dir := mirror.ScratchDir(cfg.Sync.Storage)
	if err := mirror.PrepareScratchDir(s.env.Fs, dir); err != nil {
		s.log.Warn("scratch directory unavailable", slog.String("error", err.Error()))
	}
	synchronizer := mirror.NewSynchronizer(mirror.Options{
		Fs:          s.env.Fs,
		Dir:         dir,
		MaxAttempts: cfg.Sync.MaxAttempts,
		Log:         s.log,
		OnError:     s.reporter.ReportError,
	})

	chk := s.opts.Checker
	if chk == nil {
		chk = checker.NewCLI(s.env, checker.CLIOptions{Java: cfg.Checkstyle.Java, Jar: cfg.Checkstyle.Jar})
	}

	return diagnostics.NewManager(diagnostics.Options{
		Source:   s.docs,
		Sync:     synchronizer,
		Checker:  chk,
		Sink:     s.publisher,
		Config:   st,
		Reporter: s.reporter,
		Fs:       s.env.Fs,
		Debounce: cfg.Sync.Debounce(),
		Log:      s.log,
	})
}

func (s *Server) handleShutdown(msg *rpcMessage) error {
	s.mu.Lock()
	s.shutdownRequested = true
	s.mu.Unlock()
	s.dispose()
	s.publisher.ClearAll()
	return s.sendResponse(msg.ID, nil)
}

func (s *Server) dispose() {
	manager := s.currentManager()
	if manager == nil {
		return
	}
	if err := manager.Dispose(); err != nil {
		s.log.Warn("failed to dispose", slog.String("error", err.Error()))
	}
}

func (s *Server) handleDidOpen(msg *rpcMessage) error {
	var params didOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.invalidNotification(msg, err)
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.docs.open(uri, uriToPath(uri), params.TextDocument.Version, params.TextDocument.Text)
	return nil
}

func (s *Server) handleDidChange(msg *rpcMessage) error {
	var params didChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.invalidNotification(msg, err)
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.docs.change(uri, params.TextDocument.Version, params.ContentChanges)
	return nil
}

func (s *Server) handleDidSave(msg *rpcMessage) error {
	var params didSaveTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.invalidNotification(msg, err)
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.docs.save(uri, params.Text)
	return nil
}

func (s *Server) handleDidClose(msg *rpcMessage) error {
	var params didCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.invalidNotification(msg, err)
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.docs.close(uri)
	return nil
}

func (s *Server) handleDidChangeConfiguration(msg *rpcMessage) error {
	var params didChangeConfigurationParams
	if len(msg.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.invalidNotification(msg, err)
	}
	s.mu.Lock()
	st := s.settings
	s.mu.Unlock()

	changed, err := st.apply(params.Settings)
	if err != nil {
		s.log.Warn("ignoring invalid settings", slog.String("error", err.Error()))
		return nil
	}
	if !changed {
		return nil
	}

	manager := s.currentManager()
	manager.SetAutoCheck(st.AutoCheck())

	// Re-check everything that is open or already carries results.
	uris := s.docs.uris()
	uris = append(uris, s.publisher.URIs()...)
	manager.GetDiagnostics(s.resources(uris))
	return nil
}

func (s *Server) handleExecuteCommand(msg *rpcMessage) error {
	var params executeCommandParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, "invalid params")
	}
	if params.Command != CommandCheckCode {
		return s.sendError(msg.ID, codeInvalidParams, "unknown command: "+params.Command)
	}

	var uris []string
	for _, arg := range params.Arguments {
		var uri string
		if err := json.Unmarshal(arg, &uri); err != nil {
			return s.sendError(msg.ID, codeInvalidParams, "arguments must be document URIs")
		}
		uris = append(uris, uri)
	}
	if len(uris) == 0 {
		uris = s.docs.uris()
	}
	s.currentManager().GetDiagnostics(s.resources(uris))
	return s.sendResponse(msg.ID, nil)
}

// resources converts URIs to check requests, dropping duplicates.
func (s *Server) resources(uris []string) []diagnostics.Resource {
	seen := make(map[string]bool, len(uris))
	out := make([]diagnostics.Resource, 0, len(uris))
	for _, uri := range uris {
		uri = canonicalURI(uri)
		if uri == "" || seen[uri] {
			continue
		}
		seen[uri] = true
		out = append(out, diagnostics.Resource{URI: uri, Path: uriToPath(uri)})
	}
	return out
}

// invalidNotification logs a malformed notification; requests get an error.
func (s *Server) invalidNotification(msg *rpcMessage, err error) error {
	s.log.Warn("invalid params", slog.String("method", msg.Method), slog.String("error", err.Error()))
	if len(msg.ID) > 0 {
		return s.sendError(msg.ID, codeInvalidParams, "invalid params")
	}
	return nil
}

func (s *Server) sendResponse(id json.RawMessage, result any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	}
	return s.send(msg)
}

func (s *Server) sendError(id json.RawMessage, code int, message string) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   rpcError{Code: code, Message: message},
	}
	return s.send(msg)
}

// notify sends a notification. It is safe for concurrent use.
func (s *Server) notify(method string, params any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	}
	return s.send(msg)
}

func (s *Server) send(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := writeMessage(s.out, payload); err != nil {
		return err
	}
	return s.out.Flush()
}
