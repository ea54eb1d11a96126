// Package lsp implements a Language Server Protocol server for Starlark
// modules written in the class dialect.
package lsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/leapstack-labs/scopestar/internal/rewrite"

	_ "github.com/tliron/commonlog/simple"
)

const serverName = "scopestar"

// ErrExitWithoutShutdown is returned by Serve when the client sends exit
// without a prior shutdown request.
var ErrExitWithoutShutdown = errors.New("exit received before shutdown")

var errNotInitialized = errors.New("server not initialized")

// codeServerNotInitialized is the LSP error code for requests that arrive
// before initialize.
const codeServerNotInitialized = -32002

// Server implements the Language Server Protocol for class-dialect modules.
// It is a glsp.Handler: the protocol handler decodes each method and the
// callbacks below answer it.
type Server struct {
	documents *DocumentStore
	handler   *protocol.Handler

	// Same rewrite options as run and check, so diagnostics agree with the
	// engine.
	options rewrite.Options
	version string
	debug   bool

	shutdown atomic.Bool
	exited   atomic.Bool

	logger *slog.Logger
}

var _ glsp.Handler = (*Server)(nil)

// Config configures a Server.
type Config struct {
	Options rewrite.Options
	Version string
	// Debug logs every JSON-RPC message.
	Debug  bool
	Logger *slog.Logger
}

// NewServer creates a server. Serve or ServeTCP connects it to clients.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		documents: NewDocumentStore(),
		options:   cfg.Options,
		version:   cfg.Version,
		debug:     cfg.Debug,
		logger:    logger,
	}
	s.handler = &protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.onShutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.didOpen,
		TextDocumentDidChange: s.didChange,
		TextDocumentDidClose:  s.didClose,
		TextDocumentDidSave:   s.didSave,

		TextDocumentCompletion: s.completion,
		TextDocumentHover:      s.hover,
		TextDocumentDefinition: s.definition,
	}
	return s
}

// Handle implements glsp.Handler. It tracks the shutdown handshake and
// turns away everything but initialize until the client has initialized.
func (s *Server) Handle(ctx *glsp.Context) (r any, validMethod, validParams bool, err error) {
	s.logger.Debug("received", "method", ctx.Method)

	switch {
	case ctx.Method == protocol.MethodExit:
		s.exited.Store(true)
		return nil, true, true, nil
	case !s.handler.IsInitialized() && ctx.Method != protocol.MethodInitialize:
		return nil, true, true, errNotInitialized
	}

	r, validMethod, validParams, err = s.handler.Handle(ctx)
	if ctx.Method == protocol.MethodShutdown && err == nil {
		s.shutdown.Store(true)
	}
	return r, validMethod, validParams, err
}

// Serve speaks JSON-RPC with Content-Length framing over r and w until the
// client sends exit, closes the stream or ctx is done.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.logger.Info("language server starting", "version", s.version)

	opts := []jsonrpc2.ConnOpt{jsonrpc2.SetLogger(printfLogger{s.logger})}
	if s.debug {
		opts = append(opts, jsonrpc2.LogMessages(printfLogger{s.logger}))
	}
	stream := jsonrpc2.NewBufferedStream(&pipe{r: r, w: w}, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(s.handle).SuppressErrClosed(), opts...)

	select {
	case <-conn.DisconnectNotify():
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	}

	if s.exited.Load() && !s.shutdown.Load() {
		return ErrExitWithoutShutdown
	}
	s.logger.Info("client disconnected")
	return nil
}

// ServeTCP accepts clients on addr until the listener fails. Every client
// shares the server's documents.
func (s *Server) ServeTCP(addr string) error {
	verbosity := 0
	if s.debug {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	s.logger.Info("language server listening", "address", addr, "version", s.version)
	return glspserver.NewServer(s, serverName, s.debug).RunTCP(addr)
}

// handle adapts one JSON-RPC request to Handle and maps its outcome to a
// response.
func (s *Server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	if s.exited.Load() {
		return nil, jsonrpc2.ErrClosed
	}

	gctx := &glsp.Context{
		Method: req.Method,
		Notify: func(method string, params any) {
			if err := conn.Notify(ctx, method, params); err != nil {
				s.logger.Error("notify failed", "method", method, "error", err)
			}
		},
		Call: func(method string, params, result any) {
			if err := conn.Call(ctx, method, params, result); err != nil {
				s.logger.Error("call failed", "method", method, "error", err)
			}
		},
	}
	if req.Params != nil {
		gctx.Params = *req.Params
	}

	r, validMethod, validParams, err := s.Handle(gctx)
	switch {
	case req.Method == protocol.MethodExit:
		return nil, conn.Close()
	case errors.Is(err, errNotInitialized):
		return nil, &jsonrpc2.Error{Code: codeServerNotInitialized, Message: err.Error()}
	case !validMethod:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not supported: " + req.Method}
	case !validParams:
		msg := "invalid params"
		if err != nil {
			msg = err.Error()
		}
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: msg}
	case err != nil:
		s.logger.Error("handler failed", "method", req.Method, "error", err)
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidRequest, Message: err.Error()}
	}
	return r, nil
}

// pipe joins a reader and a writer into the stream jsonrpc2 expects. After
// Close it reports end of input so the connection stops reading.
type pipe struct {
	r      io.Reader
	w      io.Writer
	closed atomic.Bool
}

func (p *pipe) Read(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, io.EOF
	}
	return p.r.Read(b)
}

func (p *pipe) Write(b []byte) (int, error) { return p.w.Write(b) }

func (p *pipe) Close() error {
	p.closed.Store(true)
	return nil
}

// printfLogger routes jsonrpc2's log lines to slog at debug level.
type printfLogger struct {
	logger *slog.Logger
}

func (l printfLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (s *Server) initialize(_ *glsp.Context, params *protocol.InitializeParams) (any, error) {
	root := ""
	if params.RootURI != nil {
		root = URIToPath(*params.RootURI)
	}
	s.logger.Info("initialized", "root", root)

	capabilities := s.handler.CreateServerCapabilities()
	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: ptrTo(true),
		Change:    &syncKind,
		Save:      &protocol.SaveOptions{IncludeText: ptrTo(true)},
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{TriggerCharacters: []string{"."}}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    serverName,
			Version: ptrTo(s.version),
		},
	}, nil
}

func (s *Server) initialized(*glsp.Context, *protocol.InitializedParams) error { return nil }

func (s *Server) onShutdown(*glsp.Context) error {
	s.logger.Info("shutdown requested")
	return nil
}

func (s *Server) setTrace(*glsp.Context, *protocol.SetTraceParams) error { return nil }

func (s *Server) didOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	doc := params.TextDocument
	s.documents.Open(doc.URI, doc.Text, int(doc.Version))
	s.logger.Debug("opened", "uri", doc.URI)
	s.publishDiagnostics(ctx, doc.URI)
	return nil
}

func (s *Server) didClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.documents.Close(uri)
	s.logger.Debug("closed", "uri", uri)
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// didChange applies a full-sync change: the last whole-text event wins.
func (s *Server) didChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI
	for i := len(params.ContentChanges) - 1; i >= 0; i-- {
		if whole, ok := params.ContentChanges[i].(protocol.TextDocumentContentChangeEventWhole); ok {
			s.documents.Update(uri, whole.Text, int(params.TextDocument.Version))
			break
		}
	}
	s.publishDiagnostics(ctx, uri)
	return nil
}

func (s *Server) didSave(ctx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	uri := params.TextDocument.URI
	doc := s.documents.Get(uri)
	if doc == nil || params.Text == nil || *params.Text == doc.Content {
		return nil
	}
	s.documents.Update(uri, *params.Text, doc.Version)
	s.publishDiagnostics(ctx, uri)
	return nil
}

func (s *Server) completion(_ *glsp.Context, params *protocol.CompletionParams) (any, error) {
	items := s.getCompletions(params.TextDocumentPositionParams)
	if items == nil {
		items = []protocol.CompletionItem{}
	}
	return &protocol.CompletionList{Items: items}, nil
}

func (s *Server) hover(_ *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	return s.getHover(params.TextDocumentPositionParams), nil
}

func (s *Server) definition(_ *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	return s.getDefinition(params.TextDocumentPositionParams), nil
}

func ptrTo[T any](v T) *T { return &v }
