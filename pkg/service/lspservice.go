package service

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/erbls/pkg/config"
	"github.com/walteh/erbls/pkg/lsp/protocol"
	"github.com/walteh/erbls/pkg/vdoc"
)

const (
	methodHTMLAutoInsert        = "html/autoInsert"
	methodConfiguration         = "workspace/configuration"
	methodRegisterCapability    = "client/registerCapability"
	methodUnregisterCapability  = "client/unregisterCapability"
	methodWorkDoneProgress      = "window/workDoneProgress/create"
	methodShowMessageRequest    = "window/showMessageRequest"
	methodPublishDiagnostics    = "textDocument/publishDiagnostics"
	shutdownGrace               = 2 * time.Second
	defaultBackendClientVersion = "dev"
)

// clientCapabilities is what erbls claims when it acts as a client.
var clientCapabilities = json.RawMessage(`{
	"textDocument": {
		"synchronization": {"dynamicRegistration": false},
		"hover": {"contentFormat": ["markdown", "plaintext"]},
		"completion": {"completionItem": {"snippetSupport": true}, "contextSupport": true},
		"linkedEditingRange": {}
	},
	"workspace": {"configuration": true}
}`)

var htmlInitializationOptions = json.RawMessage(`{"provideFormatter": false, "embeddedLanguages": {"css": true, "javascript": true}}`)

// LSPService is a MarkupService backed by a language server spoken to over
// JSON-RPC.
type LSPService struct {
	backend *config.Backend
	content *vdoc.ContentProvider

	mu      sync.Mutex
	client  *jrpc2.Client
	closer  func() error
	opened  map[string]syncedDoc
	stopped bool
}

// syncedDoc is what the backend last received for a URI.
type syncedDoc struct {
	version int32
	hash    [32]byte
}

var _ MarkupService = (*LSPService)(nil)
var _ DocumentCloser = (*LSPService)(nil)
var _ Shutdowner = (*LSPService)(nil)

func NewLSPService(backend *config.Backend, content *vdoc.ContentProvider) *LSPService {
	return &LSPService{
		backend: backend,
		content: content,
		opened:  make(map[string]syncedDoc),
	}
}

func (s *LSPService) Extension() string {
	return s.backend.Extension
}

// Start runs the backend command and performs the initialize handshake.
func (s *LSPService) Start(ctx context.Context, rootURI string) error {
	ctx = protocol.ApplyBackendToZerolog(ctx, s.backend.Extension)

	// the process outlives the start context
	cmd := exec.CommandContext(context.WithoutCancel(ctx), s.backend.Command, s.backend.Args...)
	cc, err := protocol.NewCmdClient(ctx, cmd, s.clientOptions(ctx))
	if err != nil {
		return errors.Errorf("starting %s backend: %w", s.backend.Extension, err)
	}

	go func() {
		err := <-cc.Done()
		zerolog.Ctx(ctx).Debug().Err(err).Msg("backend process exited")
		s.markStopped()
	}()

	return s.handshake(ctx, cc.Client, func() error { return cc.Close(shutdownGrace) }, rootURI)
}

// Connect performs the initialize handshake over an existing channel.
func (s *LSPService) Connect(ctx context.Context, ch channel.Channel, rootURI string) error {
	ctx = protocol.ApplyBackendToZerolog(ctx, s.backend.Extension)
	client := jrpc2.NewClient(ch, s.clientOptions(ctx))
	return s.handshake(ctx, client, client.Close, rootURI)
}

func (s *LSPService) clientOptions(ctx context.Context) *jrpc2.ClientOptions {
	return &jrpc2.ClientOptions{
		OnCallback: s.handleCallback,
		OnNotify: func(req *jrpc2.Request) {
			s.handleNotify(ctx, req)
		},
		OnStop: func(_ *jrpc2.Client, err error) {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("backend connection stopped")
			s.markStopped()
		},
	}
}

func (s *LSPService) handshake(ctx context.Context, client *jrpc2.Client, closer func() error, rootURI string) error {
	params := &protocol.ParamInitialize{
		ProcessID:    int32(os.Getpid()),
		ClientInfo:   &protocol.ClientInfo{Name: "erbls", Version: defaultBackendClientVersion},
		RootURI:      protocol.DocumentURI(rootURI),
		Capabilities: clientCapabilities,
	}
	if s.backend.Extension == "html" {
		params.InitializationOptions = htmlInitializationOptions
	}

	var res protocol.InitializeResult
	if err := protocol.Call(ctx, client, "initialize", params, &res); err != nil {
		_ = closer()
		return errors.Errorf("initializing %s backend: %w", s.backend.Extension, err)
	}
	if err := client.Notify(ctx, "initialized", &protocol.InitializedParams{}); err != nil {
		_ = closer()
		return errors.Errorf("notifying %s backend: %w", s.backend.Extension, err)
	}

	s.mu.Lock()
	s.client = client
	s.closer = closer
	s.stopped = false
	s.mu.Unlock()

	zerolog.Ctx(ctx).Info().Str("backend", s.backend.Extension).Msg("backend initialized")
	return nil
}

func (s *LSPService) markStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *LSPService) conn() (*jrpc2.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil || s.stopped {
		return nil, errors.Errorf("%w: %s", ErrBackendUnavailable, s.backend.Extension)
	}
	return s.client, nil
}

// sync opens doc on first sight and sends the full text when its content
// moved. Registry versions restart after an eviction, so the text hash
// decides and the version sent to the backend never goes backwards.
func (s *LSPService) sync(ctx context.Context, doc VirtualDocument) (*jrpc2.Client, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}

	next := syncedDoc{version: doc.Version, hash: blake3.Sum256([]byte(doc.Text))}

	s.mu.Lock()
	last, open := s.opened[doc.URI]
	changed := open && last.hash != next.hash
	if changed && next.version <= last.version {
		next.version = last.version + 1
	}
	if open && !changed {
		next.version = last.version
	}
	s.opened[doc.URI] = next
	s.mu.Unlock()

	languageID := doc.LanguageID
	if languageID == "" {
		languageID = s.backend.LanguageID
	}

	switch {
	case !open:
		err = client.Notify(ctx, "textDocument/didOpen", &protocol.DidOpenTextDocumentParams{
			TextDocument: protocol.TextDocumentItem{
				URI:        protocol.DocumentURI(doc.URI),
				LanguageID: protocol.LanguageKind(languageID),
				Version:    next.version,
				Text:       doc.Text,
			},
		})
	case changed:
		err = client.Notify(ctx, "textDocument/didChange", &protocol.DidChangeTextDocumentParams{
			TextDocument: protocol.VersionedTextDocumentIdentifier{
				TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(doc.URI)},
				Version:                next.version,
			},
			ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: doc.Text}},
		})
	}
	if err != nil {
		s.mu.Lock()
		if open {
			s.opened[doc.URI] = last
		} else {
			delete(s.opened, doc.URI)
		}
		s.mu.Unlock()
		return nil, errors.Errorf("syncing %s: %w", doc.URI, err)
	}
	return client, nil
}

func positionParams(doc VirtualDocument, pos protocol.Position) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(doc.URI)},
		Position:     pos,
	}
}

func (s *LSPService) Hover(ctx context.Context, doc VirtualDocument, pos protocol.Position) (*protocol.Hover, error) {
	client, err := s.sync(ctx, doc)
	if err != nil {
		return nil, err
	}
	var hover *protocol.Hover
	if err := protocol.Call(ctx, client, "textDocument/hover", &protocol.HoverParams{TextDocumentPositionParams: positionParams(doc, pos)}, &hover); err != nil {
		return nil, errors.Errorf("hover: %w", err)
	}
	return hover, nil
}

func (s *LSPService) Completion(ctx context.Context, doc VirtualDocument, pos protocol.Position, cc *protocol.CompletionContext) (*protocol.CompletionList, error) {
	client, err := s.sync(ctx, doc)
	if err != nil {
		return nil, err
	}
	rsp, err := client.Call(ctx, "textDocument/completion", &protocol.CompletionParams{
		TextDocumentPositionParams: positionParams(doc, pos),
		Context:                    cc,
	})
	if err != nil {
		return nil, errors.Errorf("completion: %w", err)
	}
	list, err := protocol.DecodeCompletionResult([]byte(rsp.ResultString()))
	if err != nil {
		return nil, errors.Errorf("completion: %w", err)
	}
	return list, nil
}

func (s *LSPService) LinkedEditingRange(ctx context.Context, doc VirtualDocument, pos protocol.Position) (*protocol.LinkedEditingRanges, error) {
	client, err := s.sync(ctx, doc)
	if err != nil {
		return nil, err
	}
	var ranges *protocol.LinkedEditingRanges
	if err := protocol.Call(ctx, client, "textDocument/linkedEditingRange", &protocol.LinkedEditingRangeParams{TextDocumentPositionParams: positionParams(doc, pos)}, &ranges); err != nil {
		return nil, errors.Errorf("linked editing range: %w", err)
	}
	return ranges, nil
}

func (s *LSPService) AutoInsert(ctx context.Context, doc VirtualDocument, pos protocol.Position, kind AutoInsertKind) (string, error) {
	client, err := s.sync(ctx, doc)
	if err != nil {
		return "", err
	}
	var text *string
	if err := protocol.Call(ctx, client, methodHTMLAutoInsert, &protocol.AutoInsertParams{
		Kind:         string(kind),
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(doc.URI)},
		Position:     pos,
	}, &text); err != nil {
		return "", errors.Errorf("auto insert: %w", err)
	}
	if text == nil {
		return "", nil
	}
	return *text, nil
}

func (s *LSPService) CloseDocument(ctx context.Context, uri string) error {
	s.mu.Lock()
	_, open := s.opened[uri]
	delete(s.opened, uri)
	s.mu.Unlock()
	if !open {
		return nil
	}

	client, err := s.conn()
	if err != nil {
		return err
	}
	if err := client.Notify(ctx, "textDocument/didClose", &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri)},
	}); err != nil {
		return errors.Errorf("closing %s: %w", uri, err)
	}
	return nil
}

// Shutdown asks the backend to exit and closes the connection.
func (s *LSPService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	client, closer, stopped := s.client, s.closer, s.stopped
	s.client, s.closer, s.stopped = nil, nil, true
	s.opened = make(map[string]syncedDoc)
	s.mu.Unlock()

	if client == nil {
		return nil
	}

	var err error
	if !stopped {
		if _, cerr := client.Call(ctx, "shutdown", nil); cerr != nil {
			err = errors.Errorf("shutting down %s backend: %w", s.backend.Extension, cerr)
		} else if nerr := client.Notify(ctx, "exit", nil); nerr != nil {
			err = errors.Errorf("exiting %s backend: %w", s.backend.Extension, nerr)
		}
	}

	if closer != nil {
		if cerr := closer(); cerr != nil && err == nil {
			err = errors.Errorf("closing %s backend: %w", s.backend.Extension, cerr)
		}
	}
	return err
}

// handleCallback answers the requests a backend sends to its client.
func (s *LSPService) handleCallback(ctx context.Context, req *jrpc2.Request) (any, error) {
	switch req.Method() {
	case protocol.MethodTextDocumentContent:
		var params protocol.TextDocumentContentParams
		if err := req.UnmarshalParams(&params); err != nil {
			return nil, &jrpc2.Error{Code: -32602, Message: err.Error()}
		}
		text, ok := s.content.ProvideTextDocumentContent(ctx, string(params.URI))
		if !ok {
			zerolog.Ctx(ctx).Debug().Str("uri", string(params.URI)).Msg("backend asked for unregistered content")
			return nil, nil
		}
		return &protocol.TextDocumentContentResult{Text: text}, nil
	case methodConfiguration:
		var params protocol.ParamConfiguration
		if err := req.UnmarshalParams(&params); err != nil {
			return nil, &jrpc2.Error{Code: -32602, Message: err.Error()}
		}
		return make([]any, len(params.Items)), nil
	case methodRegisterCapability, methodUnregisterCapability, methodWorkDoneProgress, methodShowMessageRequest:
		return nil, nil
	}
	return nil, &jrpc2.Error{Code: -32601, Message: "method not found: " + req.Method()}
}

func (s *LSPService) handleNotify(ctx context.Context, req *jrpc2.Request) {
	logger := zerolog.Ctx(ctx)
	switch req.Method() {
	case protocol.MethodLogMessage, protocol.MethodShowMessage:
		var params protocol.LogMessageParams
		if err := req.UnmarshalParams(&params); err != nil {
			logger.Debug().Err(err).Msg("bad log message from backend")
			return
		}
		logger.WithLevel(levelOf(params.Type)).Bool("is_dependency", true).Msg(params.Message)
	case methodPublishDiagnostics:
		// diagnostics of virtual documents are not surfaced
	default:
		logger.Trace().Str("rpc_method", req.Method()).Msg("ignoring backend notification")
	}
}

func levelOf(t protocol.MessageType) zerolog.Level {
	switch t {
	case protocol.Error:
		return zerolog.ErrorLevel
	case protocol.Warning:
		return zerolog.WarnLevel
	case protocol.Info:
		return zerolog.InfoLevel
	}
	return zerolog.DebugLevel
}
