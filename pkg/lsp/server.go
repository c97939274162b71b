package lsp

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/creachadair/jrpc2"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/erbls/pkg/config"
	"github.com/walteh/erbls/pkg/lsp/protocol"
	"github.com/walteh/erbls/pkg/projection"
	"github.com/walteh/erbls/pkg/region"
	"github.com/walteh/erbls/pkg/service"
	"github.com/walteh/erbls/pkg/vdoc"
)

const ServerName = "erbls"

// Version is set by the linker.
var Version = "dev"

// Server is the erbls language server. It owns the open documents and the
// virtual document registry, and delegates markup features to the router.
type Server struct {
	id string

	documents *DocumentManager
	registry  *vdoc.Registry
	content   *vdoc.ContentProvider

	mu       sync.RWMutex
	cfg      *config.Config
	builder  *projection.Builder
	router   *service.Router
	rootURI  string
	startErr error

	initialized atomic.Bool
	shutdown    atomic.Bool
	stopped     atomic.Bool

	callbackClient protocol.Client
}

var _ protocol.Server = (*Server)(nil)

// Options configure a Server. A nil Router makes Initialize start the
// configured backends.
type Options struct {
	Config *config.Config
	Router *service.Router
}

func NewServer(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	registry := vdoc.NewRegistry(cfg.Registry.Capacity)
	return &Server{
		id:        xid.New().String(),
		documents: NewDocumentManager(),
		registry:  registry,
		content:   vdoc.NewContentProvider(registry),
		cfg:       cfg,
		builder:   projection.NewBuilder(region.NewClassifier(region.WithPattern(cfg.Pattern()))),
		router:    opts.Router,
	}
}

func (s *Server) ID() string {
	return s.id
}

func (s *Server) SetCallbackClient(client protocol.Client) {
	s.callbackClient = client
}

func (s *Server) Documents() *DocumentManager {
	return s.documents
}

func (s *Server) Registry() *vdoc.Registry {
	return s.registry
}

// SetConfig swaps in a reloaded config. The delimiter pattern and the
// document selector take effect for the next request; the registry keeps
// its capacity and backends keep running.
func (s *Server) SetConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.builder = projection.NewBuilder(region.NewClassifier(region.WithPattern(cfg.Pattern())))
}

func (s *Server) config() (*config.Config, *projection.Builder) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.builder
}

func (s *Server) routerOrNil() *service.Router {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.router
}

// ShutdownReceived reports whether the client asked for shutdown before
// exiting.
func (s *Server) ShutdownReceived() bool {
	return s.shutdown.Load()
}

// 🚀 lifecycle

func (s *Server) Initialize(ctx context.Context, params *protocol.ParamInitialize) (*protocol.InitializeResult, error) {
	logger := zerolog.Ctx(ctx)
	if params.ClientInfo != nil {
		logger.Debug().Str("client", params.ClientInfo.Name).Str("client_version", params.ClientInfo.Version).Msg("initializing server")
	}

	cfg, _ := s.config()

	s.mu.Lock()
	s.rootURI = string(params.RootURI)
	needsBackends := s.router == nil
	s.mu.Unlock()

	if needsBackends {
		router, err := service.StartBackends(ctx, cfg.Backends, s.content, string(params.RootURI))
		s.mu.Lock()
		s.router = router
		s.startErr = err
		s.mu.Unlock()
	}

	s.initialized.Store(true)

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.Incremental,
				Save:      &protocol.SaveOptions{IncludeText: true},
			},
			HoverProvider: true,
			CompletionProvider: &protocol.CompletionOptions{
				TriggerCharacters: []string{"<"},
			},
			LinkedEditingRangeProvider: true,
			Experimental: map[string]bool{
				"autoInsertProvider":     true,
				"scriptingSpansProvider": true,
			},
		},
		ServerInfo: &protocol.ServerInfo{Name: ServerName, Version: Version},
	}, nil
}

func (s *Server) Initialized(ctx context.Context, params *protocol.InitializedParams) error {
	s.mu.RLock()
	startErr := s.startErr
	s.mu.RUnlock()

	if startErr != nil && s.callbackClient != nil {
		err := s.callbackClient.ShowMessage(ctx, &protocol.ShowMessageParams{
			Type:    protocol.Warning,
			Message: "erbls: markup backend unavailable: " + startErr.Error(),
		})
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to show backend error")
		}
	}

	zerolog.Ctx(ctx).Debug().Msg("server initialized")
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Store(true)

	if err := s.stopBackends(ctx); err != nil {
		// the editor is leaving either way
		zerolog.Ctx(ctx).Warn().Err(err).Msg("backends did not shut down cleanly")
	}
	return nil
}

// Close stops the backends when the connection ended without a shutdown
// request. It is safe to call more than once.
func (s *Server) Close(ctx context.Context) error {
	if err := s.stopBackends(ctx); err != nil {
		return errors.Errorf("closing backends: %w", err)
	}
	return nil
}

func (s *Server) stopBackends(ctx context.Context) error {
	router := s.routerOrNil()
	if router == nil || !s.stopped.CompareAndSwap(false, true) {
		return nil
	}
	return router.Shutdown(ctx)
}

func (s *Server) Exit(ctx context.Context) error {
	if srv := jrpc2.ServerFromContext(ctx); srv != nil {
		// Stop waits for handlers, including this one
		go srv.Stop()
	}
	return nil
}

func (s *Server) SetTrace(ctx context.Context, params *protocol.SetTraceParams) error {
	zerolog.Ctx(ctx).Debug().Str("trace", params.Value).Msg("trace level changed")
	return nil
}

func (s *Server) DidChangeConfiguration(ctx context.Context, params *protocol.DidChangeConfigurationParams) error {
	return nil
}

// 📄 synchronization

func (s *Server) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	logger := zerolog.Ctx(ctx).With().Str("uri", string(params.TextDocument.URI)).Logger()

	cfg, _ := s.config()
	if !cfg.Selector.Matches(string(params.TextDocument.URI), string(params.TextDocument.LanguageID)) {
		logger.Debug().Str("language_id", string(params.TextDocument.LanguageID)).Msg("ignoring document outside selector")
		return nil
	}

	s.documents.Store(NewDocument(
		string(params.TextDocument.URI),
		params.TextDocument.LanguageID,
		params.TextDocument.Version,
		params.TextDocument.Text,
	))
	logger.Debug().Msg("document opened")
	return nil
}

func (s *Server) DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error {
	doc, err := s.documents.Get(params.TextDocument.URI)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil
		}
		return err
	}

	s.documents.Store(doc.Apply(params.TextDocument.Version, params.ContentChanges))
	zerolog.Ctx(ctx).Trace().Str("uri", doc.URI).Int32("version", params.TextDocument.Version).Msg("document changed")
	return nil
}

func (s *Server) DidSave(ctx context.Context, params *protocol.DidSaveTextDocumentParams) error {
	doc, err := s.documents.Get(params.TextDocument.URI)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil
		}
		return err
	}

	if params.Text != nil && *params.Text != doc.Content {
		s.documents.Store(NewDocument(doc.URI, doc.LanguageID, doc.Version, *params.Text))
	}
	zerolog.Ctx(ctx).Debug().Str("uri", doc.URI).Msg("document saved")
	return nil
}

func (s *Server) DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	doc, err := s.documents.Get(params.TextDocument.URI)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil
		}
		return err
	}

	s.documents.Delete(params.TextDocument.URI)
	s.registry.Delete(doc.URI)

	if router := s.routerOrNil(); router != nil {
		if err := router.CloseDocument(ctx, doc.URI); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Str("uri", doc.URI).Msg("backend close failed")
		}
	}
	zerolog.Ctx(ctx).Debug().Str("uri", doc.URI).Msg("document closed")
	return nil
}
