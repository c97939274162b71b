package serve_lsp

import (
	"context"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/erbls/pkg/config"
	"github.com/walteh/erbls/pkg/debug"
	"github.com/walteh/erbls/pkg/lsp"
	"github.com/walteh/erbls/pkg/lsp/protocol"
)

// ErrExitWithoutShutdown makes the process exit with code 1 when the editor
// goes away without asking for shutdown first.
var ErrExitWithoutShutdown = errors.New("exit without shutdown")

type Handler struct {
	debug        bool
	configPath   string
	listen       string
	allowOrigins []string

	mu      sync.Mutex
	cfg     *config.Config
	servers map[*lsp.Server]struct{}
}

func NewServeLSPCommand() *cobra.Command {
	me := &Handler{servers: make(map[*lsp.Server]struct{})}

	cmd := &cobra.Command{
		Use:   "serve-lsp",
		Short: "start the language server",
	}

	cmd.Flags().BoolVar(&me.debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&me.configPath, "config", "", "config file (default: .erbls.yaml, .erbls.yml or .erbls.hcl in the working directory)")
	cmd.Flags().StringVar(&me.listen, "listen", "", "serve over websocket on this address instead of stdio")
	cmd.Flags().StringSliceVar(&me.allowOrigins, "allow-origin", nil, "extra browser origins allowed to open a websocket session")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return me.Run(cmd.Context())
	}

	return cmd
}

func (me *Handler) logger() zerolog.Logger {
	level := zerolog.InfoLevel
	if me.debug {
		level = zerolog.DebugLevel
	}
	return debug.NewLogger(os.Stderr, debug.Options{
		Level:   level,
		Console: me.debug,
		Color:   isatty.IsTerminal(os.Stderr.Fd()),
		Caller:  me.debug,
	}).With().Str("component", "erbls").Logger()
}

func (me *Handler) Run(ctx context.Context) error {
	logger := me.logger()
	ctx = logger.WithContext(ctx)

	fs := afero.NewOsFs()
	wd, err := os.Getwd()
	if err != nil {
		return errors.Errorf("getting working directory: %w", err)
	}

	cfg, path, err := config.LoadOrDefault(fs, me.configPath, wd)
	if err != nil {
		return errors.Errorf("loading config: %w", err)
	}
	me.cfg = cfg
	if path != "" {
		logger.Info().Str("config", path).Msg("using config")
		go func() {
			if err := config.Watch(ctx, fs, path, me.reload); err != nil {
				logger.Warn().Err(err).Msg("config reload disabled")
			}
		}()
	}

	if me.listen != "" {
		return me.serveWebSocket(ctx)
	}
	return me.serveStdio(ctx)
}

// newServer builds a server on the current config and keeps it in the
// reload set until the returned func is called.
func (me *Handler) newServer() (*lsp.Server, func()) {
	me.mu.Lock()
	s := lsp.NewServer(lsp.Options{Config: me.cfg})
	me.servers[s] = struct{}{}
	me.mu.Unlock()
	return s, func() {
		me.mu.Lock()
		delete(me.servers, s)
		me.mu.Unlock()
	}
}

func (me *Handler) reload(cfg *config.Config) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.cfg = cfg
	for s := range me.servers {
		s.SetConfig(cfg)
	}
}

func (me *Handler) serveStdio(ctx context.Context) error {
	server, done := me.newServer()
	defer done()

	instance := server.BuildServerInstance(ctx, nil)

	err := instance.StartAndWait(os.Stdin, os.Stdout)
	closeServer(ctx, server)
	if err != nil {
		return errors.Errorf("error running language server: %w", err)
	}
	if !server.ShutdownReceived() {
		return ErrExitWithoutShutdown
	}
	return nil
}

// closeServer stops the backends of a connection that went away without
// asking for shutdown.
func closeServer(ctx context.Context, server *lsp.Server) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := server.Close(ctx); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("backends did not stop cleanly")
	}
}

func (me *Handler) serveWebSocket(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	handler := protocol.WebSocketHandler(func(r *http.Request, ch *protocol.WebSocketChannel) error {
		connCtx := logger.With().Str("connection", ch.ID).Str("remote", r.RemoteAddr).Logger().WithContext(ctx)

		server, done := me.newServer()
		defer done()

		instance := server.BuildServerInstance(connCtx, nil)
		instance.Start(ch)
		err := instance.Wait()
		closeServer(connCtx, server)
		return err
	}, me.allowOrigins...)

	ln, err := net.Listen("tcp", me.listen)
	if err != nil {
		return errors.Errorf("listening on %s: %w", me.listen, err)
	}
	logger.Info().Str("addr", ln.Addr().String()).Msg("serving lsp over websocket")

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Errorf("serving websocket: %w", err)
	}
	return nil
}
