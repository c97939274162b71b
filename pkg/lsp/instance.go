package lsp

import (
	"context"
	"io"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/erbls/pkg/lsp/protocol"
)

// ServerInstance is one Server bound to one editor connection.
type ServerInstance struct {
	server   *Server
	instance *jrpc2.Server
	callback *protocol.CallbackClient
}

// BuildServerInstance wires s to a jrpc2 server. Concurrency defaults to the
// configured value so a request's registry write precedes its read.
func (s *Server) BuildServerInstance(ctx context.Context, opts *jrpc2.ServerOptions) *ServerInstance {
	if opts == nil {
		opts = &jrpc2.ServerOptions{}
	}
	if opts.Concurrency == 0 {
		cfg, _ := s.config()
		opts.Concurrency = cfg.Server.Concurrency
	}
	if opts.RPCLog == nil {
		opts.RPCLog = protocol.NewZerologRPCLogger(*zerolog.Ctx(ctx))
	}

	ctx = zerolog.Ctx(ctx).With().Str("server_id", s.id).Logger().WithContext(ctx)

	instance, callback := protocol.NewServerServer(ctx, s, opts)
	s.SetCallbackClient(callback)

	return &ServerInstance{server: s, instance: instance, callback: callback}
}

func (si *ServerInstance) Instance() *jrpc2.Server {
	return si.instance
}

// Start serves ch without blocking.
func (si *ServerInstance) Start(ch channel.Channel) {
	si.instance.Start(ch)
}

// Wait blocks until the connection ends. A connection that closes after
// shutdown is a clean exit.
func (si *ServerInstance) Wait() error {
	err := si.instance.Wait()
	if err == nil || errors.Is(err, jrpc2.ErrConnClosed) || errors.Is(err, io.EOF) {
		return nil
	}
	if si.server.ShutdownReceived() {
		return nil
	}
	return errors.Errorf("serving lsp: %w", err)
}

// StartAndWait serves the LSP base protocol over r and w until the editor
// disconnects or sends exit.
func (si *ServerInstance) StartAndWait(r io.Reader, w io.WriteCloser) error {
	si.Start(channel.LSP(r, w))
	return si.Wait()
}
