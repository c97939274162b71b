package proxy

import (
	"context"
	"io"
	"os"

	"github.com/creachadair/jrpc2/channel"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/erbls/pkg/lsp/protocol"
)

type Handler struct {
	in  io.Reader
	out io.WriteCloser
}

func NewProxyCommand() *cobra.Command {
	me := &Handler{in: os.Stdin, out: os.Stdout}

	cmd := &cobra.Command{
		Use:   "proxy <ws-url>",
		Short: "bridge an editor's stdio to a server started with serve-lsp --listen",
		Args:  cobra.ExactArgs(1),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return me.Run(cmd.Context(), args[0])
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return errors.Errorf("connecting to %s: %w", url, err)
	}
	remote := protocol.NewWebSocketChannel(conn)
	defer remote.Close()

	local := channel.LSP(me.in, me.out)
	defer local.Close()

	return Bridge(ctx, local, remote)
}

// Bridge copies messages both ways until either side closes. A side that
// ends cleanly is not an error.
func Bridge(ctx context.Context, a, b channel.Channel) error {
	done := make(chan error, 2)

	go func() { done <- pump(a, b) }()
	go func() { done <- pump(b, a) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-done:
		if err == nil || errors.Is(err, io.EOF) || channel.IsErrClosing(err) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil
		}
		return errors.Errorf("proxying lsp: %w", err)
	}
}

func pump(from, to channel.Channel) error {
	for {
		msg, err := from.Recv()
		if err != nil {
			return err
		}
		if err := to.Send(msg); err != nil {
			return err
		}
	}
}
