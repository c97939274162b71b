package protocol

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/creachadair/jrpc2/channel"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var _ channel.Channel = (*WebSocketChannel)(nil)

// WebSocketChannel carries one JSON-RPC message per text frame.
type WebSocketChannel struct {
	ID string

	conn *websocket.Conn
	wmu  sync.Mutex
}

func NewWebSocketChannel(conn *websocket.Conn) *WebSocketChannel {
	return &WebSocketChannel{ID: uuid.NewString(), conn: conn}
}

func (w *WebSocketChannel) Send(msg []byte) error {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, msg)
}

func (w *WebSocketChannel) Recv() ([]byte, error) {
	for {
		kind, msg, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return msg, nil
		}
	}
}

func (w *WebSocketChannel) Close() error {
	return w.conn.Close()
}

// checkOrigin accepts clients that send no Origin header, same-host pages
// and the listed origins. Anything else is a foreign browser page.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

// WebSocketHandler upgrades each request and hands the channel to serve,
// which owns it until it returns. Cross-origin browser requests are refused
// unless their origin is in allowedOrigins.
func WebSocketHandler(serve func(r *http.Request, ch *WebSocketChannel) error, allowedOrigins ...string) http.Handler {
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin(allowedOrigins)}
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			// Upgrade already replied with an error status
			zerolog.Ctx(r.Context()).Debug().Err(err).Str("origin", r.Header.Get("Origin")).Msg("websocket upgrade refused")
			return
		}
		ch := NewWebSocketChannel(conn)
		defer ch.Close()
		if err := serve(r, ch); err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Str("conn", ch.ID).Msg("websocket session ended")
		}
	})
}
