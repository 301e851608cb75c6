// Package wsrpc carries JSON-RPC documents over WebSocket connections.
//
// Every text or binary message is one request document. Requests on a
// connection are handled concurrently and replies are written as they become
// ready, so clients correlate them by id. Notifications produce no message.
package wsrpc

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait             = 10 * time.Second
	pongWait              = 60 * time.Second
	pingPeriod            = (pongWait * 9) / 10
	defaultMaxMessageSize = 1 << 20
	sendBuffer            = 64
)

// Handler turns a request document into a reply document; nil means no
// reply. *jsonrpc.Dispatcher implements it.
type Handler interface {
	Handle(ctx context.Context, payload []byte) []byte
}

// Server is an http.Handler that upgrades requests to WebSocket and serves
// JSON-RPC on the connection until it closes.
type Server struct {
	handler        Handler
	upgrader       websocket.Upgrader
	log            zerolog.Logger
	maxMessageSize int64
}

// ServerOption configures a Server.
type ServerOption func(*Server)

func WithLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// WithCheckOrigin sets the origin policy of the upgrader. By default only
// same-origin requests are accepted.
func WithCheckOrigin(fn func(r *http.Request) bool) ServerOption {
	return func(s *Server) {
		s.upgrader.CheckOrigin = fn
	}
}

// WithMaxMessageSize limits the size of incoming messages.
func WithMaxMessageSize(n int64) ServerOption {
	return func(s *Server) {
		s.maxMessageSize = n
	}
}

func NewServer(h Handler, opts ...ServerOption) *Server {
	s := &Server{
		handler: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log:            zerolog.Nop(),
		maxMessageSize: defaultMaxMessageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP implements http.Handler. It returns when the connection is
// closed.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("wsrpc: upgrade failed")
		return
	}
	log := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	log.Debug().Msg("wsrpc: connection established")

	ctx := r.Context()
	if log.GetLevel() != zerolog.Disabled {
		ctx = log.WithContext(ctx)
	}

	send := make(chan []byte, sendBuffer)
	stopped := make(chan struct{})
	go s.writePump(conn, send, stopped, log)
	s.readPump(ctx, conn, send, stopped, log)
	<-stopped
	log.Debug().Msg("wsrpc: connection closed")
}

// readPump reads request documents and hands each to the handler on its own
// goroutine. When reading stops it waits for those handlers, then closes
// send so that writePump can finish.
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, send chan<- []byte, stopped <-chan struct{}, log zerolog.Logger) {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(send)
	}()

	if s.maxMessageSize > 0 {
		conn.SetReadLimit(s.maxMessageSize)
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("wsrpc: read failed")
			}
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			reply := s.handler.Handle(ctx, msg)
			if reply == nil {
				return
			}
			select {
			case send <- reply:
			case <-stopped:
			}
		}()
	}
}

// writePump is the only writer on conn. It also keeps the connection alive
// with pings.
func (s *Server) writePump(conn *websocket.Conn, send <-chan []byte, stopped chan<- struct{}, log zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(stopped)
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Warn().Err(err).Msg("wsrpc: write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
