// Package mangosrpc carries JSON-RPC documents over nanomsg REQ/REP sockets.
//
// Each request document travels as one REQ message and is answered by one
// REP message. A document made only of notifications is answered with an
// empty message, which the client treats as "no reply".
package mangosrpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/rep"
	"go.nanomsg.org/mangos/v3/protocol/req"

	// import all the transports
	_ "go.nanomsg.org/mangos/v3/transport/all"
)

// Transport is a jsonrpc.Transport backed by a REQ socket. Concurrent sends
// are allowed; each one uses its own socket context.
type Transport struct {
	socket mangos.Socket
}

// NewTransport creates an unconnected transport. Call Dial or Listen before
// sending.
func NewTransport() (*Transport, error) {
	s, err := req.NewSocket()
	if err != nil {
		return nil, err
	}
	return &Transport{socket: s}, nil
}

// Dial creates a transport connected to url.
func Dial(url string) (*Transport, error) {
	t, err := NewTransport()
	if err != nil {
		return nil, err
	}
	if err := t.Dial(url); err != nil {
		_ = t.Close()
		return nil, err
	}
	return t, nil
}

// Dial connects to a server. It may be called more than once to spread
// requests over several servers.
func (t *Transport) Dial(url string) error {
	return t.socket.Dial(url)
}

// Listen lets servers dial in, reversing the connection direction while
// keeping the REQ role.
func (t *Transport) Listen(url string) error {
	return t.socket.Listen(url)
}

// Send delivers payload and waits for the reply or for ctx to end, whichever
// comes first. The context bounds both the send and the receive.
func (t *Transport) Send(ctx context.Context, payload []byte) ([]byte, error) {
	mc, err := t.socket.OpenContext()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = mc.Close()
	}()

	type result struct {
		reply []byte
		err   error
	}
	done := make(chan result, 1)

	go func() {
		if err := mc.Send(payload); err != nil {
			done <- result{err: err}
			return
		}
		b, err := mc.Recv()
		done <- result{reply: b, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.reply, r.err
	}
}

// Close closes the socket. In-flight sends fail.
func (t *Transport) Close() error {
	return t.socket.Close()
}

// Handler turns a request document into a reply document; nil means no
// reply. *jsonrpc.Dispatcher implements it.
type Handler interface {
	Handle(ctx context.Context, payload []byte) []byte
}

// Server answers REQ messages with a Handler.
type Server struct {
	socket  mangos.Socket
	handler Handler
	log     zerolog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger. It is also attached to the context
// passed to the handler.
func WithLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// NewServer creates a server backed by a REP socket.
func NewServer(h Handler, opts ...ServerOption) (*Server, error) {
	sock, err := rep.NewSocket()
	if err != nil {
		return nil, err
	}
	s := &Server{socket: sock, handler: h, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetOption sets a mangos option on the underlying REP socket.
func (s *Server) SetOption(name string, value any) error {
	return s.socket.SetOption(name, value)
}

func (s *Server) Listen(url string) error {
	return s.socket.Listen(url)
}

func (s *Server) Dial(url string) error {
	return s.socket.Dial(url)
}

// Serve answers requests one at a time until ctx ends or the server is
// closed. It returns nil after Close, ctx.Err() after cancellation, and any
// other receive error as is, such as mangos.ErrRecvTimeout when a receive
// deadline is set.
func (s *Server) Serve(ctx context.Context) error {
	mc, err := s.socket.OpenContext()
	if err != nil {
		return err
	}
	defer func() {
		_ = mc.Close()
	}()
	stop := context.AfterFunc(ctx, func() {
		_ = mc.Close()
	})
	defer stop()

	if s.log.GetLevel() != zerolog.Disabled {
		ctx = s.log.WithContext(ctx)
	}
	for {
		msg, err := mc.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, mangos.ErrClosed) {
				return nil
			}
			return fmt.Errorf("mangosrpc: receive: %w", err)
		}

		reply := s.handler.Handle(ctx, msg)
		if reply == nil {
			// REP must answer every request; an empty body means no reply.
			reply = []byte{}
		}
		if err := mc.Send(reply); err != nil {
			if errors.Is(err, mangos.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("mangosrpc: send failed")
		}
	}
}

// ServeAsync runs workers Serve loops in parallel, each on its own socket
// context, and returns immediately. At least one loop is started.
func (s *Server) ServeAsync(ctx context.Context, workers int) {
	workers = max(workers, 1)
	for i := 0; i < workers; i++ {
		go func() {
			if err := s.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error().Err(err).Msg("mangosrpc: serve loop stopped")
			}
		}()
	}
}

// Close closes the socket, stopping all Serve loops.
func (s *Server) Close() error {
	return s.socket.Close()
}
