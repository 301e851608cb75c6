package wsrpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/mnehpets/jsonrpc2/jsonrpc"
)

var (
	// ErrClosed is returned by Send once the connection is gone.
	ErrClosed = errors.New("wsrpc: connection closed")
	// ErrIDInUse is returned when a request reuses the id of a request that
	// is still waiting for its reply.
	ErrIDInUse = errors.New("wsrpc: id already in flight")
)

// nullKey correlates replies with a null id, which the server sends when it
// cannot read the id of a request.
var nullKey = jsonrpc.NullID.String()

type call struct {
	keys  []string
	reply chan []byte
}

// Transport is a jsonrpc.Transport over one WebSocket connection. Replies
// are matched to requests by id, so any number of Send calls may be in
// flight at once as long as their ids differ.
type Transport struct {
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]*call
	err     error
	done    chan struct{}
}

// ClientOption configures a Transport.
type ClientOption func(*Transport)

func WithClientLogger(l zerolog.Logger) ClientOption {
	return func(t *Transport) {
		t.log = l
	}
}

// Dial connects to a wsrpc server at url (ws:// or wss://).
func Dial(ctx context.Context, url string, header http.Header, opts ...ClientOption) (*Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("wsrpc: dial %s: %w", url, err)
	}
	return NewTransport(conn, opts...), nil
}

// NewTransport serves an established connection. The transport owns conn
// from now on.
func NewTransport(conn *websocket.Conn, opts ...ClientOption) *Transport {
	t := &Transport{
		conn:    conn,
		log:     zerolog.Nop(),
		pending: make(map[string]*call),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.readLoop()
	return t
}

// Send writes payload and waits for the matching reply. Documents holding
// only notifications return as soon as they are written.
func (t *Transport) Send(ctx context.Context, payload []byte) ([]byte, error) {
	keys, expectReply := replyKeys(payload)

	var c *call
	if expectReply {
		c = &call{keys: keys, reply: make(chan []byte, 1)}
		if err := t.register(c); err != nil {
			return nil, err
		}
		defer t.unregister(c)
	}

	t.writeMu.Lock()
	err := t.conn.WriteMessage(websocket.TextMessage, payload)
	t.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("wsrpc: write: %w", err)
	}
	if c == nil {
		return nil, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case reply := <-c.reply:
		return reply, nil
	case <-t.done:
		return nil, t.closeErr()
	}
}

// Close closes the connection. Pending sends fail with ErrClosed.
func (t *Transport) Close() error {
	t.writeMu.Lock()
	_ = t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()
	return t.conn.Close()
}

func (t *Transport) register(c *call) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	for _, k := range c.keys {
		if _, ok := t.pending[k]; ok {
			return fmt.Errorf("%w: %s", ErrIDInUse, k)
		}
	}
	for _, k := range c.keys {
		t.pending[k] = c
	}
	return nil
}

func (t *Transport) unregister(c *call) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range c.keys {
		if t.pending[k] == c {
			delete(t.pending, k)
		}
	}
}

func (t *Transport) closeErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Transport) readLoop() {
	defer close(t.done)
	for {
		_, msg, err := t.conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			t.err = fmt.Errorf("%w: %v", ErrClosed, err)
			t.mu.Unlock()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Warn().Err(err).Msg("wsrpc: read failed")
			}
			return
		}
		t.deliver(msg)
	}
}

func (t *Transport) deliver(msg []byte) {
	key := replyKey(msg)
	t.mu.Lock()
	c, ok := t.pending[key]
	if !ok && key == nullKey {
		// The server could not read some request's id. That request can
		// only be identified when a single call is waiting.
		c, ok = t.soleCallLocked()
	}
	if ok {
		for _, k := range c.keys {
			delete(t.pending, k)
		}
	}
	t.mu.Unlock()
	if !ok {
		t.log.Debug().Str("id", key).Msg("wsrpc: dropping uncorrelated reply")
		return
	}
	c.reply <- msg
}

func (t *Transport) soleCallLocked() (*call, bool) {
	var sole *call
	for _, c := range t.pending {
		if sole != nil && c != sole {
			return nil, false
		}
		sole = c
	}
	return sole, sole != nil
}

// replyKeys lists the ids a request document will be answered with. A
// document the server cannot read is answered with a null id.
func replyKeys(payload []byte) (keys []string, expectReply bool) {
	if !gjson.ValidBytes(payload) {
		return []string{nullKey}, true
	}
	doc := gjson.ParseBytes(payload)
	switch {
	case doc.IsObject():
		idField := doc.Get("id")
		if !idField.Exists() {
			if isNotification(doc) {
				return nil, false
			}
			return []string{nullKey}, true
		}
		return []string{idKey(idField)}, true
	case doc.IsArray():
		items := doc.Array()
		if len(items) == 0 {
			return []string{nullKey}, true
		}
		malformed := false
		for _, item := range items {
			if !item.IsObject() {
				malformed = true
				continue
			}
			if idField := item.Get("id"); idField.Exists() {
				keys = append(keys, idKey(idField))
			} else if !isNotification(item) {
				malformed = true
			}
		}
		if len(keys) == 0 && !malformed {
			return nil, false
		}
		if len(keys) == 0 {
			keys = []string{nullKey}
		}
		return keys, true
	default:
		return []string{nullKey}, true
	}
}

// isNotification reports whether a request object without an id is a
// well-formed notification. Anything else is answered with a null id.
func isNotification(obj gjson.Result) bool {
	version := obj.Get("jsonrpc")
	return obj.Get("method").Type == gjson.String && version.Type == gjson.String && version.Str == jsonrpc.Version
}

// replyKey picks the id that identifies a reply document: the id of a single
// response, or the first non-null id in a batch reply. A corrupt reply has no
// readable id and is keyed null.
func replyKey(msg []byte) string {
	if !gjson.ValidBytes(msg) {
		return nullKey
	}
	doc := gjson.ParseBytes(msg)
	if doc.IsArray() {
		for _, item := range doc.Array() {
			if k := idKey(item.Get("id")); k != nullKey {
				return k
			}
		}
		return nullKey
	}
	return idKey(doc.Get("id"))
}

func idKey(field gjson.Result) string {
	if !field.Exists() {
		return nullKey
	}
	var id jsonrpc.ID
	if err := id.UnmarshalJSON([]byte(field.Raw)); err != nil {
		return nullKey
	}
	return id.String()
}
