package jsonrpc

import (
	"bytes"
	"context"
	"errors"
	"runtime/debug"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

// defaultMaxBodyBytes bounds HTTP request bodies read by Endpoint.
const defaultMaxBodyBytes = 1 << 20

// Dispatcher routes request documents to the handlers of a Registry and
// produces the reply document.
//
// A Dispatcher is safe for concurrent use as long as the Registry is not
// modified while requests are in flight.
type Dispatcher struct {
	registry         Registry
	codec            Codec
	log              zerolog.Logger
	batchConcurrency int
	maxBodyBytes     int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCodec sets the codec used to decode requests and encode responses.
func WithCodec(c Codec) Option {
	return func(d *Dispatcher) {
		d.codec = codecOrDefault(c)
	}
}

// WithLogger sets the logger used when the request context carries none.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.log = l
	}
}

// WithBatchConcurrency lets up to n items of a batch run at the same time.
// n <= 1 processes batch items strictly in order.
func WithBatchConcurrency(n int) Option {
	return func(d *Dispatcher) {
		d.batchConcurrency = n
	}
}

// WithMaxBodyBytes limits the size of HTTP request bodies accepted by
// Endpoint. n <= 0 removes the limit.
func WithMaxBodyBytes(n int64) Option {
	return func(d *Dispatcher) {
		d.maxBodyBytes = n
	}
}

// NewDispatcher creates a Dispatcher serving the methods of reg.
func NewDispatcher(reg Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:         reg,
		codec:            DefaultCodec,
		log:              zerolog.Nop(),
		batchConcurrency: 1,
		maxBodyBytes:     defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Codec returns the codec used by d.
func (d *Dispatcher) Codec() Codec { return d.codec }

// Handle processes one request document and returns the encoded reply. A nil
// reply means nothing must be sent back: the document held only
// notifications.
//
// A document that is neither a request nor a batch array, whether invalid
// JSON or a malformed request, is answered with a Parse error. The empty
// batch and malformed batch elements are answered with Invalid Request.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) []byte {
	if !gjson.ValidBytes(payload) {
		return d.encode(ctx, NewFailure(NullID, NewParseError(nil)))
	}
	doc := gjson.ParseBytes(payload)
	if doc.IsArray() {
		return d.handleBatch(ctx, doc.Array())
	}
	req, err := d.decodeItem(ctx, doc)
	if err != nil {
		return d.encode(ctx, NewFailure(NullID, NewParseError(nil)))
	}
	resp, ok := d.HandleRequest(ctx, req)
	if !ok {
		return nil
	}
	return d.encode(ctx, resp)
}

// Send implements Transport by dispatching payload in-process.
func (d *Dispatcher) Send(ctx context.Context, payload []byte) ([]byte, error) {
	return d.Handle(ctx, payload), nil
}

// HandleRequest runs a single decoded request. ok is false for
// notifications, which never produce a response.
func (d *Dispatcher) HandleRequest(ctx context.Context, req Request) (resp Response, ok bool) {
	if req.IsNotification() {
		d.notify(ctx, req)
		return Response{}, false
	}

	id, _ := req.ID()
	h, found := d.registry.Lookup(req.Method())
	if !found {
		return NewFailure(id, NewMethodNotFoundError(nil)), true
	}

	rb := NewResponseBuilder(id)
	d.invoke(ctx, h, req, rb)
	if !rb.Committed() {
		rb.ReturnNull()
	}
	resp, _ = rb.Response()
	return resp, true
}

func (d *Dispatcher) handleBatch(ctx context.Context, items []gjson.Result) []byte {
	if len(items) == 0 {
		return d.encode(ctx, NewFailure(NullID, NewInvalidRequestError(nil)))
	}

	// Each item writes only its own slot, so replies keep the order of the
	// batch whatever order the items finish in.
	slots := make([][]byte, len(items))
	run := func(i int) {
		if resp, ok := d.handleItem(ctx, items[i]); ok {
			slots[i] = d.encode(ctx, resp)
		}
	}

	if d.batchConcurrency <= 1 {
		for i := range items {
			run(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(d.batchConcurrency)
		for i := range items {
			i := i
			g.Go(func() error {
				run(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	replies := make([][]byte, 0, len(slots))
	for _, b := range slots {
		if b != nil {
			replies = append(replies, b)
		}
	}
	if len(replies) == 0 {
		return nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.Write(bytes.Join(replies, []byte{','}))
	buf.WriteByte(']')
	return buf.Bytes()
}

// handleItem decodes and runs one batch element.
func (d *Dispatcher) handleItem(ctx context.Context, item gjson.Result) (Response, bool) {
	req, err := d.decodeItem(ctx, item)
	if err != nil {
		return NewFailure(NullID, NewInvalidRequestError(nil)), true
	}
	return d.HandleRequest(ctx, req)
}

func (d *Dispatcher) decodeItem(ctx context.Context, item gjson.Result) (Request, error) {
	if !item.IsObject() {
		d.logger(ctx).Debug().Str("type", item.Type.String()).Msg("rejecting non-object request")
		return Request{}, ErrNotObject
	}
	req, err := DecodeRequest(d.codec, []byte(item.Raw))
	if err != nil {
		d.logger(ctx).Debug().Err(err).Msg("rejecting malformed request")
		return Request{}, err
	}
	return req, nil
}

// invoke runs h and converts whatever it leaves behind into a committed
// builder. Once the builder is committed, later errors and panics are only
// logged. A *CommitViolation is never recovered.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, req Request, rb *ResponseBuilder) {
	log := d.logger(ctx).With().Str("method", req.Method()).Stringer("id", rb.ID()).Logger()

	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if cv, ok := p.(*CommitViolation); ok {
			panic(cv)
		}
		if rb.Committed() {
			log.Warn().Interface("panic", p).Msg("handler panicked after committing a response")
			return
		}
		log.Error().Interface("panic", p).Str("stack", string(debug.Stack())).Msg("handler panicked")
		rb.Fail(NewInternalError(nil))
	}()

	err := h(ctx, req, rb)
	if err == nil {
		return
	}
	if rb.Committed() {
		log.Warn().Err(err).Msg("ignoring handler error after commit")
		return
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		rb.Fail(rpcErr)
		return
	}
	log.Error().Err(err).Msg("handler failed")
	rb.Fail(NewInternalError(nil))
}

func (d *Dispatcher) notify(ctx context.Context, req Request) {
	log := d.logger(ctx).With().Str("method", req.Method()).Logger()

	h, ok := d.registry.LookupNotification(req.Method())
	if !ok {
		log.Debug().Msg("dropping notification for unknown method")
		return
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("stack", string(debug.Stack())).Msg("notification handler panicked")
		}
	}()
	if err := h(ctx, req); err != nil {
		log.Warn().Err(err).Msg("notification handler failed")
	}
}

// encode serializes resp. A result that cannot be serialized turns the reply
// into an Internal error for the same id.
func (d *Dispatcher) encode(ctx context.Context, resp Response) []byte {
	b, err := EncodeResponse(d.codec, resp)
	if err == nil {
		return b
	}
	log := d.logger(ctx)
	log.Error().Err(err).Stringer("id", resp.ID()).Msg("failed to encode response")
	b, err = EncodeResponse(d.codec, NewFailure(resp.ID(), NewInternalError(nil)))
	if err != nil {
		log.Error().Err(err).Stringer("id", resp.ID()).Msg("failed to encode error response")
		return nil
	}
	return b
}

// logger prefers a logger carried by ctx over the configured one.
func (d *Dispatcher) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &d.log
}
