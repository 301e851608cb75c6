package jsonrpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

var (
	// ErrIDMismatch is returned when a reply carries an id other than the one
	// of the request it answers.
	ErrIDMismatch = errors.New("jsonrpc: response id does not match request id")
	// ErrNoReply is returned when an invocation gets an empty reply.
	ErrNoReply = errors.New("jsonrpc: no reply to invocation")
	// ErrUnexpectedReply is returned when a reply has the wrong shape, such
	// as a successful response to a batch.
	ErrUnexpectedReply = errors.New("jsonrpc: unexpected reply")
)

// Transport delivers one request document and returns the reply document.
// An empty reply means the server sent nothing back.
type Transport interface {
	Send(ctx context.Context, payload []byte) ([]byte, error)
}

// TransportFunc adapts a function to a Transport.
type TransportFunc func(ctx context.Context, payload []byte) ([]byte, error)

func (f TransportFunc) Send(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

// IDGenerator produces request ids. It must be safe for concurrent use.
type IDGenerator func() ID

// Client issues requests over a Transport.
type Client struct {
	transport Transport
	codec     Codec
	nextID    IDGenerator
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientCodec sets the codec used to encode requests and decode replies.
func WithClientCodec(c Codec) ClientOption {
	return func(cl *Client) {
		cl.codec = codecOrDefault(c)
	}
}

// WithIDGenerator replaces the default random string ids.
func WithIDGenerator(gen IDGenerator) ClientOption {
	return func(cl *Client) {
		if gen != nil {
			cl.nextID = gen
		}
	}
}

// SequentialIDs numbers requests 1, 2, 3...
func SequentialIDs() ClientOption {
	var n atomic.Int64
	return WithIDGenerator(func() ID {
		return NumberID(n.Add(1))
	})
}

// NewClient creates a client sending requests over t. Invocations get a
// fresh UUID string id unless another generator is configured.
func NewClient(t Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: t,
		codec:     DefaultCodec,
		nextID: func() ID {
			return StringID(uuid.NewString())
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invocation builds an invocation of method with a fresh id, for use in
// Batch.
func (c *Client) Invocation(method string, params any) Request {
	return NewInvocation(method, params, c.nextID())
}

// Do sends a single request. For an invocation the decoded response is
// returned; an error response is not a Go error here. For a notification the
// zero Response is returned, unless the server answered with an error.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	payload, err := EncodeRequest(c.codec, req)
	if err != nil {
		return Response{}, err
	}
	reply, err := c.transport.Send(ctx, payload)
	if err != nil {
		return Response{}, err
	}
	reply = bytes.TrimSpace(reply)

	if req.IsNotification() {
		if len(reply) == 0 {
			return Response{}, nil
		}
		resp, err := DecodeResponse(c.codec, reply)
		if err != nil {
			return Response{}, err
		}
		if resp.IsFailure() {
			return Response{}, resp.Failure()
		}
		return Response{}, fmt.Errorf("%w: result for a notification", ErrUnexpectedReply)
	}

	if len(reply) == 0 {
		return Response{}, ErrNoReply
	}
	resp, err := DecodeResponse(c.codec, reply)
	if err != nil {
		return Response{}, err
	}
	id, _ := req.ID()
	if resp.ID() != id {
		// A server that could not read the request answers with a null id.
		if resp.IsFailure() && resp.ID().IsNull() {
			return resp, nil
		}
		return Response{}, fmt.Errorf("%w: sent %s, got %s", ErrIDMismatch, id, resp.ID())
	}
	return resp, nil
}

// Call invokes method and decodes the result into result, which may be nil
// to discard it. An error response is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	resp, err := c.Do(ctx, c.Invocation(method, params))
	if err != nil {
		return err
	}
	if resp.IsFailure() {
		return resp.Failure()
	}
	if result == nil {
		return nil
	}
	return resp.DecodeResult(result)
}

// Invoke calls method on c and decodes the result as T.
func Invoke[T any](ctx context.Context, c *Client, method string, params any) (T, error) {
	var result T
	err := c.Call(ctx, method, params, &result)
	return result, err
}

// Notify sends a notification. It only fails on transport errors or when the
// server rejects the document outright.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	_, err := c.Do(ctx, NewNotification(method, params))
	return err
}

// Batch sends reqs as one batch. Responses come back in server order; use
// BatchResponse.Item to correlate them. A batch of notifications yields an
// empty BatchResponse. If the server rejects the batch as a whole, its error
// is returned as *Error.
func (c *Client) Batch(ctx context.Context, reqs []Request) (BatchResponse, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, req := range reqs {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := EncodeRequest(c.codec, req)
		if err != nil {
			return nil, fmt.Errorf("jsonrpc: batch item %d: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')

	reply, err := c.transport.Send(ctx, buf.Bytes())
	if err != nil {
		return nil, err
	}
	reply = bytes.TrimSpace(reply)
	if len(reply) == 0 {
		return BatchResponse{}, nil
	}

	if !gjson.ValidBytes(reply) {
		return nil, fmt.Errorf("%w: batch reply", ErrMalformedJSON)
	}
	doc := gjson.ParseBytes(reply)
	if !doc.IsArray() {
		resp, err := DecodeResponse(c.codec, reply)
		if err != nil {
			return nil, err
		}
		if resp.IsFailure() {
			return nil, resp.Failure()
		}
		return nil, fmt.Errorf("%w: single result for a batch", ErrUnexpectedReply)
	}

	items := doc.Array()
	out := make(BatchResponse, 0, len(items))
	for i, item := range items {
		resp, err := DecodeResponse(c.codec, []byte(item.Raw))
		if err != nil {
			return nil, fmt.Errorf("jsonrpc: batch reply item %d: %w", i, err)
		}
		out = append(out, resp)
	}
	return out, nil
}
