package jsonrpc

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoopbackClient(n *notifications, opts ...ClientOption) *Client {
	return NewClient(NewDispatcher(newTestRegistry(n)), opts...)
}

func TestClientInvoke(t *testing.T) {
	c := newLoopbackClient(&notifications{})
	ctx := context.Background()

	got, err := Invoke[int](ctx, c, "subtract", []int{42, 23})
	require.NoError(t, err)
	assert.Equal(t, 19, got)

	got, err = Invoke[int](ctx, c, "subtract", map[string]int{"minuend": 23, "subtrahend": 42})
	require.NoError(t, err)
	assert.Equal(t, -19, got)

	data, err := Invoke[[]any](ctx, c, "get_data", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"hello", float64(5)}, data)

	require.NoError(t, c.Call(ctx, "silent", nil, nil))
}

func TestClientCallError(t *testing.T) {
	c := newLoopbackClient(&notifications{})

	err := c.Call(context.Background(), "foobar", nil, nil)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeMethodNotFound, rpcErr.Code)

	err = c.Call(context.Background(), "fail_rpc", nil, nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
	var detail string
	require.NoError(t, rpcErr.DecodeData(&detail))
	assert.Equal(t, "detail", detail)
}

func TestClientNotify(t *testing.T) {
	n := &notifications{}
	c := newLoopbackClient(n)

	require.NoError(t, c.Notify(context.Background(), "update", []int{1, 2, 3}))
	require.NoError(t, c.Notify(context.Background(), "foobar", nil))
	assert.Equal(t, []string{"update"}, n.got())
}

func TestClientNotifyRejected(t *testing.T) {
	c := NewClient(TransportFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32600,"message":"Invalid Request"},"id":null}`), nil
	}))

	err := c.Notify(context.Background(), "update", nil)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeInvalidRequest, rpcErr.Code)
}

func TestClientBatch(t *testing.T) {
	n := &notifications{}
	c := newLoopbackClient(n, SequentialIDs())

	sum := c.Invocation("sum", []int{1, 2, 4})
	diff := c.Invocation("subtract", []int{42, 23})
	missing := c.Invocation("foo.get", map[string]string{"name": "myself"})

	batch, err := c.Batch(context.Background(), []Request{
		sum,
		NewNotification("notify_hello", []int{7}),
		diff,
		missing,
	})
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, []string{"notify_hello"}, n.got())

	id, _ := sum.ID()
	assert.Equal(t, NumberID(1), id)
	r, ok := batch.Item(id)
	require.True(t, ok)
	total, err := ResultAs[int](r)
	require.NoError(t, err)
	assert.Equal(t, 7, total)

	id, _ = diff.ID()
	r, ok = batch.Item(id)
	require.True(t, ok)
	d, err := ResultAs[int](r)
	require.NoError(t, err)
	assert.Equal(t, 19, d)

	id, _ = missing.ID()
	r, ok = batch.Item(id)
	require.True(t, ok)
	require.True(t, r.IsFailure())
	assert.Equal(t, CodeMethodNotFound, r.Failure().Code)
}

func TestClientBatchEdges(t *testing.T) {
	c := newLoopbackClient(&notifications{})
	ctx := context.Background()

	_, err := c.Batch(ctx, nil)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeInvalidRequest, rpcErr.Code)

	batch, err := c.Batch(ctx, []Request{
		NewNotification("update", nil),
		NewNotification("notify_hello", nil),
	})
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestClientDefaultIDs(t *testing.T) {
	c := NewClient(nil)
	id, ok := c.Invocation("a", nil).ID()
	require.True(t, ok)
	s, ok := id.Str()
	require.True(t, ok)
	_, err := uuid.Parse(s)
	assert.NoError(t, err)

	other, _ := c.Invocation("a", nil).ID()
	assert.NotEqual(t, id, other)
}

func TestClientReplyChecks(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  error
	}{
		{"id mismatch", `{"jsonrpc":"2.0","result":1,"id":99}`, ErrIDMismatch},
		{"empty reply", ``, ErrNoReply},
		{"whitespace reply", " \n", ErrNoReply},
		{"malformed reply", `{"jsonrpc":"2.0","id":1}`, ErrAmbiguousOutcome},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(TransportFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
				return []byte(tt.reply), nil
			}), SequentialIDs())
			_, err := c.Do(context.Background(), c.Invocation("a", nil))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClientBatchCorruptReply(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"truncated array", `[{"jsonrpc":"2.0","result":1,"id":1}`},
		{"truncated item", `[{"jsonrpc":"2.0","result":1,"id":1},{"jsonrpc":"2.0","res`},
		{"trailing garbage", `[{"jsonrpc":"2.0","result":1,"id":1}]]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(TransportFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
				return []byte(tt.reply), nil
			}), SequentialIDs())
			batch, err := c.Batch(context.Background(), []Request{c.Invocation("a", nil)})
			assert.ErrorIs(t, err, ErrMalformedJSON)
			assert.True(t, IsDecodeError(err))
			assert.Nil(t, batch)
		})
	}
}

func TestClientNullIDFailure(t *testing.T) {
	c := NewClient(TransportFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32700,"message":"Parse error"},"id":null}`), nil
	}))

	err := c.Call(context.Background(), "a", nil, nil)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeParseError, rpcErr.Code)
}

func TestClientTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	c := NewClient(TransportFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, boom
	}))

	assert.ErrorIs(t, c.Call(context.Background(), "a", nil, nil), boom)
	assert.ErrorIs(t, c.Notify(context.Background(), "a", nil), boom)
	_, err := c.Batch(context.Background(), []Request{c.Invocation("a", nil)})
	assert.ErrorIs(t, err, boom)
}

func TestClientSendsEncodedRequest(t *testing.T) {
	var sent string
	c := NewClient(TransportFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		sent = string(payload)
		return []byte(`{"jsonrpc":"2.0","result":19,"id":1}`), nil
	}), SequentialIDs())

	got, err := Invoke[int](context.Background(), c, "subtract", []int{42, 23})
	require.NoError(t, err)
	assert.Equal(t, 19, got)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"subtract","params":[42,23],"id":1}`, sent)
}
