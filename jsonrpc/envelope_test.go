package jsonrpc

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequest(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{
			"positional invocation",
			NewInvocation("subtract", []int{42, 23}, NumberID(1)),
			`{"jsonrpc":"2.0","method":"subtract","params":[42,23],"id":1}`,
		},
		{
			"named invocation",
			NewInvocation("subtract", map[string]int{"subtrahend": 23, "minuend": 42}, StringID("3")),
			`{"jsonrpc":"2.0","method":"subtract","params":{"subtrahend":23,"minuend":42},"id":"3"}`,
		},
		{
			"notification",
			NewNotification("update", []int{1, 2, 3, 4, 5}),
			`{"jsonrpc":"2.0","method":"update","params":[1,2,3,4,5]}`,
		},
		{
			"no params",
			NewNotification("foobar", nil),
			`{"jsonrpc":"2.0","method":"foobar"}`,
		},
		{
			"null id",
			NewInvocation("foobar", nil, NullID),
			`{"jsonrpc":"2.0","method":"foobar","id":null}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.req)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}

func TestRequestRoundTrip(t *testing.T) {
	reqs := []Request{
		NewInvocation("subtract", []int{42, 23}, NumberID(1)),
		NewInvocation("get_data", nil, StringID("9")),
		NewInvocation("foobar", nil, NullID),
		NewNotification("update", []int{1, 2}),
	}

	for _, req := range reqs {
		t.Run(req.Method(), func(t *testing.T) {
			b, err := EncodeRequest(nil, req)
			require.NoError(t, err)

			got, err := DecodeRequest(nil, b)
			require.NoError(t, err)

			assert.Equal(t, req.Method(), got.Method())
			assert.Equal(t, req.IsNotification(), got.IsNotification())
			wantID, wantHas := req.ID()
			gotID, gotHas := got.ID()
			assert.Equal(t, wantID, gotID)
			assert.Equal(t, wantHas, gotHas)
			assert.Equal(t, req.Params().IsPresent(), got.Params().IsPresent())

			again, err := EncodeRequest(nil, got)
			require.NoError(t, err)
			assert.JSONEq(t, string(b), string(again))
		})
	}
}

func TestDecodeRequestNullIDIsInvocation(t *testing.T) {
	req, err := DecodeRequest(nil, []byte(`{"jsonrpc":"2.0","method":"foobar","id":null}`))
	require.NoError(t, err)
	assert.False(t, req.IsNotification())
	id, ok := req.ID()
	assert.True(t, ok)
	assert.True(t, id.IsNull())
}

func TestDecodeRequestRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"missing version", `{"method":"a","id":1}`, ErrInvalidVersion},
		{"wrong version", `{"jsonrpc":"1.0","method":"a","id":1}`, ErrInvalidVersion},
		{"numeric version", `{"jsonrpc":2.0,"method":"a","id":1}`, ErrInvalidVersion},
		{"null version", `{"jsonrpc":null,"method":"a","id":1}`, ErrInvalidVersion},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, ErrInvalidMethod},
		{"numeric method", `{"jsonrpc":"2.0","method":1,"params":"bar"}`, ErrInvalidMethod},
		{"null method", `{"jsonrpc":"2.0","method":null,"id":1}`, ErrInvalidMethod},
		{"bad id", `{"jsonrpc":"2.0","method":"a","id":true}`, ErrInvalidID},
		{"fractional id", `{"jsonrpc":"2.0","method":"a","id":1.5}`, ErrInvalidID},
		{"array", `[1,2]`, ErrNotObject},
		{"scalar", `"x"`, ErrNotObject},
		{"null", `null`, ErrNotObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRequest(nil, []byte(tt.in))
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsDecodeError(err))
		})
	}
}

// countingCodec records the target types it is asked to decode into.
type countingCodec struct {
	JSONCodec
	targets map[string]int
}

func (c *countingCodec) Unmarshal(data []byte, v any) error {
	c.targets[fmt.Sprintf("%T", v)]++
	return c.JSONCodec.Unmarshal(data, v)
}

func TestEnvelopeMembersUseCodec(t *testing.T) {
	c := &countingCodec{targets: map[string]int{}}

	_, err := DecodeRequest(c, []byte(`{"jsonrpc":"2.0","method":"a","id":1}`))
	require.NoError(t, err)
	assert.Equal(t, 2, c.targets["*string"], "version and method")

	c.targets = map[string]int{}
	_, err = DecodeResponse(c, []byte(`{"jsonrpc":"2.0","error":{"code":-32000,"message":"boom"},"id":1}`))
	require.NoError(t, err)
	assert.Equal(t, 2, c.targets["*string"], "version and message")
	assert.Equal(t, 1, c.targets["*int"], "code")
}

func TestRequestParams(t *testing.T) {
	req, err := DecodeRequest(nil, []byte(`{"jsonrpc":"2.0","method":"subtract","params":[42,23],"id":1}`))
	require.NoError(t, err)

	nums, err := ParamsAs[[]int](req)
	require.NoError(t, err)
	assert.Equal(t, []int{42, 23}, nums)

	noParams, err := DecodeRequest(nil, []byte(`{"jsonrpc":"2.0","method":"get_data","id":1}`))
	require.NoError(t, err)
	assert.False(t, noParams.Params().IsPresent())
	_, err = ParamsAs[[]int](noParams)
	assert.ErrorIs(t, err, ErrMissingParams)
	assert.ErrorIs(t, err, ErrPayloadAbsent)
}

func TestEncodeResponse(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want string
	}{
		{"result", NewResult(NumberID(1), 19), `{"jsonrpc":"2.0","result":19,"id":1}`},
		{"null result", NewResult(NumberID(1), nil), `{"jsonrpc":"2.0","result":null,"id":1}`},
		{
			"error",
			NewFailure(StringID("1"), NewMethodNotFoundError(nil)),
			`{"jsonrpc":"2.0","error":{"code":-32601,"message":"Method not found"},"id":"1"}`,
		},
		{
			"error with data",
			NewFailure(NullID, NewErrorWithData(-32000, "boom", map[string]int{"n": 1})),
			`{"jsonrpc":"2.0","error":{"code":-32000,"message":"boom","data":{"n":1}},"id":null}`,
		},
		{
			"nil error",
			NewFailure(NumberID(2), nil),
			`{"jsonrpc":"2.0","error":{"code":-32603,"message":"Internal error"},"id":2}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.resp)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	resp, err := DecodeResponse(nil, []byte(`{"jsonrpc":"2.0","result":19,"id":1}`))
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, NumberID(1), resp.ID())
	n, err := ResultAs[int](resp)
	require.NoError(t, err)
	assert.Equal(t, 19, n)

	resp, err = DecodeResponse(nil, []byte(`{"jsonrpc":"2.0","error":{"code":-32601,"message":"Method not found"},"id":"1"}`))
	require.NoError(t, err)
	require.True(t, resp.IsFailure())
	assert.Equal(t, CodeMethodNotFound, resp.Failure().Code)
	assert.Equal(t, MessageMethodNotFound, resp.Failure().Message)
	assert.False(t, resp.Failure().HasData())
	assert.False(t, resp.Result().IsPresent())
	_, err = ResultAs[int](resp)
	assert.ErrorIs(t, err, ErrNoResult)

	resp, err = DecodeResponse(nil, []byte(`{"jsonrpc":"2.0","result":null,"id":null}`))
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.True(t, resp.Result().IsPresent())
	assert.True(t, resp.ID().IsNull())
}

func TestDecodeResponseRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"both", `{"jsonrpc":"2.0","result":1,"error":{"code":1,"message":"x"},"id":1}`, ErrAmbiguousOutcome},
		{"neither", `{"jsonrpc":"2.0","id":1}`, ErrAmbiguousOutcome},
		{"missing id", `{"jsonrpc":"2.0","result":1}`, ErrMissingID},
		{"wrong version", `{"jsonrpc":"1.0","result":1,"id":1}`, ErrInvalidVersion},
		{"error without code", `{"jsonrpc":"2.0","error":{"message":"x"},"id":1}`, ErrMissingMember},
		{"not an object", `[]`, ErrNotObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeResponse(nil, []byte(tt.in))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResponseErrorData(t *testing.T) {
	resp, err := DecodeResponse(nil, []byte(`{"jsonrpc":"2.0","error":{"code":-32000,"message":"boom","data":{"reason":"disk"}},"id":1}`))
	require.NoError(t, err)
	require.True(t, resp.Failure().HasData())

	var data struct {
		Reason string `json:"reason"`
	}
	require.NoError(t, resp.Failure().DecodeData(&data))
	assert.Equal(t, "disk", data.Reason)

	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","error":{"code":-32000,"message":"boom","data":{"reason":"disk"}},"id":1}`, string(b))
}

func TestBatchResponseItem(t *testing.T) {
	batch := BatchResponse{
		NewResult(StringID("1"), 7),
		NewResult(StringID("2"), 19),
		NewFailure(NullID, NewInvalidRequestError(nil)),
	}

	r, ok := batch.Item(StringID("2"))
	require.True(t, ok)
	n, err := ResultAs[int](r)
	require.NoError(t, err)
	assert.Equal(t, 19, n)

	_, ok = batch.Item(NumberID(2))
	assert.False(t, ok)

	r, ok = batch.Item(NullID)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidRequest, r.Failure().Code)
}
