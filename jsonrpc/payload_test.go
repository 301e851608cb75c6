package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadAbsent(t *testing.T) {
	var p Payload
	assert.False(t, p.IsPresent())

	var v any
	err := p.Decode(&v)
	assert.ErrorIs(t, err, ErrPayloadAbsent)

	_, err = p.Raw()
	assert.ErrorIs(t, err, ErrPayloadAbsent)

	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestPayloadExplicitNullIsPresent(t *testing.T) {
	p := rawPayload("result", json.RawMessage("null"), nil)
	assert.True(t, p.IsPresent())

	var ptr *int
	require.NoError(t, p.Decode(&ptr))
	assert.Nil(t, ptr)

	boxed := ValuePayload(nil)
	assert.True(t, boxed.IsPresent())
	raw, err := boxed.Raw()
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}

func TestPayloadDecodeIsRepeatable(t *testing.T) {
	p := rawPayload("params", json.RawMessage(`{"minuend":42,"subtrahend":23}`), nil)

	var asMap map[string]int
	require.NoError(t, p.Decode(&asMap))
	assert.Equal(t, map[string]int{"minuend": 42, "subtrahend": 23}, asMap)

	type subtract struct {
		Minuend    int `json:"minuend"`
		Subtrahend int `json:"subtrahend"`
	}
	got, err := Materialize[subtract](p)
	require.NoError(t, err)
	assert.Equal(t, subtract{42, 23}, got)
}

func TestPayloadTypeMismatch(t *testing.T) {
	p := rawPayload("params", json.RawMessage(`"bar"`), nil)

	_, err := Materialize[[]int](p)
	require.Error(t, err)

	var mismatch *TypeMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "params", mismatch.Field)
	assert.NotErrorIs(t, err, ErrPayloadAbsent)
}

func TestPayloadKeepsDecodingCodec(t *testing.T) {
	p := rawPayload("params", json.RawMessage(`{"n":12345678901234567890}`), JSONCodec{UseNumber: true})

	var v map[string]any
	require.NoError(t, p.Decode(&v))
	assert.Equal(t, json.Number("12345678901234567890"), v["n"])

	strict := rawPayload("params", json.RawMessage(`{"a":1,"extra":2}`), JSONCodec{DisallowUnknownFields: true})
	var dst struct {
		A int `json:"a"`
	}
	var mismatch *TypeMismatchError
	assert.ErrorAs(t, strict.Decode(&dst), &mismatch)
}

func TestPayloadBoxedValue(t *testing.T) {
	p := ValuePayload(map[string]int{"a": 1})

	raw, err := p.Raw()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))

	got, err := Materialize[map[string]int](p)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1}, got)

	pre := ValuePayload(json.RawMessage(`[1,2]`))
	raw, err = pre.Raw()
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(raw))
}

func TestJSONCodecRejectsTrailingData(t *testing.T) {
	var v any
	assert.Error(t, JSONCodec{}.Unmarshal([]byte(`{"a":1} {"b":2}`), &v))
	assert.Error(t, JSONCodec{}.Unmarshal([]byte(`[1]]`), &v))
	assert.NoError(t, JSONCodec{}.Unmarshal([]byte(" [1] \n"), &v))
}

func TestJSONCodecEscapeHTML(t *testing.T) {
	b, err := JSONCodec{}.Marshal("<a>")
	require.NoError(t, err)
	assert.Equal(t, `"<a>"`, string(b))

	b, err = JSONCodec{EscapeHTML: true}.Marshal("<a>")
	require.NoError(t, err)
	assert.Equal(t, `"\u003ca\u003e"`, string(b))
}
