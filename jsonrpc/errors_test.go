package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservedErrorConstructors(t *testing.T) {
	tests := []struct {
		name        string
		err         *Error
		wantCode    int
		wantMessage string
	}{
		{"ParseError", NewParseError(nil), CodeParseError, "Parse error"},
		{"InvalidRequest", NewInvalidRequestError(nil), CodeInvalidRequest, "Invalid Request"},
		{"MethodNotFound", NewMethodNotFoundError(nil), CodeMethodNotFound, "Method not found"},
		{"InvalidParams", NewInvalidParamsError(nil), CodeInvalidParams, "Invalid params"},
		{"InternalError", NewInternalError(nil), CodeInternalError, "Internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantMessage, tt.err.Message)
			assert.False(t, tt.err.HasData())
			assert.True(t, IsReservedCode(tt.err.Code))

			b, err := json.Marshal(tt.err)
			require.NoError(t, err)
			assert.JSONEq(t, fmt.Sprintf(`{"code":%d,"message":%q}`, tt.wantCode, tt.wantMessage), string(b))
		})
	}
}

func TestErrorData(t *testing.T) {
	withData := NewInvalidParamsError("missing param: minuend")
	require.True(t, withData.HasData())
	var s string
	require.NoError(t, withData.DecodeData(&s))
	assert.Equal(t, "missing param: minuend", s)

	explicitNull := NewErrorWithData(-32000, "x", nil)
	assert.True(t, explicitNull.HasData())
	b, err := json.Marshal(explicitNull)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":-32000,"message":"x","data":null}`, string(b))

	var none Error
	require.NoError(t, json.Unmarshal([]byte(`{"code":1,"message":"m"}`), &none))
	assert.False(t, none.HasData())
	assert.ErrorIs(t, none.DecodeData(&s), ErrPayloadAbsent)
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "jsonrpc error -32601: Method not found", NewMethodNotFoundError(nil).Error())
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil))

	custom := NewError(-32000, "custom")
	assert.Same(t, custom, AsError(custom))
	assert.Same(t, custom, AsError(fmt.Errorf("wrapped: %w", custom)))

	internal := AsError(errors.New("disk on fire"))
	assert.Equal(t, CodeInternalError, internal.Code)
	assert.Equal(t, MessageInternalError, internal.Message)
	assert.False(t, internal.HasData())
}

func TestIsReservedCode(t *testing.T) {
	assert.True(t, IsReservedCode(-32768))
	assert.True(t, IsReservedCode(-32000))
	assert.True(t, IsReservedCode(CodeParseError))
	assert.False(t, IsReservedCode(-32769))
	assert.False(t, IsReservedCode(-31999))
	assert.False(t, IsReservedCode(0))
}

func TestErrorUnmarshalRejects(t *testing.T) {
	var e Error
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"message":"m"}`), &e), ErrMissingMember)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"code":1}`), &e), ErrMissingMember)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"code":"1","message":"m"}`), &e), ErrInvalidMember)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"code":null,"message":"m"}`), &e), ErrInvalidMember)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"code":1.5,"message":"m"}`), &e), ErrInvalidMember)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"code":1,"message":null}`), &e), ErrInvalidMember)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"code":1,"message":7}`), &e), ErrInvalidMember)
	assert.ErrorIs(t, json.Unmarshal([]byte(`[1]`), &e), ErrNotObject)
}

func TestDecodeResponseRejectsNullErrorMembers(t *testing.T) {
	_, err := DecodeResponse(nil, []byte(`{"jsonrpc":"2.0","error":{"code":null,"message":null},"id":1}`))
	assert.ErrorIs(t, err, ErrInvalidMember)
	assert.True(t, IsDecodeError(err))
}
