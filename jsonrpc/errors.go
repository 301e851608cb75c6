package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Canonical messages for the reserved codes.
const (
	MessageParseError     = "Parse error"
	MessageInvalidRequest = "Invalid Request"
	MessageMethodNotFound = "Method not found"
	MessageInvalidParams  = "Invalid params"
	MessageInternalError  = "Internal error"
)

// IsReservedCode reports whether code lies in the range reserved for
// pre-defined errors. Application errors should use codes outside it.
func IsReservedCode(code int) bool {
	return code >= -32768 && code <= -32000
}

// Error is the JSON-RPC error object. It also implements the error
// interface, so handlers may return it directly.
type Error struct {
	Code    int
	Message string
	// Data is optional. An absent Data is not serialized at all.
	Data Payload
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError creates an error without data.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorWithData creates an error carrying data. Unlike the
// New*Error(data) helpers, a nil data here is sent as an explicit null.
func NewErrorWithData(code int, message string, data any) *Error {
	return &Error{Code: code, Message: message, Data: ValuePayload(data).named("error.data")}
}

func newReservedError(code int, message string, data any) *Error {
	if data == nil {
		return NewError(code, message)
	}
	return NewErrorWithData(code, message, data)
}

func NewParseError(data any) *Error {
	return newReservedError(CodeParseError, MessageParseError, data)
}

func NewInvalidRequestError(data any) *Error {
	return newReservedError(CodeInvalidRequest, MessageInvalidRequest, data)
}

func NewMethodNotFoundError(data any) *Error {
	return newReservedError(CodeMethodNotFound, MessageMethodNotFound, data)
}

func NewInvalidParamsError(data any) *Error {
	return newReservedError(CodeInvalidParams, MessageInvalidParams, data)
}

func NewInternalError(data any) *Error {
	return newReservedError(CodeInternalError, MessageInternalError, data)
}

// HasData reports whether the data member is present.
func (e *Error) HasData() bool {
	return e.Data.IsPresent()
}

// DecodeData materializes the data member into dst.
func (e *Error) DecodeData(dst any) error {
	return e.Data.named("error.data").Decode(dst)
}

type errorWire struct {
	Code    int              `json:"code"`
	Message string           `json:"message"`
	Data    *json.RawMessage `json:"data,omitempty"`
}

func (e *Error) encode(c Codec) (json.RawMessage, error) {
	w := errorWire{Code: e.Code, Message: e.Message}
	if e.Data.IsPresent() {
		raw, err := e.Data.named("error.data").encode(c)
		if err != nil {
			return nil, err
		}
		w.Data = &raw
	}
	return codecOrDefault(c).Marshal(w)
}

func (e *Error) MarshalJSON() ([]byte, error) {
	return e.encode(DefaultCodec)
}

func (e *Error) UnmarshalJSON(data []byte) error {
	return e.decode(DefaultCodec, data)
}

func (e *Error) decode(c Codec, data []byte) error {
	fields, err := objectMembers(c, data)
	if err != nil {
		return fmt.Errorf("jsonrpc: error: %w", err)
	}
	var out Error
	code, ok := fields["code"]
	if !ok {
		return fmt.Errorf("jsonrpc: error: %w: code", ErrMissingMember)
	}
	if out.Code, ok = decodeInt(c, code); !ok {
		return fmt.Errorf("jsonrpc: error: %w: code must be an integer", ErrInvalidMember)
	}
	msg, ok := fields["message"]
	if !ok {
		return fmt.Errorf("jsonrpc: error: %w: message", ErrMissingMember)
	}
	if out.Message, ok = decodeString(c, msg); !ok {
		return fmt.Errorf("jsonrpc: error: %w: message must be a string", ErrInvalidMember)
	}
	if data, ok := fields["data"]; ok {
		out.Data = rawPayload("error.data", data, c)
	}
	*e = out
	return nil
}

// AsError converts err into an *Error. An *Error anywhere in the chain is
// returned unchanged; any other error becomes an Internal error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return NewInternalError(nil)
}
