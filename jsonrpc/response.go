package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoResult is returned when the result of a failed response is requested.
var ErrNoResult = fmt.Errorf("%w: result", ErrPayloadAbsent)

// ErrMissingID is returned when a response envelope has no id member.
var ErrMissingID = fmt.Errorf("%w: id", ErrMissingMember)

// Response is an immutable JSON-RPC response envelope. It always carries
// exactly one of a result or an error.
type Response struct {
	id     ID
	result Payload
	err    *Error
}

// NewResult creates a successful response. A nil result encodes as null.
func NewResult(id ID, result any) Response {
	return Response{id: id, result: ValuePayload(result).named("result")}
}

// NewFailure creates an error response. A nil err is treated as an Internal
// error so that the response never ends up without an outcome.
func NewFailure(id ID, err *Error) Response {
	if err == nil {
		err = NewInternalError(nil)
	}
	return Response{id: id, err: err}
}

func (r Response) Version() string { return Version }

func (r Response) ID() ID { return r.id }

func (r Response) IsSuccess() bool { return r.err == nil }

func (r Response) IsFailure() bool { return r.err != nil }

// Failure returns the error object, or nil for a successful response.
func (r Response) Failure() *Error { return r.err }

// Result returns the result payload. It is absent for a failed response.
func (r Response) Result() Payload { return r.result.named("result") }

// DecodeResult materializes the result into dst. Reading the result of a
// failed response is a decode failure (ErrNoResult), not the RPC error
// itself; use Failure to inspect that.
func (r Response) DecodeResult(dst any) error {
	if r.err != nil {
		return ErrNoResult
	}
	return r.Result().Decode(dst)
}

// ResultAs decodes the result of r into a new value of type T.
func ResultAs[T any](r Response) (T, error) {
	var v T
	err := r.DecodeResult(&v)
	return v, err
}

type responseWire struct {
	JSONRPC string           `json:"jsonrpc"`
	Result  *json.RawMessage `json:"result,omitempty"`
	Error   *json.RawMessage `json:"error,omitempty"`
	ID      ID               `json:"id"`
}

// EncodeResponse serializes r with codec c.
func EncodeResponse(c Codec, r Response) ([]byte, error) {
	w := responseWire{JSONRPC: Version, ID: r.id}
	if r.err != nil {
		raw, err := r.err.encode(c)
		if err != nil {
			return nil, err
		}
		w.Error = &raw
	} else {
		raw, err := r.Result().encode(c)
		if err != nil {
			return nil, err
		}
		w.Result = &raw
	}
	return codecOrDefault(c).Marshal(w)
}

func (r Response) MarshalJSON() ([]byte, error) {
	return EncodeResponse(DefaultCodec, r)
}

// DecodeResponse parses one response envelope. A document carrying both
// result and error, or neither, is rejected with ErrAmbiguousOutcome.
func DecodeResponse(c Codec, data []byte) (Response, error) {
	c = codecOrDefault(c)
	m, err := objectMembers(c, data)
	if err != nil {
		return Response{}, err
	}
	outcome, err := m.exactlyOne("result", "error")
	if err != nil {
		return Response{}, err
	}
	if err := m.checkVersion(c); err != nil {
		return Response{}, err
	}
	id, ok, err := m.id()
	if err != nil {
		return Response{}, err
	}
	if !ok {
		return Response{}, ErrMissingID
	}
	r := Response{id: id}
	if outcome == "result" {
		r.result = rawPayload("result", m["result"], c)
		return r, nil
	}
	var rpcErr Error
	if err := rpcErr.decode(c, m["error"]); err != nil {
		return Response{}, err
	}
	r.err = &rpcErr
	return r, nil
}

func (r *Response) UnmarshalJSON(data []byte) error {
	resp, err := DecodeResponse(DefaultCodec, data)
	if err != nil {
		return err
	}
	*r = resp
	return nil
}

// BatchResponse is the decoded reply to a batch. Responses appear in the
// order the server sent them.
type BatchResponse []Response

// Item returns the response correlated with id.
func (b BatchResponse) Item(id ID) (Response, bool) {
	for _, r := range b {
		if r.id == id {
			return r, true
		}
	}
	return Response{}, false
}

// IsDecodeError reports whether err is an envelope decoding failure rather
// than a transport or RPC error.
func IsDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	return errors.Is(err, ErrMalformedJSON) ||
		errors.Is(err, ErrNotObject) ||
		errors.Is(err, ErrInvalidVersion) ||
		errors.Is(err, ErrInvalidMethod) ||
		errors.Is(err, ErrMissingMember) ||
		errors.Is(err, ErrInvalidMember) ||
		errors.Is(err, ErrAmbiguousOutcome) ||
		errors.Is(err, ErrInvalidID) ||
		errors.As(err, &syntaxErr)
}
