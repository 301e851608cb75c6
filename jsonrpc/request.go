package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// ErrMissingParams is returned when a handler asks for params that the
// request did not carry.
var ErrMissingParams = fmt.Errorf("%w: params", ErrPayloadAbsent)

// Request is an immutable JSON-RPC request envelope.
//
// A Request with an id is an invocation and always gets a response; one
// without an id is a notification and never does. The id null is a valid,
// if unusual, invocation id.
type Request struct {
	method string
	id     ID
	hasID  bool
	params Payload
}

// NewInvocation creates a request that expects a response. A nil params
// omits the params member.
func NewInvocation(method string, params any, id ID) Request {
	return Request{method: method, id: id, hasID: true, params: paramsPayload(params)}
}

// NewNotification creates a request that must not be answered.
func NewNotification(method string, params any) Request {
	return Request{method: method, params: paramsPayload(params)}
}

func paramsPayload(params any) Payload {
	if params == nil {
		return Payload{}
	}
	return ValuePayload(params).named("params")
}

func (r Request) Version() string { return Version }

func (r Request) Method() string { return r.method }

// ID returns the request id and whether one was present.
func (r Request) ID() (ID, bool) { return r.id, r.hasID }

func (r Request) IsNotification() bool { return !r.hasID }

func (r Request) Params() Payload { return r.params.named("params") }

// DecodeParams materializes the params member into dst. It fails with
// ErrMissingParams when the request had no params.
func (r Request) DecodeParams(dst any) error {
	if !r.params.IsPresent() {
		return ErrMissingParams
	}
	return r.Params().Decode(dst)
}

// ParamsAs decodes the params of r into a new value of type P.
func ParamsAs[P any](r Request) (P, error) {
	var p P
	err := r.DecodeParams(&p)
	return p, err
}

type requestWire struct {
	JSONRPC string           `json:"jsonrpc"`
	Method  string           `json:"method"`
	Params  *json.RawMessage `json:"params,omitempty"`
	ID      *ID              `json:"id,omitempty"`
}

// EncodeRequest serializes r with codec c. Notifications omit the id member
// entirely.
func EncodeRequest(c Codec, r Request) ([]byte, error) {
	w := requestWire{JSONRPC: Version, Method: r.method}
	if r.params.IsPresent() {
		raw, err := r.Params().encode(c)
		if err != nil {
			return nil, err
		}
		w.Params = &raw
	}
	if r.hasID {
		id := r.id
		w.ID = &id
	}
	return codecOrDefault(c).Marshal(w)
}

func (r Request) MarshalJSON() ([]byte, error) {
	return EncodeRequest(DefaultCodec, r)
}

// DecodeRequest parses one request envelope. Params are retained undecoded
// and materialized later with the same codec.
func DecodeRequest(c Codec, data []byte) (Request, error) {
	c = codecOrDefault(c)
	m, err := objectMembers(c, data)
	if err != nil {
		return Request{}, err
	}
	if err := m.checkVersion(c); err != nil {
		return Request{}, err
	}
	method, ok := decodeString(c, m["method"])
	if !ok {
		return Request{}, ErrInvalidMethod
	}
	r := Request{method: method}
	if r.id, r.hasID, err = m.id(); err != nil {
		return Request{}, err
	}
	if raw, ok := m["params"]; ok {
		r.params = rawPayload("params", raw, c)
	}
	return r, nil
}

func (r *Request) UnmarshalJSON(data []byte) error {
	req, err := DecodeRequest(DefaultCodec, data)
	if err != nil {
		return err
	}
	*r = req
	return nil
}
