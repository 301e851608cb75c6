package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrPayloadAbsent is returned when a payload is materialized but the member
// holding it was never present on the wire.
var ErrPayloadAbsent = errors.New("jsonrpc: member absent")

// TypeMismatchError reports that a payload is present but cannot be decoded
// into the requested type.
type TypeMismatchError struct {
	Field string
	Err   error
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("jsonrpc: %s: type mismatch: %v", e.Field, e.Err)
}

func (e *TypeMismatchError) Unwrap() error {
	return e.Err
}

// Payload holds one serialized value behind a single envelope member
// (params, result or error.data) whose concrete type is only known to the
// consumer.
//
// On the decode side a Payload keeps the raw sub-document together with the
// Codec that decoded the envelope. On the encode side it boxes a Go value and
// serializes it only when the envelope itself is encoded. The zero Payload is
// absent.
type Payload struct {
	field string
	raw   json.RawMessage
	codec Codec
	value any
	boxed bool
}

// ValuePayload boxes v for encoding. A nil v encodes as JSON null.
func ValuePayload(v any) Payload {
	return Payload{value: v, boxed: true}
}

func rawPayload(field string, raw json.RawMessage, c Codec) Payload {
	return Payload{field: field, raw: raw, codec: c}
}

func (p Payload) named(field string) Payload {
	p.field = field
	return p
}

// IsPresent reports whether the member exists. An explicit JSON null is
// present.
func (p Payload) IsPresent() bool {
	return p.raw != nil || p.boxed
}

// Raw returns the serialized payload.
func (p Payload) Raw() (json.RawMessage, error) {
	return p.encode(p.codec)
}

func (p Payload) encode(c Codec) (json.RawMessage, error) {
	if !p.IsPresent() {
		return nil, p.absent()
	}
	if !p.boxed {
		return p.raw, nil
	}
	if raw, ok := p.value.(json.RawMessage); ok && raw != nil {
		return raw, nil
	}
	b, err := codecOrDefault(c).Marshal(p.value)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: %s: encode: %w", p.fieldName(), err)
	}
	return b, nil
}

// Decode materializes the payload into dst, which must be a non-nil pointer.
// Decode does not consume the payload and may be called repeatedly with
// different destination types.
func (p Payload) Decode(dst any) error {
	raw, err := p.encode(p.codec)
	if err != nil {
		return err
	}
	if err := codecOrDefault(p.codec).Unmarshal(raw, dst); err != nil {
		return &TypeMismatchError{Field: p.fieldName(), Err: err}
	}
	return nil
}

// Materialize decodes p into a new value of type T.
func Materialize[T any](p Payload) (T, error) {
	var v T
	err := p.Decode(&v)
	return v, err
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if !p.IsPresent() {
		return []byte("null"), nil
	}
	return p.encode(p.codec)
}

func (p Payload) absent() error {
	return fmt.Errorf("%w: %s", ErrPayloadAbsent, p.fieldName())
}

func (p Payload) fieldName() string {
	if p.field == "" {
		return "payload"
	}
	return p.field
}
