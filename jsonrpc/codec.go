package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Codec serializes envelopes and payloads.
//
// A Codec is passed explicitly to the Dispatcher, the Client and the decode
// functions; payloads decoded by a Codec keep a reference to it so that later
// materialization uses the same settings.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec is the encoding/json backed Codec.
type JSONCodec struct {
	// EscapeHTML escapes <, > and & inside JSON strings.
	EscapeHTML bool
	// DisallowUnknownFields rejects objects with members that do not match
	// the destination struct when materializing payloads.
	DisallowUnknownFields bool
	// UseNumber decodes numbers into json.Number instead of float64 when the
	// destination is an interface value.
	UseNumber bool
}

// DefaultCodec is used wherever no Codec is configured.
var DefaultCodec Codec = JSONCodec{}

func (c JSONCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(c.EscapeHTML)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// json.Encoder appends a trailing newline.
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

func (c JSONCodec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if c.DisallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	if c.UseNumber {
		dec.UseNumber()
	}
	if err := dec.Decode(v); err != nil {
		return err
	}
	// Reject trailing data the same way json.Unmarshal does.
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("jsonrpc: unexpected data after top-level value at offset %d", dec.InputOffset())
	}
	return nil
}

func codecOrDefault(c Codec) Codec {
	if c == nil {
		return DefaultCodec
	}
	return c
}
