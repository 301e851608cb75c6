package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the only protocol version accepted on the wire.
const Version = "2.0"

var (
	// ErrMalformedJSON is returned when a reply document is not valid JSON.
	ErrMalformedJSON = errors.New("jsonrpc: malformed JSON")
	// ErrNotObject is returned when an envelope is not a JSON object.
	ErrNotObject = errors.New("jsonrpc: envelope must be a JSON object")
	// ErrInvalidVersion is returned when jsonrpc is absent or not "2.0".
	ErrInvalidVersion = errors.New(`jsonrpc: jsonrpc member must be "2.0"`)
	// ErrInvalidMethod is returned when method is absent or not a string.
	ErrInvalidMethod = errors.New("jsonrpc: method member must be a string")
	// ErrMissingMember is returned when a mandatory member is absent.
	ErrMissingMember = errors.New("jsonrpc: missing member")
	// ErrInvalidMember is returned when a member has the wrong type.
	ErrInvalidMember = errors.New("jsonrpc: invalid member")
	// ErrAmbiguousOutcome is returned when a response carries both result
	// and error, or neither.
	ErrAmbiguousOutcome = errors.New("jsonrpc: response must contain exactly one of result or error")
)

// members is a JSON object split into its raw member values.
type members map[string]json.RawMessage

func objectMembers(c Codec, data []byte) (members, error) {
	var m members
	if err := codecOrDefault(c).Unmarshal(data, &m); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, ErrNotObject
		}
		return nil, err
	}
	// "null" unmarshals into a nil map without error.
	if m == nil {
		return nil, ErrNotObject
	}
	return m, nil
}

func (m members) has(name string) bool {
	_, ok := m[name]
	return ok
}

// exactlyOne returns the single member of names present in m. It fails with
// ErrAmbiguousOutcome when none or more than one is present.
func (m members) exactlyOne(names ...string) (string, error) {
	found := ""
	for _, name := range names {
		if !m.has(name) {
			continue
		}
		if found != "" {
			return "", fmt.Errorf("%w: both %s and %s present", ErrAmbiguousOutcome, found, name)
		}
		found = name
	}
	if found == "" {
		return "", fmt.Errorf("%w: none present", ErrAmbiguousOutcome)
	}
	return found, nil
}

func (m members) checkVersion(c Codec) error {
	raw, ok := m["jsonrpc"]
	if !ok {
		return ErrInvalidVersion
	}
	if v, ok := decodeString(c, raw); !ok || v != Version {
		return ErrInvalidVersion
	}
	return nil
}

func (m members) id() (ID, bool, error) {
	raw, ok := m["id"]
	if !ok {
		return NullID, false, nil
	}
	id, err := parseID(raw)
	if err != nil {
		return NullID, true, err
	}
	return id, true, nil
}

// decodeString decodes a member that must be a JSON string. null is not a
// string.
func decodeString(c Codec, raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := codecOrDefault(c).Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// decodeInt decodes a member that must be a JSON integer.
func decodeInt(c Codec, raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return 0, false
	}
	var n int
	if err := codecOrDefault(c).Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return n, true
}
