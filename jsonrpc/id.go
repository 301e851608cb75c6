package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
)

// ErrInvalidID is returned when an id member is not a string, an integer or null.
var ErrInvalidID = errors.New("jsonrpc: id must be a string, an integer or null")

// IDKind identifies which variant an ID holds.
type IDKind uint8

const (
	IDNull IDKind = iota
	IDString
	IDNumber
)

// ID is the JSON-RPC request identifier.
//
// ID is a comparable value type: two IDs are equal only if they hold the same
// variant and the same payload, so ID can be used directly as a map key for
// response correlation. No coercion is performed between the string "1" and
// the number 1.
type ID struct {
	kind IDKind
	str  string
	num  int64
}

// NullID is the null identifier. It is the zero value of ID.
var NullID = ID{}

// StringID returns a string identifier.
func StringID(s string) ID {
	return ID{kind: IDString, str: s}
}

// NumberID returns a numeric identifier.
func NumberID(n int64) ID {
	return ID{kind: IDNumber, num: n}
}

func (id ID) Kind() IDKind { return id.kind }

func (id ID) IsNull() bool { return id.kind == IDNull }

func (id ID) Equal(other ID) bool { return id == other }

// Str returns the string payload and whether id is a string identifier.
func (id ID) Str() (string, bool) {
	return id.str, id.kind == IDString
}

// Number returns the numeric payload and whether id is a numeric identifier.
func (id ID) Number() (int64, bool) {
	return id.num, id.kind == IDNumber
}

// String formats the identifier for logs. Strings are quoted so that "1" and
// 1 remain distinguishable.
func (id ID) String() string {
	switch id.kind {
	case IDString:
		return strconv.Quote(id.str)
	case IDNumber:
		return strconv.FormatInt(id.num, 10)
	default:
		return "null"
	}
}

func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case IDString:
		return json.Marshal(id.str)
	case IDNumber:
		return []byte(strconv.FormatInt(id.num, 10)), nil
	default:
		return []byte("null"), nil
	}
}

func (id *ID) UnmarshalJSON(data []byte) error {
	parsed, err := parseID(data)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func parseID(data []byte) (ID, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return NullID, ErrInvalidID
	}
	switch c := data[0]; {
	case c == 'n':
		if string(data) != "null" {
			return NullID, ErrInvalidID
		}
		return NullID, nil
	case c == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return NullID, ErrInvalidID
		}
		return StringID(s), nil
	case c == '-' || (c >= '0' && c <= '9'):
		if n, err := strconv.ParseInt(string(data), 10, 64); err == nil {
			return NumberID(n), nil
		}
		// Integer-valued numbers written with a fraction or exponent
		// (1.0, 1e3) are still numeric identifiers.
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil || math.Trunc(f) != f || f < math.MinInt64 || f >= math.MaxInt64 {
			return NullID, ErrInvalidID
		}
		return NumberID(int64(f)), nil
	default:
		return NullID, ErrInvalidID
	}
}
