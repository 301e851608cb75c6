package endpoint

import (
	"encoding"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
)

var defaultFieldLimit = 16 * 1024 // 16KB

// Unmarshal populates dst (must be a non-nil pointer) from the request.
//
// Supported structtags:
//   - `body:""` reads the whole request body into a string or []byte field
//   - `header:"name"` reads a request header
//   - `header:"-"` / `body:"-"` to ignore the field entirely
//   - `maxLength:"n"` to set the maximum byte length for a field value
//
// If the header name is empty it defaults to the field name. At most one
// field may carry the body tag. Fields with no data are left unchanged.
//
// If `maxLength` is absent, a default limit of 16KB is enforced. Use
// `maxLength:"0"` or `maxLength:""` for no limit. Values over the limit fail
// with 413 for the body and 400 for headers.
func Unmarshal(r *http.Request, dst any) error {
	if r == nil {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: nil request"))
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must be a non-nil pointer"))
	}

	root := v.Elem()
	if root.Kind() == reflect.Pointer {
		if root.IsNil() {
			root.Set(reflect.New(root.Type().Elem()))
		}
		root = root.Elem()
	}
	if root.Kind() != reflect.Struct {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must point to a struct (or pointer to struct)"))
	}
	return unmarshalStruct(r, root)
}

func unmarshalStruct(r *http.Request, structVal reflect.Value) error {
	t := structVal.Type()
	bodyFieldIndex := -1
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		fv := structVal.Field(i)

		bodyName, hasBody := sf.Tag.Lookup("body")
		headerName, hasHeader := sf.Tag.Lookup("header")
		if (hasBody && bodyName == "-") || (hasHeader && headerName == "-") {
			continue
		}
		if !hasBody && !hasHeader {
			continue
		}

		limit, err := fieldLengthLimit(sf)
		if err != nil {
			return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: field %s: %w", sf.Name, err))
		}

		if hasBody {
			if bodyFieldIndex != -1 {
				return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: multiple body fields: %s and %s", t.Field(bodyFieldIndex).Name, sf.Name))
			}
			bodyFieldIndex = i
			b, ok, err := readBody(r, limit)
			if err != nil {
				return err
			}
			if ok {
				if err := setFieldFromBytes(fv, b); err != nil {
					return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: body -> %s: %w", sf.Name, err))
				}
			}
			continue
		}

		name := strings.TrimSpace(headerName)
		if name == "" {
			name = sf.Name
		}
		values := r.Header[http.CanonicalHeaderKey(name)]
		if len(values) == 0 {
			continue
		}
		for _, val := range values {
			if limit > 0 && len(val) > limit {
				return newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: header %q -> %s: value exceeds max length %d", name, sf.Name, limit))
			}
		}
		if err := setFieldFromValues(fv, values); err != nil {
			return newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: header %q -> %s: %w", name, sf.Name, err))
		}
	}
	return nil
}

// readBody reads at most limit bytes of the request body. ok is false when
// there is no body.
func readBody(r *http.Request, limit int) (b []byte, ok bool, err error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, false, nil
	}
	var src io.Reader = r.Body
	if limit > 0 {
		src = io.LimitReader(r.Body, int64(limit)+1)
	}
	b, err = io.ReadAll(src)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, false, newEndpointError(http.StatusRequestEntityTooLarge, "", fmt.Errorf("endpoint: decode: body: %w", err))
		}
		return nil, false, newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: body: %w", err))
	}
	if limit > 0 && len(b) > limit {
		return nil, false, newEndpointError(http.StatusRequestEntityTooLarge, "", fmt.Errorf("endpoint: decode: body exceeds max length %d", limit))
	}
	return b, true, nil
}

func fieldLengthLimit(sf reflect.StructField) (int, error) {
	val, has := sf.Tag.Lookup("maxLength")
	if !has {
		return defaultFieldLimit, nil
	}
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("maxLength: invalid integer %q", val)
	}
	if n < 0 {
		return 0, errors.New("maxLength: must be >= 0")
	}
	return n, nil
}

func setFieldFromValues(v reflect.Value, values []string) error {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}

	// Slice fields (other than []byte) take one element per header value.
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() != reflect.Uint8 {
		slice := reflect.MakeSlice(v.Type(), 0, len(values))
		for _, val := range values {
			elem := reflect.New(v.Type().Elem()).Elem()
			if err := setFieldFromBytes(elem, []byte(val)); err != nil {
				return err
			}
			slice = reflect.Append(slice, elem)
		}
		v.Set(slice)
		return nil
	}
	return setFieldFromBytes(v, []byte(values[0]))
}

func setFieldFromBytes(v reflect.Value, b []byte) error {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	if !v.CanSet() {
		return errors.New("field is not settable")
	}

	// Prefer the pointer receiver, as most custom types use one.
	if v.CanAddr() {
		if u, ok := v.Addr().Interface().(encoding.TextUnmarshaler); ok {
			return u.UnmarshalText(b)
		}
	}

	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
		v.SetBytes(b)
		return nil
	}

	s := string(b)
	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
		return nil
	case reflect.Bool:
		bb, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(bb)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(n)
		return nil
	}
	return fmt.Errorf("unsupported kind %s", v.Kind())
}
