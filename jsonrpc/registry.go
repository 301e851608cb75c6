package jsonrpc

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Handler answers an invocation by committing to rb. Returning an error
// before committing produces an error response: an *Error is sent as is,
// anything else becomes an Internal error. Errors returned after a commit
// are ignored.
type Handler func(ctx context.Context, req Request, rb *ResponseBuilder) error

// NotificationHandler processes a notification. Its error is logged, never
// sent.
type NotificationHandler func(ctx context.Context, req Request) error

// Registry resolves method names to handlers. It is read-only while a
// dispatch is in progress.
type Registry interface {
	Lookup(method string) (Handler, bool)
	LookupNotification(method string) (NotificationHandler, bool)
}

// MethodRegistry is the map-backed Registry.
type MethodRegistry struct {
	mu            sync.RWMutex
	methods       map[string]Handler
	notifications map[string]NotificationHandler
}

// NewRegistry creates an empty method registry.
func NewRegistry() *MethodRegistry {
	return &MethodRegistry{
		methods:       make(map[string]Handler),
		notifications: make(map[string]NotificationHandler),
	}
}

// Handle registers h for invocations of method, replacing any previous
// handler.
func (m *MethodRegistry) Handle(method string, h Handler) {
	m.mu.Lock()
	m.methods[method] = h
	m.mu.Unlock()
}

// HandleNotification registers h for notifications of method.
func (m *MethodRegistry) HandleNotification(method string, h NotificationHandler) {
	m.mu.Lock()
	m.notifications[method] = h
	m.mu.Unlock()
}

func (m *MethodRegistry) Lookup(method string) (Handler, bool) {
	m.mu.RLock()
	h, ok := m.methods[method]
	m.mu.RUnlock()
	return h, ok
}

func (m *MethodRegistry) LookupNotification(method string) (NotificationHandler, bool) {
	m.mu.RLock()
	h, ok := m.notifications[method]
	m.mu.RUnlock()
	return h, ok
}

// Methods returns the sorted names of all methods that accept invocations.
func (m *MethodRegistry) Methods() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.methods))
	for name := range m.methods {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

// RegisterBuiltins adds the rpc.methods introspection method.
func (m *MethodRegistry) RegisterBuiltins() {
	m.Handle("rpc.methods", func(ctx context.Context, req Request, rb *ResponseBuilder) error {
		rb.SetResult(m.Methods())
		return nil
	})
}

// HandleTyped registers fn for invocations of method. Params are decoded
// into P (absent params leave P at its zero value); a decode failure is
// answered with Invalid params.
func HandleTyped[P, R any](m *MethodRegistry, method string, fn func(ctx context.Context, params P) (R, error)) {
	m.Handle(method, func(ctx context.Context, req Request, rb *ResponseBuilder) error {
		var params P
		if req.Params().IsPresent() {
			if err := req.DecodeParams(&params); err != nil {
				return NewInvalidParamsError(err.Error())
			}
		}
		result, err := fn(ctx, params)
		if err != nil {
			return err
		}
		rb.SetResult(result)
		return nil
	})
}

// rpcMethod holds reflection data for a method registered via Register.
type rpcMethod struct {
	receiver    reflect.Value
	method      reflect.Method
	paramType   reflect.Type
	paramNames  []string // JSON tag names for validation and named params
	paramFields []int    // Field indices for positional params unmarshaling
	methodName  string
}

func (m *rpcMethod) call(ctx context.Context, params Payload) (any, error) {
	args := []reflect.Value{m.receiver, reflect.ValueOf(ctx)}

	c := codecOrDefault(params.codec)
	raw := json.RawMessage("null")
	if params.IsPresent() {
		var err error
		if raw, err = params.Raw(); err != nil {
			return nil, NewInvalidParamsError(nil)
		}
	}

	param := reflect.New(m.paramType)

	var paramList []json.RawMessage
	if err := c.Unmarshal(raw, &paramList); err == nil {
		// Positional params: array elements map to struct fields by declaration order.
		if len(paramList) != len(m.paramFields) {
			return nil, NewInvalidParamsError("invalid number of params")
		}
		for i, rawElem := range paramList {
			field := param.Elem().Field(m.paramFields[i])
			if err := c.Unmarshal(rawElem, field.Addr().Interface()); err != nil {
				return nil, NewInvalidParamsError(nil)
			}
		}
	} else {
		// Named params: JSON object keys map to struct fields by json tags.
		var paramMap map[string]json.RawMessage
		if err := c.Unmarshal(raw, &paramMap); err != nil {
			return nil, NewInvalidParamsError(nil)
		}
		if err := c.Unmarshal(raw, param.Interface()); err != nil {
			return nil, NewInvalidParamsError(nil)
		}
		for _, name := range m.paramNames {
			if _, ok := paramMap[name]; !ok {
				return nil, NewInvalidParamsError("missing param: " + name)
			}
		}
	}
	args = append(args, param.Elem())

	results := m.method.Func.Call(args)

	retResult := results[0].Interface()
	var retErr error
	if !results[1].IsNil() {
		retErr = results[1].Interface().(error)
	}
	return retResult, retErr
}

func (m *rpcMethod) handler() Handler {
	return func(ctx context.Context, req Request, rb *ResponseBuilder) error {
		result, err := m.call(ctx, req.Params())
		if err != nil {
			return err
		}
		rb.SetResult(result)
		return nil
	}
}

func (m *rpcMethod) notificationHandler() NotificationHandler {
	return func(ctx context.Context, req Request) error {
		_, err := m.call(ctx, req.Params())
		return err
	}
}

// Register adds the exported methods of receiver with the signature
//
//	func(ctx context.Context, params <StructType>) (result, error)
//
// as both invocation and notification handlers. The namespace prefixes all
// method names ("math" + "Add" -> "math.Add"); an empty namespace uses the
// method names directly. A `_` field tagged `jsonrpc:"name"` overrides the
// method name. Register panics on a name collision.
func (m *MethodRegistry) Register(namespace string, receiver any) {
	val := reflect.ValueOf(receiver)
	typ := val.Type()

	for i := 0; i < val.NumMethod(); i++ {
		method := typ.Method(i)
		if !method.IsExported() {
			continue
		}

		rpc, methodName := parseMethod(val, method)
		if rpc == nil {
			continue
		}

		name := methodName
		if namespace != "" {
			name = namespace + "." + methodName
		}

		m.mu.Lock()
		if _, exists := m.methods[name]; exists {
			m.mu.Unlock()
			panic("jsonrpc: method name collision: " + name)
		}
		m.methods[name] = rpc.handler()
		m.notifications[name] = rpc.notificationHandler()
		m.mu.Unlock()
	}
}

// parseMethod extracts method signature information via reflection.
// Returns nil for invalid signatures.
func parseMethod(receiver reflect.Value, method reflect.Method) (*rpcMethod, string) {
	ft := method.Func.Type()

	if ft.NumIn() != 3 {
		return nil, ""
	}
	if ft.In(1) != reflect.TypeOf((*context.Context)(nil)).Elem() {
		return nil, ""
	}
	if ft.NumOut() != 2 {
		return nil, ""
	}
	if ft.Out(1) != reflect.TypeOf((*error)(nil)).Elem() {
		return nil, ""
	}

	paramType := ft.In(2)
	if paramType.Kind() != reflect.Struct {
		return nil, ""
	}

	rpc := &rpcMethod{
		receiver:   receiver,
		method:     method,
		paramType:  paramType,
		methodName: method.Name,
	}

	for i := 0; i < paramType.NumField(); i++ {
		field := paramType.Field(i)
		if field.Name == "_" {
			if tag := field.Tag.Get("jsonrpc"); tag != "" {
				rpc.methodName = tag
			}
			continue
		}
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if jsonTag := field.Tag.Get("json"); jsonTag != "" {
			name = strings.Split(jsonTag, ",")[0]
			if name == "" || name == "-" {
				continue
			}
		}
		rpc.paramNames = append(rpc.paramNames, name)
		rpc.paramFields = append(rpc.paramFields, i)
	}

	return rpc, rpc.methodName
}
