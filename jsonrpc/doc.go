// Package jsonrpc implements JSON-RPC 2.0 (https://www.jsonrpc.org/specification):
// the envelope types, a method registry, a dispatcher for single and batch
// requests, and a client. The dispatcher is transport independent; this
// package binds it to HTTP (https://www.simple-is-better.org/json-rpc/transport_http.html),
// other packages bind it to WebSocket and nanomsg.
//
// # Basic Usage
//
// Register methods, build a dispatcher and serve it:
//
//	reg := jsonrpc.NewRegistry()
//	reg.Register("math", &MathMethods{})
//	d := jsonrpc.NewDispatcher(reg)
//	http.Handle("/rpc", d.HTTPHandler())
//
// Methods registered with Register are defined on a struct with a params type:
//
//	type MathMethods struct{}
//
//	type SubtractParams struct {
//	    Minuend    int `json:"minuend"`
//	    Subtrahend int `json:"subtrahend"`
//	}
//
//	func (m *MathMethods) Subtract(ctx context.Context, params SubtractParams) (int, error) {
//	    return params.Minuend - params.Subtrahend, nil
//	}
//
// Such methods accept both positional (array) and named (object) params, and
// answer notifications as well as invocations. Use a `_` field with a
// `jsonrpc` tag to override the method name:
//
//	type SubtractParams struct {
//	    _ struct{} `jsonrpc:"subtract"`
//	    ...
//	}
//
// # Handlers
//
// Lower level handlers receive the decoded Request and a ResponseBuilder:
//
//	reg.Handle("echo", func(ctx context.Context, req jsonrpc.Request, rb *jsonrpc.ResponseBuilder) error {
//	    var v any
//	    if err := req.DecodeParams(&v); err != nil {
//	        return jsonrpc.NewInvalidParamsError(nil)
//	    }
//	    rb.SetResult(v)
//	    return nil
//	})
//
// A handler commits at most one outcome. Committing twice panics with
// *CommitViolation. A handler that commits nothing answers null. Errors and
// panics before the commit become error responses; after the commit they are
// logged and dropped.
//
// # Error Handling
//
// Return *Error for protocol-level errors:
//
//	return 0, jsonrpc.NewError(-32000, "division by zero")
//
// Standard error codes are defined as constants:
//   - CodeParseError (-32700)
//   - CodeInvalidRequest (-32600)
//   - CodeMethodNotFound (-32601)
//   - CodeInvalidParams (-32602)
//   - CodeInternalError (-32603)
//
// Any other error returned by a handler is reported as an Internal error
// without exposing its text.
//
// # Clients
//
// A Client encodes requests and sends them over any Transport:
//
//	c := jsonrpc.NewClient(&jsonrpc.HTTPTransport{URL: "http://localhost:8080/rpc"})
//	diff, err := jsonrpc.Invoke[int](ctx, c, "math.Subtract", []int{42, 23})
//
// A Dispatcher is itself a Transport, which connects a client to a server in
// the same process.
package jsonrpc
