package jsonrpc

import "encoding/json"

// CommitViolation is the panic value raised when a ResponseBuilder is
// committed more than once. It signals a handler bug and is never converted
// into an RPC error.
type CommitViolation struct {
	ID ID
}

func (v *CommitViolation) Error() string {
	return "jsonrpc: response builder for id " + v.ID.String() + " committed more than once"
}

type builderState uint8

const (
	builderEmpty builderState = iota
	builderCommitted
)

// ResponseBuilder accumulates the single outcome of one invocation.
//
// A handler calls exactly one of the Set*/Return*/Fail methods, or none, in
// which case the dispatcher answers with a null result. A second call panics
// with *CommitViolation.
type ResponseBuilder struct {
	id       ID
	state    builderState
	response Response
}

func NewResponseBuilder(id ID) *ResponseBuilder {
	return &ResponseBuilder{id: id}
}

func (b *ResponseBuilder) ID() ID { return b.id }

func (b *ResponseBuilder) Committed() bool { return b.state == builderCommitted }

// Response returns the committed response. ok is false while the builder is
// still empty.
func (b *ResponseBuilder) Response() (resp Response, ok bool) {
	if b.state != builderCommitted {
		return Response{}, false
	}
	return b.response, true
}

func (b *ResponseBuilder) commit(r Response) {
	if b.state != builderEmpty {
		panic(&CommitViolation{ID: b.id})
	}
	b.response = r
	b.state = builderCommitted
}

func (b *ResponseBuilder) SetResult(v any) {
	b.commit(NewResult(b.id, v))
}

func (b *ResponseBuilder) SetError(code int, message string) {
	b.commit(NewFailure(b.id, NewError(code, message)))
}

func (b *ResponseBuilder) SetErrorData(code int, message string, data any) {
	b.commit(NewFailure(b.id, NewErrorWithData(code, message, data)))
}

func (b *ResponseBuilder) Fail(err *Error) {
	b.commit(NewFailure(b.id, err))
}

func (b *ResponseBuilder) ReturnNull() {
	b.SetResult(nil)
}

func (b *ResponseBuilder) ReturnEmptyObject() {
	b.SetResult(json.RawMessage("{}"))
}
