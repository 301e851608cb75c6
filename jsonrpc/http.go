package jsonrpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mnehpets/jsonrpc2/endpoint"
)

// httpParams captures the raw JSON-RPC request body. Parsing is deferred to
// the Dispatcher, as JSON-RPC answers malformed JSON with a Parse error
// rather than an HTTP error. The body size is capped by the MaxBodyBytes
// processor installed by HTTPHandler.
type httpParams struct {
	Body        []byte `body:"" maxLength:""`
	ContentType string `header:"Content-Type"`
}

// Endpoint is the endpoint function that serves JSON-RPC over HTTP.
// Pass it to endpoint.Handler, or use HTTPHandler.
func (d *Dispatcher) Endpoint(w http.ResponseWriter, r *http.Request, params httpParams) (endpoint.Renderer, error) {
	if r.Method != http.MethodPost {
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "JSON-RPC requires POST method", nil)
	}

	// Per JSON-RPC over HTTP, Content-Type must be application/json when set.
	if params.ContentType != "" && !strings.HasPrefix(params.ContentType, "application/json") {
		return nil, endpoint.Error(http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
	}

	reply := d.Handle(r.Context(), params.Body)
	if reply == nil {
		return &endpoint.NoContentRenderer{}, nil
	}
	return &endpoint.BytesRenderer{Body: reply, ContentType: "application/json"}, nil
}

// HTTPHandler returns an http.Handler serving d. The processors run before
// the request body is read.
func (d *Dispatcher) HTTPHandler(processors ...endpoint.Processor) http.Handler {
	chain := append(processors[:len(processors):len(processors)], endpoint.MaxBodyBytes(d.maxBodyBytes))
	return endpoint.Handler(d.Endpoint, chain...)
}

// HTTPStatusError is returned by HTTPTransport when the server answers with a
// non-2xx status.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	msg := strings.TrimSpace(string(e.Body))
	if msg == "" {
		return "jsonrpc: http: " + e.Status
	}
	return fmt.Sprintf("jsonrpc: http: %s: %s", e.Status, msg)
}

// HTTPTransport sends request documents as HTTP POST bodies.
type HTTPTransport struct {
	URL string
	// Client defaults to http.DefaultClient.
	Client *http.Client
	// Header is added to every request.
	Header http.Header
}

func (t *HTTPTransport) Send(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	for k, vs := range t.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: http: read reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	return body, nil
}
