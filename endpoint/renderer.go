package endpoint

import "net/http"

// BytesRenderer writes an already encoded body with an optional status code
// and content type.
//
// When ContentType is empty, BytesRenderer defaults to
// "application/octet-stream".
type BytesRenderer struct {
	Status      int
	Body        []byte
	ContentType string
}

// setContentType sets Content-Type unless an outer renderer already did.
func setContentType(w http.ResponseWriter, contentType string) {
	if w.Header().Get("Content-Type") == "" {
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
	}
}

// Render implements Renderer for BytesRenderer.
func (br *BytesRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	setContentType(w, br.ContentType)
	status := br.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(br.Body) == 0 {
		return nil
	}
	_, err := w.Write(br.Body)
	return err
}

// NoContentRenderer writes a response with no body and a specific status code.
//
// If Status is 0, it defaults to http.StatusNoContent.
type NoContentRenderer struct {
	Status int
}

func (ncr *NoContentRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	status := ncr.Status
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
	return nil
}
