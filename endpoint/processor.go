package endpoint

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// MaxBodyBytes caps the request body at n bytes. Reads past the cap fail and
// Unmarshal reports them as 413. n <= 0 disables the cap.
func MaxBodyBytes(n int64) Processor {
	return ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
		if n > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, n)
		}
		return next(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(status int) {
	if s.status == 0 {
		s.status = status
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// AccessLog logs one line per request to log and attaches log to the request
// context, so zerolog.Ctx finds it further down the chain.
func AccessLog(log zerolog.Logger) Processor {
	return ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		err := next(rec, r.WithContext(log.WithContext(r.Context())))

		status := rec.status
		evt := log.Info()
		if err != nil {
			evt = log.Warn().Err(err)
			// The handler writes the error response after the chain returns.
			status = http.StatusInternalServerError
			var ee *EndpointError
			if errors.As(err, &ee) && ee.Status >= 100 {
				status = ee.Status
			}
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", rec.bytes).
			Dur("duration", time.Since(start)).
			Msg("http request")
		return err
	})
}
