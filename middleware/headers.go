package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mnehpets/jsonrpc2/endpoint"
)

// HeadersProcessor sets response headers for a JSON API endpoint and answers
// CORS preflight requests.
//
// Defaults from NewAPIHeaders:
//   - X-Content-Type-Options: nosniff
//   - Cache-Control: no-store
//   - Content-Security-Policy: default-src 'none'; frame-ancestors 'none'
//   - Referrer-Policy: no-referrer
//
// CORS is off unless configured with WithCORS.
type HeadersProcessor struct {
	// NoSniff sets X-Content-Type-Options: nosniff.
	NoSniff bool

	// CacheControl sets the Cache-Control header. Empty disables it.
	CacheControl string

	// ContentSecurityPolicy sets the Content-Security-Policy header. Empty
	// disables it.
	ContentSecurityPolicy string

	// ReferrerPolicy sets the Referrer-Policy header. Empty disables it.
	ReferrerPolicy string

	// CORS configures Cross-Origin Resource Sharing. nil disables it.
	CORS *CORSConfig
}

// CORSConfig configures Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	// AllowedOrigins lists origins allowed to call the endpoint. "*" allows
	// any origin, except when AllowCredentials is set.
	AllowedOrigins []string

	// AllowedMethods defaults to POST and OPTIONS.
	AllowedMethods []string

	// AllowedHeaders defaults to Content-Type and Authorization.
	AllowedHeaders []string

	AllowCredentials bool

	// MaxAge is how long, in seconds, preflight results may be cached.
	MaxAge int
}

// HeadersOption configures a HeadersProcessor.
type HeadersOption func(*HeadersProcessor)

// NewAPIHeaders creates a HeadersProcessor with defaults for JSON APIs.
func NewAPIHeaders(opts ...HeadersOption) *HeadersProcessor {
	p := &HeadersProcessor{
		NoSniff:               true,
		CacheControl:          "no-store",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithCacheControl sets the Cache-Control header value.
func WithCacheControl(v string) HeadersOption {
	return func(p *HeadersProcessor) {
		p.CacheControl = v
	}
}

// WithCSP sets the Content-Security-Policy header value.
func WithCSP(policy string) HeadersOption {
	return func(p *HeadersProcessor) {
		p.ContentSecurityPolicy = policy
	}
}

// WithCORS enables CORS. Missing methods and headers get their defaults.
func WithCORS(config *CORSConfig) HeadersOption {
	return func(p *HeadersProcessor) {
		if config == nil {
			p.CORS = nil
			return
		}
		c := *config
		if len(c.AllowedMethods) == 0 {
			c.AllowedMethods = []string{http.MethodPost, http.MethodOptions}
		}
		if len(c.AllowedHeaders) == 0 {
			c.AllowedHeaders = []string{"Content-Type", "Authorization"}
		}
		p.CORS = &c
	}
}

// Process implements endpoint.Processor.
func (p *HeadersProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	h := w.Header()
	if p.NoSniff {
		h.Set("X-Content-Type-Options", "nosniff")
	}
	if p.CacheControl != "" {
		h.Set("Cache-Control", p.CacheControl)
	}
	if p.ContentSecurityPolicy != "" {
		h.Set("Content-Security-Policy", p.ContentSecurityPolicy)
	}
	if p.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", p.ReferrerPolicy)
	}

	if p.CORS != nil {
		setCORSHeaders(w, r, p.CORS)

		// Preflight requests never reach the endpoint.
		if r.Method == http.MethodOptions &&
			r.Header.Get("Origin") != "" &&
			r.Header.Get("Access-Control-Request-Method") != "" {
			return endpoint.Error(http.StatusNoContent, "", nil)
		}
	}

	return next(w, r)
}

// setCORSHeaders sets CORS headers for cross-origin requests, those carrying
// an Origin header.
func setCORSHeaders(w http.ResponseWriter, r *http.Request, config *CORSConfig) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	h := w.Header()
	h.Add("Vary", "Origin")

	for _, allowed := range config.AllowedOrigins {
		if allowed == "*" {
			// The wildcard may not be combined with credentials.
			if config.AllowCredentials {
				continue
			}
			h.Set("Access-Control-Allow-Origin", "*")
			break
		}
		if allowed == origin {
			h.Set("Access-Control-Allow-Origin", origin)
			break
		}
	}

	if config.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}

	if r.Method == http.MethodOptions {
		if len(config.AllowedMethods) > 0 {
			h.Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
		}
		if len(config.AllowedHeaders) > 0 {
			h.Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
		}
		if config.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
		}
	}
}

var _ endpoint.Processor = (*HeadersProcessor)(nil)
