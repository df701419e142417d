// Package cors answers preflight requests and decorates responses.
package cors

import (
	"net/http"
	"strconv"
)

const (
	AllowOrigin  = "*"
	AllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	AllowHeaders = "Content-Type, Authorization"
	MaxAge       = 86400
)

// Policy is a no-op when disabled.
type Policy struct {
	enabled bool
}

// New returns a Policy.
func New(enabled bool) *Policy {
	return &Policy{enabled: enabled}
}

// Enabled reports whether CORS handling is on.
func (p *Policy) Enabled() bool { return p != nil && p.enabled }

// IsPreflight reports whether r should be answered as a preflight.
func (p *Policy) IsPreflight(r *http.Request) bool {
	return p.Enabled() && r.Method == http.MethodOptions
}

// Decorate adds the CORS response headers to h.
func (p *Policy) Decorate(h http.Header) {
	if !p.Enabled() {
		return
	}
	h.Set("Access-Control-Allow-Origin", AllowOrigin)
	h.Set("Access-Control-Allow-Methods", AllowMethods)
	h.Set("Access-Control-Allow-Headers", AllowHeaders)
}

// PreflightHeaders returns the headers of a preflight answer.
func (p *Policy) PreflightHeaders() http.Header {
	h := make(http.Header)
	p.Decorate(h)
	h.Set("Access-Control-Max-Age", strconv.Itoa(MaxAge))
	return h
}
