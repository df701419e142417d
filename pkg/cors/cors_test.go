package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreflightDetection(t *testing.T) {
	opts := httptest.NewRequest(http.MethodOptions, "/x", nil)
	get := httptest.NewRequest(http.MethodGet, "/x", nil)

	assert.True(t, New(true).IsPreflight(opts))
	assert.False(t, New(true).IsPreflight(get))
	assert.False(t, New(false).IsPreflight(opts))
}

func TestPreflightHeaders(t *testing.T) {
	h := New(true).PreflightHeaders()
	assert.Equal(t, "*", h.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", h.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization", h.Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "86400", h.Get("Access-Control-Max-Age"))
}

func TestDecorateDisabled(t *testing.T) {
	h := make(http.Header)
	New(false).Decorate(h)
	assert.Empty(t, h)

	var p *Policy
	p.Decorate(h)
	assert.Empty(t, h)
}
