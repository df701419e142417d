package auth

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohammedhabas11/staticproxy/pkg/config"
)

func requestWithAuth(value string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if value != "" {
		r.Header.Set("Authorization", value)
	}
	return r
}

func basic(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestGatePlain(t *testing.T) {
	g := NewGate(config.BasicAuth{Username: "u", Password: "p"})
	require.NotNil(t, g)

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"valid", basic("u", "p"), true},
		{"wrong password", basic("u", "x"), false},
		{"wrong user", basic("x", "p"), false},
		{"missing header", "", false},
		{"not basic", "Bearer abc", false},
		{"garbage base64", "Basic !!!", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Allow(requestWithAuth(tt.header)))
		})
	}
}

func TestGateBcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	g := NewGate(config.BasicAuth{Username: "admin", Password: string(hash)})
	assert.True(t, g.Allow(requestWithAuth(basic("admin", "s3cret"))))
	assert.False(t, g.Allow(requestWithAuth(basic("admin", string(hash)))))
}

func TestGateDisabled(t *testing.T) {
	assert.Nil(t, NewGate(config.BasicAuth{Username: "u"}))
	assert.Nil(t, NewGate(config.BasicAuth{}))

	var g *Gate
	assert.True(t, g.Allow(requestWithAuth("")))
}

func TestChallenge(t *testing.T) {
	h := make(http.Header)
	Challenge(h)
	assert.Equal(t, `Basic realm="Restricted"`, h.Get("WWW-Authenticate"))
}
