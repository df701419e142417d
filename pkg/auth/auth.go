// Package auth enforces HTTP Basic authentication.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mohammedhabas11/staticproxy/pkg/config"
)

// Realm is advertised in the WWW-Authenticate challenge.
const Realm = "Restricted"

// Gate validates Basic credentials against one configured pair. The
// password may be given in plain text or as a bcrypt hash.
type Gate struct {
	username []byte
	password []byte
	hashed   bool
}

// NewGate returns nil when the credential pair is incomplete; a nil Gate
// lets every request through.
func NewGate(creds config.BasicAuth) *Gate {
	if !creds.Enabled() {
		return nil
	}
	return &Gate{
		username: []byte(creds.Username),
		password: []byte(creds.Password),
		hashed:   isBcryptHash(creds.Password),
	}
}

// Allow reports whether r carries valid credentials.
func (g *Gate) Allow(r *http.Request) bool {
	if g == nil {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), g.username) == 1
	var passOK bool
	if g.hashed {
		passOK = bcrypt.CompareHashAndPassword(g.password, []byte(pass)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(pass), g.password) == 1
	}
	return userOK && passOK
}

// Challenge sets the WWW-Authenticate header for a 401 response.
func Challenge(h http.Header) {
	h.Set("WWW-Authenticate", `Basic realm="`+Realm+`"`)
}

func isBcryptHash(s string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
