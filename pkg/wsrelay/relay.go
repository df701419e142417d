// Package wsrelay splices an upgraded client WebSocket onto a freshly dialed
// upstream WebSocket, message by message.
package wsrelay

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// closeGrace bounds how long a close frame may take before the socket is
// dropped.
const closeGrace = time.Second

var (
	// ErrUpgrade means the client handshake failed; a 400 was written.
	ErrUpgrade = errors.New("websocket upgrade failed")
	// ErrDial means the upstream could not be reached; the client was closed.
	ErrDial = errors.New("websocket upstream dial failed")
)

// IsUpgrade reports whether r asks to switch to the WebSocket protocol.
func IsUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// Relay serves WebSocket upgrades against one upstream.
type Relay struct {
	target    *url.URL
	userAgent string
	upgrader  websocket.Upgrader
	dialer    *websocket.Dialer
	log       zerolog.Logger
}

// New returns a Relay dialing target. userAgent, when set, is sent on the
// upstream handshake.
func New(target *url.URL, userAgent string, log zerolog.Logger) *Relay {
	return &Relay{
		target:    target,
		userAgent: userAgent,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin policy is the upstream's business.
			CheckOrigin: func(r *http.Request) bool { return true },
			Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
				http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			},
		},
		dialer: &websocket.Dialer{
			Proxy:            nil,
			HandshakeTimeout: 45 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		log: log.With().Str("component", "wsrelay").Logger(),
	}
}

// Upstream is the authority sessions are relayed to.
func (rl *Relay) Upstream() string {
	return rl.target.Host
}

// upstreamURL appends the request path to the target. The request's query
// string is not carried over.
func (rl *Relay) upstreamURL(path string) string {
	u := *rl.target
	u.Path = strings.TrimSuffix(rl.target.Path, "/") + path
	u.RawPath = ""
	return u.String()
}

// Serve completes the client handshake, dials the upstream and relays until
// either side goes away. It blocks for the lifetime of the session.
func (rl *Relay) Serve(w http.ResponseWriter, r *http.Request) error {
	client, err := rl.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpgrade, err)
	}

	target := rl.upstreamURL(r.URL.Path)
	header := http.Header{}
	if rl.userAgent != "" {
		header.Set("User-Agent", rl.userAgent)
	}

	upstream, resp, err := rl.dialer.DialContext(r.Context(), target, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		deadline := time.Now().Add(closeGrace)
		_ = client.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "upstream unavailable"), deadline)
		client.Close()
		return fmt.Errorf("%w: %s: %w", ErrDial, target, err)
	}

	s := newSession(r.URL.Path, client, upstream)
	rl.log.Debug().Str("path", s.path).Str("upstream", target).Msg("websocket session opened")
	if err := s.run(); err != nil {
		rl.log.Debug().Err(err).Str("path", s.path).Msg("websocket session ended with error")
	} else {
		rl.log.Debug().Str("path", s.path).Msg("websocket session closed")
	}
	return nil
}
