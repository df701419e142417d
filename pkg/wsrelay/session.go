package wsrelay

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// session owns one client socket and one upstream socket. Both are closed
// together, exactly once.
type session struct {
	path      string
	client    *websocket.Conn
	upstream  *websocket.Conn
	closeOnce sync.Once
}

func newSession(path string, client, upstream *websocket.Conn) *session {
	return &session{path: path, client: client, upstream: upstream}
}

// run pumps messages both ways until one direction fails, then closes both
// sockets and waits for the other pump to drain.
func (s *session) run() error {
	errc := make(chan error, 2)
	go func() { errc <- pump(s.upstream, s.client) }()
	go func() { errc <- pump(s.client, s.upstream) }()

	first := <-errc
	s.close(closeCodeFor(first))
	<-errc

	if isNormalClose(first) {
		return nil
	}
	return first
}

// pump forwards every message read from src to dst verbatim.
func pump(dst, src *websocket.Conn) error {
	for {
		messageType, data, err := src.ReadMessage()
		if err != nil {
			return err
		}
		if err := dst.WriteMessage(messageType, data); err != nil {
			return err
		}
	}
}

func (s *session) close(code int, text string) {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, text)
		deadline := time.Now().Add(closeGrace)
		_ = s.client.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = s.upstream.WriteControl(websocket.CloseMessage, msg, deadline)
		s.client.Close()
		s.upstream.Close()
	})
}

// closeCodeFor carries a peer's close code over to the other side. Codes that
// may not appear on the wire become a normal closure.
func closeCodeFor(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure, websocket.CloseTLSHandshake:
			return websocket.CloseNormalClosure, ""
		}
		return ce.Code, ce.Text
	}
	return websocket.CloseGoingAway, ""
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
