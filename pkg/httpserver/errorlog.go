package httpserver

import (
	"log"
	"strings"

	"github.com/rs/zerolog"
)

// newStdLogger routes net/http's internal errors (TLS handshake failures,
// accept errors) to the diagnostic logger.
func newStdLogger(zl zerolog.Logger) *log.Logger {
	return log.New(errorLogWriter{zl}, "", 0)
}

type errorLogWriter struct {
	zl zerolog.Logger
}

func (w errorLogWriter) Write(p []byte) (int, error) {
	w.zl.Debug().Msg(strings.TrimSpace(string(p)))
	return len(p), nil
}
