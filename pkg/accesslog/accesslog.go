// Package accesslog writes one JSON line per completed request to stdout and,
// optionally, to an append-only file.
package accesslog

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Entry is one completed request.
type Entry struct {
	Time      time.Time
	Method    string
	Path      string
	Status    int
	Bytes     int64
	Client    string
	UserAgent string
	Latency   time.Duration
	Upstream  string // "-" when the request was answered locally
}

// Logger is safe for concurrent use.
type Logger struct {
	zl   zerolog.Logger
	sink *FileSink
}

// New returns a Logger writing to stdout and, when path is set, appending to
// that file. File write failures are reported on diag and never returned.
func New(stdout io.Writer, path string, diag zerolog.Logger) (*Logger, error) {
	l := &Logger{}
	var out io.Writer = stdout
	if path != "" {
		sink, err := OpenFileSink(path, diag)
		if err != nil {
			return nil, err
		}
		l.sink = sink
		out = zerolog.MultiLevelWriter(stdout, sink)
	}
	l.zl = zerolog.New(out)
	return l, nil
}

// Sink is the file target, nil when logging to stdout only.
func (l *Logger) Sink() *FileSink {
	return l.sink
}

// Log writes e.
func (l *Logger) Log(e Entry) {
	upstream := e.Upstream
	if upstream == "" {
		upstream = "-"
	}
	l.zl.Log().
		Time("timestamp", e.Time).
		Str("method", e.Method).
		Str("path", e.Path).
		Int("status", e.Status).
		Int64("bytes", e.Bytes).
		Str("client", e.Client).
		Str("user_agent", e.UserAgent).
		Dur("latency", e.Latency).
		Str("upstream", upstream).
		Send()
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.sink == nil {
		return nil
	}
	return l.sink.Close()
}
