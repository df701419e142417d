package accesslog

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// FileSink appends to a log file. It never truncates and never surfaces
// write errors to its caller.
type FileSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
	diag zerolog.Logger
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// OpenFileSink opens path for appending.
func OpenFileSink(path string, diag zerolog.Logger) (*FileSink, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open access log file %s: %w", path, err)
	}
	return &FileSink{path: path, f: f, diag: diag}, nil
}

// Path is the file being appended to.
func (s *FileSink) Path() string { return s.path }

// Write implements io.Writer. Failures are logged and swallowed.
func (s *FileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		f, err := openAppend(s.path)
		if err != nil {
			s.diag.Warn().Err(err).Str("file", s.path).Msg("access log file unavailable, entry dropped")
			return len(p), nil
		}
		s.f = f
	}
	if _, err := s.f.Write(p); err != nil {
		s.diag.Warn().Err(err).Str("file", s.path).Msg("failed to write access log entry")
	}
	return len(p), nil
}

// Reopen closes the current handle and opens the path again, picking up a
// file recreated by log rotation.
func (s *FileSink) Reopen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f != nil {
		if err := s.f.Close(); err != nil {
			s.diag.Warn().Err(err).Str("file", s.path).Msg("error closing access log file during reopen")
		}
		s.f = nil
	}
	f, err := openAppend(s.path)
	if err != nil {
		return fmt.Errorf("failed to reopen access log file %s: %w", s.path, err)
	}
	s.f = f
	return nil
}

// Close closes the file handle.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
