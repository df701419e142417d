package accesslog

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// StartWatcher reopens sink whenever its file is removed, renamed or
// recreated, so external log rotation does not leave the server writing to an
// unlinked inode. It returns a function that stops the watcher.
func StartWatcher(ctx context.Context, sink *FileSink, log zerolog.Logger) (stopFunc func(), err error) {
	if sink == nil {
		return func() {}, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create log file watcher: %w", err)
	}
	target := filepath.Clean(sink.Path())
	// Watch the directory: a watch on the file itself dies with the file.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	log.Info().Str("file", target).Msg("watching access log for rotation")
	stopChan := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer watcher.Close()
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Create) {
					if err := sink.Reopen(); err != nil {
						log.Error().Err(err).Msg("access log reopen failed")
					} else {
						log.Info().Str("file", target).Str("op", ev.Op.String()).Msg("access log reopened")
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("access log watcher error")
			case <-stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var stopped bool
	stopFunc = func() {
		if stopped {
			return
		}
		stopped = true
		close(stopChan)
		<-done
	}
	return stopFunc, nil
}
