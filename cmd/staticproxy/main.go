package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/mohammedhabas11/staticproxy/pkg/accesslog"
	"github.com/mohammedhabas11/staticproxy/pkg/config"
	"github.com/mohammedhabas11/staticproxy/pkg/httpserver"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "1.4.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run parses args, starts the server and blocks until ctx is cancelled.
// It returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("staticproxy", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterFlags(fs)
	showHelp := fs.BoolP("help", "h", false, "print usage and exit")
	showVersion := fs.BoolP("version", "v", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(stdout, "Usage: staticproxy [flags]\n\nServes files from --baseDir and forwards everything else to --proxy.\n\nFlags:\n")
		fs.SetOutput(stdout)
		fs.PrintDefaults()
		fs.SetOutput(stderr)
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fs.Usage()
			return 0
		}
		return 2
	}
	if *showHelp {
		fs.Usage()
		return 0
	}
	if *showVersion {
		fmt.Fprintln(stdout, version)
		return 0
	}

	log := zerolog.New(stderr).With().Timestamp().Logger()
	log.Info().Str("version", version).Msg("starting staticproxy")

	cfg, err := config.Load(fs, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return 1
	}
	log = log.Level(cfg.LogLevel)

	access, err := accesslog.New(stdout, cfg.LogPath, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to open access log")
		return 1
	}
	defer func() {
		if err := access.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close access log")
		}
	}()

	// --- Services Setup ---
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watcherStop, err := accesslog.StartWatcher(ctx, access.Sink(), log)
	if err != nil {
		// Rotation is a convenience; keep serving without it.
		log.Warn().Err(err).Msg("access log rotation watcher disabled")
		watcherStop = func() {}
	}

	srv := httpserver.NewServer(cfg, access, log)
	if err := srv.Listen(); err != nil {
		log.Error().Err(err).Msg("failed to start server")
		watcherStop()
		return 1
	}

	var wg sync.WaitGroup
	var serveErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(ctx); err != nil {
			serveErr = err
			cancel()
		}
	}()

	log.Info().Msg("application started, press Ctrl+C to shut down")
	<-ctx.Done()
	log.Info().Msg("shutting down")

	// --- Wait for Services to Finish ---
	wg.Wait()
	watcherStop()

	if serveErr != nil {
		log.Error().Err(serveErr).Msg("HTTP server error")
		return 1
	}
	log.Info().Msg("application exiting")
	return 0
}
