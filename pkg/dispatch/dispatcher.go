// Package dispatch decides, for every request, which single response
// strategy applies and produces it.
package dispatch

import (
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/idna"

	"github.com/mohammedhabas11/staticproxy/pkg/accesslog"
	"github.com/mohammedhabas11/staticproxy/pkg/auth"
	"github.com/mohammedhabas11/staticproxy/pkg/config"
	"github.com/mohammedhabas11/staticproxy/pkg/cors"
	"github.com/mohammedhabas11/staticproxy/pkg/reverseproxy"
	"github.com/mohammedhabas11/staticproxy/pkg/staticfiles"
	"github.com/mohammedhabas11/staticproxy/pkg/wsrelay"
)

// RequestIDHeader carries the per-request id in both directions.
const RequestIDHeader = "X-Request-Id"

// Dispatcher is an http.Handler applying the policy chain:
// host check, CORS preflight, WebSocket upgrade, basic auth, static lookup,
// proxy fallback. The first step that produces a response wins.
type Dispatcher struct {
	allowedHost string
	resolver    *staticfiles.Resolver
	gate        *auth.Gate
	cors        *cors.Policy
	proxy       *reverseproxy.Client // nil without --proxy
	relay       *wsrelay.Relay       // nil without --wsproxy
	access      *accesslog.Logger
	log         zerolog.Logger
}

// New wires a Dispatcher from cfg. relay is owned by the server and may be nil.
func New(cfg *config.ServerConfig, relay *wsrelay.Relay, access *accesslog.Logger, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		allowedHost: canonicalHost(cfg.AllowedHost),
		resolver:    staticfiles.NewResolver(cfg),
		gate:        auth.NewGate(cfg.Auth),
		cors:        cors.New(cfg.CORS),
		relay:       relay,
		access:      access,
		log:         log.With().Str("component", "dispatch").Logger(),
	}
	if cfg.ProxyTarget != nil {
		d.proxy = reverseproxy.New(cfg.ProxyTarget, cfg.UserAgent, cfg.ProxyTimeout)
	}
	return d
}

// exchange is the per-request state read by the finalization hook.
type exchange struct {
	start    time.Time
	rec      *recorder
	upstream string
	log      zerolog.Logger
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ex := &exchange{start: time.Now(), rec: newRecorder(w)}
	defer d.finish(ex, r)

	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
		r.Header.Set(RequestIDHeader, id)
	}
	ex.rec.Header().Set(RequestIDHeader, id)
	ex.log = d.log.With().Str("request_id", id).Logger()

	if !d.hostAllowed(r.Host) {
		ex.log.Debug().Str("host", r.Host).Msg("host rejected")
		d.respond(ex, r, textOutcome(Denied, http.StatusForbidden, bodyHostDenied))
		return
	}

	if d.cors.IsPreflight(r) {
		d.respond(ex, r, Outcome{Kind: Preflight, Status: http.StatusNoContent, Header: d.cors.PreflightHeaders()})
		return
	}

	if d.relay != nil && wsrelay.IsUpgrade(r) {
		d.upgrade(ex, r)
		return
	}

	if !d.gate.Allow(r) {
		out := textOutcome(Unauthorized, http.StatusUnauthorized, bodyUnauthorized)
		auth.Challenge(out.Header)
		d.respond(ex, r, out)
		return
	}

	d.respond(ex, r, d.serveLocal(ex, r))
}

// upgrade hands the request to the relay. The relay writes its own response,
// so no CORS decoration happens here.
func (d *Dispatcher) upgrade(ex *exchange, r *http.Request) {
	ex.upstream = d.relay.Upstream()
	err := d.relay.Serve(ex.rec, r)
	switch {
	case errors.Is(err, wsrelay.ErrUpgrade):
		ex.log.Debug().Err(err).Msg("websocket handshake rejected")
	case err != nil:
		ex.log.Warn().Err(err).Msg("websocket relay failed")
	}
}

// serveLocal resolves the request against the base directory, falling back
// to the proxy for anything that cannot be served locally.
func (d *Dispatcher) serveLocal(ex *exchange, r *http.Request) Outcome {
	res := d.resolver.Resolve(r.URL.EscapedPath())

	switch res.Kind {
	case staticfiles.File:
		f, err := os.Open(res.Path)
		if err != nil {
			ex.log.Debug().Err(err).Str("file", res.Path).Msg("open failed")
			return d.fallback(ex, r, textOutcome(NotFound, http.StatusNotFound, staticfiles.ReasonNotFound))
		}
		return Outcome{Kind: Served, Status: http.StatusOK, Header: staticfiles.FileHeaders(res), Body: f}

	case staticfiles.Directory:
		page, err := staticfiles.RenderListing(res, d.resolver.HidesDotfiles())
		if err != nil {
			ex.log.Warn().Err(err).Msg("directory listing failed")
			return d.fallback(ex, r, textOutcome(Failed, http.StatusInternalServerError, bodyListingError))
		}
		h := make(http.Header)
		h.Set("Content-Type", "text/html; charset=utf-8")
		return Outcome{Kind: Listed, Status: http.StatusOK, Header: h, Payload: page}

	case staticfiles.Denied:
		return d.fallback(ex, r, textOutcome(Denied, http.StatusForbidden, res.Reason))

	default:
		return d.fallback(ex, r, textOutcome(NotFound, http.StatusNotFound, res.Reason))
	}
}

// fallback forwards to the upstream when one is configured, otherwise
// returns local unchanged.
func (d *Dispatcher) fallback(ex *exchange, r *http.Request, local Outcome) Outcome {
	if d.proxy == nil {
		return local
	}
	resp, err := d.proxy.Forward(r)
	if err != nil {
		ex.log.Warn().Err(err).Str("path", r.URL.Path).Msg("proxy request failed")
		out := textOutcome(Failed, http.StatusBadGateway, reverseproxy.ErrorBody)
		out.Upstream = d.proxy.Upstream()
		return out
	}

	h := make(http.Header)
	reverseproxy.CopyHeaders(h, resp.Header)
	return Outcome{
		Kind:     Proxied,
		Status:   resp.StatusCode,
		Header:   h,
		Body:     resp.Body,
		Upstream: d.proxy.Upstream(),
		Flush:    resp.ContentLength < 0,
	}
}

// respond writes out, decorated with CORS headers.
func (d *Dispatcher) respond(ex *exchange, r *http.Request, out Outcome) {
	if out.Body != nil {
		defer out.Body.Close()
	}
	ex.upstream = out.Upstream

	h := ex.rec.Header()
	for k, vv := range out.Header {
		h[k] = vv
	}
	d.cors.Decorate(h)
	if out.Body == nil && len(out.Payload) > 0 && h.Get("Content-Type") == "" {
		h.Set("Content-Type", "text/plain; charset=utf-8")
		h.Set("X-Content-Type-Options", "nosniff")
	}

	ex.rec.WriteHeader(out.Status)
	if r.Method == http.MethodHead || !bodyAllowed(out.Status) {
		return
	}

	if out.Body == nil {
		if _, err := ex.rec.Write(out.Payload); err != nil && !reverseproxy.IsConnectionClosed(err) {
			ex.log.Debug().Err(err).Msg("failed to write response")
		}
		return
	}

	var dst io.Writer = ex.rec
	if out.Flush {
		dst = flushWriter{rec: ex.rec}
	}
	if n, err := io.Copy(dst, out.Body); err != nil && !reverseproxy.IsConnectionClosed(err) {
		ex.log.Warn().Err(err).Int64("written", n).Str("path", r.URL.Path).Msg("error streaming response body")
	}
}

// finish is the single exit point: one access log entry per request.
func (d *Dispatcher) finish(ex *exchange, r *http.Request) {
	if d.access == nil {
		return
	}
	d.access.Log(accesslog.Entry{
		Time:      ex.start,
		Method:    r.Method,
		Path:      r.URL.Path,
		Status:    ex.rec.Status(),
		Bytes:     ex.rec.bytes,
		Client:    clientAddr(r.RemoteAddr),
		UserAgent: r.UserAgent(),
		Latency:   time.Since(ex.start),
		Upstream:  ex.upstream,
	})
}

func (d *Dispatcher) hostAllowed(hostHeader string) bool {
	if d.allowedHost == "" {
		return true
	}
	host := hostHeader
	if h, _, err := net.SplitHostPort(hostHeader); err == nil {
		host = h
	}
	return canonicalHost(host) == d.allowedHost
}

// canonicalHost lowercases and converts internationalized names to their
// ASCII form so "bücher.example" and "xn--bcher-kva.example" compare equal.
func canonicalHost(host string) string {
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "" {
		return ""
	}
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		return ascii
	}
	return host
}

func clientAddr(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

func bodyAllowed(status int) bool {
	return status != http.StatusNoContent && status != http.StatusNotModified && status >= 200
}
