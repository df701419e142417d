// Package reverseproxy forwards requests to a single fixed upstream.
package reverseproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrorBody is sent to the client with a 502 when the upstream is unreachable.
const ErrorBody = "Proxy Error"

// ErrUpstream wraps every transport-level failure talking to the upstream.
var ErrUpstream = errors.New("upstream request failed")

// hopByHopHeaders are stripped in both directions.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Proxy-Connection":    {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// Client forwards requests to target.
type Client struct {
	target    *url.URL
	userAgent string
	http      *http.Client
}

// New returns a Client for target. userAgent, when non-empty, replaces the
// client's User-Agent. timeout of zero disables the per-request deadline.
func New(target *url.URL, userAgent string, timeout time.Duration) *Client {
	return &Client{
		target:    target,
		userAgent: userAgent,
		http:      newHTTPClient(timeout),
	}
}

// Upstream is the authority requests are sent to.
func (c *Client) Upstream() string {
	return c.target.Host
}

// Forward sends r to the upstream and returns the response with its body
// unread. The caller must close resp.Body. Failures wrap ErrUpstream.
func (c *Client) Forward(r *http.Request) (*http.Response, error) {
	outReq, err := c.outgoingRequest(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create outgoing request: %w", ErrUpstream, err)
	}

	resp, err := c.http.Do(outReq)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && (errors.Is(urlErr.Err, context.DeadlineExceeded) || urlErr.Timeout()) {
			return nil, fmt.Errorf("%w: %s: timeout exceeded: %w", ErrUpstream, c.target.Host, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUpstream, c.target.Host, err)
	}
	return resp, nil
}

func (c *Client) outgoingRequest(r *http.Request) (*http.Request, error) {
	u := *c.target
	u.Path = singleJoiningSlash(c.target.Path, r.URL.Path)
	u.RawPath = ""
	if r.URL.RawPath != "" {
		u.RawPath = singleJoiningSlash(c.target.EscapedPath(), r.URL.EscapedPath())
	}
	u.RawQuery = r.URL.RawQuery
	u.Fragment = ""

	var body io.Reader
	if r.Body != nil && r.ContentLength != 0 {
		body = r.Body
	}
	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, u.String(), body)
	if err != nil {
		return nil, err
	}
	outReq.ContentLength = r.ContentLength

	CopyHeaders(outReq.Header, r.Header)
	outReq.Host = c.target.Host

	outReq.Header.Set("X-Forwarded-For", forwardedFor(r.Header))

	switch {
	case c.userAgent != "":
		outReq.Header.Set("User-Agent", c.userAgent)
	case r.Header.Get("User-Agent") == "":
		// An empty value keeps net/http from adding its own.
		outReq.Header["User-Agent"] = []string{""}
	}
	return outReq, nil
}

// forwardedFor picks the existing X-Forwarded-For, then X-Real-Ip, then
// "unknown". The chain is never appended to.
func forwardedFor(h http.Header) string {
	if v := h.Get("X-Forwarded-For"); v != "" {
		return v
	}
	if v := h.Get("X-Real-Ip"); v != "" {
		return v
	}
	return "unknown"
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

// CopyHeaders copies headers from source to destination, filtering
// hop-by-hop headers and any header named in Connection.
func CopyHeaders(dst, src http.Header) {
	connectionTokens := make(map[string]struct{})
	for _, v := range src.Values("Connection") {
		for _, token := range strings.Split(v, ",") {
			if token = strings.TrimSpace(token); token != "" {
				connectionTokens[http.CanonicalHeaderKey(token)] = struct{}{}
			}
		}
	}

	for k, vv := range src {
		ck := http.CanonicalHeaderKey(k)
		if _, ok := hopByHopHeaders[ck]; ok {
			continue
		}
		if _, ok := connectionTokens[ck]; ok {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// IsConnectionClosed checks for common network errors indicating expected closure.
func IsConnectionClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "connection reset by peer") ||
		strings.Contains(errStr, "broken pipe")
}
