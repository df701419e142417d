package dispatch

import (
	"io"
	"net/http"
)

// Kind tags the response strategy chosen for a request.
type Kind int

const (
	Served       Kind = iota // a local file
	Listed                   // a rendered directory listing
	Proxied                  // the upstream's response
	Denied                   // 403: host not allowed or listing forbidden
	NotFound                 // 404
	Unauthorized             // 401 with a Basic challenge
	Preflight                // 204 CORS preflight answer
	Failed                   // 5xx produced locally
)

// Fixed bodies.
const (
	bodyHostDenied   = "Forbidden: host not allowed"
	bodyUnauthorized = "Unauthorized"
	bodyListingError = "Internal Server Error"
)

// Outcome is the single response produced for a request. Exactly one of
// Body and Payload is used; Body is closed after writing.
type Outcome struct {
	Kind     Kind
	Status   int
	Header   http.Header
	Body     io.ReadCloser
	Payload  []byte
	Upstream string
	Flush    bool // flush after every write, for unbounded upstream bodies
}

func textOutcome(kind Kind, status int, body string) Outcome {
	return Outcome{Kind: kind, Status: status, Header: make(http.Header), Payload: []byte(body)}
}
