// Package staticfiles maps request paths onto the served directory tree and
// renders directory listings.
package staticfiles

import (
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mohammedhabas11/staticproxy/pkg/config"
)

// IndexFile is served for directory requests in auto-index mode.
const IndexFile = "index.html"

// Kind tags the result of a lookup.
type Kind int

const (
	NotFound Kind = iota
	File
	Directory
	Denied
)

// Fixed response bodies for the non-file outcomes.
const (
	ReasonNotFound      = "Not Found"
	ReasonIndexNotFound = "index.html not found"
	ReasonListingDenied = "Directory listing not allowed"
)

// Resolution is what a request path maps to.
type Resolution struct {
	Kind    Kind
	Path    string      // filesystem path, set for File and Directory
	WebPath string      // cleaned, decoded request path
	Info    fs.FileInfo // set for File and Directory
	Reason  string      // response body for NotFound and Denied
}

// Resolver confines lookups to a base directory.
type Resolver struct {
	baseDir      string
	mode         config.ListingMode
	hideDotfiles bool
}

// NewResolver builds a Resolver from the server configuration.
func NewResolver(cfg *config.ServerConfig) *Resolver {
	return &Resolver{
		baseDir:      filepath.Clean(cfg.BaseDir),
		mode:         cfg.Listing,
		hideDotfiles: cfg.HideDotfiles,
	}
}

// HidesDotfiles reports whether dot-prefixed entries are invisible.
func (r *Resolver) HidesDotfiles() bool { return r.hideDotfiles }

// Resolve maps an escaped request path to a filesystem entry. Any lookup
// failure is reported as NotFound; it is never an error.
func (r *Resolver) Resolve(escapedPath string) Resolution {
	decoded, err := url.PathUnescape(escapedPath)
	if err != nil {
		return notFound(ReasonNotFound)
	}
	webPath := path.Clean("/" + decoded)

	if r.hideDotfiles && hasDotSegment(webPath) {
		return notFound(ReasonNotFound)
	}

	full := filepath.Join(r.baseDir, filepath.FromSlash(webPath))
	if !r.contains(full) {
		return notFound(ReasonNotFound)
	}

	info, err := os.Stat(full)
	if err != nil {
		return notFound(ReasonNotFound)
	}

	if !info.IsDir() {
		if !info.Mode().IsRegular() {
			return notFound(ReasonNotFound)
		}
		return Resolution{Kind: File, Path: full, WebPath: webPath, Info: info}
	}

	switch r.mode {
	case config.ListingFull:
		return Resolution{Kind: Directory, Path: full, WebPath: webPath, Info: info}
	case config.ListingAutoIndex:
		index := filepath.Join(full, IndexFile)
		indexInfo, err := os.Stat(index)
		if err != nil || !indexInfo.Mode().IsRegular() {
			return notFound(ReasonIndexNotFound)
		}
		return Resolution{Kind: File, Path: index, WebPath: path.Join(webPath, IndexFile), Info: indexInfo}
	default:
		return Resolution{Kind: Denied, WebPath: webPath, Reason: ReasonListingDenied}
	}
}

// contains is the containment check applied after normalization.
func (r *Resolver) contains(full string) bool {
	if full == r.baseDir {
		return true
	}
	prefix := r.baseDir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(full, prefix)
}

func notFound(reason string) Resolution {
	return Resolution{Kind: NotFound, Reason: reason}
}

func hasDotSegment(webPath string) bool {
	for _, seg := range strings.Split(webPath, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// FileHeaders returns Content-Type, Content-Length and Last-Modified for a
// resolved file.
func FileHeaders(res Resolution) http.Header {
	h := make(http.Header)
	ctype := mime.TypeByExtension(filepath.Ext(res.Path))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	h.Set("Content-Type", ctype)
	h.Set("Content-Length", strconv.FormatInt(res.Info.Size(), 10))
	h.Set("Last-Modified", res.Info.ModTime().UTC().Format(http.TimeFormat))
	return h
}
