package staticfiles

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammedhabas11/staticproxy/pkg/config"
)

// newTree creates base/{a.txt,.hidden,sub/index.html,empty/} next to a
// sibling secret.txt outside base.
func newTree(t *testing.T) (base string) {
	t.Helper()
	root := t.TempDir()
	base = filepath.Join(root, "www")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "sub"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, ".hidden"), []byte("secret"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "sub", "index.html"), []byte("<p>index</p>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("outside"), 0o644))
	return base
}

func resolver(base string, mode config.ListingMode, hide bool) *Resolver {
	return NewResolver(&config.ServerConfig{BaseDir: base, Listing: mode, HideDotfiles: hide})
}

func TestResolveFile(t *testing.T) {
	base := newTree(t)
	res := resolver(base, config.ListingAutoIndex, false).Resolve("/a.txt")

	require.Equal(t, File, res.Kind)
	assert.Equal(t, filepath.Join(base, "a.txt"), res.Path)
	assert.Equal(t, int64(5), res.Info.Size())

	h := FileHeaders(res)
	assert.NotEmpty(t, h.Get("Content-Type"))
	assert.Equal(t, "5", h.Get("Content-Length"))
	lm, err := http.ParseTime(h.Get("Last-Modified"))
	require.NoError(t, err)
	assert.Equal(t, res.Info.ModTime().Truncate(time.Second).Unix(), lm.Unix())
}

func TestResolvePercentDecoding(t *testing.T) {
	base := newTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(base, "with space.bin"), []byte{1, 2, 3}, 0o644))

	res := resolver(base, config.ListingAutoIndex, false).Resolve("/with%20space.bin")
	require.Equal(t, File, res.Kind)
	assert.Equal(t, "/with space.bin", res.WebPath)

	require.NoError(t, os.WriteFile(filepath.Join(base, "blob.zz-unknown"), []byte{1}, 0o644))
	res = resolver(base, config.ListingAutoIndex, false).Resolve("/blob.zz-unknown")
	require.Equal(t, File, res.Kind)
	assert.Equal(t, "application/octet-stream", FileHeaders(res).Get("Content-Type"))

	res = resolver(base, config.ListingAutoIndex, false).Resolve("/bad%zzescape")
	assert.Equal(t, NotFound, res.Kind)
}

func TestResolveTraversal(t *testing.T) {
	base := newTree(t)
	r := resolver(base, config.ListingFull, false)

	for _, p := range []string{
		"/../secret.txt",
		"/../../etc/passwd",
		"/sub/../../secret.txt",
		"/%2e%2e/secret.txt",
		"/..%2fsecret.txt",
	} {
		t.Run(p, func(t *testing.T) {
			res := r.Resolve(p)
			assert.NotEqual(t, File, res.Kind)
			assert.NotContains(t, res.Path, "secret.txt")
		})
	}
}

func TestContains(t *testing.T) {
	r := &Resolver{baseDir: "/srv/www"}
	assert.True(t, r.contains("/srv/www"))
	assert.True(t, r.contains("/srv/www/a.txt"))
	assert.False(t, r.contains("/srv/www-evil/a.txt"))
	assert.False(t, r.contains("/srv"))
}

func TestResolveDirectoryModes(t *testing.T) {
	base := newTree(t)

	res := resolver(base, config.ListingFull, false).Resolve("/sub/")
	assert.Equal(t, Directory, res.Kind)

	res = resolver(base, config.ListingAutoIndex, false).Resolve("/sub")
	require.Equal(t, File, res.Kind)
	assert.Equal(t, filepath.Join(base, "sub", IndexFile), res.Path)
	assert.Equal(t, "text/html; charset=utf-8", FileHeaders(res).Get("Content-Type"))

	res = resolver(base, config.ListingAutoIndex, false).Resolve("/empty/")
	assert.Equal(t, NotFound, res.Kind)
	assert.Equal(t, ReasonIndexNotFound, res.Reason)

	res = resolver(base, config.ListingDisabled, false).Resolve("/sub/")
	assert.Equal(t, Denied, res.Kind)
	assert.Equal(t, ReasonListingDenied, res.Reason)
}

func TestResolveMissing(t *testing.T) {
	base := newTree(t)
	res := resolver(base, config.ListingAutoIndex, false).Resolve("/nope.txt")
	assert.Equal(t, NotFound, res.Kind)
	assert.Equal(t, ReasonNotFound, res.Reason)
}

func TestResolveDotfiles(t *testing.T) {
	base := newTree(t)

	res := resolver(base, config.ListingAutoIndex, false).Resolve("/.hidden")
	assert.Equal(t, File, res.Kind)

	res = resolver(base, config.ListingAutoIndex, true).Resolve("/.hidden")
	assert.Equal(t, NotFound, res.Kind)
}

func TestRenderListing(t *testing.T) {
	base := newTree(t)
	r := resolver(base, config.ListingFull, true)

	res := r.Resolve("/")
	require.Equal(t, Directory, res.Kind)

	body, err := RenderListing(res, r.HidesDotfiles())
	require.NoError(t, err)
	html := string(body)

	assert.Contains(t, html, `<a href="/a.txt">a.txt</a>`)
	assert.Contains(t, html, "5.0 B")
	assert.Contains(t, html, `<a href="/sub/">sub/</a>`)
	assert.NotContains(t, html, ".hidden")
	assert.Contains(t, html, "<th>Last Modified</th>")

	shown, err := RenderListing(res, false)
	require.NoError(t, err)
	assert.Contains(t, string(shown), ".hidden")
}

func TestRenderListingNestedLinks(t *testing.T) {
	base := newTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(base, "sub", "x y.txt"), []byte("x"), 0o644))

	res := resolver(base, config.ListingFull, false).Resolve("/sub")
	body, err := RenderListing(res, false)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `href="/sub/x%20y.txt"`), string(body))
}

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{
		0:                "0.0 B",
		1023:             "1023.0 B",
		1536:             "1.5 KB",
		1048576:          "1.0 MB",
		5 << 30:          "5.0 GB",
		1 << 40:          "1.0 TB",
		2048 * (1 << 40): "2048.0 TB",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatSize(in), "FormatSize(%d)", in)
	}
}
