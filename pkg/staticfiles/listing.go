package staticfiles

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"os"
	"strings"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatSize renders n with binary units and one decimal place.
func FormatSize(n int64) string {
	size := float64(n)
	i := 0
	for size >= 1024 && i < len(sizeUnits)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", size, sizeUnits[i])
}

type listingRow struct {
	Name     string
	Href     string
	Size     string
	Modified string
}

var listingTmpl = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Index of {{.Path}}</title></head>
<body>
<h1>Index of {{.Path}}</h1>
<table>
<tr><th>Name</th><th>Size</th><th>Last Modified</th></tr>
{{- range .Rows}}
<tr><td><a href="{{.Href}}">{{.Name}}</a></td><td>{{.Size}}</td><td>{{.Modified}}</td></tr>
{{- end}}
</table>
</body>
</html>
`))

// RenderListing builds the HTML table for the directory at res.Path. Entries
// appear in directory read order; dotfiles are skipped when hidden.
func RenderListing(res Resolution, hideDotfiles bool) ([]byte, error) {
	entries, err := os.ReadDir(res.Path)
	if err != nil {
		return nil, fmt.Errorf("could not read directory %s: %w", res.Path, err)
	}

	base := (&url.URL{Path: res.WebPath}).EscapedPath()
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	rows := make([]listingRow, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if hideDotfiles && strings.HasPrefix(name, ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Entry vanished between ReadDir and Info.
			continue
		}

		row := listingRow{
			Name:     name,
			Href:     base + url.PathEscape(name),
			Size:     FormatSize(info.Size()),
			Modified: info.ModTime().UTC().Format(http.TimeFormat),
		}
		if info.IsDir() {
			row.Name += "/"
			row.Href += "/"
			row.Size = "-"
		}
		rows = append(rows, row)
	}

	var buf bytes.Buffer
	err = listingTmpl.Execute(&buf, struct {
		Path string
		Rows []listingRow
	}{Path: res.WebPath, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("could not render listing for %s: %w", res.Path, err)
	}
	return buf.Bytes(), nil
}
