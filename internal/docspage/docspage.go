// Package docspage renders the embedded wire-protocol documentation as HTML
// at startup, in the same embed-and-render-once shape as the teacher's
// rendezvous docs site.
package docspage

import (
	"bytes"
	"embed"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
)

//go:embed content/protocol.md
var contentFS embed.FS

// Page is the single rendered documentation page served at GET /docs.
type Page struct {
	HTML template.HTML
}

// Load reads and renders the embedded protocol documentation once.
func Load() (*Page, error) {
	data, err := contentFS.ReadFile("content/protocol.md")
	if err != nil {
		return nil, err
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.Table, highlighting.NewHighlighting()),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	var buf bytes.Buffer
	if err := md.Convert(data, &buf); err != nil {
		return nil, err
	}

	return &Page{HTML: template.HTML(buf.String())}, nil
}
