// Package preview renders blocky documents to HTML, for checking how blocks
// come out without building a whole book.
package preview

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/jcorbin/blocky/internal/blocky"
)

// Raw HTML must pass through, otherwise block wrappers would be dropped.
var engine = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// Render rewrites block markers in src and writes the resulting HTML to w.
// Nothing is written if src has malformed markers.
func Render(w io.Writer, src []byte) (blocky.Stats, error) {
	out, stats, err := blocky.TransformStats(src)
	if err != nil {
		return stats, err
	}
	var buf bytes.Buffer
	if err := engine.Convert(out, &buf); err != nil {
		return stats, fmt.Errorf("markdown render: %w", err)
	}
	_, err = buf.WriteTo(w)
	return stats, err
}

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
.blocky-block { border-left: 4px solid #888; margin: 1em 0; padding: 0 1em; }
.blocky-block .blocky-block { border-left-style: dashed; }
</style>
</head>
<body>
{{.Body}}</body>
</html>
`))

// Page is Render wrapped in a standalone HTML document.
func Page(w io.Writer, title string, src []byte) (blocky.Stats, error) {
	var body bytes.Buffer
	stats, err := Render(&body, src)
	if err != nil {
		return stats, err
	}
	return stats, page.Execute(w, struct {
		Title string
		Body  template.HTML
	}{title, template.HTML(body.String())})
}
