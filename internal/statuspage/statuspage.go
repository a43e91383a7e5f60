// Package statuspage renders the operator-facing GET / dashboard: live group
// and peer counts, and spill-store occupancy. The embedded stylesheet is
// minified once at startup, mirroring the teacher's SDK asset pipeline.
package statuspage

import (
	"embed"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
)

//go:embed assets/style.css
var rawAssets embed.FS

var minifiedStyle string

func init() {
	raw, err := rawAssets.ReadFile("assets/style.css")
	if err != nil {
		return
	}
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	out, err := m.Bytes("text/css", raw)
	if err != nil {
		minifiedStyle = string(raw)
		return
	}
	minifiedStyle = string(out)
}

// GroupSummary is one row of the dashboard.
type GroupSummary struct {
	Name      string
	PeerCount int
}

// Render builds the full status page HTML.
func Render(groups []GroupSummary, liveSlots int) string {
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })

	var rows strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&rows, "<tr><td>%s</td><td>%d</td></tr>\n", html.EscapeString(g.Name), g.PeerCount)
	}
	if rows.Len() == 0 {
		rows.WriteString(`<tr><td colspan="2">no active groups</td></tr>`)
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>ipcmux</title>
<style>%s</style>
</head>
<body>
<h1>ipcmux router status</h1>
<p>live spill slots: %d</p>
<table>
<thead><tr><th>group</th><th>peers</th></tr></thead>
<tbody>
%s</tbody>
</table>
<p><a href="/docs">protocol documentation</a></p>
</body>
</html>
`, minifiedStyle, liveSlots, rows.String())
}
