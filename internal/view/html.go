package view

import (
	"fmt"
	"html/template"
	"io"
	"regexp"
	"strings"
)

var noteOpenTag = regexp.MustCompile(`<g\s+id="([^"]+)"\s+class="note"`)

// Highlight adds the playing class to the note groups named in playing.
func Highlight(svg string, playing []string) string {
	if len(playing) == 0 {
		return svg
	}
	set := make(map[string]struct{}, len(playing))
	for _, id := range playing {
		set[id] = struct{}{}
	}
	return noteOpenTag.ReplaceAllStringFunc(svg, func(tag string) string {
		m := noteOpenTag.FindStringSubmatch(tag)
		if _, ok := set[m[1]]; !ok {
			return tag
		}
		return strings.TrimSuffix(tag, `"`) + " " + PlayingClass + `"`
	})
}

var mountTemplate = template.Must(template.New("mount").Parse(`<div class="stave-mount" data-mount="{{.Name}}" data-revision="{{.Revision}}">
{{- if .Error}}
<p class="stave-error">{{.Error}}</p>
{{- else if .Container}}
<div class="verovio-container" data-unique-id="{{.Container.SessionID}}">
{{.SVG}}
<div class="verovio-toolbar">
<form method="post" action="/api/sessions/{{.Container.SessionID}}/play"><button type="submit" title="Play">&#9654;</button></form>
<form method="post" action="/api/sessions/{{.Container.SessionID}}/stop"><button type="submit" title="Stop">&#9632;</button></form>
{{- if .Container.Desktop}}
<a class="verovio-download" href="/api/sessions/{{.Container.SessionID}}/download" download="score.svg" title="Download">&#8681;</a>
<form method="post" action="/api/sessions/{{.Container.SessionID}}/open"><button type="submit" title="Open source">&#8599;</button></form>
{{- end}}
{{- if gt .Container.Pages 1}}
{{- if gt .Container.Page 1}}
<form method="post" action="/api/sessions/{{.Container.SessionID}}/page/{{.Prev}}"><button type="submit" title="Previous page">&#8592;</button></form>
{{- end}}
<span class="verovio-page">{{.Container.Page}} / {{.Container.Pages}}</span>
{{- if lt .Container.Page .Container.Pages}}
<form method="post" action="/api/sessions/{{.Container.SessionID}}/page/{{.Next}}"><button type="submit" title="Next page">&#8594;</button></form>
{{- end}}
{{- end}}
</div>
</div>
{{- end}}
</div>
`))

type mountView struct {
	MountPoint
	SVG  template.HTML
	Prev int
	Next int
}

// WriteHTML renders a mount point. The SVG comes from the engraver and is
// embedded unescaped.
func WriteHTML(w io.Writer, mp MountPoint) error {
	v := mountView{MountPoint: mp}
	if mp.Container != nil {
		v.SVG = template.HTML(Highlight(mp.Container.SVG, mp.Playing)) //nolint:gosec
		v.Prev = mp.Container.Page - 1
		v.Next = mp.Container.Page + 1
	}
	if err := mountTemplate.Execute(w, v); err != nil {
		return fmt.Errorf("render mount %s: %w", mp.Name, err)
	}
	return nil
}

// Image returns the SVG currently shown for a session, highlights removed.
func (d *Document) Image(sessionID string) (string, bool) {
	c, ok := d.Container(sessionID)
	if !ok {
		return "", false
	}
	return c.SVG, true
}
