package view_test

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"stave/internal/view"
)

const sampleSVG = `<svg><g id="n1" class="note"><use/></g><g id="n2" class="note"><use/></g><g id="m1" class="measure"/></svg>`

func TestStaleCommitIsDropped(t *testing.T) {
	doc := view.NewDocument()

	first := doc.Begin("note#0")
	second := doc.Begin("note#0")

	if _, ok := doc.Commit(first, view.Container{SessionID: "a", SVG: "<svg/>"}); ok {
		t.Fatal("stale ticket must not commit")
	}
	if doc.Current(first) || !doc.Current(second) {
		t.Fatal("unexpected ticket currency")
	}
	if _, ok := doc.Commit(second, view.Container{SessionID: "b", SVG: "<svg/>"}); !ok {
		t.Fatal("current ticket should commit")
	}
	if _, ok := doc.Container("a"); ok {
		t.Fatal("stale session must not be mounted")
	}
	if mount, ok := doc.MountOf("b"); !ok || mount != "note#0" {
		t.Fatalf("MountOf = %q, %v", mount, ok)
	}
}

func TestCommitReportsReplacedSession(t *testing.T) {
	doc := view.NewDocument()
	doc.Commit(doc.Begin("m"), view.Container{SessionID: "a"})

	replaced, ok := doc.Commit(doc.Begin("m"), view.Container{SessionID: "b"})
	if !ok || replaced != "a" {
		t.Fatalf("Commit = %q, %v", replaced, ok)
	}
	replaced, ok = doc.Fail(doc.Begin("m"), "Error rendering data: boom")
	if !ok || replaced != "b" {
		t.Fatalf("Fail = %q, %v", replaced, ok)
	}
	mp, _ := doc.Snapshot("m")
	if mp.Container != nil || mp.Error == "" {
		t.Fatalf("unexpected snapshot %#v", mp)
	}
}

func TestUnmountDropsInFlightRender(t *testing.T) {
	doc := view.NewDocument()
	ticket := doc.Begin("m")
	if id := doc.Unmount("m"); id != "" {
		t.Fatalf("nothing was mounted, got %q", id)
	}
	if _, ok := doc.Commit(ticket, view.Container{SessionID: "a"}); ok {
		t.Fatal("render finishing after unmount must be discarded")
	}
}

func TestUpdateKeepsPlayingMarks(t *testing.T) {
	doc := view.NewDocument()
	doc.Commit(doc.Begin("m"), view.Container{SessionID: "a", SVG: sampleSVG, Page: 1, Pages: 2})
	doc.Mark("a", []string{"n1"}, nil)

	if !doc.Update("a", 2, 2, "<svg/>") {
		t.Fatal("expected update to apply")
	}
	if got := doc.Marked("a"); !reflect.DeepEqual(got, []string{"n1"}) {
		t.Fatalf("marks after page change = %v", got)
	}
	doc.Update("a", 1, 2, sampleSVG)
	mp, _ := doc.Snapshot("m")
	if mp.Container.Page != 1 || !reflect.DeepEqual(mp.Playing, []string{"n1"}) {
		t.Fatalf("unexpected snapshot %+v", mp)
	}
	if doc.Update("missing", 1, 1, "<svg/>") {
		t.Fatal("updating an unmounted session must fail")
	}
}

func TestMarkAndClear(t *testing.T) {
	doc := view.NewDocument()
	doc.Commit(doc.Begin("m"), view.Container{SessionID: "a", SVG: sampleSVG})

	if !doc.Mark("a", []string{"n1", "n2"}, nil) {
		t.Fatal("expected mark to apply")
	}
	doc.Mark("a", nil, []string{"n1"})
	if got := doc.Marked("a"); !reflect.DeepEqual(got, []string{"n2"}) {
		t.Fatalf("Marked = %v", got)
	}
	if doc.Mark("missing", []string{"n1"}, nil) {
		t.Fatal("marking an unmounted session must fail")
	}
	doc.ClearMarks("a")
	if got := doc.Marked("a"); len(got) != 0 {
		t.Fatalf("expected no marks, got %v", got)
	}
}

func TestHighlight(t *testing.T) {
	out := view.Highlight(sampleSVG, []string{"n2"})
	if !strings.Contains(out, `<g id="n2" class="note playing">`) {
		t.Fatalf("expected n2 highlighted: %s", out)
	}
	if strings.Contains(out, `<g id="n1" class="note playing">`) {
		t.Fatalf("n1 must not be highlighted: %s", out)
	}
}

func TestWriteHTMLContainer(t *testing.T) {
	doc := view.NewDocument()
	doc.Commit(doc.Begin("m"), view.Container{SessionID: "abc", SVG: sampleSVG, Page: 2, Pages: 3, Desktop: true})
	doc.Mark("abc", []string{"n1"}, nil)

	mp, _ := doc.Snapshot("m")
	var buf bytes.Buffer
	if err := view.WriteHTML(&buf, mp); err != nil {
		t.Fatal(err)
	}
	html := buf.String()
	for _, fragment := range []string{
		`data-unique-id="abc"`,
		`class="note playing"`,
		`/api/sessions/abc/play`,
		`/api/sessions/abc/stop`,
		`/api/sessions/abc/download`,
		`/api/sessions/abc/page/1`,
		`/api/sessions/abc/page/3`,
		`2 / 3`,
	} {
		if !strings.Contains(html, fragment) {
			t.Fatalf("expected %q in %s", fragment, html)
		}
	}
}

func TestWriteHTMLMobileHidesDesktopActions(t *testing.T) {
	doc := view.NewDocument()
	doc.Commit(doc.Begin("m"), view.Container{SessionID: "abc", SVG: "<svg/>", Page: 1, Pages: 1})
	mp, _ := doc.Snapshot("m")
	var buf bytes.Buffer
	if err := view.WriteHTML(&buf, mp); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "/download") || strings.Contains(buf.String(), "/open") {
		t.Fatalf("mobile containers must not offer download or open: %s", buf.String())
	}
}

func TestWriteHTMLErrorIsEscaped(t *testing.T) {
	doc := view.NewDocument()
	doc.Fail(doc.Begin("m"), "Error rendering data: <script>")
	mp, _ := doc.Snapshot("m")
	var buf bytes.Buffer
	if err := view.WriteHTML(&buf, mp); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "<script>") || !strings.Contains(buf.String(), "stave-error") {
		t.Fatalf("unexpected error html %s", buf.String())
	}
}

func TestTicketStaleAfterUnmountAndRecreate(t *testing.T) {
	doc := view.NewDocument()
	old := doc.Begin("note#0")
	doc.Unmount("note#0")
	fresh := doc.Begin("note#0")

	if _, ok := doc.Commit(old, view.Container{SessionID: "old"}); ok {
		t.Fatal("ticket from before the unmount must not commit")
	}
	if _, ok := doc.Commit(fresh, view.Container{SessionID: "new"}); !ok {
		t.Fatal("fresh ticket should commit")
	}
}
