package verovio_test

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"stave/internal/blockspec"
	"stave/internal/engine"
	"stave/internal/services/verovio"
)

// fakeEngraver writes plausible output for each requested format.
type fakeEngraver struct {
	calls [][]string
	pages int
	err   error
}

func (f *fakeEngraver) Run(_ context.Context, _ string, args []string, _ func(string)) error {
	f.calls = append(f.calls, append([]string(nil), args...))
	if f.err != nil {
		return f.err
	}
	var format, out string
	allPages := false
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-t":
			format = args[i+1]
		case "-o":
			out = args[i+1]
		case "--all-pages":
			allPages = true
		}
	}
	switch format {
	case "svg":
		if !allPages {
			return os.WriteFile(out, []byte("<svg/>"), 0o644)
		}
		base := strings.TrimSuffix(out, ".svg")
		for i := 1; i <= f.pages; i++ {
			name := base + "_00" + string(rune('0'+i)) + ".svg"
			if err := os.WriteFile(name, []byte("<svg page=\""+string(rune('0'+i))+"\"/>"), 0o644); err != nil {
				return err
			}
		}
		return nil
	case "mei":
		return os.WriteFile(out, []byte("<mei layout=\"1\"/>"), 0o644)
	case "midi":
		return os.WriteFile(out, []byte("MThd"), 0o644)
	case "timemap":
		return os.WriteFile(out, []byte(`[
			{"tstamp": 0, "on": ["n1", "n2"]},
			{"tstamp": 500, "off": ["n1"], "on": ["n3"]},
			{"tstamp": 1000, "off": ["n2", "n3"]}
		]`), 0o644)
	}
	return nil
}

func newToolkit(t *testing.T, exec *fakeEngraver) *verovio.Toolkit {
	t.Helper()
	tk, err := verovio.New("verovio", t.TempDir(), 5, verovio.WithExecutor(exec), verovio.WithResourcePath("/opt/verovio/data"))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = tk.Close() })
	return tk
}

func TestRenderPagePassesOptionFlags(t *testing.T) {
	exec := &fakeEngraver{pages: 2}
	tk := newToolkit(t, exec)
	ctx := context.Background()

	if err := tk.SetOptions(ctx, blockspec.Options{"scale": float64(40), "adjustPageHeight": true, "adjustPageWidth": false, "font": "Leland"}); err != nil {
		t.Fatal(err)
	}
	if err := tk.LoadData(ctx, []byte(`<?xml version="1.0"?><mei xmlns="http://www.music-encoding.org/ns/mei"/>`)); err != nil {
		t.Fatal(err)
	}

	svg, err := tk.RenderPage(ctx, 2)
	if err != nil {
		t.Fatalf("RenderPage returned error: %v", err)
	}
	if svg != `<svg page="2"/>` {
		t.Fatalf("unexpected svg %q", svg)
	}
	if n, err := tk.PageCount(ctx); err != nil || n != 2 {
		t.Fatalf("PageCount = %d, %v", n, err)
	}
	if len(exec.calls) != 1 {
		t.Fatalf("expected pages rendered once, got %d runs", len(exec.calls))
	}

	args := strings.Join(exec.calls[0], " ")
	for _, fragment := range []string{"-f mei", "-t svg", "--all-pages", "-r /opt/verovio/data", "--adjust-page-height", "--font Leland", "--scale 40"} {
		if !strings.Contains(args, fragment) {
			t.Fatalf("expected %q in %q", fragment, args)
		}
	}
	if strings.Contains(args, "--adjust-page-width") {
		t.Fatalf("false booleans must be omitted: %q", args)
	}
}

func TestRenderPageOutOfRange(t *testing.T) {
	tk := newToolkit(t, &fakeEngraver{pages: 1})
	ctx := context.Background()
	if err := tk.LoadData(ctx, []byte("<mei/>")); err != nil {
		t.Fatal(err)
	}
	if _, err := tk.RenderPage(ctx, 3); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestRunWithoutDataFails(t *testing.T) {
	tk := newToolkit(t, &fakeEngraver{pages: 1})
	if _, err := tk.RenderAudio(context.Background()); err == nil {
		t.Fatal("expected error without loaded data")
	}
}

func TestLayoutAndAudio(t *testing.T) {
	tk := newToolkit(t, &fakeEngraver{pages: 1})
	ctx := context.Background()
	if err := tk.LoadData(ctx, []byte("<score-partwise/>")); err != nil {
		t.Fatal(err)
	}

	layout, err := tk.LayoutData(ctx)
	if err != nil || string(layout) != `<mei layout="1"/>` {
		t.Fatalf("LayoutData = %q, %v", layout, err)
	}
	audio, err := tk.RenderAudio(ctx)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := base64.StdEncoding.DecodeString(audio)
	if err != nil || string(raw) != "MThd" {
		t.Fatalf("unexpected audio %q (%v)", raw, err)
	}
}

func TestElementsAtReplaysTimemap(t *testing.T) {
	exec := &fakeEngraver{pages: 1}
	tk := newToolkit(t, exec)
	ctx := context.Background()
	if err := tk.LoadData(ctx, []byte("<mei/>")); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		ms   float64
		want []string
	}{
		{0, []string{"n1", "n2"}},
		{499, []string{"n1", "n2"}},
		{500, []string{"n2", "n3"}},
		{1200, []string{}},
	}
	for _, tc := range cases {
		got, err := tk.ElementsAt(ctx, tc.ms)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("ElementsAt(%v) = %v, want %v", tc.ms, got, tc.want)
		}
	}
	if len(exec.calls) != 1 {
		t.Fatalf("expected timemap computed once, got %d runs", len(exec.calls))
	}
}

func TestSelectAlwaysRejects(t *testing.T) {
	tk := newToolkit(t, &fakeEngraver{})
	ok, err := tk.Select(context.Background(), "1-4")
	if ok || !errors.Is(err, engine.ErrSelectUnsupported) {
		t.Fatalf("Select = %v, %v", ok, err)
	}
}

func TestExecutorErrorPropagates(t *testing.T) {
	tk := newToolkit(t, &fakeEngraver{err: errors.New("boom")})
	ctx := context.Background()
	if err := tk.LoadData(ctx, []byte("<mei/>")); err != nil {
		t.Fatal(err)
	}
	if _, err := tk.RenderPage(ctx, 1); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected executor error, got %v", err)
	}
}

func TestInputFormatSniffing(t *testing.T) {
	exec := &fakeEngraver{pages: 1}
	tk := newToolkit(t, exec)
	ctx := context.Background()
	if err := tk.LoadData(ctx, []byte("X:1\nT:Tune\nK:C\nCDEF|")); err != nil {
		t.Fatal(err)
	}
	if _, err := tk.RenderAudio(ctx); err != nil {
		t.Fatal(err)
	}
	last := exec.calls[len(exec.calls)-1]
	if last[1] != "abc" || filepath.Ext(last[len(last)-1]) != ".abc" {
		t.Fatalf("expected abc input, got %v", last)
	}
}
