package blockspec_test

import (
	"reflect"
	"testing"

	"stave/internal/blockspec"
)

func TestParseExtractsPathOptionsAndRange(t *testing.T) {
	spec := blockspec.Parse("scores/x.mei\nscale: 40\nadjustPageHeight: true\nmeasureRange: 5-12")

	if spec.Path != "scores/x.mei" {
		t.Fatalf("unexpected path %q", spec.Path)
	}
	want := blockspec.Options{"scale": float64(40), "adjustPageHeight": true}
	if !reflect.DeepEqual(spec.Options, want) {
		t.Fatalf("unexpected options %#v", spec.Options)
	}
	if spec.MeasureRange != "5-12" || !spec.HasMeasureRange() {
		t.Fatalf("unexpected measure range %q", spec.MeasureRange)
	}
	if _, ok := spec.Options[blockspec.MeasureRangeKey]; ok {
		t.Fatal("measureRange must not appear in options")
	}
}

func TestParseSplitsOnFirstColon(t *testing.T) {
	spec := blockspec.Parse("https://example.com/a.mei\nfooter: a:b")

	if spec.Path != "https://example.com/a.mei" {
		t.Fatalf("unexpected path %q", spec.Path)
	}
	if got := spec.Options["footer"]; got != "a:b" {
		t.Fatalf("expected value split on first colon, got %#v", got)
	}
}

func TestParseIgnoresMalformedLines(t *testing.T) {
	spec := blockspec.Parse("  song.musicxml  \n\nno colon here\n: orphan\nempty:\n  breaks : none ")

	if spec.Path != "song.musicxml" {
		t.Fatalf("unexpected path %q", spec.Path)
	}
	want := blockspec.Options{"breaks": "none"}
	if !reflect.DeepEqual(spec.Options, want) {
		t.Fatalf("unexpected options %#v", spec.Options)
	}
	if spec.HasMeasureRange() {
		t.Fatal("expected no measure range")
	}
}

func TestParseEmptyBlock(t *testing.T) {
	spec := blockspec.Parse("")
	if spec.Path != "" || len(spec.Options) != 0 {
		t.Fatalf("unexpected spec %#v", spec)
	}
}

func TestCoerce(t *testing.T) {
	cases := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"false", false},
		{"True", "True"},
		{"40", float64(40)},
		{"-2.5", -2.5},
		{"1e3", float64(1000)},
		{"Inf", "Inf"},
		{"NaN", "NaN"},
		{"0x10", "0x10"},
		{"Leland", "Leland"},
		{"5-12", "5-12"},
	}
	for _, tc := range cases {
		if got := blockspec.Coerce(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("Coerce(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestMergePrecedence(t *testing.T) {
	defaults := blockspec.Options{"scale": float64(100), "font": "Leipzig", "breaks": "auto"}
	host := blockspec.Options{"scale": float64(60), "font": "Leland"}
	block := blockspec.Options{"scale": float64(40)}

	merged := blockspec.Merge(defaults, host, block)

	want := blockspec.Options{"scale": float64(40), "font": "Leland", "breaks": "auto"}
	if !reflect.DeepEqual(merged, want) {
		t.Fatalf("unexpected merge %#v", merged)
	}
	if host["scale"] != float64(60) {
		t.Fatal("merge must not mutate inputs")
	}
}

func TestMergeSkipsNilLayers(t *testing.T) {
	merged := blockspec.Merge(nil, blockspec.Options{"a": true}, nil)
	if len(merged) != 1 || merged["a"] != true {
		t.Fatalf("unexpected merge %#v", merged)
	}
}
