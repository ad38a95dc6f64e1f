package blockspec

import (
	"strconv"
	"strings"
)

// MeasureRangeKey is the reserved key captured into Spec.MeasureRange instead
// of the option map.
const MeasureRangeKey = "measureRange"

// Options is a flat rendering option map. Values are bool, float64, or string.
type Options map[string]any

// Spec is the normalized form of one block.
type Spec struct {
	Path         string
	Options      Options
	MeasureRange string
}

// HasMeasureRange reports whether the block asked for a measure selection.
func (s Spec) HasMeasureRange() bool {
	return s.MeasureRange != ""
}

// Parse converts raw block text into a Spec. It never fails: an empty block
// yields an empty path, which the fetcher reports.
func Parse(text string) Spec {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	spec := Spec{Options: Options{}}
	if len(lines) == 0 {
		return spec
	}
	spec.Path = strings.TrimSpace(lines[0])

	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		if key == MeasureRangeKey {
			spec.MeasureRange = value
			continue
		}
		spec.Options[key] = Coerce(value)
	}
	return spec
}

// Coerce maps "true" and "false" to booleans and numeric text to float64.
// Everything else stays a string.
func Coerce(value string) any {
	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil && isNumeric(value) {
		return n
	}
	return value
}

// isNumeric rejects spellings ParseFloat accepts that nobody writes as a
// number in a block ("Inf", "NaN", hex floats, underscores).
func isNumeric(value string) bool {
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
		case r == '.', r == '-', r == '+', r == 'e', r == 'E':
		default:
			return false
		}
	}
	return true
}

// Merge layers option maps; later layers win. Nil layers are skipped and the
// inputs are never modified.
func Merge(layers ...Options) Options {
	size := 0
	for _, layer := range layers {
		size += len(layer)
	}
	out := make(Options, size)
	for _, layer := range layers {
		for key, value := range layer {
			out[key] = value
		}
	}
	return out
}

// Clone returns a shallow copy.
func (o Options) Clone() Options {
	return Merge(o)
}
