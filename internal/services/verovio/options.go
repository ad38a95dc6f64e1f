package verovio

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"stave/internal/blockspec"
)

// defaultOptions are the engraver's documented built-in values for the
// options stave exposes.
var defaultOptions = blockspec.Options{
	"scale":            float64(100),
	"adjustPageHeight": false,
	"adjustPageWidth":  false,
	"breaks":           "auto",
	"pageWidth":        float64(2100),
	"pageHeight":       float64(2970),
	"font":             "Leipzig",
}

// flagName converts a camelCase option key to its kebab-case CLI flag.
func flagName(key string) string {
	var b strings.Builder
	b.Grow(len(key) + 4)
	for i, r := range key {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// optionArgs renders options as CLI flags in a stable order. True booleans
// become bare flags and false booleans are omitted.
func optionArgs(opts blockspec.Options) []string {
	keys := make([]string, 0, len(opts))
	for key := range opts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys)*2)
	for _, key := range keys {
		flag := "--" + flagName(key)
		switch value := opts[key].(type) {
		case bool:
			if value {
				args = append(args, flag)
			}
		case float64:
			args = append(args, flag, strconv.FormatFloat(value, 'f', -1, 64))
		case int:
			args = append(args, flag, strconv.Itoa(value))
		case int64:
			args = append(args, flag, strconv.FormatInt(value, 10))
		case string:
			args = append(args, flag, value)
		case nil:
		default:
			args = append(args, flag, fmt.Sprint(value))
		}
	}
	return args
}

// sniffFormat guesses the input format from the score text.
func sniffFormat(data []byte) (format, ext string) {
	head := strings.TrimSpace(string(data[:min(len(data), 4096)]))
	switch {
	case strings.Contains(head, "<mei"):
		return "mei", ".mei"
	case strings.Contains(head, "score-partwise"), strings.Contains(head, "score-timewise"):
		return "musicxml", ".musicxml"
	case strings.HasPrefix(head, "**"), strings.Contains(head, "\n**kern"):
		return "humdrum", ".krn"
	case strings.HasPrefix(head, "X:"):
		return "abc", ".abc"
	case strings.HasPrefix(head, "@clef"), strings.HasPrefix(head, "@start"):
		return "pae", ".pae"
	default:
		return "mei", ".mei"
	}
}
