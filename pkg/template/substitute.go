package template

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/rs/zerolog/log"
)

// placeholderRe matches {{identifier}} markers. Identifiers follow the usual
// letter-then-alphanumeric form; single braces and nested braces never match,
// and there is no escaping mechanism.
var placeholderRe = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)

// Substitute replaces every {{name}} marker in s with the stringified value of
// args[name]. A marker whose name is missing from args is left verbatim and
// logged as a warning; substitution never fails.
func Substitute(s string, args map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-2]
		v, ok := args[name]
		if !ok {
			log.Warn().Str("variable", name).Msg("unresolved template variable")
			return match
		}
		return Stringify(v)
	})
}

// Stringify converts a template argument to its textual form. Strings pass
// through unchanged, numbers and booleans use their default formatting, and
// structured values are serialized as JSON.
func Stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return fmt.Sprintf("%v", x)
	case fmt.Stringer:
		return x.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// Placeholders returns the placeholder names appearing in s, in order of first
// occurrence, without duplicates. Callers that want strict substitution can
// check these against their argument mapping before rendering.
func Placeholders(s string) []string {
	seen := map[string]bool{}
	names := []string{}
	for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}
