package blocks

import "strings"

// ParseKv is the inverse of AddKv for flat output: each line holds a
// "key: value" pair. Lines without a separator and empty lines are skipped;
// a bare "key:" line (the nested-builder form) maps to an empty value.
func ParseKv(s string) map[string]string {
	m := make(map[string]string)

	for _, line := range strings.Split(s, "\n") {
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}

		m[parts[0]] = strings.TrimPrefix(parts[1], " ")
	}

	return m
}
