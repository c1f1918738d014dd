package cypher

import (
	"strings"
	"unicode"
)

// Escape returns name unchanged when it is a plain Cypher identifier and
// backtick-quoted otherwise. Embedded backticks are doubled.
func Escape(name string) string {
	if isPlainIdentifier(name) {
		return name
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Labels renders a label expression such as ":Movie:Film".
func Labels(labels []string) string {
	var sb strings.Builder
	for _, label := range labels {
		sb.WriteByte(':')
		sb.WriteString(Escape(label))
	}
	return sb.String()
}

// QuoteString renders a Cypher string literal.
func QuoteString(s string) string {
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

func isPlainIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}
