package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Pluralize returns the configured override for word, else the
// inflection library's plural.
func (n *Namer) Pluralize(word string) string {
	if override, ok := n.config.plural(word); ok {
		return override
	}
	return inflection.Plural(word)
}

// splitWords breaks a name into words on separators, lower-to-upper case
// changes and the end of an acronym ("HTTPServer" -> "HTTP", "Server").
func splitWords(s string) []string {
	runes := []rune(s)
	var words []string
	start := -1
	flush := func(end int) {
		if start >= 0 && end > start {
			words = append(words, string(runes[start:end]))
		}
		start = -1
	}
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		prev := runes[i-1]
		switch {
		case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			flush(i)
			start = i
		case unicode.IsUpper(r) && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			flush(i)
			start = i
		}
	}
	flush(len(runes))
	return words
}

func capitalize(word string) string {
	if word == "" {
		return word
	}
	runes := []rune(strings.ToLower(word))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// toPascalCase converts any casing to PascalCase.
// Example: "user_profile" -> "UserProfile"
func toPascalCase(s string) string {
	var sb strings.Builder
	for _, word := range splitWords(s) {
		sb.WriteString(capitalize(word))
	}
	return sb.String()
}

// toCamelCase converts any casing to camelCase.
// Example: "UserProfile" -> "userProfile", "HTTPServer" -> "httpServer"
func toCamelCase(s string) string {
	words := splitWords(s)
	var sb strings.Builder
	for i, word := range words {
		if i == 0 {
			sb.WriteString(strings.ToLower(word))
			continue
		}
		sb.WriteString(capitalize(word))
	}
	return sb.String()
}
