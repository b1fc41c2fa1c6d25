// internal/catalog/slug.go
package catalog

import (
	"strings"
	"unicode"
)

// Slug normalizes a display name into the external parameter key:
// lower case, whitespace becomes '_', '/' becomes "or",
// every other punctuation rune (including '&') is dropped.
//
//	"Total Power Yields (Increased Accuracy)" -> "total_power_yields_increased_accuracy"
//	"Max. total nominal active power"         -> "max_total_nominal_active_power"
func Slug(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteByte('_')
		case r == '/':
			b.WriteString("or")
		case r == '_':
			b.WriteByte('_')
		}
	}
	return b.String()
}
