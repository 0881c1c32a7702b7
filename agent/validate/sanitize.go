package validate

import (
	"html"
	"strings"
)

// Sanitize trims user text and escapes HTML-significant characters before it is stored or echoed.
func Sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
