package extraction

import (
	"strings"
	"unicode"
)

// Title builds a record title from capture text: recognized date/time
// substrings are stripped, whitespace collapsed, and the result truncated
// at the configured length with an ellipsis. Word order is never changed.
func (x *Extractor) Title(text string) string {
	title := strings.TrimSpace(text)
	for _, span := range x.dateSpans(title) {
		title = strings.Replace(title, span, " ", 1)
	}

	title = strings.Join(strings.Fields(title), " ")
	title = strings.TrimRightFunc(title, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '.' || r == ';' || r == ':'
	})

	if title == "" {
		title = strings.Join(strings.Fields(text), " ")
	}

	runes := []rune(title)
	if len(runes) > x.maxTitleLen {
		title = strings.TrimSpace(string(runes[:x.maxTitleLen])) + "…"
	}
	return title
}
