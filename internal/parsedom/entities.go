package parsedom

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	// "&#39x" -> "&#39;x"
	unterminatedNumericRef = regexp.MustCompile(`(&#[0-9]+)([^;^0-9]+)`)
	tagSpan                = regexp.MustCompile(`(?s)<.*?>`)
)

// DecodeEntities replaces HTML character references in text with the
// characters they stand for. Numeric references missing their trailing
// semicolon are repaired first. Any &quot; or &amp; left over afterwards, for
// instance from double-escaped input, is decoded once more.
func DecodeEntities(text string) string {
	text = unterminatedNumericRef.ReplaceAllString(text, "${1};${2}")
	text = html.UnescapeString(text)
	text = strings.ReplaceAll(text, "&quot;", `"`)
	return strings.ReplaceAll(text, "&amp;", "&")
}

// StripTags removes every <...> span from text, leaving the text between tags.
// Entities are left alone.
func StripTags(text string) string {
	return tagSpan.ReplaceAllString(text, "")
}
