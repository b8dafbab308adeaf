package parsedom

import "strings"

// cursor is the unconsumed tail of a fragment. pos only ever moves forward, so
// text that was handed out once is never scanned again.
type cursor struct {
	text string
	pos  int
}

func (c cursor) rest() string { return c.text[c.pos:] }

func (c cursor) advance(n int) cursor {
	return cursor{text: c.text, pos: c.pos + n}
}

// extractContent returns the inner content of every match, one entry per
// match. Only tags with the same name are counted when balancing the closing
// marker.
func extractContent(fragment string, matches []string, name string, withTags bool) []string {
	out := make([]string, 0, len(matches))
	cur := cursor{text: fragment}
	for _, m := range matches {
		var s string
		s, cur = cur.extract(m, name, withTags)
		out = append(out, s)
	}
	return out
}

func (c cursor) extract(match, name string, withTags bool) (string, cursor) {
	rest := c.rest()
	start := strings.Index(rest, match)
	if start < 0 {
		// a miss exhausts the fragment; later matches come back empty
		return "", c.advance(len(rest))
	}
	open, closing := "<"+name, "</"+name
	bodyStart := start + len(match)

	end := indexFrom(rest, closing, bodyStart)
	if end >= 0 {
		for pos := indexFrom(rest, open, start+1); pos != -1 && pos < end; pos = indexFrom(rest, open, pos+1) {
			if next := indexFrom(rest, closing, end+len(closing)); next != -1 {
				end = next
			}
		}
	}

	var content string
	consumed := len(rest)
	if end < 0 {
		// unclosed: everything up to the end of the fragment
		content = rest[bodyStart:]
	} else {
		content = rest[bodyStart:end]
		consumed = end
	}
	if !withTags {
		return content, c.advance(consumed)
	}

	closeTag := ""
	if end >= 0 {
		if gt := indexFrom(rest, ">", end); gt >= 0 {
			closeTag = rest[end : gt+1]
		}
	}
	return match + content + closeTag, c.advance(consumed + len(closeTag))
}

// indexFrom is strings.Index starting at byte offset from.
func indexFrom(s, substr string, from int) int {
	if from > len(s) {
		return -1
	}
	if from < 0 {
		from = 0
	}
	i := strings.Index(s[from:], substr)
	if i < 0 {
		return -1
	}
	return from + i
}
