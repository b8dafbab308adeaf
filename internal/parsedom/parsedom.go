// Package parsedom pulls tag content and attribute values out of raw markup
// with a small pattern-driven scanner. It does not build a DOM: only tags with
// the requested name are tracked when looking for the matching close tag, and
// markup that a browser would repair is taken as written.
package parsedom

import (
	"strings"
	"time"
)

type modeKind int

const (
	modeContent modeKind = iota
	modeContentWithTags
	modeAttribute
)

// Mode selects what ExtractTags returns for each matched tag. The zero value
// is Content().
type Mode struct {
	kind modeKind
	attr string
}

// Content returns the inner content of each matched tag.
func Content() Mode { return Mode{kind: modeContent} }

// ContentWithTags returns each matched element including its opening and
// closing tag.
func ContentWithTags() Mode { return Mode{kind: modeContentWithTags} }

// Attribute returns the value of attribute name on each matched tag. An empty
// name takes the first attribute value of each tag.
func Attribute(name string) Mode { return Mode{kind: modeAttribute, attr: name} }

// AttributeName reports the attribute requested by an Attribute mode.
func (m Mode) AttributeName() (string, bool) {
	return m.attr, m.kind == modeAttribute
}

func (m Mode) String() string {
	switch m.kind {
	case modeContentWithTags:
		return "content+tags"
	case modeAttribute:
		return "attr:" + m.attr
	default:
		return "content"
	}
}

// Extractor runs extractions. The zero value is ready to use and is safe for
// concurrent use.
type Extractor struct {
	// MatchTimeout bounds a single pattern evaluation. Zero means no limit.
	MatchTimeout time.Duration
}

// ExtractTags finds the tags called name in doc that satisfy constraints and
// returns their content or attribute values according to mode.
//
// A blank name or an empty document yields an empty result. The only errors
// are a *PatternError for a constraint value that does not compile and a
// match timeout when MatchTimeout is set.
func (e *Extractor) ExtractTags(doc Document, name string, constraints Constraints, mode Mode) ([]string, error) {
	out := []string{}
	if strings.TrimSpace(name) == "" {
		return out, nil
	}
	attr, isAttr := mode.AttributeName()

	for _, fragment := range doc {
		fragment = flattenTags(fragment)
		matches, err := e.matchTags(fragment, name, constraints)
		if err != nil {
			return nil, err
		}
		if isAttr {
			values, err := e.extractAttribute(matches, name, attr)
			if err != nil {
				return nil, err
			}
			out = append(out, values...)
			continue
		}
		out = append(out, extractContent(fragment, matches, name, mode.kind == modeContentWithTags)...)
	}
	return out, nil
}

var defaultExtractor Extractor

// ExtractTags runs an extraction with a default Extractor.
func ExtractTags(doc Document, name string, constraints Constraints, mode Mode) ([]string, error) {
	return defaultExtractor.ExtractTags(doc, name, constraints, mode)
}
