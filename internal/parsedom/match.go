package parsedom

import (
	"regexp"
	"strings"

	"github.com/dlclark/regexp2"
)

// Constraint requires an opening tag to carry attribute Name with a value
// matching Value.
type Constraint struct {
	Name  string
	Value Pattern
}

// Constraints are ANDed in order. The first one decides the result order.
type Constraints []Constraint

// Attr is shorthand for building a Constraint.
func Attr(name string, value Pattern) Constraint {
	return Constraint{Name: name, Value: value}
}

var multilineTag = regexp.MustCompile(`<[^>]*?\n[^>]*?>`)

// flattenTags rewrites every tag that spans several lines onto one line.
func flattenTags(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	return multilineTag.ReplaceAllStringFunc(s, func(tag string) string {
		return strings.ReplaceAll(tag, "\n", " ")
	})
}

// matchTags returns the opening tags named name in fragment that satisfy all
// constraints. Matches are literal tag text; two matches are the same tag when
// their text is equal.
func (e *Extractor) matchTags(fragment, name string, constraints Constraints) ([]string, error) {
	tag := regexp2.Escape(name)
	if len(constraints) == 0 {
		found, err := e.findAll(`(<`+tag+`>)`, fragment, 1)
		if err != nil || len(found) > 0 {
			return found, err
		}
		return e.findAll(`(<`+tag+` .*?>)`, fragment, 1)
	}

	var matches []string
	for i, c := range constraints {
		found, err := e.matchConstraint(fragment, tag, c)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			matches = found
			continue
		}
		matches = intersect(matches, found)
	}
	return matches, nil
}

func (e *Extractor) matchConstraint(fragment, tag string, c Constraint) ([]string, error) {
	key := regexp2.Escape(c.Name)
	value := string(c.Value)
	found, err := e.findAll(`(<`+tag+`[^>]*?(?:`+key+`=['"]`+value+`['"].*?>))`, fragment, 1)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 && !strings.Contains(value, " ") {
		return e.findAll(`(<`+tag+`[^>]*?(?:`+key+`=`+value+`.*?>))`, fragment, 1)
	}
	return found, nil
}

// intersect keeps the entries of seed that also occur in other, preserving the
// order and multiplicity of seed.
func intersect(seed, other []string) []string {
	if len(seed) == 0 {
		return seed
	}
	set := make(map[string]struct{}, len(other))
	for _, s := range other {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(seed))
	for _, s := range seed {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return out
}
