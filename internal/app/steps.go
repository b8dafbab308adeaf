package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/parsedom/internal/parsedom"
)

// Step is one extraction pass. The results of a step are the fragments the
// next step scans.
type Step struct {
	Tag         string    `yaml:"tag" json:"tag"`
	Attrs       StepAttrs `yaml:"attrs" json:"attrs"`
	Attr        string    `yaml:"attr" json:"attr"`
	IncludeTags bool      `yaml:"includeTags" json:"includeTags"`
}

// Mode maps the step's output settings onto a parsedom.Mode.
func (s Step) Mode() parsedom.Mode {
	switch {
	case s.Attr != "":
		return parsedom.Attribute(s.Attr)
	case s.IncludeTags:
		return parsedom.ContentWithTags()
	default:
		return parsedom.Content()
	}
}

func (s Step) String() string {
	var b strings.Builder
	b.WriteString(s.Tag)
	for _, c := range s.Attrs {
		b.WriteString(" " + c.Name + "=" + string(c.Value))
	}
	switch {
	case s.Attr != "":
		b.WriteString(" @" + s.Attr)
	case s.IncludeTags:
		b.WriteString(" +tags")
	}
	return b.String()
}

// StepAttrs keeps constraints in the order they were written. Both YAML and
// JSON mappings decode in document order.
type StepAttrs parsedom.Constraints

// UnmarshalYAML decodes a mapping of attribute name to pattern.
func (a *StepAttrs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("attrs: expected mapping, got line %d", node.Line)
	}
	out := make(StepAttrs, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var name, value string
		if err := node.Content[i].Decode(&name); err != nil {
			return fmt.Errorf("attrs: %w", err)
		}
		if err := node.Content[i+1].Decode(&value); err != nil {
			return fmt.Errorf("attrs %s: %w", name, err)
		}
		out = append(out, parsedom.Attr(name, parsedom.Pattern(value)))
	}
	*a = out
	return nil
}

// UnmarshalJSON decodes an object of attribute name to pattern.
func (a *StepAttrs) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*a = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("attrs: expected object")
	}
	var out StepAttrs
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("attrs %s: %w", name, err)
		}
		out = append(out, parsedom.Attr(name, parsedom.Pattern(value)))
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*a = out
	return nil
}

// MarshalJSON writes constraints as an object in their original order.
func (a StepAttrs) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, c := range a {
		if i > 0 {
			b.WriteByte(',')
		}
		k, _ := json.Marshal(c.Name)
		v, _ := json.Marshal(string(c.Value))
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// ParseStep reads the compact command-line form of a step:
//
//	tag [name=pattern ...] [@attr | +tags]
//
// Fields are split on whitespace, so patterns containing spaces need a config
// file.
func ParseStep(s string) (Step, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Step{}, errors.New("step: empty")
	}
	st := Step{Tag: fields[0]}
	if strings.ContainsAny(st.Tag, "=@+") {
		return Step{}, fmt.Errorf("step %q: first field must be a tag name", s)
	}
	for _, f := range fields[1:] {
		switch {
		case f == "+tags":
			st.IncludeTags = true
		case strings.HasPrefix(f, "@"):
			if st.Attr = strings.TrimPrefix(f, "@"); st.Attr == "" {
				return Step{}, fmt.Errorf("step %q: empty attribute after @", s)
			}
		default:
			eq := strings.IndexByte(f, '=')
			if eq <= 0 {
				return Step{}, fmt.Errorf("step %q: expected name=pattern, got %q", s, f)
			}
			st.Attrs = append(st.Attrs, parsedom.Attr(f[:eq], parsedom.Pattern(f[eq+1:])))
		}
	}
	return st, nil
}

// runSteps feeds doc through every step in order.
func runSteps(e *parsedom.Extractor, doc parsedom.Document, steps []Step) ([]string, error) {
	values := []string(doc)
	for i, st := range steps {
		out, err := e.ExtractTags(parsedom.FromStrings(values...), st.Tag, parsedom.Constraints(st.Attrs), st.Mode())
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, st, err)
		}
		values = out
		if len(values) == 0 {
			break
		}
	}
	return values, nil
}
