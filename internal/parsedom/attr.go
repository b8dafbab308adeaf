package parsedom

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// extractAttribute pulls the value of attr out of every matched opening tag.
// Tags without the attribute are skipped, so the result may be shorter than
// matches.
func (e *Extractor) extractAttribute(matches []string, name, attr string) ([]string, error) {
	tag, key := regexp2.Escape(name), regexp2.Escape(attr)
	quoted := `<` + tag + `.*?` + key + `=(['"].[^>]*?['"])>`
	bare := `<` + tag + `.*?` + key + `=(.[^>]*?)>`

	var out []string
	for _, m := range matches {
		values, err := e.findAll(quoted, m, 1)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			if values, err = e.findAll(bare, m, 1); err != nil {
				return nil, err
			}
		}
		for _, v := range values {
			out = append(out, trimAttrValue(v))
		}
	}
	return out, nil
}

// trimAttrValue narrows a raw capture down to the attribute value. A quoted
// capture may run on into the following attributes; it is cut before the next
// `=<quote>` and then to the last matching quote.
func trimAttrValue(v string) string {
	if v == "" {
		return v
	}
	if q := v[0]; q == '\'' || q == '"' {
		quote := string(q)
		if second := indexFrom(v, quote, 1); second >= 0 {
			if cut := indexFrom(v, "="+quote, second); cut >= 0 {
				v = v[:cut]
			}
		}
		if last := strings.LastIndex(v, quote); last >= 1 {
			v = v[1:last]
		}
		return strings.TrimSpace(v)
	}

	if i := strings.IndexByte(v, ' '); i > 0 {
		v = v[:i]
	} else if i := strings.IndexByte(v, '/'); i > 0 {
		v = v[:i]
	} else if i := strings.IndexByte(v, '>'); i > 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
