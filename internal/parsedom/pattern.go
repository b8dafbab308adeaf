package parsedom

import (
	"fmt"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

// Pattern is a regular expression fragment that is spliced verbatim into the
// matcher's expressions. It is never escaped, so `.*?`, alternations and
// lookarounds are honoured. Use Literal for plain text.
type Pattern string

// Literal returns a Pattern that matches s exactly.
func Literal(s string) Pattern {
	return Pattern(regexp2.Escape(s))
}

// PatternError reports an expression that the pattern engine refused to
// compile. It almost always points at a caller supplied Pattern.
type PatternError struct {
	Expr string
	Err  error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("parsedom: invalid pattern %q: %v", e.Expr, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// All expressions run with multi-line and dot-all semantics so tag bodies may
// span lines.
const patternOptions = regexp2.Multiline | regexp2.Singleline

type patternKey struct {
	expr    string
	timeout time.Duration
}

// compiled patterns keyed by expression and timeout
var patternCache sync.Map

func compile(expr string, timeout time.Duration) (*regexp2.Regexp, error) {
	key := patternKey{expr: expr, timeout: timeout}
	if re, ok := patternCache.Load(key); ok {
		return re.(*regexp2.Regexp), nil
	}
	re, err := regexp2.Compile(expr, patternOptions)
	if err != nil {
		return nil, &PatternError{Expr: expr, Err: err}
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}
	actual, _ := patternCache.LoadOrStore(key, re)
	return actual.(*regexp2.Regexp), nil
}

// findAll returns capture group `group` of every non-overlapping match of expr
// in s, in order. Group 0 is the whole match.
func (e *Extractor) findAll(expr, s string, group int) ([]string, error) {
	re, err := compile(expr, e.MatchTimeout)
	if err != nil {
		return nil, err
	}
	var out []string
	m, err := re.FindStringMatch(s)
	for err == nil && m != nil {
		if g := m.GroupByNumber(group); g != nil {
			out = append(out, g.String())
		}
		m, err = re.FindNextMatch(m)
	}
	if err != nil {
		return nil, fmt.Errorf("parsedom: match %q: %w", expr, err)
	}
	return out, nil
}
