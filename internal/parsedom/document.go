package parsedom

import (
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// Document is an ordered list of fragments. Each fragment is scanned on its
// own and results are concatenated in fragment order.
type Document []string

// FromString wraps a single piece of markup.
func FromString(s string) Document {
	return Document{s}
}

// FromStrings builds a Document from several fragments, typically the output
// of a previous ExtractTags call.
func FromStrings(fragments ...string) Document {
	return Document(append([]string(nil), fragments...))
}

// FromBytes decodes raw page bytes into UTF-8 text and wraps it as a single
// fragment. contentType is the Content-Type header, if any. The charset comes
// from a BOM, the header, a <meta> declaration, or content sniffing, in that
// order.
func FromBytes(b []byte, contentType string) Document {
	return Document{decodeText(b, contentType)}
}

func decodeText(b []byte, contentType string) string {
	enc, name, certain := charset.DetermineEncoding(b, contentType)
	// windows-1252 is the fallback when nothing was declared
	if !certain && name == "windows-1252" && !utf8.Valid(b) {
		if guessed := sniffCharset(b); guessed != "" {
			if e, _ := charset.Lookup(guessed); e != nil {
				enc = e
			}
		}
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return strings.TrimPrefix(string(out), "\uFEFF")
}

func sniffCharset(b []byte) string {
	res, err := chardet.NewHtmlDetector().DetectBest(b)
	if err != nil || res == nil {
		return ""
	}
	return strings.ToLower(res.Charset)
}
