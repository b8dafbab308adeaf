package parsedom

import (
	"reflect"
	"testing"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

func TestFromBytes_CharsetFromHeader(t *testing.T) {
	doc := FromBytes([]byte("<p>caf\xe9</p>"), "text/html; charset=iso-8859-1")
	if len(doc) != 1 || doc[0] != "<p>café</p>" {
		t.Fatalf("got %q", doc)
	}
}

func TestFromBytes_CharsetFromMeta(t *testing.T) {
	raw := []byte("<html><head><meta charset=\"windows-1251\"></head><body><p>\xcf\xf0\xe8\xe2\xe5\xf2</p></body></html>")
	got, err := ExtractTags(FromBytes(raw, "text/html"), "p", nil, Content())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"Привет"}) {
		t.Fatalf("got %q", got)
	}
}

func TestFromBytes_UTF8AndBOM(t *testing.T) {
	doc := FromBytes([]byte("\xef\xbb\xbf<b>héllo</b>"), "")
	if doc[0] != "<b>héllo</b>" {
		t.Fatalf("got %q", doc[0])
	}
	doc = FromBytes([]byte("<b>ünïcode</b>"), "text/html")
	if doc[0] != "<b>ünïcode</b>" {
		t.Fatalf("got %q", doc[0])
	}
}

func TestFromStrings_Copies(t *testing.T) {
	src := []string{"a", "b"}
	doc := FromStrings(src...)
	src[0] = "z"
	if doc[0] != "a" {
		t.Fatalf("document aliases caller slice: %q", doc)
	}
}

// Undeclared, non-UTF-8 bytes fall through to content sniffing.
func TestFromBytes_SniffsUndeclaredCharset(t *testing.T) {
	text := "Привет, мир! Это обычная страница на русском языке, без указания кодировки. " +
		"Мы проверяем, что текст правильно распознаётся и переводится в юникод. " +
		"Здесь достаточно слов, чтобы определить язык и кодировку страницы."
	body, err := charmap.Windows1251.NewEncoder().String("<html><body><p>" + text + "</p></body></html>")
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	raw := []byte(body)
	if utf8.Valid(raw) {
		t.Fatalf("fixture should not be valid UTF-8")
	}
	if got := sniffCharset(raw); got != "windows-1251" {
		t.Fatalf("sniffCharset = %q, want windows-1251", got)
	}
	got, err := ExtractTags(FromBytes(raw, ""), "p", nil, Content())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{text}) {
		t.Fatalf("got %q", got)
	}
}
