// Package obfuscate undoes the light wrapping some sites put around stream
// URLs: a six character prefix, then base64 of a seven byte salt followed by
// the payload.
package obfuscate

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	prefixLen = 6
	saltLen   = 7
)

// ErrTooShort is returned when the input cannot hold prefix and salt.
var ErrTooShort = errors.New("obfuscate: input too short")

// Reveal strips the prefix, decodes the remainder and drops the salt.
func Reveal(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) <= prefixLen {
		return "", ErrTooShort
	}
	raw, err := decodeBase64(s[prefixLen:])
	if err != nil {
		return "", fmt.Errorf("obfuscate: decode: %w", err)
	}
	if len(raw) < saltLen {
		return "", ErrTooShort
	}
	payload := raw[saltLen:]
	if !utf8.Valid(payload) {
		return "", errors.New("obfuscate: payload is not utf-8")
	}
	return string(payload), nil
}

// decodeBase64 accepts padded and unpadded input.
func decodeBase64(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
