// Package textnorm provides the accent- and case-insensitive keys used for
// every title and performer-name comparison in the catalog.
package textnorm

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// newStripper builds the NFD -> drop nonspacing marks -> NFC chain. Chains
// carry state, so each call gets its own.
func newStripper() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Normalize lowercases s and strips combining diacritical marks, so that
// "Canción" and "CANCION" share a key. Surrounding whitespace is kept as-is;
// use NameKey when whitespace must not matter.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	// Lowercasing first keeps the result a fixed point: some uppercase
	// runes (U+0130) lowercase into a base letter plus a combining mark.
	lowered := strings.ToLower(s)
	out, _, err := transform.String(newStripper(), lowered)
	if err != nil {
		return lowered
	}
	return out
}

// NameKey is Normalize plus trimming and collapsing of internal whitespace.
// Performer identities are compared with it.
func NameKey(s string) string {
	return strings.Join(strings.Fields(Normalize(s)), " ")
}

// GroupID encodes a normalized title as an opaque, URL-safe identifier.
func GroupID(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// GroupIDForTitle derives the group identifier of a raw title.
func GroupIDForTitle(title string) string {
	return GroupID(Normalize(title))
}

// ParseGroupID reverses GroupID. It fails for empty or malformed ids.
func ParseGroupID(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("empty group id")
	}
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", fmt.Errorf("decoding group id %q: %w", id, err)
	}
	return string(raw), nil
}
