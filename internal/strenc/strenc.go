// Package strenc converts between the heap's two string encodings.
//
// Byte strings hold uninterpreted octets; character strings hold UTF-8.
// Promotion treats byte strings as Latin-1, which maps every octet to the
// Unicode codepoint of the same value, so promote/demote round-trips
// exactly.
package strenc

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// PromoteLatin1 decodes Latin-1 octets into UTF-8 and returns the encoded
// bytes together with the character count (always len(b): Latin-1 is one
// character per octet).
func PromoteLatin1(b []byte) ([]byte, int, error) {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return nil, 0, err
	}
	return out, len(b), nil
}

// DemoteLatin1 re-encodes a UTF-8 string as Latin-1 octets. It reports
// false when the string contains a character above U+00FF.
func DemoteLatin1(s []byte) ([]byte, bool) {
	out, err := charmap.ISO8859_1.NewEncoder().Bytes(s)
	if err != nil {
		return nil, false
	}
	return out, true
}

// RuneCount returns the number of characters in UTF-8 text.
func RuneCount(b []byte) int { return utf8.RuneCount(b) }

// Valid reports whether b is well-formed UTF-8.
func Valid(b []byte) bool { return utf8.Valid(b) }
