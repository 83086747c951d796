// Package arabic normalizes Arabic news text so that superficial
// orthographic variants of the same content produce identical hashes.
package arabic

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize strips diacritics (tashkeel) and the tatweel stretch
// character, unifies alef variants to bare alef, maps ة to ه and ى to ي,
// then trims and lowercases.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for _, r := range text {
		switch {
		case r >= 0x064B && r <= 0x065F, r == 0x0670, r == 0x0640:
			// tashkeel marks, superscript alef, tatweel
			continue
		case r == 'أ', r == 'إ', r == 'آ':
			b.WriteRune('ا')
		case r == 'ة':
			b.WriteRune('ه')
		case r == 'ى':
			b.WriteRune('ي')
		default:
			b.WriteRune(r)
		}
	}

	return strings.ToLower(strings.TrimSpace(b.String()))
}

// ContentHash returns the hex SHA-256 of the normalized headline and
// description. It is a pure function: equal normalized text always
// yields the same hash regardless of source or ingestion time.
func ContentHash(headline, description string) string {
	canonical := Normalize(headline) + "|" + Normalize(description)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
