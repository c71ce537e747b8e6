package grammar

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"palign/internal/dict"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Spell derives a fallback pronunciation from a token's graphemes: one
// phone per letter, diacritics stripped. It is a crude stand-in for a
// real grapheme-to-phoneme converter and is only used under
// PolicySpell.
func Spell(token string) []string {
	folded, _, err := transform.String(stripMarks, strings.ToLower(strings.TrimSpace(token)))
	if err != nil {
		folded = strings.ToLower(token)
	}
	var phones []string
	for _, r := range folded {
		if !unicode.IsLetter(r) {
			continue
		}
		phone := string(r)
		if dict.ValidHTKPhone(phone) {
			phones = append(phones, phone)
		}
	}
	return phones
}
