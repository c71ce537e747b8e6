package dict

// SilencePhone is the canonical silence label used in aligned output.
const SilencePhone = "#"

// silenceFamily lists event phones treated as non-speech.
var silenceFamily = map[string]struct{}{
	"#":       {},
	"sil":     {},
	"silence": {},
	"sp":      {},
	"+":       {},
	"@":       {},
	"dummy":   {},
	"noise":   {},
	"laugh":   {},
	"gb":      {},
}

// IsSilence reports whether phone belongs to the silence/event family.
func IsSilence(phone string) bool {
	_, ok := silenceFamily[phone]
	return ok
}

// CanonicalSilence maps any silence-family alias to SilencePhone; other
// phones are returned unchanged.
func CanonicalSilence(phone string) string {
	if IsSilence(phone) {
		return SilencePhone
	}
	return phone
}

// ValidHTKPhone reports whether a phone name is usable with HTK-style
// tools: ASCII, no whitespace, and not starting with a digit, '-' or
// '+' (the biphone/triphone delimiters).
func ValidHTKPhone(phone string) bool {
	if len(phone) == 0 {
		return false
	}
	for i := 0; i < len(phone); i++ {
		c := phone[i]
		if c <= ' ' || c >= 0x7f {
			return false
		}
	}
	switch phone[0] {
	case '-', '+':
		return false
	}
	if phone[0] >= '0' && phone[0] <= '9' {
		return false
	}
	return true
}
