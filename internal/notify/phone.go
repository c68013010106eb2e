package notify

import (
	"regexp"
	"strings"
)

// phonePattern matches digit runs optionally split by spaces, dashes,
// dots or parentheses, with an optional leading plus.
var phonePattern = regexp.MustCompile(`\+?\d(?:[\s\-.()]*\d)+`)

// MaskPhoneNumbers hides phone-like digit sequences in text before it is
// forwarded to the sink chat. A sequence counts as phone-like when it
// carries at least seven digits; it is replaced with the first two and
// last two digits around a fixed mask.
func MaskPhoneNumbers(s string) string {
	return phonePattern.ReplaceAllStringFunc(s, func(m string) string {
		digits := keepDigits(m)
		if len(digits) < 7 {
			return m
		}
		var b strings.Builder
		if strings.HasPrefix(m, "+") {
			b.WriteByte('+')
		}
		b.WriteString(digits[:2])
		b.WriteString("*****")
		b.WriteString(digits[len(digits)-2:])
		return b.String()
	})
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}
