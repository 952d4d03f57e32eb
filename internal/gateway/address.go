// Package gateway understands the messages produced by the Google Voice
// SMS-to-email gateway: who sent them, which parts of the body are
// gateway boilerplate, and when they were sent.
package gateway

import (
	"regexp"
	"strings"
)

// embeddedNumber matches the composite local-part form
// <anything>.<10 digits>.<anything>@<domain>.
var embeddedNumber = regexp.MustCompile(`\.(\d{10})\.[^@]*@`)

// ParsePhone extracts the sender's 10-digit phone number from a raw From
// header. The display name is tried first; if it does not carry a usable
// number, the address local-part is searched. It returns false when the
// number cannot be determined.
func ParsePhone(from string) (string, bool) {
	name, addr := splitAddress(from)

	if name != "" {
		if phone, ok := NormalizePhone(name); ok {
			return phone, true
		}
	}

	if m := embeddedNumber.FindStringSubmatch(addr); m != nil {
		return m[1], true
	}

	return "", false
}

// NormalizePhone strips every non-digit from s and returns the 10-digit
// national number. An 11-digit result with a leading country code of 1 is
// shortened to its last 10 digits; any other length is rejected.
func NormalizePhone(s string) (string, bool) {
	digits := onlyDigits(s)

	switch {
	case len(digits) == 11 && digits[0] == '1':
		return digits[1:], true
	case len(digits) == 10:
		return digits, true
	default:
		return "", false
	}
}

// splitAddress separates `"display" <address>` into its display name and
// address. A header without angle brackets is treated as a bare address.
func splitAddress(from string) (name, addr string) {
	from = strings.TrimSpace(from)

	open := strings.LastIndex(from, "<")
	if open < 0 {
		return "", from
	}

	addr = from[open+1:]
	if end := strings.Index(addr, ">"); end >= 0 {
		addr = addr[:end]
	}

	name = strings.TrimSpace(from[:open])
	name = strings.Trim(name, `"'`)

	return strings.TrimSpace(name), strings.TrimSpace(addr)
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
