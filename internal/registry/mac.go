package registry

import (
	"fmt"
	"strings"
)

// macLength is the number of hex characters in a normalized MAC address.
const macLength = 12

// deviceIDPrefix is prepended to the MAC-derived suffix.
const deviceIDPrefix = "SmartChill_"

// deviceIDSuffixLen is how many trailing MAC characters form the device ID.
const deviceIDSuffixLen = 6

// NormalizeMAC canonicalises a MAC address: separators (colon, hyphen, dot,
// space) are stripped and hex digits uppercased. The result must be exactly
// 12 hex characters.
//
// "aa:bb:cc:11:22:33", "AA-BB-CC-11-22-33" and "aabbcc112233" all
// normalize to "AABBCC112233".
func NormalizeMAC(mac string) (string, error) {
	var b strings.Builder
	b.Grow(macLength)
	for _, r := range mac {
		switch {
		case r == ':' || r == '-' || r == '.' || r == ' ':
			continue
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'a' && r <= 'f':
			b.WriteRune(r - ('a' - 'A'))
		case r >= 'A' && r <= 'F':
			b.WriteRune(r)
		default:
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidMAC, r)
		}
	}
	if b.Len() != macLength {
		return "", fmt.Errorf("%w: got %d hex characters, want %d", ErrInvalidMAC, b.Len(), macLength)
	}
	return b.String(), nil
}

// DeriveDeviceID computes a device's identity from its normalized MAC:
// the fixed prefix plus the last six hex characters.
//
// DeriveDeviceID("AABBCC112233") = "SmartChill_112233".
func DeriveDeviceID(normalizedMAC string) string {
	return deviceIDPrefix + normalizedMAC[len(normalizedMAC)-deviceIDSuffixLen:]
}
