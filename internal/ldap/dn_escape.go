package ldap

import (
	"strings"
)

// EscapeDNValue escapes special characters in a DN attribute value according to RFC 4514.
//
// Escaped:
//   - the characters , + " \ < > ;
//   - a leading # and leading or trailing spaces
//   - NUL bytes, written as \00
//
// Examples:
//   - "Doe, John" → "Doe\, John"
//   - " John " → "\ John\ "
//   - "#123" → "\#123"
func EscapeDNValue(value string) string {
	if value == "" {
		return value
	}

	var result strings.Builder
	result.Grow(len(value) + 10)

	last := len(value) - 1
	for i, r := range value {
		switch r {
		case ',', '+', '"', '\\', '<', '>', ';':
			result.WriteRune('\\')
			result.WriteRune(r)
		case '#':
			if i == 0 {
				result.WriteRune('\\')
			}
			result.WriteRune(r)
		case ' ':
			if i == 0 || i == last {
				result.WriteRune('\\')
			}
			result.WriteRune(r)
		case 0:
			result.WriteString("\\00")
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}

// ChildDN returns the DN of the entry named attr=value directly below parent.
func ChildDN(attr, value, parent string) string {
	rdn := attr + "=" + EscapeDNValue(value)
	if parent == "" {
		return rdn
	}
	return rdn + "," + parent
}
