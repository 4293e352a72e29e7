package ldap

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// GUIDBytesLength is the size of an objectGUID value.
const GUIDBytesLength = 16

// swapGUIDEndianness converts between RFC 4122 byte order and the mixed-endian
// layout Active Directory stores objectGUID in. The conversion is its own inverse:
// Data1, Data2 and Data3 are byte-reversed and Data4 is kept as is.
func swapGUIDEndianness(in []byte) []byte {
	out := make([]byte, GUIDBytesLength)

	out[0], out[1], out[2], out[3] = in[3], in[2], in[1], in[0]
	out[4], out[5] = in[5], in[4]
	out[6], out[7] = in[7], in[6]
	copy(out[8:], in[8:])

	return out
}

// ParseObjectGUID converts a caller-supplied user identifier into raw objectGUID bytes.
//
// Two forms are accepted:
//   - 32 hex digits: the attribute value hex-encoded as stored, used verbatim
//   - a hyphenated GUID, optionally wrapped in braces: the canonical string form,
//     converted to Active Directory byte order
func ParseObjectGUID(id string) ([]byte, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("GUID cannot be empty")
	}

	if len(id) == 2*GUIDBytesLength && !strings.ContainsAny(id, "-{}") {
		raw, err := hex.DecodeString(id)
		if err != nil {
			return nil, fmt.Errorf("invalid GUID %q: %w", id, err)
		}
		return raw, nil
	}

	if !strings.Contains(id, "-") {
		return nil, fmt.Errorf("invalid GUID %q: expected 32 hex digits or hyphenated form", id)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid GUID %q: %w", id, err)
	}

	return swapGUIDEndianness(parsed[:]), nil
}

// GUIDBytesToString converts Active Directory GUID bytes to standard string format.
func GUIDBytesToString(guidBytes []byte) (string, error) {
	if len(guidBytes) != GUIDBytesLength {
		return "", fmt.Errorf("invalid GUID byte length: expected %d, got %d", GUIDBytesLength, len(guidBytes))
	}

	parsed, err := uuid.FromBytes(swapGUIDEndianness(guidBytes))
	if err != nil {
		return "", err
	}

	return parsed.String(), nil
}

// GUIDSearchFilter builds an objectGUID equality filter with every byte escaped as \xx.
func GUIDSearchFilter(guidBytes []byte) string {
	var b strings.Builder
	b.Grow(len("(objectGUID=)") + 3*len(guidBytes))

	b.WriteString("(objectGUID=")
	for _, c := range guidBytes {
		fmt.Fprintf(&b, "\\%02x", c)
	}
	b.WriteString(")")

	return b.String()
}

// entryGUID returns the canonical form of entry's objectGUID. ok is false
// when the entry carries no objectGUID.
func entryGUID(entry *ldap.Entry) (guid string, ok bool, err error) {
	raw := entry.GetRawAttributeValue("objectGUID")
	if len(raw) == 0 {
		return "", false, nil
	}

	guid, err = GUIDBytesToString(raw)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", entry.DN, err)
	}
	return guid, true, nil
}
