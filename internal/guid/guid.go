// Package guid decodes the mixed-endian 16-byte GUID layout used by
// Microsoft on-disk formats (VHDX region and metadata identifiers).
package guid

import (
	"fmt"
	"strings"
)

// GUID is a 16-byte Microsoft-layout globally unique identifier: the
// first three fields are little-endian, the remaining eight bytes are
// read in wire order.
type GUID [16]byte

// Parse reads a GUID from the first 16 bytes of b.
func Parse(b []byte) (GUID, error) {
	if len(b) < 16 {
		return GUID{}, fmt.Errorf("guid: need 16 bytes, got %d", len(b))
	}
	var g GUID
	copy(g[:], b[:16])
	return g, nil
}

// String renders the GUID in canonical
// "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx" form.
func (g GUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		uint32(g[0])|uint32(g[1])<<8|uint32(g[2])<<16|uint32(g[3])<<24,
		uint16(g[4])|uint16(g[5])<<8,
		uint16(g[6])|uint16(g[7])<<8,
		g[8], g[9],
		g[10], g[11], g[12], g[13], g[14], g[15])
}

// Equal reports whether two GUIDs have identical bytes.
func Equal(a, b GUID) bool {
	return a == b
}

// ParseString parses a GUID from its canonical hyphenated text form
// ("xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"), with or without surrounding
// braces. This is the form VHDX's parent_locator stores its
// parent_linkage value in, as UTF-16 text rather than raw bytes.
func ParseString(s string) (GUID, error) {
	s = strings.Trim(s, "{}")
	parts := strings.Split(s, "-")
	if len(parts) != 5 || len(parts[0]) != 8 || len(parts[1]) != 4 || len(parts[2]) != 4 ||
		len(parts[3]) != 4 || len(parts[4]) != 12 {
		return GUID{}, fmt.Errorf("guid: %q is not a valid GUID string", s)
	}

	var data1 uint32
	var data2, data3 uint16
	var data4 [8]byte
	if _, err := fmt.Sscanf(parts[0], "%08x", &data1); err != nil {
		return GUID{}, fmt.Errorf("guid: %q is not a valid GUID string", s)
	}
	if _, err := fmt.Sscanf(parts[1], "%04x", &data2); err != nil {
		return GUID{}, fmt.Errorf("guid: %q is not a valid GUID string", s)
	}
	if _, err := fmt.Sscanf(parts[2], "%04x", &data3); err != nil {
		return GUID{}, fmt.Errorf("guid: %q is not a valid GUID string", s)
	}
	tail := parts[3] + parts[4]
	for i := 0; i < 8; i++ {
		var b uint32
		if _, err := fmt.Sscanf(tail[i*2:i*2+2], "%02x", &b); err != nil {
			return GUID{}, fmt.Errorf("guid: %q is not a valid GUID string", s)
		}
		data4[i] = byte(b)
	}

	var g GUID
	g[0], g[1], g[2], g[3] = byte(data1), byte(data1>>8), byte(data1>>16), byte(data1>>24)
	g[4], g[5] = byte(data2), byte(data2>>8)
	g[6], g[7] = byte(data3), byte(data3>>8)
	copy(g[8:16], data4[:])
	return g, nil
}
