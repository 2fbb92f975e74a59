package ewf

import (
	"fmt"
)

// segmentExtension derives the extension (without the leading dot) for
// segment number n, given the family prefix letter ('E' for EWF/EWF2
// image/S01 hash segments use 'S', case as requested by upper).
//
// Segments 1..99 are "<prefix><nn>". Beyond that the extension
// continues as two trailing letters cycling A..Z (676 combinations)
// with the prefix letter itself incrementing every 676 segments, up
// to 'Z' — the libewf/EnCase naming convention this type is modeled on.
func segmentExtension(n int, prefix byte, upper bool) (string, error) {
	if n < 1 {
		return "", fmt.Errorf("ewf: segment number %d must be positive", n)
	}
	if !upper {
		prefix = prefix - 'A' + 'a'
	}

	if n <= 99 {
		return fmt.Sprintf("%c%02d", prefix, n), nil
	}

	index := n - 100
	const lettersPerBlock = 26 * 26
	firstLetterIndex := index / lettersPerBlock
	remainder := index % lettersPerBlock

	maxFirstLetterIndex := int('Z' - prefix)
	if !upper {
		maxFirstLetterIndex = int('z' - prefix)
	}
	if firstLetterIndex > maxFirstLetterIndex {
		return "", fmt.Errorf("ewf: segment number %d exceeds maximum representable segment", n)
	}

	first := prefix + byte(firstLetterIndex)
	second := byte('A') + byte(remainder/26)
	third := byte('A') + byte(remainder%26)
	if !upper {
		second = byte('a') + byte(remainder/26)
		third = byte('a') + byte(remainder%26)
	}
	return string([]byte{first, second, third}), nil
}

// SegmentExtension returns the ".E01"-style extension for an EWF image
// segment number (1-based), using the requested case.
func SegmentExtension(n int, upper bool) (string, error) {
	return segmentExtension(n, 'E', upper)
}

// HashSegmentExtension returns the ".S01"-style extension used by
// stand-alone hash segment files.
func HashSegmentExtension(n int, upper bool) (string, error) {
	return segmentExtension(n, 'S', upper)
}

// sectionHeader is the fixed 76-byte record preceding every section in
// an EWF segment file.
type sectionHeader struct {
	Type     string // NUL-padded 16-byte ASCII type name, trimmed
	Next     uint64 // absolute offset of the next section header
	Size     uint64 // size of this section including the header
	Checksum uint32
}

const sectionHeaderSize = 76

func parseSectionHeader(data []byte) (sectionHeader, error) {
	if len(data) < sectionHeaderSize {
		return sectionHeader{}, fmt.Errorf("ewf: section header too short: %d bytes", len(data))
	}
	typeEnd := 0
	for typeEnd < 16 && data[typeEnd] != 0 {
		typeEnd++
	}
	h := sectionHeader{
		Type:     string(data[:typeEnd]),
		Next:     leUint64(data[16:24]),
		Size:     leUint64(data[24:32]),
		Checksum: leUint32(data[72:76]),
	}
	return h, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
