package bzip2

import "fmt"

// huffmanTree decodes bzip2's canonical Huffman codes. bzip2 builds a
// code purely from an array of per-symbol code lengths (no explicit
// code values are transmitted), so decoding walks length classes from
// shortest to longest, tracking the lowest code value assigned to each
// length and the cumulative symbol permutation, exactly as the
// reference bzip2 decompressor does.
type huffmanTree struct {
	numberOfSymbols int
	maxCodeLength   int

	limit [maxHuffmanCodeLength + 1]int32
	base  [maxHuffmanCodeLength + 1]int32
	perm  []uint16
	minLength int
}

const maxHuffmanCodeLength = 32

func newHuffmanTree(numberOfSymbols, maxCodeLength int) *huffmanTree {
	return &huffmanTree{
		numberOfSymbols: numberOfSymbols,
		maxCodeLength:   maxCodeLength,
		perm:            make([]uint16, numberOfSymbols),
	}
}

// build assigns canonical codes from a per-symbol code-length array,
// ordered by (length, symbol index).
func (h *huffmanTree) build(codeLengths []uint8) error {
	minLength, maxLength := maxHuffmanCodeLength, 0
	for _, l := range codeLengths {
		if int(l) < minLength {
			minLength = int(l)
		}
		if int(l) > maxLength {
			maxLength = int(l)
		}
	}
	h.minLength = minLength

	permIndex := 0
	for length := minLength; length <= maxLength; length++ {
		for symbol, l := range codeLengths {
			if int(l) == length {
				h.perm[permIndex] = uint16(symbol)
				permIndex++
			}
		}
	}

	var code int32
	var counts [maxHuffmanCodeLength + 2]int32
	for _, l := range codeLengths {
		counts[l]++
	}
	for length := minLength; length <= maxLength; length++ {
		code += counts[length]
		h.limit[length] = code - 1
		code <<= 1
	}
	code = 0
	var base int32
	for length := minLength; length <= maxLength; length++ {
		h.base[length] = code - base
		code += counts[length]
		base += counts[length]
		code <<= 1
	}
	return nil
}

// decodeSymbol reads one canonical Huffman symbol from the bitstream.
func (h *huffmanTree) decodeSymbol(b *bitstream) (uint16, error) {
	length := h.minLength
	code := int32(b.getValue(length))

	for length <= h.maxCodeLength {
		if code <= h.limit[length] {
			index := code - h.base[length]
			if index < 0 || int(index) >= len(h.perm) {
				return 0, fmt.Errorf("bzip2: invalid huffman code at length %d", length)
			}
			return h.perm[index], nil
		}
		length++
		code = (code << 1) | int32(b.getValue(1))
	}
	return 0, fmt.Errorf("bzip2: huffman code exceeds maximum length %d", h.maxCodeLength)
}
