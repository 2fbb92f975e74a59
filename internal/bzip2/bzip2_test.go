package bzip2

import (
	"bytes"
	"testing"
)

// peterPiperStream is a 117-byte one-block bzip2 stream that
// decompresses to the "Peter Piper" tongue-twister.
func peterPiperStream() []byte {
	return []byte{
		0x42, 0x5a, 0x68, 0x31, 0x31, 0x41, 0x59, 0x26, 0x53, 0x59, 0x5a, 0x55, 0xc4, 0x1e,
		0x00, 0x00, 0x0c, 0x5f, 0x80, 0x20, 0x00, 0x40, 0x84, 0x00, 0x00, 0x80, 0x20, 0x40,
		0x00, 0x2f, 0x6c, 0xdc, 0x80, 0x20, 0x00, 0x48, 0x4a, 0x9a, 0x4c, 0xd5, 0x53, 0xfc,
		0x69, 0xa5, 0x53, 0xff, 0x55, 0x3f, 0x69, 0x50, 0x15, 0x48, 0x95, 0x4f, 0xff, 0x55,
		0x51, 0xff, 0xaa, 0xa0, 0xff, 0xf5, 0x55, 0x31, 0xff, 0xaa, 0xa7, 0xfb, 0x4b, 0x34,
		0xc9, 0xb8, 0x38, 0xff, 0x16, 0x14, 0x56, 0x5a, 0xe2, 0x8b, 0x9d, 0x50, 0xb9, 0x00,
		0x81, 0x1a, 0x91, 0xfa, 0x25, 0x4f, 0x08, 0x5f, 0x4b, 0x5f, 0x53, 0x92, 0x4b, 0x11,
		0xc5, 0x22, 0x92, 0xd9, 0x50, 0x56, 0x6b, 0x6f, 0x9e, 0x17, 0x72, 0x45, 0x38, 0x50,
		0x90, 0x5a, 0x55, 0xc4, 0x1e,
	}
}

var peterPiperText = []byte(
	"If Peter Piper picked a peck of pickled peppers, where's the peck of pickled peppers " +
		"Peter Piper picked?????")

// efiPartStream is a 122-byte one-block bzip2 stream that decompresses
// to a 512-byte GPT header sector.
func efiPartStream() []byte {
	return []byte{
		0x42, 0x5a, 0x68, 0x31, 0x31, 0x41, 0x59, 0x26, 0x53, 0x59, 0xef, 0x2d, 0xfa, 0x16,
		0x00, 0x00, 0x21, 0xfe, 0x57, 0xf8, 0x00, 0x00, 0xc2, 0xda, 0x00, 0x00, 0x30, 0x23,
		0x30, 0x54, 0x04, 0x49, 0x89, 0x68, 0x40, 0x05, 0x00, 0x01, 0x01, 0x00, 0x40, 0x00,
		0x09, 0xa0, 0x00, 0x54, 0x61, 0xa1, 0xa3, 0x26, 0x20, 0xc2, 0x1a, 0x06, 0x20, 0xf2,
		0x83, 0x45, 0x06, 0x80, 0x1a, 0x00, 0xd1, 0xa1, 0x90, 0xc8, 0x20, 0xe4, 0x11, 0x4d,
		0x1b, 0xf8, 0x40, 0x2d, 0x15, 0x01, 0x98, 0x51, 0x82, 0x01, 0x06, 0x0b, 0x63, 0x21,
		0xd1, 0xad, 0xa9, 0xf9, 0xeb, 0x4b, 0xb3, 0xc9, 0xac, 0xf1, 0xcc, 0x68, 0xf3, 0x2f,
		0x19, 0x0a, 0x3e, 0x96, 0x3e, 0x82, 0x0a, 0x03, 0xa8, 0x0a, 0x0b, 0x35, 0x44, 0xfc,
		0x5d, 0xc9, 0x14, 0xe1, 0x42, 0x43, 0xbc, 0xb7, 0xe8, 0x58,
	}
}

func TestBitstreamGetValue(t *testing.T) {
	data := peterPiperStream()

	b := newBitstream(data, 4)
	if v := b.getValue(0); v != 0 {
		t.Fatalf("getValue(0) = %#x, want 0", v)
	}
	if v := b.getValue(4); v != 0x3 {
		t.Fatalf("getValue(4) = %#x, want 0x3", v)
	}
	if v := b.getValue(12); v != 0x141 {
		t.Fatalf("getValue(12) = %#x, want 0x141", v)
	}
	if v := b.getValue(32); v != 0x59265359 {
		t.Fatalf("getValue(32) = %#x, want 0x59265359", v)
	}

	b = newBitstream(data, 4)
	if v := b.getValue(12); v != 0x314 {
		t.Fatalf("getValue(12) = %#x, want 0x314", v)
	}
	if v := b.getValue(32); v != 0x15926535 {
		t.Fatalf("getValue(32) = %#x, want 0x15926535", v)
	}
}

func TestBitstreamSkipBits(t *testing.T) {
	b := newBitstream(peterPiperStream(), 4)
	b.skipBits(4)
	if v := b.getValue(12); v != 0x141 {
		t.Fatalf("getValue(12) after skip = %#x, want 0x141", v)
	}
}

func TestReadStreamHeader(t *testing.T) {
	var h streamHeader
	if err := h.readData(peterPiperStream()); err != nil {
		t.Fatal(err)
	}
}

func TestReadBlockHeader(t *testing.T) {
	b := newBitstream(peterPiperStream(), 4)
	var h blockHeader
	if err := h.readFromBitstream(b); err != nil {
		t.Fatal(err)
	}
	if h.signature != blockHeaderSignature {
		t.Fatalf("signature = 0x%012x, want 0x%012x", h.signature, uint64(blockHeaderSignature))
	}
	if h.checksum != 0x5a55c41e {
		t.Fatalf("checksum = 0x%08x, want 0x5a55c41e", h.checksum)
	}
	if h.randomizedFlag != 0 {
		t.Fatalf("randomizedFlag = %d, want 0", h.randomizedFlag)
	}
	if h.originPointer != 0x18 {
		t.Fatalf("originPointer = 0x%06x, want 0x000018", h.originPointer)
	}
}

func TestReadSymbolStack(t *testing.T) {
	b := newBitstream(peterPiperStream(), 4)
	var h blockHeader
	if err := h.readFromBitstream(b); err != nil {
		t.Fatal(err)
	}

	stack := make([]byte, 256)
	n, err := readSymbolStack(b, stack)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		1, 32, 39, 44, 63, 73, 80, 97, 99, 100, 101, 102, 104, 105, 107, 108, 111, 112, 114,
		115, 116, 119, 0, 0,
	}
	if n != 24 {
		t.Fatalf("n = %d, want 24", n)
	}
	if !bytes.Equal(stack[:24], want) {
		t.Fatalf("symbol stack = %v, want %v", stack[:24], want)
	}
}

func TestDecompressBitstream(t *testing.T) {
	c := NewContext()
	b := newBitstream(peterPiperStream(), 4)
	uncompressed := make([]byte, 512)
	if err := c.decompressBitstream(b, uncompressed); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(uncompressed[:c.UncompressedDataSize], peterPiperText) {
		t.Fatalf("decompressed = %q, want %q", uncompressed[:c.UncompressedDataSize], peterPiperText)
	}
}

func TestDecompress_PeterPiper(t *testing.T) {
	c := NewContext()
	uncompressed := make([]byte, 512)
	if err := c.Decompress(peterPiperStream(), uncompressed); err != nil {
		t.Fatal(err)
	}
	if c.UncompressedDataSize != len(peterPiperText) {
		t.Fatalf("size = %d, want %d", c.UncompressedDataSize, len(peterPiperText))
	}
	if !bytes.Equal(uncompressed[:c.UncompressedDataSize], peterPiperText) {
		t.Fatalf("decompressed = %q, want %q", uncompressed[:c.UncompressedDataSize], peterPiperText)
	}
}

func TestDecompress_EFIPart(t *testing.T) {
	c := NewContext()
	uncompressed := make([]byte, 512)
	if err := c.Decompress(efiPartStream(), uncompressed); err != nil {
		t.Fatal(err)
	}
	if c.UncompressedDataSize != 512 {
		t.Fatalf("size = %d, want 512", c.UncompressedDataSize)
	}
	if uncompressed[0] != 'E' || uncompressed[1] != 'F' || uncompressed[2] != 'I' || uncompressed[3] != ' ' {
		t.Fatalf("decompressed does not start with EFI PART signature: %v", uncompressed[:8])
	}
	if string(uncompressed[:8]) != "EFI PART" {
		t.Fatalf("decompressed signature = %q, want %q", uncompressed[:8], "EFI PART")
	}
}

func TestReverseBurrowsWheelerTransform(t *testing.T) {
	blockData := []byte{
		0x73, 0x73, 0x65, 0x65, 0x79, 0x65, 0x65, 0x20, 0x68, 0x68, 0x73, 0x73, 0x68, 0x73,
		0x72, 0x74, 0x73, 0x73, 0x73, 0x65, 0x65, 0x6c, 0x6c, 0x68, 0x6f, 0x6c, 0x6c, 0x20,
		0x20, 0x20, 0x65, 0x61, 0x61, 0x20, 0x62,
	}
	uncompressed := make([]byte, 35)
	offset := 0
	if err := reverseBurrowsWheelerTransform(blockData, 35, 30, uncompressed, &offset, 35); err != nil {
		t.Fatal(err)
	}
	want := "she sells seashells by the seashore"[:35]
	if offset != 35 {
		t.Fatalf("offset = %d, want 35", offset)
	}
	if string(uncompressed) != want {
		t.Fatalf("uncompressed = %q, want %q", uncompressed, want)
	}
}

func TestDecompress_InvalidSignature(t *testing.T) {
	data := append([]byte(nil), peterPiperStream()...)
	data[0] = 0x00
	c := NewContext()
	if err := c.Decompress(data, make([]byte, 512)); err == nil {
		t.Fatal("expected error for invalid signature")
	}
}

func TestDecompress_TooSmall(t *testing.T) {
	c := NewContext()
	if err := c.Decompress([]byte{0x42, 0x5a}, make([]byte, 512)); err == nil {
		t.Fatal("expected error for undersized input")
	}
}
