// Package checksums provides checksum variants not covered by the
// standard library's reflected hash/crc32 tables.
package checksums

// Bzip2CRC32 computes the non-reflected, MSB-first CRC-32 used by the
// bzip2 block format: polynomial 0x04c11db7, initial value 0xffffffff,
// no input or output reflection, final XOR 0xffffffff. This is the "big-endian" CRC-32
// variant; hash/crc32's tables all assume the reflected (little-endian)
// convention and cannot produce this value.
type Bzip2CRC32 struct {
	crc uint32
}

var bzip2Table [256]uint32

func init() {
	const poly = 0x04c11db7
	for i := range bzip2Table {
		crc := uint32(i) << 24
		for range 8 {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		bzip2Table[i] = crc
	}
}

// NewBzip2CRC32 returns a hasher initialised to 0xffffffff.
func NewBzip2CRC32() *Bzip2CRC32 {
	return &Bzip2CRC32{crc: 0xffffffff}
}

// WriteByte folds a single byte into the running checksum.
func (h *Bzip2CRC32) WriteByte(b byte) {
	h.crc = (h.crc << 8) ^ bzip2Table[byte(h.crc>>24)^b]
}

// Write folds p into the running checksum.
func (h *Bzip2CRC32) Write(p []byte) {
	for _, b := range p {
		h.WriteByte(b)
	}
}

// Sum32 returns the checksum accumulated so far, with the final XOR
// applied.
func (h *Bzip2CRC32) Sum32() uint32 {
	return ^h.crc
}

// CombineBlock folds a 48-bit-aligned block's own checksum into a
// running stream checksum, the way bzip2 accumulates per-block CRCs
// into the stream-level CRC: streamCRC = (streamCRC<<1 | streamCRC>>31) ^ blockCRC.
func CombineBlock(streamCRC, blockCRC uint32) uint32 {
	return (streamCRC<<1 | streamCRC>>31) ^ blockCRC
}
