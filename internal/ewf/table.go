package ewf

import (
	"fmt"
	"math"

	"github.com/keramics/keramics-go/internal/blocktree"
)

// tableHeader is the fixed portion preceding a table section's chunk
// entry array.
type tableHeader struct {
	NumberOfEntries uint32
	BaseOffset      uint64
}

const tableHeaderSize = 24 // number_of_entries(4) + padding(4) + base_offset(8) + padding(4) + checksum(4)

func parseTableHeader(data []byte) (tableHeader, error) {
	if len(data) < tableHeaderSize {
		return tableHeader{}, fmt.Errorf("ewf: table header too short: %d bytes", len(data))
	}
	return tableHeader{
		NumberOfEntries: leUint32(data[0:4]),
		BaseOffset:      leUint64(data[8:16]),
	}, nil
}

// chunkEntry is one decoded table entry: an offset (relative to the
// table's base offset) and whether the chunk at that offset is
// zlib compressed.
type chunkEntry struct {
	Offset     uint64
	Compressed bool
}

// decodeTableEntries decodes the raw 4-byte chunk-offset entries that
// follow a table header, applying the EnCase 6.7 overflow workaround:
// once any chunk's data offset plus its data size would exceed a
// signed 32-bit integer, every subsequent entry (and the one that
// triggered it) is read as a plain unsigned 32-bit offset with no
// compression bit and no 31-bit mask. A chunk's size is the distance
// to the next entry's offset; the last entry's size is unknown here
// and never triggers the workaround on its own.
func decodeTableEntries(raw []byte, numberOfEntries int) ([]chunkEntry, error) {
	if len(raw) < numberOfEntries*4 {
		return nil, fmt.Errorf("ewf: table entry array too short for %d entries", numberOfEntries)
	}
	entries := make([]chunkEntry, numberOfEntries)
	overflowed := false

	for i := 0; i < numberOfEntries; i++ {
		raw32 := leUint32(raw[i*4 : i*4+4])

		if overflowed {
			entries[i] = chunkEntry{Offset: uint64(raw32), Compressed: false}
			continue
		}

		compressed := raw32&0x80000000 != 0
		offset := uint64(raw32 & 0x7fffffff)
		entries[i] = chunkEntry{Offset: offset, Compressed: compressed}

		if i+1 < numberOfEntries {
			nextRaw32 := leUint32(raw[(i+1)*4 : (i+1)*4+4])
			nextOffset := uint64(nextRaw32 & 0x7fffffff)
			if nextOffset > offset {
				size := nextOffset - offset
				if offset+size > math.MaxInt32 {
					overflowed = true
					entries[i] = chunkEntry{Offset: uint64(raw32), Compressed: false}
				}
			}
		}
	}
	return entries, nil
}

// insertBlockMap inserts one BlockRange per chunk entry into tree,
// starting at runningMediaOffset and advancing by blockSize per entry.
// The size of each chunk (other than the last) is the difference
// between consecutive entries' offsets; the last chunk's size is
// lastChunkSize. Open passes the volume's block size here; the end of
// the sectors section or of the table section is not consulted.
func insertBlockMap(tree *blocktree.Tree[segmentChunk], entries []chunkEntry, baseOffset uint64,
	runningMediaOffset, blockSize int64, segmentNumber int, lastChunkSize int64) (int64, error) {

	for i, e := range entries {
		var size int64
		if i+1 < len(entries) {
			size = int64(entries[i+1].Offset) - int64(e.Offset)
		} else {
			size = lastChunkSize
		}
		if size <= 0 {
			return runningMediaOffset, fmt.Errorf("ewf: non-positive chunk size %d at entry %d", size, i)
		}

		rangeType := blocktree.InFile
		if e.Compressed {
			rangeType = blocktree.Compressed
		}

		physicalOffset := int64(baseOffset) + int64(e.Offset)
		err := tree.Insert(runningMediaOffset, blockSize, rangeType, physicalOffset, size,
			segmentChunk{SegmentNumber: segmentNumber, Compressed: e.Compressed})
		if err != nil {
			return runningMediaOffset, err
		}
		runningMediaOffset += blockSize
	}
	return runningMediaOffset, nil
}

// segmentChunk is the owner tag attached to each BlockRange inserted
// by a table section: which segment file holds the chunk, and whether
// it must be decompressed before use.
type segmentChunk struct {
	SegmentNumber int
	Compressed    bool
}
