// Package ewf implements a read-only, randomly addressable view of an
// Expert Witness Format (EWF/E01) segmented forensic image: a logical
// byte stream backed by chunked, optionally zlib-compressed segment
// files, ported from keramics-formats/src/ewf/image.rs.
package ewf

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"sync"

	"github.com/keramics/keramics-go/internal/blocktree"
	"github.com/keramics/keramics-go/internal/lru"
	"github.com/keramics/keramics-go/internal/mediator"
)

const segmentSignatureSize = 13

// SegmentOpener returns a reader for the given 1-based segment number,
// opened on demand. The Image keeps at most maxOpenSegments readers in
// an LRU; a reader evicted from it is dropped, not closed.
type SegmentOpener func(segmentNumber int) (io.ReaderAt, error)

const (
	maxOpenSegments       = 16
	maxCachedBlocks       = 64
)

// Image is a randomly addressable DataStream over an EWF segmented image.
type Image struct {
	opener SegmentOpener
	vol    volume
	tree   *blocktree.Tree[segmentChunk]

	mu       sync.Mutex
	segments *lru.Cache[int, io.ReaderAt]
	blocks   *lru.Cache[int64, []byte]
}

// Open scans numberOfSegments segment files (1-based) via opener,
// parses the section chain of each, and assembles a block tree
// covering the full logical media size.
func Open(opener SegmentOpener, numberOfSegments int) (*Image, error) {
	img := &Image{
		opener:   opener,
		segments: lru.New[int, io.ReaderAt](maxOpenSegments, func(int, io.ReaderAt) {}),
	}

	var runningMediaOffset int64
	var sawVolume bool

	for segmentNumber := 1; segmentNumber <= numberOfSegments; segmentNumber++ {
		r, err := opener(segmentNumber)
		if err != nil {
			return nil, fmt.Errorf("ewf: opening segment %d: %w", segmentNumber, err)
		}

		offset := int64(segmentSignatureSize)
		for {
			headerBuf := make([]byte, sectionHeaderSize)
			if _, err := r.ReadAt(headerBuf, offset); err != nil {
				return nil, fmt.Errorf("ewf: reading section header at segment %d offset %d: %w", segmentNumber, offset, err)
			}
			header, err := parseSectionHeader(headerBuf)
			if err != nil {
				return nil, err
			}
			mediator.Current().Debugf("ewf section %q at segment %d offset %d size %d", header.Type, segmentNumber, offset, header.Size)

			body := make([]byte, 0)
			bodySize := int64(header.Size) - sectionHeaderSize
			if bodySize > 0 {
				body = make([]byte, bodySize)
				if _, err := r.ReadAt(body, offset+sectionHeaderSize); err != nil {
					return nil, fmt.Errorf("ewf: reading section body at segment %d offset %d: %w", segmentNumber, offset, err)
				}
			}

			switch header.Type {
			case "disk", "volume":
				v, err := parseVolume(body)
				if err != nil {
					return nil, err
				}
				if !sawVolume {
					img.vol = v
					img.tree = blocktree.New[segmentChunk](v.mediaSize(), int64(v.SectorsPerChunk), int64(v.BytesPerSector))
					sawVolume = true
				}
			case "table":
				if !sawVolume {
					return nil, fmt.Errorf("ewf: table section before volume section in segment %d", segmentNumber)
				}
				th, err := parseTableHeader(body)
				if err != nil {
					return nil, err
				}
				entries, err := decodeTableEntries(body[tableHeaderSize:], int(th.NumberOfEntries))
				if err != nil {
					return nil, err
				}
				lastChunkSize := img.vol.blockSize()
				runningMediaOffset, err = insertBlockMap(img.tree, entries, th.BaseOffset,
					runningMediaOffset, img.vol.blockSize(), segmentNumber, lastChunkSize)
				if err != nil {
					return nil, err
				}
			case "done":
				goto nextSegment
			}

			if header.Next == uint64(offset) || header.Next == 0 {
				break
			}
			offset = int64(header.Next)
		}
	nextSegment:
	}

	if !sawVolume {
		return nil, fmt.Errorf("ewf: no volume section found across %d segments", numberOfSegments)
	}
	img.blocks = lru.New[int64, []byte](maxCachedBlocks, func(int64, []byte) {})
	return img, nil
}

// Size returns the logical size of the media in bytes.
func (img *Image) Size() int64 {
	return img.vol.mediaSize()
}

// ReadAt implements io.ReaderAt over the logical media.
func (img *Image) ReadAt(p []byte, off int64) (int, error) {
	size := img.Size()
	if off >= size {
		return 0, nil
	}
	if off+int64(len(p)) > size {
		p = p[:size-off]
	}

	blockSize := img.vol.blockSize()
	n := 0
	for n < len(p) {
		at := off + int64(n)
		rng, ok := img.tree.Get(at)
		if !ok {
			return n, fmt.Errorf("ewf: no block range covers offset %d", at)
		}

		block, err := img.readBlock(rng)
		if err != nil {
			return n, err
		}

		blockRelOffset := at - rng.LogicalOffset
		copied := copy(p[n:], block[blockRelOffset:])
		n += copied
		_ = blockSize
	}
	return n, nil
}

func (img *Image) readBlock(rng blocktree.Range[segmentChunk]) ([]byte, error) {
	img.mu.Lock()
	defer img.mu.Unlock()

	if block, ok := img.blocks.Get(rng.PhysicalOffset); ok {
		return block, nil
	}

	r, err := img.segmentReader(rng.Value.SegmentNumber)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, rng.PhysicalSize)
	if _, err := r.ReadAt(raw, rng.PhysicalOffset); err != nil {
		return nil, fmt.Errorf("ewf: reading chunk at physical offset %d: %w", rng.PhysicalOffset, err)
	}

	var block []byte
	if rng.Type == blocktree.Compressed {
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("ewf: opening zlib chunk: %w", err)
		}
		defer zr.Close()
		block = make([]byte, rng.LogicalSize)
		if _, err := io.ReadFull(zr, block); err != nil {
			return nil, fmt.Errorf("ewf: decompressing chunk: %w", err)
		}
	} else {
		block = raw
	}

	img.blocks.Put(rng.PhysicalOffset, block)
	return block, nil
}

func (img *Image) segmentReader(segmentNumber int) (io.ReaderAt, error) {
	if r, ok := img.segments.Get(segmentNumber); ok {
		return r, nil
	}
	r, err := img.opener(segmentNumber)
	if err != nil {
		return nil, fmt.Errorf("ewf: opening segment %d: %w", segmentNumber, err)
	}
	img.segments.Put(segmentNumber, r)
	return r, nil
}
