package vhdx

import (
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/keramics/keramics-go/internal/guid"
)

// File is a randomly addressable DataStream over a VHDX image, with
// optional differential-disk parent resolution.
type File struct {
	r io.ReaderAt

	meta           Metadata
	batRegion      regionEntry
	entriesPerChunk uint32

	mu     sync.RWMutex
	parent *File
}

// Open parses a VHDX file's dual headers, dual region tables, and
// metadata table, returning a ready-to-use File. Differential disks
// require a subsequent call to SetParent before reads that fall
// outside this file's own payload blocks will succeed.
func Open(r io.ReaderAt) (*File, error) {
	sig := make([]byte, 8)
	if _, err := r.ReadAt(sig, 0); err != nil {
		return nil, fmt.Errorf("vhdx: reading file identifier: %w", err)
	}
	for i, b := range fileIdentifierSignature {
		if sig[i] != b {
			return nil, fmt.Errorf("vhdx: bad file identifier signature")
		}
	}

	h1Buf := make([]byte, headerSize)
	h1Err := readFull(r, h1Buf, headerOffset1)
	h2Buf := make([]byte, headerSize)
	h2Err := readFull(r, h2Buf, headerOffset2)

	var h1, h2 header
	var h1Valid, h2Valid bool
	if h1Err == nil {
		if h, err := parseHeader(h1Buf); err == nil {
			h1, h1Valid = h, true
		}
	}
	if h2Err == nil {
		if h, err := parseHeader(h2Buf); err == nil {
			h2, h2Valid = h, true
		}
	}
	if _, err := activeHeader(h1, h2, h1Valid, h2Valid); err != nil {
		return nil, err
	}

	rt1Buf := make([]byte, regionTableSize)
	rt1Err := readFull(r, rt1Buf, regionTableOffset1)
	rt2Buf := make([]byte, regionTableSize)
	rt2Err := readFull(r, rt2Buf, regionTableOffset2)

	var regions []regionEntry
	if rt1Err == nil {
		if rs, err := parseRegionTable(rt1Buf); err == nil {
			regions = rs
		}
	}
	if regions == nil && rt2Err == nil {
		if rs, err := parseRegionTable(rt2Buf); err == nil {
			regions = rs
		}
	}
	if regions == nil {
		return nil, fmt.Errorf("vhdx: no valid region table found")
	}

	metaRegion, ok := findRegion(regions, metadataRegionGUID)
	if !ok {
		return nil, fmt.Errorf("vhdx: metadata region not found")
	}
	metaBuf := make([]byte, metaRegion.Length)
	if err := readFull(r, metaBuf, int64(metaRegion.FileOffset)); err != nil {
		return nil, fmt.Errorf("vhdx: reading metadata region: %w", err)
	}
	meta, err := parseMetadata(metaBuf)
	if err != nil {
		return nil, err
	}

	batRegion, ok := findRegion(regions, batRegionGUID)
	if !ok {
		return nil, fmt.Errorf("vhdx: block allocation table region not found")
	}

	f := &File{
		r:               r,
		meta:            meta,
		batRegion:       batRegion,
		entriesPerChunk: entriesPerChunk(meta.PhysicalSectorSize, meta.BlockSize),
	}
	return f, nil
}

func readFull(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if err != nil && !(err == io.EOF && n == len(buf)) {
		return err
	}
	return nil
}

// Size returns the virtual disk's logical size in bytes.
func (f *File) Size() int64 {
	return int64(f.meta.VirtualDiskSize)
}

// DiskType reports whether this image is Fixed, Dynamic, or Differential.
func (f *File) DiskType() DiskType {
	return f.meta.DiskType
}

// Identifier returns this image's virtual_disk_id metadata item.
func (f *File) Identifier() guid.GUID {
	return f.meta.VirtualDiskID
}

// ParentIdentifier returns the linkage GUID this image's
// parent_locator expects its parent to carry, if this is a
// differential disk.
func (f *File) ParentIdentifier() (guid.GUID, bool) {
	if f.meta.DiskType != DiskTypeDifferential || !f.meta.HasParentLocator {
		return guid.GUID{}, false
	}
	return f.meta.ParentLinkage, true
}

// GetParentFileName returns the base file name component of the
// parent_locator's relative_path (Windows-style backslash-separated),
// if this is a differential disk.
func (f *File) GetParentFileName() (string, bool) {
	if f.meta.DiskType != DiskTypeDifferential || f.meta.ParentRelativePath == "" {
		return "", false
	}
	p := strings.ReplaceAll(f.meta.ParentRelativePath, `\`, "/")
	return path.Base(p), true
}

// SetParent attaches a resolved parent image for a differential disk.
// The parent's identifier must match this image's expected linkage
// GUID.
func (f *File) SetParent(parent *File) error {
	expected, ok := f.ParentIdentifier()
	if !ok {
		return fmt.Errorf("vhdx: not a differential disk")
	}
	if !guid.Equal(parent.Identifier(), expected) {
		return fmt.Errorf("vhdx: parent identifier %s does not match expected linkage %s",
			parent.Identifier(), expected)
	}
	f.mu.Lock()
	f.parent = parent
	f.mu.Unlock()
	return nil
}

// ReadAt implements io.ReaderAt over the virtual disk's logical bytes.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	size := f.Size()
	if off >= size {
		return 0, nil
	}
	if off+int64(len(p)) > size {
		p = p[:size-off]
	}

	blockSize := int64(f.meta.BlockSize)
	n := 0
	for n < len(p) {
		at := off + int64(n)
		blockNumber := uint64(at) / uint64(blockSize)
		blockOffset := at % blockSize
		want := len(p) - n
		if int64(want) > blockSize-blockOffset {
			want = int(blockSize - blockOffset)
		}

		read, err := f.readWithinBlock(p[n:n+want], blockNumber, blockOffset)
		if err != nil {
			return n, err
		}
		n += read
	}
	return n, nil
}

func (f *File) readWithinBlock(dst []byte, blockNumber uint64, blockOffset int64) (int, error) {
	switch f.meta.DiskType {
	case DiskTypeFixed:
		return f.readDataBlock(dst, blockNumber, blockOffset, batIndexForBlock(blockNumber, f.entriesPerChunk, false))
	case DiskTypeDynamic:
		return f.readDynamicBlock(dst, blockNumber, blockOffset)
	case DiskTypeDifferential:
		return f.readDifferentialBlock(dst, blockNumber, blockOffset)
	default:
		return 0, fmt.Errorf("vhdx: unsupported disk type")
	}
}

func (f *File) batEntryAt(index uint64) (batEntry, error) {
	raw := make([]byte, 8)
	off := int64(f.batRegion.FileOffset) + int64(index)*8
	if err := readFull(f.r, raw, off); err != nil {
		return batEntry{}, fmt.Errorf("vhdx: reading BAT entry %d: %w", index, err)
	}
	return parseBATEntry(leUint64(raw)), nil
}

func (f *File) readDataBlock(dst []byte, blockNumber uint64, blockOffset int64, batIndex uint64) (int, error) {
	entry, err := f.batEntryAt(batIndex)
	if err != nil {
		return 0, err
	}
	if entry.State != batStatePayloadPresent {
		for i := range dst {
			dst[i] = 0
		}
		return len(dst), nil
	}
	n, err := f.r.ReadAt(dst, int64(entry.Offset)+blockOffset)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("vhdx: reading payload block %d: %w", blockNumber, err)
	}
	return n, nil
}

func (f *File) readDynamicBlock(dst []byte, blockNumber uint64, blockOffset int64) (int, error) {
	return f.readDataBlock(dst, blockNumber, blockOffset, batIndexForBlock(blockNumber, f.entriesPerChunk, false))
}

func (f *File) readDifferentialBlock(dst []byte, blockNumber uint64, blockOffset int64) (int, error) {
	payloadIndex := batIndexForBlock(blockNumber, f.entriesPerChunk, true)
	entry, err := f.batEntryAt(payloadIndex)
	if err != nil {
		return 0, err
	}
	if entry.State == batStatePayloadPresent {
		return f.r.ReadAt(dst, int64(entry.Offset)+blockOffset)
	}

	bitmapIndex := sectorBitmapIndexForChunk(blockNumber, f.entriesPerChunk)
	bitmapEntry, err := f.batEntryAt(bitmapIndex)
	if err != nil {
		return 0, err
	}
	if bitmapEntry.State != batStateSectorBitmapPresent {
		return f.readFromParent(dst, blockNumber, blockOffset)
	}

	sectorSize := int64(f.meta.LogicalSectorSize)
	blockSize := int64(f.meta.BlockSize)
	bitmap := make([]byte, blockSize/sectorSize/8+1)
	if err := readFull(f.r, bitmap, int64(bitmapEntry.Offset)); err != nil {
		return 0, fmt.Errorf("vhdx: reading sector bitmap: %w", err)
	}
	runs := coalesceSectorBitmap(bitmap, int(blockSize/sectorSize))

	readEnd := blockOffset + int64(len(dst))
	n := 0
	for _, run := range runs {
		runStart := int64(run.StartSector) * sectorSize
		runEnd := runStart + int64(run.SectorCount)*sectorSize

		segStart := blockOffset
		if runStart > segStart {
			segStart = runStart
		}
		segEnd := readEnd
		if runEnd < segEnd {
			segEnd = runEnd
		}
		if segStart >= segEnd {
			continue
		}

		segDst := dst[segStart-blockOffset : segEnd-blockOffset]
		var read int
		var rerr error
		if run.Present {
			read, rerr = f.r.ReadAt(segDst, int64(entry.Offset)+segStart)
			if rerr != nil && rerr != io.EOF {
				return n, rerr
			}
		} else {
			read, rerr = f.readFromParent(segDst, blockNumber, segStart)
			if rerr != nil {
				return n, rerr
			}
		}
		n += read
	}
	return n, nil
}

func (f *File) readFromParent(dst []byte, blockNumber uint64, blockOffset int64) (int, error) {
	f.mu.RLock()
	parent := f.parent
	f.mu.RUnlock()
	if parent == nil {
		for i := range dst {
			dst[i] = 0
		}
		return len(dst), nil
	}
	offset := int64(blockNumber)*int64(f.meta.BlockSize) + blockOffset
	return parent.ReadAt(dst, offset)
}
