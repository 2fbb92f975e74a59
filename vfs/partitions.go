package vfs

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// PartitionEntry describes one partition-table slot: its byte range
// within the parent stream and a human-readable type tag.
type PartitionEntry struct {
	Name       string
	Type       string
	Offset     int64
	Size       int64
}

// parseApm parses an Apple Partition Map, grounded directly on
// internal/apm/apm.go's Driver Descriptor Map + partition-map-entry
// walk, generalised from building an fskeleton.FS to returning plain
// PartitionEntry values.
func parseApm(stream DataStream) ([]PartitionEntry, error) {
	var ddm [514]byte
	n, _ := stream.ReadAt(ddm[:], 0)
	if n < 514 || ddm[0] != 'E' || ddm[1] != 'R' {
		return nil, errorf(InvalidData, "vfs: not an Apple Partition Map")
	}

	sbBlkSize := binary.BigEndian.Uint16(ddm[2:])
	mapEntryStep := int64(sbBlkSize)
	if ddm[512] == 'P' && ddm[513] == 'M' {
		mapEntryStep = 512
	}

	var first [8]byte
	n, _ = stream.ReadAt(first[:], mapEntryStep)
	if n < 8 || first[0] != 'P' || first[1] != 'M' {
		return nil, errorf(InvalidData, "vfs: corrupt Apple Partition Map")
	}
	count := int64(binary.BigEndian.Uint32(first[4:8]))

	raw := make([]byte, int(count*mapEntryStep))
	if n, _ := stream.ReadAt(raw, mapEntryStep); n != len(raw) {
		return nil, errorf(InvalidData, "vfs: truncated Apple Partition Map")
	}

	var entries [][]byte
	for i := int64(0); i < count; i++ {
		ent := raw[i*mapEntryStep:][:512]
		if ent[0] != 'P' || ent[1] != 'M' {
			return nil, errorf(InvalidData, "vfs: corrupt Apple Partition Map entry %d", i)
		}
		entries = append(entries, ent)
	}
	slices.SortStableFunc(entries, func(a, b []byte) int {
		return cmp.Compare(binary.BigEndian.Uint32(a[8:]), binary.BigEndian.Uint32(b[8:]))
	})

	ofeach := make(map[string]int)
	var out []PartitionEntry
	for _, ent := range entries {
		partStart := binary.BigEndian.Uint32(ent[8:])
		partBlkCnt := binary.BigEndian.Uint32(ent[12:])
		parType, _, _ := strings.Cut(string(ent[48:80]), "\x00")
		if parType == "Apple_Free" {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(parType, "Apple_"))
		ofeach[name]++
		name += "-" + strconv.Itoa(ofeach[name])
		out = append(out, PartitionEntry{
			Name:   name,
			Type:   parType,
			Offset: mapEntryStep * int64(partStart),
			Size:   mapEntryStep * int64(partBlkCnt),
		})
	}
	return out, nil
}

// parseMbr parses a DOS master boot record's primary partition table:
// four 16-byte entries at offset 446, each {status, chs_start[3],
// type, chs_end[3], lba_start:u32, num_sectors:u32}.
func parseMbr(stream DataStream) ([]PartitionEntry, error) {
	var sector [512]byte
	if n, _ := stream.ReadAt(sector[:], 0); n < 512 {
		return nil, errorf(InvalidData, "vfs: truncated MBR sector")
	}
	if sector[510] != 0x55 || sector[511] != 0xAA {
		return nil, errorf(InvalidData, "vfs: invalid MBR boot signature")
	}

	var out []PartitionEntry
	const sectorSize = 512
	for i := 0; i < 4; i++ {
		ent := sector[446+i*16 : 446+i*16+16]
		partType := ent[4]
		if partType == 0 {
			continue
		}
		lbaStart := binary.LittleEndian.Uint32(ent[8:12])
		numSectors := binary.LittleEndian.Uint32(ent[12:16])
		out = append(out, PartitionEntry{
			Name:   fmt.Sprintf("p%d", i+1),
			Type:   fmt.Sprintf("0x%02x", partType),
			Offset: int64(lbaStart) * sectorSize,
			Size:   int64(numSectors) * sectorSize,
		})
	}
	return out, nil
}

var gptSignature = [8]byte{'E', 'F', 'I', ' ', 'P', 'A', 'R', 'T'}

// parseGpt parses a GUID Partition Table header (LBA 1) and its
// partition-entry array.
func parseGpt(stream DataStream) ([]PartitionEntry, error) {
	const sectorSize = 512
	var header [512]byte
	if n, _ := stream.ReadAt(header[:], sectorSize); n < 92 {
		return nil, errorf(InvalidData, "vfs: truncated GPT header")
	}
	for i, b := range gptSignature {
		if header[i] != b {
			return nil, errorf(InvalidData, "vfs: invalid GPT signature")
		}
	}

	entryLBA := binary.LittleEndian.Uint64(header[72:80])
	numEntries := binary.LittleEndian.Uint32(header[80:84])
	entrySize := binary.LittleEndian.Uint32(header[84:88])
	if entrySize == 0 || numEntries == 0 {
		return nil, errorf(InvalidData, "vfs: invalid GPT partition array parameters")
	}

	raw := make([]byte, int(numEntries)*int(entrySize))
	if n, _ := stream.ReadAt(raw, int64(entryLBA)*sectorSize); n != len(raw) {
		return nil, errorf(InvalidData, "vfs: truncated GPT partition entry array")
	}

	var out []PartitionEntry
	for i := uint32(0); i < numEntries; i++ {
		ent := raw[int(i)*int(entrySize):][:entrySize]
		typeGUID := ent[0:16]
		allZero := true
		for _, b := range typeGUID {
			if b != 0 {
				allZero = false
				break
			}
		}
		if allZero {
			continue
		}
		firstLBA := binary.LittleEndian.Uint64(ent[32:40])
		lastLBA := binary.LittleEndian.Uint64(ent[40:48])
		name := decodeGptName(ent[56:128])
		if name == "" {
			name = fmt.Sprintf("p%d", i+1)
		}
		out = append(out, PartitionEntry{
			Name:   name,
			Type:   fmt.Sprintf("%x", typeGUID),
			Offset: int64(firstLBA) * sectorSize,
			Size:   (int64(lastLBA) - int64(firstLBA) + 1) * sectorSize,
		})
	}
	return out, nil
}

func decodeGptName(b []byte) string {
	var sb strings.Builder
	for i := 0; i+1 < len(b); i += 2 {
		unit := uint16(b[i]) | uint16(b[i+1])<<8
		if unit == 0 {
			break
		}
		sb.WriteRune(rune(unit))
	}
	return sb.String()
}
