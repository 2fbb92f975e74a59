// Package vhdx implements a read-only, randomly addressable view of a
// VHDX virtual disk image, including differential-disk parent-chain
// resolution, ported from keramics-formats/src/vhdx/file.rs.
package vhdx

import (
	"fmt"

	"github.com/keramics/keramics-go/internal/guid"
)

const (
	headerOffset1     = 64 * 1024
	headerOffset2     = 128 * 1024
	regionTableOffset1 = 192 * 1024
	regionTableOffset2 = 256 * 1024

	headerSize      = 4096
	regionTableSize = 64 * 1024
)

var fileIdentifierSignature = [8]byte{'v', 'h', 'd', 'x', 'f', 'i', 'l', 'e'}

type header struct {
	SequenceNumber uint64
	FileWriteGUID  guid.GUID
	DataWriteGUID  guid.GUID
	LogGUID        guid.GUID
}

func parseHeader(data []byte) (header, error) {
	if len(data) < 48 {
		return header{}, fmt.Errorf("vhdx: header too short: %d bytes", len(data))
	}
	// signature(4) checksum(4) sequence_number(8) file_write_guid(16) data_write_guid(16) ...
	seq := leUint64(data[8:16])
	fileWriteGUID, err := guid.Parse(data[16:32])
	if err != nil {
		return header{}, err
	}
	dataWriteGUID, err := guid.Parse(data[32:48])
	if err != nil {
		return header{}, err
	}
	return header{SequenceNumber: seq, FileWriteGUID: fileWriteGUID, DataWriteGUID: dataWriteGUID}, nil
}

// activeHeader chooses the header with the higher sequence number
// between the two duplicate headers at 64KiB and 128KiB.
func activeHeader(h1, h2 header, h1Valid, h2Valid bool) (header, error) {
	switch {
	case h1Valid && h2Valid:
		if h1.SequenceNumber >= h2.SequenceNumber {
			return h1, nil
		}
		return h2, nil
	case h1Valid:
		return h1, nil
	case h2Valid:
		return h2, nil
	default:
		return header{}, fmt.Errorf("vhdx: no valid header found")
	}
}

// regionEntry is one row of a VHDX region table: a GUID identifying
// the region's purpose (metadata or block allocation table) and its
// file offset/length.
type regionEntry struct {
	Identifier guid.GUID
	FileOffset uint64
	Length     uint32
	Required   bool
}

var (
	metadataRegionGUID = guid.GUID{0x06, 0xa8, 0x07, 0x8e, 0x0b, 0x9a, 0x4b, 0xfb, 0x81, 0x79, 0x2a, 0xaa, 0xa9, 0x51, 0xe6, 0x8e}
	batRegionGUID       = guid.GUID{0x66, 0x77, 0xc5, 0x2e, 0x53, 0x37, 0x46, 0x46, 0xba, 0x4d, 0xe8, 0x8a, 0x62, 0x6c, 0xc0, 0x06}
)

func parseRegionTable(data []byte) ([]regionEntry, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("vhdx: region table too short")
	}
	// signature(4) checksum(4) entry_count(4) reserved(4)
	entryCount := leUint32(data[8:12])
	entries := make([]regionEntry, 0, entryCount)
	off := 16
	for i := uint32(0); i < entryCount; i++ {
		if off+32 > len(data) {
			return nil, fmt.Errorf("vhdx: region table truncated at entry %d", i)
		}
		id, err := guid.Parse(data[off : off+16])
		if err != nil {
			return nil, err
		}
		fileOffset := leUint64(data[off+16 : off+24])
		length := leUint32(data[off+24 : off+28])
		flags := leUint32(data[off+28 : off+32])
		entries = append(entries, regionEntry{
			Identifier: id,
			FileOffset: fileOffset,
			Length:     length,
			Required:   flags&0x1 != 0,
		})
		off += 32
	}
	return entries, nil
}

func findRegion(entries []regionEntry, id guid.GUID) (regionEntry, bool) {
	for _, e := range entries {
		if guid.Equal(e.Identifier, id) {
			return e, true
		}
	}
	return regionEntry{}, false
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
