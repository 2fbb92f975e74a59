package vhdx

import (
	"fmt"
	"unicode/utf16"

	"github.com/keramics/keramics-go/internal/guid"
)

// Well-known metadata item GUIDs (Microsoft VHDX specification).
var (
	fileParametersGUID   = guid.GUID{0xca, 0xa1, 0x67, 0x37, 0xfa, 0x36, 0x95, 0x4a, 0xb3, 0xb9, 0x15, 0x9d, 0x94, 0x15, 0x9a, 0xc9}
	virtualDiskSizeGUID   = guid.GUID{0x24, 0x42, 0xa5, 0x2f, 0x1b, 0xcd, 0x76, 0x48, 0xb2, 0x11, 0x5d, 0xbe, 0xd8, 0x3b, 0xf4, 0xb8}
	logicalSectorSizeGUID = guid.GUID{0x11, 0x2e, 0x48, 0x8a, 0xd5, 0x6f, 0x13, 0x4e, 0x87, 0x63, 0xd4, 0x6d, 0xfc, 0xd8, 0x1f, 0xd7}
	physicalSectorSizeGUID = guid.GUID{0x94, 0xc1, 0x8d, 0xcd, 0xe7, 0x62, 0x82, 0x47, 0x7f, 0x7a, 0x58, 0x33, 0xb6, 0x47, 0x83, 0xb2}
	virtualDiskIDGUID     = guid.GUID{0xf0, 0xf0, 0x1b, 0xbe, 0x75, 0x02, 0x9d, 0x44, 0xb0, 0x87, 0x8e, 0xcc, 0xc8, 0x13, 0x71, 0xa1}
	parentLocatorGUID     = guid.GUID{0xcb, 0x85, 0x6e, 0xa1, 0x3d, 0xd8, 0x4d, 0x43, 0xae, 0x95, 0xbf, 0x23, 0xf8, 0x22, 0x9c, 0xf1}
)

// DiskType classifies the block layout a metadata table describes.
type DiskType int

const (
	DiskTypeFixed DiskType = iota
	DiskTypeDynamic
	DiskTypeDifferential
)

// Metadata is the decoded set of VHDX metadata items this port cares
// about.
type Metadata struct {
	BlockSize          uint32
	DiskType           DiskType
	VirtualDiskSize    uint64
	LogicalSectorSize  uint32
	PhysicalSectorSize uint32
	VirtualDiskID      guid.GUID
	HasParentLocator   bool
	ParentLinkage      guid.GUID
	ParentRelativePath string
}

type metadataTableEntry struct {
	ItemID guid.GUID
	Offset uint32
	Length uint32
}

func parseMetadataTableEntries(tableHeader []byte) ([]metadataTableEntry, error) {
	if len(tableHeader) < 32 {
		return nil, fmt.Errorf("vhdx: metadata table header too short")
	}
	entryCount := leUint16(tableHeader[6:8])
	entries := make([]metadataTableEntry, 0, entryCount)
	off := 32
	for i := uint16(0); i < entryCount; i++ {
		if off+24 > len(tableHeader) {
			return nil, fmt.Errorf("vhdx: metadata table truncated at entry %d", i)
		}
		id, err := guid.Parse(tableHeader[off : off+16])
		if err != nil {
			return nil, err
		}
		offset := leUint32(tableHeader[off+16 : off+20])
		length := leUint32(tableHeader[off+20 : off+24])
		entries = append(entries, metadataTableEntry{ItemID: id, Offset: offset, Length: length})
		off += 24
	}
	return entries, nil
}

// parseMetadata resolves each known item GUID against the metadata
// region's raw bytes (tableHeader followed by item payloads, all
// relative to the start of the metadata region).
func parseMetadata(region []byte) (Metadata, error) {
	entries, err := parseMetadataTableEntries(region)
	if err != nil {
		return Metadata{}, err
	}

	var m Metadata
	var sawFileParameters bool

	for _, e := range entries {
		if int(e.Offset)+int(e.Length) > len(region) {
			continue
		}
		item := region[e.Offset : e.Offset+e.Length]

		switch e.ItemID {
		case fileParametersGUID:
			if len(item) < 8 {
				return Metadata{}, fmt.Errorf("vhdx: file_parameters item too short")
			}
			m.BlockSize = leUint32(item[0:4])
			flags := leUint32(item[4:8])
			switch flags & 0x3 {
			case 0:
				m.DiskType = DiskTypeFixed
			case 1:
				m.DiskType = DiskTypeDynamic
			case 2:
				m.DiskType = DiskTypeDifferential
			}
			sawFileParameters = true
		case virtualDiskSizeGUID:
			if len(item) < 8 {
				return Metadata{}, fmt.Errorf("vhdx: virtual_disk_size item too short")
			}
			m.VirtualDiskSize = leUint64(item[0:8])
		case logicalSectorSizeGUID:
			if len(item) < 4 {
				return Metadata{}, fmt.Errorf("vhdx: logical_sector_size item too short")
			}
			m.LogicalSectorSize = leUint32(item[0:4])
		case physicalSectorSizeGUID:
			if len(item) < 4 {
				return Metadata{}, fmt.Errorf("vhdx: physical_sector_size item too short")
			}
			m.PhysicalSectorSize = leUint32(item[0:4])
		case virtualDiskIDGUID:
			id, err := guid.Parse(item)
			if err != nil {
				return Metadata{}, err
			}
			m.VirtualDiskID = id
		case parentLocatorGUID:
			m.HasParentLocator = true
			linkage, path := parseParentLocator(item)
			m.ParentLinkage = linkage
			m.ParentRelativePath = path
		}
	}

	if !sawFileParameters {
		return Metadata{}, fmt.Errorf("vhdx: missing required file_parameters metadata item")
	}
	if m.LogicalSectorSize != 512 && m.LogicalSectorSize != 4096 {
		return Metadata{}, fmt.Errorf("vhdx: invalid logical_sector_size %d", m.LogicalSectorSize)
	}
	if m.PhysicalSectorSize != 512 && m.PhysicalSectorSize != 4096 {
		return Metadata{}, fmt.Errorf("vhdx: invalid physical_sector_size %d", m.PhysicalSectorSize)
	}
	return m, nil
}

// parseParentLocator extracts the linkage GUID and relative_path
// key-value entries from a parent_locator metadata item: a 20-byte
// header (locator type GUID + key-value count) followed by UTF-16LE
// key/value pairs.
func parseParentLocator(item []byte) (guid.GUID, string) {
	if len(item) < 20 {
		return guid.GUID{}, ""
	}
	keyValueCount := leUint16(item[18:20])
	off := 20
	var linkage guid.GUID
	var relativePath string

	for i := uint16(0); i < keyValueCount && off+12 <= len(item); i++ {
		keyOffset := leUint16(item[off : off+2])
		valueOffset := leUint16(item[off+2 : off+4])
		keyLength := leUint16(item[off+4 : off+6])
		valueLength := leUint16(item[off+6 : off+8])
		off += 12

		key := decodeUTF16LE(sliceOrEmpty(item, int(keyOffset), int(keyLength)))
		value := decodeUTF16LE(sliceOrEmpty(item, int(valueOffset), int(valueLength)))

		switch key {
		case "parent_linkage":
			if g, err := guid.ParseString(value); err == nil {
				linkage = g
			}
		case "relative_path":
			relativePath = value
		}
	}
	return linkage, relativePath
}

func sliceOrEmpty(b []byte, off, length int) []byte {
	if off < 0 || length < 0 || off+length > len(b) {
		return nil
	}
	return b[off : off+length]
}

func decodeUTF16LE(b []byte) string {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		units = append(units, uint16(b[i])|uint16(b[i+1])<<8)
	}
	return string(utf16.Decode(units))
}

func leUint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
