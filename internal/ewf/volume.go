package ewf

import "fmt"

// volume describes the EWF image's media geometry, parsed from the
// "disk"/"volume" section that must appear exactly once, in segment 1.
type volume struct {
	MediaType        byte
	NumberOfChunks    uint32
	SectorsPerChunk   uint32
	BytesPerSector    uint32
	NumberOfSectors   uint64
	ErrorGranularity  uint32
	SetIdentifier     [16]byte
}

// parseVolume accepts either the 170-byte S01-family short volume
// section or the 1128-byte E01-family long volume section.
func parseVolume(data []byte) (volume, error) {
	switch len(data) {
	case 170:
		return parseShortVolume(data)
	case 1128:
		return parseLongVolume(data)
	default:
		return volume{}, fmt.Errorf("ewf: unsupported volume section size %d", len(data))
	}
}

func parseShortVolume(data []byte) (volume, error) {
	v := volume{
		MediaType:       data[3],
		NumberOfChunks:  leUint32(data[4:8]),
		SectorsPerChunk: leUint32(data[8:12]),
		BytesPerSector:  leUint32(data[12:16]),
		NumberOfSectors: uint64(leUint32(data[16:20])),
	}
	if v.BytesPerSector == 0 {
		v.BytesPerSector = 512
	}
	if v.SectorsPerChunk == 0 {
		v.SectorsPerChunk = 64
	}
	return v, nil
}

func parseLongVolume(data []byte) (volume, error) {
	v := volume{
		MediaType:        data[3],
		NumberOfChunks:   leUint32(data[4:8]),
		SectorsPerChunk:  leUint32(data[8:12]),
		BytesPerSector:   leUint32(data[12:16]),
		NumberOfSectors:  leUint64(data[16:24]),
		ErrorGranularity: leUint32(data[200:204]),
	}
	copy(v.SetIdentifier[:], data[204:220])
	if v.BytesPerSector == 0 {
		v.BytesPerSector = 512
	}
	if v.SectorsPerChunk == 0 {
		v.SectorsPerChunk = 64
	}
	return v, nil
}

// blockSize returns the number of bytes decompressed from a single chunk.
func (v volume) blockSize() int64 {
	return int64(v.SectorsPerChunk) * int64(v.BytesPerSector)
}

// mediaSize returns the logical size of the full image in bytes.
func (v volume) mediaSize() int64 {
	return int64(v.NumberOfSectors) * int64(v.BytesPerSector)
}
