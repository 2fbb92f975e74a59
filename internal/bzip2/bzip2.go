// Package bzip2 decompresses bzip2 compressed data.
//
// This is a from-scratch decoder (the standard library's
// compress/bzip2 is deliberately avoided so block checksums and block
// boundaries are inspectable, which image-format parsing needs), built
// from the wire format rather than any existing Go implementation.
package bzip2

import (
	"fmt"

	"github.com/keramics/keramics-go/internal/checksums"
	"github.com/keramics/keramics-go/internal/mediator"
)

var dataHeaderSignature = [2]byte{0x42, 0x5a} // "BZ"

const blockSize = 100000

const (
	blockHeaderSignature    = 0x314159265359
	endOfStreamSignature    = 0x177245385090
)

type streamHeader struct{}

func (streamHeader) readData(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("bzip2: data too small for stream header")
	}
	if data[0] != dataHeaderSignature[0] || data[1] != dataHeaderSignature[1] {
		return fmt.Errorf("bzip2: unsupported stream signature")
	}
	compressionLevel := data[3]
	if compressionLevel < 0x31 || compressionLevel > 0x39 {
		return fmt.Errorf("bzip2: unsupported compression level %q", compressionLevel)
	}
	return nil
}

type blockHeader struct {
	signature      uint64
	checksum       uint32
	randomizedFlag uint32
	originPointer  uint32
}

func (h *blockHeader) readFromBitstream(b *bitstream) error {
	h.signature = (uint64(b.getValue(24)) << 24) | uint64(b.getValue(24))

	switch h.signature {
	case endOfStreamSignature:
		h.checksum = b.getValue(32)
		h.randomizedFlag = 0
		h.originPointer = 0
	case blockHeaderSignature:
		h.checksum = b.getValue(32)
		h.randomizedFlag = b.getValue(1)
		h.originPointer = b.getValue(24)
	default:
		return fmt.Errorf("bzip2: unsupported block signature 0x%012x", h.signature)
	}

	mediator.Current().Debugf("bzip2BlockHeader{signature: 0x%012x, checksum: 0x%08x}", h.signature, h.checksum)
	return nil
}

// Context decompresses a single bzip2 stream.
type Context struct {
	// UncompressedDataSize is set after Decompress or
	// DecompressBitstream completes successfully.
	UncompressedDataSize int
}

// NewContext returns a ready-to-use decompression context.
func NewContext() *Context {
	return &Context{}
}

// Decompress decompresses a complete bzip2 stream (signature, stream
// header, and one or more blocks terminated by the end-of-stream
// marker) into uncompressedData, which must be large enough to hold
// the result.
func (c *Context) Decompress(compressedData []byte, uncompressedData []byte) error {
	if len(compressedData) < 14 {
		return fmt.Errorf("bzip2: compressed data too small")
	}
	var header streamHeader
	if err := header.readData(compressedData); err != nil {
		return err
	}

	b := newBitstream(compressedData, 4)
	return c.decompressBitstream(b, uncompressedData)
}

func (c *Context) decompressBitstream(b *bitstream, uncompressedData []byte) error {
	blockData := make([]byte, blockSize)
	selectors := make([]byte, 32769) // (1 << 15) + 1
	symbolStack := make([]byte, 256)
	uncompressedOffset := 0
	uncompressedSize := len(uncompressedData)

	var header blockHeader
	for b.dataOffset < b.dataSize {
		if err := header.readFromBitstream(b); err != nil {
			return err
		}
		if header.signature == endOfStreamSignature {
			break
		}
		if int(header.originPointer) >= blockSize {
			return fmt.Errorf("bzip2: origin pointer 0x%06x out of bounds", header.originPointer)
		}

		numberOfSymbols, err := readSymbolStack(b, symbolStack)
		if err != nil {
			return err
		}
		numberOfTrees := int(b.getValue(3))
		numberOfSelectors := int(b.getValue(15))

		if err := readSelectors(b, selectors, numberOfSelectors, numberOfTrees); err != nil {
			return err
		}

		trees := make([]*huffmanTree, numberOfTrees)
		for i := range trees {
			tree := newHuffmanTree(numberOfSymbols, 20)
			if err := readHuffmanTree(b, tree, numberOfSymbols); err != nil {
				return err
			}
			trees[i] = tree
		}

		blockDataSize, err := readBlockData(b, trees, selectors, numberOfSelectors, symbolStack, numberOfSymbols, blockData)
		if err != nil {
			return err
		}

		if err := reverseBurrowsWheelerTransform(blockData, blockDataSize, header.originPointer,
			uncompressedData, &uncompressedOffset, uncompressedSize); err != nil {
			return err
		}
	}

	crc := checksums.NewBzip2CRC32()
	crc.Write(uncompressedData[:uncompressedOffset])
	if calculated := crc.Sum32(); calculated != header.checksum {
		return fmt.Errorf("bzip2: checksum mismatch: stored 0x%08x calculated 0x%08x", header.checksum, calculated)
	}
	c.UncompressedDataSize = uncompressedOffset
	return nil
}

func readSymbolStack(b *bitstream, symbolStack []byte) (int, error) {
	level1 := b.getValue(16)
	level1Mask := uint32(0x8000)
	symbolIndex := 0

	for level1Bit := 0; level1Bit < 16; level1Bit++ {
		if level1&level1Mask != 0 {
			level2 := b.getValue(16)
			level2Mask := uint32(0x8000)
			for level2Bit := 0; level2Bit < 16; level2Bit++ {
				if level2&level2Mask != 0 {
					if symbolIndex > 256 {
						return 0, fmt.Errorf("bzip2: symbol stack index %d out of bounds", symbolIndex)
					}
					symbolStack[symbolIndex] = byte(16*level1Bit + level2Bit)
					symbolIndex++
				}
				level2Mask >>= 1
			}
		}
		level1Mask >>= 1
	}
	return symbolIndex + 2, nil
}

func readSelectors(b *bitstream, selectors []byte, numberOfSelectors, numberOfTrees int) error {
	stack := [7]byte{0, 1, 2, 3, 4, 5, 6}
	for selectorIndex := 0; selectorIndex < numberOfSelectors; selectorIndex++ {
		treeIndex := 0
		for treeIndex < numberOfTrees {
			if b.getValue(1) == 0 {
				break
			}
			treeIndex++
		}
		if treeIndex >= numberOfTrees {
			return fmt.Errorf("bzip2: selector tree index %d out of bounds", treeIndex)
		}
		selectorValue := stack[treeIndex]
		selectors[selectorIndex] = selectorValue
		for i := treeIndex - 1; i >= 0; i-- {
			stack[i+1] = stack[i]
		}
		stack[0] = selectorValue
	}
	return nil
}

func readHuffmanTree(b *bitstream, tree *huffmanTree, numberOfSymbols int) error {
	codeSize := int(b.getValue(5))
	codeSizes := make([]uint8, numberOfSymbols)
	largestCodeSize := codeSize

	for symbolIndex := 0; symbolIndex < numberOfSymbols; symbolIndex++ {
		for codeSize < 20 {
			if b.getValue(1) == 0 {
				break
			}
			if b.getValue(1) == 0 {
				codeSize++
			} else {
				codeSize--
			}
		}
		if codeSize >= 20 || codeSize < 0 {
			return fmt.Errorf("bzip2: code size %d out of bounds", codeSize)
		}
		codeSizes[symbolIndex] = uint8(codeSize)
		if codeSize > largestCodeSize {
			largestCodeSize = codeSize
		}
	}
	if largestCodeSize > 32 {
		return fmt.Errorf("bzip2: largest code size %d out of bounds", largestCodeSize)
	}

	checkValue := uint32(1) << uint(largestCodeSize)
	for _, cs := range codeSizes {
		checkValue -= uint32(1) << uint(largestCodeSize-int(cs))
	}
	if checkValue != 0 {
		return fmt.Errorf("bzip2: invalid Kraft check value %d", checkValue)
	}
	return tree.build(codeSizes)
}

func readBlockData(b *bitstream, trees []*huffmanTree, selectors []byte, numberOfSelectors int,
	symbolStack []byte, numberOfSymbols int, blockData []byte) (int, error) {

	endOfBlockSymbol := uint16(numberOfSymbols - 1)
	blockDataOffset := 0
	numberOfRunLengthSymbols := 0
	var runLengthValue uint64
	symbolIndex := 0
	treeIndex := int(selectors[0])

	for {
		if treeIndex >= len(trees) {
			return 0, fmt.Errorf("bzip2: tree index %d out of bounds", treeIndex)
		}
		symbol, err := trees[treeIndex].decodeSymbol(b)
		if err != nil {
			return 0, err
		}

		if numberOfRunLengthSymbols != 0 && symbol > 1 {
			runLength := ((uint64(1) << uint(numberOfRunLengthSymbols)) | runLengthValue) - 1
			if int(runLength) > blockSize-blockDataOffset {
				return 0, fmt.Errorf("bzip2: run length %d out of bounds", runLength)
			}
			numberOfRunLengthSymbols = 0
			runLengthValue = 0
			for runLength > 0 {
				blockData[blockDataOffset] = symbolStack[0]
				blockDataOffset++
				runLength--
			}
		}

		if symbol == endOfBlockSymbol {
			break
		}

		if symbol == 0 || symbol == 1 {
			runLengthValue |= uint64(symbol) << uint(numberOfRunLengthSymbols)
			numberOfRunLengthSymbols++
		} else if symbol < endOfBlockSymbol {
			stackIndex := int(symbol) - 1
			stackValue := symbolStack[stackIndex]
			copy(symbolStack[1:stackIndex+1], symbolStack[0:stackIndex])
			symbolStack[0] = stackValue

			if blockDataOffset >= blockSize {
				return 0, fmt.Errorf("bzip2: block data offset %d out of bounds", blockDataOffset)
			}
			blockData[blockDataOffset] = stackValue
			blockDataOffset++
		} else {
			return 0, fmt.Errorf("bzip2: symbol %d out of bounds", symbol)
		}

		symbolIndex++
		if symbolIndex%50 == 0 {
			selectorIndex := symbolIndex / 50
			if selectorIndex > numberOfSelectors {
				return 0, fmt.Errorf("bzip2: selector index %d out of bounds", selectorIndex)
			}
			treeIndex = int(selectors[selectorIndex])
		}
	}
	return blockDataOffset, nil
}

func reverseBurrowsWheelerTransform(blockData []byte, blockDataSize int, originPointer uint32,
	uncompressedData []byte, uncompressedOffset *int, uncompressedSize int) error {

	var distributions [256]int
	for i := 0; i < blockDataSize; i++ {
		distributions[blockData[i]]++
	}
	distributionValue := 0
	for value := 0; value < 256; value++ {
		n := distributions[value]
		distributions[value] = distributionValue
		distributionValue += n
	}

	permutations := make([]int, blockDataSize)
	for i := 0; i < blockDataSize; i++ {
		v := blockData[i]
		permutations[distributions[v]] = i
		distributions[v]++
	}

	dataOffset := *uncompressedOffset
	permutationValue := permutations[originPointer]
	var lastByteValue byte
	var numberOfLastByteValues int

	for i := 0; i < blockDataSize; i++ {
		byteValue := blockData[permutationValue]

		if numberOfLastByteValues == 4 {
			if int(byteValue) > uncompressedSize-dataOffset {
				return fmt.Errorf("bzip2: uncompressed buffer too small")
			}
			for byteValue > 0 {
				uncompressedData[dataOffset] = lastByteValue
				dataOffset++
				byteValue--
			}
			lastByteValue = 0
			numberOfLastByteValues = 0
		} else {
			if byteValue != lastByteValue {
				numberOfLastByteValues = 0
			}
			lastByteValue = byteValue
			numberOfLastByteValues++

			if dataOffset >= uncompressedSize {
				return fmt.Errorf("bzip2: uncompressed buffer too small")
			}
			uncompressedData[dataOffset] = byteValue
			dataOffset++
		}
		permutationValue = permutations[permutationValue]
	}
	*uncompressedOffset = dataOffset
	return nil
}
