package scanner

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/keramics/keramics-go/vfs"
)

type memStream []byte

func (m memStream) Size() int64 { return int64(len(m)) }
func (m memStream) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m)) {
		return 0, nil
	}
	n := copy(p, m[off:])
	return n, nil
}

type magicScanner struct {
	name  string
	magic []byte
	typ   vfs.LocationType
}

func (s magicScanner) Name() string           { return s.name }
func (s magicScanner) Type() vfs.LocationType { return s.typ }
func (s magicScanner) Matches(stream vfs.DataStream) (bool, error) {
	buf := make([]byte, len(s.magic))
	if _, err := stream.ReadAt(buf, 0); err != nil {
		return false, nil
	}
	return bytes.Equal(buf, s.magic), nil
}

func TestMatchPhaseSingleMatch(t *testing.T) {
	phase := []FormatScanner{
		magicScanner{name: "qcow", magic: []byte("QFI\xfb"), typ: vfs.Qcow},
		magicScanner{name: "vhdx", magic: []byte("vhdxfile"), typ: vfs.Vhdx},
	}
	stream := memStream(append([]byte("vhdxfile"), make([]byte, 64)...))
	typ, s, ok, err := matchPhase(phase, stream)
	if err != nil || !ok {
		t.Fatalf("matchPhase: ok=%v err=%v", ok, err)
	}
	if typ != vfs.Vhdx || s.Name() != "vhdx" {
		t.Fatalf("matchPhase matched %v/%s, want Vhdx/vhdx", typ, s.Name())
	}
}

func TestMatchPhaseNoMatch(t *testing.T) {
	phase := []FormatScanner{
		magicScanner{name: "qcow", magic: []byte("QFI\xfb"), typ: vfs.Qcow},
	}
	stream := memStream(make([]byte, 16))
	_, _, ok, err := matchPhase(phase, stream)
	if err != nil || ok {
		t.Fatalf("matchPhase: ok=%v err=%v, want no match", ok, err)
	}
}

func TestMatchPhaseAmbiguousAborts(t *testing.T) {
	phase := []FormatScanner{
		magicScanner{name: "a", magic: []byte("AA"), typ: vfs.Apm},
		magicScanner{name: "b", magic: []byte("AA"), typ: vfs.Gpt},
	}
	stream := memStream([]byte("AA"))
	_, _, _, err := matchPhase(phase, stream)
	if err == nil {
		t.Fatalf("matchPhase with two matches should error")
	}
}

// gptSignatureScanner matches the "EFI PART" GPT header at sector 1.
type gptSignatureScanner struct{}

func (gptSignatureScanner) Name() string           { return "gpt" }
func (gptSignatureScanner) Type() vfs.LocationType { return vfs.Gpt }
func (gptSignatureScanner) Matches(stream vfs.DataStream) (bool, error) {
	buf := make([]byte, 8)
	if _, err := stream.ReadAt(buf, 512); err != nil {
		return false, nil
	}
	return bytes.Equal(buf, []byte("EFI PART")), nil
}

func putLE64(b []byte, off int, v uint64) {
	for i := 0; i < 8; i++ {
		b[off+i] = byte(v >> (8 * i))
	}
}

func putLE32(b []byte, off int, v uint32) {
	for i := 0; i < 4; i++ {
		b[off+i] = byte(v >> (8 * i))
	}
}

// buildGptImage hand-constructs a minimal raw disk image: a zeroed
// sector 0 (no protective MBR is written), a GPT header at LBA 1 with
// one partition entry at LBA 2, and a single "ext"-tagged partition
// payload.
func buildGptImage(t *testing.T) []byte {
	t.Helper()
	const sectorSize = 512

	img := make([]byte, sectorSize*44)
	header := img[sectorSize : sectorSize*2]
	copy(header[0:8], "EFI PART")
	putLE64(header, 72, 2)   // partition entry array starting LBA
	putLE32(header, 80, 1)   // number of entries
	putLE32(header, 84, 128) // entry size

	entry := img[sectorSize*2:][:128]
	for i := 0; i < 16; i++ {
		entry[i] = 0xAB // non-zero type GUID
	}
	putLE64(entry, 32, 10) // first LBA
	putLE64(entry, 40, 19) // last LBA (10 sectors)

	for i := 10 * sectorSize; i < 20*sectorSize; i++ {
		img[i] = 0xEE
	}
	return img
}

// stubExtRoot is a minimal FsDriverRoot standing in for the real ext
// parser, which is out of this port's scope: an empty directory.
type stubExtRoot struct{}

func (stubExtRoot) GetFileType() vfs.FileType                        { return vfs.TypeDirectory }
func (stubExtRoot) GetNumberOfSubEntries() (int, error)               { return 0, nil }
func (stubExtRoot) GetSubEntryByIndex(i int) (vfs.FsDriverEntry, error) {
	return nil, os.ErrNotExist
}

type stubExtDriver struct{}

func (stubExtDriver) Open(stream vfs.DataStream) (vfs.FsDriverRoot, error) {
	return stubExtRoot{}, nil
}

func TestScanOsToGptToExt(t *testing.T) {
	img := buildGptImage(t)
	path := filepath.Join(t.TempDir(), "disk.raw")
	if err := os.WriteFile(path, img, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sc := New()
	sc.Phase1VolumeSystem = []FormatScanner{gptSignatureScanner{}}
	sc.FileSystem = []FormatScanner{
		magicScanner{name: "ext", magic: []byte{0xEE, 0xEE}, typ: vfs.Ext},
	}

	open := func(parentFS *vfs.FileSystem, loc *vfs.Location) (*vfs.FileSystem, error) {
		if loc.Type() == vfs.Ext {
			return vfs.OpenWithDriver(parentFS, loc, stubExtDriver{})
		}
		return vfs.Open(parentFS, loc)
	}

	node, err := sc.Scan(nil, vfs.Root(vfs.Os, path), open)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(node.Children) != 1 || node.Children[0].Location.Type() != vfs.Gpt {
		t.Fatalf("expected one Gpt child, got %+v", node.Children)
	}
	gptNode := node.Children[0]
	if len(gptNode.Children) != 1 || gptNode.Children[0].Location.Type() != vfs.Ext {
		t.Fatalf("expected one Ext grandchild, got %+v", gptNode.Children)
	}
}

func TestScanNoMatchLeavesLeafNode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.raw")
	if err := os.WriteFile(path, make([]byte, 512), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sc := New()
	sc.Phase1VolumeSystem = []FormatScanner{gptSignatureScanner{}}

	open := func(parentFS *vfs.FileSystem, loc *vfs.Location) (*vfs.FileSystem, error) {
		return vfs.Open(parentFS, loc)
	}
	node, err := sc.Scan(nil, vfs.Root(vfs.Os, path), open)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(node.Children) != 0 {
		t.Fatalf("expected no children, got %+v", node.Children)
	}
}
