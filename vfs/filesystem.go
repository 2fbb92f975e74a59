package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/keramics/keramics-go/internal/ewf"
	"github.com/keramics/keramics-go/internal/vhdx"
)

// ErrUnsupportedFormat is returned by Open for a recognised
// LocationType whose storage-image parser is out of this port's
// scope (QCOW, UDIF, plain VHD, SparseImage) or whose file-system
// parser has not been wired with a driver (Ext, Fat, Ntfs without a
// registered FsDriver).
var ErrUnsupportedFormat = errors.New("vfs: unsupported format")

// FsDriver is the pluggable seam for a concrete file-system parser
// (ext, fat, ntfs) to back an Ext/Fat/Ntfs FileSystem variant. The
// individual parsers are out of scope for this port; FsDriver lets a
// collaborator supply one, the same way scanner.FormatScanner lets a
// collaborator supply a signature matcher.
type FsDriver interface {
	Open(stream DataStream) (FsDriverRoot, error)
}

// FsDriverRoot is the root entry a FsDriver hands back; its only
// required capability is iterating its own file tree through the
// FileEntry uniform operations, implemented per-driver.
type FsDriverRoot interface {
	GetFileType() FileType
	GetNumberOfSubEntries() (int, error)
	GetSubEntryByIndex(i int) (FsDriverEntry, error)
}

// FsDriverEntry is one node produced by an FsDriver.
type FsDriverEntry interface {
	FsDriverRoot
	Name() string
	GetDataStream() (DataStream, error)
}

// FileSystem is the tagged-variant union over every supported storage
// kind: partition tables (Apm/Gpt/Mbr), storage-media images
// (Ewf/Qcow/Udif/SparseImage/Vhd/Vhdx), parsed file systems
// (Ext/Fat/Ntfs), and the two host-facing kinds (Os/Fake).
type FileSystem struct {
	Kind LocationType

	stream DataStream // backing stream for every kind except Os/Fake

	osRoot string

	partitions []PartitionEntry

	layers []DataStream // oldest first; len-1 is the active layer
	vhdxFile *vhdx.File

	driver     FsDriver
	driverRoot FsDriverRoot
}

var (
	fakeRegistryMu sync.Mutex
	fakeRegistry   = map[string]fs.FS{}
)

// hostPath joins an Os FileSystem's configured root with a path
// relative to it ("." denotes the root itself).
func (f *FileSystem) hostPath(relPath string) string {
	if relPath == "." || relPath == "" {
		return f.osRoot
	}
	return f.osRoot + "/" + relPath
}

// RegisterFake makes an in-memory fs.FS (e.g. a testing/fstest.MapFS)
// resolvable as a Fake-kind Location with the
// given path as its key. Mirrors dfvfs's fake file system, used to
// exercise the scanner and VFS fan-out without real images on disk.
func RegisterFake(path string, fsys fs.FS) {
	fakeRegistryMu.Lock()
	defer fakeRegistryMu.Unlock()
	fakeRegistry[path] = fsys
}

// Open implements VfsFileSystem::open: parentFS supplies the backing
// stream (via GetDataStreamByPathAndName) for every kind except
// Os/Fake, which must receive a nil parentFS.
func Open(parentFS *FileSystem, loc *Location) (*FileSystem, error) {
	switch loc.Type() {
	case Os:
		if parentFS != nil {
			return nil, errorf(InvalidInput, "vfs: Os variant rejects a non-nil parent")
		}
		return &FileSystem{Kind: Os, osRoot: loc.Path()}, nil

	case Fake:
		if parentFS != nil {
			return nil, errorf(InvalidInput, "vfs: Fake variant rejects a non-nil parent")
		}
		fakeRegistryMu.Lock()
		fsys, ok := fakeRegistry[loc.Path()]
		fakeRegistryMu.Unlock()
		if !ok {
			return nil, errorf(NotFound, "vfs: no fake file system registered at %q", loc.Path())
		}
		return &FileSystem{Kind: Fake, osRoot: loc.Path(), driver: fakeDriver{fsys}}, nil

	case Apm, Gpt, Mbr:
		stream, err := requireParentStream(parentFS, loc)
		if err != nil {
			return nil, err
		}
		var entries []PartitionEntry
		switch loc.Type() {
		case Apm:
			entries, err = parseApm(stream)
		case Gpt:
			entries, err = parseGpt(stream)
		case Mbr:
			entries, err = parseMbr(stream)
		}
		if err != nil {
			return nil, err
		}
		return &FileSystem{Kind: loc.Type(), stream: stream, partitions: entries}, nil

	case Ewf:
		return nil, errorf(InvalidInput, "vfs: Ewf locations require segment enumeration; use OpenEwf")

	case Vhdx:
		stream, err := requireParentStream(parentFS, loc)
		if err != nil {
			return nil, err
		}
		f, err := vhdx.Open(&readerAtAdapter{stream})
		if err != nil {
			return nil, newError(InvalidData, "vfs: unable to open vhdx image", err)
		}
		return &FileSystem{Kind: Vhdx, stream: stream, vhdxFile: f, layers: []DataStream{vhdxStream{f}}}, nil

	case Qcow, Udif, SparseImage, Vhd:
		return nil, newError(InvalidInput, fmt.Sprintf("vfs: %s", loc.Type()), ErrUnsupportedFormat)

	case Ext, Fat, Ntfs:
		return nil, newError(InvalidInput, fmt.Sprintf("vfs: %s", loc.Type()), ErrUnsupportedFormat)

	default:
		return nil, errorf(InvalidInput, "vfs: unknown location type %v", loc.Type())
	}
}

// OpenEwf is Open's Ewf counterpart: EWF images are inherently
// multi-segment, so the generic single-stream
// GetDataStreamByPathAndName contract does not apply. The caller
// supplies an ewf.SegmentOpener (typically backed by the parent
// FileSystem's own GetDataStreamByPathAndName across
// name.E01/.E02/...) and the segment count.
func OpenEwf(opener ewf.SegmentOpener, numberOfSegments int) (*FileSystem, error) {
	img, err := ewf.Open(opener, numberOfSegments)
	if err != nil {
		return nil, newError(InvalidData, "vfs: unable to open EWF image", err)
	}
	return &FileSystem{Kind: Ewf, layers: []DataStream{img}}, nil
}

// OpenWithDriver is Open's Ext/Fat/Ntfs counterpart for callers that
// have a concrete FsDriver to supply (the real parsers are out of
// scope here; a caller in a larger system wires one in).
func OpenWithDriver(parentFS *FileSystem, loc *Location, driver FsDriver) (*FileSystem, error) {
	if loc.Type() != Ext && loc.Type() != Fat && loc.Type() != Ntfs {
		return nil, errorf(InvalidInput, "vfs: OpenWithDriver only applies to Ext/Fat/Ntfs locations")
	}
	stream, err := requireParentStream(parentFS, loc)
	if err != nil {
		return nil, err
	}
	root, err := driver.Open(stream)
	if err != nil {
		return nil, newError(InvalidData, fmt.Sprintf("vfs: unable to open %s file system", loc.Type()), err)
	}
	return &FileSystem{Kind: loc.Type(), stream: stream, driver: driver, driverRoot: root}, nil
}

func requireParentStream(parentFS *FileSystem, loc *Location) (DataStream, error) {
	if parentFS == nil {
		return nil, errorf(InvalidInput, "vfs: %s variant requires a parent file system", loc.Type())
	}
	return parentFS.GetDataStreamByPathAndName(loc.Path(), nil)
}

// GetDataStreamByPathAndName resolves a path (interpreted per this
// file system's kind) and an optional named data fork to a
// DataStream. name is nil for the default fork.
func (f *FileSystem) GetDataStreamByPathAndName(path string, name *string) (DataStream, error) {
	switch f.Kind {
	case Os:
		full := f.hostPath(path)
		file, err := os.Open(full)
		if err != nil {
			return nil, newError(Io, fmt.Sprintf("vfs: unable to open host file %q", full), err)
		}
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, newError(Io, fmt.Sprintf("vfs: unable to stat host file %q", full), err)
		}
		return &osFileStream{f: file, size: info.Size()}, nil

	case Fake:
		return f.driver.(fakeDriver).readFile(path)

	case Apm, Gpt, Mbr:
		for _, p := range f.partitions {
			if p.Name == path {
				return NewBoundedStream(f.stream, p.Offset, p.Size), nil
			}
		}
		return nil, errorf(NotFound, "vfs: partition %q not found", path)

	case Ewf, Qcow, Udif, SparseImage, Vhd, Vhdx:
		idx := len(f.layers) - 1
		if idx < 0 {
			return nil, errorf(NotFound, "vfs: no layers available")
		}
		return f.layers[idx], nil

	default:
		return nil, newError(InvalidInput, fmt.Sprintf("vfs: %s", f.Kind), ErrUnsupportedFormat)
	}
}

// NumberOfPartitions reports the partition count for a partition-table
// kind (Apm/Gpt/Mbr).
func (f *FileSystem) NumberOfPartitions() int {
	return len(f.partitions)
}

// PartitionByIndex returns the i-th partition entry for a
// partition-table kind.
func (f *FileSystem) PartitionByIndex(i int) (PartitionEntry, error) {
	if i < 0 || i >= len(f.partitions) {
		return PartitionEntry{}, errorf(NotFound, "vfs: partition index %d out of range", i)
	}
	return f.partitions[i], nil
}

// NumberOfLayers reports the layer count for a storage-image kind.
// By default only the newest (last) layer is the active one; older
// layers are addressable but not auto-recursed into (spec.md §4.6).
func (f *FileSystem) NumberOfLayers() int {
	return len(f.layers)
}

// LayerByIndex returns the i-th layer's data stream.
func (f *FileSystem) LayerByIndex(i int) (DataStream, error) {
	if i < 0 || i >= len(f.layers) {
		return nil, errorf(NotFound, "vfs: layer index %d out of range", i)
	}
	return f.layers[i], nil
}

// SetParentLayer attaches a differential VHDX's parent image, enforcing
// the linkage-GUID match (spec.md §4.3's set_parent contract).
func (f *FileSystem) SetParentLayer(parent *FileSystem) error {
	if f.Kind != Vhdx || parent.Kind != Vhdx {
		return errorf(InvalidInput, "vfs: SetParentLayer only applies to Vhdx file systems")
	}
	if err := f.vhdxFile.SetParent(parent.vhdxFile); err != nil {
		return newError(InvalidData, "vfs: unable to set vhdx parent", err)
	}
	return nil
}

type readerAtAdapter struct {
	stream DataStream
}

func (r *readerAtAdapter) ReadAt(p []byte, off int64) (int, error) {
	return r.stream.ReadAt(p, off)
}

type vhdxStream struct {
	f *vhdx.File
}

func (v vhdxStream) Size() int64                        { return v.f.Size() }
func (v vhdxStream) ReadAt(p []byte, off int64) (int, error) { return v.f.ReadAt(p, off) }

type osFileStream struct {
	f    *os.File
	size int64
}

func (o *osFileStream) Size() int64 { return o.size }
func (o *osFileStream) ReadAt(p []byte, off int64) (int, error) {
	return o.f.ReadAt(p, off)
}

type fakeDriver struct {
	fsys fs.FS
}

func (d fakeDriver) Open(stream DataStream) (FsDriverRoot, error) {
	return nil, errorf(InvalidInput, "vfs: fakeDriver is resolved by path, not Open")
}

func (d fakeDriver) readFile(path string) (DataStream, error) {
	data, err := fs.ReadFile(d.fsys, path)
	if err != nil {
		return nil, newError(NotFound, fmt.Sprintf("vfs: fake file %q", path), err)
	}
	return memoryStream(data), nil
}

type memoryStream []byte

func (m memoryStream) Size() int64 { return int64(len(m)) }
func (m memoryStream) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m)) {
		return 0, nil
	}
	n := copy(p, m[off:])
	return n, nil
}
