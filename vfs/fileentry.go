package vfs

import (
	"fmt"
	"io/fs"
	"os"
	"time"
)

// FileType is the small closed set of file kinds a FileEntry can
// report, independent of the underlying variant's native mode bits.
type FileType int

const (
	TypeFile FileType = iota
	TypeDirectory
	TypeSymlink
	TypeOther
)

// FileEntry is the tagged-variant union over every node kind
// reachable through the VFS: the synthetic Root/Layer/Partition nodes
// of image and partition-table file systems, Ext/Fat/Ntfs nodes
// wrapping an FsDriverEntry, and Os/Fake nodes wrapping a host or
// in-memory entry.
type FileEntry struct {
	fs   *FileSystem
	Kind LocationType

	isRoot bool
	index  int // Layer or Partition index

	osPath string
	osInfo os.FileInfo

	fakePath string
	fakeInfo fs.FileInfo

	driverEntry FsDriverEntry
}

// RootEntry returns the synthetic or real root FileEntry for a
// FileSystem, per variant: partition tables and images return a
// synthetic Root directory; Os returns the lstat of the configured
// root path.
func (f *FileSystem) RootEntry() (*FileEntry, error) {
	switch f.Kind {
	case Apm, Gpt, Mbr, Ewf, Qcow, Udif, SparseImage, Vhd, Vhdx:
		return &FileEntry{fs: f, Kind: f.Kind, isRoot: true}, nil

	case Os:
		info, err := os.Lstat(f.hostPath("."))
		if err != nil {
			return nil, newError(Io, fmt.Sprintf("vfs: unable to stat host root %q", f.hostPath(".")), err)
		}
		return &FileEntry{fs: f, Kind: Os, osPath: ".", osInfo: info}, nil

	case Fake:
		info, err := fs.Stat(f.driver.(fakeDriver).fsys, ".")
		if err != nil {
			return nil, newError(Io, "vfs: unable to stat fake root", err)
		}
		return &FileEntry{fs: f, Kind: Fake, isRoot: true, fakePath: ".", fakeInfo: info}, nil

	case Ext, Fat, Ntfs:
		if f.driverRoot == nil {
			return nil, errorf(InvalidInput, "vfs: %s file system has no driver root", f.Kind)
		}
		return &FileEntry{fs: f, Kind: f.Kind, isRoot: true}, nil

	default:
		return nil, errorf(InvalidInput, "vfs: unknown file system kind %v", f.Kind)
	}
}

// GetFileType implements the uniform get_file_type operation.
func (e *FileEntry) GetFileType() FileType {
	switch e.Kind {
	case Apm, Gpt, Mbr, Ewf, Qcow, Udif, SparseImage, Vhd, Vhdx:
		if e.isRoot {
			return TypeDirectory
		}
		return TypeFile

	case Os:
		switch {
		case e.osInfo.IsDir():
			return TypeDirectory
		case e.osInfo.Mode()&fs.ModeSymlink != 0:
			return TypeSymlink
		case e.osInfo.Mode().IsRegular():
			return TypeFile
		default:
			return TypeOther
		}

	case Fake:
		if e.fakeInfo != nil && e.fakeInfo.IsDir() {
			return TypeDirectory
		}
		return TypeFile

	case Ext, Fat, Ntfs:
		if e.driverEntry != nil {
			return e.driverEntry.GetFileType()
		}
		return e.fs.driverRoot.GetFileType()

	default:
		return TypeOther
	}
}

// ModTime returns the entry's modification time, or the zero Time for
// variants that carry none (partition-table and image nodes have no
// native timestamp).
func (e *FileEntry) ModTime() time.Time {
	if e.Kind == Os {
		return e.osInfo.ModTime()
	}
	return time.Time{}
}

// GetNumberOfDataForks implements the uniform operation of the same
// name: Root nodes expose zero forks, Partition/Layer nodes expose
// one, Os regular files expose one.
func (e *FileEntry) GetNumberOfDataForks() int {
	switch e.Kind {
	case Apm, Gpt, Mbr, Ewf, Qcow, Udif, SparseImage, Vhd, Vhdx:
		if e.isRoot {
			return 0
		}
		return 1
	case Os:
		if e.osInfo.Mode().IsRegular() {
			return 1
		}
		return 0
	case Fake:
		if e.isRoot || (e.fakeInfo != nil && e.fakeInfo.IsDir()) {
			return 0
		}
		return 1
	case Ext, Fat, Ntfs:
		if e.GetFileType() != TypeFile {
			return 0
		}
		return 1
	default:
		return 0
	}
}

// GetDataStream returns the entry's default data fork as a
// DataStream.
func (e *FileEntry) GetDataStream() (DataStream, error) {
	switch e.Kind {
	case Apm, Gpt, Mbr:
		if e.isRoot {
			return nil, errorf(InvalidInput, "vfs: root directory has no data stream")
		}
		p, err := e.fs.PartitionByIndex(e.index)
		if err != nil {
			return nil, err
		}
		return NewBoundedStream(e.fs.stream, p.Offset, p.Size), nil

	case Ewf, Qcow, Udif, SparseImage, Vhd, Vhdx:
		if e.isRoot {
			return nil, errorf(InvalidInput, "vfs: root directory has no data stream")
		}
		return e.fs.LayerByIndex(e.index)

	case Os:
		return e.fs.GetDataStreamByPathAndName(e.osPath, nil)

	case Fake:
		if e.isRoot {
			return nil, errorf(InvalidInput, "vfs: root directory has no data stream")
		}
		return e.fs.GetDataStreamByPathAndName(e.fakePath, nil)

	case Ext, Fat, Ntfs:
		if e.driverEntry == nil {
			return nil, errorf(InvalidInput, "vfs: root directory has no data stream")
		}
		return e.driverEntry.GetDataStream()

	default:
		return nil, newError(InvalidInput, fmt.Sprintf("vfs: %s", e.Kind), ErrUnsupportedFormat)
	}
}

// GetDataStreamByName returns the default data stream for a nil or
// empty name. Every variant except NTFS rejects any other name; NTFS
// accepts it but still returns the default stream, because
// FsDriverEntry exposes no named streams.
func (e *FileEntry) GetDataStreamByName(name *string) (DataStream, error) {
	if e.Kind != Ntfs && name != nil && *name != "" {
		return nil, errorf(InvalidInput, "vfs: %s does not support named data forks", e.Kind)
	}
	return e.GetDataStream()
}

// GetNumberOfSubFileEntries implements the uniform operation: for
// partition/image roots, the partition/layer count; for Os/Fake
// directories, the directory entry count; for Ext/Fat/Ntfs, delegates
// to the FsDriver.
func (e *FileEntry) GetNumberOfSubFileEntries() (int, error) {
	switch e.Kind {
	case Apm, Gpt, Mbr:
		if !e.isRoot {
			return 0, nil
		}
		return e.fs.NumberOfPartitions(), nil

	case Ewf, Qcow, Udif, SparseImage, Vhd, Vhdx:
		if !e.isRoot {
			return 0, nil
		}
		return e.fs.NumberOfLayers(), nil

	case Os:
		if !e.osInfo.IsDir() {
			return 0, nil
		}
		entries, err := os.ReadDir(e.fs.hostPath(e.osPath))
		if err != nil {
			return 0, newError(Io, fmt.Sprintf("vfs: unable to read host directory %q", e.osPath), err)
		}
		return len(entries), nil

	case Fake:
		if e.fakeInfo == nil || !e.fakeInfo.IsDir() {
			return 0, nil
		}
		entries, err := fs.ReadDir(e.fs.driver.(fakeDriver).fsys, e.fakePath)
		if err != nil {
			return 0, newError(Io, fmt.Sprintf("vfs: unable to read fake directory %q", e.fakePath), err)
		}
		return len(entries), nil

	case Ext, Fat, Ntfs:
		if e.driverEntry != nil {
			return e.driverEntry.GetNumberOfSubEntries()
		}
		return e.fs.driverRoot.GetNumberOfSubEntries()

	default:
		return 0, nil
	}
}

// GetSubFileEntryByIndex implements the uniform operation.
func (e *FileEntry) GetSubFileEntryByIndex(i int) (*FileEntry, error) {
	switch e.Kind {
	case Apm, Gpt, Mbr:
		if !e.isRoot {
			return nil, errorf(InvalidInput, "vfs: not a directory")
		}
		if _, err := e.fs.PartitionByIndex(i); err != nil {
			return nil, err
		}
		return &FileEntry{fs: e.fs, Kind: e.Kind, index: i}, nil

	case Ewf, Qcow, Udif, SparseImage, Vhd, Vhdx:
		if !e.isRoot {
			return nil, errorf(InvalidInput, "vfs: not a directory")
		}
		if _, err := e.fs.LayerByIndex(i); err != nil {
			return nil, err
		}
		return &FileEntry{fs: e.fs, Kind: e.Kind, index: i}, nil

	case Os:
		entries, err := os.ReadDir(e.fs.hostPath(e.osPath))
		if err != nil {
			return nil, newError(Io, fmt.Sprintf("vfs: unable to read host directory %q", e.osPath), err)
		}
		if i < 0 || i >= len(entries) {
			return nil, errorf(NotFound, "vfs: sub-entry index %d out of range", i)
		}
		childPath := entries[i].Name()
		if e.osPath != "." {
			childPath = e.osPath + "/" + childPath
		}
		info, err := entries[i].Info()
		if err != nil {
			return nil, newError(Io, fmt.Sprintf("vfs: unable to stat %q", childPath), err)
		}
		return &FileEntry{fs: e.fs, Kind: Os, osPath: childPath, osInfo: info}, nil

	case Fake:
		entries, err := fs.ReadDir(e.fs.driver.(fakeDriver).fsys, e.fakePath)
		if err != nil {
			return nil, newError(Io, fmt.Sprintf("vfs: unable to read fake directory %q", e.fakePath), err)
		}
		if i < 0 || i >= len(entries) {
			return nil, errorf(NotFound, "vfs: sub-entry index %d out of range", i)
		}
		childPath := entries[i].Name()
		if e.fakePath != "." {
			childPath = e.fakePath + "/" + childPath
		}
		info, err := entries[i].Info()
		if err != nil {
			return nil, newError(Io, fmt.Sprintf("vfs: unable to stat fake entry %q", childPath), err)
		}
		return &FileEntry{fs: e.fs, Kind: Fake, fakePath: childPath, fakeInfo: info}, nil

	case Ext, Fat, Ntfs:
		var root FsDriverRoot = e.fs.driverRoot
		if e.driverEntry != nil {
			root = e.driverEntry
		}
		child, err := root.GetSubEntryByIndex(i)
		if err != nil {
			return nil, err
		}
		return &FileEntry{fs: e.fs, Kind: e.Kind, driverEntry: child}, nil

	default:
		return nil, errorf(InvalidInput, "vfs: not a directory")
	}
}

// IsRootDirectory implements the uniform operation.
func (e *FileEntry) IsRootDirectory() bool {
	switch e.Kind {
	case Apm, Gpt, Mbr, Ewf, Qcow, Udif, SparseImage, Vhd, Vhdx, Fake, Ext, Fat, Ntfs:
		return e.isRoot
	default:
		return false
	}
}
