// Package vfs implements the tagged-variant virtual file system fan-out:
// Location addressing, DataStream reference counting, and the
// VfsFileSystem/VfsFileEntry/VfsDataFork union types that stack
// partition tables, storage-media images, and file systems on top of
// one another.
package vfs

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// LocationType is the closed set of addressable node kinds a Location
// segment can name.
type LocationType int

const (
	Os LocationType = iota
	Fake
	Apm
	Gpt
	Mbr
	Ewf
	Qcow
	Udif
	SparseImage
	Vhd
	Vhdx
	Ext
	Fat
	Ntfs
)

func (t LocationType) String() string {
	switch t {
	case Os:
		return "os"
	case Fake:
		return "fake"
	case Apm:
		return "apm"
	case Gpt:
		return "gpt"
	case Mbr:
		return "mbr"
	case Ewf:
		return "ewf"
	case Qcow:
		return "qcow"
	case Udif:
		return "udif"
	case SparseImage:
		return "sparseimage"
	case Vhd:
		return "vhd"
	case Vhdx:
		return "vhdx"
	case Ext:
		return "ext"
	case Fat:
		return "fat"
	case Ntfs:
		return "ntfs"
	default:
		return "unknown"
	}
}

// Location is an immutable linked list of (type, path) segments,
// addressing a node anywhere in the VFS fan-out: a partition, a layer
// inside a storage image, a file inside a file system. Segments
// serialise as "type:path" joined by "::", outermost first.
type Location struct {
	parent *Location
	typ    LocationType
	path   string
}

// Root creates a Location with no parent.
func Root(typ LocationType, path string) *Location {
	return &Location{typ: typ, path: path}
}

// Child extends a Location with one more segment.
func (l *Location) Child(typ LocationType, path string) *Location {
	return &Location{parent: l, typ: typ, path: path}
}

// Parent returns the enclosing Location, or nil at the root.
func (l *Location) Parent() *Location {
	if l == nil {
		return nil
	}
	return l.parent
}

// Type returns this segment's LocationType.
func (l *Location) Type() LocationType {
	return l.typ
}

// Path returns this segment's location string (a path within the
// parent's data stream).
func (l *Location) Path() string {
	return l.path
}

// String renders the full chain, outermost segment first, as
// "type:path::type:path::...".
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	var segments []string
	for n := l; n != nil; n = n.parent {
		segments = append(segments, n.typ.String()+":"+n.path)
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return strings.Join(segments, "::")
}

// Key returns a stable hash of the full Location chain, suitable as a
// VfsResolver map key or a dedup key for cached file-system opens.
// Grounded on internal/fileid's identity-hash construction
// (xxhash over a structured byte sequence).
func (l *Location) Key() uint64 {
	var h xxhash.Digest
	for n := l; n != nil; n = n.parent {
		h.WriteString(n.typ.String())
		h.WriteByte(0)
		h.WriteString(n.path)
		h.WriteByte(0)
	}
	return h.Sum64()
}
