// Package scanner drives recursive descent over an unknown image:
// storage-media image detection, then partition-table detection, then
// file-system detection, building a tree of ScanNode values. Grounded
// on the teacher's exploreFile/makeFSFromArchive magic-byte dispatch
// in fs.go, generalised from io/fs.FS sniffing into the phase-ordered
// signature-matcher composition keramics-vfs/src/scanner/scanner.rs
// uses for volume systems.
package scanner

import (
	"fmt"

	"github.com/keramics/keramics-go/vfs"
)

// FormatScanner is a signature matcher for one phase: given a
// DataStream, it reports whether its format is present and, if so,
// which vfs.LocationType it corresponds to. Concrete matchers (QCOW,
// GPT, NTFS, ...) are out of this port's scope; FormatScanner is the
// seam a caller plugs them into, the same way vfs.FsDriver is the seam
// for a file-system parser.
type FormatScanner interface {
	// Name identifies the matcher for error messages.
	Name() string
	// Matches reports whether stream's signature matches this format.
	Matches(stream vfs.DataStream) (bool, error)
	// Type returns the vfs.LocationType this matcher recognises.
	Type() vfs.LocationType
}

// Phase groups scanners that compete against the same stream; more
// than one match within a phase is treated as corruption or
// intentional ambiguity and aborts the scan.
type Phase struct {
	Name     string
	Scanners []FormatScanner
}

// ScanNode is one node of the discovered format tree: the Location it
// was found at, the FileSystem opened for it, and its children.
type ScanNode struct {
	Location *Location
	FileSystem *vfs.FileSystem
	Children []*ScanNode
}

// Location aliases vfs.Location so callers don't need to import both
// packages for the common case of driving a scan.
type Location = vfs.Location

// Scanner sequences the phases described in spec.md §4.6: a
// storage-media-image phase, two ordered volume-system phases plus
// the NTFS-excludes-MBR phase, and a file-system phase.
type Scanner struct {
	StorageMediaImage []FormatScanner // QCOW, SparseImage, UDIF, VHD, VHDX
	Phase1VolumeSystem []FormatScanner // APM, GPT
	Phase2VolumeSystem []FormatScanner // NTFS (exclusion probe only)
	Phase3VolumeSystem []FormatScanner // MBR
	FileSystem        []FormatScanner // EXT, NTFS

	resolver *vfs.Resolver
}

// New returns a Scanner with an internal vfs.Resolver for
// FileSystem-open memoisation.
func New() *Scanner {
	return &Scanner{resolver: vfs.NewResolver()}
}

// matchPhase applies every scanner in a phase to stream, returning
// the single match's LocationType with ok set, ok unset and no error
// if no scanner matched, or an error if more than one scanner matched.
func matchPhase(phase []FormatScanner, stream vfs.DataStream) (vfs.LocationType, FormatScanner, bool, error) {
	var matched []FormatScanner
	for _, s := range phase {
		ok, err := s.Matches(stream)
		if err != nil {
			return 0, nil, false, vfs.NewError(vfs.Io, fmt.Sprintf("scanner: %s", s.Name()), err)
		}
		if ok {
			matched = append(matched, s)
		}
	}
	switch len(matched) {
	case 0:
		return 0, nil, false, nil
	case 1:
		return matched[0].Type(), matched[0], true, nil
	default:
		names := make([]string, len(matched))
		for i, s := range matched {
			names[i] = s.Name()
		}
		return 0, nil, false, vfs.Errorf(vfs.InvalidData, "scanner: multiple known format signatures of type %v: %v", matched[0].Type(), names)
	}
}

// Scan opens loc and applies the format-detection phases appropriate
// for loc's LocationType, recursing into every discovered child.
func (sc *Scanner) Scan(parentFS *vfs.FileSystem, loc *Location, open func(*vfs.FileSystem, *Location) (*vfs.FileSystem, error)) (*ScanNode, error) {
	fsys, err := sc.resolver.Resolve(loc, func() (*vfs.FileSystem, error) {
		return open(parentFS, loc)
	})
	if err != nil {
		return nil, vfs.NewError(vfs.Io, fmt.Sprintf("scanner: unable to open %s", loc), err)
	}

	node := &ScanNode{Location: loc, FileSystem: fsys}

	stream, err := sc.backingStream(fsys)
	if err != nil {
		return node, nil // no backing stream to scan further (e.g. empty file system)
	}

	switch loc.Type() {
	case vfs.Os, vfs.Fake:
		if err := sc.tryImageThenVolumeThenFS(node, fsys, stream, open); err != nil {
			return nil, err
		}
	case vfs.Qcow, vfs.Vhd, vfs.Vhdx, vfs.Udif, vfs.SparseImage:
		if err := sc.tryVolumeThenFS(node, fsys, stream, open); err != nil {
			return nil, err
		}
	case vfs.Apm, vfs.Gpt, vfs.Mbr:
		if err := sc.tryFS(node, fsys, stream, open); err != nil {
			return nil, err
		}
	}

	return node, nil
}

func (sc *Scanner) backingStream(fsys *vfs.FileSystem) (vfs.DataStream, error) {
	if fsys.NumberOfLayers() > 0 {
		return fsys.LayerByIndex(fsys.NumberOfLayers() - 1)
	}
	root, err := fsys.RootEntry()
	if err != nil {
		return nil, err
	}
	return root.GetDataStream()
}

func (sc *Scanner) tryImageThenVolumeThenFS(node *ScanNode, fsys *vfs.FileSystem, stream vfs.DataStream, open func(*vfs.FileSystem, *Location) (*vfs.FileSystem, error)) error {
	if typ, _, ok, err := matchPhase(sc.StorageMediaImage, stream); err != nil {
		return err
	} else if ok {
		child, err := sc.Scan(fsys, node.Location.Child(typ, "."), open)
		if err != nil {
			return err
		}
		node.Children = append(node.Children, child)
		return nil
	}
	return sc.tryVolumeThenFS(node, fsys, stream, open)
}

func (sc *Scanner) tryVolumeThenFS(node *ScanNode, fsys *vfs.FileSystem, stream vfs.DataStream, open func(*vfs.FileSystem, *Location) (*vfs.FileSystem, error)) error {
	if typ, _, ok, err := matchPhase(sc.Phase1VolumeSystem, stream); err != nil {
		return err
	} else if ok {
		return sc.scanVolumeSystem(node, fsys, typ, open)
	}

	_, _, ntfsMatched, err := matchPhase(sc.Phase2VolumeSystem, stream)
	if err != nil {
		return err
	}
	if ntfsMatched {
		return sc.tryFS(node, fsys, stream, open)
	}

	if typ, _, ok, err := matchPhase(sc.Phase3VolumeSystem, stream); err != nil {
		return err
	} else if ok {
		return sc.scanVolumeSystem(node, fsys, typ, open)
	}

	return sc.tryFS(node, fsys, stream, open)
}

func (sc *Scanner) tryFS(node *ScanNode, fsys *vfs.FileSystem, stream vfs.DataStream, open func(*vfs.FileSystem, *Location) (*vfs.FileSystem, error)) error {
	typ, _, ok, err := matchPhase(sc.FileSystem, stream)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	child, err := sc.Scan(fsys, node.Location.Child(typ, "."), open)
	if err != nil {
		return err
	}
	node.Children = append(node.Children, child)
	return nil
}

// scanVolumeSystem opens the partition-table file system as a child
// ScanNode and runs the file-system phase on every partition. A
// partition whose stream matches gets the file system's ScanNode
// directly under the partition-table node; a partition with no match
// gets no node of its own.
func (sc *Scanner) scanVolumeSystem(node *ScanNode, fsys *vfs.FileSystem, typ vfs.LocationType, open func(*vfs.FileSystem, *Location) (*vfs.FileSystem, error)) error {
	ptLoc := node.Location.Child(typ, ".")
	ptFS, err := sc.resolver.Resolve(ptLoc, func() (*vfs.FileSystem, error) {
		return open(fsys, ptLoc)
	})
	if err != nil {
		return vfs.NewError(vfs.Io, fmt.Sprintf("scanner: unable to open %s", ptLoc), err)
	}
	ptNode := &ScanNode{Location: ptLoc, FileSystem: ptFS}
	node.Children = append(node.Children, ptNode)

	n := ptFS.NumberOfPartitions()
	for i := 0; i < n; i++ {
		p, err := ptFS.PartitionByIndex(i)
		if err != nil {
			return err
		}
		partStream, err := ptFS.GetDataStreamByPathAndName(p.Name, nil)
		if err != nil {
			return vfs.NewError(vfs.Io, fmt.Sprintf("scanner: unable to read partition %q", p.Name), err)
		}

		fsType, _, ok, err := matchPhase(sc.FileSystem, partStream)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		partLoc := ptLoc.Child(fsType, p.Name)
		child, err := sc.Scan(ptFS, partLoc, open)
		if err != nil {
			return err
		}
		ptNode.Children = append(ptNode.Children, child)
	}
	return nil
}
