package vfs

// DataForkKind distinguishes a plain single-stream fork from an
// NTFS-style named fork.
type DataForkKind int

const (
	SimpleFork DataForkKind = iota
	NamedFork
)

// DataFork is the tagged variant over a file's data forks. NamedFork
// and Name describe an NTFS-style named fork, but ForksOf produces
// only SimpleFork values.
type DataFork struct {
	Kind   DataForkKind
	Name   string // only meaningful for NamedFork
	Stream DataStream
}

// ForksOf returns the default data fork of a FileEntry as a single
// SimpleFork, or nil when GetNumberOfDataForks reports none, for every
// variant including NTFS. Named forks are not listed.
func ForksOf(e *FileEntry) ([]DataFork, error) {
	n := e.GetNumberOfDataForks()
	if n == 0 {
		return nil, nil
	}
	stream, err := e.GetDataStream()
	if err != nil {
		return nil, err
	}
	return []DataFork{{Kind: SimpleFork, Stream: stream}}, nil
}
