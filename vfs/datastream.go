package vfs

import (
	"io"
	"sync/atomic"
)

// DataStream is a seekable read-only byte source. Every storage
// format in this package (EWF images, VHDX images, file-system data
// forks) exposes one.
type DataStream interface {
	io.ReaderAt
	Size() int64
}

// Ref is a reference-counted handle to a DataStream, letting a data
// stream outlive the FileEntry that produced it while still letting
// the owning FileSystem release the underlying resource once every
// holder is done. Grounded on the teacher's reader2readerat.keeptrack
// pattern (shared handle, refcount, release-on-zero), generalised from
// a package-private bookkeeping struct to an exported generic wrapper.
type Ref[T DataStream] struct {
	value   T
	count   *atomic.Int64
	release func()
	closed  atomic.Bool
}

// NewRef wraps a DataStream with a reference count of 1. release, if
// non-nil, is called exactly once when the last reference is closed.
func NewRef[T DataStream](value T, release func()) *Ref[T] {
	count := &atomic.Int64{}
	count.Store(1)
	return &Ref[T]{value: value, count: count, release: release}
}

// Clone increments the reference count and returns a new handle over
// the same underlying value.
func (r *Ref[T]) Clone() *Ref[T] {
	r.count.Add(1)
	return &Ref[T]{value: r.value, count: r.count, release: r.release}
}

// Get returns the underlying DataStream.
func (r *Ref[T]) Get() T {
	return r.value
}

// Close decrements the reference count, invoking release when it
// reaches zero. Safe to call more than once; only the transition to
// zero triggers release.
func (r *Ref[T]) Close() {
	if r.closed.Swap(true) {
		return
	}
	if r.count.Add(-1) == 0 && r.release != nil {
		r.release()
	}
}

// boundedStream adapts a DataStream into an io.SectionReader-like
// bounded view, for the common case of a layer or partition exposing
// a sub-range of its parent's stream.
type boundedStream struct {
	base DataStream
	off  int64
	size int64
}

// NewBoundedStream returns a DataStream over [off, off+size) of base.
func NewBoundedStream(base DataStream, off, size int64) DataStream {
	return &boundedStream{base: base, off: off, size: size}
}

func (b *boundedStream) Size() int64 { return b.size }

func (b *boundedStream) ReadAt(p []byte, off int64) (int, error) {
	if off >= b.size {
		return 0, nil
	}
	if off+int64(len(p)) > b.size {
		p = p[:b.size-off]
	}
	return b.base.ReadAt(p, b.off+off)
}
