package vfs

import "sync"

// Resolver memoises opened FileSystem values by Location key, so that
// a scan descending through the same chain twice (e.g. two sub-nodes
// of a partition table both re-resolving the table itself) reuses a
// single open handle. Grounded on the teacher's w.burrows map in
// fs.go, which memoises sub-file-systems keyed by (parent fs, path,
// warp suffix); here the key collapses to a single Location hash
// since a Location chain already encodes that full path.
type Resolver struct {
	mu    sync.Mutex
	cache map[uint64]*FileSystem
}

// NewResolver returns an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{cache: make(map[uint64]*FileSystem)}
}

// Resolve returns the cached FileSystem for loc if one was already
// opened through this Resolver, opening and caching it via open
// otherwise.
func (r *Resolver) Resolve(loc *Location, open func() (*FileSystem, error)) (*FileSystem, error) {
	key := loc.Key()

	r.mu.Lock()
	if fsys, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return fsys, nil
	}
	r.mu.Unlock()

	fsys, err := open()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.cache[key]; ok {
		return existing, nil
	}
	r.cache[key] = fsys
	return fsys, nil
}

// Forget drops a cached FileSystem, e.g. once its Resolver-external
// reference count reaches zero.
func (r *Resolver) Forget(loc *Location) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, loc.Key())
}

// Len reports the number of distinct Locations currently memoised.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
