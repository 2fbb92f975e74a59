// Package config parses the small set of flags a keramics front end
// needs: cache capacities and the mediator's debug-output toggle. No
// third-party CLI framework is pulled in, matching the teacher's
// main.go reading os.Args directly with the standard flag package.
package config

import (
	"flag"

	"github.com/keramics/keramics-go/internal/mediator"
)

// Config holds the tunables a caller can set from the command line or
// by constructing one directly for tests.
type Config struct {
	// SegmentCacheSize is the requested number of open segment
	// readers to keep cached. No reader in this module reads it; the
	// EWF reader's segment LRU has a fixed capacity of 16.
	SegmentCacheSize int
	// BlockCacheSize is the requested number of decompressed blocks to
	// keep cached. No reader in this module reads it; the EWF reader's
	// block LRU has a fixed capacity of 64.
	BlockCacheSize int
	// Debug enables mediator debug-output logging.
	Debug bool
}

// Default values chosen to match the teacher's modest defaults for
// similar caches (decompressioncache's default capacity).
const (
	DefaultSegmentCacheSize = 32
	DefaultBlockCacheSize   = 256
)

// Parse registers flags on fs and parses args, returning the resulting
// Config. Callers typically pass flag.CommandLine and os.Args[1:].
func Parse(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{}
	fs.IntVar(&cfg.SegmentCacheSize, "segment-cache-size", DefaultSegmentCacheSize, "number of open segment readers to keep cached")
	fs.IntVar(&cfg.BlockCacheSize, "block-cache-size", DefaultBlockCacheSize, "number of decompressed blocks to keep cached")
	fs.BoolVar(&cfg.Debug, "debug", false, "enable mediator debug-output logging")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyMediator installs a process-wide mediator reflecting cfg.Debug.
func (cfg Config) ApplyMediator() {
	mediator.SetCurrent(mediator.New(nil, cfg.Debug))
}
