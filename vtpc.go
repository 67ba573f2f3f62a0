// Package osi implements vtpc, a user-space direct-I/O block cache with
// an fd-style API (open, close, read, write, seek, fsync) sitting over a
// block-indexed, LRU-K-replaced cache. Cache wires together the three
// layers in internal/blockstore, internal/descriptor, and rawfile behind
// the single External Interface table.
package osi

import (
	"os"

	"github.com/SemPozh/osi/internal/blockstore"
	"github.com/SemPozh/osi/internal/descriptor"
	"github.com/SemPozh/osi/rawfile"
	"github.com/hashicorp/go-multierror"
)

// Config holds the cache's tunables. Zero values are replaced with the
// reference defaults by Init and New.
type Config struct {
	// BlockSize is B, the fixed block size in bytes.
	BlockSize int
	// Capacity is C, the number of resident blocks the store may hold.
	Capacity int
	// K is the LRU-K history depth.
	K int
	// Descriptors is N, the size of the descriptor table.
	Descriptors int
}

// DefaultConfig matches spec.md §6: B=4096, C=100, K=2, N=1024.
func DefaultConfig() Config {
	return Config{
		BlockSize:   4096,
		Capacity:    100,
		K:           2,
		Descriptors: 1024,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BlockSize <= 0 {
		c.BlockSize = d.BlockSize
	}
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	if c.K <= 0 {
		c.K = d.K
	}
	if c.Descriptors <= 0 {
		c.Descriptors = d.Descriptors
	}
	return c
}

// Cache is the cache's single exported entry point. It is not safe for
// concurrent use from multiple goroutines (spec.md §5, no concurrency).
type Cache struct {
	cfg   Config
	store *blockstore.Store
	table *descriptor.Table
}

// New builds a Cache from cfg, filling in any zero field with the
// reference default. It is equivalent to calling Init on a zero Cache.
func New(cfg Config) (*Cache, error) {
	c := &Cache{}
	if err := c.Init(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// Init (re)initializes the cache's block store and descriptor table from
// cfg. Calling Init on an already-initialized Cache is the same as
// Reconfigure: it mirrors the reference C implementation's
// vtpc_cache_init, which callers could invoke more than once.
func (c *Cache) Init(cfg Config) error {
	cfg = cfg.withDefaults()

	if c.table != nil {
		if err := c.Teardown(); err != nil {
			return err
		}
	}

	store, err := blockstore.New(cfg.BlockSize, cfg.K, cfg.Capacity)
	if err != nil {
		return err
	}

	c.cfg = cfg
	c.store = store
	c.table = descriptor.New(cfg.Descriptors, store, openRawFile)
	return nil
}

func openRawFile(path string, flags int, mode os.FileMode) (descriptor.RawFile, error) {
	return rawfile.Open(path, flags, mode)
}

// Open opens path and returns a caller-visible handle, per spec.md §6.
func (c *Cache) Open(path string, flags int, mode os.FileMode) (int, error) {
	return c.table.Open(path, flags, mode)
}

// Close flushes fd's dirty blocks, discards its resident blocks, and
// closes the underlying raw file. The descriptor slot is released even
// if the flush fails.
func (c *Cache) Close(fd int) error {
	return c.table.Close(fd)
}

// Read reads into buf starting at fd's current position, advancing it by
// the number of bytes returned.
func (c *Cache) Read(fd int, buf []byte) (int, error) {
	return c.table.Read(fd, buf)
}

// Write writes buf starting at fd's current position, advancing it and
// extending fd's logical size as needed.
func (c *Cache) Write(fd int, buf []byte) (int, error) {
	return c.table.Write(fd, buf)
}

// Seek repositions fd's logical pointer and returns the new position.
func (c *Cache) Seek(fd int, offset int64, whence int) (int64, error) {
	return c.table.Seek(fd, offset, whence)
}

// Fsync flushes fd's dirty blocks and syncs the underlying raw file.
func (c *Cache) Fsync(fd int) error {
	return c.table.Fsync(fd)
}

// Stats returns the cache-wide hit/miss counters and the current number
// of resident blocks, per spec.md §6's stats operation.
func (c *Cache) Stats() (hits, misses uint64, resident int) {
	hits, misses = c.store.Stats()
	return hits, misses, c.store.Resident()
}

// DebugBlocks returns a structured snapshot of every block resident for
// fd's underlying file: index, dirty flag, and access count. It
// supplements spec.md's stats operation with the per-block detail the
// reference C implementation's vtpc_cache_stats() printed (see
// SPEC_FULL.md §6), without baking in a presentation format.
func (c *Cache) DebugBlocks(fd int) ([]blockstore.BlockInfo, error) {
	file, err := c.table.RawFile(fd)
	if err != nil {
		return nil, err
	}
	return c.store.DebugBlocks(file), nil
}

// Reconfigure rebuilds the cache's block store and descriptor table with
// new tunables, flushing and discarding every resident block first. It
// implements the runtime K/C adjustment spec.md §6 lists as optional,
// the Go equivalent of the reference C implementation's
// vtpc_set_lru_k/vtpc_set_cache_blocks.
func (c *Cache) Reconfigure(cfg Config) error {
	if err := c.Teardown(); err != nil {
		return err
	}
	return c.Init(cfg)
}

// Teardown flushes every dirty block across every open descriptor and
// releases them, which leaves no block resident; the arena's buffers stay
// allocated and the Cache remains usable. It is the Cache-level
// operation spec.md §9 Open Question (a) notes the reference C
// implementation never had: callers that want a clean shutdown without
// tracking every fd themselves can call this instead.
func (c *Cache) Teardown() error {
	var result *multierror.Error
	for fd := 0; fd < c.table.Size(); fd++ {
		if !c.table.InUse(fd) {
			continue
		}
		if err := c.table.Close(fd); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
