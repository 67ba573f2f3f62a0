// Package blockstore implements the block store and LRU-K replacement
// engine from spec.md §4.2: a fixed-capacity pool of block-sized buffers,
// indexed by (file, block index), with admission, eviction, and
// dirty-block write-back.
//
// There is no separate recency list. Design Notes in spec.md §9 suggest an
// arena of blocks addressed by small integer slot indices, with a hash
// index from key to slot and no cyclic references; this store goes one
// step further and derives recency entirely from each block's own access
// history, so victim selection is a scan over resident slots rather than
// a pointer-chase through an intrusive list. Capacity C is small (the
// reference value is 100), so the scan costs nothing the reference C
// implementation's own O(n) find_victim doesn't already cost.
package blockstore

import (
	"github.com/SemPozh/osi/cacheerr"
	"github.com/SemPozh/osi/rawfile"
	"github.com/boljen/go-bitmap"
)

// RawFile is everything the block store needs from a raw file handle to
// fill and write back a block. *rawfile.File satisfies it; tests supply
// an in-memory fake (see the testing package).
type RawFile interface {
	Pread(buf []byte, offset int64) (int, error)
	Pwrite(buf []byte, offset int64) (int, error)
}

// Key identifies a cache block: the raw file it belongs to, and its block
// index within that file. Two descriptors backing distinct raw handles to
// the same path get distinct keys and therefore independent cached copies
// — spec.md §9 Open Question (b) calls this out explicitly as intentional,
// if surprising.
type Key struct {
	File  RawFile
	Index uint64
}

// Block is one resident cache block. Identity is its Key; data is exactly
// BlockSize() bytes of alignment-satisfying memory.
type Block struct {
	key     Key
	data    []byte
	dirty   bool
	history []uint64 // up to K entries, oldest first
}

func (b *Block) Key() Key     { return b.key }
func (b *Block) Data() []byte { return b.data }
func (b *Block) Dirty() bool  { return b.dirty }

// Store is the fixed-capacity block pool plus its LRU-K index.
type Store struct {
	blockSize int
	k         int
	capacity  int

	arena    []Block
	occupied bitmap.Bitmap
	index    map[Key]int

	counter uint64
	hits    uint64
	misses  uint64
}

// New allocates a Store with room for `capacity` blocks of `blockSize`
// bytes, keeping the K most recent access times per block for LRU-K
// victim selection. Each block's buffer is allocated aligned to
// rawfile.DefaultAlignment so it's always legal to hand to a direct-I/O
// pread/pwrite.
func New(blockSize, k, capacity int) (*Store, error) {
	if blockSize <= 0 || k <= 0 || capacity <= 0 {
		return nil, cacheerr.ErrResourceExhausted.WithMessage(
			"blockSize, k, and capacity must all be positive",
		)
	}

	arena := make([]Block, capacity)
	for i := range arena {
		buf, err := rawfile.AllocAligned(blockSize, rawfile.DefaultAlignment)
		if err != nil {
			return nil, cacheerr.ErrResourceExhausted.Wrap(err)
		}
		arena[i].data = buf
		arena[i].history = make([]uint64, 0, k)
	}

	return &Store{
		blockSize: blockSize,
		k:         k,
		capacity:  capacity,
		arena:     arena,
		occupied:  bitmap.NewSlice(capacity),
		index:     make(map[Key]int, capacity),
	}, nil
}

func (s *Store) BlockSize() int { return s.blockSize }
func (s *Store) K() int         { return s.k }
func (s *Store) Capacity() int  { return s.capacity }

// Resident returns the number of blocks currently resident in the store.
func (s *Store) Resident() int { return len(s.index) }

// Stats returns the cache-wide hit and miss counters maintained by Lookup
// and Admit.
func (s *Store) Stats() (hits, misses uint64) {
	return s.hits, s.misses
}

// Lookup returns the resident block for key, updating its access history
// and the global counter, or false if the block isn't resident (a miss;
// the caller is expected to fetch it and call Admit).
func (s *Store) Lookup(key Key) (*Block, bool) {
	slot, ok := s.index[key]
	if !ok {
		return nil, false
	}
	s.hits++
	block := &s.arena[slot]
	s.recordAccess(block)
	return block, true
}

// Admit installs a new block for key, evicting a victim first if the
// store is already at capacity. initialBytes must be exactly BlockSize()
// bytes; it becomes the new block's data, the block starts clean, and its
// history begins with the current counter. It is the caller's
// responsibility to have already confirmed key isn't resident (Lookup
// returned a miss).
func (s *Store) Admit(key Key, initialBytes []byte) (*Block, error) {
	if len(initialBytes) != s.blockSize {
		return nil, cacheerr.ErrInvalidArgument.WithMessage(
			"admitted block must be exactly one block in size",
		)
	}
	s.misses++

	slot, err := s.acquireSlot()
	if err != nil {
		return nil, err
	}

	block := &s.arena[slot]
	block.key = key
	copy(block.data, initialBytes)
	block.dirty = false
	block.history = block.history[:0]

	s.occupied.Set(slot, true)
	s.index[key] = slot
	s.recordAccess(block)
	return block, nil
}

// acquireSlot returns a free arena slot, evicting the LRU-K victim first
// if the store is at capacity. On eviction failure the victim remains
// resident and dirty, and the failure propagates to the triggering Admit
// (spec.md §4.5).
func (s *Store) acquireSlot() (int, error) {
	if len(s.index) < s.capacity {
		for i := 0; i < s.capacity; i++ {
			if !s.occupied.Get(i) {
				return i, nil
			}
		}
	}

	victim := s.findVictim()
	block := &s.arena[victim]
	if block.dirty {
		if err := s.writeBack(block); err != nil {
			return 0, err
		}
	}

	delete(s.index, block.key)
	s.occupied.Set(victim, false)
	return victim, nil
}

// findVictim implements LRU-K victim selection (spec.md §4.2): the
// resident block whose K-th most recent access is oldest, with
// under-K-accessed blocks treated as the oldest possible. Ties go to the
// block with the older last access, then to the lowest slot index.
func (s *Store) findVictim() int {
	best := -1
	var bestKth, bestLast uint64

	for i := 0; i < s.capacity; i++ {
		if !s.occupied.Get(i) {
			continue
		}
		block := &s.arena[i]
		kth := s.kthAccessTime(block)
		last := lastAccessTime(block)

		if best == -1 || kth < bestKth || (kth == bestKth && last < bestLast) {
			best, bestKth, bestLast = i, kth, last
		}
	}
	return best
}

// kthAccessTime returns the timestamp of a block's K-th most recent
// access — the oldest entry in its history — or 0 ("infinitely old") if
// it has fewer than K recorded accesses.
func (s *Store) kthAccessTime(b *Block) uint64 {
	if len(b.history) < s.k {
		return 0
	}
	return b.history[0]
}

func lastAccessTime(b *Block) uint64 {
	if len(b.history) == 0 {
		return 0
	}
	return b.history[len(b.history)-1]
}

// recordAccess appends the current counter to a block's history, evicting
// the oldest entry once the history holds K entries (spec.md §4.2's
// history update rule). The cache-wide counter advances exactly once per
// call.
func (s *Store) recordAccess(b *Block) {
	s.counter++
	if len(b.history) == s.k {
		copy(b.history, b.history[1:])
		b.history[len(b.history)-1] = s.counter
	} else {
		b.history = append(b.history, s.counter)
	}
}

// MarkDirty marks block as modified; it will be written back on the next
// Flush, FlushFile, or eviction.
func (s *Store) MarkDirty(b *Block) {
	b.dirty = true
}

// Flush writes block back to its file if dirty, then clears the dirty
// flag. It is a no-op on a clean block.
func (s *Store) Flush(b *Block) error {
	if !b.dirty {
		return nil
	}
	return s.writeBack(b)
}

func (s *Store) writeBack(b *Block) error {
	offset := int64(b.key.Index) * int64(s.blockSize)
	n, err := b.key.File.Pwrite(b.data, offset)
	if err != nil {
		return cacheerr.ErrIO.Wrap(err)
	}
	if n != s.blockSize {
		return cacheerr.ErrIO.WithMessage("short write during block flush")
	}
	b.dirty = false
	return nil
}

// FlushFile flushes every dirty block belonging to file, stopping at the
// first failure (spec.md §4.2); any blocks not yet reached remain dirty
// and resident.
func (s *Store) FlushFile(file RawFile) error {
	for i := 0; i < s.capacity; i++ {
		if !s.occupied.Get(i) {
			continue
		}
		block := &s.arena[i]
		if block.key.File != file || !block.dirty {
			continue
		}
		if err := s.writeBack(block); err != nil {
			return err
		}
	}
	return nil
}

// DiscardFile removes every resident block belonging to file. It assumes
// they are already clean (the caller is expected to have called
// FlushFile first); discarding a dirty block silently loses the write.
func (s *Store) DiscardFile(file RawFile) {
	for i := 0; i < s.capacity; i++ {
		if !s.occupied.Get(i) {
			continue
		}
		block := &s.arena[i]
		if block.key.File != file {
			continue
		}
		delete(s.index, block.key)
		s.occupied.Set(i, false)
	}
}

// BlockInfo is a structured, non-printing snapshot of one resident block,
// supplementing the reference C implementation's vtpc_cache_stats() dump
// (spec.md §9 / SPEC_FULL.md §6) without baking in a presentation format.
type BlockInfo struct {
	Index       uint64
	Dirty       bool
	NumAccesses int
}

// DebugBlocks returns a snapshot of every resident block belonging to
// file, in arbitrary order.
func (s *Store) DebugBlocks(file RawFile) []BlockInfo {
	var out []BlockInfo
	for i := 0; i < s.capacity; i++ {
		if !s.occupied.Get(i) {
			continue
		}
		block := &s.arena[i]
		if block.key.File != file {
			continue
		}
		out = append(out, BlockInfo{
			Index:       block.key.Index,
			Dirty:       block.dirty,
			NumAccesses: len(block.history),
		})
	}
	return out
}
