// Package descriptor implements the descriptor table and byte-range
// engine from spec.md §4.3–4.4: a fixed-size table of caller-visible
// handles, each binding a raw file to a logical position and size, and
// the translation of arbitrary byte-range read/write requests into
// block-granular operations on the block store.
//
// It is adapted from the teacher's basicstream.BasicStream (the block
// address translation, EOF clamping, and Seek semantics) and the
// reference C implementation's open_files array and vtpc_read/vtpc_write
// (the fixed slot table and the hit/miss bookkeeping).
package descriptor

import (
	"errors"
	"io"
	"os"
	"syscall"

	"github.com/SemPozh/osi/cacheerr"
	"github.com/SemPozh/osi/internal/blockstore"
	"github.com/SemPozh/osi/rawfile"
)

// RawFile is everything a descriptor needs from the raw-file adapter.
// *rawfile.File and the testing package's FakeRawFile both satisfy it.
type RawFile interface {
	Pread(buf []byte, offset int64) (int, error)
	Pwrite(buf []byte, offset int64) (int, error)
	Size() (int64, error)
	Truncate(length int64) error
	Sync() error
	Close() error
}

// Opener opens path for the descriptor table, mirroring rawfile.Open's
// signature. Tests inject an opener that hands out in-memory fakes.
type Opener func(path string, flags int, mode os.FileMode) (RawFile, error)

// slot is one descriptor table entry (spec.md §3's "Descriptor entry").
type slot struct {
	used  bool
	file  RawFile
	pos   int64
	size  int64
	path  string
	flags int
	mode  os.FileMode
}

// Table is the fixed-size descriptor table plus the byte-range engine
// that operates on it. Slots progress Free -> Open -> Free; there is no
// intermediate state (spec.md §4.4).
type Table struct {
	slots []slot
	store *blockstore.Store
	open  Opener
}

// New creates a table of n slots, all free, backed by store for block
// operations and open for turning a path into a raw file handle.
func New(n int, store *blockstore.Store, open Opener) *Table {
	return &Table{
		slots: make([]slot, n),
		store: store,
		open:  open,
	}
}

// Size returns the number of slots in the table (N in spec.md §6).
func (t *Table) Size() int { return len(t.slots) }

// InUse reports whether fd names an open descriptor. Callers walking the
// whole table (Cache.Teardown) use this to skip free slots without going
// through Read/Write's bad-handle error. It reports false both for a free
// slot and for an out-of-range index.
func (t *Table) InUse(fd int) bool {
	return fd >= 0 && fd < len(t.slots) && t.slots[fd].used
}

// RawFile returns the raw file handle bound to fd, for callers (such as
// Cache.DebugBlocks) that need to query the block store directly by key.
func (t *Table) RawFile(fd int) (RawFile, error) {
	s, err := t.get(fd)
	if err != nil {
		return nil, err
	}
	return s.file, nil
}

func (t *Table) get(fd int) (*slot, error) {
	if fd < 0 || fd >= len(t.slots) || !t.slots[fd].used {
		return nil, cacheerr.ErrBadHandle.WithMessage("descriptor not open")
	}
	return &t.slots[fd], nil
}

// Open opens path, binds it to the lowest free slot, and returns that
// slot's index as the caller-visible handle.
func (t *Table) Open(path string, flags int, mode os.FileMode) (int, error) {
	fd := -1
	for i := range t.slots {
		if !t.slots[i].used {
			fd = i
			break
		}
	}
	if fd == -1 {
		return -1, cacheerr.ErrTooManyOpen.WithMessage("descriptor table is full")
	}

	file, err := t.open(path, flags, mode)
	if err != nil {
		return -1, err
	}

	size, err := file.Size()
	if err != nil {
		file.Close()
		return -1, err
	}

	t.slots[fd] = slot{
		used:  true,
		file:  file,
		pos:   0,
		size:  size,
		path:  path,
		flags: flags,
		mode:  mode,
	}
	return fd, nil
}

// Close flushes every dirty block belonging to the descriptor's file,
// discards its resident blocks, and closes the raw file. The slot is
// always released, even if the flush fails — spec.md §4.4 calls the
// reference C implementation's early return on flush failure a defect.
func (t *Table) Close(fd int) error {
	s, err := t.get(fd)
	if err != nil {
		return err
	}

	flushErr := t.store.FlushFile(s.file)
	t.store.DiscardFile(s.file)
	closeErr := s.file.Close()

	*s = slot{}

	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Fsync flushes every dirty block belonging to the descriptor's file
// through the raw-file adapter, then syncs the raw file itself.
func (t *Table) Fsync(fd int) error {
	s, err := t.get(fd)
	if err != nil {
		return err
	}
	if err := t.store.FlushFile(s.file); err != nil {
		return err
	}
	return s.file.Sync()
}

// Seek repositions the descriptor's logical pointer. Seeking past the
// descriptor's logical size is allowed; a resulting negative position is
// rejected.
func (t *Table) Seek(fd int, offset int64, whence int) (int64, error) {
	s, err := t.get(fd)
	if err != nil {
		return 0, err
	}

	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = s.pos + offset
	case io.SeekEnd:
		newPos = s.size + offset
	default:
		return s.pos, cacheerr.ErrInvalidArgument.WithMessage("unknown whence value")
	}

	if newPos < 0 {
		return s.pos, cacheerr.ErrInvalidArgument.WithMessage("seek would go negative")
	}

	s.pos = newPos
	return newPos, nil
}

// Read implements the byte-range engine's read path (spec.md §4.3): it
// clamps the request to the descriptor's logical size, then walks the
// requested range one block at a time, filling cache misses from the raw
// file and zero-padding any short physical read.
func (t *Table) Read(fd int, buf []byte) (int, error) {
	s, err := t.get(fd)
	if err != nil {
		return 0, err
	}
	if s.pos >= s.size {
		return 0, nil
	}

	blockSize := int64(t.store.BlockSize())
	remaining := s.size - s.pos
	count := int64(len(buf))
	if count > remaining {
		count = remaining
	}

	total := int64(0)
	for count > 0 {
		blockIndex := uint64(s.pos / blockSize)
		offsetInBlock := s.pos % blockSize
		want := count
		if room := blockSize - offsetInBlock; want > room {
			want = room
		}

		block, hit := t.store.Lookup(blockstore.Key{File: s.file, Index: blockIndex})
		if !hit {
			raw, allocErr := rawfile.AllocAligned(int(blockSize), rawfile.DefaultAlignment)
			if allocErr != nil {
				if total > 0 {
					return int(total), nil
				}
				return 0, allocErr
			}
			n, readErr := s.file.Pread(raw, int64(blockIndex)*blockSize)
			if readErr != nil {
				if total > 0 {
					return int(total), nil
				}
				return 0, readErr
			}
			if int64(n) < blockSize {
				for i := n; i < int(blockSize); i++ {
					raw[i] = 0
				}
			}
			block, err = t.store.Admit(blockstore.Key{File: s.file, Index: blockIndex}, raw)
			if err != nil {
				if total > 0 {
					return int(total), nil
				}
				return 0, err
			}
		}

		copy(buf[total:total+want], block.Data()[offsetInBlock:offsetInBlock+want])
		total += want
		s.pos += want
		count -= want
	}
	return int(total), nil
}

// Write implements the byte-range engine's write path (spec.md §4.3): it
// extends the underlying file first if needed, then walks the requested
// range one block at a time. A write covering less than a full block
// pre-reads the block's on-disk contents first, unless the write covers
// the whole block; a transient interruption during that pre-read is
// tolerated since the write is about to overwrite the block anyway.
func (t *Table) Write(fd int, buf []byte) (int, error) {
	s, err := t.get(fd)
	if err != nil {
		return 0, err
	}

	blockSize := int64(t.store.BlockSize())
	count := int64(len(buf))

	underlyingSize, err := s.file.Size()
	if err != nil {
		return 0, err
	}
	if s.pos+count > underlyingSize {
		if err := s.file.Truncate(s.pos + count); err != nil {
			return 0, err
		}
	}

	total := int64(0)
	for count > 0 {
		blockIndex := uint64(s.pos / blockSize)
		offsetInBlock := s.pos % blockSize
		slice := count
		if room := blockSize - offsetInBlock; slice > room {
			slice = room
		}

		block, hit := t.store.Lookup(blockstore.Key{File: s.file, Index: blockIndex})
		if !hit {
			raw, allocErr := rawfile.AllocAligned(int(blockSize), rawfile.DefaultAlignment)
			if allocErr != nil {
				if total > 0 {
					if s.pos > s.size {
						s.size = s.pos
					}
					return int(total), nil
				}
				return 0, allocErr
			}
			if slice < blockSize {
				n, readErr := s.file.Pread(raw, int64(blockIndex)*blockSize)
				if readErr != nil && !isInterrupted(readErr) {
					if total > 0 {
						if s.pos > s.size {
							s.size = s.pos
						}
						return int(total), nil
					}
					return 0, readErr
				}
				if readErr == nil && int64(n) < blockSize {
					for i := n; i < int(blockSize); i++ {
						raw[i] = 0
					}
				}
			}

			block, err = t.store.Admit(blockstore.Key{File: s.file, Index: blockIndex}, raw)
			if err != nil {
				if total > 0 {
					if s.pos > s.size {
						s.size = s.pos
					}
					return int(total), nil
				}
				return 0, err
			}
		}

		copy(block.Data()[offsetInBlock:offsetInBlock+slice], buf[total:total+slice])
		t.store.MarkDirty(block)

		total += slice
		s.pos += slice
		if s.pos > s.size {
			s.size = s.pos
		}
		count -= slice
	}
	return int(total), nil
}

// isInterrupted reports whether err is (or wraps) a transient EINTR from
// the underlying read — the one error spec.md §5 says a partial-block
// pre-read may tolerate, since the caller is about to overwrite the block
// regardless.
func isInterrupted(err error) bool {
	return errors.Is(err, syscall.EINTR)
}
