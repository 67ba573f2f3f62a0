// Package rawfile is the raw-file adapter (spec.md §4.1): positioned
// reads/writes, size queries, and truncation against an OS file opened
// with a direct-I/O hint, plus the aligned-buffer allocator the block
// store needs to hand direct I/O legal buffers.
//
// It is the leaf of the cache: nothing below it but the kernel.
package rawfile

import (
	"os"

	"github.com/SemPozh/osi/cacheerr"
	"golang.org/x/sys/unix"
)

// File is a raw OS file opened for block-aligned, positioned I/O. Handles
// are *File values; descriptor.Table never exposes one to a cache caller
// directly.
type File struct {
	osFile *os.File
	direct bool
}

// Open opens path with flags and mode, requesting O_DIRECT so the kernel's
// own page cache stays out of the way. If the platform or filesystem
// rejects the hint, Open retries once without it — direct I/O is the
// adapter's raison d'être, not a correctness requirement (spec.md §9).
func Open(path string, flags int, mode os.FileMode) (*File, error) {
	f, direct, err := openWithDirectFallback(path, flags, mode)
	if err != nil {
		return nil, cacheerr.ErrIO.Wrap(err)
	}
	return &File{osFile: f, direct: direct}, nil
}

func openWithDirectFallback(path string, flags int, mode os.FileMode) (*os.File, bool, error) {
	withDirect := flags | directFlag()
	if f, err := openFlags(path, withDirect, mode); err == nil {
		return f, directFlag() != 0, nil
	}

	f, err := openFlags(path, flags, mode)
	return f, false, err
}

func openFlags(path string, flags int, mode os.FileMode) (*os.File, error) {
	fd, err := unix.Open(path, flags, uint32(mode))
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}

// Direct reports whether the underlying file was actually opened with the
// direct-I/O hint in force.
func (f *File) Direct() bool {
	return f.direct
}

// Pread reads len(buf) bytes from offset, returning however many bytes it
// actually got (possibly fewer at EOF). buf should be alignment-satisfying
// when f.Direct() is true; use AllocAligned to get such a buffer.
func (f *File) Pread(buf []byte, offset int64) (int, error) {
	n, err := unix.Pread(int(f.osFile.Fd()), buf, offset)
	if err != nil {
		return n, cacheerr.ErrIO.Wrap(err)
	}
	return n, nil
}

// Pwrite writes buf to offset, returning the number of bytes written.
func (f *File) Pwrite(buf []byte, offset int64) (int, error) {
	n, err := unix.Pwrite(int(f.osFile.Fd()), buf, offset)
	if err != nil {
		return n, cacheerr.ErrIO.Wrap(err)
	}
	return n, nil
}

// Size returns the file's current size in bytes.
func (f *File) Size() (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.osFile.Fd()), &st); err != nil {
		return 0, cacheerr.ErrIO.Wrap(err)
	}
	return st.Size, nil
}

// Truncate sets the file's size to length, extending with a hole or
// discarding trailing bytes as needed.
func (f *File) Truncate(length int64) error {
	if err := unix.Ftruncate(int(f.osFile.Fd()), length); err != nil {
		return cacheerr.ErrIO.Wrap(err)
	}
	return nil
}

// Sync flushes the file's in-kernel state to the storage device.
func (f *File) Sync() error {
	if err := f.osFile.Sync(); err != nil {
		return cacheerr.ErrIO.Wrap(err)
	}
	return nil
}

// Close releases the underlying OS file descriptor.
func (f *File) Close() error {
	if err := f.osFile.Close(); err != nil {
		return cacheerr.ErrIO.Wrap(err)
	}
	return nil
}
