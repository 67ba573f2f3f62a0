package rawfile

import (
	"unsafe"

	"github.com/SemPozh/osi/cacheerr"
)

// DefaultAlignment is the sector boundary used when the caller doesn't know
// (or care) what the underlying device actually requires. It matches
// spec.md's reference block size, which is also a typical filesystem block
// size, so blocks allocated this way are legal O_DIRECT buffers on most
// Linux filesystems.
const DefaultAlignment = 4096

// AllocAligned returns a slice of exactly n bytes whose address is a
// multiple of align. This is the aligned-buffer allocator capability
// spec.md §1 calls out as a host dependency of the core: direct I/O
// requires buffers in user memory to sit on a sector boundary.
func AllocAligned(n, align int) ([]byte, error) {
	if align <= 0 || n <= 0 {
		return nil, cacheerr.ErrResourceExhausted.WithMessage(
			"alignment and size must both be positive",
		)
	}

	buf := make([]byte, n+align)
	offset := 0
	if rem := alignmentOffset(buf, align); rem != 0 {
		offset = align - rem
	}
	buf = buf[offset : offset+n]

	if alignmentOffset(buf, align) != 0 {
		return nil, cacheerr.ErrResourceExhausted.WithMessage(
			"failed to produce an aligned buffer",
		)
	}
	return buf, nil
}

// alignmentOffset returns how far b's first byte sits past the nearest
// preceding multiple of align.
func alignmentOffset(b []byte, align int) int {
	if len(b) == 0 {
		return 0
	}
	return int(uintptr(unsafe.Pointer(&b[0])) % uintptr(align))
}
