// Package testing provides fixtures shared by the cache's test suites: an
// in-memory stand-in for rawfile.File, and helpers for building random or
// patterned backing images. It plays the same role as the teacher's
// testing/images.go and testing/blockcache.go: fast, deterministic doubles
// for the one real dependency (the underlying storage) the cache core
// needs from its host.
package testing

import (
	"crypto/rand"
	"io"
	"testing"

	"github.com/SemPozh/osi/cacheerr"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// FakeRawFile is an in-memory implementation of the raw-file adapter's
// contract (pread/pwrite/size/truncate/sync/close), backed by a
// growable byte slice rather than a direct-I/O file descriptor. It
// satisfies blockstore.RawFile and descriptor.RawFile without either
// package needing to import it, the same way the teacher's
// bytesextra-backed blockcache.WrapSlice lets tests avoid real files.
type FakeRawFile struct {
	data   []byte
	closed bool
}

// NewFakeRawFile returns a FakeRawFile whose initial contents are data
// (copied, so callers can keep mutating their own slice afterward).
func NewFakeRawFile(data []byte) *FakeRawFile {
	cp := make([]byte, len(data))
	copy(cp, data)
	return &FakeRawFile{data: cp}
}

func (f *FakeRawFile) Pread(buf []byte, offset int64) (int, error) {
	if f.closed {
		return 0, cacheerr.ErrIO.WithMessage("read on closed file")
	}
	if offset >= int64(len(f.data)) {
		return 0, nil
	}
	n := copy(buf, f.data[offset:])
	return n, nil
}

func (f *FakeRawFile) Pwrite(buf []byte, offset int64) (int, error) {
	if f.closed {
		return 0, cacheerr.ErrIO.WithMessage("write on closed file")
	}
	end := offset + int64(len(buf))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	n := copy(f.data[offset:end], buf)
	return n, nil
}

func (f *FakeRawFile) Size() (int64, error) {
	return int64(len(f.data)), nil
}

func (f *FakeRawFile) Truncate(length int64) error {
	if length < 0 {
		return cacheerr.ErrInvalidArgument.WithMessage("negative truncate length")
	}
	if length <= int64(len(f.data)) {
		f.data = f.data[:length]
		return nil
	}
	grown := make([]byte, length)
	copy(grown, f.data)
	f.data = grown
	return nil
}

func (f *FakeRawFile) Sync() error {
	return nil
}

func (f *FakeRawFile) Close() error {
	f.closed = true
	return nil
}

// Bytes returns the file's current contents. Intended for assertions, not
// for the cache itself to call.
func (f *FakeRawFile) Bytes() []byte {
	return f.data
}

// Reader returns an io.ReadSeeker over the file's current contents,
// grounded on the teacher's bytesextra-backed stream wrapping
// (file_systems/common/blockcache.WrapSlice).
func (f *FakeRawFile) Reader() io.ReadSeeker {
	return bytesextra.NewReadWriteSeeker(f.data)
}

// RandomBytes returns n cryptographically random bytes, failing t if the
// source is exhausted. Mirrors the teacher's CreateRandomImage.
func RandomBytes(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	_, err := rand.Read(buf)
	require.NoError(t, err, "failed to generate %d random bytes", n)
	return buf
}

// PatternedBytes fills count bytes starting with startByte, incrementing
// by one every blockSize bytes and wrapping back to startByte every
// period blocks — the byte pattern
// spec.md's sequential-fill scenario uses ('A' + i mod 26 per 4096-byte
// block, generalized here to an arbitrary period).
func PatternedBytes(count, blockSize int, startByte byte, period int) []byte {
	out := make([]byte, count)
	for i := range out {
		block := i / blockSize
		out[i] = startByte + byte(block%period)
	}
	return out
}
