package rawfile_test

import (
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/SemPozh/osi/rawfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenPreadPwriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.bin")

	f, err := rawfile.Open(path, os.O_RDWR|os.O_CREATE, 0o600)
	require.NoError(t, err)
	defer f.Close()

	payload := []byte("0123456789abcdef")
	n, err := f.Pwrite(payload, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	buf := make([]byte, len(payload))
	n, err = f.Pread(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, buf)
}

func TestSizeAndTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.bin")

	f, err := rawfile.Open(path, os.O_RDWR|os.O_CREATE, 0o600)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Truncate(8192))

	size, err := f.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 8192, size)
}

func TestAllocAlignedIsAligned(t *testing.T) {
	buf, err := rawfile.AllocAligned(4096, rawfile.DefaultAlignment)
	require.NoError(t, err)
	assert.Len(t, buf, 4096)
	assert.Zero(t, uintptr(unsafe.Pointer(&buf[0]))%rawfile.DefaultAlignment)
}

func TestAllocAlignedRejectsNonPositiveSize(t *testing.T) {
	_, err := rawfile.AllocAligned(0, rawfile.DefaultAlignment)
	assert.Error(t, err)
}
