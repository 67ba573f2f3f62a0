package blockstore_test

import (
	"io"
	"testing"

	"github.com/SemPozh/osi/internal/blockstore"
	osicache_testing "github.com/SemPozh/osi/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blockSize = 4096

func newBackedFile(t *testing.T, blocks int) *osicache_testing.FakeRawFile {
	t.Helper()
	return osicache_testing.NewFakeRawFile(make([]byte, blocks*blockSize))
}

func TestLookupMissThenAdmitThenHit(t *testing.T) {
	store, err := blockstore.New(blockSize, 2, 10)
	require.NoError(t, err)

	file := newBackedFile(t, 4)
	key := blockstore.Key{File: file, Index: 0}

	_, hit := store.Lookup(key)
	assert.False(t, hit, "block must not be resident before admission")

	block, err := store.Admit(key, make([]byte, blockSize))
	require.NoError(t, err)
	assert.Equal(t, key, block.Key())
	assert.False(t, block.Dirty())

	_, hit = store.Lookup(key)
	assert.True(t, hit, "block must be resident after admission")

	hits, misses := store.Stats()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 1, misses)
}

func TestAdmitRejectsWrongSizedBuffer(t *testing.T) {
	store, err := blockstore.New(blockSize, 2, 10)
	require.NoError(t, err)

	file := newBackedFile(t, 1)
	_, err = store.Admit(blockstore.Key{File: file, Index: 0}, make([]byte, blockSize-1))
	assert.Error(t, err)
}

func TestResidentNeverExceedsCapacity(t *testing.T) {
	const capacity = 3
	store, err := blockstore.New(blockSize, 2, capacity)
	require.NoError(t, err)

	file := newBackedFile(t, 10)
	for i := uint64(0); i < 10; i++ {
		_, err := store.Admit(blockstore.Key{File: file, Index: i}, make([]byte, blockSize))
		require.NoError(t, err)
		assert.LessOrEqual(t, store.Resident(), capacity)
	}
	assert.Equal(t, capacity, store.Resident())
}

// TestLRUKDiscrimination is spec.md §8 scenario 3: with C=3, K=2, access
// sequence A, B, C, A, D, B must leave {A, B, D} resident. When D is
// admitted, B and C each have one access and A has two, so B (the older
// under-K block) goes; re-admitting B then evicts C, which, like D, is
// under K but was accessed before D.
func TestLRUKDiscrimination(t *testing.T) {
	store, err := blockstore.New(blockSize, 2, 3)
	require.NoError(t, err)

	file := newBackedFile(t, 4)
	keyFor := func(name byte) blockstore.Key {
		return blockstore.Key{File: file, Index: uint64(name)}
	}
	access := func(name byte) {
		key := keyFor(name)
		if _, hit := store.Lookup(key); hit {
			return
		}
		_, err := store.Admit(key, make([]byte, blockSize))
		require.NoError(t, err)
	}

	access('A')
	access('B')
	access('C')
	access('A')
	access('D') // evicts B
	access('B') // evicts C

	_, hasA := store.Lookup(keyFor('A'))
	_, hasB := store.Lookup(keyFor('B'))
	_, hasC := store.Lookup(keyFor('C'))
	_, hasD := store.Lookup(keyFor('D'))

	assert.True(t, hasA, "A must still be resident")
	assert.True(t, hasB, "B must still be resident")
	assert.False(t, hasC, "C must have been evicted")
	assert.True(t, hasD, "D must be resident")
}

// TestDirtyWriteBackOnEviction is spec.md §8 scenario 4: with C=1, writing
// block 0 then accessing block 1 forces eviction of block 0, which must
// flush its dirty contents to the backing file first.
func TestDirtyWriteBackOnEviction(t *testing.T) {
	store, err := blockstore.New(blockSize, 2, 1)
	require.NoError(t, err)

	file := newBackedFile(t, 2)
	key0 := blockstore.Key{File: file, Index: 0}
	block0, err := store.Admit(key0, make([]byte, blockSize))
	require.NoError(t, err)

	payload := make([]byte, blockSize)
	for i := range payload {
		payload[i] = 0xAB
	}
	copy(block0.Data(), payload)
	store.MarkDirty(block0)

	key1 := blockstore.Key{File: file, Index: 1}
	_, err = store.Admit(key1, make([]byte, blockSize))
	require.NoError(t, err)

	assert.Equal(t, payload, file.Bytes()[0:blockSize], "evicted dirty block must be flushed")
	_, hasKey0 := store.Lookup(key0)
	assert.False(t, hasKey0)

	reader := file.Reader()
	readBack := make([]byte, blockSize)
	_, err = reader.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = io.ReadFull(reader, readBack)
	require.NoError(t, err)
	assert.Equal(t, payload, readBack, "Reader must observe the flushed write-back too")
}

func TestFlushFileFlushesOnlyThatFilesDirtyBlocks(t *testing.T) {
	store, err := blockstore.New(blockSize, 2, 10)
	require.NoError(t, err)

	fileA := newBackedFile(t, 2)
	fileB := newBackedFile(t, 2)

	blockA, err := store.Admit(blockstore.Key{File: fileA, Index: 0}, make([]byte, blockSize))
	require.NoError(t, err)
	copy(blockA.Data(), []byte("hello-A"))
	store.MarkDirty(blockA)

	blockB, err := store.Admit(blockstore.Key{File: fileB, Index: 0}, make([]byte, blockSize))
	require.NoError(t, err)
	copy(blockB.Data(), []byte("hello-B"))
	store.MarkDirty(blockB)

	require.NoError(t, store.FlushFile(fileA))

	assert.Equal(t, []byte("hello-A"), fileA.Bytes()[0:7])
	assert.NotEqual(t, []byte("hello-B"), fileB.Bytes()[0:7], "other file must not be flushed")
	assert.True(t, blockB.Dirty())
	assert.False(t, blockA.Dirty())
}

func TestDiscardFileRemovesOnlyThatFilesBlocks(t *testing.T) {
	store, err := blockstore.New(blockSize, 2, 10)
	require.NoError(t, err)

	fileA := newBackedFile(t, 2)
	fileB := newBackedFile(t, 2)

	_, err = store.Admit(blockstore.Key{File: fileA, Index: 0}, make([]byte, blockSize))
	require.NoError(t, err)
	_, err = store.Admit(blockstore.Key{File: fileB, Index: 0}, make([]byte, blockSize))
	require.NoError(t, err)

	store.DiscardFile(fileA)

	_, hasA := store.Lookup(blockstore.Key{File: fileA, Index: 0})
	_, hasB := store.Lookup(blockstore.Key{File: fileB, Index: 0})
	assert.False(t, hasA)
	assert.True(t, hasB)
	assert.Equal(t, 1, store.Resident())
}

func TestUnderKAccessedBlocksAreMostEvictable(t *testing.T) {
	store, err := blockstore.New(blockSize, 2, 2)
	require.NoError(t, err)

	file := newBackedFile(t, 3)
	keyWarm := blockstore.Key{File: file, Index: 0}
	keyCold := blockstore.Key{File: file, Index: 1}

	_, err = store.Admit(keyWarm, make([]byte, blockSize))
	require.NoError(t, err)
	store.Lookup(keyWarm) // second access: now has K=2 accesses

	_, err = store.Admit(keyCold, make([]byte, blockSize))
	require.NoError(t, err) // only one access so far: under K

	keyNew := blockstore.Key{File: file, Index: 2}
	_, err = store.Admit(keyNew, make([]byte, blockSize))
	require.NoError(t, err)

	_, hasWarm := store.Lookup(keyWarm)
	_, hasCold := store.Lookup(keyCold)
	assert.True(t, hasWarm, "block with a full K accesses must survive")
	assert.False(t, hasCold, "block with fewer than K accesses must be evicted first")
}
