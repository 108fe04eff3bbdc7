package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/arena"
	"github.com/joshuapare/heapkit/heap/verify"
)

// newTestAllocator builds an allocator over a fresh memory arena with the
// consistency check enabled after every operation. A nil cfg selects
// DefaultConfig.
func newTestAllocator(t testing.TB, cfg *Config) *Allocator {
	t.Helper()
	return newTestAllocatorOn(t, arena.NewMemory(0), cfg)
}

func newTestAllocatorOn(t testing.TB, ar arena.Arena, cfg *Config) *Allocator {
	t.Helper()
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	c.CheckEveryOp = true
	a, err := New(ar, &c)
	require.NoError(t, err)
	return a
}

// exactConfig extends the arena by exactly the block size on every miss so
// no leftover free blocks are created at the arena end.
func exactConfig() *Config {
	c := DefaultConfig()
	c.ChunkSize = 16
	return &c
}

// mallocBlock allocates a block of exactly blockSize bytes.
func mallocBlock(t testing.TB, a *Allocator, blockSize int) Ptr {
	t.Helper()
	p, err := a.Malloc(blockSize - 4)
	require.NoError(t, err)
	require.Equal(t, uint32(blockSize), a.blockSize(uint32(p)))
	return p
}

// carve allocates a block of each given size, each followed by a 16-byte
// guard, and returns the blocks. Freeing any subset leaves no adjacent free
// blocks.
func carve(t testing.TB, a *Allocator, sizes ...int) []Ptr {
	t.Helper()
	out := make([]Ptr, len(sizes))
	for i, size := range sizes {
		out[i] = mallocBlock(t, a, size)
		mallocBlock(t, a, 16)
	}
	return out
}

func requireCheck(t testing.TB, a *Allocator) verify.Summary {
	t.Helper()
	require.NoError(t, a.Check(false))
	sum, err := verify.Blocks(a.Arena().Bytes())
	require.NoError(t, err)
	return sum
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

func requireFilled(t testing.TB, b []byte, v byte) {
	t.Helper()
	for i, got := range b {
		if got != v {
			require.Failf(t, "payload corrupted", "byte %d = 0x%02X, want 0x%02X", i, got, v)
		}
	}
}
