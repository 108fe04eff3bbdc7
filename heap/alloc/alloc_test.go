package alloc

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/arena"
	"github.com/joshuapare/heapkit/heap/dirty"
	"github.com/joshuapare/heapkit/internal/format"
)

func Test_New_LaysOutEmptyHeap(t *testing.T) {
	a := newTestAllocator(t, nil)
	data := a.Arena().Bytes()

	require.Len(t, data, format.InitialSize)
	require.Equal(t, uint32(0), format.ReadU32(data, 0))
	require.Equal(t, uint32(0x9), format.ReadU32(data, format.PrologueHeader))
	require.Equal(t, uint32(0x9), format.ReadU32(data, format.Prologue))
	require.Equal(t, uint32(0x3), format.ReadU32(data, 12), "epilogue: size 0, alloc, prev alloc")

	sum := requireCheck(t, a)
	require.Zero(t, sum.Blocks)
}

func Test_New_RejectsUsedArena(t *testing.T) {
	ar := arena.NewMemory(1024)
	_, err := ar.Extend(8)
	require.NoError(t, err)

	_, err = New(ar, nil)
	require.ErrorIs(t, err, ErrArenaInUse)
}

func Test_New_ArenaTooSmall(t *testing.T) {
	_, err := New(arena.NewMemory(8), nil)
	require.ErrorIs(t, err, ErrNoSpace)
	require.ErrorIs(t, err, arena.ErrExhausted)
}

func Test_Config_Validate(t *testing.T) {
	tests := []struct {
		name      string
		chunk     int
		threshold int
		ok        bool
	}{
		{"default", 64, 48, true},
		{"exact chunks", 16, 48, true},
		{"smallest threshold", 64, 32, true},
		{"largest threshold", 64, 4096, true},
		{"chunk too small", 8, 48, false},
		{"chunk unaligned", 68, 48, false},
		{"threshold too small", 64, 24, false},
		{"threshold unaligned", 64, 52, false},
		{"threshold too large", 64, 4104, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{ChunkSize: tt.chunk, LargeThreshold: tt.threshold}
			err := c.Validate()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrBadConfig)

			_, err = New(arena.NewMemory(1024), &c)
			require.ErrorIs(t, err, ErrBadConfig)
		})
	}
}

func Test_Malloc_ZeroAndNegative(t *testing.T) {
	a := newTestAllocator(t, nil)

	p, err := a.Malloc(0)
	require.NoError(t, err)
	require.True(t, p.IsNil())

	_, err = a.Malloc(-1)
	require.ErrorIs(t, err, ErrBadSize)

	require.Len(t, a.Arena().Bytes(), format.InitialSize, "no growth for empty requests")
}

func Test_Malloc_BlockSizes(t *testing.T) {
	a := newTestAllocator(t, nil)
	for _, tc := range []struct{ req, block int }{
		{1, 16}, {8, 16}, {12, 16}, {13, 24}, {28, 32}, {100, 104}, {1000, 1008},
	} {
		p, err := a.Malloc(tc.req)
		require.NoError(t, err)
		assert.Equal(t, uint32(tc.block), a.blockSize(uint32(p)), "request %d", tc.req)
		assert.Equal(t, tc.block-4, a.UsableSize(p))
		assert.Len(t, a.Payload(p), tc.block-4)
	}
}

func Test_Malloc_Alignment(t *testing.T) {
	a := newTestAllocator(t, nil)
	for size := 1; size <= 300; size++ {
		p, err := a.Malloc(size)
		require.NoError(t, err)
		require.Zero(t, uint32(p)%format.Alignment, "size %d gave 0x%X", size, p)
		require.GreaterOrEqual(t, a.UsableSize(p), size)
		if size%3 == 0 {
			a.Free(p)
		}
	}
}

// allocate(100), release, allocate(100) returns the same address.
func Test_Malloc_ReusesFreedBlock(t *testing.T) {
	a := newTestAllocator(t, nil)

	p, err := a.Malloc(100)
	require.NoError(t, err)
	a.Free(p)

	q, err := a.Malloc(100)
	require.NoError(t, err)
	require.Equal(t, p, q)
	require.Equal(t, uint64(1), a.Stats().TreeHits)
}

// Small buckets are LIFO: the third allocate(8) reuses the first block.
func Test_Malloc_SmallBucketLIFO(t *testing.T) {
	a := newTestAllocator(t, nil)

	p1, err := a.Malloc(8)
	require.NoError(t, err)
	p2, err := a.Malloc(8)
	require.NoError(t, err)
	require.NotEqual(t, p1, p2)

	a.Free(p1)
	p3, err := a.Malloc(8)
	require.NoError(t, err)
	require.Equal(t, p1, p3)
	require.Equal(t, uint64(1), a.Stats().SmallHits)
}

func Test_Malloc_SmallBucketLIFOOrder(t *testing.T) {
	a := newTestAllocator(t, exactConfig())
	blocks := carve(t, a, 24, 24, 24)

	for _, p := range blocks {
		a.Free(p)
	}
	for i := len(blocks) - 1; i >= 0; i-- {
		p, err := a.Malloc(20)
		require.NoError(t, err)
		require.Equal(t, blocks[i], p)
	}
}

// Adjacent 32- and 64-byte blocks freed in either order merge into one.
func Test_Free_MergesNeighbours(t *testing.T) {
	for _, order := range []string{"small first", "large first"} {
		t.Run(order, func(t *testing.T) {
			a := newTestAllocator(t, nil)

			small, err := a.Malloc(28)
			require.NoError(t, err)
			large, err := a.Malloc(60)
			require.NoError(t, err)
			guard, err := a.Malloc(28)
			require.NoError(t, err)

			require.Equal(t, uint32(small)+32, uint32(large), "blocks must be adjacent")
			require.Equal(t, uint32(large)+64, uint32(guard))

			if order == "small first" {
				a.Free(small)
				a.Free(large)
			} else {
				a.Free(large)
				a.Free(small)
			}

			sum := requireCheck(t, a)
			require.Equal(t, 1, sum.FreeBlocks)
			require.Equal(t, []uint32{uint32(small)}, sum.Free)
			require.Equal(t, uint64(96), sum.FreeBytes)
			require.Equal(t, uint32(96), a.blockSize(uint32(small)))
		})
	}
}

func Test_Free_CoalesceCases(t *testing.T) {
	a := newTestAllocator(t, exactConfig())
	b := carve(t, a, 64, 64, 64)
	// Remove the guards between the blocks by freeing them too.
	g0 := Ptr(uint32(b[0]) + 64)
	g1 := Ptr(uint32(b[1]) + 64)

	a.Free(b[0]) // no merge
	a.Free(g0)   // merge with left
	a.Free(b[2]) // no merge
	a.Free(g1)   // merge with right
	a.Free(b[1]) // merge with both

	st := a.Stats()
	require.Equal(t, uint64(1), st.CoalescePrev)
	require.Equal(t, uint64(1), st.CoalesceNext)
	require.Equal(t, uint64(1), st.CoalesceBoth)

	sum := requireCheck(t, a)
	require.Equal(t, 1, sum.FreeBlocks)
	require.Equal(t, uint64(64*3+16*2), sum.FreeBytes)
}

func Test_Free_Nil(t *testing.T) {
	a := newTestAllocator(t, nil)
	a.Free(Nil)
	require.Zero(t, a.Stats().FreeCalls)
}

// Freeing the block before the epilogue and growing again merges the old
// tail with the new region.
func Test_Malloc_ExtendMergesTail(t *testing.T) {
	a := newTestAllocator(t, nil)
	var grows []uint32
	a.onGrow = func(n uint32) { grows = append(grows, n) }

	p, err := a.Malloc(40) // 48-byte block, 16-byte tail
	require.NoError(t, err)
	require.Equal(t, []uint32{64}, grows)

	q, err := a.Malloc(100) // 104 bytes, needs a new chunk
	require.NoError(t, err)
	require.Equal(t, []uint32{64, 104}, grows)
	require.Equal(t, uint32(p)+48, uint32(q), "new block starts at the old 16-byte tail")

	requireCheck(t, a)
}

func Test_Malloc_NoGrowWhenFit(t *testing.T) {
	a := newTestAllocator(t, nil)
	p, err := a.Malloc(500)
	require.NoError(t, err)
	a.Free(p)

	a.onGrow = func(n uint32) { t.Fatalf("unexpected grow by %d", n) }
	for _, size := range []int{100, 100, 100, 100} {
		_, err := a.Malloc(size)
		require.NoError(t, err)
	}
}

func Test_Malloc_Exhausted(t *testing.T) {
	a := newTestAllocatorOn(t, arena.NewMemory(128), nil)

	_, err := a.Malloc(200)
	require.ErrorIs(t, err, ErrNoSpace)
	require.ErrorIs(t, err, arena.ErrExhausted)
	require.Equal(t, uint64(1), a.Stats().FailedAllocs)
	require.Len(t, a.Arena().Bytes(), format.InitialSize, "failed extension leaves the arena alone")

	p, err := a.Malloc(8)
	require.NoError(t, err)
	require.False(t, p.IsNil())
	requireCheck(t, a)
}

func Test_Malloc_TooLarge(t *testing.T) {
	a := newTestAllocator(t, nil)
	_, err := a.Malloc(math.MaxInt)
	require.ErrorIs(t, err, ErrNoSpace)
}

// resize(p, 0) is release(p) plus a null result.
func Test_Realloc_ZeroFrees(t *testing.T) {
	a := newTestAllocator(t, nil)
	p, err := a.Malloc(40)
	require.NoError(t, err)

	q, err := a.Realloc(p, 0)
	require.NoError(t, err)
	require.True(t, q.IsNil())
	require.Equal(t, uint64(1), a.Stats().FreeCalls)

	sum := requireCheck(t, a)
	require.Zero(t, sum.AllocBytes)

	r, err := a.Malloc(40)
	require.NoError(t, err)
	require.Equal(t, p, r)
}

func Test_Realloc_NilMallocs(t *testing.T) {
	a := newTestAllocator(t, nil)
	p, err := a.Realloc(Nil, 30)
	require.NoError(t, err)
	require.False(t, p.IsNil())
	require.GreaterOrEqual(t, a.UsableSize(p), 30)
}

func Test_Realloc_PreservesContent(t *testing.T) {
	a := newTestAllocator(t, nil)
	p, err := a.Malloc(20)
	require.NoError(t, err)
	for i := range a.Payload(p) {
		a.Payload(p)[i] = byte(i + 1)
	}
	want := bytes.Clone(a.Payload(p)[:20])

	grown, err := a.Realloc(p, 2000)
	require.NoError(t, err)
	require.NotEqual(t, p, grown)
	require.Equal(t, want, a.Payload(grown)[:20])

	shrunk, err := a.Realloc(grown, 8)
	require.NoError(t, err)
	require.Equal(t, want[:8], a.Payload(shrunk)[:8])

	requireCheck(t, a)
}

func Test_Realloc_FailureKeepsBlock(t *testing.T) {
	a := newTestAllocatorOn(t, arena.NewMemory(256), nil)
	p, err := a.Malloc(50)
	require.NoError(t, err)
	fill(a.Payload(p), 0xAB)

	q, err := a.Realloc(p, 1000)
	require.ErrorIs(t, err, ErrNoSpace)
	require.True(t, q.IsNil())
	requireFilled(t, a.Payload(p), 0xAB)
	requireCheck(t, a)
}

func Test_Realloc_Negative(t *testing.T) {
	a := newTestAllocator(t, nil)
	p, err := a.Malloc(10)
	require.NoError(t, err)
	_, err = a.Realloc(p, -5)
	require.ErrorIs(t, err, ErrBadSize)
}

func Test_Calloc_Zeroes(t *testing.T) {
	a := newTestAllocator(t, nil)
	p, err := a.Malloc(80)
	require.NoError(t, err)
	fill(a.Payload(p), 0xFF)
	a.Free(p)

	q, err := a.Calloc(10, 8)
	require.NoError(t, err)
	require.Equal(t, p, q, "calloc reuses the dirty block")
	requireFilled(t, a.Payload(q), 0)
	require.Equal(t, uint64(1), a.Stats().CallocCalls)
}

func Test_Calloc_Errors(t *testing.T) {
	a := newTestAllocator(t, nil)

	_, err := a.Calloc(math.MaxInt, 2)
	require.ErrorIs(t, err, ErrOverflow)

	_, err = a.Calloc(-1, 2)
	require.ErrorIs(t, err, ErrBadSize)

	p, err := a.Calloc(0, 5)
	require.NoError(t, err)
	require.True(t, p.IsNil())
}

func Test_BadSize_CountsAsFailedAlloc(t *testing.T) {
	a := newTestAllocator(t, nil)
	p, err := a.Malloc(10)
	require.NoError(t, err)

	_, err = a.Malloc(-1)
	require.ErrorIs(t, err, ErrBadSize)
	_, err = a.Realloc(p, -1)
	require.ErrorIs(t, err, ErrBadSize)
	_, err = a.Calloc(4, -1)
	require.ErrorIs(t, err, ErrBadSize)

	require.Equal(t, uint64(3), a.Stats().FailedAllocs)
	requireCheck(t, a)
}

func Test_Payload_Nil(t *testing.T) {
	a := newTestAllocator(t, nil)
	require.Nil(t, a.Payload(Nil))
	require.Zero(t, a.UsableSize(Nil))
}

func Test_Payload_CannotReachNextBlock(t *testing.T) {
	a := newTestAllocator(t, nil)
	p, err := a.Malloc(10)
	require.NoError(t, err)
	b := a.Payload(p)
	require.Equal(t, len(b), cap(b))
}

func Test_Stats_Accounting(t *testing.T) {
	a := newTestAllocator(t, nil)

	p, err := a.Malloc(100)
	require.NoError(t, err)
	q, err := a.Malloc(8)
	require.NoError(t, err)

	st := a.Stats()
	require.Equal(t, uint64(2), st.MallocCalls)
	require.Equal(t, uint64(100+12), st.LiveBytes)
	require.Equal(t, st.LiveBytes, st.PeakLiveBytes)
	require.Equal(t, uint64(len(a.Arena().Bytes())), st.ArenaBytes)
	require.Equal(t, st.GrowBytes+format.InitialSize, st.ArenaBytes)

	a.Free(p)
	a.Free(q)
	st = a.Stats()
	require.Zero(t, st.LiveBytes)
	require.Equal(t, uint64(112), st.PeakLiveBytes)
	require.Equal(t, 1, st.FreeBlocks(), "everything merged")
	require.InDelta(t, 112.0/float64(st.ArenaBytes), st.Utilization(), 1e-9)
}

func Test_Stats_UtilizationEmpty(t *testing.T) {
	require.Zero(t, Stats{}.Utilization())
}

func Test_DirtyTracking(t *testing.T) {
	dt := dirty.NewTrackerWithPageSize(4096)
	cfg := DefaultConfig()
	cfg.Dirty = dt
	a := newTestAllocator(t, &cfg)
	require.Equal(t, 1, dt.Pages(), "initial layout is tracked")

	dt.Reset()
	p, err := a.Malloc(10000)
	require.NoError(t, err)
	ranges := dt.Ranges()
	require.NotEmpty(t, ranges)
	// Payload bytes are the caller's; only metadata words are tracked, so
	// the page in the middle of the block stays clean.
	for _, r := range ranges {
		require.False(t, r.Off <= int(p)+4096 && int(p)+4096 < r.Off+r.Len,
			"payload page 0x%X reported dirty", r.Off)
	}

	dt.Reset()
	a.Free(p)
	require.NotZero(t, dt.Pages())
}

func Test_CheckEveryOp_Panics(t *testing.T) {
	a := newTestAllocator(t, nil)
	p, err := a.Malloc(100)
	require.NoError(t, err)

	// Corrupt the prologue.
	format.PutU32(a.Arena().Bytes(), format.PrologueHeader, 0)
	require.Panics(t, func() { a.Free(p) })
}

func Test_Check_Verbose(t *testing.T) {
	var logs bytes.Buffer
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(&logs, nil))
	a := newTestAllocator(t, &cfg)

	for _, size := range []int{8, 100, 200, 24} {
		p, err := a.Malloc(size)
		require.NoError(t, err)
		if size > 50 {
			a.Free(p)
		}
	}
	require.NoError(t, a.Check(true))

	out := logs.String()
	for _, stage := range []string{"blocks ok", "small lists ok", "free tree ok", "index membership ok"} {
		require.Contains(t, out, stage)
	}
}

func Test_Errors_AreDistinct(t *testing.T) {
	all := []error{ErrNoSpace, ErrBadSize, ErrOverflow, ErrBadConfig, ErrArenaInUse}
	for i, a := range all {
		for j, b := range all {
			if i != j {
				require.False(t, errors.Is(a, b))
			}
		}
	}
}
