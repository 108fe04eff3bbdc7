package alloc

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joshuapare/heapkit/heap/arena"
	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/format"
)

// Allocator is a boundary-tag allocator over a single arena.
//
// Free blocks smaller than the large threshold live in exact-size LIFO lists;
// larger ones live in a size-keyed tree of same-size lists. Freed blocks are
// merged with free neighbours at once, so no two adjacent blocks are ever
// both free.
//
// An Allocator is not safe for concurrent use.
type Allocator struct {
	ar   arena.Arena
	data []byte // ar.Bytes(), refreshed after every extension
	dt   DirtyTracker
	log  *slog.Logger

	chunk     uint32
	threshold uint32
	check     bool

	small []uint32 // small list heads, see smallBucket
	root  uint32   // free tree root

	stats Stats

	// Test hook: called before every arena extension (nil in production)
	onGrow func(n uint32)
}

// New lays out an empty heap in ar and returns an allocator for it.
// The arena must be empty. A nil cfg selects DefaultConfig.
func New(ar arena.Arena, cfg *Config) (*Allocator, error) {
	if cfg == nil {
		def := DefaultConfig()
		cfg = &def
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if n := len(ar.Bytes()); n != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrArenaInUse, n)
	}

	a := &Allocator{
		ar:        ar,
		dt:        cfg.Dirty,
		log:       cfg.Logger,
		chunk:     uint32(cfg.ChunkSize),
		threshold: uint32(cfg.LargeThreshold),
		check:     debugHeap || cfg.CheckEveryOp || checkFromEnv(),
		small:     make([]uint32, cfg.LargeThreshold/format.Alignment-1),
	}
	if a.log == nil {
		a.log = defaultLogger()
	}

	if _, err := ar.Extend(format.InitialSize); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSpace, err)
	}
	a.data = ar.Bytes()

	a.setWord(0, 0)
	a.setWord(format.PrologueHeader, format.PrologueWord)
	a.setWord(format.Prologue, format.PrologueWord)
	epi := format.Epilogue
	epi.PrevAlloc = true
	a.setHeader(format.FirstBlock, epi)

	a.log.Debug("heap initialised",
		"chunk", a.chunk, "threshold", a.threshold, "check", a.check)
	return a, nil
}

func defaultLogger() *slog.Logger {
	if os.Getenv("HEAP_LOG_ALLOC") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.DiscardHandler)
}

func checkFromEnv() bool {
	v := os.Getenv("HEAP_CHECK")
	return v != "" && v != "0"
}

// Malloc returns a block with at least size usable bytes. The payload is
// 8-byte aligned and not zeroed. A size of 0 returns Nil and no error.
func (a *Allocator) Malloc(size int) (Ptr, error) {
	p, err := a.malloc(size)
	a.afterOp("malloc")
	return p, err
}

// Free releases the block at p. Freeing Nil is a no-op. Freeing anything
// other than a live pointer from this allocator corrupts the heap.
func (a *Allocator) Free(p Ptr) {
	if p == Nil {
		return
	}
	a.free(p)
	a.afterOp("free")
}

// Realloc moves the contents of p into a block of at least size bytes.
//
// Realloc(p, 0) frees p and returns Nil. Realloc(Nil, n) is Malloc(n).
// Otherwise a new block is always allocated, min(UsableSize(p), size) bytes
// are copied, and p is freed. On failure p is left untouched.
func (a *Allocator) Realloc(p Ptr, size int) (Ptr, error) {
	a.stats.ReallocCalls++
	np, err := a.realloc(p, size)
	a.afterOp("realloc")
	return np, err
}

// Calloc allocates count*elemSize bytes and zeroes the whole usable region.
func (a *Allocator) Calloc(count, elemSize int) (Ptr, error) {
	a.stats.CallocCalls++
	p, err := a.calloc(count, elemSize)
	a.afterOp("calloc")
	return p, err
}

// Payload returns the usable region of the allocated block at p, or nil for
// Nil. The slice aliases the arena and stays valid until p is freed.
func (a *Allocator) Payload(p Ptr) []byte {
	if p == Nil {
		return nil
	}
	bp := uint32(p)
	end := bp + a.usable(bp)
	return a.data[bp:end:end]
}

// UsableSize returns the payload capacity of the allocated block at p.
func (a *Allocator) UsableSize(p Ptr) int {
	if p == Nil {
		return 0
	}
	return int(a.usable(uint32(p)))
}

// Stats returns a snapshot of the allocator counters.
func (a *Allocator) Stats() Stats {
	s := a.stats
	s.ArenaBytes = uint64(len(a.data))
	return s
}

// Arena returns the arena the allocator manages.
func (a *Allocator) Arena() arena.Arena {
	return a.ar
}

func (a *Allocator) malloc(size int) (Ptr, error) {
	a.stats.MallocCalls++
	if size < 0 {
		a.stats.FailedAllocs++
		return Nil, fmt.Errorf("%w: %d", ErrBadSize, size)
	}
	if size == 0 {
		return Nil, nil
	}

	asize, ok := format.BlockSize(size)
	if !ok {
		a.stats.FailedAllocs++
		return Nil, fmt.Errorf("%w: request of %d bytes exceeds the block limit", ErrNoSpace, size)
	}

	bp := a.findFit(asize)
	if bp == 0 {
		var err error
		bp, err = a.extend(max(asize, a.chunk))
		if err != nil {
			a.stats.FailedAllocs++
			a.log.Debug("allocation failed", "size", size, "block", asize, "err", err)
			return Nil, fmt.Errorf("%w: %w", ErrNoSpace, err)
		}
	}
	a.place(bp, asize)

	a.stats.LiveBytes += uint64(a.usable(bp))
	a.stats.PeakLiveBytes = max(a.stats.PeakLiveBytes, a.stats.LiveBytes)
	return Ptr(bp), nil
}

// findFit removes and returns a free block of at least asize bytes, or 0.
// Small requests try only their exact bucket before the tree.
func (a *Allocator) findFit(asize uint32) uint32 {
	if a.isSmall(asize) {
		if bp := a.smallTake(asize); bp != 0 {
			a.stats.SmallFree--
			a.stats.FreeBytes -= uint64(asize)
			a.stats.SmallHits++
			return bp
		}
	}
	if bp := a.treeBestFit(asize); bp != 0 {
		a.removeFree(bp, a.blockSize(bp))
		a.stats.TreeHits++
		return bp
	}
	return 0
}

// extend grows the arena by n bytes and returns the new free block, merged
// with a free block that ended at the old epilogue. The block is not indexed.
func (a *Allocator) extend(n uint32) (uint32, error) {
	if uint64(len(a.data))+uint64(n) > format.MaxBlockSize {
		return 0, fmt.Errorf("%w: arena would exceed %d bytes", arena.ErrExhausted, uint32(format.MaxBlockSize))
	}
	if a.onGrow != nil {
		a.onGrow(n)
	}
	brk, err := a.ar.Extend(int(n))
	if err != nil {
		return 0, err
	}
	a.data = a.ar.Bytes()

	// The old epilogue header becomes the new block's header.
	bp := uint32(brk)
	a.markFree(bp, n)
	a.setHeader(format.NextBlock(bp, n), format.Epilogue)

	a.stats.GrowCalls++
	a.stats.GrowBytes += uint64(n)
	a.log.Debug("arena extended", "bytes", n, "arena", len(a.data))

	return a.coalesce(bp), nil
}

// place allocates asize bytes at the start of the unindexed free block bp.
// A remainder of at least MinBlockSize is split off and indexed.
func (a *Allocator) place(bp, asize uint32) {
	size := a.blockSize(bp)
	if rem := size - asize; rem >= format.MinBlockSize {
		a.markAlloc(bp, asize)
		nb := format.NextBlock(bp, asize)
		h := format.Header{Size: rem, PrevAlloc: true}
		a.setHeader(nb, h)
		a.setFooter(nb, h)
		a.insertFree(nb, rem)
		a.stats.Splits++
		if !a.isSmall(size) {
			a.log.Debug("split", "block", bp, "size", size, "take", asize, "rest", rem)
		}
		return
	}
	a.markAlloc(bp, size)
	a.setPrevAlloc(format.NextBlock(bp, size), true)
}

func (a *Allocator) free(p Ptr) {
	a.stats.FreeCalls++
	bp := uint32(p)
	size := a.blockSize(bp)
	a.stats.LiveBytes -= uint64(size - format.WordSize)

	a.markFree(bp, size)
	a.setPrevAlloc(format.NextBlock(bp, size), false)
	bp = a.coalesce(bp)
	a.insertFree(bp, a.blockSize(bp))
}

func (a *Allocator) realloc(p Ptr, size int) (Ptr, error) {
	if size < 0 {
		a.stats.FailedAllocs++
		return Nil, fmt.Errorf("%w: %d", ErrBadSize, size)
	}
	if size == 0 {
		if p != Nil {
			a.free(p)
		}
		return Nil, nil
	}
	if p == Nil {
		return a.malloc(size)
	}

	np, err := a.malloc(size)
	if err != nil {
		return Nil, err
	}
	// a.data may have been refreshed by an extension; read both through it.
	n := min(int(a.usable(uint32(p))), size)
	copy(a.data[np:int(np)+n], a.data[p:int(p)+n])
	a.free(p)
	return np, nil
}

func (a *Allocator) calloc(count, elemSize int) (Ptr, error) {
	if count < 0 || elemSize < 0 {
		a.stats.FailedAllocs++
		return Nil, fmt.Errorf("%w: %d x %d", ErrBadSize, count, elemSize)
	}
	total, ok := buf.MulOverflowSafe(count, elemSize)
	if !ok {
		a.stats.FailedAllocs++
		return Nil, fmt.Errorf("%w: %d x %d", ErrOverflow, count, elemSize)
	}
	p, err := a.malloc(total)
	if err != nil || p == Nil {
		return p, err
	}
	clear(a.Payload(p))
	return p, nil
}

// afterOp runs the consistency check when checking is enabled.
func (a *Allocator) afterOp(op string) {
	if !a.check {
		return
	}
	if err := a.Check(false); err != nil {
		panic(fmt.Sprintf("alloc: heap inconsistent after %s: %v", op, err))
	}
}
