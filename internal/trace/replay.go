package trace

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/format"
)

var (
	// ErrUnknownID indicates a free of an id that is not live.
	ErrUnknownID = errors.New("trace: id is not live")

	// ErrIDInUse indicates an alloc of an id that is still live.
	ErrIDInUse = errors.New("trace: id is already live")

	// ErrMisaligned indicates a payload that is not 8-byte aligned.
	ErrMisaligned = errors.New("trace: misaligned payload")

	// ErrOutOfArena indicates a payload that extends past the arena.
	ErrOutOfArena = errors.New("trace: payload outside the arena")

	// ErrOverlap indicates two live payloads overlap.
	ErrOverlap = errors.New("trace: payloads overlap")

	// ErrCorrupt indicates a payload lost the bytes written into it.
	ErrCorrupt = errors.New("trace: payload corrupted")
)

// OpError reports the operation at which a replay failed.
type OpError struct {
	Index int
	Op    Op
	Err   error
}

func (e *OpError) Error() string { return fmt.Sprintf("op %d (%s): %v", e.Index, e.Op, e.Err) }
func (e *OpError) Unwrap() error { return e.Err }

// ReplayOptions controls Replay.
type ReplayOptions struct {
	// Check runs the allocator consistency check after every operation.
	Check bool

	// Logger receives one debug record per failed operation. Nil discards.
	Logger *slog.Logger
}

// Result summarises a replay.
type Result struct {
	Ops         int
	Mallocs     int
	Reallocs    int
	Frees       int
	PeakPayload int           // high-water mark of live requested bytes
	ArenaBytes  int           // arena size after the replay
	Utilization float64       // PeakPayload / ArenaBytes
	Elapsed     time.Duration // wall time of the replay
}

type span struct {
	lo, hi uint32
	id     int
}

type replayer struct {
	a     *alloc.Allocator
	ptrs  []alloc.Ptr
	sizes []int
	alive []bool
	spans []span // live payloads sorted by lo
	live  int
}

// Replay runs t against a. Every payload is filled with a pattern derived
// from its id and verified before it is reallocated or freed; payload
// alignment, bounds, and overlap are checked on every allocation.
func Replay(a *alloc.Allocator, t *Trace, opts ReplayOptions) (Result, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	rp := &replayer{
		a:     a,
		ptrs:  make([]alloc.Ptr, t.NumIDs),
		sizes: make([]int, t.NumIDs),
		alive: make([]bool, t.NumIDs),
	}

	var res Result
	start := time.Now()
	for i, op := range t.Ops {
		if err := rp.step(op, &res); err != nil {
			log.Debug("replay failed", "trace", t.Name, "index", i, "op", op.String(), "err", err)
			res.Elapsed = time.Since(start)
			return res, &OpError{Index: i, Op: op, Err: err}
		}
		if opts.Check {
			if err := a.Check(false); err != nil {
				res.Elapsed = time.Since(start)
				return res, &OpError{Index: i, Op: op, Err: err}
			}
		}
		res.Ops++
		res.PeakPayload = max(res.PeakPayload, rp.live)
	}
	res.Elapsed = time.Since(start)

	res.ArenaBytes = len(a.Arena().Bytes())
	if res.ArenaBytes > 0 {
		res.Utilization = float64(res.PeakPayload) / float64(res.ArenaBytes)
	}
	return res, nil
}

func (rp *replayer) step(op Op, res *Result) error {
	if op.ID < 0 || op.ID >= len(rp.ptrs) {
		return fmt.Errorf("%w: id %d", ErrUnknownID, op.ID)
	}
	id := op.ID

	switch op.Kind {
	case OpAlloc:
		if rp.alive[id] {
			return fmt.Errorf("%w: id %d", ErrIDInUse, id)
		}
		p, err := rp.a.Malloc(op.Size)
		if err != nil {
			return err
		}
		res.Mallocs++
		return rp.track(id, p, op.Size)

	case OpRealloc:
		if !rp.alive[id] {
			return fmt.Errorf("%w: id %d", ErrUnknownID, id)
		}
		old := rp.ptrs[id]
		if err := rp.verify(id); err != nil {
			return err
		}
		p, err := rp.a.Realloc(old, op.Size)
		if err != nil {
			return err
		}
		res.Reallocs++
		oldSize := rp.sizes[id]
		rp.untrack(id)
		if p != alloc.Nil {
			if got := rp.a.Payload(p)[:min(oldSize, op.Size)]; !hasPattern(got, id) {
				return fmt.Errorf("%w: realloc lost the contents of id %d", ErrCorrupt, id)
			}
		}
		return rp.track(id, p, op.Size)

	case OpFree:
		if !rp.alive[id] {
			return fmt.Errorf("%w: id %d", ErrUnknownID, id)
		}
		if err := rp.verify(id); err != nil {
			return err
		}
		rp.a.Free(rp.ptrs[id])
		res.Frees++
		rp.untrack(id)
		return nil
	}
	return fmt.Errorf("%w: unknown op %s", ErrSyntax, op.Kind)
}

// track records a new payload for id after checking its placement, and fills
// it with the id's pattern.
func (rp *replayer) track(id int, p alloc.Ptr, size int) error {
	rp.ptrs[id] = p
	rp.sizes[id] = size
	rp.alive[id] = true
	rp.live += size
	if p == alloc.Nil || size == 0 {
		return nil
	}

	lo := uint32(p)
	hi := lo + uint32(size)
	if !format.IsAligned(lo) {
		return fmt.Errorf("%w: id %d at 0x%X", ErrMisaligned, id, lo)
	}
	if !buf.Has(rp.a.Arena().Bytes(), int(lo), size) {
		return fmt.Errorf("%w: id %d at [0x%X,0x%X)", ErrOutOfArena, id, lo, hi)
	}

	i, _ := rp.find(lo)
	if i > 0 && rp.spans[i-1].hi > lo {
		prev := rp.spans[i-1]
		return fmt.Errorf("%w: id %d [0x%X,0x%X) and id %d [0x%X,0x%X)", ErrOverlap, prev.id, prev.lo, prev.hi, id, lo, hi)
	}
	if i < len(rp.spans) && rp.spans[i].lo < hi {
		next := rp.spans[i]
		return fmt.Errorf("%w: id %d [0x%X,0x%X) and id %d [0x%X,0x%X)", ErrOverlap, id, lo, hi, next.id, next.lo, next.hi)
	}
	rp.spans = slices.Insert(rp.spans, i, span{lo: lo, hi: hi, id: id})

	fillPattern(rp.a.Payload(p)[:size], id)
	return nil
}

func (rp *replayer) untrack(id int) {
	p := rp.ptrs[id]
	rp.live -= rp.sizes[id]
	rp.ptrs[id] = alloc.Nil
	rp.sizes[id] = 0
	rp.alive[id] = false
	if p == alloc.Nil {
		return
	}
	if i, ok := rp.find(uint32(p)); ok {
		rp.spans = slices.Delete(rp.spans, i, i+1)
	}
}

// find returns the index of the span starting at lo, or where it would go.
func (rp *replayer) find(lo uint32) (int, bool) {
	return slices.BinarySearchFunc(rp.spans, lo, func(s span, lo uint32) int {
		return cmp.Compare(s.lo, lo)
	})
}

// verify checks that id's payload still holds its pattern.
func (rp *replayer) verify(id int) error {
	p, size := rp.ptrs[id], rp.sizes[id]
	if p == alloc.Nil || size == 0 {
		return nil
	}
	if !hasPattern(rp.a.Payload(p)[:size], id) {
		return fmt.Errorf("%w: id %d at 0x%X", ErrCorrupt, id, uint32(p))
	}
	return nil
}

func patternByte(id, i int) byte {
	return byte(id*131) ^ byte(i)
}

func fillPattern(b []byte, id int) {
	for i := range b {
		b[i] = patternByte(id, i)
	}
}

func hasPattern(b []byte, id int) bool {
	for i, v := range b {
		if v != patternByte(id, i) {
			return false
		}
	}
	return true
}
