// Package arena provides the growable byte regions the heap allocator manages.
//
// An Arena only ever grows. The allocator asks for more space with Extend and
// views the whole region through Bytes; it never shrinks or remaps it.
//
// Two implementations are provided:
//
//   - Memory: a fixed-capacity in-process region, the usual choice
//   - File: a region backed by a memory-mapped file (linux and darwin)
//
// Arena instances are not thread-safe.
package arena

import "errors"

var (
	// ErrExhausted indicates the arena cannot grow by the requested amount.
	ErrExhausted = errors.New("arena: exhausted")

	// ErrClosed indicates an operation on a closed arena.
	ErrClosed = errors.New("arena: closed")

	// ErrBadSize indicates a negative or oversized extension request.
	ErrBadSize = errors.New("arena: bad size")
)

// Arena is a contiguous byte region that can only grow.
type Arena interface {
	// Extend grows the region by n bytes and returns the offset at which the
	// new bytes start (the previous break). On failure the region is unchanged.
	Extend(n int) (int, error)

	// Bytes returns the region from offset 0 up to the current break.
	Bytes() []byte
}

// Syncer is implemented by arenas whose contents can be flushed to stable
// storage one range at a time.
type Syncer interface {
	SyncRange(off, n int) error
}
