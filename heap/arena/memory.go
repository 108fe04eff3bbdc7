package arena

import "fmt"

// DefaultLimit is the capacity of a Memory arena created with a zero limit.
const DefaultLimit = 20 << 20

// Memory is an in-process arena with a fixed capacity.
//
// The full capacity is reserved up front, so the backing array never moves and
// slices returned by Bytes stay valid across Extend calls.
type Memory struct {
	data  []byte
	limit int
}

// NewMemory returns an empty arena that can grow to limit bytes.
// A limit <= 0 selects DefaultLimit.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Memory{
		data:  make([]byte, 0, limit),
		limit: limit,
	}
}

// Extend grows the arena by n bytes.
func (m *Memory) Extend(n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: %d", ErrBadSize, n)
	}
	brk := len(m.data)
	if n > m.limit-brk {
		return 0, fmt.Errorf("%w: break=%d request=%d limit=%d", ErrExhausted, brk, n, m.limit)
	}
	m.data = m.data[:brk+n]
	return brk, nil
}

// Bytes returns the arena contents up to the current break.
func (m *Memory) Bytes() []byte { return m.data }

// Len returns the current break.
func (m *Memory) Len() int { return len(m.data) }

// Limit returns the maximum size of the arena.
func (m *Memory) Limit() int { return m.limit }

// Reset zeroes the used region and moves the break back to offset 0.
// Any allocator built on the arena must be discarded first.
func (m *Memory) Reset() {
	clear(m.data)
	m.data = m.data[:0]
}

// SyncRange is a no-op; memory arenas have no backing store.
func (m *Memory) SyncRange(off, n int) error { return nil }
