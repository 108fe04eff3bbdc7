package alloc

import (
	"fmt"
	"log/slog"

	"github.com/joshuapare/heapkit/internal/format"
)

// Ptr is the arena offset of an allocated block's payload.
//
// Offsets rather than native pointers keep the heap valid when the arena is
// a mapped file and make every link in a free block a plain word.
type Ptr uint32

// Nil is the null payload reference. Offset 0 is the arena padding word and
// never the payload of a block.
const Nil Ptr = 0

// IsNil reports whether p is the null reference.
func (p Ptr) IsNil() bool { return p == Nil }

// maxLargeThreshold caps the small-list array at 510 buckets.
const maxLargeThreshold = 4096

// Config controls an Allocator. The zero value is not valid; start from
// DefaultConfig.
type Config struct {
	// ChunkSize is the minimum number of bytes requested from the arena when
	// no free block fits. Must be a multiple of 8 and >= 16.
	ChunkSize int

	// LargeThreshold is the first block size kept in the free tree. Smaller
	// blocks go to the segregated small lists. Must be a multiple of 8 in
	// [32, 4096].
	LargeThreshold int

	// CheckEveryOp runs Check after every public operation and panics on the
	// first violation.
	CheckEveryOp bool

	// Logger receives debug records. Nil selects a discard logger unless
	// HEAP_LOG_ALLOC is set.
	Logger *slog.Logger

	// Dirty, when set, is told about every metadata word the allocator writes.
	Dirty DirtyTracker
}

// DefaultConfig returns the configuration used when New is given nil.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      format.DefaultChunkSize,
		LargeThreshold: format.DefaultLargeThreshold,
	}
}

// Validate reports whether c can be used to build an Allocator.
func (c *Config) Validate() error {
	if c.ChunkSize < format.MinBlockSize || c.ChunkSize%format.Alignment != 0 {
		return fmt.Errorf("%w: chunk size %d must be a multiple of %d and >= %d",
			ErrBadConfig, c.ChunkSize, format.Alignment, format.MinBlockSize)
	}
	if uint64(c.ChunkSize) > format.MaxBlockSize {
		return fmt.Errorf("%w: chunk size %d exceeds %d", ErrBadConfig, c.ChunkSize, uint32(format.MaxBlockSize))
	}
	t := c.LargeThreshold
	if t < format.MinTreeBlockSize || t > maxLargeThreshold || t%format.Alignment != 0 {
		return fmt.Errorf("%w: large threshold %d must be a multiple of %d in [%d, %d]",
			ErrBadConfig, t, format.Alignment, format.MinTreeBlockSize, maxLargeThreshold)
	}
	return nil
}
