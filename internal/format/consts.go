// Package format holds the in-band block encoding shared by every part of the
// heap: word layout, alignment, the header/footer value object, and the fixed
// offsets of the prologue and epilogue. Keeping the encoding here means the
// allocator, the checker, and the tests all agree on one definition.
package format

const (
	// WordSize is the size of a header, footer, or list link.
	WordSize = 4

	// Alignment is the unit every block size and payload offset is a multiple of.
	Alignment = 8

	// AlignmentMask is the bitmask used for aligning to 8-byte boundaries (Alignment - 1).
	AlignmentMask = Alignment - 1

	// MinBlockSize is the smallest legal block: header, next link, prev link, footer.
	MinBlockSize = 2 * Alignment

	// MinTreeBlockSize is the smallest block able to carry the tree fields
	// (next, prev, left, right, parent) between its header and footer.
	MinTreeBlockSize = 32

	// DefaultLargeThreshold is the first block size stored in the free tree.
	// Smaller blocks (16..40 bytes) live in the segregated small lists.
	DefaultLargeThreshold = 48

	// DefaultChunkSize is the minimum number of bytes requested from the arena
	// when no free block fits.
	DefaultChunkSize = 64

	// MaxBlockSize bounds block sizes so that offsets and sizes fit in a word.
	MaxBlockSize = 1<<32 - Alignment
)

// Arena layout. Offset 0 is a padding word so that no block ever starts at the
// arena base; offset 0 doubles as the "no link" sentinel.
const (
	// PrologueHeader is the offset of the prologue block header.
	PrologueHeader = WordSize

	// Prologue is the payload offset of the prologue block. The prologue is an
	// allocated 8-byte block with a header and footer and no payload.
	Prologue = 2 * WordSize

	// PrologueSize is the size of the prologue block.
	PrologueSize = Alignment

	// FirstBlock is the payload offset of the first real block.
	FirstBlock = Prologue + PrologueSize

	// InitialSize is the number of bytes written at initialisation: padding,
	// prologue header, prologue footer, and the epilogue header.
	InitialSize = 4 * WordSize
)

// Free-block payload layout, relative to the payload offset.
const (
	// NextLinkOffset holds the arena offset of the next block in a free list.
	NextLinkOffset = 0

	// PrevLinkOffset holds the arena offset of the previous block in a free list.
	PrevLinkOffset = 4

	// LeftChildOffset holds the left child of a tree node.
	LeftChildOffset = 8

	// RightChildOffset holds the right child of a tree node.
	RightChildOffset = 12

	// ParentLinkOffset holds the packed parent link of a tree block.
	ParentLinkOffset = 16
)
