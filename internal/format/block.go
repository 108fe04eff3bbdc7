package format

import "fmt"

// Header is the decoded form of a block header or footer word.
//
// Word layout (little-endian uint32):
//
//	Bits   Description
//	31..3  Block size in bytes, including the header (multiple of Alignment)
//	1      Previous block allocated
//	0      This block allocated
//
// PrevAlloc is valid only while the left neighbour's Alloc bit is kept in step
// with it. Allocated blocks carry no footer, so PrevAlloc is the only way to
// learn whether the left neighbour may be merged.
type Header struct {
	Size      uint32
	Alloc     bool
	PrevAlloc bool
}

const (
	allocBit     = 0x1
	prevAllocBit = 0x2
	sizeMask     = ^uint32(AlignmentMask)
)

// Encode packs h into a header word. Size bits below Alignment are dropped.
func (h Header) Encode() uint32 {
	w := h.Size & sizeMask
	if h.Alloc {
		w |= allocBit
	}
	if h.PrevAlloc {
		w |= prevAllocBit
	}
	return w
}

// String renders the header in the form used by checker diagnostics.
func (h Header) String() string {
	return fmt.Sprintf("size=%d alloc=%t prev_alloc=%t", h.Size, h.Alloc, h.PrevAlloc)
}

// DecodeHeader unpacks a header word.
func DecodeHeader(w uint32) Header {
	return Header{
		Size:      w & sizeMask,
		Alloc:     w&allocBit != 0,
		PrevAlloc: w&prevAllocBit != 0,
	}
}

// ReadHeader decodes the word at off.
func ReadHeader(b []byte, off uint32) Header {
	return DecodeHeader(ReadU32(b, int(off)))
}

// WriteHeader encodes h at off.
func WriteHeader(b []byte, off uint32, h Header) {
	PutU32(b, int(off), h.Encode())
}

// HeaderOffset returns the offset of the header of the block whose payload
// starts at bp.
func HeaderOffset(bp uint32) uint32 {
	return bp - WordSize
}

// FooterOffset returns the offset of the footer of a free block of the given
// size whose payload starts at bp.
func FooterOffset(bp, size uint32) uint32 {
	return bp + size - Alignment
}

// NextBlock returns the payload offset of the block physically after the
// block of the given size at bp.
func NextBlock(bp, size uint32) uint32 {
	return bp + size
}

// PrevBlock returns the payload offset of the block physically before bp.
// The previous block must be free: its footer is read from the word that
// precedes bp's header.
func PrevBlock(b []byte, bp uint32) uint32 {
	return bp - ReadHeader(b, bp-Alignment).Size
}

// Epilogue is the zero-size allocated header that terminates the block list.
var Epilogue = Header{Size: 0, Alloc: true}

// PrologueWord is the encoded prologue header and footer.
var PrologueWord = Header{Size: PrologueSize, Alloc: true}.Encode()
