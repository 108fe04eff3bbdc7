package alloc

import "github.com/joshuapare/heapkit/internal/format"

// Word access. Every write goes through setWord so the dirty tracker sees it.

func (a *Allocator) word(off uint32) uint32 {
	return format.ReadU32(a.data, int(off))
}

func (a *Allocator) setWord(off, v uint32) {
	format.PutU32(a.data, int(off), v)
	if a.dt != nil {
		a.dt.Add(int(off), format.WordSize)
	}
}

// Block headers and footers.

func (a *Allocator) header(bp uint32) format.Header {
	return format.ReadHeader(a.data, format.HeaderOffset(bp))
}

func (a *Allocator) blockSize(bp uint32) uint32 {
	return a.header(bp).Size
}

func (a *Allocator) setHeader(bp uint32, h format.Header) {
	a.setWord(format.HeaderOffset(bp), h.Encode())
}

func (a *Allocator) setFooter(bp uint32, h format.Header) {
	a.setWord(format.FooterOffset(bp, h.Size), h.Encode())
}

// markFree writes the header and footer of a free block of the given size at
// bp. The prev-alloc bit already in the header is kept.
func (a *Allocator) markFree(bp, size uint32) {
	h := a.header(bp)
	h.Size = size
	h.Alloc = false
	a.setHeader(bp, h)
	a.setFooter(bp, h)
}

// markAlloc writes the header of an allocated block, keeping prev-alloc.
func (a *Allocator) markAlloc(bp, size uint32) {
	h := a.header(bp)
	h.Size = size
	h.Alloc = true
	a.setHeader(bp, h)
}

// setPrevAlloc updates the prev-alloc bit of bp. Free blocks get the footer
// rewritten too so header and footer stay identical.
func (a *Allocator) setPrevAlloc(bp uint32, prevAlloc bool) {
	h := a.header(bp)
	if h.PrevAlloc == prevAlloc {
		return
	}
	h.PrevAlloc = prevAlloc
	a.setHeader(bp, h)
	if !h.Alloc && h.Size != 0 {
		a.setFooter(bp, h)
	}
}

// usable returns the payload bytes of the allocated block at bp.
func (a *Allocator) usable(bp uint32) uint32 {
	return a.blockSize(bp) - format.WordSize
}

// Free-block link fields.

func (a *Allocator) next(bp uint32) uint32  { return a.word(bp + format.NextLinkOffset) }
func (a *Allocator) prev(bp uint32) uint32  { return a.word(bp + format.PrevLinkOffset) }
func (a *Allocator) left(bp uint32) uint32  { return a.word(bp + format.LeftChildOffset) }
func (a *Allocator) right(bp uint32) uint32 { return a.word(bp + format.RightChildOffset) }

func (a *Allocator) parent(bp uint32) parentLink {
	return parentLink(a.word(bp + format.ParentLinkOffset))
}

func (a *Allocator) setNext(bp, v uint32)  { a.setWord(bp+format.NextLinkOffset, v) }
func (a *Allocator) setPrev(bp, v uint32)  { a.setWord(bp+format.PrevLinkOffset, v) }
func (a *Allocator) setLeft(bp, v uint32)  { a.setWord(bp+format.LeftChildOffset, v) }
func (a *Allocator) setRight(bp, v uint32) { a.setWord(bp+format.RightChildOffset, v) }

func (a *Allocator) setParent(bp uint32, l parentLink) {
	a.setWord(bp+format.ParentLinkOffset, uint32(l))
}

// Free index dispatch.

func (a *Allocator) isSmall(size uint32) bool {
	return size < a.threshold
}

func (a *Allocator) insertFree(bp, size uint32) {
	if a.isSmall(size) {
		a.smallInsert(bp, size)
		a.stats.SmallFree++
	} else {
		a.treeInsert(bp, size)
		a.stats.TreeFree++
	}
	a.stats.FreeBytes += uint64(size)
}

func (a *Allocator) removeFree(bp, size uint32) {
	if a.isSmall(size) {
		a.smallRemove(bp, size)
		a.stats.SmallFree--
	} else {
		a.treeRemove(bp)
		a.stats.TreeFree--
	}
	a.stats.FreeBytes -= uint64(size)
}
