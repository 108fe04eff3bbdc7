package alloc

import "github.com/joshuapare/heapkit/internal/format"

// coalesce merges the free, unindexed block at bp with any free physical
// neighbours and returns the payload offset of the merged block. Absorbed
// neighbours are removed from their index first. The result is not indexed.
//
// The left neighbour is known to be free from bp's prev-alloc bit, which is
// why allocated blocks can omit their footer.
func (a *Allocator) coalesce(bp uint32) uint32 {
	h := a.header(bp)
	size := h.Size
	next := format.NextBlock(bp, size)
	nh := a.header(next)

	switch {
	case h.PrevAlloc && nh.Alloc:
		return bp

	case h.PrevAlloc && !nh.Alloc:
		a.removeFree(next, nh.Size)
		size += nh.Size
		a.stats.CoalesceNext++

	case !h.PrevAlloc && nh.Alloc:
		prev := format.PrevBlock(a.data, bp)
		ps := a.blockSize(prev)
		a.removeFree(prev, ps)
		size += ps
		bp = prev
		a.stats.CoalescePrev++

	default:
		prev := format.PrevBlock(a.data, bp)
		ps := a.blockSize(prev)
		a.removeFree(prev, ps)
		a.removeFree(next, nh.Size)
		size += ps + nh.Size
		bp = prev
		a.stats.CoalesceBoth++
	}

	a.markFree(bp, size)
	return bp
}
