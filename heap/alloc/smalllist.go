package alloc

import "github.com/joshuapare/heapkit/internal/format"

// Segregated small lists: one intrusive doubly linked LIFO list per exact
// block size below the large threshold. Bucket i holds blocks of size
// (i+1)*8; bucket 0 is never used because the minimum block is 16 bytes.

func smallBucket(size uint32) int {
	return int(size/format.Alignment) - 1
}

// smallInsert pushes bp onto the front of its bucket.
func (a *Allocator) smallInsert(bp, size uint32) {
	i := smallBucket(size)
	head := a.small[i]
	a.setNext(bp, head)
	a.setPrev(bp, 0)
	if head != 0 {
		a.setPrev(head, bp)
	}
	a.small[i] = bp
}

// smallRemove unlinks bp from its bucket.
func (a *Allocator) smallRemove(bp, size uint32) {
	next, prev := a.next(bp), a.prev(bp)
	if prev != 0 {
		a.setNext(prev, next)
	} else {
		a.small[smallBucket(size)] = next
	}
	if next != 0 {
		a.setPrev(next, prev)
	}
}

// smallTake pops the head of the bucket for size, or returns 0 when empty.
func (a *Allocator) smallTake(size uint32) uint32 {
	bp := a.small[smallBucket(size)]
	if bp != 0 {
		a.smallRemove(bp, size)
	}
	return bp
}
