package alloc

// Stats is a snapshot of allocator counters and arena occupancy.
type Stats struct {
	MallocCalls  uint64 // Allocations, including those made by Realloc and Calloc
	FreeCalls    uint64 // Blocks released, including those released by Realloc
	ReallocCalls uint64
	CallocCalls  uint64
	FailedAllocs uint64 // Requests that returned an error

	GrowCalls uint64 // Arena extensions
	GrowBytes uint64 // Bytes added by arena extensions

	Splits       uint64 // Blocks split by place
	CoalesceNext uint64 // Merges with the right neighbour only
	CoalescePrev uint64 // Merges with the left neighbour only
	CoalesceBoth uint64 // Merges with both neighbours
	SmallHits    uint64 // Requests served from a small list
	TreeHits     uint64 // Requests served from the free tree

	LiveBytes     uint64 // Usable bytes in allocated blocks
	PeakLiveBytes uint64 // High-water mark of LiveBytes

	ArenaBytes uint64 // Current arena size
	FreeBytes  uint64 // Bytes in indexed free blocks
	SmallFree  int    // Free blocks in the small lists
	TreeFree   int    // Free blocks in the free tree
}

// Utilization returns peak live bytes over the arena size, or 0 for an
// empty arena.
func (s Stats) Utilization() float64 {
	if s.ArenaBytes == 0 {
		return 0
	}
	return float64(s.PeakLiveBytes) / float64(s.ArenaBytes)
}

// FreeBlocks returns the number of indexed free blocks.
func (s Stats) FreeBlocks() int { return s.SmallFree + s.TreeFree }
