package dirty

// DirtyTracker is the minimal interface for tracking modified byte ranges.
//
// It is intended for components that only report writes (the allocator) and
// do not manage flushing themselves.
type DirtyTracker interface {
	// Add marks a byte range as dirty.
	// off is the offset from the start of the arena, length is the number of bytes.
	Add(off, length int)
}
