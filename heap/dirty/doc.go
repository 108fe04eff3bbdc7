// Package dirty provides page-level dirty tracking for file-backed heaps.
//
// # Overview
//
// The allocator writes block headers, footers, and free-list links in place.
// When the arena is a memory-mapped file, those writes only reach disk once the
// touched pages are flushed. A Tracker records which pages have been written
// and flushes them as coalesced runs.
//
// # Usage
//
//	ar, _ := arena.CreateFile("heap.bin", 64<<20)
//	dt := dirty.NewTracker()
//	h, _ := alloc.New(ar, &alloc.Config{Dirty: dt})
//
//	p, _ := h.Malloc(256)
//	copy(h.Payload(p), data)
//	dt.Add(int(p), len(data)) // payload writes are the caller's to report
//
//	err := dt.Flush(ctx, ar)
//
// # Page-Level Granularity
//
// A 1-byte change marks its whole page dirty. Pages are kept in a bitmap, so
// repeated writes to the same page cost one bit.
//
// Trackers are not thread-safe.
package dirty
