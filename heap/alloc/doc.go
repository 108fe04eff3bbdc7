// Package alloc implements a boundary-tag heap allocator over a growable arena.
//
// # Overview
//
// Every block carries a one-word header holding its size, its own alloc bit,
// and the alloc bit of the block to its left. Free blocks also carry a footer
// that repeats the header, so a freed block can find a free left neighbour in
// O(1) and merge with it. Allocated blocks have no footer.
//
// Free blocks are indexed two ways:
//
//   - Small lists: one LIFO list per exact size below Config.LargeThreshold
//     (16..40 bytes by default)
//   - Free tree: a binary search tree keyed by size, one node per distinct
//     size, with same-size blocks chained behind the node
//
// A miss in both extends the arena by at least Config.ChunkSize bytes.
//
// # Usage Example
//
//	ar := arena.NewMemory(0)
//	a, err := alloc.New(ar, nil)
//	if err != nil {
//	    return err
//	}
//
//	p, err := a.Malloc(100)
//	if err != nil {
//	    return err
//	}
//	copy(a.Payload(p), data)
//
//	p, err = a.Realloc(p, 400)
//	if err != nil {
//	    return err
//	}
//	a.Free(p)
//
// # Block Layout
//
//	Allocated:  [hdr][payload ...........................]
//	Free:       [hdr][next][prev][left][right][parent]..[ftr]
//
// Links are arena offsets of payloads; 0 means none. Left, right, and parent
// are used only by blocks in the free tree.
//
// # Consistency Checking
//
// Check walks every block and both indexes and reports the first problem as a
// *verify.ValidationError. It runs after every public operation, panicking on
// failure, when any of these is set:
//
//   - the heapdebug build tag
//   - Config.CheckEveryOp
//   - HEAP_CHECK=1 in the environment
//
// HEAP_LOG_ALLOC=1 sends debug logging to stderr when Config.Logger is nil.
//
// # Thread Safety
//
// Allocator is not thread-safe. Callers sharing one must serialise every call.
package alloc
