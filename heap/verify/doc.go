// Package verify validates the in-band block structure of a heap arena.
//
// # Overview
//
// The checks here only look at the bytes of the arena. They walk every block
// from the prologue to the epilogue and confirm the layout the allocator
// depends on:
//
//   - Prologue: padding word followed by an allocated 8-byte block
//   - Blocks: 8-byte aligned payloads, sizes that are multiples of 8 and >= 16,
//     no block running past the arena end
//   - Boundary tags: free blocks carry a footer identical to the header
//   - Prev-alloc bit: mirrors the alloc bit of the left neighbour
//   - Coalescing: no two physically adjacent blocks are both free
//   - Epilogue: a zero-size allocated header in the last word of the arena
//
// Free-index checks (list symmetry, tree order) need the allocator's roots and
// live in the alloc package; they build on the Summary returned here.
//
// # Quick Start
//
//	sum, err := verify.Blocks(a.Arena().Bytes())
//	if err != nil {
//	    var verr *verify.ValidationError
//	    if errors.As(err, &verr) {
//	        fmt.Printf("%s at 0x%X: %s\n", verr.Type, verr.Offset, verr.Message)
//	    }
//	}
//	fmt.Printf("%d blocks, %d free\n", sum.Blocks, sum.FreeBlocks)
//
// # ValidationError
//
// All checks return *ValidationError on failure:
//
//	type ValidationError struct {
//	    Type    string         // Error category (e.g., "Footer")
//	    Message string         // Human-readable description
//	    Offset  int            // Arena offset where the error occurred (-1 if N/A)
//	    Details map[string]any // Additional context
//	}
//
// Only the first violation is reported.
package verify
