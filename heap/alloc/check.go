package alloc

import (
	"fmt"

	"github.com/kelindar/bitmap"

	"github.com/joshuapare/heapkit/heap/verify"
	"github.com/joshuapare/heapkit/internal/format"
)

// Check validates the whole heap and returns the first violation as a
// *verify.ValidationError.
//
// It walks every block (see verify.Blocks), every small list, and the free
// tree, then confirms that each free block is indexed exactly once. With
// verbose set, one info record is logged per stage.
func (a *Allocator) Check(verbose bool) error {
	sum, err := verify.Blocks(a.data)
	if err != nil {
		return err
	}
	if verbose {
		a.log.Info("check: blocks ok",
			"arena", len(a.data), "blocks", sum.Blocks, "free", sum.FreeBlocks, "free_bytes", sum.FreeBytes)
	}

	var seen bitmap.Bitmap

	smallCount, err := a.checkSmallLists(&seen)
	if err != nil {
		return err
	}
	if verbose {
		a.log.Info("check: small lists ok", "buckets", len(a.small)-1, "blocks", smallCount)
	}

	treeCount, err := a.checkTree(a.root, rootLink, 0, 0, &seen)
	if err != nil {
		return err
	}
	if verbose {
		a.log.Info("check: free tree ok", "blocks", treeCount)
	}

	for _, bp := range sum.Free {
		if !seen.Contains(bp / format.Alignment) {
			return &verify.ValidationError{
				Type:    "Index",
				Message: "free block is not in any free index",
				Offset:  int(bp),
				Details: map[string]any{"header": a.header(bp).String()},
			}
		}
	}
	if indexed := smallCount + treeCount; indexed != sum.FreeBlocks {
		return &verify.ValidationError{
			Type:    "Index",
			Message: fmt.Sprintf("%d blocks indexed but %d free blocks in the arena", indexed, sum.FreeBlocks),
			Offset:  -1,
		}
	}
	if a.stats.SmallFree != smallCount || a.stats.TreeFree != treeCount || a.stats.FreeBytes != sum.FreeBytes {
		return &verify.ValidationError{
			Type:    "Stats",
			Message: "free counters disagree with the indexes",
			Offset:  -1,
			Details: map[string]any{
				"small": a.stats.SmallFree, "small_walked": smallCount,
				"tree": a.stats.TreeFree, "tree_walked": treeCount,
				"free_bytes": a.stats.FreeBytes, "free_bytes_walked": sum.FreeBytes,
			},
		}
	}
	if verbose {
		a.log.Info("check: index membership ok", "indexed", smallCount+treeCount)
	}
	return nil
}

// visit validates that bp names a free block in the arena that no index has
// reached yet, and marks it seen.
func (a *Allocator) visit(bp uint32, where string, seen *bitmap.Bitmap) (format.Header, error) {
	if bp < format.FirstBlock || !format.IsAligned(bp) || uint64(bp)+format.WordSize > uint64(len(a.data)) {
		return format.Header{}, &verify.ValidationError{
			Type:    where,
			Message: fmt.Sprintf("link 0x%X is not a block in the arena", bp),
			Offset:  int(bp),
		}
	}
	if seen.Contains(bp / format.Alignment) {
		return format.Header{}, &verify.ValidationError{
			Type:    where,
			Message: "block reached twice (cycle or block in two indexes)",
			Offset:  int(bp),
		}
	}
	seen.Set(bp / format.Alignment)

	h := a.header(bp)
	if h.Alloc || h.Size < format.MinBlockSize || uint64(bp)+uint64(h.Size) > uint64(len(a.data)) {
		return h, &verify.ValidationError{
			Type:    where,
			Message: "indexed block is not a valid free block",
			Offset:  int(bp),
			Details: map[string]any{"header": h.String()},
		}
	}
	return h, nil
}

func (a *Allocator) checkSmallLists(seen *bitmap.Bitmap) (int, error) {
	count := 0
	for i, head := range a.small {
		want := uint32(i+1) * format.Alignment
		if head != 0 && want < format.MinBlockSize {
			return count, &verify.ValidationError{
				Type:    "SmallList",
				Message: fmt.Sprintf("bucket for size %d is not empty", want),
				Offset:  int(head),
			}
		}
		prev := uint32(0)
		for bp := head; bp != 0; bp = a.next(bp) {
			h, err := a.visit(bp, "SmallList", seen)
			if err != nil {
				return count, err
			}
			if h.Size != want {
				return count, &verify.ValidationError{
					Type:    "SmallList",
					Message: fmt.Sprintf("block of size %d in the bucket for size %d", h.Size, want),
					Offset:  int(bp),
				}
			}
			if got := a.prev(bp); got != prev {
				return count, &verify.ValidationError{
					Type:    "SmallList",
					Message: fmt.Sprintf("prev link 0x%X, expected 0x%X", got, prev),
					Offset:  int(bp),
				}
			}
			prev = bp
			count++
		}
	}
	return count, nil
}

// checkTree validates the subtree at node, whose parent link must be link and
// whose sizes must lie strictly between lo and hi (hi == 0 means unbounded).
// It returns the number of blocks in the subtree, list members included.
func (a *Allocator) checkTree(node uint32, link parentLink, lo, hi uint32, seen *bitmap.Bitmap) (int, error) {
	if node == 0 {
		return 0, nil
	}
	h, err := a.visit(node, "FreeTree", seen)
	if err != nil {
		return 0, err
	}
	size := h.Size

	if size < a.threshold {
		return 0, &verify.ValidationError{
			Type:    "FreeTree",
			Message: fmt.Sprintf("block of size %d is below the large threshold %d", size, a.threshold),
			Offset:  int(node),
		}
	}
	if got := a.parent(node); got != link {
		return 0, &verify.ValidationError{
			Type:    "FreeTree",
			Message: fmt.Sprintf("parent link %s(0x%X), expected %s(0x%X)", got.kind(), got.node(), link.kind(), link.node()),
			Offset:  int(node),
		}
	}
	if size <= lo || (hi != 0 && size >= hi) {
		return 0, &verify.ValidationError{
			Type:    "FreeTree",
			Message: fmt.Sprintf("size %d breaks search order (bounds %d..%d)", size, lo, hi),
			Offset:  int(node),
		}
	}
	if p := a.prev(node); p != 0 {
		return 0, &verify.ValidationError{
			Type:    "FreeTree",
			Message: fmt.Sprintf("tree node has prev link 0x%X", p),
			Offset:  int(node),
		}
	}

	count := 1
	prev := node
	for bp := a.next(node); bp != 0; bp = a.next(bp) {
		mh, err := a.visit(bp, "FreeTree", seen)
		if err != nil {
			return 0, err
		}
		if mh.Size != size {
			return 0, &verify.ValidationError{
				Type:    "FreeTree",
				Message: fmt.Sprintf("list member of size %d under node of size %d", mh.Size, size),
				Offset:  int(bp),
			}
		}
		if got := a.prev(bp); got != prev {
			return 0, &verify.ValidationError{
				Type:    "FreeTree",
				Message: fmt.Sprintf("prev link 0x%X, expected 0x%X", got, prev),
				Offset:  int(bp),
			}
		}
		if k := a.parent(bp).kind(); k != slotNone {
			return 0, &verify.ValidationError{
				Type:    "FreeTree",
				Message: fmt.Sprintf("list member carries parent kind %s", k),
				Offset:  int(bp),
			}
		}
		prev = bp
		count++
	}

	n, err := a.checkTree(a.left(node), makeLink(node, slotLeft), lo, size, seen)
	if err != nil {
		return 0, err
	}
	count += n
	n, err = a.checkTree(a.right(node), makeLink(node, slotRight), size, hi, seen)
	if err != nil {
		return 0, err
	}
	return count + n, nil
}
