package dirty

import (
	"context"
	"math/bits"
	"os"

	"github.com/kelindar/bitmap"

	"github.com/joshuapare/heapkit/heap/arena"
)

// Range represents a dirty byte range (absolute arena offsets).
type Range struct {
	Off int // Offset of the first dirty byte (page aligned)
	Len int // Length in bytes (whole pages)
}

// Tracker accumulates dirty pages and flushes them.
type Tracker struct {
	pages    bitmap.Bitmap
	pageSize int
}

// NewTracker creates a tracker using the OS page size.
func NewTracker() *Tracker {
	return NewTrackerWithPageSize(os.Getpagesize())
}

// NewTrackerWithPageSize creates a tracker with an explicit page size, which
// must be a power of two.
func NewTrackerWithPageSize(pageSize int) *Tracker {
	return &Tracker{pageSize: pageSize}
}

// Add records a dirty range.
func (t *Tracker) Add(off, length int) {
	if length <= 0 || off < 0 {
		return
	}
	first := off / t.pageSize
	last := (off + length - 1) / t.pageSize
	for p := first; p <= last; p++ {
		t.pages.Set(uint32(p))
	}
}

// Pages returns the number of dirty pages.
func (t *Tracker) Pages() int {
	return t.pages.Count()
}

// Ranges returns the dirty pages as sorted, non-overlapping, page-aligned runs.
func (t *Tracker) Ranges() []Range {
	var out []Range
	runStart, runEnd := -1, -1
	for wi, w := range t.pages {
		for w != 0 {
			page := wi*64 + bits.TrailingZeros64(w)
			w &= w - 1
			if page == runEnd {
				runEnd++
				continue
			}
			if runStart >= 0 {
				out = append(out, t.pageRange(runStart, runEnd))
			}
			runStart, runEnd = page, page+1
		}
	}
	if runStart >= 0 {
		out = append(out, t.pageRange(runStart, runEnd))
	}
	return out
}

func (t *Tracker) pageRange(start, end int) Range {
	return Range{Off: start * t.pageSize, Len: (end - start) * t.pageSize}
}

// Reset clears all tracked pages.
func (t *Tracker) Reset() {
	clear(t.pages)
}

// Flush syncs every dirty run through s and clears the tracker.
//
// The context is checked between runs. If cancelled part way, the runs already
// flushed are cleared and the rest stay dirty.
func (t *Tracker) Flush(ctx context.Context, s arena.Syncer) error {
	for _, r := range t.Ranges() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.SyncRange(r.Off, r.Len); err != nil {
			return err
		}
		for p := r.Off / t.pageSize; p < (r.Off+r.Len)/t.pageSize; p++ {
			t.pages.Remove(uint32(p))
		}
	}
	return nil
}
