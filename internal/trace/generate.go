package trace

import "math/rand"

// GenOptions shapes a generated trace.
type GenOptions struct {
	Ops     int     // random operations before the final frees
	MaxLive int     // cap on live blocks; 0 means no cap
	MinSize int     // smallest request
	MaxSize int     // largest request
	Realloc float64 // fraction of operations that reallocate a live block
	Free    float64 // fraction of operations that free a live block
	Weight  int     // header weight
}

// DefaultGenOptions returns a mix of small and large requests with frequent
// frees and occasional reallocs.
func DefaultGenOptions() GenOptions {
	return GenOptions{
		Ops:     1000,
		MaxLive: 200,
		MinSize: 1,
		MaxSize: 4096,
		Realloc: 0.15,
		Free:    0.35,
		Weight:  1,
	}
}

// Generate builds a random, well-formed trace: every id is allocated once,
// reallocated or freed only while live, and freed by the end. The suggested
// heap size is the peak of live requested bytes.
func Generate(rng *rand.Rand, opts GenOptions) *Trace {
	minSize := max(opts.MinSize, 0)
	maxSize := max(opts.MaxSize, minSize)
	size := func() int { return minSize + rng.Intn(maxSize-minSize+1) }

	t := &Trace{Weight: opts.Weight}
	var live []int
	sizes := map[int]int{}
	cur, peak := 0, 0

	free := func(i int) {
		id := live[i]
		t.Ops = append(t.Ops, Op{Kind: OpFree, ID: id})
		cur -= sizes[id]
		delete(sizes, id)
		live[i] = live[len(live)-1]
		live = live[:len(live)-1]
	}

	for range opts.Ops {
		r := rng.Float64()
		switch {
		case len(live) > 0 && r < opts.Free:
			free(rng.Intn(len(live)))
		case len(live) > 0 && r < opts.Free+opts.Realloc:
			id := live[rng.Intn(len(live))]
			n := size()
			t.Ops = append(t.Ops, Op{Kind: OpRealloc, ID: id, Size: n})
			cur += n - sizes[id]
			sizes[id] = n
		case opts.MaxLive > 0 && len(live) >= opts.MaxLive:
			free(rng.Intn(len(live)))
		default:
			id := t.NumIDs
			t.NumIDs++
			n := size()
			t.Ops = append(t.Ops, Op{Kind: OpAlloc, ID: id, Size: n})
			live = append(live, id)
			sizes[id] = n
			cur += n
		}
		peak = max(peak, cur)
	}
	for len(live) > 0 {
		free(rng.Intn(len(live)))
	}

	t.SuggestedHeap = peak
	return t
}
