// Package metrics exposes allocator statistics as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshuapare/heapkit/heap/alloc"
)

// StatsSource provides allocator statistics. The collector calls Stats from
// the scraping goroutine, so a source wrapping a shared allocator must take
// the caller's lock.
type StatsSource interface {
	Stats() alloc.Stats
}

// StatsFunc adapts a function to StatsSource.
type StatsFunc func() alloc.Stats

// Stats calls f.
func (f StatsFunc) Stats() alloc.Stats { return f() }

type collector struct {
	src StatsSource

	calls       *prometheus.Desc
	failed      *prometheus.Desc
	growCalls   *prometheus.Desc
	growBytes   *prometheus.Desc
	splits      *prometheus.Desc
	coalesces   *prometheus.Desc
	hits        *prometheus.Desc
	liveBytes   *prometheus.Desc
	peakBytes   *prometheus.Desc
	arenaBytes  *prometheus.Desc
	freeBytes   *prometheus.Desc
	freeBlocks  *prometheus.Desc
	utilization *prometheus.Desc
}

// NewCollector returns a collector that reads src on every scrape. Metric
// names are prefixed with namespace (for example "heap_arena_bytes").
func NewCollector(src StatsSource, namespace string) prometheus.Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &collector{
		src:         src,
		calls:       desc("calls_total", "Allocator calls by operation.", "op"),
		failed:      desc("failed_allocs_total", "Allocation requests that returned an error."),
		growCalls:   desc("grow_calls_total", "Arena extensions."),
		growBytes:   desc("grow_bytes_total", "Bytes added to the arena by extensions."),
		splits:      desc("splits_total", "Free blocks split to satisfy a request."),
		coalesces:   desc("coalesce_total", "Merges of a freed block with its neighbours.", "case"),
		hits:        desc("index_hits_total", "Requests served from a free index.", "index"),
		liveBytes:   desc("live_bytes", "Usable bytes in allocated blocks."),
		peakBytes:   desc("peak_live_bytes", "High-water mark of live bytes."),
		arenaBytes:  desc("arena_bytes", "Current arena size in bytes."),
		freeBytes:   desc("free_bytes", "Bytes held in free blocks."),
		freeBlocks:  desc("free_blocks", "Free blocks by index.", "index"),
		utilization: desc("utilization_ratio", "Peak live bytes over arena size."),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.calls, c.failed, c.growCalls, c.growBytes, c.splits, c.coalesces, c.hits,
		c.liveBytes, c.peakBytes, c.arenaBytes, c.freeBytes, c.freeBlocks, c.utilization,
	} {
		ch <- d
	}
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	counter(c.calls, s.MallocCalls, "malloc")
	counter(c.calls, s.FreeCalls, "free")
	counter(c.calls, s.ReallocCalls, "realloc")
	counter(c.calls, s.CallocCalls, "calloc")
	counter(c.failed, s.FailedAllocs)
	counter(c.growCalls, s.GrowCalls)
	counter(c.growBytes, s.GrowBytes)
	counter(c.splits, s.Splits)
	counter(c.coalesces, s.CoalesceNext, "next")
	counter(c.coalesces, s.CoalescePrev, "prev")
	counter(c.coalesces, s.CoalesceBoth, "both")
	counter(c.hits, s.SmallHits, "small")
	counter(c.hits, s.TreeHits, "tree")

	gauge(c.liveBytes, float64(s.LiveBytes))
	gauge(c.peakBytes, float64(s.PeakLiveBytes))
	gauge(c.arenaBytes, float64(s.ArenaBytes))
	gauge(c.freeBytes, float64(s.FreeBytes))
	gauge(c.freeBlocks, float64(s.SmallFree), "small")
	gauge(c.freeBlocks, float64(s.TreeFree), "tree")
	gauge(c.utilization, s.Utilization())
}
