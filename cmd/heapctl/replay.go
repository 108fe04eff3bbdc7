package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/heap/arena"
	"github.com/joshuapare/heapkit/heap/dirty"
	"github.com/joshuapare/heapkit/heap/metrics"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/trace"
)

var (
	replayCheck     bool
	replayChunk     int
	replayThreshold int
	replayLimit     int
	replayArenaFile string
	replayMetrics   bool
)

func init() {
	cmd := newReplayCmd()
	cmd.Flags().BoolVar(&replayCheck, "check", false, "Run the heap consistency check after every operation")
	cmd.Flags().IntVar(&replayChunk, "chunk", format.DefaultChunkSize, "Minimum arena extension in bytes")
	cmd.Flags().IntVar(&replayThreshold, "threshold", format.DefaultLargeThreshold, "First block size kept in the free tree")
	cmd.Flags().IntVar(&replayLimit, "limit", arena.DefaultLimit, "Maximum arena size in bytes")
	cmd.Flags().StringVar(&replayArenaFile, "arena-file", "", "Back the arena with this file (one trace only)")
	cmd.Flags().BoolVar(&replayMetrics, "metrics", false, "Print allocator metrics in Prometheus text format")
	rootCmd.AddCommand(cmd)
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <trace>...",
		Short: "Replay allocation traces",
		Long: `The replay command runs each trace against a fresh heap. Every payload
is filled with a pattern and verified before it is freed or reallocated;
payload alignment, bounds, and overlap are checked on every allocation.

Example:
  heapctl replay traces/*.rep
  heapctl replay --check --threshold 64 amptjp-bal.rep.zst
  heapctl replay --arena-file heap.bin --metrics random.rep`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(args)
		},
	}
	return cmd
}

// ReplayReport is the per-trace output of the replay command.
type ReplayReport struct {
	Trace       string        `json:"trace"`
	Ops         int           `json:"ops"`
	PeakPayload int           `json:"peak_payload"`
	ArenaBytes  int           `json:"arena_bytes"`
	Utilization float64       `json:"utilization"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	Stats       alloc.Stats   `json:"stats"`
	Error       string        `json:"error,omitempty"`
}

func runReplay(paths []string) error {
	if replayArenaFile != "" && len(paths) != 1 {
		return errors.New("--arena-file needs exactly one trace")
	}

	reports := make([]ReplayReport, 0, len(paths))
	failed := 0
	for _, path := range paths {
		rep, err := replayOne(path)
		if err != nil {
			failed++
			rep.Error = err.Error()
			logger.Error("replay failed", "trace", path, "err", err)
		}
		reports = append(reports, rep)
	}

	if jsonOut {
		if err := printJSON(reports); err != nil {
			return err
		}
	} else {
		printReports(os.Stdout, reports)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d traces failed", failed, len(paths))
	}
	return nil
}

func replayOne(path string) (ReplayReport, error) {
	rep := ReplayReport{Trace: path}

	tr, err := trace.Open(path)
	if err != nil {
		return rep, err
	}
	printVerbose("Loaded %s: %d ops, %d ids\n", path, len(tr.Ops), tr.NumIDs)

	ar, tracker, closeArena, err := openArena()
	if err != nil {
		return rep, err
	}

	cfg := alloc.DefaultConfig()
	cfg.ChunkSize = replayChunk
	cfg.LargeThreshold = replayThreshold
	cfg.Logger = logger
	if tracker != nil {
		cfg.Dirty = tracker
	}
	a, err := alloc.New(ar, &cfg)
	if err != nil {
		return rep, errors.Join(err, closeArena())
	}

	res, replayErr := trace.Replay(a, tr, trace.ReplayOptions{Check: replayCheck, Logger: logger})
	rep.Ops = res.Ops
	rep.PeakPayload = res.PeakPayload
	rep.ArenaBytes = res.ArenaBytes
	rep.Utilization = res.Utilization
	rep.Elapsed = res.Elapsed
	rep.Stats = a.Stats()

	if replayMetrics && !jsonOut {
		if err := writeMetrics(os.Stdout, a); err != nil {
			replayErr = errors.Join(replayErr, err)
		}
	}
	return rep, errors.Join(replayErr, closeArena())
}

// openArena returns the arena for one replay, a dirty tracker when the arena
// is file-backed, and a function that flushes and releases it.
func openArena() (arena.Arena, *dirty.Tracker, func() error, error) {
	if replayArenaFile == "" {
		return arena.NewMemory(replayLimit), nil, func() error { return nil }, nil
	}

	fa, err := arena.CreateFile(replayArenaFile, replayLimit)
	if err != nil {
		return nil, nil, nil, err
	}
	tracker := dirty.NewTracker()
	closeFn := func() error {
		pages := tracker.Pages()
		err := tracker.Flush(context.Background(), fa)
		logger.Debug("arena flushed", "file", fa.Name(), "pages", pages, "bytes", len(fa.Bytes()))
		return errors.Join(err, fa.Close())
	}
	return fa, tracker, closeFn, nil
}

func writeMetrics(w io.Writer, a *alloc.Allocator) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewCollector(a, "heap")); err != nil {
		return err
	}
	mfs, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func printReports(w io.Writer, reports []ReplayReport) {
	if quiet {
		return
	}
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "%-28s %10s %12s %12s %7s %12s\n", "TRACE", "OPS", "PEAK", "ARENA", "UTIL", "TIME")

	var totalOps int
	var totalUtil float64
	var ok int
	for _, r := range reports {
		if r.Error != "" {
			p.Fprintf(w, "%-28s FAILED: %s\n", r.Trace, r.Error)
			continue
		}
		p.Fprintf(w, "%-28s %10d %12d %12d %6.1f%% %12v\n",
			r.Trace, r.Ops, r.PeakPayload, r.ArenaBytes, 100*r.Utilization, r.Elapsed.Round(time.Microsecond))
		totalOps += r.Ops
		totalUtil += r.Utilization
		ok++
	}
	if ok > 1 {
		p.Fprintf(w, "%-28s %10d %12s %12s %6.1f%%\n", "TOTAL", totalOps, "", "", 100*totalUtil/float64(ok))
	}
}
