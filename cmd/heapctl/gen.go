package main

import (
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/internal/trace"
)

var (
	genSeed int64
	genOpts = trace.DefaultGenOptions()
)

func init() {
	cmd := newGenCmd()
	f := cmd.Flags()
	f.Int64Var(&genSeed, "seed", 0, "Random seed (0 picks one from the clock)")
	f.IntVar(&genOpts.Ops, "ops", genOpts.Ops, "Random operations before the final frees")
	f.IntVar(&genOpts.MaxLive, "max-live", genOpts.MaxLive, "Maximum live blocks (0 for no limit)")
	f.IntVar(&genOpts.MinSize, "min-size", genOpts.MinSize, "Smallest request in bytes")
	f.IntVar(&genOpts.MaxSize, "max-size", genOpts.MaxSize, "Largest request in bytes")
	f.Float64Var(&genOpts.Free, "free", genOpts.Free, "Fraction of operations that free a block")
	f.Float64Var(&genOpts.Realloc, "realloc", genOpts.Realloc, "Fraction of operations that reallocate a block")
	rootCmd.AddCommand(cmd)
}

func newGenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gen <output>",
		Short: "Generate a random trace",
		Long: `The gen command writes a random, well-formed trace. Outputs ending in
.zst are zstd compressed.

Example:
  heapctl gen random.rep
  heapctl gen --ops 100000 --max-size 65536 --seed 7 big.rep.zst`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGen(args[0])
		},
	}
	return cmd
}

func runGen(path string) error {
	seed := genSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	tr := trace.Generate(rand.New(rand.NewSource(seed)), genOpts)
	if err := trace.WriteFile(path, tr); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(map[string]any{
			"path":           path,
			"seed":           seed,
			"ops":            len(tr.Ops),
			"ids":            tr.NumIDs,
			"suggested_heap": tr.SuggestedHeap,
		})
	}
	printInfo("Wrote %s: %d ops, %d ids (seed %d)\n", path, len(tr.Ops), tr.NumIDs, seed)
	return nil
}
