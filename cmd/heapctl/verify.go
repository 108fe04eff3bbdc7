package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/heapkit/heap/verify"
)

func init() {
	rootCmd.AddCommand(newVerifyCmd())
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <arena-file>",
		Short: "Validate the block structure of a saved arena",
		Long: `The verify command walks every block of an arena written by
"heapctl replay --arena-file" and reports the first structural problem.

Example:
  heapctl verify heap.bin
  heapctl verify heap.bin --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(args[0])
		},
	}
	return cmd
}

// VerifyReport is the output of the verify command.
type VerifyReport struct {
	Path       string `json:"path"`
	Bytes      int    `json:"bytes"`
	Blocks     int    `json:"blocks"`
	FreeBlocks int    `json:"free_blocks"`
	FreeBytes  uint64 `json:"free_bytes"`
	AllocBytes uint64 `json:"alloc_bytes"`
	Valid      bool   `json:"valid"`
	Error      string `json:"error,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

func runVerify(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read arena: %w", err)
	}

	sum, verr := verify.Blocks(data)
	rep := VerifyReport{
		Path:       path,
		Bytes:      len(data),
		Blocks:     sum.Blocks,
		FreeBlocks: sum.FreeBlocks,
		FreeBytes:  sum.FreeBytes,
		AllocBytes: sum.AllocBytes,
		Valid:      verr == nil,
	}
	var ve *verify.ValidationError
	if errors.As(verr, &ve) {
		rep.Error = ve.Error()
		rep.Offset = ve.Offset
	}

	if jsonOut {
		if err := printJSON(rep); err != nil {
			return err
		}
	} else {
		p := message.NewPrinter(language.English)
		printInfo("%s", p.Sprintf("%s: %d bytes, %d blocks (%d free, %d free bytes)\n",
			path, rep.Bytes, rep.Blocks, rep.FreeBlocks, rep.FreeBytes))
		if ve != nil {
			printVerbose("Details: %v\n", ve.Details)
		}
	}
	return verr
}
