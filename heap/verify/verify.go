package verify

import (
	"fmt"

	"github.com/joshuapare/heapkit/internal/format"
)

// ValidationError describes the first structural violation found in an arena.
type ValidationError struct {
	Type    string
	Message string
	Offset  int
	Details map[string]any
	Err     error // format sentinel, if the violation maps to one
}

func (e *ValidationError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s at offset 0x%X: %s", e.Type, e.Offset, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Summary describes a structurally valid arena.
type Summary struct {
	Blocks     int      // real blocks, excluding prologue and epilogue
	FreeBlocks int      // blocks with the alloc bit clear
	FreeBytes  uint64   // total size of free blocks
	AllocBytes uint64   // total size of allocated blocks, headers included
	Free       []uint32 // payload offsets of free blocks in address order
}

// AllInvariants validates the whole arena and discards the summary.
func AllInvariants(data []byte) error {
	_, err := Blocks(data)
	return err
}

// Prologue validates the padding word, prologue header, and prologue footer.
func Prologue(data []byte) error {
	if len(data) < format.InitialSize {
		return &ValidationError{
			Type:    "Prologue",
			Message: fmt.Sprintf("arena too small: %d bytes (need %d)", len(data), format.InitialSize),
			Offset:  -1,
			Err:     format.ErrTruncated,
		}
	}
	for _, off := range []int{format.PrologueHeader, format.Prologue} {
		if w := format.ReadU32(data, off); w != format.PrologueWord {
			return &ValidationError{
				Type:    "Prologue",
				Message: fmt.Sprintf("bad prologue word 0x%X (expected 0x%X)", w, format.PrologueWord),
				Offset:  off,
			}
		}
	}
	return nil
}

// Blocks walks every block between the prologue and the epilogue.
func Blocks(data []byte) (Summary, error) {
	var sum Summary
	if err := Prologue(data); err != nil {
		return sum, err
	}

	end := uint32(len(data))
	bp := uint32(format.FirstBlock)
	prevAlloc := true // the prologue
	prevFree := uint32(0)

	for {
		hdrOff := format.HeaderOffset(bp)
		if hdrOff+format.WordSize > end {
			return sum, &ValidationError{
				Type:    "Epilogue",
				Message: "block list runs past the arena end without an epilogue",
				Offset:  int(hdrOff),
				Err:     format.ErrTruncated,
			}
		}
		h := format.ReadHeader(data, hdrOff)

		if h.PrevAlloc != prevAlloc {
			return sum, &ValidationError{
				Type:    "PrevAlloc",
				Message: fmt.Sprintf("prev_alloc=%t but left neighbour alloc=%t", h.PrevAlloc, prevAlloc),
				Offset:  int(hdrOff),
				Details: map[string]any{"header": h.String()},
			}
		}

		if h.Size == 0 {
			return sum, epilogue(data, hdrOff, h)
		}

		if !format.IsAligned(bp) {
			return sum, &ValidationError{
				Type:    "Alignment",
				Message: fmt.Sprintf("payload 0x%X is not 8-byte aligned", bp),
				Offset:  int(bp),
				Err:     format.ErrMisaligned,
			}
		}
		if h.Size < format.MinBlockSize || !format.IsAligned(h.Size) {
			return sum, &ValidationError{
				Type:    "BlockSize",
				Message: fmt.Sprintf("illegal block size %d", h.Size),
				Offset:  int(hdrOff),
				Details: map[string]any{"header": h.String()},
			}
		}
		if uint64(hdrOff)+uint64(h.Size) > uint64(end)-format.WordSize {
			return sum, &ValidationError{
				Type:    "BlockSize",
				Message: fmt.Sprintf("block of size %d overruns the epilogue", h.Size),
				Offset:  int(hdrOff),
				Details: map[string]any{"arena": end},
			}
		}

		sum.Blocks++
		if h.Alloc {
			sum.AllocBytes += uint64(h.Size)
		} else {
			if prevFree != 0 {
				return sum, &ValidationError{
					Type:    "Coalescing",
					Message: fmt.Sprintf("adjacent free blocks at 0x%X and 0x%X", prevFree, bp),
					Offset:  int(bp),
				}
			}
			ftrOff := format.FooterOffset(bp, h.Size)
			f := format.ReadHeader(data, ftrOff)
			if f.Size != h.Size || f.Alloc != h.Alloc {
				return sum, &ValidationError{
					Type:    "Footer",
					Message: "header and footer disagree",
					Offset:  int(ftrOff),
					Details: map[string]any{"header": h.String(), "footer": f.String()},
				}
			}
			sum.FreeBlocks++
			sum.FreeBytes += uint64(h.Size)
			sum.Free = append(sum.Free, bp)
		}

		if h.Alloc {
			prevFree = 0
		} else {
			prevFree = bp
		}
		prevAlloc = h.Alloc
		bp = format.NextBlock(bp, h.Size)
	}
}

func epilogue(data []byte, off uint32, h format.Header) error {
	if !h.Alloc {
		return &ValidationError{
			Type:    "Epilogue",
			Message: "epilogue header is not marked allocated",
			Offset:  int(off),
		}
	}
	if int(off) != len(data)-format.WordSize {
		return &ValidationError{
			Type:    "Epilogue",
			Message: fmt.Sprintf("epilogue found before the arena end (arena is %d bytes)", len(data)),
			Offset:  int(off),
		}
	}
	return nil
}
