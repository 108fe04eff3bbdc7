package verify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/format"
)

type testBlock struct {
	size  uint32
	alloc bool
}

// buildArena lays out padding, prologue, the given blocks, and an epilogue,
// keeping prev-alloc bits and footers consistent.
func buildArena(t *testing.T, blocks ...testBlock) []byte {
	t.Helper()
	n := format.InitialSize
	for _, b := range blocks {
		n += int(b.size)
	}
	data := make([]byte, n)
	format.PutU32(data, format.PrologueHeader, format.PrologueWord)
	format.PutU32(data, format.Prologue, format.PrologueWord)

	bp := uint32(format.FirstBlock)
	prevAlloc := true
	for _, b := range blocks {
		h := format.Header{Size: b.size, Alloc: b.alloc, PrevAlloc: prevAlloc}
		format.WriteHeader(data, format.HeaderOffset(bp), h)
		if !b.alloc {
			format.WriteHeader(data, format.FooterOffset(bp, b.size), h)
		}
		prevAlloc = b.alloc
		bp += b.size
	}
	format.WriteHeader(data, format.HeaderOffset(bp), format.Header{Alloc: true, PrevAlloc: prevAlloc})
	return data
}

func requireValidation(t *testing.T, err error, typ string) *ValidationError {
	t.Helper()
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected *ValidationError, got %T", err)
	require.Equal(t, typ, verr.Type, err.Error())
	return verr
}

func TestBlocks_EmptyHeap(t *testing.T) {
	sum, err := Blocks(buildArena(t))
	require.NoError(t, err)
	require.Zero(t, sum.Blocks)
	require.Empty(t, sum.Free)
}

func TestBlocks_Summary(t *testing.T) {
	data := buildArena(t,
		testBlock{size: 16, alloc: true},
		testBlock{size: 48, alloc: false},
		testBlock{size: 104, alloc: true},
		testBlock{size: 24, alloc: false},
	)

	sum, err := Blocks(data)
	require.NoError(t, err)
	require.Equal(t, 4, sum.Blocks)
	require.Equal(t, 2, sum.FreeBlocks)
	require.Equal(t, uint64(72), sum.FreeBytes)
	require.Equal(t, uint64(120), sum.AllocBytes)
	require.Equal(t, []uint32{32, 184}, sum.Free)
}

func TestPrologue_TooSmall(t *testing.T) {
	err := Prologue(make([]byte, 8))
	requireValidation(t, err, "Prologue")
	require.ErrorIs(t, err, format.ErrTruncated)
}

func TestPrologue_Corrupt(t *testing.T) {
	data := buildArena(t)
	format.PutU32(data, format.Prologue, 0x8)
	verr := requireValidation(t, Prologue(data), "Prologue")
	require.Equal(t, format.Prologue, verr.Offset)
}

func TestBlocks_FooterMismatch(t *testing.T) {
	data := buildArena(t, testBlock{size: 32, alloc: false}, testBlock{size: 16, alloc: true})
	format.PutU32(data, int(format.FooterOffset(format.FirstBlock, 32)), 0x18)

	verr := requireValidation(t, AllInvariants(data), "Footer")
	require.Contains(t, verr.Details, "footer")
}

func TestBlocks_AdjacentFree(t *testing.T) {
	data := buildArena(t, testBlock{size: 16, alloc: false}, testBlock{size: 16, alloc: false})
	err := AllInvariants(data)
	verr := requireValidation(t, err, "Coalescing")
	require.Equal(t, format.FirstBlock+16, verr.Offset)
	require.Contains(t, err.Error(), "adjacent free blocks")
}

func TestBlocks_PrevAllocMismatch(t *testing.T) {
	data := buildArena(t, testBlock{size: 16, alloc: true}, testBlock{size: 24, alloc: true})
	// Clear the prev-alloc bit of the second block.
	format.WriteHeader(data, format.HeaderOffset(format.FirstBlock+16), format.Header{Size: 24, Alloc: true})

	requireValidation(t, AllInvariants(data), "PrevAlloc")
}

func TestBlocks_IllegalSize(t *testing.T) {
	data := buildArena(t, testBlock{size: 24, alloc: true})
	format.WriteHeader(data, format.HeaderOffset(format.FirstBlock), format.Header{Size: 8, Alloc: true, PrevAlloc: true})

	requireValidation(t, AllInvariants(data), "BlockSize")
}

func TestBlocks_Overrun(t *testing.T) {
	data := buildArena(t, testBlock{size: 24, alloc: true})
	format.WriteHeader(data, format.HeaderOffset(format.FirstBlock), format.Header{Size: 64, Alloc: true, PrevAlloc: true})

	requireValidation(t, AllInvariants(data), "BlockSize")
}

func TestBlocks_EpilogueNotAllocated(t *testing.T) {
	data := buildArena(t, testBlock{size: 16, alloc: true})
	format.WriteHeader(data, uint32(len(data)-format.WordSize), format.Header{PrevAlloc: true})

	requireValidation(t, AllInvariants(data), "Epilogue")
}

func TestBlocks_EpilogueTooEarly(t *testing.T) {
	data := buildArena(t, testBlock{size: 16, alloc: true})
	data = append(data, make([]byte, 8)...)

	requireValidation(t, AllInvariants(data), "Epilogue")
}

func TestValidationError_Format(t *testing.T) {
	err := &ValidationError{Type: "Footer", Message: "bad", Offset: 0x20}
	require.Equal(t, "Footer at offset 0x20: bad", err.Error())

	err = &ValidationError{Type: "Prologue", Message: "small", Offset: -1}
	require.Equal(t, "Prologue: small", err.Error())
}
