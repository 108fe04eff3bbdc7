package format

import "errors"

var (
	// ErrTruncated indicates the buffer lacked the bytes required for a structure.
	ErrTruncated = errors.New("format: truncated buffer")
	// ErrMisaligned indicates a block offset or size that is not a multiple of Alignment.
	ErrMisaligned = errors.New("format: misaligned block")
)
