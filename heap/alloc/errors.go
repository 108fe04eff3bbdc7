package alloc

import "errors"

var (
	// ErrNoSpace indicates that no free block was large enough and the arena
	// could not be extended.
	ErrNoSpace = errors.New("alloc: out of arena space")

	// ErrBadSize indicates a negative request size.
	ErrBadSize = errors.New("alloc: bad request size")

	// ErrOverflow indicates that count * elementSize in Calloc overflows.
	ErrOverflow = errors.New("alloc: size overflow")

	// ErrBadConfig indicates an invalid Config passed to New.
	ErrBadConfig = errors.New("alloc: bad config")

	// ErrArenaInUse indicates New was given an arena that already holds data.
	ErrArenaInUse = errors.New("alloc: arena is not empty")
)
