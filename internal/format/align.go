package format

// Align8 returns n aligned up to the next 8-byte boundary.
//
// Example:
//
//	Align8(1)  = 8
//	Align8(8)  = 8
//	Align8(9)  = 16
//	Align8(16) = 16
func Align8(n int) int {
	return (n + AlignmentMask) & ^AlignmentMask
}

// Align8U32 returns n aligned up to the next 8-byte boundary.
// uint32 version for block sizes.
func Align8U32(n uint32) uint32 {
	return (n + AlignmentMask) & ^uint32(AlignmentMask)
}

// IsAligned reports whether off is a multiple of the alignment unit.
func IsAligned(off uint32) bool {
	return off&AlignmentMask == 0
}

// BlockSize converts a requested payload size into a block size: header plus
// payload rounded up to the alignment unit, floored at MinBlockSize.
//
// Example:
//
//	BlockSize(1)   = 16
//	BlockSize(8)   = 16
//	BlockSize(12)  = 16
//	BlockSize(13)  = 24
//	BlockSize(100) = 104
//
// The second result is false when the block would exceed MaxBlockSize.
func BlockSize(payload int) (uint32, bool) {
	if payload <= Alignment {
		return MinBlockSize, true
	}
	if uint64(payload) > MaxBlockSize-WordSize {
		return 0, false
	}
	return uint32(Align8(payload + WordSize)), true
}
