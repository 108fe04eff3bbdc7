//go:build !heapdebug

package alloc

// debugHeap enables the consistency check after every operation.
// Build with -tags heapdebug to turn it on.
const debugHeap = false
