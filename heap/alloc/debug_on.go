//go:build heapdebug

package alloc

const debugHeap = true
