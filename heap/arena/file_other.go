//go:build !linux && !darwin

package arena

import (
	"errors"
	"runtime"
)

// File is unavailable on this platform.
type File struct{}

// CreateFile reports that file-backed arenas need mmap support.
func CreateFile(path string, maxSize int) (*File, error) {
	return nil, errors.New("arena: file-backed arenas are not supported on " + runtime.GOOS)
}

func (a *File) Extend(n int) (int, error)  { return 0, ErrClosed }
func (a *File) Bytes() []byte              { return nil }
func (a *File) Name() string               { return "" }
func (a *File) SyncRange(off, n int) error { return ErrClosed }
func (a *File) Sync() error                { return ErrClosed }
func (a *File) Close() error               { return nil }
