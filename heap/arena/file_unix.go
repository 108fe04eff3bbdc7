//go:build linux || darwin

package arena

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// File is an arena backed by a memory-mapped file.
//
// The mapping reserves maxSize bytes once; Extend only grows the file with
// ftruncate, so the mapping never moves and pages past the break are never
// touched.
type File struct {
	f    *os.File
	data []byte // whole reservation
	brk  int
}

// CreateFile creates (or truncates) the file at path and maps it as an arena
// that can grow to maxSize bytes. A maxSize <= 0 selects DefaultLimit.
func CreateFile(path string, maxSize int) (*File, error) {
	if maxSize <= 0 {
		maxSize = DefaultLimit
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, err
	}

	data, err := unix.Mmap(int(f.Fd()), 0, maxSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("arena: mmap failed: %w", err)
	}

	return &File{f: f, data: data}, nil
}

// Extend grows the backing file by n bytes.
func (a *File) Extend(n int) (int, error) {
	if a.f == nil {
		return 0, ErrClosed
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %d", ErrBadSize, n)
	}
	if n > len(a.data)-a.brk {
		return 0, fmt.Errorf("%w: break=%d request=%d limit=%d", ErrExhausted, a.brk, n, len(a.data))
	}
	newSize := a.brk + n
	if err := a.f.Truncate(int64(newSize)); err != nil {
		return 0, fmt.Errorf("%w: truncate: %w", ErrExhausted, err)
	}
	brk := a.brk
	a.brk = newSize
	return brk, nil
}

// Bytes returns the mapped region up to the current break.
func (a *File) Bytes() []byte {
	if a.data == nil {
		return nil
	}
	return a.data[:a.brk]
}

// Name returns the path of the backing file.
func (a *File) Name() string {
	if a.f == nil {
		return ""
	}
	return a.f.Name()
}

// SyncRange flushes [off, off+n) to the backing file. The start is rounded
// down to a page boundary as msync requires.
func (a *File) SyncRange(off, n int) error {
	if a.data == nil {
		return ErrClosed
	}
	if off < 0 || n < 0 || off > a.brk {
		return fmt.Errorf("%w: sync range off=%d n=%d", ErrBadSize, off, n)
	}
	end := min(off+n, a.brk)
	start := off &^ (os.Getpagesize() - 1)
	if end <= start {
		return nil
	}
	return unix.Msync(a.data[start:end], unix.MS_SYNC)
}

// Sync flushes the whole region to the backing file.
func (a *File) Sync() error {
	return a.SyncRange(0, a.brk)
}

// Close unmaps the region and closes the file. The file keeps its contents.
func (a *File) Close() error {
	var errs []error
	if a.data != nil {
		if err := unix.Munmap(a.data); err != nil && !errors.Is(err, unix.EINVAL) {
			errs = append(errs, err)
		}
		a.data = nil
	}
	if a.f != nil {
		errs = append(errs, a.f.Close())
		a.f = nil
	}
	a.brk = 0
	return errors.Join(errs...)
}
