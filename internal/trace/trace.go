// Package trace reads, writes, generates, and replays allocator traces.
//
// A trace is plain text. Four header numbers come first (suggested heap size,
// number of ids, number of ops, weight), then one operation per line:
//
//	a <id> <size>   allocate size bytes and call the block id
//	r <id> <size>   reallocate block id to size bytes
//	f <id>          free block id
//
// Blank lines and text after '#' are ignored. Files ending in .zst are zstd
// compressed.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// OpKind is the operation letter of a trace line.
type OpKind byte

const (
	OpAlloc   OpKind = 'a'
	OpRealloc OpKind = 'r'
	OpFree    OpKind = 'f'
)

func (k OpKind) String() string {
	switch k {
	case OpAlloc:
		return "alloc"
	case OpRealloc:
		return "realloc"
	case OpFree:
		return "free"
	}
	return fmt.Sprintf("OpKind(%q)", byte(k))
}

// Op is one trace operation. Size is unused for OpFree.
type Op struct {
	Kind OpKind
	ID   int
	Size int
}

func (o Op) String() string {
	if o.Kind == OpFree {
		return fmt.Sprintf("%c %d", o.Kind, o.ID)
	}
	return fmt.Sprintf("%c %d %d", o.Kind, o.ID, o.Size)
}

// Trace is a parsed trace file.
type Trace struct {
	Name          string // file name, if read from disk
	SuggestedHeap int    // advisory heap size from the header
	NumIDs        int    // ids are in [0, NumIDs)
	Weight        int    // scoring weight from the header
	Ops           []Op
}

var (
	// ErrSyntax indicates a malformed trace line or header.
	ErrSyntax = errors.New("trace: syntax error")

	// ErrOpCount indicates the header op count disagrees with the body.
	ErrOpCount = errors.New("trace: op count mismatch")
)

// LineError reports a problem on one line of a trace.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *LineError) Unwrap() error { return e.Err }

const headerFields = 4

// Parse reads a trace from r. Every bad line is reported; the returned error,
// if any, is a *multierror.Error of *LineError values.
func Parse(r io.Reader) (*Trace, error) {
	var (
		t       Trace
		errs    *multierror.Error
		header  []int
		numOps  int
		lineNum int
	)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNum++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if len(header) < headerFields {
			for _, f := range fields {
				n, err := strconv.Atoi(f)
				if err != nil || n < 0 {
					errs = multierror.Append(errs, &LineError{Line: lineNum, Err: fmt.Errorf("%w: bad header value %q", ErrSyntax, f)})
					n = 0
				}
				if len(header) < headerFields {
					header = append(header, n)
				}
			}
			if len(header) == headerFields {
				t.SuggestedHeap, t.NumIDs, numOps, t.Weight = header[0], header[1], header[2], header[3]
				t.Ops = make([]Op, 0, min(numOps, 1<<16))
			}
			continue
		}

		op, err := parseOp(fields, t.NumIDs)
		if err != nil {
			errs = multierror.Append(errs, &LineError{Line: lineNum, Err: err})
			continue
		}
		t.Ops = append(t.Ops, op)
	}
	if err := sc.Err(); err != nil {
		errs = multierror.Append(errs, err)
	}

	if len(header) < headerFields {
		errs = multierror.Append(errs, fmt.Errorf("%w: missing header (got %d of %d values)", ErrSyntax, len(header), headerFields))
	} else if len(t.Ops) != numOps && errs.ErrorOrNil() == nil {
		errs = multierror.Append(errs, fmt.Errorf("%w: header says %d, found %d", ErrOpCount, numOps, len(t.Ops)))
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &t, nil
}

func parseOp(fields []string, numIDs int) (Op, error) {
	if len(fields[0]) != 1 {
		return Op{}, fmt.Errorf("%w: unknown op %q", ErrSyntax, fields[0])
	}
	op := Op{Kind: OpKind(fields[0][0])}

	want := 3
	switch op.Kind {
	case OpAlloc, OpRealloc:
	case OpFree:
		want = 2
	default:
		return Op{}, fmt.Errorf("%w: unknown op %q", ErrSyntax, fields[0])
	}
	if len(fields) != want {
		return Op{}, fmt.Errorf("%w: %s takes %d fields, got %d", ErrSyntax, op.Kind, want-1, len(fields)-1)
	}

	id, err := strconv.Atoi(fields[1])
	if err != nil || id < 0 || id >= numIDs {
		return Op{}, fmt.Errorf("%w: id %q out of range [0, %d)", ErrSyntax, fields[1], numIDs)
	}
	op.ID = id

	if want == 3 {
		size, err := strconv.Atoi(fields[2])
		if err != nil || size < 0 {
			return Op{}, fmt.Errorf("%w: bad size %q", ErrSyntax, fields[2])
		}
		op.Size = size
	}
	return op, nil
}
