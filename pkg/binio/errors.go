// Package binio provides a bounded binary cursor for chunk files.
//
// Reader and Writer carry a byte order that can be switched for a scope,
// record the first error they hit and keep returning zero values after it,
// so decoders check Err once after a run of reads.
package binio

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every decoder built on this package.
var (
	// ErrFormat means the input is not a valid container or chunk.
	ErrFormat = errors.New("format error")
	// ErrNotSupported means the input is well formed but uses a variant
	// that is deliberately not implemented.
	ErrNotSupported = errors.New("not supported")
	// ErrInvalidData means a structural invariant of the data is violated.
	ErrInvalidData = errors.New("invalid data")

	// ErrTruncated is returned when a read runs past the end of the data.
	ErrTruncated = fmt.Errorf("%w: truncated data", ErrFormat)
	// ErrPosition is returned when a position assertion fails.
	ErrPosition = fmt.Errorf("%w: unexpected position", ErrFormat)
)

// Range is a half-open byte range [Start, End) of absolute offsets.
type Range struct {
	Start int
	End   int
}

// Contains reports whether offset lies inside the range.
func (r Range) Contains(offset int) bool {
	return offset >= r.Start && offset < r.End
}

// Len returns the number of bytes covered.
func (r Range) Len() int {
	return r.End - r.Start
}

// String formats the range as "[start,end)".
func (r Range) String() string {
	return fmt.Sprintf("[%#x,%#x)", r.Start, r.End)
}
