// Package chunk implements the CryTek chunk container: the file header and
// chunk table, a (type, version) registry of chunk decoders and the typed
// chunk catalog used by character models and animation databases.
package chunk

import (
	"fmt"

	"github.com/Faultbox/chunkforge/pkg/binio"
)

// Error taxonomy. Every error returned by this package matches one of
// ErrFormat, ErrNotSupported or ErrInvalidData with errors.Is.
var (
	ErrFormat       = binio.ErrFormat
	ErrNotSupported = binio.ErrNotSupported
	ErrInvalidData  = binio.ErrInvalidData

	ErrBadMagic         = fmt.Errorf("%w: invalid magic, expected \"CryTek\"", ErrFormat)
	ErrBadType          = fmt.Errorf("%w: unknown file type", ErrFormat)
	ErrBadVersion       = fmt.Errorf("%w: unsupported file version", ErrFormat)
	ErrUnsupportedChunk = fmt.Errorf("%w: unsupported chunk type/version", ErrFormat)
	ErrSizeMismatch     = fmt.Errorf("%w: chunk size mismatch", ErrFormat)
	ErrDuplicateID      = fmt.Errorf("%w: duplicate chunk id", ErrFormat)
	ErrRoundTrip        = fmt.Errorf("%w: re-encoded bytes differ", ErrFormat)
	ErrMissingChunk     = fmt.Errorf("%w: referenced chunk not found", ErrInvalidData)
)

// Range is a half-open range of absolute file offsets.
type Range = binio.Range

func errCount(what string, got, want int) error {
	return fmt.Errorf("%w: %d %s, want %d", ErrInvalidData, got, what, want)
}
