// Package keys implements the compressed animation key codecs stored in
// controller chunks: position keys, the quaternion key layouts and the time
// key layouts.
package keys

import (
	"fmt"

	"github.com/Faultbox/chunkforge/pkg/binio"
)

// Key codec errors.
var (
	ErrUnknownFormat     = fmt.Errorf("%w: unknown key format", binio.ErrFormat)
	ErrUnsupportedFormat = fmt.Errorf("%w: key format", binio.ErrNotSupported)
	ErrTicksDecreasing   = fmt.Errorf("%w: key times decrease", binio.ErrInvalidData)
	ErrTickRange         = fmt.Errorf("%w: key time not representable", binio.ErrInvalidData)
	ErrBitsetMismatch    = fmt.Errorf("%w: bitset header disagrees with flagged ticks", binio.ErrInvalidData)
)

// Format tags a position or rotation key pool entry.
type Format uint32

// Key formats in on-disk enum order.
const (
	NoCompress            Format = 0
	NoCompressQuat        Format = 1
	NoCompressVec3        Format = 2
	ShortInt3Quat         Format = 3
	SmallTree32BitQuat    Format = 4
	SmallTree48BitQuat    Format = 5
	SmallTree64BitQuat    Format = 6
	PolarQuat             Format = 7
	SmallTree64BitExtQuat Format = 8
	Automatic             Format = 9
)

// FormatCount is the number of key format tags; controller chunks store one
// count per tag.
const FormatCount = 10

// RotationFormats lists the quaternion layouts this package can read and write.
var RotationFormats = []Format{
	NoCompressQuat,
	ShortInt3Quat,
	SmallTree32BitQuat,
	SmallTree48BitQuat,
	SmallTree64BitQuat,
	SmallTree64BitExtQuat,
}

// String returns the format name.
func (f Format) String() string {
	switch f {
	case NoCompress:
		return "NoCompress"
	case NoCompressQuat:
		return "NoCompressQuat"
	case NoCompressVec3:
		return "NoCompressVec3"
	case ShortInt3Quat:
		return "ShortInt3Quat"
	case SmallTree32BitQuat:
		return "SmallTree32BitQuat"
	case SmallTree48BitQuat:
		return "SmallTree48BitQuat"
	case SmallTree64BitQuat:
		return "SmallTree64BitQuat"
	case PolarQuat:
		return "PolarQuat"
	case SmallTree64BitExtQuat:
		return "SmallTree64BitExtQuat"
	case Automatic:
		return "Automatic"
	default:
		return fmt.Sprintf("Unknown(%d)", uint32(f))
	}
}

// Valid reports whether f is one of the known tags.
func (f Format) Valid() bool {
	return f < FormatCount
}

// RotationKeySize returns the stored size of one rotation key in f.
func RotationKeySize(f Format) (int, error) {
	switch f {
	case NoCompressQuat:
		return 16, nil
	case ShortInt3Quat, SmallTree48BitQuat:
		return 6, nil
	case SmallTree32BitQuat:
		return 4, nil
	case SmallTree64BitQuat, SmallTree64BitExtQuat:
		return 8, nil
	}
	return 0, formatError(f, "rotation")
}

// PositionKeySize returns the stored size of one position key in f.
func PositionKeySize(f Format) (int, error) {
	if f == NoCompressVec3 {
		return 12, nil
	}
	return 0, formatError(f, "position")
}

func formatError(f Format, kind string) error {
	if !f.Valid() {
		return fmt.Errorf("%w: %s tag %d", ErrUnknownFormat, kind, uint32(f))
	}
	return fmt.Errorf("%w: %s keys in %s", ErrUnsupportedFormat, kind, f)
}
