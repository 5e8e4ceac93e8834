package keys

import (
	stdmath "math"

	"github.com/Faultbox/chunkforge/pkg/binio"
	"github.com/Faultbox/chunkforge/pkg/math"
)

// Packed components of a unit quaternion other than the largest one lie in
// [-1/sqrt(2), 1/sqrt(2)].
const (
	maxPolar   float32 = 0.70710678118654752440
	rangePolar float32 = 2 * maxPolar

	shortInt3Scale float32 = 32767
)

// smallTree describes one "smallest three" layout: three fixed-point fields
// packed from bit 0 upwards followed by the 2-bit index of the dropped
// component.
type smallTree struct {
	bits     [3]uint
	idxShift uint
}

var (
	smallTree32    = smallTree{bits: [3]uint{10, 10, 10}, idxShift: 30}
	smallTree48    = smallTree{bits: [3]uint{15, 15, 15}, idxShift: 46}
	smallTree64    = smallTree{bits: [3]uint{20, 20, 20}, idxShift: 62}
	smallTree64Ext = smallTree{bits: [3]uint{21, 21, 20}, idxShift: 62}
)

// largestComponent returns the index of the component with the largest
// magnitude; the lowest index wins ties.
func largestComponent(c [4]float32) int {
	idx := 0
	for i := 1; i < 4; i++ {
		if abs32(c[i]) > abs32(c[idx]) {
			idx = i
		}
	}
	return idx
}

func (s smallTree) pack(q math.Quat) uint64 {
	c := q.Array()
	idx := largestComponent(c)
	if c[idx] < 0 {
		c = q.Neg().Array()
	}

	var v uint64
	shift := uint(0)
	k := 0
	for i := 0; i < 4; i++ {
		if i == idx {
			continue
		}
		maxN := float32(uint64(1)<<s.bits[k] - 1)
		x := clamp32(c[i], -maxPolar, maxPolar)
		u := uint64((x+maxPolar)/rangePolar*maxN + 0.5)
		v |= u << shift
		shift += s.bits[k]
		k++
	}
	return v | uint64(idx)<<s.idxShift
}

func (s smallTree) unpack(v uint64) math.Quat {
	idx := int(v>>s.idxShift) & 3

	var c [4]float32
	var sum float32
	shift := uint(0)
	k := 0
	for i := 0; i < 4; i++ {
		if i == idx {
			continue
		}
		mask := uint64(1)<<s.bits[k] - 1
		u := (v >> shift) & mask
		x := float32(u)/float32(mask)*rangePolar - maxPolar
		c[i] = x
		sum += x * x
		shift += s.bits[k]
		k++
	}
	c[idx] = sqrt32(max(0, 1-sum))
	return math.QuatFromArray(c)
}

// Step returns the quantization step of the packed fields of f, or 0 for
// uncompressed layouts.
func Step(f Format) float32 {
	switch f {
	case ShortInt3Quat:
		return 1 / shortInt3Scale
	case SmallTree32BitQuat:
		return rangePolar / float32(uint64(1)<<10-1)
	case SmallTree48BitQuat:
		return rangePolar / float32(uint64(1)<<15-1)
	case SmallTree64BitQuat:
		return rangePolar / float32(uint64(1)<<20-1)
	case SmallTree64BitExtQuat:
		// The third field only has 20 bits.
		return rangePolar / float32(uint64(1)<<20-1)
	}
	return 0
}

// PackSmallTree32 packs q into the 32-bit layout.
func PackSmallTree32(q math.Quat) uint32 { return uint32(smallTree32.pack(q)) }

// UnpackSmallTree32 unpacks the 32-bit layout.
func UnpackSmallTree32(v uint32) math.Quat { return smallTree32.unpack(uint64(v)) }

// PackSmallTree48 packs q into three 16-bit words, lowest bits first.
func PackSmallTree48(q math.Quat) [3]uint16 {
	v := smallTree48.pack(q)
	return [3]uint16{uint16(v), uint16(v >> 16), uint16(v >> 32)}
}

// UnpackSmallTree48 unpacks three 16-bit words, lowest bits first.
func UnpackSmallTree48(m [3]uint16) math.Quat {
	return smallTree48.unpack(uint64(m[0]) | uint64(m[1])<<16 | uint64(m[2])<<32)
}

// PackSmallTree64 packs q into the 3x20-bit layout.
func PackSmallTree64(q math.Quat) uint64 { return smallTree64.pack(q) }

// UnpackSmallTree64 unpacks the 3x20-bit layout.
func UnpackSmallTree64(v uint64) math.Quat { return smallTree64.unpack(v) }

// PackSmallTree64Ext packs q into the 21/21/20-bit layout.
func PackSmallTree64Ext(q math.Quat) uint64 { return smallTree64Ext.pack(q) }

// UnpackSmallTree64Ext unpacks the 21/21/20-bit layout.
func UnpackSmallTree64Ext(v uint64) math.Quat { return smallTree64Ext.unpack(v) }

// PackShortInt3 stores x, y, z as signed 16-bit fractions of a quaternion
// whose w has been made non-negative.
func PackShortInt3(q math.Quat) [3]int16 {
	if q.W < 0 {
		q = q.Neg()
	}
	return [3]int16{toInt16(q.X), toInt16(q.Y), toInt16(q.Z)}
}

// UnpackShortInt3 rebuilds w from the unit-length constraint.
func UnpackShortInt3(m [3]int16) math.Quat {
	x := float32(m[0]) / shortInt3Scale
	y := float32(m[1]) / shortInt3Scale
	z := float32(m[2]) / shortInt3Scale
	sum := x*x + y*y + z*z
	if sum > 1 {
		inv := 1 / sqrt32(sum)
		return math.Quat{X: x * inv, Y: y * inv, Z: z * inv}
	}
	return math.Quat{X: x, Y: y, Z: z, W: sqrt32(1 - sum)}
}

func toInt16(v float32) int16 {
	f := clamp32(v, -1, 1) * shortInt3Scale
	if f < 0 {
		return int16(f - 0.5)
	}
	return int16(f + 0.5)
}

// ReadRotations decodes n rotation keys stored in format f.
func ReadRotations(r *binio.Reader, f Format, n int) ([]math.Quat, error) {
	size, err := RotationKeySize(f)
	if err != nil {
		return nil, err
	}
	if n*size > r.Len() {
		r.Skip(n * size)
		return nil, r.Err()
	}

	out := make([]math.Quat, n)
	for i := range out {
		switch f {
		case NoCompressQuat:
			out[i] = math.Quat{X: r.F32(), Y: r.F32(), Z: r.F32(), W: r.F32()}
		case ShortInt3Quat:
			out[i] = UnpackShortInt3([3]int16{r.I16(), r.I16(), r.I16()})
		case SmallTree32BitQuat:
			out[i] = UnpackSmallTree32(r.U32())
		case SmallTree48BitQuat:
			out[i] = UnpackSmallTree48([3]uint16{r.U16(), r.U16(), r.U16()})
		case SmallTree64BitQuat:
			lo, hi := r.U32(), r.U32()
			out[i] = UnpackSmallTree64(uint64(lo) | uint64(hi)<<32)
		case SmallTree64BitExtQuat:
			lo, hi := r.U32(), r.U32()
			out[i] = UnpackSmallTree64Ext(uint64(lo) | uint64(hi)<<32)
		}
	}
	return out, r.Err()
}

// WriteRotations encodes rotation keys in format f.
func WriteRotations(w *binio.Writer, f Format, keys []math.Quat) error {
	if _, err := RotationKeySize(f); err != nil {
		return err
	}
	for _, q := range keys {
		switch f {
		case NoCompressQuat:
			w.F32(q.X)
			w.F32(q.Y)
			w.F32(q.Z)
			w.F32(q.W)
		case ShortInt3Quat:
			for _, v := range PackShortInt3(q) {
				w.I16(v)
			}
		case SmallTree32BitQuat:
			w.U32(PackSmallTree32(q))
		case SmallTree48BitQuat:
			for _, v := range PackSmallTree48(q) {
				w.U16(v)
			}
		case SmallTree64BitQuat:
			v := PackSmallTree64(q)
			w.U32(uint32(v))
			w.U32(uint32(v >> 32))
		case SmallTree64BitExtQuat:
			v := PackSmallTree64Ext(q)
			w.U32(uint32(v))
			w.U32(uint32(v >> 32))
		}
	}
	return w.Err()
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp32(v, lo, hi float32) float32 {
	return max(lo, min(hi, v))
}

func sqrt32(v float32) float32 {
	return float32(stdmath.Sqrt(float64(v)))
}
