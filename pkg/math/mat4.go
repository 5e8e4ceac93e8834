package math

import "github.com/go-gl/mathgl/mgl32"

// Mat4 is a 4x4 column-major matrix, element (row r, column c) at index
// c*4+r. Chunk files store bind poses as row-major 3x4; see FromMat3x4.
type Mat4 mgl32.Mat4

// Identity returns the identity matrix.
func Identity() Mat4 { return Mat4(mgl32.Ident4()) }

// Translate returns a translation matrix.
func Translate(x, y, z float32) Mat4 { return Mat4(mgl32.Translate3D(x, y, z)) }

// Scale returns a scale matrix.
func Scale(x, y, z float32) Mat4 { return Mat4(mgl32.Scale3D(x, y, z)) }

// Mul returns m * other.
func (m Mat4) Mul(other Mat4) Mat4 { return Mat4(mgl32.Mat4(m).Mul4(mgl32.Mat4(other))) }

// TransformPoint transforms p with w = 1, dividing by the resulting w when it
// is neither 0 nor 1.
func (m Mat4) TransformPoint(p [3]float32) [3]float32 {
	v := mgl32.Mat4(m).Mul4x1(mgl32.Vec4{p[0], p[1], p[2], 1})
	if w := v[3]; w != 0 && w != 1 {
		return [3]float32{v[0] / w, v[1] / w, v[2] / w}
	}
	return [3]float32{v[0], v[1], v[2]}
}

// Inverse returns the inverse matrix, or the identity when m is singular.
func (m Mat4) Inverse() Mat4 {
	g := mgl32.Mat4(m)
	if g.Det() == 0 {
		return Identity()
	}
	return Mat4(g.Inv())
}

// FromMat3x4 expands a row-major 3x4 affine matrix (rotation in columns 0-2,
// translation in column 3) with an implied (0, 0, 0, 1) bottom row.
func FromMat3x4(rows [12]float32) Mat4 {
	var m Mat4
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			m[c*4+r] = rows[r*4+c]
		}
	}
	m[15] = 1
	return m
}

// Mat3x4 returns the top three rows in row-major order.
func (m Mat4) Mat3x4() [12]float32 {
	var rows [12]float32
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			rows[r*4+c] = m[c*4+r]
		}
	}
	return rows
}

// Translation returns the translation column.
func (m Mat4) Translation() Vec3 { return vec3(mgl32.Mat4(m).Col(3).Vec3()) }

// ApproxEqual reports whether every element differs by at most eps.
func (m Mat4) ApproxEqual(other Mat4, eps float32) bool {
	for i := range m {
		if d := m[i] - other[i]; d > eps || d < -eps {
			return false
		}
	}
	return true
}
