// Package math provides the vector, quaternion and matrix types used by
// chunk data. Arithmetic is delegated to mathgl's float32 package; the types
// here keep the named-field layout the codecs read and write.
package math

import "github.com/go-gl/mathgl/mgl32"

// Vec3 is a 3D vector.
type Vec3 struct {
	X, Y, Z float32
}

func (v Vec3) mgl() mgl32.Vec3 { return mgl32.Vec3{v.X, v.Y, v.Z} }

func vec3(v mgl32.Vec3) Vec3 { return Vec3{v[0], v[1], v[2]} }

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 { return vec3(v.mgl().Add(other.mgl())) }

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 { return vec3(v.mgl().Sub(other.mgl())) }

// Scale returns v * s.
func (v Vec3) Scale(s float32) Vec3 { return vec3(v.mgl().Mul(s)) }

// Dot returns the dot product.
func (v Vec3) Dot(other Vec3) float32 { return v.mgl().Dot(other.mgl()) }

// Cross returns the cross product.
func (v Vec3) Cross(other Vec3) Vec3 { return vec3(v.mgl().Cross(other.mgl())) }

// Length returns the magnitude.
func (v Vec3) Length() float32 { return v.mgl().Len() }

// Normalize returns a unit vector, or the zero vector for zero input.
func (v Vec3) Normalize() Vec3 {
	if v == (Vec3{}) {
		return v
	}
	return vec3(v.mgl().Normalize())
}

// Distance returns the distance to another point.
func (v Vec3) Distance(other Vec3) float32 { return v.Sub(other).Length() }

// Min returns the component-wise minimum.
func (v Vec3) Min(other Vec3) Vec3 {
	return Vec3{min(v.X, other.X), min(v.Y, other.Y), min(v.Z, other.Z)}
}

// Max returns the component-wise maximum.
func (v Vec3) Max(other Vec3) Vec3 {
	return Vec3{max(v.X, other.X), max(v.Y, other.Y), max(v.Z, other.Z)}
}

// Array returns the components as stored on disk.
func (v Vec3) Array() [3]float32 { return [3]float32{v.X, v.Y, v.Z} }

// Vec3FromArray builds a Vec3 from stored components.
func Vec3FromArray(a [3]float32) Vec3 { return Vec3{a[0], a[1], a[2]} }

// LerpVec3 interpolates linearly from a to b.
func LerpVec3(a, b [3]float32, t float32) [3]float32 {
	va, vb := mgl32.Vec3(a), mgl32.Vec3(b)
	return [3]float32(va.Add(vb.Sub(va).Mul(t)))
}
