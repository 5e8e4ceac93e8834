package math

import "github.com/go-gl/mathgl/mgl32"

// Quat is a rotation quaternion. W is the scalar part; the on-disk order is
// X, Y, Z, W.
type Quat struct {
	X, Y, Z, W float32
}

func (q Quat) mgl() mgl32.Quat { return mgl32.Quat{W: q.W, V: mgl32.Vec3{q.X, q.Y, q.Z}} }

func quat(q mgl32.Quat) Quat { return Quat{X: q.V[0], Y: q.V[1], Z: q.V[2], W: q.W} }

// QuatIdentity returns the identity rotation.
func QuatIdentity() Quat { return quat(mgl32.QuatIdent()) }

// QuatFromAxisAngle rotates angle radians about a unit axis.
func QuatFromAxisAngle(axis Vec3, angle float32) Quat {
	return quat(mgl32.QuatRotate(angle, axis.mgl()))
}

// Normalize returns q scaled to unit length. Near-zero input yields the
// identity.
func (q Quat) Normalize() Quat {
	l := q.Length()
	if l < 0.0001 {
		return QuatIdentity()
	}
	return quat(q.mgl().Scale(1 / l))
}

// Dot returns the 4D dot product.
func (q Quat) Dot(other Quat) float32 { return q.mgl().Dot(other.mgl()) }

// Length returns the magnitude.
func (q Quat) Length() float32 { return q.mgl().Len() }

// Neg returns -q, which encodes the same rotation.
func (q Quat) Neg() Quat { return Quat{X: -q.X, Y: -q.Y, Z: -q.Z, W: -q.W} }

// Slerp interpolates along the shorter arc from q to other; t is in [0, 1].
func (q Quat) Slerp(other Quat, t float32) Quat {
	if q.Dot(other) < 0 {
		other = other.Neg()
	}
	return quat(mgl32.QuatSlerp(q.mgl(), other.mgl(), t))
}

// Array returns the components in X, Y, Z, W order.
func (q Quat) Array() [4]float32 { return [4]float32{q.X, q.Y, q.Z, q.W} }

// QuatFromArray builds a quaternion from X, Y, Z, W components.
func QuatFromArray(a [4]float32) Quat { return Quat{X: a[0], Y: a[1], Z: a[2], W: a[3]} }
