// Package spatialmath defines the rotation and rigid transform types used for camera and marker poses.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// R4AA is an axis-angle rotation: a rotation of Theta radians about the axis (RX, RY, RZ). Calibration and pose
// estimation report rotations in the compact R3 form, the axis scaled by the angle, which ToR3 and R3ToR4 convert
// to and from.
type R4AA struct {
	Theta float64 `json:"th"`
	RX    float64 `json:"x"`
	RY    float64 `json:"y"`
	RZ    float64 `json:"z"`
}

// NewR4AA returns the identity rotation, expressed about the z axis.
func NewR4AA() *R4AA {
	return &R4AA{RZ: 1}
}

func (r4 *R4AA) axis() r3.Vector {
	return r3.Vector{X: r4.RX, Y: r4.RY, Z: r4.RZ}
}

// ToR3 returns the rotation vector, whose length is the angle.
func (r4 *R4AA) ToR3() r3.Vector {
	return r4.axis().Mul(r4.Theta)
}

// ToQuat returns the unit quaternion cos(theta/2) + sin(theta/2) * axis. The axis is normalized in place first.
func (r4 *R4AA) ToQuat() quat.Number {
	r4.Normalize()
	half := r4.axis().Mul(math.Sin(r4.Theta / 2))
	return quat.Number{Real: math.Cos(r4.Theta / 2), Imag: half.X, Jmag: half.Y, Kmag: half.Z}
}

// RotationMatrix returns the orientation in rotation matrix representation.
func (r4 *R4AA) RotationMatrix() *RotationMatrix {
	return RotationVectorToMatrix(r4.ToR3())
}

// Normalize makes the axis a unit vector. A zero axis becomes the z axis.
func (r4 *R4AA) Normalize() {
	axis := r4.axis()
	if axis.Norm2() == 0 {
		r4.RX, r4.RY, r4.RZ = 0, 0, 1
		return
	}
	axis = axis.Normalize()
	r4.RX, r4.RY, r4.RZ = axis.X, axis.Y, axis.Z
}

// R3ToR4 converts an R3 angle axis to R4.
func R3ToR4(aa r3.Vector) *R4AA {
	theta := aa.Norm()
	if theta == 0 {
		return NewR4AA()
	}
	return &R4AA{theta, aa.X / theta, aa.Y / theta, aa.Z / theta}
}

// QuatToR4AA converts a unit quaternion to an R4 axis angle with theta in [0, pi].
func QuatToR4AA(q quat.Number) *R4AA {
	norm := quat.Abs(q)
	if norm == 0 {
		return NewR4AA()
	}
	q = quat.Scale(1/norm, q)
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	sinHalf := math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if sinHalf < 1e-12 {
		return NewR4AA()
	}
	return &R4AA{
		Theta: 2 * math.Atan2(sinHalf, q.Real),
		RX:    q.Imag / sinHalf,
		RY:    q.Jmag / sinHalf,
		RZ:    q.Kmag / sinHalf,
	}
}
