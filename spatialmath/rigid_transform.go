package spatialmath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// RigidTransform maps points from an object frame into the camera frame, p_cam = R * p_obj + T.
// The rotation is stored as an axis angle vector.
type RigidTransform struct {
	Rotation    r3.Vector `json:"rvec"`
	Translation r3.Vector `json:"tvec"`
}

// NewRigidTransform builds a transform from a rotation matrix and a translation.
func NewRigidTransform(rot *RotationMatrix, translation r3.Vector) RigidTransform {
	return RigidTransform{Rotation: rot.RotationVector(), Translation: translation}
}

// RotationMatrix returns the rotation part as a matrix.
func (rt RigidTransform) RotationMatrix() *RotationMatrix {
	return RotationVectorToMatrix(rt.Rotation)
}

// Apply maps a point from the object frame into the camera frame.
func (rt RigidTransform) Apply(p r3.Vector) r3.Vector {
	return rt.RotationMatrix().Mul(p).Add(rt.Translation)
}

// ApplyAll maps every point using a single rotation matrix evaluation.
func (rt RigidTransform) ApplyAll(points []r3.Vector) []r3.Vector {
	rot := rt.RotationMatrix()
	out := make([]r3.Vector, len(points))
	for i, p := range points {
		out[i] = rot.Mul(p).Add(rt.Translation)
	}
	return out
}

// Inverse returns the transform mapping camera frame points back into the object frame.
func (rt RigidTransform) Inverse() RigidTransform {
	inv := rt.RotationMatrix().Transpose()
	return RigidTransform{
		Rotation:    rt.Rotation.Mul(-1),
		Translation: inv.Mul(rt.Translation).Mul(-1),
	}
}

// Matrix returns the 3x4 pose matrix [R | T].
func (rt RigidTransform) Matrix() *mat.Dense {
	rot := rt.RotationMatrix()
	out := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Set(i, j, rot.At(i, j))
		}
	}
	out.Set(0, 3, rt.Translation.X)
	out.Set(1, 3, rt.Translation.Y)
	out.Set(2, 3, rt.Translation.Z)
	return out
}
