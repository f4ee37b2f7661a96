package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// RotationMatrix is a 3x3 rotation stored row major.
type RotationMatrix struct {
	mat [9]float64
}

// NewRotationMatrix creates a rotation matrix from 9 row major values. The values are not checked
// for orthonormality; use NearestRotationMatrix for noisy input.
func NewRotationMatrix(m []float64) (*RotationMatrix, error) {
	if len(m) != 9 {
		return nil, errors.Errorf("input slice has %d elements, need exactly 9", len(m))
	}
	rm := &RotationMatrix{}
	copy(rm.mat[:], m)
	return rm, nil
}

// IdentityRotation returns the rotation that leaves every vector unchanged.
func IdentityRotation() *RotationMatrix {
	return &RotationMatrix{[9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// At returns the value at the given row and column.
func (rm *RotationMatrix) At(row, col int) float64 {
	return rm.mat[row*3+col]
}

// Row returns the row as a vector.
func (rm *RotationMatrix) Row(row int) r3.Vector {
	return r3.Vector{X: rm.mat[row*3], Y: rm.mat[row*3+1], Z: rm.mat[row*3+2]}
}

// Col returns the column as a vector.
func (rm *RotationMatrix) Col(col int) r3.Vector {
	return r3.Vector{X: rm.mat[col], Y: rm.mat[3+col], Z: rm.mat[6+col]}
}

// Mul rotates v.
func (rm *RotationMatrix) Mul(v r3.Vector) r3.Vector {
	return r3.Vector{X: rm.Row(0).Dot(v), Y: rm.Row(1).Dot(v), Z: rm.Row(2).Dot(v)}
}

// MulRotation returns rm * other, the rotation applying other first.
func (rm *RotationMatrix) MulRotation(other *RotationMatrix) *RotationMatrix {
	out := &RotationMatrix{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.mat[i*3+j] = rm.Row(i).Dot(other.Col(j))
		}
	}
	return out
}

// Transpose returns the inverse rotation.
func (rm *RotationMatrix) Transpose() *RotationMatrix {
	out := &RotationMatrix{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.mat[j*3+i] = rm.mat[i*3+j]
		}
	}
	return out
}

// Dense returns a copy of the matrix as a gonum dense matrix.
func (rm *RotationMatrix) Dense() *mat.Dense {
	data := make([]float64, 9)
	copy(data, rm.mat[:])
	return mat.NewDense(3, 3, data)
}

// Quaternion returns the rotation as a unit quaternion.
func (rm *RotationMatrix) Quaternion() quat.Number {
	return R3ToR4(rm.RotationVector()).ToQuat()
}

// RotationVector returns the axis angle vector whose direction is the rotation axis and whose
// norm is the angle in radians, in [0, pi].
func (rm *RotationMatrix) RotationVector() r3.Vector {
	skew := r3.Vector{
		X: rm.At(2, 1) - rm.At(1, 2),
		Y: rm.At(0, 2) - rm.At(2, 0),
		Z: rm.At(1, 0) - rm.At(0, 1),
	}
	cosTheta := math.Max(-1, math.Min(1, (rm.At(0, 0)+rm.At(1, 1)+rm.At(2, 2)-1)/2))
	sinTheta := skew.Norm() / 2
	theta := math.Atan2(sinTheta, cosTheta)

	if sinTheta > 1e-5 {
		return skew.Mul(theta / (2 * sinTheta))
	}
	if cosTheta > 0 {
		// small angle: sin(theta) ~ theta
		return skew.Mul(0.5)
	}

	// theta close to pi: the axis is the dominant column of (R + I) / 2
	diag := []float64{rm.At(0, 0), rm.At(1, 1), rm.At(2, 2)}
	k := 0
	for i := 1; i < 3; i++ {
		if diag[i] > diag[k] {
			k = i
		}
	}
	axis := rm.Col(k)
	switch k {
	case 0:
		axis.X += 1
	case 1:
		axis.Y += 1
	default:
		axis.Z += 1
	}
	axis = axis.Normalize()
	// keep the sign consistent with the residual skew part
	if axis.Dot(skew) < 0 {
		axis = axis.Mul(-1)
	}
	return axis.Mul(theta)
}

// RotationVectorToMatrix converts an axis angle vector into a rotation matrix with Rodrigues' formula.
func RotationVectorToMatrix(v r3.Vector) *RotationMatrix {
	theta := v.Norm()
	if theta < 1e-12 {
		// first order expansion, R = I + [v]x
		return &RotationMatrix{[9]float64{
			1, -v.Z, v.Y,
			v.Z, 1, -v.X,
			-v.Y, v.X, 1,
		}}
	}
	k := v.Mul(1 / theta)
	c := math.Cos(theta)
	s := math.Sin(theta)
	t := 1 - c
	return &RotationMatrix{[9]float64{
		c + k.X*k.X*t, k.X*k.Y*t - k.Z*s, k.X*k.Z*t + k.Y*s,
		k.Y*k.X*t + k.Z*s, c + k.Y*k.Y*t, k.Y*k.Z*t - k.X*s,
		k.Z*k.X*t - k.Y*s, k.Z*k.Y*t + k.X*s, c + k.Z*k.Z*t,
	}}
}

// NearestRotationMatrix returns the rotation closest to m in the Frobenius norm, U * diag(1, 1, det(UV^T)) * V^T.
func NearestRotationMatrix(m mat.Matrix) (*RotationMatrix, error) {
	r, c := m.Dims()
	if r != 3 || c != 3 {
		return nil, errors.Errorf("need a 3x3 matrix, got %dx%d", r, c)
	}
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return nil, errors.New("svd factorization failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	var uvt mat.Dense
	uvt.Mul(&u, v.T())
	d := mat.NewDiagDense(3, []float64{1, 1, math.Copysign(1, mat.Det(&uvt))})
	var out mat.Dense
	out.Mul(&u, d)
	out.Mul(&out, v.T())
	return NewRotationMatrix(out.RawMatrix().Data)
}
