package calib

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/fiducial/rimage/transform"
	"go.viam.com/fiducial/spatialmath"
)

// viewHomography maps board plane coordinates to pixels for one view.
func viewHomography(v View) (*transform.Homography, error) {
	plane := make([]r2.Point, len(v.ObjectPoints))
	for i, p := range v.ObjectPoints {
		plane[i] = r2.Point{X: p.X, Y: p.Y}
	}
	return transform.EstimateHomography(plane, v.ImagePoints)
}

// imageNormalization maps pixels of an image of the given size into roughly [-1, 1]^2.
func imageNormalization(size image.Point) *mat.Dense {
	w, h := float64(size.X), float64(size.Y)
	return mat.NewDense(3, 3, []float64{
		2 / w, 0, -1,
		0, 2 / h, -1,
		0, 0, 1,
	})
}

// zhangRow returns v_ij of Zhang's closed form for columns i and j of h.
func zhangRow(h mat.Matrix, i, j int) []float64 {
	return []float64{
		h.At(0, i) * h.At(0, j),
		h.At(0, i)*h.At(1, j) + h.At(1, i)*h.At(0, j),
		h.At(1, i) * h.At(1, j),
		h.At(2, i)*h.At(0, j) + h.At(0, i)*h.At(2, j),
		h.At(2, i)*h.At(1, j) + h.At(1, i)*h.At(2, j),
		h.At(2, i) * h.At(2, j),
	}
}

// normalizedHomographies applies the image normalization and scales each result to unit norm.
func normalizedHomographies(homographies []*transform.Homography, size image.Point) []*mat.Dense {
	n := imageNormalization(size)
	out := make([]*mat.Dense, len(homographies))
	for i, h := range homographies {
		var hn mat.Dense
		hn.Mul(n, h.Dense())
		hn.Scale(1/mat.Norm(&hn, 2), &hn)
		out[i] = &hn
	}
	return out
}

// zhangIntrinsics computes zero-skew intrinsics from three or more homographies with Zhang's closed form.
func zhangIntrinsics(homographies []*transform.Homography, size image.Point) (fx, fy, cx, cy float64, err error) {
	if len(homographies) < 3 {
		return 0, 0, 0, 0, errors.New("closed form initialization needs at least 3 views")
	}
	hs := normalizedHomographies(homographies, size)
	a := mat.NewDense(2*len(hs)+1, 6, nil)
	for k, h := range hs {
		v12 := zhangRow(h, 0, 1)
		v11 := zhangRow(h, 0, 0)
		v22 := zhangRow(h, 1, 1)
		a.SetRow(2*k, v12)
		diff := make([]float64, 6)
		for i := range diff {
			diff[i] = v11[i] - v22[i]
		}
		a.SetRow(2*k+1, diff)
	}
	// zero skew: B12 = 0
	a.SetRow(2*len(hs), []float64{0, 1, 0, 0, 0, 0})

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return 0, 0, 0, 0, errors.New("SVD of the intrinsics system failed")
	}
	var v mat.Dense
	svd.VTo(&v)
	b := make([]float64, 6)
	for i := range b {
		b[i] = v.At(i, 5)
	}
	if b[0] < 0 {
		for i := range b {
			b[i] = -b[i]
		}
	}
	b11, b12, b22, b13, b23, b33 := b[0], b[1], b[2], b[3], b[4], b[5]
	den := b11*b22 - b12*b12
	if b11 <= 0 || den <= 0 {
		return 0, 0, 0, 0, errors.New("closed form solution is not positive definite")
	}
	v0 := (b12*b13 - b11*b23) / den
	lambda := b33 - (b13*b13+v0*(b12*b13-b11*b23))/b11
	if lambda <= 0 {
		return 0, 0, 0, 0, errors.New("closed form solution has a negative scale")
	}
	alpha := math.Sqrt(lambda / b11)
	beta := math.Sqrt(lambda * b11 / den)
	gamma := -b12 * alpha * alpha * beta / lambda
	u0 := gamma*v0/beta - b13*alpha*alpha/lambda

	// undo the normalization: K = N^-1 K'
	w, h := float64(size.X), float64(size.Y)
	fx, fy = alpha*w/2, beta*h/2
	cx, cy = (u0+1)*w/2, (v0+1)*h/2
	for _, val := range []float64{fx, fy, cx, cy} {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, 0, 0, 0, errors.New("closed form solution is not finite")
		}
	}
	if cx < -w || cx > 2*w || cy < -h || cy > 2*h {
		return 0, 0, 0, 0, errors.Errorf("closed form principal point (%.1f, %.1f) is far outside the image", cx, cy)
	}
	return fx, fy, cx, cy, nil
}

// centeredFocalIntrinsics fixes the principal point at the image center and solves for the focal lengths by
// least squares from the orthogonality and equal norm constraints of each homography. It works from a single
// non-frontal view.
func centeredFocalIntrinsics(homographies []*transform.Homography, size image.Point) (fx, fy, cx, cy float64, err error) {
	cx, cy = float64(size.X)/2-0.5, float64(size.Y)/2-0.5
	shift := mat.NewDense(3, 3, []float64{1, 0, -cx, 0, 1, -cy, 0, 0, 1})
	a := mat.NewDense(2*len(homographies), 2, nil)
	rhs := mat.NewVecDense(2*len(homographies), nil)
	for k, hom := range homographies {
		var h mat.Dense
		h.Mul(shift, hom.Dense())
		h.Scale(1/mat.Norm(&h, 2), &h)
		h1 := r3.Vector{X: h.At(0, 0), Y: h.At(1, 0), Z: h.At(2, 0)}
		h2 := r3.Vector{X: h.At(0, 1), Y: h.At(1, 1), Z: h.At(2, 1)}
		rows := [][3]float64{
			{h1.X * h2.X, h1.Y * h2.Y, -h1.Z * h2.Z},
			{h1.X*h1.X - h2.X*h2.X, h1.Y*h1.Y - h2.Y*h2.Y, -(h1.Z*h1.Z - h2.Z*h2.Z)},
		}
		for r, row := range rows {
			norm := math.Hypot(row[0], row[1])
			if norm == 0 {
				continue
			}
			a.Set(2*k+r, 0, row[0]/norm)
			a.Set(2*k+r, 1, row[1]/norm)
			rhs.SetVec(2*k+r, row[2]/norm)
		}
	}
	var sol mat.VecDense
	if err := sol.SolveVec(a, rhs); err == nil {
		invFx2, invFy2 := sol.AtVec(0), sol.AtVec(1)
		if invFx2 > 0 && invFy2 > 0 {
			return math.Sqrt(1 / invFx2), math.Sqrt(1 / invFy2), cx, cy, nil
		}
	}
	// frontal views carry no focal information.
	f := float64(max(size.X, size.Y))
	return f, f, cx, cy, errors.New("focal length is not observable from the views, using a default guess")
}

// initialPose recovers the board pose of one view from K^-1 H, with the board in front of the camera.
func initialPose(k *mat.Dense, h *transform.Homography) (spatialmath.RigidTransform, error) {
	var kInv, m mat.Dense
	if err := kInv.Inverse(k); err != nil {
		return spatialmath.RigidTransform{}, errors.Wrap(err, "camera matrix is singular")
	}
	m.Mul(&kInv, h.Dense())
	col := func(j int) r3.Vector { return r3.Vector{X: m.At(0, j), Y: m.At(1, j), Z: m.At(2, j)} }
	c1, c2, t := col(0), col(1), col(2)
	scale := 2 / (c1.Norm() + c2.Norm())
	if t.Z*scale < 0 {
		scale = -scale
	}
	c1, c2, t = c1.Mul(scale), c2.Mul(scale), t.Mul(scale)
	c3 := c1.Cross(c2)
	raw := mat.NewDense(3, 3, []float64{
		c1.X, c2.X, c3.X,
		c1.Y, c2.Y, c3.Y,
		c1.Z, c2.Z, c3.Z,
	})
	rot, err := spatialmath.NearestRotationMatrix(raw)
	if err != nil {
		return spatialmath.RigidTransform{}, err
	}
	return spatialmath.NewRigidTransform(rot, t), nil
}
