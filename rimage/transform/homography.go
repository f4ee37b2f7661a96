package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 matrix (represented as a 2D array) used to transform a plane from the perspective of a 2D
// camera to the perspective of another 2D camera. Indices are [row][column].
type Homography [3][3]float64

// NewHomography creates a Homography from 9 values in row-major order.
func NewHomography(vals []float64) (*Homography, error) {
	if len(vals) != 9 {
		return nil, errors.Errorf("input to NewHomography must have length of 9. Has length of %d", len(vals))
	}
	var h Homography
	for i, v := range vals {
		h[i/3][i%3] = v
	}
	return &h, nil
}

// At returns the value at the given row and column.
func (h *Homography) At(row, col int) float64 {
	return h[row][col]
}

// Apply maps a point through the homography.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{X: x / z, Y: y / z}
}

// Dense returns the homography as a gonum matrix.
func (h *Homography) Dense() *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		m.SetRow(i, h[i][:])
	}
	return m
}

// Inverse returns the inverse mapping.
func (h *Homography) Inverse() (*Homography, error) {
	var inv mat.Dense
	if err := inv.Inverse(h.Dense()); err != nil {
		return nil, errors.Wrap(err, "homography is not invertible")
	}
	return homographyFromDense(&inv), nil
}

func homographyFromDense(m mat.Matrix) *Homography {
	var h Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] = m.At(i, j)
		}
	}
	return &h
}

// EstimateHomography computes the homography mapping src onto dst in the least squares sense with the
// normalized direct linear transform (Multiple View Geometry, Alg 4.2). At least four correspondences are needed,
// no three of which collinear. The result is scaled so that H[2][2] = 1 when possible.
func EstimateHomography(src, dst []r2.Point) (*Homography, error) {
	if len(src) != len(dst) {
		return nil, errors.New("sets of points src and dst must have the same number of elements")
	}
	if len(src) < 4 {
		return nil, errors.Errorf("need at least 4 point correspondences to estimate a homography, got %d", len(src))
	}
	normSrc, tSrc, err := normalizePoints(src)
	if err != nil {
		return nil, err
	}
	normDst, tDst, err := normalizePoints(dst)
	if err != nil {
		return nil, err
	}

	a := mat.NewDense(2*len(src), 9, nil)
	for i := range normSrc {
		s, d := normSrc[i], normDst[i]
		a.SetRow(2*i, []float64{-s.X, -s.Y, -1, 0, 0, 0, d.X * s.X, d.X * s.Y, d.X})
		a.SetRow(2*i+1, []float64{0, 0, 0, -s.X, -s.Y, -1, d.Y * s.X, d.Y * s.Y, d.Y})
	}
	svd := performSVD(a)
	if svd == nil {
		return nil, errors.New("SVD of the homography system failed")
	}
	// a rank deficient system means the points do not pin down a unique plane mapping
	if vals := svd.Values; len(vals) >= 8 && vals[7] <= 1e-10*vals[0] {
		return nil, errors.New("degenerate point configuration for homography")
	}
	h := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		h.Set(i/3, i%3, svd.V.At(i, 8))
	}

	// H = T_dst^-1 * Hn * T_src
	var tDstInv, tmp mat.Dense
	if err := tDstInv.Inverse(tDst); err != nil {
		return nil, errors.Wrap(err, "normalization is not invertible")
	}
	tmp.Mul(&tDstInv, h)
	h.Mul(&tmp, tSrc)

	if scale := h.At(2, 2); math.Abs(scale) > 1e-12 {
		h.Scale(1/scale, h)
	} else {
		h.Scale(1/mat.Norm(h, 2), h)
	}
	return homographyFromDense(h), nil
}
