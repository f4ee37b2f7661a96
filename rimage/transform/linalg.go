package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// normalizePoints normalizes points as described in Multiple View Geometry, Alg 4.2: centroid at the origin
// and mean distance sqrt(2).
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense, error) {
	nPoints := len(pts)
	mu := r2.Point{}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1. / float64(nPoints))
	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / float64(nPoints)
	}
	if d == 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return nil, nil, errors.New("cannot normalize coincident or non-finite points")
	}
	scale := math.Sqrt(2) / d
	transformData := []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	}
	pointsTransformed := make([]r2.Point, nPoints)
	for i, pt := range pts {
		pointsTransformed[i] = pt.Sub(mu).Mul(scale)
	}
	return pointsTransformed, mat.NewDense(3, 3, transformData), nil
}

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U      *mat.Dense
	V      *mat.Dense
	Values []float64
}

// performSVD performs a full SVD on inputMatrix and returns U, V and the singular values in decreasing order.
func performSVD(inputMatrix mat.Matrix) *matsSVD {
	var svd mat.SVD
	if ok := svd.Factorize(inputMatrix, mat.SVDFull); !ok {
		return nil
	}
	u, v := &mat.Dense{}, &mat.Dense{}
	svd.UTo(u)
	svd.VTo(v)
	return &matsSVD{U: u, V: v, Values: svd.Values(nil)}
}
