package rimage

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// GetPerspectiveTransform returns the 3x3 homography that maps the four src points onto the four
// dst points.
func GetPerspectiveTransform(src, dst []r2.Point) (*mat.Dense, error) {
	if len(src) != 4 || len(dst) != 4 {
		return nil, errors.Errorf("perspective transform needs 4 point pairs, got %d and %d", len(src), len(dst))
	}
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -x * u, -y * u})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -x * v, -y * v})
		b.SetVec(2*i, u)
		b.SetVec(2*i+1, v)
	}
	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return nil, errors.Wrap(err, "degenerate point configuration")
	}
	out := mat.NewDense(3, 3, nil)
	for i := 0; i < 8; i++ {
		out.Set(i/3, i%3, h.AtVec(i))
	}
	out.Set(2, 2, 1)
	return out, nil
}

// ApplyHomography maps a point through a 3x3 homography.
func ApplyHomography(h mat.Matrix, p r2.Point) r2.Point {
	x := h.At(0, 0)*p.X + h.At(0, 1)*p.Y + h.At(0, 2)
	y := h.At(1, 0)*p.X + h.At(1, 1)*p.Y + h.At(1, 2)
	w := h.At(2, 0)*p.X + h.At(2, 1)*p.Y + h.At(2, 2)
	return r2.Point{X: x / w, Y: y / w}
}

// WarpPerspectiveGray resamples img into a new image of the given size so that the output pixel
// at p shows the input at the preimage of p under srcToDst. Sampling is bilinear.
func WarpPerspectiveGray(img *image.Gray, srcToDst mat.Matrix, size image.Point) (*image.Gray, error) {
	var inv mat.Dense
	if err := inv.Inverse(srcToDst); err != nil {
		return nil, errors.Wrap(err, "homography is not invertible")
	}
	out := image.NewGray(image.Rect(0, 0, size.X, size.Y))
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			p := ApplyHomography(&inv, r2.Point{X: float64(x), Y: float64(y)})
			v := BilinearGray(img, p.X, p.Y)
			out.Pix[y*out.Stride+x] = uint8(v + 0.5)
		}
	}
	return out, nil
}
