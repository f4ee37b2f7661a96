package chessboard

import (
	"image"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/fiducial/rimage/transform"
)

const (
	lightLevel = 230.
	darkLevel  = 25.
)

// renderBoard draws a chessboard of (Cols+1) x (Rows+1) squares of side sq board units mapped into the image by
// boardToImage, supersampled 4x4. It returns the image and the true inner corners, row-major.
func renderBoard(t *testing.T, w, h int, pattern PatternSize, sq float64, boardToImage *transform.Homography) (
	*image.Gray, []r2.Point,
) {
	t.Helper()
	const ss = 4
	imageToBoard, err := boardToImage.Inverse()
	test.That(t, err, test.ShouldBeNil)
	bw, bh := float64(pattern.Cols+1)*sq, float64(pattern.Rows+1)*sq
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.
			for sy := 0; sy < ss; sy++ {
				for sx := 0; sx < ss; sx++ {
					p := r2.Point{
						X: float64(x) - 0.5 + (float64(sx)+0.5)/ss,
						Y: float64(y) - 0.5 + (float64(sy)+0.5)/ss,
					}
					b := imageToBoard.Apply(p)
					if b.X < 0 || b.Y < 0 || b.X >= bw || b.Y >= bh {
						acc += lightLevel
						continue
					}
					if (int(math.Floor(b.X/sq))+int(math.Floor(b.Y/sq)))%2 == 0 {
						acc += darkLevel
					} else {
						acc += lightLevel
					}
				}
			}
			img.Pix[y*img.Stride+x] = uint8(math.Round(acc / (ss * ss)))
		}
	}
	truth := make([]r2.Point, 0, pattern.Count())
	for r := 0; r < pattern.Rows; r++ {
		for c := 0; c < pattern.Cols; c++ {
			truth = append(truth, boardToImage.Apply(r2.Point{X: float64(c+1) * sq, Y: float64(r+1) * sq}))
		}
	}
	return img, truth
}

// composeHomography multiplies the row-major 3x3 matrices left to right.
func composeHomography(t *testing.T, ms ...[]float64) *transform.Homography {
	t.Helper()
	out := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	for _, m := range ms {
		var tmp mat.Dense
		tmp.Mul(out, mat.NewDense(3, 3, m))
		out = &tmp
	}
	h, err := transform.NewHomography(mat.DenseCopyOf(out).RawMatrix().Data)
	test.That(t, err, test.ShouldBeNil)
	return h
}

func translation(x, y float64) []float64 {
	return []float64{1, 0, x, 0, 1, y, 0, 0, 1}
}

func rotation(theta float64) []float64 {
	c, s := math.Cos(theta), math.Sin(theta)
	return []float64{c, -s, 0, s, c, 0, 0, 0, 1}
}
