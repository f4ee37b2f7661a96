package rimage

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
)

// TermCriteria bounds an iterative refinement. The iteration stops on whichever enabled criterion
// triggers first: MaxIter iterations, or a step shorter than Epsilon pixels. A zero value disables
// a criterion; when both are zero a single iteration runs.
type TermCriteria struct {
	MaxIter int     `json:"max_iter"`
	Epsilon float64 `json:"epsilon"`
}

// DefaultSubPixCriteria stops after 30 iterations or once a corner moves by less than 0.001 px.
var DefaultSubPixCriteria = TermCriteria{MaxIter: 30, Epsilon: 0.001}

// DefaultSubPixHalfWindow gives the 11 x 11 search window used for corner refinement.
const DefaultSubPixHalfWindow = 5

// RefineCornersSubPix moves each corner to the sub-pixel location where the image gradient inside
// a (2*halfWin+1)^2 window is orthogonal to the vector from the corner, which holds at the apex of
// both X-junctions and L-corners. A corner whose refinement leaves the window keeps its initial
// position. The input slice is not modified.
func RefineCornersSubPix(img *image.Gray, corners []r2.Point, halfWin int, criteria TermCriteria) []r2.Point {
	if halfWin < 1 {
		halfWin = DefaultSubPixHalfWindow
	}
	maxIter := criteria.MaxIter
	if maxIter <= 0 {
		maxIter = 100
		if criteria.Epsilon <= 0 {
			maxIter = 1
		}
	}
	eps2 := criteria.Epsilon * criteria.Epsilon
	weights := subPixWeights(halfWin)
	b := img.Bounds()

	refined := make([]r2.Point, len(corners))
	for n, start := range corners {
		cur := start
		for iter := 0; iter < maxIter; iter++ {
			patch := RectSubPix(img, cur.X, cur.Y, halfWin, halfWin, 1)
			var a, bxy, c, bb1, bb2 float64
			size := 2*halfWin + 1
			for i := 0; i < size; i++ {
				py := float64(i - halfWin)
				for j := 0; j < size; j++ {
					px := float64(j - halfWin)
					m := weights[i*size+j]
					gx := patch.At(i+1, j+2) - patch.At(i+1, j)
					gy := patch.At(i+2, j+1) - patch.At(i, j+1)
					gxx := gx * gx * m
					gxy := gx * gy * m
					gyy := gy * gy * m
					a += gxx
					bxy += gxy
					c += gyy
					bb1 += gxx*px + gxy*py
					bb2 += gxy*px + gyy*py
				}
			}
			det := a*c - bxy*bxy
			if math.Abs(det) <= math.SmallestNonzeroFloat64*1e10 {
				break
			}
			scale := 1 / det
			next := r2.Point{
				X: cur.X + c*scale*bb1 - bxy*scale*bb2,
				Y: cur.Y - bxy*scale*bb1 + a*scale*bb2,
			}
			step := next.Sub(cur)
			cur = next
			if cur.X < float64(b.Min.X) || cur.X >= float64(b.Max.X) || cur.Y < float64(b.Min.Y) || cur.Y >= float64(b.Max.Y) {
				break
			}
			if criteria.Epsilon > 0 && step.Dot(step) <= eps2 {
				break
			}
		}
		if d := cur.Sub(start); math.Abs(d.X) > float64(halfWin) || math.Abs(d.Y) > float64(halfWin) {
			cur = start
		}
		refined[n] = cur
	}
	return refined
}

func subPixWeights(halfWin int) []float64 {
	size := 2*halfWin + 1
	coeff := 1. / float64(halfWin*halfWin)
	axis := make([]float64, size)
	for i := range axis {
		x := float64(i - halfWin)
		axis[i] = math.Exp(-x * x * coeff)
	}
	weights := make([]float64, size*size)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			weights[i*size+j] = axis[i] * axis[j]
		}
	}
	return weights
}
