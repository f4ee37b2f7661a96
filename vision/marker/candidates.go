package marker

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/fiducial/rimage"
)

// Candidate is a convex quadrilateral that may be a marker. Corners run clockwise in image coordinates
// starting from the vertex with the smallest x+y.
type Candidate struct {
	Corners [4]r2.Point `json:"corners"`
	// Perimeter is the length in pixels of the contour the quad was fitted to.
	Perimeter float64 `json:"perimeter"`
}

// CornerSlice returns the corners as a slice.
func (c Candidate) CornerSlice() []r2.Point {
	return c.Corners[:]
}

// DetectCandidates thresholds gray at every configured window size, traces the outer borders of the foreground
// and keeps the ones well approximated by a convex quadrilateral of plausible size. Candidates found at several
// window sizes are merged, keeping the one with the longer contour.
func DetectCandidates(gray *image.Gray, params *DetectorParameters) ([]Candidate, error) {
	if gray == nil {
		return nil, errors.New("no image to detect markers in")
	}
	if params == nil {
		def := DefaultDetectorParameters()
		params = &def
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	gray = rimage.MakeGray(gray)
	b := gray.Bounds()
	if b.Empty() {
		return nil, nil
	}
	maxDim := float64(max(b.Dx(), b.Dy()))
	minPerimeter := params.MinMarkerPerimeterRate * maxDim
	maxPerimeter := params.MaxMarkerPerimeterRate * maxDim

	var all []Candidate
	for win := params.AdaptiveThreshWinSizeMin; win <= params.AdaptiveThreshWinSizeMax; win += params.AdaptiveThreshWinSizeStep {
		binary := rimage.AdaptiveThresholdMean(gray, win, params.AdaptiveThreshConstant, true)
		for _, contour := range rimage.FindContours(binary) {
			if contour.Type != rimage.Outer {
				continue
			}
			n := float64(len(contour.Points))
			if n < minPerimeter || n > maxPerimeter {
				continue
			}
			cand, ok := fitQuad(contour.Points, b.Size(), params)
			if ok {
				all = append(all, cand)
			}
		}
	}
	return filterTooClose(all, params.MinMarkerDistanceRate), nil
}

func fitQuad(points []image.Point, size image.Point, params *DetectorParameters) (Candidate, bool) {
	contour := rimage.ContourToR2(points)
	n := float64(len(points))
	approx := rimage.ApproxContourDP(contour, n*params.PolygonalApproxAccuracyRate, true)
	if len(approx) != 4 || !rimage.IsContourConvex(approx) {
		return Candidate{}, false
	}

	minCornerDist := n * params.MinCornerDistanceRate
	for i := range approx {
		d := approx[i].Sub(approx[(i+1)%4])
		if d.Dot(d) < minCornerDist*minCornerDist {
			return Candidate{}, false
		}
	}
	border := float64(params.MinDistanceToBorder)
	for _, p := range approx {
		if p.X < border || p.Y < border || p.X > float64(size.X-1)-border || p.Y > float64(size.Y-1)-border {
			return Candidate{}, false
		}
	}

	var cand Candidate
	copy(cand.Corners[:], approx)
	cand.Corners = orderCorners(cand.Corners)
	cand.Perimeter = rimage.ArcLength(contour, true)
	return cand, true
}

// orderCorners makes the winding clockwise in image coordinates and starts at the smallest x+y.
func orderCorners(c [4]r2.Point) [4]r2.Point {
	if c[1].Sub(c[0]).Cross(c[2].Sub(c[0])) < 0 {
		c[1], c[3] = c[3], c[1]
	}
	start := 0
	for i := 1; i < 4; i++ {
		if c[i].X+c[i].Y < c[start].X+c[start].Y {
			start = i
		}
	}
	var out [4]r2.Point
	for i := range out {
		out[i] = c[(start+i)%4]
	}
	return out
}

// cornerDistanceSq is the smallest mean squared distance between corresponding corners over the cyclic
// shifts of b.
func cornerDistanceSq(a, b [4]r2.Point) float64 {
	best := math.Inf(1)
	for shift := 0; shift < 4; shift++ {
		sum := 0.
		for i := range a {
			d := a[i].Sub(b[(i+shift)%4])
			sum += d.Dot(d)
		}
		best = math.Min(best, sum/4)
	}
	return best
}

// filterTooClose drops candidates whose corners nearly coincide with a candidate with a longer contour. The
// order of the survivors is the order they were found in.
func filterTooClose(cands []Candidate, rate float64) []Candidate {
	removed := make([]bool, len(cands))
	for i := range cands {
		for j := i + 1; j < len(cands); j++ {
			if removed[i] || removed[j] {
				continue
			}
			minDist := rate * math.Min(cands[i].Perimeter, cands[j].Perimeter)
			if cornerDistanceSq(cands[i].Corners, cands[j].Corners) >= minDist*minDist {
				continue
			}
			if cands[i].Perimeter >= cands[j].Perimeter {
				removed[j] = true
			} else {
				removed[i] = true
			}
		}
	}
	out := make([]Candidate, 0, len(cands))
	for i, c := range cands {
		if !removed[i] {
			out = append(out, c)
		}
	}
	return out
}
