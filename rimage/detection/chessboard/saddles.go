package chessboard

import (
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/fiducial/rimage"
	"go.viam.com/fiducial/utils"
)

// SaddleConfiguration stores the parameters to process the Hessian determinant image into a relevant saddle points map.
type SaddleConfiguration struct {
	BlurSigma         float64 `json:"blur-sigma"`         // gaussian pre-blur applied before the second derivatives
	RelativeThreshold float64 `json:"relative-threshold"` // fraction of the maximum saddle score a candidate must reach
	MaxCandidates     int     `json:"max-candidates"`     // the threshold is doubled until no more candidates remain
	NMSWindowSize     int     `json:"win-size"`           // half size of the non-maximum suppression window
	RingRadius        float64 `json:"ring-radius"`        // radius of the circle sampled around each candidate
	RingSamples       int     `json:"ring-samples"`
	MinRingContrast   float64 `json:"ring-contrast"` // minimum gray level spread on the ring
}

// DefaultSaddleConf stores the default parameters for saddle detection.
var DefaultSaddleConf = SaddleConfiguration{
	BlurSigma:         1.5,
	RelativeThreshold: 0.05,
	MaxCandidates:     2000,
	NMSWindowSize:     4,
	RingRadius:        5,
	RingSamples:       32,
	MinRingContrast:   40,
}

// computePixelWiseHessianDeterminant computes hessian components for each pixel and returns a *mat.Dense containing
// the value of the determinant of the Hessian for each pixel.
// The sign and value of the determinant of the Hessian gives location of saddle points.
func computePixelWiseHessianDeterminant(img *mat.Dense) (*mat.Dense, error) {
	nRows, nCols := img.Dims()
	sobelX := rimage.GetSobelX()
	sobelY := rimage.GetSobelY()
	gX, err := rimage.ConvolveGrayFloat64(img, &sobelX)
	if err != nil {
		return nil, err
	}
	gY, err := rimage.ConvolveGrayFloat64(img, &sobelY)
	if err != nil {
		return nil, err
	}
	gXX, err := rimage.ConvolveGrayFloat64(gX, &sobelX)
	if err != nil {
		return nil, err
	}
	gYY, err := rimage.ConvolveGrayFloat64(gY, &sobelY)
	if err != nil {
		return nil, err
	}
	gXY, err := rimage.ConvolveGrayFloat64(gX, &sobelY)
	if err != nil {
		return nil, err
	}
	m1 := mat.NewDense(nRows, nCols, nil)
	m2 := mat.NewDense(nRows, nCols, nil)
	out := mat.NewDense(nRows, nCols, nil)
	m1.MulElem(gXX, gYY)
	m2.MulElem(gXY, gXY)
	out.Sub(m1, m2)
	return out, nil
}

// SumPositive is a function to count strictly positive element in a *mat.Dense.
// Can be used with the Apply function.
func SumPositive(i, j int, val float64) float64 {
	if val > 0 {
		return 1.
	}
	return 0.
}

// PruneSaddle zeroes scores below thresh, doubling thresh until at most maxCandidates points remain.
func PruneSaddle(s mat.Matrix, thresh float64, maxCandidates int) *mat.Dense {
	r, c := s.Dims()
	scores := mat.NewDense(r, c, nil)
	pruned := mat.DenseCopyOf(s)
	for {
		decFilt := func(r, c int, v float64) float64 {
			if v < thresh {
				return 0.
			}
			return v
		}
		pruned.Apply(decFilt, pruned)
		scores.Apply(SumPositive, pruned)
		if maxCandidates <= 0 || int(mat.Sum(scores)) <= maxCandidates || thresh <= 0 {
			return pruned
		}
		thresh *= 2
	}
}

// NonMaxSuppression keeps the non-zero values of img that are the maximum of the (2*winSize+1)^2 window around
// them. Among equal maxima only the first in raster order survives.
func NonMaxSuppression(img *mat.Dense, winSize int) *mat.Dense {
	h, w := img.Dims()
	imgSup := mat.NewDense(h, w, nil)
	utils.ParallelForEachPixel(image.Point{w, h}, func(x, y int) {
		v := img.At(y, x)
		if v <= 0 {
			return
		}
		for i := max(0, y-winSize); i < min(h, y+winSize+1); i++ {
			for j := max(0, x-winSize); j < min(w, x+winSize+1); j++ {
				o := img.At(i, j)
				if o > v || (o == v && (i < y || (i == y && j < x))) {
					return
				}
			}
		}
		imgSup.Set(y, x, v)
	})
	return imgSup
}

// GetSaddleMapPoints gets a saddle score map and the pixels that are local maxima of it. The saddle score is the
// negated determinant of the Hessian gxy^2 - gxx*gyy, clamped at zero.
func GetSaddleMapPoints(img *mat.Dense, conf *SaddleConfiguration) (*mat.Dense, []image.Point, error) {
	if conf == nil {
		conf = &DefaultSaddleConf
	}
	nRows, nCols := img.Dims()
	smoothed := img
	if conf.BlurSigma > 0 {
		gauss := rimage.GetGaussianKernel(conf.BlurSigma)
		var err error
		smoothed, err = rimage.ConvolveGrayFloat64(img, &gauss)
		if err != nil {
			return nil, nil, err
		}
	}
	hessian, err := computePixelWiseHessianDeterminant(smoothed)
	if err != nil {
		return nil, nil, err
	}
	hessian.Scale(-1.0, hessian)
	saddleMap := mat.NewDense(nRows, nCols, nil)
	saddleMap.Apply(func(r, c int, v float64) float64 {
		return math.Max(v, 0)
	}, hessian)
	peak := mat.Max(saddleMap)
	if peak <= 0 {
		return saddleMap, nil, nil
	}
	saddleMap = PruneSaddle(saddleMap, conf.RelativeThreshold*peak, conf.MaxCandidates)
	nms := NonMaxSuppression(saddleMap, conf.NMSWindowSize)

	saddlePoints := make([]image.Point, 0)
	for y := 0; y < nRows; y++ {
		for x := 0; x < nCols; x++ {
			if nms.At(y, x) > 0 {
				saddlePoints = append(saddlePoints, image.Point{x, y})
			}
		}
	}
	return saddleMap, saddlePoints, nil
}

// isXJunction samples a circle around p and reports whether it crosses exactly four light/dark boundaries
// with enough contrast, as the corner shared by four chessboard squares does.
func isXJunction(img *image.Gray, p r2.Point, conf *SaddleConfiguration) bool {
	n := conf.RingSamples
	if n < 8 {
		n = 8
	}
	b := img.Bounds()
	if p.X-conf.RingRadius < float64(b.Min.X) || p.Y-conf.RingRadius < float64(b.Min.Y) ||
		p.X+conf.RingRadius > float64(b.Max.X-1) || p.Y+conf.RingRadius > float64(b.Max.Y-1) {
		return false
	}
	samples := make([]float64, n)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range samples {
		theta := 2 * math.Pi * float64(i) / float64(n)
		v := rimage.BilinearGray(img, p.X+conf.RingRadius*math.Cos(theta), p.Y+conf.RingRadius*math.Sin(theta))
		samples[i] = v
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if hi-lo < conf.MinRingContrast {
		return false
	}
	mid := (hi + lo) / 2
	band := (hi - lo) * 0.1
	states := make([]bool, 0, n)
	for _, v := range samples {
		switch {
		case v > mid+band:
			states = append(states, true)
		case v < mid-band:
			states = append(states, false)
		}
	}
	if len(states) < 4 {
		return false
	}
	transitions := 0
	for i, s := range states {
		if s != states[(i+1)%len(states)] {
			transitions++
		}
	}
	return transitions == 4
}

// FindSaddleCandidates returns the X-junction candidates of a gray image, in raster order.
func FindSaddleCandidates(img *image.Gray, conf *SaddleConfiguration) ([]r2.Point, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	if conf == nil {
		conf = &DefaultSaddleConf
	}
	gray := rimage.MakeGray(img)
	_, saddlePoints, err := GetSaddleMapPoints(rimage.GrayToDense(gray), conf)
	if err != nil {
		return nil, err
	}
	out := make([]r2.Point, 0, len(saddlePoints))
	for _, sp := range saddlePoints {
		p := r2.Point{X: float64(sp.X), Y: float64(sp.Y)}
		if isXJunction(gray, p, conf) {
			out = append(out, p)
		}
	}
	return out, nil
}

// visualization functions

// PlotSaddleMap draws the saddle candidates and, when found, the ordered grid on top of img and saves it to a
// png file: outFile.
func PlotSaddleMap(img image.Image, saddlePoints, grid []r2.Point, outFile string) error {
	dc := gg.NewContextForImage(img)
	if len(grid) > 1 {
		for i := 0; i+1 < len(grid); i++ {
			rimage.DrawSegment(dc, grid[i], grid[i+1], color.RGBA{0, 255, 0, 255}, 1)
		}
	}
	for _, pt := range saddlePoints {
		rimage.DrawPoint(dc, pt, color.RGBA{R: 255, A: 255}, 2.5)
	}
	if len(grid) > 0 {
		rimage.DrawPoint(dc, grid[0], color.RGBA{B: 255, A: 255}, 4)
	}
	return errors.Wrapf(dc.SavePNG(outFile), "error saving saddle map to %q", outFile)
}
