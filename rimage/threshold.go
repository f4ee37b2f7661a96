package rimage

import (
	"image"
	"math"
)

// BinaryMax is the foreground value written by the thresholding functions.
const BinaryMax = 255

// IntegralImage holds running sums of a gray image padded by replication, so box sums near the
// border behave as if the edge pixels extended outward.
type IntegralImage struct {
	sums   []int64
	stride int
	pad    int
}

// NewIntegralImage builds the summed area table of img padded by pad pixels on every side.
func NewIntegralImage(img *image.Gray, pad int) *IntegralImage {
	b := img.Bounds()
	w, h := b.Dx()+2*pad, b.Dy()+2*pad
	stride := w + 1
	sums := make([]int64, (h+1)*stride)
	if b.Empty() {
		return &IntegralImage{sums: sums, stride: stride, pad: pad}
	}
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(grayAtClamped(img, b.Min.X+x-pad, b.Min.Y+y-pad))
			sums[(y+1)*stride+x+1] = sums[y*stride+x+1] + rowSum
		}
	}
	return &IntegralImage{sums: sums, stride: stride, pad: pad}
}

// BoxSum returns the sum of the square of half size r centered on original pixel (x, y).
// r must not exceed the padding the table was built with.
func (ii *IntegralImage) BoxSum(x, y, r int) int64 {
	x0, y0 := x+ii.pad-r, y+ii.pad-r
	x1, y1 := x+ii.pad+r+1, y+ii.pad+r+1
	s := ii.stride
	return ii.sums[y1*s+x1] - ii.sums[y0*s+x1] - ii.sums[y1*s+x0] + ii.sums[y0*s+x0]
}

// AdaptiveThresholdMean binarizes img against the local mean over a winSize x winSize window minus
// c. A pixel becomes BinaryMax when it is greater than mean-c, or, when inverted, when it is at most
// mean-c. Even window sizes are rounded up to the next odd size.
func AdaptiveThresholdMean(img *image.Gray, winSize int, c float64, inverted bool) *image.Gray {
	if winSize < 3 {
		winSize = 3
	}
	if winSize%2 == 0 {
		winSize++
	}
	r := winSize / 2
	area := float64(winSize * winSize)
	b := img.Bounds()
	integral := NewIntegralImage(img, r)
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			mean := math.Round(float64(integral.BoxSum(x, y, r)) / area)
			v := float64(img.Pix[y*img.Stride+x])
			above := v > mean-c
			if above != inverted {
				out.Pix[y*out.Stride+x] = BinaryMax
			}
		}
	}
	return out
}

// OtsuThreshold returns the threshold maximizing the between class variance of the values.
// Values strictly greater than the threshold belong to the bright class.
func OtsuThreshold(values []uint8) uint8 {
	var hist [256]float64
	for _, v := range values {
		hist[v]++
	}
	total := float64(len(values))
	if total == 0 {
		return 0
	}
	sumAll := 0.
	for i, n := range hist {
		sumAll += float64(i) * n
	}

	var best uint8
	bestVar := -1.
	weightLow, sumLow := 0., 0.
	for t := 0; t < 256; t++ {
		weightLow += hist[t]
		if weightLow == 0 {
			continue
		}
		weightHigh := total - weightLow
		if weightHigh == 0 {
			break
		}
		sumLow += float64(t) * hist[t]
		meanLow := sumLow / weightLow
		meanHigh := (sumAll - sumLow) / weightHigh
		between := weightLow * weightHigh * (meanLow - meanHigh) * (meanLow - meanHigh)
		if between > bestVar {
			bestVar = between
			best = uint8(t)
		}
	}
	return best
}

// Threshold returns a binary image where pixels strictly greater than t are BinaryMax.
func Threshold(img *image.Gray, t uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if img.Pix[y*img.Stride+x] > t {
				out.Pix[y*out.Stride+x] = BinaryMax
			}
		}
	}
	return out
}
