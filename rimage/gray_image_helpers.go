package rimage

import (
	"image"
	"image/draw"
	"math"

	"gonum.org/v1/gonum/mat"
)

// SameImgSize compares images to see if they're the same size.
func SameImgSize(g1, g2 image.Image) bool {
	return g1.Bounds().Size() == g2.Bounds().Size()
}

// MakeGray converts any image into an *image.Gray whose bounds start at the origin. Gray images
// already anchored at the origin are returned as is.
func MakeGray(pic image.Image) *image.Gray {
	if g, ok := pic.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := pic.Bounds()
	result := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(result, result.Bounds(), pic, b.Min, draw.Src)
	return result
}

// GrayToDense copies the luminance of a gray image into a rows x cols float matrix.
func GrayToDense(img *image.Gray) *mat.Dense {
	b := img.Bounds()
	out := mat.NewDense(b.Dy(), b.Dx(), nil)
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()]
		for x, v := range row {
			out.Set(y, x, float64(v))
		}
	}
	return out
}

// DenseToGray converts a float matrix to a gray image, clamping values to [0, 255].
func DenseToGray(m *mat.Dense) *image.Gray {
	h, w := m.Dims()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := math.Round(m.At(y, x))
			out.Pix[y*out.Stride+x] = uint8(math.Max(0, math.Min(255, v)))
		}
	}
	return out
}

// grayAtClamped returns the pixel value, replicating the edge outside of the image.
func grayAtClamped(img *image.Gray, x, y int) float64 {
	b := img.Bounds()
	x = clampInt(x, b.Min.X, b.Max.X-1)
	y = clampInt(y, b.Min.Y, b.Max.Y-1)
	return float64(img.Pix[(y-b.Min.Y)*img.Stride+(x-b.Min.X)])
}

// BilinearGray samples a gray image at a sub-pixel location. Pixel centers sit at integer
// coordinates and the border is replicated.
func BilinearGray(img *image.Gray, x, y float64) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)
	ax := x - x0
	ay := y - y0
	ix, iy := int(x0), int(y0)
	v00 := grayAtClamped(img, ix, iy)
	v10 := grayAtClamped(img, ix+1, iy)
	v01 := grayAtClamped(img, ix, iy+1)
	v11 := grayAtClamped(img, ix+1, iy+1)
	return (1-ay)*((1-ax)*v00+ax*v10) + ay*((1-ax)*v01+ax*v11)
}

// RectSubPix extracts a (2*hw+1+2*pad) x (2*hh+1+2*pad) float patch centered on (cx, cy) using
// bilinear sampling. Row r, column c of the result is the sample at (cx-hw-pad+c, cy-hh-pad+r).
func RectSubPix(img *image.Gray, cx, cy float64, hw, hh, pad int) *mat.Dense {
	rows := 2*(hh+pad) + 1
	cols := 2*(hw+pad) + 1
	out := mat.NewDense(rows, cols, nil)
	ox := cx - float64(hw+pad)
	oy := cy - float64(hh+pad)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out.Set(r, c, BilinearGray(img, ox+float64(c), oy+float64(r)))
		}
	}
	return out
}
