package rimage

import (
	"image"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/fiducial/utils"
)

// Kernel is a convolution matrix stored row major, Content[y][x].
type Kernel struct {
	Content [][]float64
	Width   int
	Height  int
}

// Size returns the kernel dimensions as a point (width, height).
func (k *Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// At returns the kernel coefficient at column x and row y.
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// Normalize returns a copy of the kernel whose coefficients sum to one. A kernel summing to zero
// is returned unchanged.
func (k *Kernel) Normalize() *Kernel {
	sum := 0.
	for _, row := range k.Content {
		for _, v := range row {
			sum += v
		}
	}
	content := make([][]float64, len(k.Content))
	for y, row := range k.Content {
		content[y] = make([]float64, len(row))
		for x, v := range row {
			if sum == 0 {
				content[y][x] = v
			} else {
				content[y][x] = v / sum
			}
		}
	}
	return &Kernel{content, k.Width, k.Height}
}

// GetSobelX returns the Kernel corresponding to the Sobel kernel in the x direction.
func GetSobelX() Kernel {
	return Kernel{
		[][]float64{
			{-1, 0, 1},
			{-2, 0, 2},
			{-1, 0, 1},
		},
		3,
		3,
	}
}

// GetSobelY returns the Kernel corresponding to the Sobel kernel in the y direction.
func GetSobelY() Kernel {
	return Kernel{
		[][]float64{
			{-1, -2, -1},
			{0, 0, 0},
			{1, 2, 1},
		},
		3,
		3,
	}
}

// GetBlur3 returns the Kernel corresponding to a mean blurring kernel of size 3 x 3.
func GetBlur3() Kernel {
	return Kernel{
		[][]float64{
			{1. / 9, 1. / 9, 1. / 9},
			{1. / 9, 1. / 9, 1. / 9},
			{1. / 9, 1. / 9, 1. / 9},
		},
		3,
		3,
	}
}

// GetGaussianKernel returns a normalized, odd sized Gaussian kernel covering 3 sigma on each side.
func GetGaussianKernel(sigma float64) Kernel {
	if sigma <= 0 {
		return Kernel{[][]float64{{1}}, 1, 1}
	}
	radius := int(math.Ceil(3 * sigma))
	size := 2*radius + 1
	content := make([][]float64, size)
	for y := 0; y < size; y++ {
		content[y] = make([]float64, size)
		for x := 0; x < size; x++ {
			dx, dy := float64(x-radius), float64(y-radius)
			content[y][x] = math.Exp(-0.5 * (dx*dx + dy*dy) / (sigma * sigma))
		}
	}
	k := Kernel{content, size, size}
	return *k.Normalize()
}

// PaddingFloat64 pads a float image so a kernel of the given size anchored at anchor can be applied
// at every original pixel. Borders replicate the nearest edge value.
func PaddingFloat64(m *mat.Dense, kernelSize, anchor image.Point) (*mat.Dense, error) {
	if anchor.X < 0 || anchor.Y < 0 || anchor.X >= kernelSize.X || anchor.Y >= kernelSize.Y {
		return nil, errors.Errorf("anchor %v outside of kernel of size %v", anchor, kernelSize)
	}
	h, w := m.Dims()
	padded := mat.NewDense(h+kernelSize.Y-1, w+kernelSize.X-1, nil)
	ph, pw := padded.Dims()
	for y := 0; y < ph; y++ {
		sy := clampInt(y-anchor.Y, 0, h-1)
		for x := 0; x < pw; x++ {
			sx := clampInt(x-anchor.X, 0, w-1)
			padded.Set(y, x, m.At(sy, sx))
		}
	}
	return padded, nil
}

// ConvolveGrayFloat64 implements a gray float64 image convolution with the Kernel filter, anchored at
// the kernel center. There is no clamping in this case.
func ConvolveGrayFloat64(m *mat.Dense, filter *Kernel) (*mat.Dense, error) {
	h, w := m.Dims()
	result := mat.NewDense(h, w, nil)
	kernelSize := filter.Size()
	padded, err := PaddingFloat64(m, kernelSize, image.Point{kernelSize.X / 2, kernelSize.Y / 2})
	if err != nil {
		return nil, err
	}

	utils.ParallelForEachPixel(image.Point{w, h}, func(x, y int) {
		sum := float64(0)
		for ky := 0; ky < kernelSize.Y; ky++ {
			for kx := 0; kx < kernelSize.X; kx++ {
				sum += padded.At(y+ky, x+kx) * filter.At(kx, ky)
			}
		}
		result.Set(y, x, sum)
	})
	return result, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
