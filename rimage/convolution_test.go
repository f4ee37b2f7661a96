package rimage

import (
	"image"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestConvolveGrayFloat64(t *testing.T) {
	// horizontal ramp: every interior x gradient is 8 (sobel weights sum 4, step 2 * 1)
	h, w := 6, 8
	ramp := mat.NewDense(h, w, nil)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ramp.Set(y, x, float64(x))
		}
	}
	sobelX := GetSobelX()
	gx, err := ConvolveGrayFloat64(ramp, &sobelX)
	test.That(t, err, test.ShouldBeNil)
	r, c := gx.Dims()
	test.That(t, r, test.ShouldEqual, h)
	test.That(t, c, test.ShouldEqual, w)
	test.That(t, gx.At(3, 3), test.ShouldAlmostEqual, 8)
	// replicated border halves the response on the edge columns
	test.That(t, gx.At(3, 0), test.ShouldAlmostEqual, 4)

	sobelY := GetSobelY()
	gy, err := ConvolveGrayFloat64(ramp, &sobelY)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.Max(gy), test.ShouldAlmostEqual, 0)
	test.That(t, mat.Min(gy), test.ShouldAlmostEqual, 0)

	blur := GetBlur3()
	blurred, err := ConvolveGrayFloat64(ramp, &blur)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, blurred.At(2, 4), test.ShouldAlmostEqual, 4)
}

func TestGaussianKernel(t *testing.T) {
	k := GetGaussianKernel(1)
	test.That(t, k.Size(), test.ShouldResemble, image.Point{7, 7})
	sum := 0.
	for y := 0; y < k.Height; y++ {
		for x := 0; x < k.Width; x++ {
			sum += k.At(x, y)
		}
	}
	test.That(t, sum, test.ShouldAlmostEqual, 1)
	test.That(t, k.At(3, 3), test.ShouldBeGreaterThan, k.At(2, 3))

	identity := GetGaussianKernel(0)
	test.That(t, identity.Size(), test.ShouldResemble, image.Point{1, 1})
}

func TestPaddingFloat64(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	padded, err := PaddingFloat64(m, image.Point{3, 3}, image.Point{1, 1})
	test.That(t, err, test.ShouldBeNil)
	r, c := padded.Dims()
	test.That(t, r, test.ShouldEqual, 4)
	test.That(t, c, test.ShouldEqual, 4)
	test.That(t, padded.At(0, 0), test.ShouldEqual, 1)
	test.That(t, padded.At(3, 3), test.ShouldEqual, 4)
	test.That(t, padded.At(0, 3), test.ShouldEqual, 2)

	_, err = PaddingFloat64(m, image.Point{3, 3}, image.Point{3, 1})
	test.That(t, err, test.ShouldNotBeNil)
}
