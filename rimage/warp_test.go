package rimage

import (
	"image"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"go.viam.com/test"
)

func TestGetPerspectiveTransform(t *testing.T) {
	src := []r2.Point{{X: 1, Y: 1}, {X: 4, Y: 1}, {X: 4, Y: 4}, {X: 1, Y: 4}}
	dst := []r2.Point{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 5, Y: 5}, {X: 0, Y: 5}}

	m, err := GetPerspectiveTransform(src, dst)
	test.That(t, err, test.ShouldBeNil)
	r, c := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)
	assert.InEpsilon(t, 1.666666666666666, m.At(0, 0), .01)
	for i := range src {
		p := ApplyHomography(m, src[i])
		assert.InDelta(t, dst[i].X, p.X, 1e-9)
		assert.InDelta(t, dst[i].Y, p.Y, 1e-9)
	}

	_, err = GetPerspectiveTransform(src[:3], dst[:3])
	test.That(t, err, test.ShouldNotBeNil)
	collinear := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}, {X: 3, Y: 0}}
	_, err = GetPerspectiveTransform(collinear, dst)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestWarpPerspectiveGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			if x >= 10 {
				img.Pix[y*img.Stride+x] = 200
			}
		}
	}
	// the right half of [4,16]^2 lands on the right half of the 10 x 10 output
	src := []r2.Point{{X: 4, Y: 4}, {X: 16, Y: 4}, {X: 16, Y: 16}, {X: 4, Y: 16}}
	dst := []r2.Point{{X: 0, Y: 0}, {X: 12, Y: 0}, {X: 12, Y: 12}, {X: 0, Y: 12}}
	m, err := GetPerspectiveTransform(src, dst)
	test.That(t, err, test.ShouldBeNil)
	out, err := WarpPerspectiveGray(img, m, image.Point{12, 12})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Bounds().Size(), test.ShouldResemble, image.Point{12, 12})
	test.That(t, out.GrayAt(1, 5).Y, test.ShouldEqual, 0)
	test.That(t, out.GrayAt(10, 5).Y, test.ShouldEqual, 200)
}
