package marker

import (
	"image"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/fiducial/rimage/transform"
	"go.viam.com/fiducial/spatialmath"
)

const whiteLevel = 235

// canvasWithMarker pastes marker id of dict, side pixels wide, onto a white w x h canvas at offset.
func canvasWithMarker(t *testing.T, dict *Dictionary, id, side, w, h int, offset image.Point) *image.Gray {
	t.Helper()
	m, err := DrawMarker(dict, id, side, 1)
	test.That(t, err, test.ShouldBeNil)
	canvas := blankCanvas(w, h)
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			canvas.Pix[(y+offset.Y)*canvas.Stride+x+offset.X] = m.Pix[y*m.Stride+x]
		}
	}
	return canvas
}

func blankCanvas(w, h int) *image.Gray {
	canvas := image.NewGray(image.Rect(0, 0, w, h))
	for i := range canvas.Pix {
		canvas.Pix[i] = whiteLevel
	}
	return canvas
}

func testCamera() *transform.PinholeCameraModel {
	return &transform.PinholeCameraModel{
		PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
			Width:  640,
			Height: 480,
			Fx:     600,
			Fy:     610,
			Ppx:    320.5,
			Ppy:    239.5,
		},
		Distortion: &transform.BrownConrady{
			RadialK1:     -0.12,
			RadialK2:     0.05,
			TangentialP1: 0.001,
			TangentialP2: -0.0015,
		},
	}
}

// facingPose is a marker facing the camera, tilted by tilt, with its center at t.
func facingPose(tilt, t r3.Vector) spatialmath.RigidTransform {
	flip := spatialmath.RotationVectorToMatrix(r3.Vector{X: math.Pi})
	rot := flip.MulRotation(spatialmath.RotationVectorToMatrix(tilt))
	return spatialmath.NewRigidTransform(rot, t)
}

// renderMarkerView draws marker id of side length seen through camera from pose on a white background,
// supersampled 3x3.
func renderMarkerView(t *testing.T, camera *transform.PinholeCameraModel, pose spatialmath.RigidTransform,
	dict *Dictionary, id int, length float64,
) *image.Gray {
	t.Helper()
	const ss = 3
	bits, err := dict.Bits(id)
	test.That(t, err, test.ShouldBeNil)
	cells := dict.MarkerSize + 2
	rot := pose.RotationMatrix()
	normal := rot.Col(2)
	inv := rot.Transpose()

	shade := func(px r2.Point) float64 {
		n := camera.UndistortPoint(px)
		ray := r3.Vector{X: n.X, Y: n.Y, Z: 1}
		den := normal.Dot(ray)
		if math.Abs(den) < 1e-12 {
			return whiteLevel
		}
		s := normal.Dot(pose.Translation) / den
		if s <= 0 {
			return whiteLevel
		}
		b := inv.Mul(ray.Mul(s).Sub(pose.Translation))
		u := (b.X + length/2) / length * float64(cells)
		v := (length/2 - b.Y) / length * float64(cells)
		if u < 0 || v < 0 || u >= float64(cells) || v >= float64(cells) {
			return whiteLevel
		}
		cx, cy := int(u)-1, int(v)-1
		if cx < 0 || cy < 0 || cx >= dict.MarkerSize || cy >= dict.MarkerSize || bits[cy][cx] == 0 {
			return 15
		}
		return whiteLevel
	}

	img := image.NewGray(image.Rect(0, 0, camera.Width, camera.Height))
	for y := 0; y < camera.Height; y++ {
		for x := 0; x < camera.Width; x++ {
			acc := 0.
			for sy := 0; sy < ss; sy++ {
				for sx := 0; sx < ss; sx++ {
					acc += shade(r2.Point{
						X: float64(x) - 0.5 + (float64(sx)+0.5)/ss,
						Y: float64(y) - 0.5 + (float64(sy)+0.5)/ss,
					})
				}
			}
			img.Pix[y*img.Stride+x] = uint8(math.Round(acc / (ss * ss)))
		}
	}
	return img
}

// rotationAngle is the angle of the rotation taking a to b.
func rotationAngle(a, b *spatialmath.RotationMatrix) float64 {
	return a.Transpose().MulRotation(b).RotationVector().Norm()
}
