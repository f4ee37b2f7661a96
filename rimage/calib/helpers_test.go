package calib

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/fiducial/rimage/detection/chessboard"
	"go.viam.com/fiducial/rimage/transform"
	"go.viam.com/fiducial/spatialmath"
)

func syntheticCamera(cx, cy float64) *transform.PinholeCameraModel {
	return &transform.PinholeCameraModel{
		PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
			Width:  480,
			Height: 360,
			Fx:     400,
			Fy:     405,
			Ppx:    cx,
			Ppy:    cy,
		},
		Distortion: &transform.BrownConrady{
			RadialK1:     -0.08,
			RadialK2:     0.02,
			TangentialP1: 0.001,
			TangentialP2: -0.0005,
		},
	}
}

// boardPose tilts the board by the given rotation vector and places its center at depth z, shifted by (dx, dy).
func boardPose(pattern chessboard.PatternSize, rvec r3.Vector, z, dx, dy float64) spatialmath.RigidTransform {
	center := r3.Vector{X: float64(pattern.Cols-1) / 2, Y: float64(pattern.Rows-1) / 2}
	rot := spatialmath.RotationVectorToMatrix(rvec)
	return spatialmath.RigidTransform{
		Rotation:    rvec,
		Translation: r3.Vector{X: dx, Y: dy, Z: z}.Sub(rot.Mul(center)),
	}
}

func syntheticPoses(pattern chessboard.PatternSize) []spatialmath.RigidTransform {
	return []spatialmath.RigidTransform{
		boardPose(pattern, r3.Vector{X: 0.35, Y: 0.05}, 12, 0.3, -0.2),
		boardPose(pattern, r3.Vector{X: -0.3, Y: 0.25, Z: 0.1}, 13, -0.5, 0.3),
		boardPose(pattern, r3.Vector{X: 0.1, Y: -0.4, Z: -0.05}, 12.5, 0.6, 0.1),
		boardPose(pattern, r3.Vector{X: -0.2, Y: -0.3, Z: 0.2}, 11.5, -0.2, -0.4),
		boardPose(pattern, r3.Vector{X: 0.25, Y: 0.35, Z: -0.15}, 13.5, 0.1, 0.5),
	}
}

func syntheticViews(camera *transform.PinholeCameraModel, pattern chessboard.PatternSize,
	poses []spatialmath.RigidTransform,
) []View {
	obj := chessboard.ObjectPoints(pattern, 1)
	views := make([]View, len(poses))
	for i, pose := range poses {
		views[i] = View{ImagePoints: camera.ProjectPoints(obj, pose), ObjectPoints: obj}
	}
	return views
}

// renderBoardView draws the unit-square board seen by camera from pose, 2x2 supersampled. Inner corner (c, r)
// sits at board coordinates (c, r, 0); the squares extend one unit past the outer corners.
func renderBoardView(camera *transform.PinholeCameraModel, pattern chessboard.PatternSize,
	pose spatialmath.RigidTransform,
) *image.Gray {
	const ss = 2
	rot := pose.RotationMatrix()
	normal := rot.Col(2)
	img := image.NewGray(image.Rect(0, 0, camera.Width, camera.Height))
	for y := 0; y < camera.Height; y++ {
		for x := 0; x < camera.Width; x++ {
			acc := 0.
			for sy := 0; sy < ss; sy++ {
				for sx := 0; sx < ss; sx++ {
					px := r2.Point{
						X: float64(x) - 0.5 + (float64(sx)+0.5)/ss,
						Y: float64(y) - 0.5 + (float64(sy)+0.5)/ss,
					}
					acc += boardShade(camera, pattern, rot, normal, pose.Translation, px)
				}
			}
			img.Pix[y*img.Stride+x] = uint8(math.Round(acc / (ss * ss)))
		}
	}
	return img
}

func boardShade(camera *transform.PinholeCameraModel, pattern chessboard.PatternSize, rot *spatialmath.RotationMatrix,
	normal, t r3.Vector, px r2.Point,
) float64 {
	const light, dark = 225., 30.
	n := camera.UndistortPoint(px)
	ray := r3.Vector{X: n.X, Y: n.Y, Z: 1}
	den := normal.Dot(ray)
	if math.Abs(den) < 1e-12 {
		return light
	}
	s := normal.Dot(t) / den
	if s <= 0 {
		return light
	}
	b := rot.Transpose().Mul(ray.Mul(s).Sub(t))
	if b.X < -1 || b.Y < -1 || b.X >= float64(pattern.Cols) || b.Y >= float64(pattern.Rows) {
		return light
	}
	if (int(math.Floor(b.X))+int(math.Floor(b.Y)))%2 == 0 {
		return dark
	}
	return light
}
