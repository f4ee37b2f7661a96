package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Projector maps between camera-frame 3D points and image pixels.
type Projector interface {
	// ProjectPoint projects a camera-frame point to a (distorted) pixel.
	ProjectPoint(r3.Vector) r2.Point
	// UndistortPoint maps a pixel to undistorted normalized coordinates on the z = 1 plane.
	UndistortPoint(r2.Point) r2.Point
}

// A CameraSystem stores the intrinsic parameters of a camera and its distortion model.
type CameraSystem interface {
	Projector
	CheckValid() error
	GetCameraMatrix() *mat.Dense
}

var _ CameraSystem = (*PinholeCameraModel)(nil)
