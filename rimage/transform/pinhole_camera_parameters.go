package transform

import (
	"encoding/json"
	"image"
	"math"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/fiducial/rimage"
	"go.viam.com/fiducial/spatialmath"
	"go.viam.com/fiducial/utils"
)

// ErrNoIntrinsics is returned when a camera model is missing or its intrinsics are unusable.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError wraps ErrNoIntrinsics with msg.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraModel is the model of a pinhole camera with optional Brown-Conrady lens distortion.
// It is produced once by calibration and only read afterwards.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               *BrownConrady `json:"distortion_parameters,omitempty"`
}

// CheckValid checks the intrinsics and, if present, the distortion parameters.
func (params *PinholeCameraModel) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("camera model does not exist")
	}
	if err := params.PinholeCameraIntrinsics.CheckValid(); err != nil {
		return err
	}
	if params.Distortion == nil {
		return nil
	}
	return params.Distortion.CheckValid()
}

// DistortionMap returns the pixel mapping from an ideal pinhole image to the distorted image the camera records.
func (params *PinholeCameraModel) DistortionMap() func(u, v float64) (float64, float64) {
	return func(u, v float64) (float64, float64) {
		n := params.toNormalized(r2.Point{X: u, Y: v})
		n.X, n.Y = params.Distortion.Transform(n.X, n.Y)
		px := params.toPixel(n)
		return px.X, px.Y
	}
}

// UndistortGray resamples img, which must match the intrinsics in size, into the image an ideal pinhole camera
// would have recorded. Pixels that map outside the source stay black.
func (params *PinholeCameraModel) UndistortGray(img *image.Gray) (*image.Gray, error) {
	if img == nil {
		return nil, errors.New("cannot undistort a nil image")
	}
	if size := img.Bounds().Size(); size != (image.Point{params.Width, params.Height}) {
		return nil, errors.Errorf("image is %dx%d but the intrinsics are for %dx%d",
			size.X, size.Y, params.Width, params.Height)
	}
	src := rimage.MakeGray(img)
	out := image.NewGray(image.Rect(0, 0, params.Width, params.Height))
	inside := r2.RectFromPoints(r2.Point{X: -0.5, Y: -0.5},
		r2.Point{X: float64(params.Width) - 0.5, Y: float64(params.Height) - 0.5})
	distort := params.DistortionMap()
	utils.ParallelForEachPixel(out.Bounds().Size(), func(u, v int) {
		x, y := distort(float64(u), float64(v))
		if !inside.ContainsPoint(r2.Point{X: x, Y: y}) {
			return
		}
		out.Pix[v*out.Stride+u] = uint8(math.Round(rimage.BilinearGray(src, x, y)))
	})
	return out, nil
}

// ProjectPoint projects a point in camera coordinates to distorted pixel coordinates.
func (params *PinholeCameraModel) ProjectPoint(p r3.Vector) r2.Point {
	x, y := params.Distortion.Transform(p.X/p.Z, p.Y/p.Z)
	return params.toPixel(r2.Point{X: x, Y: y})
}

// ProjectPoints maps object points through pose into the image.
func (params *PinholeCameraModel) ProjectPoints(points []r3.Vector, pose spatialmath.RigidTransform) []r2.Point {
	out := make([]r2.Point, len(points))
	for i, p := range pose.ApplyAll(points) {
		out[i] = params.ProjectPoint(p)
	}
	return out
}

// UndistortPoint maps a distorted pixel to undistorted normalized image coordinates (z = 1).
func (params *PinholeCameraModel) UndistortPoint(px r2.Point) r2.Point {
	n := params.toNormalized(px)
	n.X, n.Y = params.Distortion.Inverse().Transform(n.X, n.Y)
	return n
}

// UndistortPixel maps a distorted pixel to where an ideal pinhole camera with the same intrinsics would see it.
func (params *PinholeCameraModel) UndistortPixel(px r2.Point) r2.Point {
	return params.toPixel(params.UndistortPoint(px))
}

// NewPinholeCameraModelFromJSONFile reads and validates a camera model written by WriteJSONFile.
func NewPinholeCameraModelFromJSONFile(jsonPath string) (*PinholeCameraModel, error) {
	model := &PinholeCameraModel{}
	if err := readJSONFile(jsonPath, model); err != nil {
		return nil, err
	}
	if err := model.CheckValid(); err != nil {
		return nil, errors.Wrapf(err, "invalid camera model in %q", jsonPath)
	}
	return model, nil
}

// WriteJSONFile serializes the model to jsonPath.
func (params *PinholeCameraModel) WriteJSONFile(jsonPath string) error {
	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return err
	}
	//nolint:gosec
	return errors.Wrapf(os.WriteFile(jsonPath, append(data, '\n'), 0o644), "cannot write camera model to %q", jsonPath)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid reports the first unusable field, wrapped in ErrNoIntrinsics.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("intrinsics do not exist")
	}
	checks := []struct {
		bad  bool
		what string
	}{
		{params.Width <= 0 || params.Height <= 0, "image size"},
		{params.Fx <= 0, "focal length fx"},
		{params.Fy <= 0, "focal length fy"},
		{params.Ppx < 0, "principal point x"},
		{params.Ppy < 0, "principal point y"},
	}
	for _, c := range checks {
		if c.bad {
			return errors.Wrapf(ErrNoIntrinsics, "invalid %s in %+v", c.what, *params)
		}
	}
	return nil
}

// NewPinholeCameraIntrinsicsFromJSONFile reads bare intrinsics, without the camera model wrapper.
func NewPinholeCameraIntrinsicsFromJSONFile(jsonPath string) (*PinholeCameraIntrinsics, error) {
	intrinsics := &PinholeCameraIntrinsics{}
	if err := readJSONFile(jsonPath, intrinsics); err != nil {
		return nil, err
	}
	return intrinsics, nil
}

func readJSONFile(jsonPath string, into interface{}) error {
	//nolint:gosec
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return errors.Wrap(err, "cannot read camera JSON")
	}
	return errors.Wrapf(json.Unmarshal(data, into), "cannot parse camera JSON %q", jsonPath)
}

func (params *PinholeCameraIntrinsics) toNormalized(px r2.Point) r2.Point {
	return r2.Point{X: (px.X - params.Ppx) / params.Fx, Y: (px.Y - params.Ppy) / params.Fy}
}

func (params *PinholeCameraIntrinsics) toPixel(n r2.Point) r2.Point {
	return r2.Point{X: n.X*params.Fx + params.Ppx, Y: n.Y*params.Fy + params.Ppy}
}

// PixelToPoint back projects pixel (x, y) to the 3D point at depth z.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	if params == nil {
		return 0, 0, 0
	}
	n := params.toNormalized(r2.Point{X: x, Y: y})
	return n.X * z, n.Y * z, z
}

// PointToPixel projects a 3D point to a pixel in an image plane, without distortion. Points at zero depth map to
// (-1, -1), outside every image.
func (params *PinholeCameraIntrinsics) PointToPixel(x, y, z float64) (float64, float64) {
	if z == 0 {
		return -1, -1
	}
	px := params.toPixel(r2.Point{X: x / z, Y: y / z})
	return px.X, px.Y
}

// GetCameraMatrix returns K = [[fx 0 ppx] [0 fy ppy] [0 0 1]].
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	return mat.NewDense(3, 3, []float64{
		params.Fx, 0, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	})
}
