package marker

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/fiducial/internal/lm"
	"go.viam.com/fiducial/rimage/transform"
	"go.viam.com/fiducial/spatialmath"
)

// ErrDegenerateGeometry is returned for corner sets no pose can be recovered from.
var ErrDegenerateGeometry = errors.New("degenerate marker geometry")

// Pose is the transform from a marker's frame to the camera frame. The marker frame has its origin at the marker
// center, x toward the right edge, y toward the top edge and z out of the printed face.
type Pose struct {
	Rotation    r3.Vector `json:"rvec"`
	Translation r3.Vector `json:"tvec"`
	// ReprojectionError is the RMS distance in pixels between the corners and their reprojection.
	ReprojectionError float64 `json:"reprojection_error"`
}

// Transform returns the pose as a rigid transform.
func (p Pose) Transform() spatialmath.RigidTransform {
	return spatialmath.RigidTransform{Rotation: p.Rotation, Translation: p.Translation}
}

// ObjectCorners returns the corners of a marker of side length in its own frame, in detection order.
func ObjectCorners(length float64) []r3.Vector {
	h := length / 2
	return []r3.Vector{{X: -h, Y: h}, {X: h, Y: h}, {X: h, Y: -h}, {X: -h, Y: -h}}
}

func degenerate(format string, args ...interface{}) error {
	return errors.Wrapf(ErrDegenerateGeometry, format, args...)
}

func checkCorners(corners []r2.Point) error {
	if len(corners) != 4 {
		return degenerate("need 4 corners, got %d", len(corners))
	}
	for _, c := range corners {
		if math.IsNaN(c.X) || math.IsNaN(c.Y) || math.IsInf(c.X, 0) || math.IsInf(c.Y, 0) {
			return degenerate("corner %v is not finite", c)
		}
	}
	scale := 0.
	for i := range corners {
		scale = math.Max(scale, corners[i].Sub(corners[(i+1)%4]).Norm())
	}
	if scale == 0 {
		return degenerate("all corners coincide")
	}
	// every triple must span a triangle of non negligible area
	for skip := 0; skip < 4; skip++ {
		var tri []r2.Point
		for i, c := range corners {
			if i != skip {
				tri = append(tri, c)
			}
		}
		if math.Abs(tri[1].Sub(tri[0]).Cross(tri[2].Sub(tri[0]))) < 1e-6*scale*scale {
			return degenerate("corners %v are collinear or repeated", tri)
		}
	}
	return nil
}

// EstimatePose recovers the pose of a square marker of side markerLength from its four corners, ordered as
// ObjectCorners. The translation is in the unit of markerLength. The initial pose comes from the homography of
// the undistorted corners and is refined by minimizing the pixel reprojection error.
func EstimatePose(corners []r2.Point, markerLength float64, camera transform.Projector) (Pose, error) {
	if markerLength <= 0 || math.IsNaN(markerLength) || math.IsInf(markerLength, 0) {
		return Pose{}, errors.Errorf("marker length must be positive, got %v", markerLength)
	}
	if camera == nil {
		return Pose{}, transform.NewNoIntrinsicsError("pose estimation needs a camera model")
	}
	if err := checkCorners(corners); err != nil {
		return Pose{}, err
	}
	object := ObjectCorners(markerLength)

	plane := make([]r2.Point, 4)
	normalized := make([]r2.Point, 4)
	for i, c := range corners {
		plane[i] = r2.Point{X: object[i].X, Y: object[i].Y}
		normalized[i] = camera.UndistortPoint(c)
	}
	h, err := transform.EstimateHomography(plane, normalized)
	if err != nil {
		return Pose{}, degenerate("%v", err)
	}
	initial, err := poseFromHomography(h)
	if err != nil {
		return Pose{}, err
	}

	residuals := func(dst, x []float64) {
		pose := spatialmath.RigidTransform{
			Rotation:    r3.Vector{X: x[0], Y: x[1], Z: x[2]},
			Translation: r3.Vector{X: x[3], Y: x[4], Z: x[5]},
		}
		for i, p := range pose.ApplyAll(object) {
			px := camera.ProjectPoint(p)
			dst[2*i] = px.X - corners[i].X
			dst[2*i+1] = px.Y - corners[i].Y
		}
	}
	x0 := []float64{
		initial.Rotation.X, initial.Rotation.Y, initial.Rotation.Z,
		initial.Translation.X, initial.Translation.Y, initial.Translation.Z,
	}
	settings := lm.Settings{MaxIterations: 20}
	res, err := lm.Minimize(lm.Problem{Residuals: residuals, M: 8}, x0, &settings)
	if err != nil {
		return Pose{}, degenerate("refinement: %v", err)
	}
	x := res.X
	if x[5] <= 0 || math.IsNaN(res.Cost) {
		return Pose{}, degenerate("refined pose is behind the camera")
	}
	return Pose{
		Rotation:          r3.Vector{X: x[0], Y: x[1], Z: x[2]},
		Translation:       r3.Vector{X: x[3], Y: x[4], Z: x[5]},
		ReprojectionError: math.Sqrt(res.Cost / 4),
	}, nil
}

// poseFromHomography decomposes a plane to normalized image homography into a rotation and translation with
// the plane in front of the camera.
func poseFromHomography(h *transform.Homography) (spatialmath.RigidTransform, error) {
	col := func(j int) r3.Vector { return r3.Vector{X: h.At(0, j), Y: h.At(1, j), Z: h.At(2, j)} }
	h1, h2, h3 := col(0), col(1), col(2)
	norm := (h1.Norm() + h2.Norm()) / 2
	if norm < 1e-12 {
		return spatialmath.RigidTransform{}, degenerate("homography has no rotation part")
	}
	scale := 1 / norm
	if h3.Z < 0 {
		scale = -scale
	}
	r1, r2, t := h1.Mul(scale), h2.Mul(scale), h3.Mul(scale)
	r3v := r1.Cross(r2)
	raw := mat.NewDense(3, 3, []float64{
		r1.X, r2.X, r3v.X,
		r1.Y, r2.Y, r3v.Y,
		r1.Z, r2.Z, r3v.Z,
	})
	rot, err := spatialmath.NearestRotationMatrix(raw)
	if err != nil {
		return spatialmath.RigidTransform{}, degenerate("%v", err)
	}
	return spatialmath.NewRigidTransform(rot, t), nil
}

// EstimatePoseSingleMarkers estimates the pose of every corner set independently. errs[i] is non nil when
// poses[i] could not be estimated.
func EstimatePoseSingleMarkers(corners [][]r2.Point, markerLength float64, camera transform.Projector) ([]Pose, []error) {
	poses := make([]Pose, len(corners))
	errs := make([]error, len(corners))
	for i, c := range corners {
		poses[i], errs[i] = EstimatePose(c, markerLength, camera)
	}
	return poses, errs
}

// AxisPoints projects the marker origin and the tips of its x, y and z axes of the given length.
func AxisPoints(pose Pose, length float64, camera transform.Projector) [4]r2.Point {
	rt := pose.Transform()
	var out [4]r2.Point
	for i, p := range rt.ApplyAll([]r3.Vector{{}, {X: length}, {Y: length}, {Z: length}}) {
		out[i] = camera.ProjectPoint(p)
	}
	return out
}
