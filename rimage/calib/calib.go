// Package calib estimates pinhole camera intrinsics and Brown-Conrady lens distortion from views of a planar
// target, the way OpenCV's calibrateCamera does: a closed form initialization followed by joint
// Levenberg-Marquardt refinement of the reprojection error. A handful of views with varied tilt is the minimum;
// around ten or more give well conditioned estimates.
package calib

import (
	"image"
	"math"
	"strconv"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/fiducial/internal/lm"
	"go.viam.com/fiducial/logging"
	"go.viam.com/fiducial/rimage/transform"
	"go.viam.com/fiducial/spatialmath"
)

var (
	// ErrCalibration is the root of every calibration failure.
	ErrCalibration = errors.New("camera calibration failed")
	// ErrNoCalibrationViews is returned when there is nothing to calibrate from.
	ErrNoCalibrationViews = errors.Wrap(ErrCalibration, "no calibration views")
)

func newCalibrationError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrCalibration, format, args...)
}

// View is one image's worth of correspondences between planar target points (z = 0) and detected pixels.
type View struct {
	Name         string      `json:"name,omitempty"`
	ImagePoints  []r2.Point  `json:"image_points"`
	ObjectPoints []r3.Vector `json:"object_points"`
}

// Options select which parameters are held fixed during refinement. The zero value estimates all of them.
type Options struct {
	FixPrincipalPoint bool `json:"fix_principal_point"`
	ZeroTangentDist   bool `json:"zero_tangent_dist"`
	FixK3             bool `json:"fix_k3"`
	MaxIterations     int  `json:"max_iterations"`
}

// Calibration is the outcome of CalibrateCamera.
type Calibration struct {
	Camera     *transform.PinholeCameraModel `json:"camera"`
	Extrinsics []spatialmath.RigidTransform  `json:"extrinsics"`
	ViewNames  []string                      `json:"view_names,omitempty"`
	// RMS is the root mean square reprojection error in pixels over all points.
	RMS        float64           `json:"rms"`
	PerViewRMS []float64         `json:"per_view_rms"`
	Errors     ReprojectionStats `json:"errors"`
	Iterations int               `json:"iterations"`
}

// intrinsic parameter layout
const (
	paramFx = iota
	paramFy
	paramCx
	paramCy
	paramK1
	paramK2
	paramP1
	paramP2
	paramK3
	numIntrinsics
)

const poseParams = 6

func (o *Options) freeIntrinsics() []int {
	free := []int{paramFx, paramFy}
	if !o.FixPrincipalPoint {
		free = append(free, paramCx, paramCy)
	}
	free = append(free, paramK1, paramK2)
	if !o.ZeroTangentDist {
		free = append(free, paramP1, paramP2)
	}
	if !o.FixK3 {
		free = append(free, paramK3)
	}
	return free
}

func cameraFromParams(size image.Point, p []float64) *transform.PinholeCameraModel {
	return &transform.PinholeCameraModel{
		PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
			Width:  size.X,
			Height: size.Y,
			Fx:     p[paramFx],
			Fy:     p[paramFy],
			Ppx:    p[paramCx],
			Ppy:    p[paramCy],
		},
		Distortion: &transform.BrownConrady{
			RadialK1:     p[paramK1],
			RadialK2:     p[paramK2],
			RadialK3:     p[paramK3],
			TangentialP1: p[paramP1],
			TangentialP2: p[paramP2],
		},
	}
}

func poseFromParams(p []float64) spatialmath.RigidTransform {
	return spatialmath.RigidTransform{
		Rotation:    r3.Vector{X: p[0], Y: p[1], Z: p[2]},
		Translation: r3.Vector{X: p[3], Y: p[4], Z: p[5]},
	}
}

func checkViews(views []View) (int, error) {
	if len(views) == 0 {
		return 0, ErrNoCalibrationViews
	}
	total := 0
	for i, v := range views {
		name := v.Name
		if name == "" {
			name = "#" + strconv.Itoa(i)
		}
		if len(v.ImagePoints) != len(v.ObjectPoints) {
			return 0, newCalibrationError("view %s has %d image points but %d object points",
				name, len(v.ImagePoints), len(v.ObjectPoints))
		}
		if len(v.ImagePoints) < 4 {
			return 0, newCalibrationError("view %s needs at least 4 points, got %d", name, len(v.ImagePoints))
		}
		for _, p := range v.ObjectPoints {
			if math.Abs(p.Z) > 1e-9 {
				return 0, newCalibrationError("view %s has non planar object points, z must be 0", name)
			}
		}
		total += len(v.ImagePoints)
	}
	return total, nil
}

// CalibrateCamera estimates the camera model of an image of size imageSize from views of a planar target.
// Initial intrinsics come from Zhang's closed form when at least three views allow it, and otherwise from the
// image-centered focal length estimate. All intrinsics, the five distortion coefficients and every view pose are
// then refined jointly.
func CalibrateCamera(views []View, imageSize image.Point, opts *Options, logger logging.Logger) (*Calibration, error) {
	if opts == nil {
		opts = &Options{}
	}
	if logger == nil {
		logger = logging.NewBlankLogger("calib")
	}
	totalPoints, err := checkViews(views)
	if err != nil {
		return nil, err
	}
	if imageSize.X <= 0 || imageSize.Y <= 0 {
		return nil, newCalibrationError("invalid image size %v", imageSize)
	}

	homographies := make([]*transform.Homography, len(views))
	for i, v := range views {
		h, err := viewHomography(v)
		if err != nil {
			return nil, errors.Wrapf(ErrCalibration, "view %d: %v", i, err)
		}
		homographies[i] = h
	}

	fx, fy, cx, cy, err := zhangIntrinsics(homographies, imageSize)
	if err != nil || opts.FixPrincipalPoint {
		if err != nil && len(views) >= 3 {
			logger.Debugw("closed form initialization unavailable, fixing the principal point at the center", "reason", err)
		}
		fx, fy, cx, cy, err = centeredFocalIntrinsics(homographies, imageSize)
		if err != nil {
			logger.Warnw("calibration views are nearly frontal", "reason", err)
		}
	}
	logger.Debugw("initial intrinsics", "fx", fx, "fy", fy, "cx", cx, "cy", cy)

	intrinsics := make([]float64, numIntrinsics)
	intrinsics[paramFx], intrinsics[paramFy], intrinsics[paramCx], intrinsics[paramCy] = fx, fy, cx, cy
	k := cameraFromParams(imageSize, intrinsics).GetCameraMatrix()
	poses := make([]spatialmath.RigidTransform, len(views))
	for i, h := range homographies {
		pose, err := initialPose(k, h)
		if err != nil {
			return nil, errors.Wrapf(ErrCalibration, "view %d: %v", i, err)
		}
		poses[i] = pose
	}

	problem := newBundle(views, imageSize, intrinsics, opts.freeIntrinsics(), totalPoints)
	settings := lm.DefaultSettings()
	if opts.MaxIterations > 0 {
		settings.MaxIterations = opts.MaxIterations
	}
	res, err := lm.Minimize(problem.problem(), problem.pack(poses), &settings)
	if err != nil {
		return nil, errors.Wrapf(ErrCalibration, "refinement: %v", err)
	}
	intrinsics, poses = problem.unpack(res.X)
	logger.Debugw("refinement finished", "iterations", res.Iterations, "status", res.Status.String())

	camera := cameraFromParams(imageSize, intrinsics)
	if err := camera.CheckValid(); err != nil {
		return nil, errors.Wrapf(ErrCalibration, "refined camera model is invalid: %v", err)
	}

	cal := &Calibration{
		Camera:     camera,
		Extrinsics: poses,
		PerViewRMS: make([]float64, len(views)),
		Iterations: res.Iterations,
	}
	var pointErrors []float64
	sumSq := 0.
	for i, v := range views {
		errs := ReprojectionErrors(camera, v, poses[i])
		viewSq := 0.
		for _, e := range errs {
			viewSq += e * e
		}
		sumSq += viewSq
		cal.PerViewRMS[i] = math.Sqrt(viewSq / float64(len(errs)))
		cal.ViewNames = append(cal.ViewNames, v.Name)
		pointErrors = append(pointErrors, errs...)
	}
	cal.RMS = math.Sqrt(sumSq / float64(totalPoints))
	cal.Errors = summarizeErrors(pointErrors)
	logger.Infow("camera calibrated",
		"views", len(views),
		"rms", cal.RMS,
		"fx", camera.Fx, "fy", camera.Fy,
		"cx", camera.Ppx, "cy", camera.Ppy,
		"distortion", camera.Distortion.OpenCVCoefficients())
	return cal, nil
}

// ReprojectionErrors returns the pixel distance between each observed point and its projection.
func ReprojectionErrors(camera *transform.PinholeCameraModel, v View, pose spatialmath.RigidTransform) []float64 {
	projected := camera.ProjectPoints(v.ObjectPoints, pose)
	out := make([]float64, len(projected))
	for i, p := range projected {
		out[i] = p.Sub(v.ImagePoints[i]).Norm()
	}
	return out
}

// bundle is the joint least squares problem over the free intrinsics and every view pose.
type bundle struct {
	views      []View
	size       image.Point
	fixed      []float64 // full intrinsic vector holding the values of fixed parameters
	free       []int
	rowOffsets []int
	rows       int
}

func newBundle(views []View, size image.Point, intrinsics []float64, free []int, totalPoints int) *bundle {
	b := &bundle{
		views: views,
		size:  size,
		fixed: append([]float64{}, intrinsics...),
		free:  free,
		rows:  2 * totalPoints,
	}
	offset := 0
	for _, v := range views {
		b.rowOffsets = append(b.rowOffsets, offset)
		offset += 2 * len(v.ImagePoints)
	}
	return b
}

func (b *bundle) pack(poses []spatialmath.RigidTransform) []float64 {
	x := make([]float64, 0, len(b.free)+poseParams*len(poses))
	for _, idx := range b.free {
		x = append(x, b.fixed[idx])
	}
	for _, p := range poses {
		x = append(x, p.Rotation.X, p.Rotation.Y, p.Rotation.Z, p.Translation.X, p.Translation.Y, p.Translation.Z)
	}
	return x
}

func (b *bundle) intrinsics(x []float64) []float64 {
	full := append([]float64{}, b.fixed...)
	for i, idx := range b.free {
		full[idx] = x[i]
	}
	return full
}

func (b *bundle) poseSlice(x []float64, view int) []float64 {
	start := len(b.free) + poseParams*view
	return x[start : start+poseParams]
}

func (b *bundle) unpack(x []float64) ([]float64, []spatialmath.RigidTransform) {
	poses := make([]spatialmath.RigidTransform, len(b.views))
	for i := range poses {
		poses[i] = poseFromParams(b.poseSlice(x, i))
	}
	return b.intrinsics(x), poses
}

// viewResiduals writes projected - observed for one view into dst.
func (b *bundle) viewResiduals(dst []float64, camera *transform.PinholeCameraModel, view int, pose []float64) {
	v := b.views[view]
	for i, p := range camera.ProjectPoints(v.ObjectPoints, poseFromParams(pose)) {
		d := p.Sub(v.ImagePoints[i])
		dst[2*i] = d.X
		dst[2*i+1] = d.Y
	}
}

func (b *bundle) residuals(dst, x []float64) {
	camera := cameraFromParams(b.size, b.intrinsics(x))
	for i := range b.views {
		off := b.rowOffsets[i]
		b.viewResiduals(dst[off:off+2*len(b.views[i].ImagePoints)], camera, i, b.poseSlice(x, i))
	}
}

// jacobian uses central differences, re-projecting only the view a pose parameter belongs to.
func (b *bundle) jacobian(dst *mat.Dense, x []float64) {
	dst.Zero()
	xp := append([]float64{}, x...)
	plus := make([]float64, b.rows)
	minus := make([]float64, b.rows)
	step := func(v float64) float64 { return 1e-6 * math.Max(1, math.Abs(v)) }

	for col := range b.free {
		h := step(x[col])
		xp[col] = x[col] + h
		b.residuals(plus, xp)
		xp[col] = x[col] - h
		b.residuals(minus, xp)
		xp[col] = x[col]
		for r := 0; r < b.rows; r++ {
			dst.Set(r, col, (plus[r]-minus[r])/(2*h))
		}
	}

	camera := cameraFromParams(b.size, b.intrinsics(x))
	for view := range b.views {
		off := b.rowOffsets[view]
		n := 2 * len(b.views[view].ImagePoints)
		pose := append([]float64{}, b.poseSlice(x, view)...)
		for k := 0; k < poseParams; k++ {
			col := len(b.free) + poseParams*view + k
			h := step(pose[k])
			orig := pose[k]
			pose[k] = orig + h
			b.viewResiduals(plus[:n], camera, view, pose)
			pose[k] = orig - h
			b.viewResiduals(minus[:n], camera, view, pose)
			pose[k] = orig
			for r := 0; r < n; r++ {
				dst.Set(off+r, col, (plus[r]-minus[r])/(2*h))
			}
		}
	}
}

func (b *bundle) problem() lm.Problem {
	return lm.Problem{Residuals: b.residuals, M: b.rows, Jacobian: b.jacobian}
}
