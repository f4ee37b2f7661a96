package marker

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/fiducial/rimage/transform"
)

func TestEstimatePoseExactCorners(t *testing.T) {
	camera := testCamera()
	const length = 0.05
	for _, truth := range []struct {
		tilt, t r3.Vector
	}{
		{r3.Vector{}, r3.Vector{X: 0.01, Y: -0.005, Z: 0.3}},
		{r3.Vector{X: 0.4, Y: -0.3, Z: 0.8}, r3.Vector{X: -0.04, Y: 0.02, Z: 0.45}},
		{r3.Vector{X: -0.6, Y: 0.2, Z: -2.5}, r3.Vector{X: 0.05, Y: 0.03, Z: 0.25}},
	} {
		pose := facingPose(truth.tilt, truth.t)
		corners := camera.ProjectPoints(ObjectCorners(length), pose)
		est, err := EstimatePose(corners, length, camera)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, est.Translation.Sub(pose.Translation).Norm(), test.ShouldBeLessThan, 1e-6)
		test.That(t, rotationAngle(est.Transform().RotationMatrix(), pose.RotationMatrix()), test.ShouldBeLessThan, 1e-6)
		test.That(t, est.ReprojectionError, test.ShouldBeLessThan, 1e-6)
	}
}

func TestEstimatePoseDegenerate(t *testing.T) {
	camera := testCamera()
	square := []r2.Point{{X: 100, Y: 100}, {X: 200, Y: 100}, {X: 200, Y: 200}, {X: 100, Y: 200}}

	for name, corners := range map[string][]r2.Point{
		"three corners": square[:3],
		"five corners":  append(append([]r2.Point{}, square...), r2.Point{X: 1, Y: 1}),
		"collinear":     {{X: 100, Y: 100}, {X: 150, Y: 100}, {X: 200, Y: 100}, {X: 100, Y: 200}},
		"repeated":      {{X: 100, Y: 100}, {X: 100, Y: 100}, {X: 200, Y: 200}, {X: 100, Y: 200}},
		"coincident":    {{X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}},
		"not finite":    {{X: math.NaN(), Y: 100}, {X: 200, Y: 100}, {X: 200, Y: 200}, {X: 100, Y: 200}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := EstimatePose(corners, 0.05, camera)
			test.That(t, errors.Is(err, ErrDegenerateGeometry), test.ShouldBeTrue)
		})
	}

	_, err := EstimatePose(square, 0, camera)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = EstimatePose(square, 0.05, nil)
	test.That(t, errors.Is(err, transform.ErrNoIntrinsics), test.ShouldBeTrue)
}

func TestEstimatePoseSingleMarkers(t *testing.T) {
	camera := testCamera()
	pose := facingPose(r3.Vector{X: 0.2}, r3.Vector{Z: 0.4})
	good := camera.ProjectPoints(ObjectCorners(0.1), pose)
	bad := []r2.Point{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}, {X: 4, Y: 4}}

	poses, errs := EstimatePoseSingleMarkers([][]r2.Point{good, bad, good}, 0.1, camera)
	test.That(t, len(poses), test.ShouldEqual, 3)
	test.That(t, errs[0], test.ShouldBeNil)
	test.That(t, errors.Is(errs[1], ErrDegenerateGeometry), test.ShouldBeTrue)
	test.That(t, errs[2], test.ShouldBeNil)
	test.That(t, poses[2].Translation.Z, test.ShouldAlmostEqual, 0.4, 1e-6)

	poses, errs = EstimatePoseSingleMarkers(nil, 0.1, camera)
	test.That(t, poses, test.ShouldBeEmpty)
	test.That(t, errs, test.ShouldBeEmpty)
}

func TestDetectAndEstimatePoseRoundTrip(t *testing.T) {
	camera := testCamera()
	dict := NewArucoOriginalDictionary()
	const length = 0.05
	truth := facingPose(r3.Vector{X: 0.35, Y: -0.25, Z: 0.6}, r3.Vector{X: 0.012, Y: -0.008, Z: 0.3})
	img := renderMarkerView(t, camera, truth, dict, 213, length)

	params := DefaultDetectorParameters()
	params.CornerRefinementMethod = CornerRefineSubPix
	markers, _, err := DetectMarkers(img, dict, &params)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(markers), test.ShouldEqual, 1)
	test.That(t, markers[0].ID, test.ShouldEqual, 213)

	expected := camera.ProjectPoints(ObjectCorners(length), truth)
	for i, c := range markers[0].Corners {
		test.That(t, c.Sub(expected[i]).Norm(), test.ShouldBeLessThan, 1)
	}

	pose, err := EstimatePose(markers[0].CornerSlice(), length, camera)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.ReprojectionError, test.ShouldBeLessThan, 0.5)
	test.That(t, pose.Translation.Sub(truth.Translation).Norm(), test.ShouldBeLessThan, 0.005)
	test.That(t, rotationAngle(pose.Transform().RotationMatrix(), truth.RotationMatrix()), test.ShouldBeLessThan, 0.05)

	axes := AxisPoints(pose, 2*length, camera)
	test.That(t, axes[0].Sub(camera.ProjectPoint(truth.Translation)).Norm(), test.ShouldBeLessThan, 1)
}
