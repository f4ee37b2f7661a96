package transform

import (
	"math"

	"github.com/pkg/errors"
)

// BrownConrady is the Brown-Conrady radial and tangential distortion model applied to
// normalized image coordinates. Parameters are stored in the order k1, k2, k3, p1, p2.
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// NewBrownConrady takes in a slice of floats that will be passed into the struct in order.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	if len(inp) > 5 {
		return nil, errors.Errorf("list of parameters too long, expected max 5, got %d", len(inp))
	}
	params := make([]float64, 5)
	copy(params, inp)
	return &BrownConrady{params[0], params[1], params[2], params[3], params[4]}, nil
}

// NewBrownConradyFromOpenCV builds the model from coefficients in OpenCV order: k1, k2, p1, p2, k3.
func NewBrownConradyFromOpenCV(coeffs []float64) (*BrownConrady, error) {
	if len(coeffs) > 5 {
		return nil, errors.Errorf("expected at most 5 OpenCV distortion coefficients, got %d", len(coeffs))
	}
	c := make([]float64, 5)
	copy(c, coeffs)
	return &BrownConrady{RadialK1: c[0], RadialK2: c[1], TangentialP1: c[2], TangentialP2: c[3], RadialK3: c[4]}, nil
}

// CheckValid checks if the fields for BrownConrady have valid inputs.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("BrownConrady shaped distortion_parameters not provided")
	}
	for _, p := range bc.Parameters() {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return InvalidDistortionError("BrownConrady distortion_parameters must be finite")
		}
	}
	return nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{bc.RadialK1, bc.RadialK2, bc.RadialK3, bc.TangentialP1, bc.TangentialP2}
}

// OpenCVCoefficients returns the parameters in OpenCV order: k1, k2, p1, p2, k3.
func (bc *BrownConrady) OpenCVCoefficients() []float64 {
	if bc == nil {
		return make([]float64, 5)
	}
	return []float64{bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2, bc.RadialK3}
}

// Transform distorts the undistorted normalized point (x, y).
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	r2 := x*x + y*y
	radial := 1 + r2*(bc.RadialK1+r2*(bc.RadialK2+r2*bc.RadialK3))
	xd := x*radial + 2*bc.TangentialP1*x*y + bc.TangentialP2*(r2+2*x*x)
	yd := y*radial + 2*bc.TangentialP2*x*y + bc.TangentialP1*(r2+2*y*y)
	return xd, yd
}

// Inverse returns the model that undoes this distortion.
func (bc *BrownConrady) Inverse() *InverseBrownConrady {
	if bc == nil {
		return nil
	}
	return &InverseBrownConrady{
		RadialK1:     bc.RadialK1,
		RadialK2:     bc.RadialK2,
		RadialK3:     bc.RadialK3,
		TangentialP1: bc.TangentialP1,
		TangentialP2: bc.TangentialP2,
	}
}
