package transform

import "github.com/pkg/errors"

// DistortionType is the name of the distortion model.
type DistortionType string

const (
	// BrownConradyDistortionType is for simple lenses of narrow field easily modeled as a pinhole camera.
	BrownConradyDistortionType = DistortionType("brown_conrady")
	// InverseBrownConradyDistortionType maps distorted normalized coordinates back to undistorted ones.
	InverseBrownConradyDistortionType = DistortionType("inverse_brown_conrady")
)

// Distorter maps normalized image coordinates through a lens model.
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	Transform(x, y float64) (float64, float64)
}

// ErrInvalidDistortion is the root of every distortion_parameters error.
var ErrInvalidDistortion = errors.New("invalid distortion_parameters")

// InvalidDistortionError wraps ErrInvalidDistortion with msg.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(ErrInvalidDistortion, msg)
}

var distorterConstructors = map[DistortionType]func([]float64) (Distorter, error){
	BrownConradyDistortionType: func(p []float64) (Distorter, error) {
		return NewBrownConrady(p)
	},
	InverseBrownConradyDistortionType: func(p []float64) (Distorter, error) {
		return NewInverseBrownConrady(p)
	},
}

// NewDistorter builds the named distortion model from its parameters.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	newDistorter, ok := distorterConstructors[distortionType]
	if !ok {
		return nil, errors.Errorf("unknown distortion model %q", distortionType)
	}
	return newDistorter(parameters)
}
