package transform

import "github.com/pkg/errors"

// DistortionType is the name of the distortion model.
type DistortionType string

const (
	// NoneDistortionType is for ideal pinhole cameras.
	NoneDistortionType = DistortionType("")
	// BrownConradyDistortionType is for simple lenses of narrow field easily modeled as a pinhole camera.
	BrownConradyDistortionType = DistortionType("brown_conrady")
)

// Distorter defines a Transform that takes undistorted normalized image coordinates and distorts
// them according to the model.
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	Transform(x, y float64) (float64, float64)
}

// InvalidDistortionError is used when the distortion_parameters are invalid.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(errors.New("invalid distortion_parameters"), msg)
}

// NewDistorter returns a Distorter given a valid DistortionType and its parameters.
// NoneDistortionType returns a nil Distorter.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	switch distortionType {
	case NoneDistortionType:
		if len(parameters) != 0 {
			return nil, InvalidDistortionError("parameters given without a distortion model")
		}
		return nil, nil
	case BrownConradyDistortionType:
		bc, err := NewBrownConrady(parameters)
		if err != nil {
			return nil, err
		}
		return bc, nil
	default:
		return nil, errors.Errorf("do not know how to parse %q distortion model", distortionType)
	}
}
