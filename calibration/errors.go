package calibration

import "github.com/pkg/errors"

var (
	// ErrDetectionFailure is returned when no usable target features were found in an image.
	ErrDetectionFailure = errors.New("target features were not detected")
	// ErrValidationFailure is returned when a correspondence set fails the homography check.
	ErrValidationFailure = errors.New("correspondences failed homography validation")
	// ErrDegenerateInput is returned when the input cannot constrain the estimate, e.g. too few
	// correspondences or collinear target points.
	ErrDegenerateInput = errors.New("degenerate input")
	// ErrOptimizationDivergence marks a solve that stopped without meeting its convergence criteria.
	ErrOptimizationDivergence = errors.New("optimization did not converge")
	// ErrEmptyProblem is returned when a problem has no observations.
	ErrEmptyProblem = errors.New("problem has no observations")
	// ErrNoAcceptedObservations is returned when every image was rejected before optimization.
	ErrNoAcceptedObservations = errors.New("no observations passed validation")
)

func newDegenerateInputError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrDegenerateInput, format, args...)
}
