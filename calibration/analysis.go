package calibration

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"go.viam.com/handeye/spatialmath"
	"go.viam.com/handeye/utils"
)

// ObservationComparison compares the calibrated camera to target pose of one observation with
// an independent PnP estimate.
type ObservationComparison struct {
	Index          int
	CameraToTarget spatialmath.Pose
	PnP            spatialmath.Pose
	// PositionError is in the units of the poses, OrientationError in radians.
	PositionError    float64
	OrientationError float64
	PnPConverged     bool
	// ReprojectionRMS is the root mean square pixel reprojection error of the calibrated pose.
	ReprojectionRMS float64
}

// ComparisonStatistics summarizes the comparisons over all observations. Standard deviations are
// sample standard deviations.
type ComparisonStatistics struct {
	PositionErrorMean     float64
	PositionErrorStdev    float64
	OrientationErrorMean  float64
	OrientationErrorStdev float64
}

// ComputeStats returns the mean and sample standard deviation of values. The mean of no values is
// zero and the standard deviation of fewer than two values is zero.
func ComputeStats(values []float64) (mean, stdev float64) {
	switch len(values) {
	case 0:
		return 0, 0
	case 1:
		return values[0], 0
	default:
		return stat.MeanStdDev(values, nil)
	}
}

// CompareWithPnP estimates the camera to target pose of obs with PnP seeded by the calibrated pose
// and measures how far the two are apart.
func CompareWithPnP(
	ctx context.Context,
	problem ExtrinsicHandEyeProblem,
	result ExtrinsicHandEyeResult,
	obs Observation,
	solver Solver,
) (ObservationComparison, error) {
	ctt := CameraToTarget(obs, result.CameraMountToCamera, result.TargetMountToTarget)
	pnp, err := OptimizePnP(ctx, PnPProblem{
		CameraToTargetGuess: ctt,
		Intrinsics:          problem.Intrinsics,
		Correspondences:     obs.Correspondences,
	}, solver)
	if err != nil {
		return ObservationComparison{}, err
	}
	residuals := make([]float64, 2*len(obs.Correspondences))
	ReprojectionResiduals(residuals, problem.Intrinsics, ctt, obs.Correspondences)

	diff := spatialmath.PoseBetween(ctt, pnp.CameraToTarget)
	return ObservationComparison{
		CameraToTarget:   ctt,
		PnP:              pnp.CameraToTarget,
		PositionError:    diff.Point().Norm(),
		OrientationError: spatialmath.QuatAngularDistance(ctt.Orientation().Quaternion(), pnp.CameraToTarget.Orientation().Quaternion()),
		PnPConverged:     pnp.Converged,
		ReprojectionRMS:  math.Sqrt(floats.Dot(residuals, residuals) / float64(len(obs.Correspondences))),
	}, nil
}

// AnalyzeResults compares the calibration with per observation PnP for every observation of the
// problem, in parallel, and summarizes the errors. Comparisons are in observation order.
func AnalyzeResults(
	ctx context.Context,
	problem ExtrinsicHandEyeProblem,
	result ExtrinsicHandEyeResult,
	solver Solver,
) ([]ObservationComparison, ComparisonStatistics, error) {
	if len(problem.Observations) == 0 {
		return nil, ComparisonStatistics{}, ErrEmptyProblem
	}
	if result.CameraMountToCamera == nil || result.TargetMountToTarget == nil {
		return nil, ComparisonStatistics{}, errors.New("result is missing calibrated transforms")
	}

	comparisons := make([]ObservationComparison, len(problem.Observations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(utils.ParallelFactor)
	for i, obs := range problem.Observations {
		i, obs := i, obs
		g.Go(func() error {
			cmp, err := CompareWithPnP(gctx, problem, result, obs, solver)
			if err != nil {
				return errors.Wrapf(err, "observation %d", i)
			}
			cmp.Index = i
			comparisons[i] = cmp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, ComparisonStatistics{}, err
	}

	positions := make([]float64, len(comparisons))
	orientations := make([]float64, len(comparisons))
	for i, cmp := range comparisons {
		positions[i] = cmp.PositionError
		orientations[i] = cmp.OrientationError
	}
	var stats ComparisonStatistics
	stats.PositionErrorMean, stats.PositionErrorStdev = ComputeStats(positions)
	stats.OrientationErrorMean, stats.OrientationErrorStdev = ComputeStats(orientations)
	return comparisons, stats, nil
}
