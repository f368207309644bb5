package calibration

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/handeye/logging"
	"go.viam.com/handeye/rimage/transform"
	"go.viam.com/handeye/spatialmath"
)

// MinPnPCorrespondences is the fewest correspondences PnP accepts.
const MinPnPCorrespondences = 3

// PnPProblem estimates the pose of the target in the camera frame from one image.
type PnPProblem struct {
	CameraToTargetGuess spatialmath.Pose
	Intrinsics          *transform.PinholeCameraModel
	Correspondences     CorrespondenceSet
}

// PnPResult is the outcome of OptimizePnP.
type PnPResult struct {
	CameraToTarget            spatialmath.Pose
	Converged                 bool
	InitialCostPerObservation float64
	FinalCostPerObservation   float64
	Covariance                *Covariance
}

func (p PnPProblem) validate() error {
	if p.CameraToTargetGuess == nil {
		return newDegenerateInputError("PnP requires an initial camera to target guess")
	}
	if err := p.Intrinsics.CheckValid(); err != nil {
		return errors.Wrap(err, "invalid intrinsics")
	}
	if len(p.Correspondences) < MinPnPCorrespondences {
		return newDegenerateInputError("PnP requires at least %d correspondences, got %d",
			MinPnPCorrespondences, len(p.Correspondences))
	}
	if p.Correspondences.TargetPointsCollinear() {
		return newDegenerateInputError("PnP target points are collinear")
	}
	return nil
}

// OptimizePnP refines the camera to target pose by minimizing the squared reprojection error of
// the correspondences over the six pose parameters.
func OptimizePnP(ctx context.Context, problem PnPProblem, solver Solver) (PnPResult, error) {
	if err := problem.validate(); err != nil {
		return PnPResult{}, err
	}
	set := problem.Correspondences
	lsq := LeastSquaresProblem{
		NumResiduals: 2 * len(set),
		Residuals: func(dst, x []float64) {
			ReprojectionResiduals(dst, problem.Intrinsics, spatialmath.PoseFromVector(x), set)
		},
		Labels: poseLabels("camera_to_target"),
	}
	x0 := spatialmath.PoseToVector(problem.CameraToTargetGuess)
	res, err := solver.Solve(ctx, lsq, x0[:])
	if err != nil {
		return PnPResult{}, errors.Wrap(err, "PnP solve failed")
	}
	return PnPResult{
		CameraToTarget:            spatialmath.PoseFromVector(res.X),
		Converged:                 res.Converged,
		InitialCostPerObservation: costPerObservation(res.InitialCost, len(set)),
		FinalCostPerObservation:   costPerObservation(res.FinalCost, len(set)),
		Covariance:                res.Covariance,
	}, nil
}

// EstimatePnP returns the PnP camera to target pose using the default solver.
func EstimatePnP(
	ctx context.Context,
	guess spatialmath.Pose,
	set CorrespondenceSet,
	intrinsics *transform.PinholeCameraModel,
) (spatialmath.Pose, error) {
	res, err := OptimizePnP(ctx, PnPProblem{
		CameraToTargetGuess: guess,
		Intrinsics:          intrinsics,
		Correspondences:     set,
	}, DefaultSolver(logging.NewBlankLogger("pnp")))
	if err != nil {
		return nil, err
	}
	return res.CameraToTarget, nil
}
