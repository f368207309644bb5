package calibration

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/handeye/rimage/transform"
	"go.viam.com/handeye/spatialmath"
)

// ExtrinsicHandEyeProblem jointly estimates the camera mount to camera and target mount to target
// transforms from observations of a target taken at several robot poses.
type ExtrinsicHandEyeProblem struct {
	CameraMountToCameraGuess spatialmath.Pose
	TargetMountToTargetGuess spatialmath.Pose
	Intrinsics               *transform.PinholeCameraModel
	Observations             []Observation
}

// ExtrinsicHandEyeResult is the outcome of Optimize. Costs are mean squared reprojection errors
// per correspondence, in pixels squared.
type ExtrinsicHandEyeResult struct {
	CameraMountToCamera       spatialmath.Pose
	TargetMountToTarget       spatialmath.Pose
	Converged                 bool
	InitialCostPerObservation float64
	FinalCostPerObservation   float64
	Iterations                int
	Status                    string
	// Covariance of the twelve parameters, nil if it could not be estimated.
	Covariance *Covariance
}

// ParameterLabels names the twelve optimized parameters in order.
func ParameterLabels() []string {
	return append(poseLabels("camera_mount_to_camera"), poseLabels("target_mount_to_target")...)
}

// CameraToTarget returns the pose of the target in the camera frame for an observation:
// cameraMountToCamera^-1 * toCameraMount^-1 * toTargetMount * targetMountToTarget.
func CameraToTarget(obs Observation, cameraMountToCamera, targetMountToTarget spatialmath.Pose) spatialmath.Pose {
	cameraToBase := spatialmath.PoseInverse(spatialmath.Compose(obs.ToCameraMount, cameraMountToCamera))
	baseToTarget := spatialmath.Compose(obs.ToTargetMount, targetMountToTarget)
	return spatialmath.Compose(cameraToBase, baseToTarget)
}

func (p ExtrinsicHandEyeProblem) validate() error {
	if len(p.Observations) == 0 {
		return ErrEmptyProblem
	}
	if p.CameraMountToCameraGuess == nil || p.TargetMountToTargetGuess == nil {
		return newDegenerateInputError("both initial transform guesses are required")
	}
	if err := p.Intrinsics.CheckValid(); err != nil {
		return errors.Wrap(err, "invalid intrinsics")
	}
	for i, obs := range p.Observations {
		if obs.ToCameraMount == nil || obs.ToTargetMount == nil {
			return errors.Errorf("observation %d is missing a mount pose", i)
		}
		if len(obs.Correspondences) == 0 {
			return newDegenerateInputError("observation %d has no correspondences", i)
		}
	}
	return nil
}

// NumCorrespondences returns the total number of correspondences across all observations.
func (p ExtrinsicHandEyeProblem) NumCorrespondences() int {
	total := 0
	for _, obs := range p.Observations {
		total += len(obs.Correspondences)
	}
	return total
}

// residuals evaluates all observations at the twelve parameters x into dst.
func (p ExtrinsicHandEyeProblem) residuals(dst, x []float64) {
	cameraMountToCamera := spatialmath.PoseFromVector(x[:6])
	targetMountToTarget := spatialmath.PoseFromVector(x[6:12])
	offset := 0
	for _, obs := range p.Observations {
		n := 2 * len(obs.Correspondences)
		ctt := CameraToTarget(obs, cameraMountToCamera, targetMountToTarget)
		ReprojectionResiduals(dst[offset:offset+n], p.Intrinsics, ctt, obs.Correspondences)
		offset += n
	}
}

// Optimize solves for both transforms at once, minimizing the squared reprojection error of every
// correspondence of every observation. A solve that does not converge is not an error: the result
// is returned with Converged false.
func Optimize(ctx context.Context, problem ExtrinsicHandEyeProblem, solver Solver) (ExtrinsicHandEyeResult, error) {
	if err := problem.validate(); err != nil {
		return ExtrinsicHandEyeResult{}, err
	}
	numCorrespondences := problem.NumCorrespondences()
	lsq := LeastSquaresProblem{
		NumResiduals: 2 * numCorrespondences,
		Residuals:    problem.residuals,
		Labels:       ParameterLabels(),
	}
	cm2c := spatialmath.PoseToVector(problem.CameraMountToCameraGuess)
	tm2t := spatialmath.PoseToVector(problem.TargetMountToTargetGuess)
	x0 := append(cm2c[:], tm2t[:]...)

	res, err := solver.Solve(ctx, lsq, x0)
	if err != nil {
		return ExtrinsicHandEyeResult{}, errors.Wrap(err, "extrinsic hand eye solve failed")
	}
	return ExtrinsicHandEyeResult{
		CameraMountToCamera:       spatialmath.PoseFromVector(res.X[:6]),
		TargetMountToTarget:       spatialmath.PoseFromVector(res.X[6:12]),
		Converged:                 res.Converged,
		InitialCostPerObservation: costPerObservation(res.InitialCost, numCorrespondences),
		FinalCostPerObservation:   costPerObservation(res.FinalCost, numCorrespondences),
		Iterations:                res.Iterations,
		Status:                    res.Status,
		Covariance:                res.Covariance,
	}, nil
}
