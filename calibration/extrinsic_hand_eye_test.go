package calibration

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/handeye/logging"
	"go.viam.com/handeye/spatialmath"
)

func TestParameterLabels(t *testing.T) {
	labels := ParameterLabels()
	test.That(t, labels, test.ShouldHaveLength, 12)
	test.That(t, labels[0], test.ShouldEqual, "camera_mount_to_camera_x")
	test.That(t, labels[5], test.ShouldEqual, "camera_mount_to_camera_rz")
	test.That(t, labels[6], test.ShouldEqual, "target_mount_to_target_x")
	test.That(t, labels[11], test.ShouldEqual, "target_mount_to_target_rz")
}

func TestOptimizeRecoversTransforms(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for _, tc := range []struct {
		name          string
		cameraOnWrist bool
	}{
		{"camera on wrist", true},
		{"target on wrist", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := newScenario(t, 8, tc.cameraOnWrist)
			problem := s.problem(perturb(s.cameraMountToCamera), perturb(s.targetMountToTarget))

			res, err := Optimize(context.Background(), problem, NewLevenbergMarquardt(SolverConfig{}, logger))
			test.That(t, err, test.ShouldBeNil)
			test.That(t, res.Converged, test.ShouldBeTrue)
			test.That(t, spatialmath.PoseAlmostEqualEps(res.CameraMountToCamera, s.cameraMountToCamera, 1e-6), test.ShouldBeTrue)
			test.That(t, spatialmath.PoseAlmostEqualEps(res.TargetMountToTarget, s.targetMountToTarget, 1e-6), test.ShouldBeTrue)
			test.That(t, res.InitialCostPerObservation, test.ShouldBeGreaterThan, res.FinalCostPerObservation)
			test.That(t, res.FinalCostPerObservation, test.ShouldBeLessThan, 1e-10)
			test.That(t, res.Covariance, test.ShouldNotBeNil)
			test.That(t, res.Covariance.Labels, test.ShouldResemble, ParameterLabels())
		})
	}
}

func TestOptimizeAtGroundTruth(t *testing.T) {
	s := newScenario(t, 4, true)
	res, err := Optimize(context.Background(), s.problem(s.cameraMountToCamera, s.targetMountToTarget),
		NewLevenbergMarquardt(SolverConfig{}, logging.NewTestLogger(t)))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.InitialCostPerObservation, test.ShouldBeLessThan, 1e-12)
	test.That(t, spatialmath.PoseAlmostEqualEps(res.CameraMountToCamera, s.cameraMountToCamera, 1e-9), test.ShouldBeTrue)
}

func TestOptimizeNonConvergenceIsNotAnError(t *testing.T) {
	s := newScenario(t, 4, false)
	res, err := Optimize(context.Background(), s.problem(perturb(s.cameraMountToCamera), perturb(s.targetMountToTarget)),
		NewLevenbergMarquardt(SolverConfig{MaxIterations: 1}, logging.NewTestLogger(t)))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Converged, test.ShouldBeFalse)
	test.That(t, res.CameraMountToCamera, test.ShouldNotBeNil)
}

func TestOptimizeErrors(t *testing.T) {
	solver := NewLevenbergMarquardt(SolverConfig{}, logging.NewTestLogger(t))
	s := newScenario(t, 2, true)

	_, err := Optimize(context.Background(), ExtrinsicHandEyeProblem{
		CameraMountToCameraGuess: s.cameraMountToCamera,
		TargetMountToTargetGuess: s.targetMountToTarget,
		Intrinsics:               s.model,
	}, solver)
	test.That(t, errors.Is(err, ErrEmptyProblem), test.ShouldBeTrue)

	problem := s.problem(s.cameraMountToCamera, s.targetMountToTarget)
	problem.Intrinsics = nil
	_, err = Optimize(context.Background(), problem, solver)
	test.That(t, err, test.ShouldNotBeNil)

	problem = s.problem(nil, s.targetMountToTarget)
	_, err = Optimize(context.Background(), problem, solver)
	test.That(t, errors.Is(err, ErrDegenerateInput), test.ShouldBeTrue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Optimize(ctx, s.problem(s.cameraMountToCamera, s.targetMountToTarget), solver)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}
