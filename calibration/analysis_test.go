package calibration

import (
	"context"
	"math"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/handeye/logging"
	"go.viam.com/handeye/spatialmath"
)

func TestComputeStats(t *testing.T) {
	mean, stdev := ComputeStats(nil)
	test.That(t, mean, test.ShouldEqual, 0)
	test.That(t, stdev, test.ShouldEqual, 0)

	mean, stdev = ComputeStats([]float64{5})
	test.That(t, mean, test.ShouldEqual, 5)
	test.That(t, stdev, test.ShouldEqual, 0)

	mean, stdev = ComputeStats([]float64{1, 2, 3})
	test.That(t, mean, test.ShouldAlmostEqual, 2)
	test.That(t, stdev, test.ShouldAlmostEqual, 1)

	mean, stdev = ComputeStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	test.That(t, mean, test.ShouldAlmostEqual, 5)
	test.That(t, stdev, test.ShouldAlmostEqual, math.Sqrt(32.0/7))
}

func TestAnalyzeResults(t *testing.T) {
	logger := logging.NewTestLogger(t)
	solver := NewLevenbergMarquardt(SolverConfig{}, logger)
	s := newScenario(t, 6, true)
	problem := s.problem(s.cameraMountToCamera, s.targetMountToTarget)

	t.Run("ground truth", func(t *testing.T) {
		result := ExtrinsicHandEyeResult{
			CameraMountToCamera: s.cameraMountToCamera,
			TargetMountToTarget: s.targetMountToTarget,
		}
		comparisons, stats, err := AnalyzeResults(context.Background(), problem, result, solver)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, comparisons, test.ShouldHaveLength, 6)
		for i, cmp := range comparisons {
			test.That(t, cmp.Index, test.ShouldEqual, i)
			test.That(t, cmp.PnPConverged, test.ShouldBeTrue)
			test.That(t, cmp.ReprojectionRMS, test.ShouldBeLessThan, 1e-6)
			test.That(t, spatialmath.PoseAlmostEqualEps(cmp.CameraToTarget, s.camerasToTarget[i], 1e-9), test.ShouldBeTrue)
		}
		test.That(t, stats.PositionErrorMean, test.ShouldBeLessThan, 1e-6)
		test.That(t, stats.PositionErrorStdev, test.ShouldBeLessThan, 1e-6)
		test.That(t, stats.OrientationErrorMean, test.ShouldBeLessThan, 1e-6)
		test.That(t, stats.OrientationErrorStdev, test.ShouldBeLessThan, 1e-6)
	})

	t.Run("miscalibrated", func(t *testing.T) {
		offset := rvecPose(0.005, 0, 0, 0, 0, 0.02)
		result := ExtrinsicHandEyeResult{
			CameraMountToCamera: spatialmath.Compose(s.cameraMountToCamera, offset),
			TargetMountToTarget: s.targetMountToTarget,
		}
		comparisons, stats, err := AnalyzeResults(context.Background(), problem, result, solver)
		test.That(t, err, test.ShouldBeNil)
		for i, cmp := range comparisons {
			test.That(t, spatialmath.PoseAlmostEqualEps(cmp.PnP, s.camerasToTarget[i], 1e-6), test.ShouldBeTrue)
			test.That(t, cmp.OrientationError, test.ShouldAlmostEqual, 0.02, 1e-6)
			test.That(t, cmp.ReprojectionRMS, test.ShouldBeGreaterThan, 1)
		}
		test.That(t, stats.PositionErrorMean, test.ShouldBeGreaterThan, 1e-3)
		test.That(t, stats.OrientationErrorMean, test.ShouldAlmostEqual, 0.02, 1e-6)
		test.That(t, stats.OrientationErrorStdev, test.ShouldBeLessThan, 1e-6)
	})

	t.Run("empty problem", func(t *testing.T) {
		_, _, err := AnalyzeResults(context.Background(), ExtrinsicHandEyeProblem{}, ExtrinsicHandEyeResult{}, solver)
		test.That(t, errors.Is(err, ErrEmptyProblem), test.ShouldBeTrue)
	})
}
