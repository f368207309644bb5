// Package handeye runs extrinsic hand-eye calibrations: it finds the target in every captured
// image, keeps the images whose correspondences pass homography validation, jointly solves for the
// camera and target mounting transforms and checks the result against per image PnP.
package handeye

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"go.viam.com/handeye/calibration"
	"go.viam.com/handeye/config"
	"go.viam.com/handeye/logging"
	"go.viam.com/handeye/rimage/transform"
	"go.viam.com/handeye/spatialmath"
	"go.viam.com/handeye/target"
	"go.viam.com/handeye/utils"
)

// ImageState is where an image is in the pipeline. Accepted and Rejected are terminal.
type ImageState int

// The image states.
const (
	RawImage ImageState = iota
	CorrespondencesFound
	Accepted
	Rejected
)

func (s ImageState) String() string {
	switch s {
	case RawImage:
		return "raw"
	case CorrespondencesFound:
		return "correspondences found"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("ImageState(%d)", int(s))
	}
}

// ImageOutcome records what happened to one image.
type ImageOutcome struct {
	Index int
	Name  string
	State ImageState
	// HomographyError is the mean homography error in pixels, zero if validation did not run.
	HomographyError float64
	// Err says why the image was rejected.
	Err             error
	Correspondences calibration.CorrespondenceSet
}

// An ObservationGenerator turns the wrist pose of an image and its correspondences into an
// observation. calibration.CameraOnWristObservation and calibration.TargetOnWristObservation are
// the usual generators.
type ObservationGenerator func(wristPose spatialmath.Pose, set calibration.CorrespondenceSet) calibration.Observation

// GeneratorForMode returns the observation generator of a mounting mode.
func GeneratorForMode(mode string) (ObservationGenerator, error) {
	switch mode {
	case calibration.CameraOnWrist, "":
		return calibration.CameraOnWristObservation, nil
	case calibration.TargetOnWrist:
		return calibration.TargetOnWristObservation, nil
	default:
		return nil, errors.Errorf("unknown mounting mode %q", mode)
	}
}

// Config is everything a run needs, already parsed.
type Config struct {
	Finder                   target.Finder
	Frames                   []target.Frame
	Intrinsics               *transform.PinholeCameraModel
	CameraMountToCameraGuess spatialmath.Pose
	TargetMountToTargetGuess spatialmath.Pose

	// HomographyThreshold is the largest mean homography error, in pixels, of an accepted image.
	HomographyThreshold  float64
	HomographyValidation calibration.HomographyValidationConfig
	Solver               calibration.Solver
	CorrelationThreshold float64
	// Parallel validates images concurrently.
	Parallel bool
	// Clock times the stages of a run. Defaults to the wall clock.
	Clock clock.Clock
}

// NewConfig builds a run config and the observation generator of its mode from a calibration
// record. It constructs the target finder and reads every image.
func NewConfig(ctx context.Context, conf *config.Calibration, logger logging.Logger) (Config, ObservationGenerator, error) {
	generate, err := GeneratorForMode(conf.Mode)
	if err != nil {
		return Config{}, nil, err
	}
	model, err := conf.CameraModel()
	if err != nil {
		return Config{}, nil, err
	}
	cm2c, tm2t, err := conf.InitialGuesses()
	if err != nil {
		return Config{}, nil, err
	}
	solver, err := calibration.NewSolver(conf.Solver, logger.Sublogger("solver"))
	if err != nil {
		return Config{}, nil, err
	}
	finder, err := conf.NewTargetFinder(ctx, logger.Sublogger("finder"))
	if err != nil {
		return Config{}, nil, err
	}
	frames, err := conf.Frames()
	if err != nil {
		return Config{}, nil, err
	}
	return Config{
		Finder:                   finder,
		Frames:                   frames,
		Intrinsics:               model,
		CameraMountToCameraGuess: cm2c,
		TargetMountToTargetGuess: tm2t,
		HomographyThreshold:      conf.HomographyThreshold,
		HomographyValidation:     conf.HomographyValidation(),
		Solver:                   solver,
		CorrelationThreshold:     conf.CorrelationThreshold,
		Parallel:                 conf.Parallel,
	}, generate, nil
}

func (cfg Config) validateImagesConfig() error {
	if cfg.Finder == nil {
		return errors.New("a target finder is required")
	}
	if cfg.HomographyThreshold <= 0 {
		return errors.Errorf("homography threshold must be positive, got %v", cfg.HomographyThreshold)
	}
	return nil
}

func (cfg Config) clock() clock.Clock {
	if cfg.Clock == nil {
		return clock.New()
	}
	return cfg.Clock
}

// ValidateImages finds the target in every frame and checks each correspondence set with a
// homography. Outcomes are in frame order and rejections are logged in that order. Only a
// cancelled context is an error: rejected images are reported through their outcomes.
func ValidateImages(ctx context.Context, cfg Config, logger logging.Logger) ([]ImageOutcome, error) {
	if err := cfg.validateImagesConfig(); err != nil {
		return nil, err
	}
	outcomes := make([]ImageOutcome, len(cfg.Frames))
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Parallel {
		g.SetLimit(utils.ParallelFactor)
	} else {
		g.SetLimit(1)
	}
	for i, frame := range cfg.Frames {
		i, frame := i, frame
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = processImage(gctx, cfg, frame)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, outcome := range outcomes {
		if outcome.State != Rejected {
			logger.CDebugw(ctx, "image accepted", "image", outcome.Index, "name", outcome.Name,
				"homography_error", outcome.HomographyError, "correspondences", len(outcome.Correspondences))
			continue
		}
		if errors.Is(outcome.Err, calibration.ErrValidationFailure) {
			logger.Warnw("image rejected", "image", outcome.Index, "name", outcome.Name, "error", outcome.Err,
				"homography_error", outcome.HomographyError, "threshold", cfg.HomographyThreshold)
		} else {
			logger.Warnw("image rejected", "image", outcome.Index, "name", outcome.Name, "error", outcome.Err)
		}
	}
	return outcomes, nil
}

func processImage(ctx context.Context, cfg Config, frame target.Frame) ImageOutcome {
	outcome := ImageOutcome{Index: frame.Index, Name: frame.Name, State: RawImage}
	if frame.Err != nil {
		outcome.State = Rejected
		outcome.Err = errors.Wrapf(calibration.ErrDetectionFailure, "image not loaded: %v", frame.Err)
		return outcome
	}

	set, err := cfg.Finder.FindCorrespondences(ctx, frame)
	if err != nil {
		if !errors.Is(err, calibration.ErrDetectionFailure) {
			err = errors.Wrapf(calibration.ErrDetectionFailure, "%v", err)
		}
		outcome.State = Rejected
		outcome.Err = err
		return outcome
	}
	outcome.State = CorrespondencesFound
	outcome.Correspondences = set

	homographyError, err := calibration.ValidateHomography(set, cfg.HomographyValidation)
	if err != nil {
		outcome.State = Rejected
		outcome.Err = err
		return outcome
	}
	outcome.HomographyError = homographyError
	if homographyError > cfg.HomographyThreshold {
		outcome.State = Rejected
		outcome.Err = errors.Wrapf(calibration.ErrValidationFailure,
			"homography error %.4f exceeds threshold %.4f", homographyError, cfg.HomographyThreshold)
		return outcome
	}
	outcome.State = Accepted
	return outcome
}

// Run calibrates: it validates every image, optimizes both mounting transforms over the accepted
// ones and compares the result with per image PnP. When every image is rejected the solver is not
// invoked and the partial report is returned with an error wrapping
// calibration.ErrNoAcceptedObservations. A solve that does not converge is not an error; see
// Report.Divergence.
func Run(ctx context.Context, cfg Config, generate ObservationGenerator, logger logging.Logger) (*Report, error) {
	if generate == nil {
		return nil, errors.New("an observation generator is required")
	}
	if cfg.Solver == nil {
		cfg.Solver = calibration.DefaultSolver(logger.Sublogger("solver"))
	}
	clk := cfg.clock()
	report := &Report{
		ID:                   uuid.New(),
		StartedAt:            clk.Now(),
		HomographyThreshold:  cfg.HomographyThreshold,
		CorrelationThreshold: cfg.CorrelationThreshold,
	}

	start := clk.Now()
	outcomes, err := ValidateImages(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	report.ValidationDuration = clk.Since(start)
	report.Outcomes = outcomes

	problem := calibration.ExtrinsicHandEyeProblem{
		CameraMountToCameraGuess: cfg.CameraMountToCameraGuess,
		TargetMountToTargetGuess: cfg.TargetMountToTargetGuess,
		Intrinsics:               cfg.Intrinsics,
	}
	for i, outcome := range outcomes {
		if outcome.State != Accepted {
			report.Rejections = multierr.Append(report.Rejections,
				errors.Wrapf(outcome.Err, "image %d (%s)", outcome.Index, outcome.Name))
			continue
		}
		problem.Observations = append(problem.Observations, generate(cfg.Frames[i].Pose, outcome.Correspondences))
		report.ObservationImages = append(report.ObservationImages, outcome.Index)
	}
	if len(problem.Observations) == 0 {
		return report, errors.Wrapf(calibration.ErrNoAcceptedObservations, "all %d images were rejected", len(outcomes))
	}
	logger.Infow("optimizing", "run", report.ID, "observations", len(problem.Observations),
		"correspondences", problem.NumCorrespondences(), "rejected", len(outcomes)-len(problem.Observations))

	start = clk.Now()
	result, err := calibration.Optimize(ctx, problem, cfg.Solver)
	if err != nil {
		return report, err
	}
	report.OptimizationDuration = clk.Since(start)
	report.Result = result
	if !result.Converged {
		report.Divergence = errors.Wrapf(calibration.ErrOptimizationDivergence,
			"%s after %d iterations", result.Status, result.Iterations)
		logger.Warnw("optimization did not converge", "run", report.ID, "status", result.Status,
			"iterations", result.Iterations, "final_cost_per_observation", result.FinalCostPerObservation)
	}

	start = clk.Now()
	comparisons, stats, err := calibration.AnalyzeResults(ctx, problem, result, cfg.Solver)
	if err != nil {
		return report, errors.Wrap(err, "cannot analyze calibration")
	}
	report.AnalysisDuration = clk.Since(start)
	report.Comparisons = comparisons
	report.Statistics = stats
	return report, nil
}
