// Package config defines the calibration record and the readers that load it from JSON or YAML.
package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/handeye/calibration"
	"go.viam.com/handeye/logging"
	"go.viam.com/handeye/registry"
	"go.viam.com/handeye/rimage"
	"go.viam.com/handeye/rimage/transform"
	"go.viam.com/handeye/spatialmath"
	"go.viam.com/handeye/target"
)

// Length units of configured translations.
const (
	UnitsMeters      = "m"
	UnitsMillimeters = "mm"
)

// Defaults filled in by Validate.
const (
	DefaultHomographySampleFraction = 1.0 / 3
	DefaultHomographyTrials         = 10
	DefaultRandomSeed               = 1
	DefaultCorrelationThreshold     = 0.5
)

// TargetFinderConfig selects a registered target finder and its attributes.
type TargetFinderConfig struct {
	Type       string                 `json:"type" yaml:"type"`
	Attributes map[string]interface{} `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// DataPoint is one captured image and the wrist pose at capture time. Image may be empty for
// finders that do not read pixels.
type DataPoint struct {
	Pose  *spatialmath.PoseConfig `json:"pose" yaml:"pose"`
	Image string                  `json:"image,omitempty" yaml:"image,omitempty"`
}

// Calibration describes a hand-eye calibration run.
type Calibration struct {
	Mode  string `json:"mode,omitempty" yaml:"mode,omitempty"`
	Units string `json:"units,omitempty" yaml:"units,omitempty"`

	// HomographyThreshold is the largest mean homography error, in pixels, an image may have and
	// still be used.
	HomographyThreshold      float64 `json:"homography_threshold" yaml:"homography_threshold"`
	HomographySampleFraction float64 `json:"homography_sample_fraction,omitempty" yaml:"homography_sample_fraction,omitempty"`
	HomographyTrials         int     `json:"homography_trials,omitempty" yaml:"homography_trials,omitempty"`
	RandomSeed               int64   `json:"random_seed,omitempty" yaml:"random_seed,omitempty"`
	CorrelationThreshold     float64 `json:"correlation_threshold,omitempty" yaml:"correlation_threshold,omitempty"`

	CameraMountToCameraGuess *spatialmath.PoseConfig     `json:"camera_mount_to_camera_guess" yaml:"camera_mount_to_camera_guess"`
	TargetMountToTargetGuess *spatialmath.PoseConfig     `json:"target_mount_to_target_guess" yaml:"target_mount_to_target_guess"`
	Intrinsics               *transform.IntrinsicsConfig `json:"intrinsics" yaml:"intrinsics"`
	TargetFinder             TargetFinderConfig          `json:"target_finder" yaml:"target_finder"`

	Data []DataPoint `json:"data,omitempty" yaml:"data,omitempty"`
	// DataFile names a JSON or YAML file holding more data points. Its entries follow Data.
	DataFile string `json:"data_file,omitempty" yaml:"data_file,omitempty"`

	Solver   calibration.SolverConfig `json:"solver,omitempty" yaml:"solver,omitempty"`
	Parallel bool                     `json:"parallel,omitempty" yaml:"parallel,omitempty"`

	ConfigFilePath string `json:"-" yaml:"-"`
}

// Validate ensures all parts of the config are valid and fills in defaults.
func (c *Calibration) Validate(path string) error {
	switch c.Mode {
	case "":
		c.Mode = calibration.CameraOnWrist
	case calibration.CameraOnWrist, calibration.TargetOnWrist:
	default:
		return utils.NewConfigValidationError(path,
			errors.Errorf("mode must be %q or %q, got %q", calibration.CameraOnWrist, calibration.TargetOnWrist, c.Mode))
	}
	switch c.Units {
	case "":
		c.Units = UnitsMeters
	case UnitsMeters, UnitsMillimeters:
	default:
		return utils.NewConfigValidationError(path,
			errors.Errorf("units must be %q or %q, got %q", UnitsMeters, UnitsMillimeters, c.Units))
	}

	if c.HomographyThreshold == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "homography_threshold")
	}
	if c.HomographyThreshold < 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("homography_threshold must be positive, got %v", c.HomographyThreshold))
	}
	if c.HomographySampleFraction == 0 {
		c.HomographySampleFraction = DefaultHomographySampleFraction
	}
	if c.HomographySampleFraction < 0 || c.HomographySampleFraction >= 1 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("homography_sample_fraction must be in (0, 1), got %v", c.HomographySampleFraction))
	}
	if c.HomographyTrials == 0 {
		c.HomographyTrials = DefaultHomographyTrials
	}
	if c.HomographyTrials < 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("homography_trials must be positive, got %d", c.HomographyTrials))
	}
	if c.RandomSeed == 0 {
		c.RandomSeed = DefaultRandomSeed
	}
	if c.CorrelationThreshold == 0 {
		c.CorrelationThreshold = DefaultCorrelationThreshold
	}
	if c.CorrelationThreshold < 0 || c.CorrelationThreshold > 1 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("correlation_threshold must be in [0, 1], got %v", c.CorrelationThreshold))
	}

	if c.CameraMountToCameraGuess == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "camera_mount_to_camera_guess")
	}
	if _, err := c.CameraMountToCameraGuess.ParseOrientation(); err != nil {
		return utils.NewConfigValidationError(path+".camera_mount_to_camera_guess", err)
	}
	if c.TargetMountToTargetGuess == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "target_mount_to_target_guess")
	}
	if _, err := c.TargetMountToTargetGuess.ParseOrientation(); err != nil {
		return utils.NewConfigValidationError(path+".target_mount_to_target_guess", err)
	}
	if c.Intrinsics == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "intrinsics")
	}
	if _, err := c.Intrinsics.CameraModel(); err != nil {
		return utils.NewConfigValidationError(path+".intrinsics", err)
	}
	if c.TargetFinder.Type == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "target_finder.type")
	}

	if len(c.Data) == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "data")
	}
	for i, dp := range c.Data {
		dataPath := fmt.Sprintf("%s.data.%d", path, i)
		if dp.Pose == nil {
			return utils.NewConfigValidationFieldRequiredError(dataPath, "pose")
		}
		if _, err := dp.Pose.ParseOrientation(); err != nil {
			return utils.NewConfigValidationError(dataPath+".pose", err)
		}
	}

	if err := c.Solver.Validate(); err != nil {
		return utils.NewConfigValidationError(path+".solver", err)
	}
	return nil
}

// UnitScale converts configured translations to meters.
func (c *Calibration) UnitScale() float64 {
	if c.Units == UnitsMillimeters {
		return 0.001
	}
	return 1
}

// HomographyValidation returns the settings of the per-image homography check.
func (c *Calibration) HomographyValidation() calibration.HomographyValidationConfig {
	return calibration.HomographyValidationConfig{
		SampleFraction: c.HomographySampleFraction,
		Trials:         c.HomographyTrials,
		Seed:           c.RandomSeed,
	}
}

// InitialGuesses parses the configured mounting transforms in meters.
func (c *Calibration) InitialGuesses() (cameraMountToCamera, targetMountToTarget spatialmath.Pose, err error) {
	cameraMountToCamera, err = c.CameraMountToCameraGuess.ParsePose(c.UnitScale())
	if err != nil {
		return nil, nil, errors.Wrap(err, "camera_mount_to_camera_guess")
	}
	targetMountToTarget, err = c.TargetMountToTargetGuess.ParsePose(c.UnitScale())
	if err != nil {
		return nil, nil, errors.Wrap(err, "target_mount_to_target_guess")
	}
	return cameraMountToCamera, targetMountToTarget, nil
}

// CameraModel builds the configured camera model.
func (c *Calibration) CameraModel() (*transform.PinholeCameraModel, error) {
	return c.Intrinsics.CameraModel()
}

// NewTargetFinder constructs the configured target finder from the registry.
func (c *Calibration) NewTargetFinder(ctx context.Context, logger logging.Logger) (target.Finder, error) {
	return registry.NewTargetFinder(ctx, c.TargetFinder.Type, c.TargetFinder.Attributes, logger)
}

// Frames parses the data points into frames, reading every referenced image. Relative image paths
// are resolved against the directory of the config file. An image that cannot be read does not
// fail the call; its frame carries the error instead.
func (c *Calibration) Frames() ([]target.Frame, error) {
	frames := make([]target.Frame, 0, len(c.Data))
	for i, dp := range c.Data {
		pose, err := dp.Pose.ParsePose(c.UnitScale())
		if err != nil {
			return nil, errors.Wrapf(err, "data point %d", i)
		}
		frame := target.Frame{Index: i, Name: fmt.Sprintf("frame_%d", i), Pose: pose}
		if dp.Image != "" {
			frame.Name = c.resolvePath(dp.Image)
			frame.Image, frame.Err = rimage.ReadImageFromFile(frame.Name)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func (c *Calibration) resolvePath(path string) string {
	if filepath.IsAbs(path) || c.ConfigFilePath == "" {
		return path
	}
	return filepath.Join(filepath.Dir(c.ConfigFilePath), path)
}
