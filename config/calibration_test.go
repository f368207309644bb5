package config

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"go.viam.com/test"

	"go.viam.com/handeye/calibration"
	"go.viam.com/handeye/logging"
	"go.viam.com/handeye/rimage/transform"
	"go.viam.com/handeye/spatialmath"
	"go.viam.com/handeye/target/synthetic"
)

const validJSON = `{
	"homography_threshold": 0.5,
	"camera_mount_to_camera_guess": {"x": 0, "y": 0, "z": 100},
	"target_mount_to_target_guess": {"x": 500, "y": 0, "z": 0, "ox": 0, "oy": 0, "oz": 1, "theta": 90},
	"intrinsics": {"fx": 1000, "fy": 1000, "cx": 640, "cy": 480, "width_px": 1280, "height_px": 960},
	"target_finder": {"type": "synthetic", "attributes": {"rows": 5}},
	"units": "mm",
	"data": [{"pose": {"x": 1000, "y": 2000, "z": 3000}}]
}`

func floatPtr(v float64) *float64 {
	return &v
}

func TestFromReaderValidate(t *testing.T) {
	_, err := FromReader("somepath.json", strings.NewReader(""))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "EOF")

	_, err = FromReader("somepath.json", strings.NewReader(`{"cloud": 1}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unmarshal")

	_, err = FromReader("somepath.json", strings.NewReader(`{}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"homography_threshold" is required`)

	conf, err := FromReader("somepath.json", strings.NewReader(validJSON))
	test.That(t, err, test.ShouldBeNil)
	expected := &Calibration{
		Mode:                     calibration.CameraOnWrist,
		Units:                    UnitsMillimeters,
		HomographyThreshold:      0.5,
		HomographySampleFraction: DefaultHomographySampleFraction,
		HomographyTrials:         DefaultHomographyTrials,
		RandomSeed:               DefaultRandomSeed,
		CorrelationThreshold:     DefaultCorrelationThreshold,
		CameraMountToCameraGuess: &spatialmath.PoseConfig{Z: 100},
		TargetMountToTargetGuess: &spatialmath.PoseConfig{
			X:  500,
			OX: floatPtr(0), OY: floatPtr(0), OZ: floatPtr(1), Theta: floatPtr(90),
		},
		Intrinsics: &transform.IntrinsicsConfig{Fx: 1000, Fy: 1000, Cx: 640, Cy: 480, Width: 1280, Height: 960},
		TargetFinder: TargetFinderConfig{
			Type:       "synthetic",
			Attributes: map[string]interface{}{"rows": 5.0},
		},
		Data:           []DataPoint{{Pose: &spatialmath.PoseConfig{X: 1000, Y: 2000, Z: 3000}}},
		ConfigFilePath: "somepath.json",
	}
	test.That(t, cmp.Diff(expected, conf), test.ShouldBeEmpty)
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Calibration {
		t.Helper()
		conf, err := FromReader("somepath.json", strings.NewReader(validJSON))
		test.That(t, err, test.ShouldBeNil)
		return conf
	}

	for _, tc := range []struct {
		name     string
		mutate   func(c *Calibration)
		expected []string
	}{
		{"negative threshold", func(c *Calibration) { c.HomographyThreshold = -1 }, []string{"homography_threshold must be positive"}},
		{"bad mode", func(c *Calibration) { c.Mode = "on_the_table" }, []string{"mode must be"}},
		{"bad units", func(c *Calibration) { c.Units = "in" }, []string{"units must be"}},
		{"sample fraction", func(c *Calibration) { c.HomographySampleFraction = 1 }, []string{"homography_sample_fraction"}},
		{"trials", func(c *Calibration) { c.HomographyTrials = -3 }, []string{"homography_trials"}},
		{"correlation threshold", func(c *Calibration) { c.CorrelationThreshold = 2 }, []string{"correlation_threshold"}},
		{
			"missing camera guess",
			func(c *Calibration) { c.CameraMountToCameraGuess = nil },
			[]string{`"camera_mount_to_camera_guess" is required`},
		},
		{
			"bad target guess",
			func(c *Calibration) { c.TargetMountToTargetGuess.QW = floatPtr(1) },
			[]string{"calibration.target_mount_to_target_guess", "not both"},
		},
		{"missing intrinsics", func(c *Calibration) { c.Intrinsics = nil }, []string{`"intrinsics" is required`}},
		{"bad intrinsics", func(c *Calibration) { c.Intrinsics.Fx = 0 }, []string{"calibration.intrinsics", "Fx"}},
		{"missing finder", func(c *Calibration) { c.TargetFinder.Type = "" }, []string{`"target_finder.type" is required`}},
		{"no data", func(c *Calibration) { c.Data = nil }, []string{`"data" is required`}},
		{
			"data without pose",
			func(c *Calibration) { c.Data = append(c.Data, DataPoint{Image: "a.png"}) },
			[]string{"calibration.data.1", `"pose" is required`},
		},
		{
			"solver",
			func(c *Calibration) { c.Solver.Method = "simulated_annealing" },
			[]string{"calibration.solver", "unknown solver method"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			conf := valid(t)
			tc.mutate(conf)
			err := conf.Validate(rootPath)
			test.That(t, err, test.ShouldNotBeNil)
			for _, substr := range tc.expected {
				test.That(t, err.Error(), test.ShouldContainSubstring, substr)
			}
		})
	}
}

func TestUnitsAndGuesses(t *testing.T) {
	conf, err := FromReader("somepath.json", strings.NewReader(validJSON))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.UnitScale(), test.ShouldEqual, 0.001)

	cm2c, tm2t, err := conf.InitialGuesses()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.PoseAlmostEqualEps(cm2c, spatialmath.NewPoseFromPoint(r3.Vector{Z: 0.1}), 1e-12), test.ShouldBeTrue)
	test.That(t, spatialmath.PoseAlmostEqual(
		tm2t,
		spatialmath.NewPose(r3.Vector{X: 0.5}, &spatialmath.OrientationVectorDegrees{OZ: 1, Theta: 90}),
	), test.ShouldBeTrue)

	test.That(t, conf.HomographyValidation(), test.ShouldResemble, calibration.HomographyValidationConfig{
		SampleFraction: DefaultHomographySampleFraction,
		Trials:         DefaultHomographyTrials,
		Seed:           DefaultRandomSeed,
	})

	model, err := conf.CameraModel()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Fx, test.ShouldEqual, 1000.)

	conf.Units = UnitsMeters
	test.That(t, conf.UnitScale(), test.ShouldEqual, 1.)
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 8, 6))), test.ShouldBeNil)
	test.That(t, f.Close(), test.ShouldBeNil)
}

func TestReadYAMLWithDataFile(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "captures")
	test.That(t, os.Mkdir(dataDir, 0o700), test.ShouldBeNil)
	writePNG(t, filepath.Join(dir, "first.png"))
	writePNG(t, filepath.Join(dataDir, "second.png"))

	test.That(t, os.WriteFile(filepath.Join(dataDir, "points.yaml"), []byte(`
- pose: {x: 0.1, y: 0.2, z: 0.3, qw: 1, qx: 0, qy: 0, qz: 0}
  image: second.png
`), 0o600), test.ShouldBeNil)

	t.Setenv("HANDEYE_TEST_DATA", dataDir)
	configPath := filepath.Join(dir, "calibration.yaml")
	test.That(t, os.WriteFile(configPath, []byte(`
mode: target_on_wrist
homography_threshold: 1.5
random_seed: 7
camera_mount_to_camera_guess: {x: 0, y: 0, z: 0}
target_mount_to_target_guess: {x: 0, y: 0, z: 0.05}
intrinsics:
  fx: 600
  fy: 600
  cx: 320
  cy: 240
  width_px: 640
  height_px: 480
  distortion:
    model: brown_conrady
    parameters: [0.01, 0, 0, 0, 0]
target_finder:
  type: features_file
  attributes:
    rows: 4
    cols: 5
    spacing: 0.02
data:
  - pose: {x: 0.4, y: 0, z: 0.2}
    image: first.png
data_file: ${HANDEYE_TEST_DATA}/points.yaml
solver:
  method: bfgs
  max_iterations: 50
`), 0o600), test.ShouldBeNil)

	conf, err := Read(configPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Mode, test.ShouldEqual, calibration.TargetOnWrist)
	test.That(t, conf.Units, test.ShouldEqual, UnitsMeters)
	test.That(t, conf.RandomSeed, test.ShouldEqual, int64(7))
	test.That(t, conf.Solver, test.ShouldResemble, calibration.SolverConfig{Method: "bfgs", MaxIterations: 50})
	test.That(t, conf.Intrinsics.Distortion.Model, test.ShouldEqual, transform.BrownConradyDistortionType)
	test.That(t, conf.TargetFinder.Attributes, test.ShouldResemble, map[string]interface{}{
		"rows": 4, "cols": 5, "spacing": 0.02,
	})
	test.That(t, conf.Data, test.ShouldHaveLength, 2)

	frames, err := conf.Frames()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frames, test.ShouldHaveLength, 2)
	test.That(t, frames[0].Index, test.ShouldEqual, 0)
	test.That(t, frames[0].Name, test.ShouldEqual, filepath.Join(dir, "first.png"))
	test.That(t, frames[0].Image.Bounds(), test.ShouldResemble, image.Rect(0, 0, 8, 6))
	test.That(t, spatialmath.PoseAlmostEqualEps(frames[0].Pose, spatialmath.NewPoseFromPoint(r3.Vector{X: 0.4, Z: 0.2}), 1e-12), test.ShouldBeTrue)
	test.That(t, frames[1].Index, test.ShouldEqual, 1)
	test.That(t, filepath.Base(frames[1].Name), test.ShouldEqual, "second.png")
	test.That(t, frames[1].Image, test.ShouldNotBeNil)

	// round trip through the other format
	out, err := Marshal("copy.json", conf)
	test.That(t, err, test.ShouldBeNil)
	copied, err := FromReader(filepath.Join(dir, "copy.json"), strings.NewReader(string(out)))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, copied.Data, test.ShouldHaveLength, 2)
	test.That(t, copied.Solver, test.ShouldResemble, conf.Solver)
}

func TestReadErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Read(filepath.Join(dir, "missing.yaml"))
	test.That(t, err, test.ShouldNotBeNil)

	configPath := filepath.Join(dir, "calibration.yml")
	test.That(t, os.WriteFile(configPath, []byte("homography_treshold: 1\n"), 0o600), test.ShouldBeNil)
	_, err = Read(configPath)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "homography_treshold")

	withDataFile := strings.Replace(validJSON, `"units": "mm",`, `"units": "mm", "data_file": "nowhere.json",`, 1)
	_, err = FromReader(filepath.Join(dir, "calibration.json"), strings.NewReader(withDataFile))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot read data file")

	conf, err := FromReader(filepath.Join(dir, "calibration.json"), strings.NewReader(validJSON))
	test.That(t, err, test.ShouldBeNil)
	conf.Data[0].Image = "missing.png"
	conf.Data = append(conf.Data, DataPoint{Pose: conf.Data[0].Pose})
	frames, err := conf.Frames()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frames, test.ShouldHaveLength, len(conf.Data))
	test.That(t, frames[0].Err, test.ShouldNotBeNil)
	test.That(t, frames[0].Err.Error(), test.ShouldContainSubstring, "missing.png")
	test.That(t, frames[0].Image, test.ShouldBeNil)
	for _, frame := range frames[1:] {
		test.That(t, frame.Err, test.ShouldBeNil)
	}
}

func TestNewTargetFinder(t *testing.T) {
	logger := logging.NewTestLogger(t)
	conf, err := FromReader("somepath.json", strings.NewReader(validJSON))
	test.That(t, err, test.ShouldBeNil)

	conf.TargetFinder = TargetFinderConfig{
		Type: synthetic.TypeName,
		Attributes: map[string]interface{}{
			"rows":                   4,
			"cols":                   5,
			"spacing":                0.02,
			"intrinsics":             map[string]interface{}{"fx": 1000, "fy": 1000, "cx": 640, "cy": 480},
			"camera_mount_to_camera": map[string]interface{}{"z": 0.1},
			"target_mount_to_target": map[string]interface{}{"x": 0.5},
		},
	}
	finder, err := conf.NewTargetFinder(context.Background(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, finder, test.ShouldHaveSameTypeAs, &synthetic.Finder{})

	conf.TargetFinder.Type = "checkerboard"
	_, err = conf.NewTargetFinder(context.Background(), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown target finder type")
}
