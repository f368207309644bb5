package transform

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestIntrinsicsConfig(t *testing.T) {
	cfg := &IntrinsicsConfig{Fx: 900, Fy: 910, Cx: 320, Cy: 240, Width: 640, Height: 480}
	model, err := cfg.CameraModel()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Ppx, test.ShouldEqual, 320)
	test.That(t, model.Fy, test.ShouldEqual, 910)
	test.That(t, model.Distortion, test.ShouldBeNil)

	cfg.Distortion = &DistortionConfig{Model: BrownConradyDistortionType, Parameters: []float64{0.1, 0.01}}
	model, err = cfg.CameraModel()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Distortion.Parameters(), test.ShouldResemble, []float64{0.1, 0.01, 0, 0, 0})

	cfg.Distortion = &DistortionConfig{Model: "fisheye"}
	_, err = cfg.CameraModel()
	test.That(t, err, test.ShouldNotBeNil)

	_, err = (&IntrinsicsConfig{Fx: 0, Fy: 1}).CameraModel()
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	var missing *IntrinsicsConfig
	_, err = missing.CameraModel()
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
}
