package spatialmath

import (
	"encoding/json"
	"math"
	"testing"

	"go.viam.com/test"
)

func TestPoseConfig(t *testing.T) {
	var pc PoseConfig
	test.That(t, json.Unmarshal([]byte(`{"x": 1, "y": 2, "z": 3, "qw": 0, "qx": 0, "qy": 0, "qz": 1}`), &pc), test.ShouldBeNil)
	p, err := pc.ParsePose(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Point(), test.ShouldResemble, r3Vec(1, 2, 3))
	test.That(t, QuatAngularDistance(p.Orientation().Quaternion(), (&R4AA{Theta: math.Pi, RZ: 1}).ToQuat()),
		test.ShouldAlmostEqual, 0)

	pc = PoseConfig{}
	test.That(t, json.Unmarshal([]byte(`{"x": 100, "ox": 0, "oy": 0, "oz": 1, "theta": 90}`), &pc), test.ShouldBeNil)
	p, err = pc.ParsePose(0.001)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Point().X, test.ShouldAlmostEqual, 0.1)
	test.That(t, p.Orientation().OrientationVectorDegrees().Theta, test.ShouldAlmostEqual, 90)

	pc = PoseConfig{Z: 2}
	p, err = pc.ParsePose(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Orientation().Quaternion().Real, test.ShouldEqual, 1)

	one := 1.0
	_, err = (&PoseConfig{QW: &one, OZ: &one}).ParsePose(1)
	test.That(t, err, test.ShouldNotBeNil)
	zero := 0.0
	_, err = (&PoseConfig{QW: &zero}).ParsePose(1)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = (&PoseConfig{Theta: &one}).ParsePose(1)
	test.That(t, err, test.ShouldNotBeNil)
	var missing *PoseConfig
	_, err = missing.ParsePose(1)
	test.That(t, err, test.ShouldNotBeNil)

	original := NewPose(r3Vec(0.1, -0.2, 0.3), &R4AA{Theta: 0.7, RX: 1, RY: 1})
	back, err := NewPoseConfig(original).ParsePose(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, PoseAlmostEqual(original, back), test.ShouldBeTrue)
}
