package spatialmath

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// PoseConfig is the serialized form of a pose: a translation and an optional orientation given
// either as a quaternion (qw, qx, qy, qz) or as an orientation vector in degrees (ox, oy, oz, theta).
type PoseConfig struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`

	QW *float64 `json:"qw,omitempty" yaml:"qw,omitempty"`
	QX *float64 `json:"qx,omitempty" yaml:"qx,omitempty"`
	QY *float64 `json:"qy,omitempty" yaml:"qy,omitempty"`
	QZ *float64 `json:"qz,omitempty" yaml:"qz,omitempty"`

	OX    *float64 `json:"ox,omitempty" yaml:"ox,omitempty"`
	OY    *float64 `json:"oy,omitempty" yaml:"oy,omitempty"`
	OZ    *float64 `json:"oz,omitempty" yaml:"oz,omitempty"`
	Theta *float64 `json:"theta,omitempty" yaml:"theta,omitempty"`
}

// NewPoseConfig serializes a pose with a quaternion orientation.
func NewPoseConfig(p Pose) *PoseConfig {
	pt := p.Point()
	q := p.Orientation().Quaternion()
	return &PoseConfig{
		X: pt.X, Y: pt.Y, Z: pt.Z,
		QW: &q.Real, QX: &q.Imag, QY: &q.Jmag, QZ: &q.Kmag,
	}
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func (pc *PoseConfig) hasQuaternion() bool {
	return pc.QW != nil || pc.QX != nil || pc.QY != nil || pc.QZ != nil
}

func (pc *PoseConfig) hasOrientationVector() bool {
	return pc.OX != nil || pc.OY != nil || pc.OZ != nil || pc.Theta != nil
}

// ParseOrientation returns the configured orientation, or the zero orientation if none is given.
func (pc *PoseConfig) ParseOrientation() (Orientation, error) {
	switch {
	case pc.hasQuaternion() && pc.hasOrientationVector():
		return nil, errors.New("pose may specify a quaternion or an orientation vector, not both")
	case pc.hasQuaternion():
		q := &Quaternion{Real: valueOrZero(pc.QW), Imag: valueOrZero(pc.QX), Jmag: valueOrZero(pc.QY), Kmag: valueOrZero(pc.QZ)}
		if q.Real == 0 && q.Imag == 0 && q.Jmag == 0 && q.Kmag == 0 {
			return nil, errors.New("pose quaternion must not be zero")
		}
		return q, nil
	case pc.hasOrientationVector():
		ov := &OrientationVectorDegrees{
			Theta: valueOrZero(pc.Theta),
			OX:    valueOrZero(pc.OX),
			OY:    valueOrZero(pc.OY),
			OZ:    valueOrZero(pc.OZ),
		}
		if ov.OX == 0 && ov.OY == 0 && ov.OZ == 0 {
			return nil, errors.New("pose orientation vector must have a direction")
		}
		return ov, nil
	default:
		return NewZeroOrientation(), nil
	}
}

// ParsePose returns the configured pose with its translation multiplied by scale, which converts
// the configured units to meters.
func (pc *PoseConfig) ParsePose(scale float64) (Pose, error) {
	if pc == nil {
		return nil, errors.New("pose is not set")
	}
	o, err := pc.ParseOrientation()
	if err != nil {
		return nil, err
	}
	return NewPose(r3.Vector{X: pc.X, Y: pc.Y, Z: pc.Z}.Mul(scale), o), nil
}
