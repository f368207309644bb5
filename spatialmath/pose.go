// Package spatialmath defines spatial mathematical operations.
// Poses represent rigid transforms between frames: applying the pose of frame B expressed in
// frame A to a point expressed in B yields the same point expressed in A.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

const defaultPrecision = 1e-6

// Pose represents a 6dof pose, position and orientation, with respect to the origin.
// The Point() method returns the position in (x,y,z) and the Orientation() method returns
// an object that can express the rotation in many different representations.
type Pose interface {
	Point() r3.Vector
	Orientation() Orientation
}

// NewZeroPose returns a pose at (0,0,0) with same orientation as whatever frame it is placed in.
func NewZeroPose() Pose {
	return newDualQuaternion()
}

// NewPose takes in a position and orientation and returns a Pose.
func NewPose(p r3.Vector, o Orientation) Pose {
	if o == nil {
		return NewPoseFromPoint(p)
	}
	q := newDualQuaternion()
	q.Real = normalizeQuat(o.Quaternion())
	q.setTranslation(p)
	return q
}

// NewPoseFromOrientation takes in an orientation and returns a Pose with no translation.
func NewPoseFromOrientation(o Orientation) Pose {
	return NewPose(r3.Vector{}, o)
}

// NewPoseFromPoint takes in a cartesian (x,y,z) and stores it as a vector.
// It will have the same orientation as the frame it is in.
func NewPoseFromPoint(point r3.Vector) Pose {
	q := newDualQuaternion()
	q.setTranslation(point)
	return q
}

// Compose treats Poses as functions A(x) and B(x), and produces a new function C(x) = A(B(x)).
// It calculates this by multiplying the DualQuaternions representing A and B.
func Compose(a, b Pose) Pose {
	return dualQuaternionFromPose(a).transformation(dualQuaternionFromPose(b))
}

// PoseInverse will return the inverse of a pose.
func PoseInverse(p Pose) Pose {
	return dualQuaternionFromPose(p).inverse()
}

// PoseBetween returns the difference between two Poses, i.e. the pose c such that Compose(a, c) == b.
func PoseBetween(a, b Pose) Pose {
	return Compose(PoseInverse(a), b)
}

// Transform applies the pose to a point expressed in the pose's child frame.
func Transform(p Pose, point r3.Vector) r3.Vector {
	return rotateVector(p.Orientation().Quaternion(), point).Add(p.Point())
}

// PoseAlmostEqual will return a bool describing whether 2 poses are approximately the same.
func PoseAlmostEqual(a, b Pose) bool {
	return PoseAlmostEqualEps(a, b, defaultPrecision)
}

// PoseAlmostEqualEps will return a bool describing whether 2 poses are approximately the same,
// within epsilon meters of translation and epsilon radians of rotation.
func PoseAlmostEqualEps(a, b Pose, epsilon float64) bool {
	if a.Point().Sub(b.Point()).Norm() > epsilon {
		return false
	}
	return QuatAngularDistance(a.Orientation().Quaternion(), b.Orientation().Quaternion()) <= epsilon
}

// PoseToVector returns the pose as (x, y, z, rx, ry, rz) where the last three components are the
// rotation vector (axis scaled by angle) of its orientation.
func PoseToVector(p Pose) [6]float64 {
	pt := p.Point()
	aa := QuatToR3AA(p.Orientation().Quaternion())
	return [6]float64{pt.X, pt.Y, pt.Z, aa.RX, aa.RY, aa.RZ}
}

// PoseFromVector is the inverse of PoseToVector. It reads the first six values of v.
func PoseFromVector(v []float64) Pose {
	if len(v) < 6 {
		panic("PoseFromVector requires at least six values")
	}
	aa := R3AA{RX: v[3], RY: v[4], RZ: v[5]}
	return NewPose(r3.Vector{X: v[0], Y: v[1], Z: v[2]}, &aa)
}

// rotateVector rotates v by the unit quaternion q.
func rotateVector(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}

func normalizeQuat(q quat.Number) quat.Number {
	norm := quat.Abs(q)
	if norm == 0 || math.IsNaN(norm) {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/norm, q)
}
