// Package calibration estimates the extrinsic hand-eye transforms of a camera and a calibration
// target mounted on a robot, and cross-checks the estimate with per-image pose estimation.
package calibration

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/handeye/spatialmath"
)

// Correspondence2D3D pairs a target feature observed in an image with its location in the target frame.
type Correspondence2D3D struct {
	InImage  r2.Point  `json:"in_image"`
	InTarget r3.Vector `json:"in_target"`
}

// CorrespondenceSet is an ordered list of correspondences from a single image.
type CorrespondenceSet []Correspondence2D3D

// ImagePoints returns the image coordinates in set order.
func (set CorrespondenceSet) ImagePoints() []r2.Point {
	pts := make([]r2.Point, len(set))
	for i, c := range set {
		pts[i] = c.InImage
	}
	return pts
}

// TargetPoints returns the target frame coordinates in set order.
func (set CorrespondenceSet) TargetPoints() []r3.Vector {
	pts := make([]r3.Vector, len(set))
	for i, c := range set {
		pts[i] = c.InTarget
	}
	return pts
}

// TargetPlanePoints returns the x and y target frame coordinates in set order.
func (set CorrespondenceSet) TargetPlanePoints() []r2.Point {
	pts := make([]r2.Point, len(set))
	for i, c := range set {
		pts[i] = r2.Point{X: c.InTarget.X, Y: c.InTarget.Y}
	}
	return pts
}

// Subset returns the correspondences at the given indices, in index order.
func (set CorrespondenceSet) Subset(indices []int) CorrespondenceSet {
	sub := make(CorrespondenceSet, len(indices))
	for i, idx := range indices {
		sub[i] = set[idx]
	}
	return sub
}

// Complement returns the correspondences whose indices are not listed, in set order.
func (set CorrespondenceSet) Complement(indices []int) CorrespondenceSet {
	excluded := make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		excluded[idx] = struct{}{}
	}
	rest := make(CorrespondenceSet, 0, len(set)-len(excluded))
	for i, c := range set {
		if _, ok := excluded[i]; !ok {
			rest = append(rest, c)
		}
	}
	return rest
}

// IsPlanar reports whether every target point lies on the z = 0 plane of the target frame, within
// a tolerance relative to the extent of the target.
func (set CorrespondenceSet) IsPlanar() bool {
	extent := 1.0
	for _, c := range set {
		extent = math.Max(extent, math.Max(math.Abs(c.InTarget.X), math.Abs(c.InTarget.Y)))
	}
	for _, c := range set {
		if math.Abs(c.InTarget.Z) > 1e-9*extent {
			return false
		}
	}
	return true
}

// TargetPointsCollinear reports whether the target points all lie on one line (or coincide).
func (set CorrespondenceSet) TargetPointsCollinear() bool {
	if len(set) < 3 {
		return true
	}
	var centroid r3.Vector
	for _, c := range set {
		centroid = centroid.Add(c.InTarget)
	}
	centroid = centroid.Mul(1 / float64(len(set)))

	scatter := mat.NewSymDense(3, nil)
	for _, c := range set {
		d := c.InTarget.Sub(centroid)
		v := []float64{d.X, d.Y, d.Z}
		for i := 0; i < 3; i++ {
			for j := i; j < 3; j++ {
				scatter.SetSym(i, j, scatter.At(i, j)+v[i]*v[j])
			}
		}
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(scatter, false); !ok {
		return true
	}
	// ascending order
	values := eig.Values(nil)
	return values[1] <= 1e-12*values[2]
}

// Observation is one accepted image: the robot poses at capture time and the correspondences
// detected in the image.
type Observation struct {
	// ToCameraMount is the pose of the camera mount in the robot base frame.
	ToCameraMount spatialmath.Pose
	// ToTargetMount is the pose of the target mount in the robot base frame.
	ToTargetMount   spatialmath.Pose
	Correspondences CorrespondenceSet
}

// Mounting modes: which of the camera and the target the robot carries.
const (
	CameraOnWrist = "camera_on_wrist"
	TargetOnWrist = "target_on_wrist"
)

// CameraOnWristObservation builds an observation for a camera carried by the robot looking at a
// static target: the wrist pose moves the camera mount and the target mount is the base frame.
func CameraOnWristObservation(wristPose spatialmath.Pose, set CorrespondenceSet) Observation {
	return Observation{
		ToCameraMount:   wristPose,
		ToTargetMount:   spatialmath.NewZeroPose(),
		Correspondences: set,
	}
}

// TargetOnWristObservation builds an observation for a target carried by the robot in front of a
// static camera: the wrist pose moves the target mount and the camera mount is the base frame.
func TargetOnWristObservation(wristPose spatialmath.Pose, set CorrespondenceSet) Observation {
	return Observation{
		ToCameraMount:   spatialmath.NewZeroPose(),
		ToTargetMount:   wristPose,
		Correspondences: set,
	}
}

// TargetPlanePoint returns the x and y target frame coordinates.
func (c Correspondence2D3D) TargetPlanePoint() r2.Point {
	return r2.Point{X: c.InTarget.X, Y: c.InTarget.Y}
}
