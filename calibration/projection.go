package calibration

import (
	"github.com/golang/geo/r3"

	"go.viam.com/handeye/rimage/transform"
	"go.viam.com/handeye/spatialmath"
)

// minProjectionDepth replaces the depth of points at or behind the camera while optimizing, so
// that such parameters produce very large residuals instead of failing.
const minProjectionDepth = 1e-6

// ReprojectionResiduals writes the x and y pixel differences between the projection of each
// target point, seen through cameraToTarget, and its detected location into dst, which must have
// length 2*len(set).
func ReprojectionResiduals(
	dst []float64,
	model *transform.PinholeCameraModel,
	cameraToTarget spatialmath.Pose,
	set CorrespondenceSet,
) {
	for i, c := range set {
		inCamera := spatialmath.Transform(cameraToTarget, c.InTarget)
		if inCamera.Z < minProjectionDepth {
			inCamera = r3.Vector{X: inCamera.X, Y: inCamera.Y, Z: minProjectionDepth}
		}
		//nolint:errcheck
		px, _ := model.ProjectPoint(inCamera)
		dst[2*i] = px.X - c.InImage.X
		dst[2*i+1] = px.Y - c.InImage.Y
	}
}

// costPerObservation converts a sum of squared residuals over n correspondences to a per
// correspondence cost.
func costPerObservation(sse float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sse / float64(n)
}

func poseLabels(prefix string) []string {
	return []string{prefix + "_x", prefix + "_y", prefix + "_z", prefix + "_rx", prefix + "_ry", prefix + "_rz"}
}
