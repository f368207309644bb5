// Package transform holds the camera model used to relate 3D points to pixels, and the planar
// homography fitting used to check detected calibration targets.
package transform

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

var (
	// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
	ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")
	// ErrPointBehindCamera is returned when projecting a point that is not in front of the image plane.
	ErrPointBehindCamera = errors.New("point is not in front of the camera")
)

// NewNoIntrinsicsError is used when the intrinsics are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
// A zero image size is allowed and means the bounds of the image are unknown.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width < 0 || params.Height < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// PointToPixel projects a 3D point to a pixel in an image plane without distortion.
// The second return value is false when the point is not in front of the camera.
func (params *PinholeCameraIntrinsics) PointToPixel(x, y, z float64) (float64, float64, bool) {
	if z <= 0 {
		return 0, 0, false
	}
	return (x/z)*params.Fx + params.Ppx, (y/z)*params.Fy + params.Ppy, true
}

// PixelToPoint transforms a pixel with depth to a 3D point in the camera frame.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	xOverZ := (x - params.Ppx) / params.Fx
	yOverZ := (y - params.Ppy) / params.Fy
	return xOverZ * z, yOverZ * z, z
}

// InImage reports whether the pixel lies within the image bounds. Intrinsics without a size
// accept every pixel.
func (params *PinholeCameraIntrinsics) InImage(pt r2.Point) bool {
	if params.Width == 0 || params.Height == 0 {
		return true
	}
	return pt.X >= 0 && pt.Y >= 0 && pt.X < float64(params.Width) && pt.Y < float64(params.Height)
}

// PinholeCameraModel is the model of a pinhole camera.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               Distorter `json:"distortion"`
}

// CheckValid checks the intrinsics and, if present, the distortion model.
func (params *PinholeCameraModel) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("camera model does not exist")
	}
	if err := params.PinholeCameraIntrinsics.CheckValid(); err != nil {
		return err
	}
	if params.Distortion != nil {
		return params.Distortion.CheckValid()
	}
	return nil
}

// ProjectPoint projects a point expressed in the camera frame to a pixel. The point is divided by
// its depth, distorted by the distortion model if there is one, then scaled by the focal lengths
// and offset by the principal point. No rounding is applied.
func (params *PinholeCameraModel) ProjectPoint(pt r3.Vector) (r2.Point, error) {
	if pt.Z <= 0 {
		return r2.Point{}, errors.Wrapf(ErrPointBehindCamera, "point (%v, %v, %v)", pt.X, pt.Y, pt.Z)
	}
	x := pt.X / pt.Z
	y := pt.Y / pt.Z
	if params.Distortion != nil {
		x, y = params.Distortion.Transform(x, y)
	}
	return r2.Point{X: x*params.Fx + params.Ppx, Y: y*params.Fy + params.Ppy}, nil
}
