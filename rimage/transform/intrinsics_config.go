package transform

import "github.com/pkg/errors"

// DistortionConfig names a distortion model and its parameters.
type DistortionConfig struct {
	Model      DistortionType `json:"model" yaml:"model"`
	Parameters []float64      `json:"parameters" yaml:"parameters"`
}

// IntrinsicsConfig is the serialized form of a camera model. Cx and Cy are the principal point.
type IntrinsicsConfig struct {
	Fx         float64           `json:"fx" yaml:"fx"`
	Fy         float64           `json:"fy" yaml:"fy"`
	Cx         float64           `json:"cx" yaml:"cx"`
	Cy         float64           `json:"cy" yaml:"cy"`
	Width      int               `json:"width_px,omitempty" yaml:"width_px,omitempty"`
	Height     int               `json:"height_px,omitempty" yaml:"height_px,omitempty"`
	Distortion *DistortionConfig `json:"distortion,omitempty" yaml:"distortion,omitempty"`
}

// CameraModel builds and checks the camera model the config describes.
func (cfg *IntrinsicsConfig) CameraModel() (*PinholeCameraModel, error) {
	if cfg == nil {
		return nil, NewNoIntrinsicsError("intrinsics are not set")
	}
	model := &PinholeCameraModel{
		PinholeCameraIntrinsics: &PinholeCameraIntrinsics{
			Width:  cfg.Width,
			Height: cfg.Height,
			Fx:     cfg.Fx,
			Fy:     cfg.Fy,
			Ppx:    cfg.Cx,
			Ppy:    cfg.Cy,
		},
	}
	if cfg.Distortion != nil {
		distorter, err := NewDistorter(cfg.Distortion.Model, cfg.Distortion.Parameters)
		if err != nil {
			return nil, errors.Wrap(err, "invalid distortion")
		}
		model.Distortion = distorter
	}
	if err := model.CheckValid(); err != nil {
		return nil, err
	}
	return model, nil
}
