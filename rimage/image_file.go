// Package rimage loads calibration images from disk.
package rimage

import (
	"bufio"
	"image"
	// register image decoders.
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// SupportedExtensions are the file extensions ReadImageFromFile is expected to decode.
var SupportedExtensions = []string{".bmp", ".jpeg", ".jpg", ".png", ".ppm", ".tif", ".tiff"}

// IsImageFile reports whether the path has one of the supported image extensions.
func IsImageFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range SupportedExtensions {
		if ext == supported {
			return true
		}
	}
	return false
}

// ReadImageFromFile decodes the image at path. The format is sniffed from the content, not the
// extension.
func ReadImageFromFile(path string) (image.Image, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	img, format, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode image %q", path)
	}
	if img.Bounds().Empty() {
		return nil, errors.Errorf("image %q (%s) is empty", path, format)
	}
	return img, nil
}
