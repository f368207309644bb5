package rimage

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/lmittmann/ppm"
	"go.viam.com/test"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 8))
	for x := 0; x < 4; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.NRGBA{R: 255, A: 255})
		}
	}
	return img
}

func writeImage(t *testing.T, name string, encode func(io.Writer, image.Image) error) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, encode(f, testImage()), test.ShouldBeNil)
	test.That(t, f.Close(), test.ShouldBeNil)
	return path
}

func TestReadImageFromFile(t *testing.T) {
	encoders := map[string]func(io.Writer, image.Image) error{
		"frame.png": png.Encode,
		"frame.jpg": func(w io.Writer, img image.Image) error { return jpeg.Encode(w, img, nil) },
		"frame.bmp": bmp.Encode,
		"frame.tif": func(w io.Writer, img image.Image) error { return tiff.Encode(w, img, nil) },
		"frame.ppm": ppm.Encode,
	}
	for name, encode := range encoders {
		t.Run(name, func(t *testing.T) {
			path := writeImage(t, name, encode)
			test.That(t, IsImageFile(path), test.ShouldBeTrue)
			img, err := ReadImageFromFile(path)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, img.Bounds(), test.ShouldResemble, image.Rect(0, 0, 4, 8))
		})
	}

	t.Run("missing", func(t *testing.T) {
		_, err := ReadImageFromFile(filepath.Join(t.TempDir(), "nope.png"))
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("not an image", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "frame.png")
		test.That(t, os.WriteFile(path, []byte("hello"), 0o600), test.ShouldBeNil)
		_, err := ReadImageFromFile(path)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "cannot decode image")
	})
}

func TestIsImageFile(t *testing.T) {
	test.That(t, IsImageFile("a/b/FRAME.PNG"), test.ShouldBeTrue)
	test.That(t, IsImageFile("frame.tiff"), test.ShouldBeTrue)
	test.That(t, IsImageFile("frame.features.json"), test.ShouldBeFalse)
	test.That(t, IsImageFile("frame"), test.ShouldBeFalse)
}
