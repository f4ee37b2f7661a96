package rimage

import (
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// supportedExtensions are the raster formats the file helpers decode.
var supportedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".gif":  true,
}

// IsImageFile reports whether the path has an extension ReadImageFromFile can decode.
func IsImageFile(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// ReadImageFromFile decodes the image stored at path, applying any EXIF orientation.
func ReadImageFromFile(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read image %q", path)
	}
	return img, nil
}

// ReadGrayFromFile decodes the image stored at path and converts it to grayscale.
func ReadGrayFromFile(path string) (*image.Gray, error) {
	img, err := ReadImageFromFile(path)
	if err != nil {
		return nil, err
	}
	return MakeGray(img), nil
}

// WriteImageToFile encodes img with the format implied by the path extension.
func WriteImageToFile(path string, img image.Image) error {
	if err := imaging.Save(img, path); err != nil {
		return errors.Wrapf(err, "cannot write image %q", path)
	}
	return nil
}
