package fingerprint

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var errEmptyImage = errors.New("image has no pixels")

// DecodeError reports an image payload that could not be decoded.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "failed to decode image: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is, or wraps, a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// DecodeOptions controls how raw payloads become pixel grids.
type DecodeOptions struct {
	// AutoOrient applies the EXIF orientation tag before hashing.
	AutoOrient bool
}

// Decode decodes a raster-compressed payload (JPEG, PNG, GIF, BMP, TIFF, WebP).
func Decode(data []byte, opts DecodeOptions) (image.Image, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: errEmptyImage}
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(opts.AutoOrient))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if img.Bounds().Empty() {
		return nil, &DecodeError{Err: errEmptyImage}
	}
	return img, nil
}
