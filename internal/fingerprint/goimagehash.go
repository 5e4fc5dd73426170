package fingerprint

import (
	"image"

	"github.com/corona10/goimagehash"
)

// GoImageHash delegates to goimagehash's perception hash.
type GoImageHash struct{}

// Name implements Hasher.
func (GoImageHash) Name() string { return HasherGoImageHash }

// Hash implements Hasher.
func (GoImageHash) Hash(img image.Image) (Fingerprint, error) {
	if img.Bounds().Empty() {
		return 0, &DecodeError{Err: errEmptyImage}
	}
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, &DecodeError{Err: err}
	}
	return Fingerprint(h.GetHash()), nil
}
