// Package testutil builds synthetic images and fingerprints for tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/kozaktomas/frame-dedup/internal/fingerprint"
)

// BitHasher reads a fingerprint straight from the pixels of an 8x8 image made
// by BitImage, so tests control fingerprints exactly.
type BitHasher struct{}

// Name implements fingerprint.Hasher.
func (BitHasher) Name() string { return "bits" }

// Hash implements fingerprint.Hasher.
func (BitHasher) Hash(img image.Image) (fingerprint.Fingerprint, error) {
	b := img.Bounds()
	var f fingerprint.Fingerprint
	for row := range fingerprint.GridSize {
		for col := range fingerprint.GridSize {
			r, _, _, _ := img.At(b.Min.X+col, b.Min.Y+row).RGBA()
			if r > 0x7fff {
				f |= 1 << (fingerprint.Bits - 1 - (row*fingerprint.GridSize + col))
			}
		}
	}
	return f, nil
}

// BitImage encodes f as an 8x8 black and white PNG.
func BitImage(f fingerprint.Fingerprint) []byte {
	img := image.NewGray(image.Rect(0, 0, fingerprint.GridSize, fingerprint.GridSize))
	for row := range fingerprint.GridSize {
		for col := range fingerprint.GridSize {
			if f.Bit(row, col) {
				img.SetGray(col, row, color.Gray{Y: 255})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// GradientJPEG returns a diagonal gradient encoded as JPEG.
func GradientJPEG(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			gray := uint8((x + y) * 255 / (width + height))
			img.Set(x, y, color.RGBA{gray, gray, gray, 255})
		}
	}
	return encodeJPEG(img)
}

// BlocksJPEG returns an n x n grid of flat gray blocks encoded as JPEG.
// Different seeds give visually unrelated images.
func BlocksJPEG(width, height, n, seed int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			i, j := x*n/width, y*n/height
			level := uint8((i*37 + j*91 + i*j*53 + seed*71) % 256)
			img.Set(x, y, color.RGBA{level, level, level, 255})
		}
	}
	return encodeJPEG(img)
}

func encodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
