package fingerprint

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// Hasher names.
const (
	HasherPHash       = "phash"
	HasherDHash       = "dhash"
	HasherGoImageHash = "goimagehash"
)

// Hasher maps a decoded image to a Fingerprint. Implementations are pure.
type Hasher interface {
	Name() string
	Hash(img image.Image) (Fingerprint, error)
}

// NewHasher returns the hasher registered under name.
func NewHasher(name string) (Hasher, error) {
	switch name {
	case HasherPHash, "":
		return PHash{}, nil
	case HasherDHash:
		return DHash{}, nil
	case HasherGoImageHash:
		return GoImageHash{}, nil
	default:
		return nil, fmt.Errorf("unknown hasher %q (want %s, %s or %s)", name, HasherPHash, HasherDHash, HasherGoImageHash)
	}
}

// Compute decodes imageData and hashes it with h.
func Compute(h Hasher, imageData []byte, opts DecodeOptions) (Fingerprint, error) {
	img, err := Decode(imageData, opts)
	if err != nil {
		return 0, err
	}
	return h.Hash(img)
}

// HammingDistance computes the Hamming distance between two fingerprints.
func HammingDistance(a, b Fingerprint) int {
	xor := a ^ b
	distance := 0
	for xor != 0 {
		distance++
		xor &= xor - 1 // Clear lowest set bit
	}
	return distance
}

// Different reports whether two fingerprints are at least threshold bits apart.
// With threshold 1 only bit-identical fingerprints are not different.
func Different(a, b Fingerprint, threshold int) bool {
	return HammingDistance(a, b) >= threshold
}

// PHash is a DCT perceptual hash over a 32x32 grayscale downsample.
type PHash struct{}

// Name implements Hasher.
func (PHash) Name() string { return HasherPHash }

// Hash implements Hasher.
func (PHash) Hash(img image.Image) (Fingerprint, error) {
	if img.Bounds().Empty() {
		return 0, &DecodeError{Err: errEmptyImage}
	}
	return computePHash(img), nil
}

// DHash is a 9x8 horizontal-gradient difference hash.
type DHash struct{}

// Name implements Hasher.
func (DHash) Name() string { return HasherDHash }

// Hash implements Hasher.
func (DHash) Hash(img image.Image) (Fingerprint, error) {
	if img.Bounds().Empty() {
		return 0, &DecodeError{Err: errEmptyImage}
	}
	return computeDHash(img), nil
}

const phashSampleSize = 32

// computePHash computes a 64-bit perceptual hash using DCT.
func computePHash(img image.Image) Fingerprint {
	// 1. Grayscale, then Lanczos downsample to 32x32
	small := imaging.Resize(imaging.Grayscale(img), phashSampleSize, phashSampleSize, imaging.Lanczos)

	pixels := make([][]float64, phashSampleSize)
	for y := range phashSampleSize {
		pixels[y] = make([]float64, phashSampleSize)
		for x := range phashSampleSize {
			pixels[y][x] = float64(small.Pix[small.PixOffset(x, y)])
		}
	}

	// 2. Top-left 8x8 block of the 2-D DCT, DC included
	lowFreq := lowFrequencyDCT(pixels, GridSize)

	// 3. 1 if coefficient > median, 0 otherwise
	median := computeMedian(lowFreq)
	var hash Fingerprint
	for i, v := range lowFreq {
		if v > median {
			hash |= 1 << (Bits - 1 - i)
		}
	}
	return hash
}

// lowFrequencyDCT returns the first k x k DCT-II coefficients of a square
// grid, row-major, with the row transform applied first.
func lowFrequencyDCT(pixels [][]float64, k int) []float64 {
	size := len(pixels)

	// Precompute cosine values for efficiency.
	cosTable := make([][]float64, k)
	for u := range k {
		cosTable[u] = make([]float64, size)
		for n := range size {
			cosTable[u][n] = math.Cos(math.Pi * float64(u) * (2*float64(n) + 1) / (2 * float64(size)))
		}
	}

	// Transform down the columns.
	partial := make([][]float64, k)
	for u := range k {
		partial[u] = make([]float64, size)
		for x := range size {
			var sum float64
			for y := range size {
				sum += pixels[y][x] * cosTable[u][y]
			}
			partial[u][x] = sum
		}
	}

	// Then across the rows.
	out := make([]float64, 0, k*k)
	for u := range k {
		for v := range k {
			var sum float64
			for x := range size {
				sum += partial[u][x] * cosTable[v][x]
			}
			out = append(out, sum)
		}
	}
	return out
}

// computeDHash computes a 64-bit difference hash.
func computeDHash(img image.Image) Fingerprint {
	// 1. Resize to 9x8 (we need 9 columns for 8 differences)
	resized := resizeImage(img, GridSize+1, GridSize)

	// 2. Convert to grayscale
	gray := toGrayscale(resized)

	// 3. Compare adjacent pixels horizontally
	var hash Fingerprint
	bit := Bits - 1
	for y := range GridSize {
		for x := range GridSize {
			if gray[x][y] > gray[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}

	return hash
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// toGrayscale converts an image to a 2D array of grayscale values (0-255).
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			gray[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}

	return gray
}

// computeMedian returns the median value from a slice.
func computeMedian(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
