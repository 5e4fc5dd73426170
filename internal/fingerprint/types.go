package fingerprint

import (
	"fmt"
	"strconv"
)

// GridSize is the edge length of the coefficient grid a fingerprint encodes.
const GridSize = 8

// Bits is the fixed width of a Fingerprint.
const Bits = GridSize * GridSize

// Fingerprint is a 64-bit perceptual signature. Bit 63 holds grid cell (0,0)
// and cells follow in row-major order.
type Fingerprint uint64

// String returns the fingerprint as 16 lowercase hex digits.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// Bit reports whether the grid cell at (row, col) is set. Cells outside the
// grid are never set.
func (f Fingerprint) Bit(row, col int) bool {
	if row < 0 || row >= GridSize || col < 0 || col >= GridSize {
		return false
	}
	return f&(1<<(Bits-1-(row*GridSize+col))) != 0
}

// ParseFingerprint parses a hex string produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	return Fingerprint(v), nil
}

// RecordInfo describes a single fingerprinted record for reporting.
type RecordInfo struct {
	Index       int         `json:"index"`
	Filename    string      `json:"filename,omitempty"`
	SourceID    string      `json:"source_id,omitempty"`
	Format      string      `json:"format,omitempty"`
	Width       int         `json:"width,omitempty"`
	Height      int         `json:"height,omitempty"`
	Hash        string      `json:"hash"`
	Fingerprint Fingerprint `json:"-"`
	Error       string      `json:"error,omitempty"`
}

// RecordInfoBatch represents every record of a file for batch output.
type RecordInfoBatch struct {
	Source  string       `json:"source"`
	Hasher  string       `json:"hasher"`
	Records []RecordInfo `json:"records"`
	Count   int          `json:"count"`
}
