// Package tfrecord reads and writes the TFRecord container format: a sequence
// of length-prefixed records, each framed by masked CRC32C checksums.
package tfrecord

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/crc32"
)

// ErrCorrupt is returned when framing or checksums do not match.
var ErrCorrupt = errors.New("corrupt tfrecord")

// Compression is the whole-file compression wrapped around the record stream.
type Compression string

const (
	None Compression = ""
	GZIP Compression = "gzip"
	ZLIB Compression = "zlib"
)

// ParseCompression accepts the names TensorFlow uses for compression types.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none", "NONE":
		return None, nil
	case "gzip", "GZIP":
		return GZIP, nil
	case "zlib", "ZLIB":
		return ZLIB, nil
	default:
		return None, fmt.Errorf("unknown compression %q", s)
	}
}

const (
	headerSize = 12 // uint64 length + uint32 masked crc of length
	footerSize = 4  // uint32 masked crc of data
	maskDelta  = 0xa282ead8

	// MaxRecordSize bounds a single record to keep a corrupt length prefix
	// from triggering a huge allocation.
	MaxRecordSize = 1 << 30
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func maskedCRC(data []byte) uint32 {
	crc := crc32.Checksum(data, castagnoli)
	return ((crc >> 15) | (crc << 17)) + maskDelta
}

func newDecompressor(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case None:
		return io.NopCloser(r), nil
	case GZIP:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return zr, nil
	case ZLIB:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open zlib stream: %w", err)
		}
		return zr, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func newCompressor(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case None:
		return nopWriteCloser{w}, nil
	case GZIP:
		return gzip.NewWriter(w), nil
	case ZLIB:
		return zlib.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
}
