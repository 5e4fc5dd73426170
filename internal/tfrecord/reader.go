package tfrecord

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Reader reads records sequentially from a TFRecord stream.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer
	header [headerSize]byte
	offset int64
}

// NewReader returns a Reader over r. Closing the Reader releases the
// decompressor but does not close r.
func NewReader(r io.Reader, c Compression) (*Reader, error) {
	rc, err := newDecompressor(r, c)
	if err != nil {
		return nil, err
	}
	return &Reader{r: bufio.NewReader(rc), closer: rc}, nil
}

// Next returns the next record payload, or io.EOF after the last record.
// The returned slice is owned by the caller.
func (r *Reader) Next() ([]byte, error) {
	n, err := io.ReadFull(r.r, r.header[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: truncated header at offset %d", ErrCorrupt, r.offset)
	}

	length := binary.LittleEndian.Uint64(r.header[:8])
	if binary.LittleEndian.Uint32(r.header[8:]) != maskedCRC(r.header[:8]) {
		return nil, fmt.Errorf("%w: length checksum mismatch at offset %d", ErrCorrupt, r.offset)
	}
	if length > MaxRecordSize {
		return nil, fmt.Errorf("%w: record of %d bytes at offset %d exceeds limit", ErrCorrupt, length, r.offset)
	}

	buf := make([]byte, length+footerSize)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, fmt.Errorf("%w: truncated record at offset %d", ErrCorrupt, r.offset)
	}
	data := buf[:length]
	if binary.LittleEndian.Uint32(buf[length:]) != maskedCRC(data) {
		return nil, fmt.Errorf("%w: data checksum mismatch at offset %d", ErrCorrupt, r.offset)
	}

	r.offset += int64(headerSize + len(buf))
	return data, nil
}

// Close releases the decompressor.
func (r *Reader) Close() error {
	return r.closer.Close()
}
