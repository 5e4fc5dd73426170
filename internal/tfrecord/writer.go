package tfrecord

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Writer appends records to a TFRecord stream.
type Writer struct {
	bw    *bufio.Writer
	cw    io.WriteCloser
	count int
}

// NewWriter returns a Writer over w. Close flushes buffered data and the
// compressor trailer but does not close w.
func NewWriter(w io.Writer, c Compression) (*Writer, error) {
	cw, err := newCompressor(w, c)
	if err != nil {
		return nil, err
	}
	return &Writer{bw: bufio.NewWriter(cw), cw: cw}, nil
}

// Write frames and writes one record.
func (w *Writer) Write(data []byte) error {
	var header [headerSize]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(len(data)))
	binary.LittleEndian.PutUint32(header[8:], maskedCRC(header[:8]))

	var footer [footerSize]byte
	binary.LittleEndian.PutUint32(footer[:], maskedCRC(data))

	if _, err := w.bw.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write record header: %w", err)
	}
	if _, err := w.bw.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if _, err := w.bw.Write(footer[:]); err != nil {
		return fmt.Errorf("failed to write record footer: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes the stream.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush records: %w", err)
	}
	return w.cw.Close()
}
