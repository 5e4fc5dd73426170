package records

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kozaktomas/frame-dedup/internal/example"
	"github.com/kozaktomas/frame-dedup/internal/storage"
	"github.com/kozaktomas/frame-dedup/internal/tfrecord"
)

// FileSource reads tf.train.Example records from a TFRecord file and validates
// each against a schema.
type FileSource struct {
	name   string
	schema *example.Schema
	body   io.ReadCloser
	reader *tfrecord.Reader
	index  int
}

// OpenFile opens uri (a local path or s3:// location) as a FileSource.
func OpenFile(ctx context.Context, opener *storage.Opener, uri string, schema *example.Schema, c tfrecord.Compression) (*FileSource, error) {
	body, err := opener.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	reader, err := tfrecord.NewReader(body, c)
	if err != nil {
		body.Close()
		return nil, fmt.Errorf("%s: %w", uri, err)
	}
	return &FileSource{name: uri, schema: schema, body: body, reader: reader}, nil
}

// Name returns the location the source was opened from.
func (s *FileSource) Name() string {
	return s.name
}

// Next implements Source. Malformed records are returned as errors naming the
// file and record index.
func (s *FileSource) Next() (Record, error) {
	raw, err := s.reader.Next()
	if errors.Is(err, io.EOF) {
		return Record{}, io.EOF
	}
	if err != nil {
		return Record{}, fmt.Errorf("%s: record %d: %w", s.name, s.index, err)
	}

	rec, err := Parse(raw, s.schema)
	if err != nil {
		return Record{}, fmt.Errorf("%s: record %d: %w", s.name, s.index, err)
	}
	rec.Index = s.index
	s.index++
	return rec, nil
}

// Close releases the underlying file or object.
func (s *FileSource) Close() error {
	rerr := s.reader.Close()
	if err := s.body.Close(); err != nil {
		return err
	}
	return rerr
}

// Parse decodes and validates one serialized Example.
func Parse(raw []byte, schema *example.Schema) (Record, error) {
	ex, err := example.Unmarshal(raw)
	if err != nil {
		return Record{}, err
	}
	if err := schema.Validate(ex); err != nil {
		return Record{}, err
	}
	img, err := schema.Image(ex)
	if err != nil {
		return Record{}, err
	}
	return Record{Image: img, Raw: raw, Example: ex}, nil
}

// FileSink writes records to a TFRecord file. Output becomes visible only
// after a successful Close; Abort discards it.
type FileSink struct {
	out    storage.WriteAborter
	writer *tfrecord.Writer
}

// CreateFile creates uri (a local path or s3:// location) as a FileSink.
func CreateFile(ctx context.Context, opener *storage.Opener, uri string, c tfrecord.Compression) (*FileSink, error) {
	out, err := opener.Create(ctx, uri)
	if err != nil {
		return nil, err
	}
	writer, err := tfrecord.NewWriter(out, c)
	if err != nil {
		_ = out.Abort()
		return nil, err
	}
	return &FileSink{out: out, writer: writer}, nil
}

// Write implements Sink by copying the record's raw bytes.
func (s *FileSink) Write(rec Record) error {
	return s.writer.Write(rec.Raw)
}

// Count returns the number of records written.
func (s *FileSink) Count() int {
	return s.writer.Count()
}

// Close flushes and commits the output.
func (s *FileSink) Close() error {
	if err := s.writer.Close(); err != nil {
		_ = s.out.Abort()
		return err
	}
	return s.out.Close()
}

// Abort discards the output.
func (s *FileSink) Abort() error {
	return s.out.Abort()
}
