// Package records adapts record containers to the streams consumed by the
// deduplication filter and the overlap checker.
package records

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kozaktomas/frame-dedup/internal/example"
)

// Record is one labeled image. Raw is the serialized record as read from the
// source and is written back unchanged, so metadata passes through
// byte-for-byte.
type Record struct {
	Index   int
	Image   []byte
	Raw     []byte
	Example *example.Example
}

// Source yields records in stream order and returns io.EOF after the last one.
type Source interface {
	Next() (Record, error)
}

// Sink accepts records in the order presented.
type Sink interface {
	Write(rec Record) error
}

// DecodePolicy decides what happens to a record whose image cannot be decoded.
type DecodePolicy string

const (
	// DecodeFail aborts the run on the first undecodable image.
	DecodeFail DecodePolicy = "fail"
	// DecodeSkip drops the record and counts it as skipped.
	DecodeSkip DecodePolicy = "skip"
)

// ParseDecodePolicy validates a policy name. Empty means DecodeFail.
func ParseDecodePolicy(s string) (DecodePolicy, error) {
	switch DecodePolicy(s) {
	case DecodeFail, "":
		return DecodeFail, nil
	case DecodeSkip:
		return DecodeSkip, nil
	default:
		return "", fmt.Errorf("unknown decode error policy %q (want %s or %s)", s, DecodeFail, DecodeSkip)
	}
}

// SliceSource serves records from memory. Index is assigned on read.
type SliceSource struct {
	records []Record
	pos     int
}

// NewSliceSource returns a Source over recs.
func NewSliceSource(recs ...Record) *SliceSource {
	return &SliceSource{records: recs}
}

// FromImages builds a SliceSource whose records carry only image payloads.
func FromImages(images ...[]byte) *SliceSource {
	recs := make([]Record, len(images))
	for i, img := range images {
		recs[i] = Record{Image: img, Raw: img}
	}
	return NewSliceSource(recs...)
}

// Next implements Source.
func (s *SliceSource) Next() (Record, error) {
	if s.pos >= len(s.records) {
		return Record{}, io.EOF
	}
	rec := s.records[s.pos]
	rec.Index = s.pos
	s.pos++
	return rec, nil
}

// SliceSink collects records in memory.
type SliceSink struct {
	Records []Record
}

// Write implements Sink.
func (s *SliceSink) Write(rec Record) error {
	s.Records = append(s.Records, rec)
	return nil
}

// observed calls fn after every successful read.
type observed struct {
	src Source
	fn  func(Record)
}

func (o observed) Next() (Record, error) {
	rec, err := o.src.Next()
	if err == nil {
		o.fn(rec)
	}
	return rec, err
}

// Observe wraps src so fn sees every record read, e.g. to drive progress bars.
func Observe(src Source, fn func(Record)) Source {
	return observed{src: src, fn: fn}
}

type cancelable struct {
	ctx context.Context
	src Source
}

func (c cancelable) Next() (Record, error) {
	if err := c.ctx.Err(); err != nil {
		return Record{}, err
	}
	return c.src.Next()
}

// WithContext wraps src so reads fail once ctx is done.
func WithContext(ctx context.Context, src Source) Source {
	return cancelable{ctx: ctx, src: src}
}

// ForEach reads src to exhaustion, calling fn for every record.
func ForEach(src Source, fn func(Record) error) error {
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
