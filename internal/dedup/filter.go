// Package dedup removes visually near-identical frames from a record stream.
//
// The filter is greedy, single-pass and order-dependent: a record is kept only
// if its fingerprint is at least Threshold bits away from every fingerprint
// kept before it, and a kept record is never evicted. With the default linear
// index each record is compared against the whole kept set, so a stream of n
// records costs O(n^2) comparisons in the worst case. The bucket index gives
// the same decisions with fewer comparisons.
package dedup

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/frame-dedup/internal/fingerprint"
	"github.com/kozaktomas/frame-dedup/internal/records"
)

// DefaultThreshold treats only bit-identical fingerprints as duplicates.
const DefaultThreshold = 1

// Result summarizes a run.
type Result struct {
	Processed  int `json:"processed"`
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// Decision is the outcome for a single record.
type Decision struct {
	Accepted    bool
	Skipped     bool
	Fingerprint fingerprint.Fingerprint
	// MatchedIndex is the stream index of the kept record that caused a
	// rejection, and Distance the Hamming distance to it.
	MatchedIndex int
	Distance     int
}

// Filter is a DeduplicationFilter. A Filter is not safe for concurrent use and
// holds state for one run only.
type Filter struct {
	hasher    fingerprint.Hasher
	threshold int
	indexKind string
	policy    records.DecodePolicy
	decode    fingerprint.DecodeOptions
	logger    logrus.FieldLogger

	index      Index
	keptRecord []int
	result     Result
}

// Option configures a Filter.
type Option func(*Filter)

// WithThreshold sets the minimum Hamming distance for a record to count as
// different. Threshold 1 keeps everything except bit-identical fingerprints.
func WithThreshold(threshold int) Option {
	return func(f *Filter) { f.threshold = threshold }
}

// WithIndex selects the kept-set index (IndexLinear or IndexBucket).
func WithIndex(kind string) Option {
	return func(f *Filter) { f.indexKind = kind }
}

// WithDecodePolicy sets how undecodable images are handled.
func WithDecodePolicy(p records.DecodePolicy) Option {
	return func(f *Filter) { f.policy = p }
}

// WithDecodeOptions sets image decoding options.
func WithDecodeOptions(opts fingerprint.DecodeOptions) Option {
	return func(f *Filter) { f.decode = opts }
}

// WithLogger sets the logger used for per-record decisions.
func WithLogger(l logrus.FieldLogger) Option {
	return func(f *Filter) { f.logger = l }
}

// New returns a Filter with an empty kept set.
func New(hasher fingerprint.Hasher, opts ...Option) (*Filter, error) {
	f := &Filter{
		hasher:    hasher,
		threshold: DefaultThreshold,
		indexKind: IndexLinear,
		policy:    records.DecodeFail,
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.hasher == nil {
		return nil, errors.New("hasher is required")
	}
	if f.threshold < 0 {
		return nil, fmt.Errorf("threshold must be non-negative, got %d", f.threshold)
	}
	if f.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		f.logger = l
	}

	index, err := NewIndex(f.indexKind, f.threshold)
	if err != nil {
		return nil, err
	}
	f.index = index
	return f, nil
}

// Threshold returns the configured threshold.
func (f *Filter) Threshold() int {
	return f.threshold
}

// Result returns the counts accumulated so far.
func (f *Filter) Result() Result {
	return f.result
}

// Process fingerprints rec and decides whether it is kept. An accepted
// fingerprint joins the kept set.
func (f *Filter) Process(rec records.Record) (Decision, error) {
	fp, err := fingerprint.Compute(f.hasher, rec.Image, f.decode)
	if err != nil {
		if fingerprint.IsDecodeError(err) && f.policy == records.DecodeSkip {
			f.result.Processed++
			f.result.Skipped++
			f.logger.WithFields(logrus.Fields{"index": rec.Index, "error": err}).Warn("skipping undecodable record")
			return Decision{Skipped: true}, nil
		}
		return Decision{}, fmt.Errorf("record %d: %w", rec.Index, err)
	}
	f.result.Processed++
	return f.decide(rec.Index, fp), nil
}

// decide applies the acceptance test to an already computed fingerprint.
func (f *Filter) decide(index int, fp fingerprint.Fingerprint) Decision {
	if pos, distance, ok := f.index.Match(fp); ok {
		f.result.Duplicates++
		d := Decision{Fingerprint: fp, MatchedIndex: f.keptRecord[pos], Distance: distance}
		f.logger.WithFields(logrus.Fields{
			"index":       index,
			"fingerprint": fp.String(),
			"matched":     d.MatchedIndex,
			"distance":    distance,
		}).Debug("duplicate")
		return d
	}

	f.index.Add(fp)
	f.keptRecord = append(f.keptRecord, index)
	f.result.Accepted++
	f.logger.WithFields(logrus.Fields{"index": index, "fingerprint": fp.String()}).Debug("kept")
	return Decision{Accepted: true, Fingerprint: fp}
}

// Run filters src into sink. Accepted records are written unmodified and in
// input order. On error the counts cover the records processed so far and
// the sink contents are incomplete.
func (f *Filter) Run(src records.Source, sink records.Sink) (Result, error) {
	err := records.ForEach(src, func(rec records.Record) error {
		d, err := f.Process(rec)
		if err != nil {
			return err
		}
		if !d.Accepted {
			return nil
		}
		if err := sink.Write(rec); err != nil {
			return fmt.Errorf("record %d: failed to write: %w", rec.Index, err)
		}
		return nil
	})
	return f.result, err
}
