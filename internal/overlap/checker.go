// Package overlap measures how many records of a candidate stream share a
// fingerprint with a reference stream.
//
// Membership is exact: a candidate counts as a duplicate only when its
// fingerprint is bit-identical to some reference fingerprint. Near-duplicates
// that differ by a single bit are reported as unique. This is deliberately
// stricter than the distance threshold used by package dedup.
package overlap

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/frame-dedup/internal/fingerprint"
	"github.com/kozaktomas/frame-dedup/internal/records"
)

// ReferenceSet is the set of fingerprints seen in the reference stream.
// Entries are never removed.
type ReferenceSet map[fingerprint.Fingerprint]struct{}

// Add inserts f; repeated values collapse to one entry.
func (s ReferenceSet) Add(f fingerprint.Fingerprint) {
	s[f] = struct{}{}
}

// Contains reports exact membership.
func (s ReferenceSet) Contains(f fingerprint.Fingerprint) bool {
	_, ok := s[f]
	return ok
}

// Result summarizes a run. For the candidate stream,
// Duplicates + Unique + CandidateSkipped equals the records read.
type Result struct {
	Reference         int `json:"reference"`
	ReferenceDistinct int `json:"reference_distinct"`
	ReferenceSkipped  int `json:"reference_skipped"`
	Duplicates        int `json:"duplicates"`
	Unique            int `json:"unique"`
	CandidateSkipped  int `json:"candidate_skipped"`
}

// Checker is an OverlapChecker. It is not safe for concurrent use.
type Checker struct {
	hasher fingerprint.Hasher
	policy records.DecodePolicy
	decode fingerprint.DecodeOptions
	logger logrus.FieldLogger

	reference ReferenceSet
	result    Result
}

// Option configures a Checker.
type Option func(*Checker)

// WithDecodePolicy sets how undecodable images are handled in both streams.
func WithDecodePolicy(p records.DecodePolicy) Option {
	return func(c *Checker) { c.policy = p }
}

// WithDecodeOptions sets image decoding options.
func WithDecodeOptions(opts fingerprint.DecodeOptions) Option {
	return func(c *Checker) { c.decode = opts }
}

// WithLogger sets the logger used for per-record decisions.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Checker) { c.logger = l }
}

// New returns a Checker with an empty reference set.
func New(hasher fingerprint.Hasher, opts ...Option) (*Checker, error) {
	c := &Checker{
		hasher:    hasher,
		policy:    records.DecodeFail,
		reference: make(ReferenceSet),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hasher == nil {
		return nil, errors.New("hasher is required")
	}
	if c.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.logger = l
	}
	return c, nil
}

// fingerprint computes the record's fingerprint. ok is false when the
// record was skipped under DecodeSkip.
func (c *Checker) fingerprint(rec records.Record, stream string) (fingerprint.Fingerprint, bool, error) {
	fp, err := fingerprint.Compute(c.hasher, rec.Image, c.decode)
	if err == nil {
		return fp, true, nil
	}
	if fingerprint.IsDecodeError(err) && c.policy == records.DecodeSkip {
		c.logger.WithFields(logrus.Fields{"stream": stream, "index": rec.Index, "error": err}).Warn("skipping undecodable record")
		return 0, false, nil
	}
	return 0, false, fmt.Errorf("%s record %d: %w", stream, rec.Index, err)
}

// AddReference fingerprints rec and inserts it into the reference set.
func (c *Checker) AddReference(rec records.Record) error {
	fp, ok, err := c.fingerprint(rec, "reference")
	if err != nil {
		return err
	}
	if !ok {
		c.result.ReferenceSkipped++
		return nil
	}
	c.result.Reference++
	c.reference.Add(fp)
	c.result.ReferenceDistinct = len(c.reference)
	return nil
}

// LoadReference reads src fully into the reference set.
func (c *Checker) LoadReference(src records.Source) error {
	return records.ForEach(src, c.AddReference)
}

// Classify fingerprints a candidate record and reports whether it is a
// duplicate of the reference set.
func (c *Checker) Classify(rec records.Record) (bool, error) {
	fp, ok, err := c.fingerprint(rec, "candidate")
	if err != nil {
		return false, err
	}
	if !ok {
		c.result.CandidateSkipped++
		return false, nil
	}

	dup := c.reference.Contains(fp)
	if dup {
		c.result.Duplicates++
	} else {
		c.result.Unique++
	}
	c.logger.WithFields(logrus.Fields{
		"index":       rec.Index,
		"fingerprint": fp.String(),
		"duplicate":   dup,
	}).Debug("classified")
	return dup, nil
}

// Check classifies every record of src against the loaded reference set.
func (c *Checker) Check(src records.Source) (Result, error) {
	err := records.ForEach(src, func(rec records.Record) error {
		_, err := c.Classify(rec)
		return err
	})
	return c.result, err
}

// Run loads reference and then checks candidate.
func (c *Checker) Run(reference, candidate records.Source) (Result, error) {
	if err := c.LoadReference(reference); err != nil {
		return c.result, err
	}
	return c.Check(candidate)
}

// Result returns the counts accumulated so far.
func (c *Checker) Result() Result {
	return c.result
}

// Reference returns the reference set. Callers must not modify it.
func (c *Checker) Reference() ReferenceSet {
	return c.reference
}
