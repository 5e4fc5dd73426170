package labelmap

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/frame-dedup/internal/example"
	"github.com/kozaktomas/frame-dedup/internal/records"
)

// Feature names rewritten by Relabel.
const (
	FeatureClassText  = "image/object/class/text"
	FeatureClassLabel = "image/object/class/label"
)

// MergeResult counts records across all merged inputs.
type MergeResult struct {
	Inputs  int `json:"inputs"`
	Read    int `json:"read"`
	Written int `json:"written"`
	Skipped int `json:"skipped"`
}

// Merger relabels records from several sources into one sink.
type Merger struct {
	labels *Map
	logger logrus.FieldLogger
	result MergeResult
}

// NewMerger returns a Merger assigning IDs with labels. A nil logger
// discards output.
func NewMerger(labels *Map, logger logrus.FieldLogger) *Merger {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Merger{labels: labels, logger: logger}
}

// Add copies every labeled record of src to sink. Records without a class
// text are skipped and counted.
func (m *Merger) Add(name string, src records.Source, sink records.Sink) error {
	m.result.Inputs++
	return records.ForEach(src, func(rec records.Record) error {
		m.result.Read++
		if rec.Example == nil {
			return fmt.Errorf("%s: record %d: no decoded example", name, rec.Index)
		}

		var texts [][]byte
		if f, ok := rec.Example.Get(FeatureClassText); ok && f.Kind == example.KindBytes {
			texts = f.Bytes
		}
		item, ok, err := m.labels.Assign(texts)
		if err != nil {
			return fmt.Errorf("%s: record %d: %w", name, rec.Index, err)
		}
		if !ok {
			m.result.Skipped++
			m.logger.WithFields(logrus.Fields{"input": name, "index": rec.Index}).Debug("record has no class text")
			return nil
		}

		if err := sink.Write(Relabel(rec, item)); err != nil {
			return err
		}
		m.result.Written++
		return nil
	})
}

// Result returns the counts accumulated so far.
func (m *Merger) Result() MergeResult {
	return m.result
}

// Relabel returns rec with its class text and label replaced by item. The
// other features are kept and Raw is re-encoded.
func Relabel(rec records.Record, item Item) records.Record {
	ex := example.New()
	for name, f := range rec.Example.Features {
		ex.Features[name] = f
	}
	ex.SetBytes(FeatureClassText, []byte(item.Name))
	ex.SetInt64s(FeatureClassLabel, item.ID)

	rec.Example = ex
	rec.Raw = ex.Marshal()
	return rec
}
