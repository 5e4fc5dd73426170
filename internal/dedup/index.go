package dedup

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/kozaktomas/frame-dedup/internal/fingerprint"
)

// Index kinds.
const (
	IndexLinear = "linear"
	IndexBucket = "bucket"
)

// Index holds the KeptSet: fingerprints of accepted records, in acceptance
// order. Entries are never removed or changed.
type Index interface {
	// Match returns the first kept position, in acceptance order, whose
	// fingerprint is closer to f than the threshold.
	Match(f fingerprint.Fingerprint) (pos, distance int, ok bool)
	// Add appends f to the kept set.
	Add(f fingerprint.Fingerprint)
	// Len returns the number of kept fingerprints.
	Len() int
}

// NewIndex returns an Index of the named kind for threshold.
func NewIndex(kind string, threshold int) (Index, error) {
	switch kind {
	case IndexLinear, "":
		return &linearIndex{threshold: threshold}, nil
	case IndexBucket:
		return newBucketIndex(threshold), nil
	default:
		return nil, fmt.Errorf("unknown index %q (want %s or %s)", kind, IndexLinear, IndexBucket)
	}
}

// linearIndex scans every kept fingerprint for each query. Cost per query is
// O(kept), so a run over n records is O(n^2) in the worst case.
type linearIndex struct {
	threshold int
	kept      []fingerprint.Fingerprint
}

func (l *linearIndex) Match(f fingerprint.Fingerprint) (int, int, bool) {
	for i, k := range l.kept {
		if !fingerprint.Different(f, k, l.threshold) {
			return i, fingerprint.HammingDistance(f, k), true
		}
	}
	return 0, 0, false
}

func (l *linearIndex) Add(f fingerprint.Fingerprint) {
	l.kept = append(l.kept, f)
}

func (l *linearIndex) Len() int {
	return len(l.kept)
}

// bucketIndex splits the 64 bits into threshold chunks. Two fingerprints with
// distance <= threshold-1 agree exactly on at least one chunk, so the union of
// the matching chunk buckets contains every kept fingerprint that can match.
// Candidates are verified in ascending position, which yields the same answer
// as linearIndex.
type bucketIndex struct {
	threshold int
	kept      []fingerprint.Fingerprint
	chunks    []chunk
	buckets   []map[uint64]*roaring.Bitmap
}

type chunk struct {
	shift uint
	mask  uint64
}

func newBucketIndex(threshold int) *bucketIndex {
	b := &bucketIndex{threshold: threshold}
	if threshold < 1 || threshold > fingerprint.Bits {
		return b
	}

	base := fingerprint.Bits / threshold
	rem := fingerprint.Bits % threshold
	shift := uint(0)
	for i := range threshold {
		width := base
		if i < rem {
			width++
		}
		mask := uint64(1)<<uint(width) - 1
		if width == 64 {
			mask = ^uint64(0)
		}
		b.chunks = append(b.chunks, chunk{shift: shift, mask: mask})
		b.buckets = append(b.buckets, make(map[uint64]*roaring.Bitmap))
		shift += uint(width)
	}
	return b
}

func (c chunk) key(f fingerprint.Fingerprint) uint64 {
	return (uint64(f) >> c.shift) & c.mask
}

func (b *bucketIndex) Match(f fingerprint.Fingerprint) (int, int, bool) {
	switch {
	case len(b.kept) == 0:
		return 0, 0, false
	case b.threshold < 1:
		// Every distance is >= a non-positive threshold.
		return 0, 0, false
	case b.threshold > fingerprint.Bits:
		// No distance can reach the threshold; the first kept entry matches.
		return 0, fingerprint.HammingDistance(f, b.kept[0]), true
	}

	candidates := roaring.New()
	for i, c := range b.chunks {
		if bm, ok := b.buckets[i][c.key(f)]; ok {
			candidates.Or(bm)
		}
	}

	it := candidates.Iterator()
	for it.HasNext() {
		pos := int(it.Next())
		if !fingerprint.Different(f, b.kept[pos], b.threshold) {
			return pos, fingerprint.HammingDistance(f, b.kept[pos]), true
		}
	}
	return 0, 0, false
}

func (b *bucketIndex) Add(f fingerprint.Fingerprint) {
	pos := uint32(len(b.kept))
	b.kept = append(b.kept, f)
	for i, c := range b.chunks {
		k := c.key(f)
		bm, ok := b.buckets[i][k]
		if !ok {
			bm = roaring.New()
			b.buckets[i][k] = bm
		}
		bm.Add(pos)
	}
}

func (b *bucketIndex) Len() int {
	return len(b.kept)
}
