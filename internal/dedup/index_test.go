package dedup

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/frame-dedup/internal/fingerprint"
)

// clusteredStream returns n fingerprints drawn around a few random centers
// with a handful of flipped bits each.
func clusteredStream(n int, seed int64) []fingerprint.Fingerprint {
	rng := rand.New(rand.NewSource(seed))
	centers := make([]fingerprint.Fingerprint, 12)
	for i := range centers {
		centers[i] = fingerprint.Fingerprint(rng.Uint64())
	}

	out := make([]fingerprint.Fingerprint, n)
	for i := range out {
		fp := centers[rng.Intn(len(centers))]
		for range rng.Intn(9) {
			fp ^= 1 << uint(rng.Intn(fingerprint.Bits))
		}
		out[i] = fp
	}
	return out
}

func TestBucketIndexMatchesLinear(t *testing.T) {
	stream := clusteredStream(600, 7)

	for _, threshold := range []int{0, 1, 2, 3, 5, 8, 13, 21, 32, 63, 64, 65, 80} {
		linear, err := NewIndex(IndexLinear, threshold)
		require.NoError(t, err)
		bucket, err := NewIndex(IndexBucket, threshold)
		require.NoError(t, err)

		for i, fp := range stream {
			lp, ld, lok := linear.Match(fp)
			bp, bd, bok := bucket.Match(fp)
			require.Equal(t, lok, bok, "threshold %d, item %d", threshold, i)
			if lok {
				require.Equal(t, lp, bp, "threshold %d, item %d", threshold, i)
				require.Equal(t, ld, bd, "threshold %d, item %d", threshold, i)
				continue
			}
			linear.Add(fp)
			bucket.Add(fp)
		}
		assert.Equal(t, linear.Len(), bucket.Len(), "threshold %d", threshold)
	}
}

func TestLinearIndexReturnsFirstMatch(t *testing.T) {
	idx, err := NewIndex(IndexLinear, 3)
	require.NoError(t, err)

	idx.Add(0xF0) // distance 2 from query
	idx.Add(0xF2) // distance 1 from query

	pos, distance, ok := idx.Match(0xF3)
	require.True(t, ok)
	assert.Equal(t, 0, pos)
	assert.Equal(t, 2, distance)
}

func TestBucketChunksCoverAllBits(t *testing.T) {
	for threshold := 1; threshold <= fingerprint.Bits; threshold++ {
		b := newBucketIndex(threshold)
		require.Len(t, b.chunks, threshold)

		var covered uint64
		for _, c := range b.chunks {
			span := c.mask << c.shift
			assert.Zero(t, covered&span, "threshold %d: chunks overlap", threshold)
			covered |= span
		}
		assert.Equal(t, ^uint64(0), covered, "threshold %d", threshold)
	}
}

func TestNewIndexUnknown(t *testing.T) {
	_, err := NewIndex("kdtree", 1)
	assert.Error(t, err)
}
