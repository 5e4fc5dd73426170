package records

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/frame-dedup/internal/example"
	"github.com/kozaktomas/frame-dedup/internal/storage"
	"github.com/kozaktomas/frame-dedup/internal/tfrecord"
)

func testSchema(t *testing.T) *example.Schema {
	t.Helper()
	s, err := example.NewSchema("test", "", []example.FeatureSpec{
		{Name: "image/encoded", Kind: example.KindBytes, Length: example.Fixed},
		{Name: "image/filename", Kind: example.KindBytes, Length: example.Fixed},
		{Name: "image/object/class/text", Kind: example.KindBytes, Length: example.Var},
	})
	require.NoError(t, err)
	return s
}

func serialized(filename string, img []byte) []byte {
	ex := example.New()
	ex.SetBytes("image/encoded", img)
	ex.SetBytes("image/filename", []byte(filename))
	ex.SetBytes("image/object/class/text", []byte("person"))
	ex.SetFloats("image/object/bbox/xmin", 0.25) // not in schema, still passed through
	return ex.Marshal()
}

func writeFile(t *testing.T, path string, c tfrecord.Compression, payloads ...[]byte) {
	t.Helper()
	var buf bytes.Buffer
	w, err := tfrecord.NewWriter(&buf, c)
	require.NoError(t, err)
	for _, p := range payloads {
		require.NoError(t, w.Write(p))
	}
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func TestFileSourceAndSinkPassThrough(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tfrecord")
	out := filepath.Join(dir, "out.tfrecord")
	payloads := [][]byte{serialized("a.jpg", []byte("img-a")), serialized("b.jpg", []byte("img-b"))}
	writeFile(t, in, tfrecord.GZIP, payloads...)

	ctx := context.Background()
	opener := storage.NewOpener(storage.Options{})

	src, err := OpenFile(ctx, opener, in, testSchema(t), tfrecord.GZIP)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, in, src.Name())

	sink, err := CreateFile(ctx, opener, out, tfrecord.None)
	require.NoError(t, err)

	var seen []int
	err = ForEach(Observe(src, func(r Record) { seen = append(seen, r.Index) }), func(r Record) error {
		return sink.Write(r)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, seen)
	assert.Equal(t, 2, sink.Count())
	require.NoError(t, sink.Close())

	back, err := OpenFile(ctx, opener, out, testSchema(t), tfrecord.None)
	require.NoError(t, err)
	defer back.Close()

	for i, want := range payloads {
		rec, err := back.Next()
		require.NoError(t, err)
		assert.Equal(t, want, rec.Raw, "record %d must be byte-identical", i)
		assert.Equal(t, i, rec.Index)
	}
	_, err = back.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFileSourceRecordFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.tfrecord")
	writeFile(t, path, tfrecord.None, serialized("frame.jpg", []byte("pixels")))

	src, err := OpenFile(context.Background(), storage.NewOpener(storage.Options{}), path, testSchema(t), tfrecord.None)
	require.NoError(t, err)
	defer src.Close()

	rec, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, []byte("pixels"), rec.Image)
	assert.Equal(t, "frame.jpg", rec.Example.StringValue("image/filename"))
}

func TestFileSourceMalformedRecord(t *testing.T) {
	noFilename := example.New()
	noFilename.SetBytes("image/encoded", []byte("pixels"))

	path := filepath.Join(t.TempDir(), "in.tfrecord")
	writeFile(t, path, tfrecord.None, serialized("ok.jpg", []byte("x")), noFilename.Marshal())

	src, err := OpenFile(context.Background(), storage.NewOpener(storage.Options{}), path, testSchema(t), tfrecord.None)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Next()
	require.NoError(t, err)

	_, err = src.Next()
	assert.ErrorIs(t, err, example.ErrMissingFeature)
	assert.ErrorContains(t, err, "record 1")
}

func TestFileSourceCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.tfrecord")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a tfrecord"), 0o600))

	src, err := OpenFile(context.Background(), storage.NewOpener(storage.Options{}), path, testSchema(t), tfrecord.None)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Next()
	assert.ErrorIs(t, err, tfrecord.ErrCorrupt)
}

func TestFileSinkAbort(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.tfrecord")

	sink, err := CreateFile(context.Background(), storage.NewOpener(storage.Options{}), out, tfrecord.None)
	require.NoError(t, err)
	require.NoError(t, sink.Write(Record{Raw: []byte("partial")}))
	require.NoError(t, sink.Abort())

	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestSliceSource(t *testing.T) {
	src := FromImages([]byte("a"), []byte("b"))

	var got []Record
	require.NoError(t, ForEach(src, func(r Record) error {
		got = append(got, r)
		return nil
	}))
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[1].Index)
	assert.Equal(t, []byte("b"), got[1].Image)
}

func TestForEachStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := ForEach(FromImages([]byte("a"), []byte("b"), []byte("c")), func(Record) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestWithContextStopsReading(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen int
	src := WithContext(ctx, Observe(FromImages([]byte("a"), []byte("b"), []byte("c")), func(Record) {
		seen++
	}))
	err := ForEach(src, func(r Record) error {
		if r.Index == 0 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, seen)
}

func TestParseDecodePolicy(t *testing.T) {
	p, err := ParseDecodePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DecodeFail, p)

	p, err = ParseDecodePolicy("skip")
	require.NoError(t, err)
	assert.Equal(t, DecodeSkip, p)

	_, err = ParseDecodePolicy("retry")
	assert.Error(t, err)
}
