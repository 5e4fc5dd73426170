package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    Location
		wantErr bool
	}{
		{"local relative", "train.tfrecord", Location{Key: "train.tfrecord"}, false},
		{"local absolute", "/data/train.tfrecord", Location{Key: "/data/train.tfrecord"}, false},
		{"s3", "s3://datasets/splits/train.tfrecord", Location{Bucket: "datasets", Key: "splits/train.tfrecord"}, false},
		{"s3 without key", "s3://datasets", Location{}, true},
		{"s3 without bucket", "s3:///key", Location{}, true},
		{"gcs", "gs://bucket/key", Location{}, true},
		{"empty", "", Location{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseLocation(tc.uri)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.uri, got.String())
		})
	}
}

func TestParseLocationUnsupportedScheme(t *testing.T) {
	_, err := ParseLocation("gs://bucket/key")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestLocalCreateCommitsOnClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.tfrecord")
	o := NewOpener(Options{})

	w, err := o.Create(context.Background(), path)
	require.NoError(t, err)
	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "output must not be visible before Close")

	require.NoError(t, w.Close())
	assert.Error(t, w.Close())

	r, err := o.Open(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestLocalAbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.tfrecord")

	w, err := NewOpener(Options{}).Create(context.Background(), path)
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenMissingLocalFile(t *testing.T) {
	_, err := NewOpener(Options{}).Open(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoteWithoutEndpoint(t *testing.T) {
	o := NewOpener(Options{})
	_, err := o.Open(context.Background(), "s3://bucket/key")
	assert.ErrorContains(t, err, "S3_ENDPOINT")

	_, err = o.Create(context.Background(), "s3://bucket/key")
	assert.ErrorContains(t, err, "S3_ENDPOINT")
}

func TestObjectErrorMapsNotFound(t *testing.T) {
	loc := Location{Bucket: "datasets", Key: "train.tfrecord"}

	for _, code := range []string{"NoSuchKey", "NotFound", "NoSuchBucket"} {
		t.Run(code, func(t *testing.T) {
			err := objectError(loc, minio.ErrorResponse{Code: code, StatusCode: 404})
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorContains(t, err, "s3://datasets/train.tfrecord")
		})
	}

	err := objectError(loc, minio.ErrorResponse{Code: "AccessDenied", Message: "Access Denied.", StatusCode: 403})
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.ErrorContains(t, err, "Access Denied.")
}

func TestObjectWriterStreamsOnClose(t *testing.T) {
	var uploaded bytes.Buffer
	w := newObjectWriter(func(r io.Reader) error {
		_, err := io.Copy(&uploaded, r)
		return err
	})

	_, err := w.Write([]byte("first "))
	require.NoError(t, err)
	_, err = w.Write([]byte("second"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, "first second", uploaded.String())
	assert.Error(t, w.Close())
	assert.NoError(t, w.Abort())
}

func TestObjectWriterAbortFailsUpload(t *testing.T) {
	var uploadErr error
	w := newObjectWriter(func(r io.Reader) error {
		_, uploadErr = io.ReadAll(r)
		return uploadErr
	})

	_, err := w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	assert.True(t, errors.Is(uploadErr, errAborted))
	assert.Error(t, w.Close())
}

func TestObjectWriterReportsUploadError(t *testing.T) {
	boom := errors.New("bucket is read-only")
	w := newObjectWriter(func(r io.Reader) error {
		_, _ = io.ReadAll(r)
		return boom
	})

	_, err := w.Write([]byte("payload"))
	require.NoError(t, err)
	assert.ErrorIs(t, w.Close(), boom)
}
