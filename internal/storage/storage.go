// Package storage opens record files on the local filesystem or on
// S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	// ErrUnsupportedScheme is returned for URIs other than local paths and s3://.
	ErrUnsupportedScheme = errors.New("unsupported storage scheme")
	// ErrNotFound is returned when the object or file does not exist.
	ErrNotFound = os.ErrNotExist

	errAborted = errors.New("write aborted")
)

// SchemeS3 prefixes object storage locations.
const SchemeS3 = "s3://"

// Location is a parsed storage URI.
type Location struct {
	Bucket string // empty for local paths
	Key    string // object key or local path
}

// IsRemote reports whether the location lives in object storage.
func (l Location) IsRemote() bool {
	return l.Bucket != ""
}

func (l Location) String() string {
	if l.IsRemote() {
		return SchemeS3 + l.Bucket + "/" + l.Key
	}
	return l.Key
}

// ParseLocation splits uri into bucket and key. Paths without a scheme are local.
func ParseLocation(uri string) (Location, error) {
	if rest, ok := strings.CutPrefix(uri, SchemeS3); ok {
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" || key == "" {
			return Location{}, fmt.Errorf("invalid object location %q: want s3://bucket/key", uri)
		}
		return Location{Bucket: bucket, Key: key}, nil
	}
	if i := strings.Index(uri, "://"); i > 0 {
		return Location{}, fmt.Errorf("%w: %s", ErrUnsupportedScheme, uri[:i])
	}
	if uri == "" {
		return Location{}, errors.New("empty path")
	}
	return Location{Key: uri}, nil
}

// Options configures access to object storage.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Opener opens locations for reading and writing. The object storage client
// is created on first remote access.
type Opener struct {
	opts Options

	once      sync.Once
	client    *minio.Client
	clientErr error
}

// NewOpener returns an Opener using opts for remote locations.
func NewOpener(opts Options) *Opener {
	return &Opener{opts: opts}
}

func (o *Opener) objectClient() (*minio.Client, error) {
	o.once.Do(func() {
		if o.opts.Endpoint == "" {
			o.clientErr = errors.New("S3_ENDPOINT is not set")
			return
		}
		o.client, o.clientErr = minio.New(o.opts.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(o.opts.AccessKey, o.opts.SecretKey, ""),
			Secure: o.opts.UseSSL,
			Region: o.opts.Region,
		})
	})
	return o.client, o.clientErr
}

// Open opens uri for sequential reading.
func (o *Opener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, err
	}
	if !loc.IsRemote() {
		f, err := os.Open(loc.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", loc.Key, err)
		}
		return f, nil
	}

	client, err := o.objectClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	if _, err := client.StatObject(ctx, loc.Bucket, loc.Key, minio.StatObjectOptions{}); err != nil {
		return nil, objectError(loc, err)
	}
	obj, err := client.GetObject(ctx, loc.Bucket, loc.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, objectError(loc, err)
	}
	return obj, nil
}

func objectError(loc Location, err error) error {
	code := minio.ToErrorResponse(err).Code
	if code == "NoSuchKey" || code == "NotFound" || code == "NoSuchBucket" {
		return fmt.Errorf("%s: %w", loc, ErrNotFound)
	}
	return fmt.Errorf("failed to open %s: %w", loc, err)
}

// WriteAborter is an output that becomes visible only on a successful Close.
// Abort discards everything written.
type WriteAborter interface {
	io.WriteCloser
	Abort() error
}

// Create opens uri for writing.
func (o *Opener) Create(ctx context.Context, uri string) (WriteAborter, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, err
	}
	if !loc.IsRemote() {
		return createLocal(loc.Key)
	}

	client, err := o.objectClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	return newObjectWriter(func(r io.Reader) error {
		_, err := client.PutObject(ctx, loc.Bucket, loc.Key, r, -1, minio.PutObjectOptions{})
		return err
	}), nil
}

// newObjectWriter streams everything written into upload, which runs in the
// background until the writer is closed or aborted.
func newObjectWriter(upload func(r io.Reader) error) *objectWriter {
	pr, pw := io.Pipe()
	w := &objectWriter{pw: pw, done: make(chan error, 1)}

	// Start upload in background
	go func() {
		err := upload(pr)
		_ = pr.CloseWithError(err)
		w.done <- err
	}()

	return w
}

type objectWriter struct {
	pw       *io.PipeWriter
	done     chan error
	finished atomic.Bool
}

func (w *objectWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *objectWriter) Close() error {
	if !w.finished.CompareAndSwap(false, true) {
		return errors.New("already closed")
	}
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

func (w *objectWriter) Abort() error {
	if !w.finished.CompareAndSwap(false, true) {
		return nil
	}
	_ = w.pw.CloseWithError(errAborted)
	<-w.done
	return nil
}

// fileWriter writes to a temporary sibling and renames it into place on Close.
type fileWriter struct {
	f        *os.File
	path     string
	finished bool
}

func createLocal(path string) (*fileWriter, error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	// CreateTemp uses 0600; committed outputs get regular file permissions.
	if err := f.Chmod(0o644); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return &fileWriter{f: f, path: path}, nil
}

func (w *fileWriter) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

func (w *fileWriter) Close() error {
	if w.finished {
		return errors.New("already closed")
	}
	w.finished = true
	if err := w.f.Close(); err != nil {
		_ = os.Remove(w.f.Name())
		return fmt.Errorf("failed to close %s: %w", w.path, err)
	}
	if err := os.Rename(w.f.Name(), w.path); err != nil {
		_ = os.Remove(w.f.Name())
		return fmt.Errorf("failed to commit %s: %w", w.path, err)
	}
	return nil
}

func (w *fileWriter) Abort() error {
	if w.finished {
		return nil
	}
	w.finished = true
	_ = w.f.Close()
	return os.Remove(w.f.Name())
}
