package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/frame-dedup/internal/config"
	"github.com/kozaktomas/frame-dedup/internal/example"
	"github.com/kozaktomas/frame-dedup/internal/fingerprint"
	"github.com/kozaktomas/frame-dedup/internal/logging"
	"github.com/kozaktomas/frame-dedup/internal/records"
	"github.com/kozaktomas/frame-dedup/internal/storage"
	"github.com/kozaktomas/frame-dedup/internal/tfrecord"
)

// runEnv holds everything a command needs that comes from flags and the
// environment.
type runEnv struct {
	cfg         *config.Config
	runID       string
	logger      logrus.FieldLogger
	opener      *storage.Opener
	schema      *example.Schema
	compression tfrecord.Compression
	policy      records.DecodePolicy
	decode      fingerprint.DecodeOptions
	hasher      fingerprint.Hasher
}

// newRunEnv resolves the persistent flags. Flags win over environment values.
// defaultSchema is used when --schema is not given.
func newRunEnv(cmd *cobra.Command, defaultSchema string) (*runEnv, error) {
	cfg := config.Load()

	logger, err := logging.New(
		stringOr(cmd, "log-level", cfg.Log.Level),
		stringOr(cmd, "log-format", cfg.Log.Format),
		os.Stderr,
	)
	if err != nil {
		return nil, err
	}

	schema, err := config.LoadSchema(stringOr(cmd, "schema", defaultSchema), mustGetString(cmd, "schema-file"))
	if err != nil {
		return nil, err
	}

	compression, err := tfrecord.ParseCompression(mustGetString(cmd, "compression"))
	if err != nil {
		return nil, err
	}

	policy, err := records.ParseDecodePolicy(mustGetString(cmd, "on-decode-error"))
	if err != nil {
		return nil, err
	}

	hasher, err := fingerprint.NewHasher(stringOr(cmd, "hasher", cfg.Dedup.Hasher))
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	return &runEnv{
		cfg:         cfg,
		runID:       runID,
		logger:      logger.WithFields(logrus.Fields{"run_id": runID, "command": cmd.Name()}),
		opener:      storage.NewOpener(cfg.Storage.Options()),
		schema:      schema,
		compression: compression,
		policy:      policy,
		decode:      fingerprint.DecodeOptions{AutoOrient: mustGetBool(cmd, "auto-orient")},
		hasher:      hasher,
	}, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func (e *runEnv) signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			e.logger.Warn("received interrupt signal, stopping")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// openSource opens a record file with the run's schema and compression.
func (e *runEnv) openSource(ctx context.Context, uri string) (*records.FileSource, error) {
	src, err := records.OpenFile(ctx, e.opener, uri, e.schema, e.compression)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", uri, err)
	}
	return src, nil
}

// createSink creates a record file that is committed on Close.
func (e *runEnv) createSink(ctx context.Context, uri string) (*records.FileSink, error) {
	sink, err := records.CreateFile(ctx, e.opener, uri, e.compression)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", uri, err)
	}
	return sink, nil
}
