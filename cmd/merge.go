package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/frame-dedup/internal/labelmap"
	"github.com/kozaktomas/frame-dedup/internal/records"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge per-dataset record files into one file with a label map",
	Long: `Merge every file matching --pattern into a single record file. Each record
must carry at most one class text; records without one are skipped. Class IDs
are assigned from 1 in first-seen order, or all classes are folded into a
single "default" class with --combine-labels. The label map is written in
protobuf text format.

Examples:
  # Merge input/*/default.tfrecord into merged.tfrecord and label_map.pbtxt
  frame-dedup merge

  # Single-class detector
  frame-dedup merge --combine-labels --output all.tfrecord`,
	Args: cobra.NoArgs,
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().Bool("combine-labels", false, "Fold every class into a single \"default\" class")
	mergeCmd.Flags().String("pattern", filepath.Join("input", "*", "default.tfrecord"), "Glob matching the input files")
	mergeCmd.Flags().String("output", "merged.tfrecord", "Merged record file")
	mergeCmd.Flags().String("label-map", "label_map.pbtxt", "Label map file")
	mergeCmd.Flags().Bool("json", false, "Output summary as JSON")
}

// mergeSummary is the JSON output of the merge command.
type mergeSummary struct {
	RunID    string          `json:"run_id"`
	Files    []string        `json:"files"`
	Output   string          `json:"output"`
	LabelMap string          `json:"label_map"`
	Classes  []labelmap.Item `json:"classes"`
	labelmap.MergeResult
}

func runMerge(cmd *cobra.Command, _ []string) error {
	combine := mustGetBool(cmd, "combine-labels")
	pattern := mustGetString(cmd, "pattern")
	output := mustGetString(cmd, "output")
	labelMapPath := mustGetString(cmd, "label-map")
	jsonOutput := mustGetBool(cmd, "json")
	out := cmd.OutOrStdout()

	env, err := newRunEnv(cmd, "merge")
	if err != nil {
		return err
	}

	files, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no input files match %s", pattern)
	}
	sort.Strings(files)

	ctx, cancel := env.signalContext()
	defer cancel()

	sink, err := env.createSink(ctx, output)
	if err != nil {
		return err
	}

	labels := labelmap.New(combine)
	merger := labelmap.NewMerger(labels, env.logger)
	bar := newRecordProgressBar("Merging", jsonOutput)

	mergeFile := func(path string) error {
		env.logger.WithField("input", path).Info("merging")
		src, err := env.openSource(ctx, path)
		if err != nil {
			return err
		}
		defer src.Close()
		return merger.Add(path, records.WithContext(ctx, withProgress(src, bar)), sink)
	}

	for _, path := range files {
		if err := mergeFile(path); err != nil {
			finishProgress(bar)
			return errors.Join(err, sink.Abort())
		}
	}
	finishProgress(bar)

	if err := sink.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	if err := writeLabelMap(ctx, env, labels, labelMapPath); err != nil {
		return err
	}

	result := merger.Result()
	env.logger.WithFields(logrus.Fields{
		"inputs":  result.Inputs,
		"written": result.Written,
		"skipped": result.Skipped,
		"classes": labels.Len(),
	}).Info("merge finished")

	if jsonOutput {
		return outputJSON(out, mergeSummary{
			RunID:       env.runID,
			Files:       files,
			Output:      output,
			LabelMap:    labelMapPath,
			Classes:     labels.Items(),
			MergeResult: result,
		})
	}

	for _, path := range files {
		fmt.Fprintln(out, path)
	}
	fmt.Fprintf(out, "\nMerged %d records from %d files into %s (%d without class skipped)\n",
		result.Written, result.Inputs, output, result.Skipped)
	fmt.Fprintf(out, "Wrote %d classes to %s\n", labels.Len(), labelMapPath)
	return nil
}

func writeLabelMap(ctx context.Context, env *runEnv, labels *labelmap.Map, path string) error {
	out, err := env.opener.Create(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := labels.WriteTo(out); err != nil {
		return errors.Join(fmt.Errorf("failed to write %s: %w", path, err), out.Abort())
	}
	return out.Close()
}
