package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/frame-dedup/internal/config"
	"github.com/kozaktomas/frame-dedup/internal/dedup"
	"github.com/kozaktomas/frame-dedup/internal/records"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup <input> <output>",
	Short: "Drop near-duplicate frames from a record file",
	Long: `Read records from input in order and write to output every record whose
fingerprint is at least --threshold bits away from every record kept so far.
The first frame of each visual cluster wins. Kept records are copied byte for
byte. Output is only committed when the whole input was processed.

Paths may be local files or s3://bucket/key locations.

Examples:
  # Keep only frames with bit-distinct fingerprints
  frame-dedup dedup default.tfrecord default_dedup.tfrecord

  # Treat frames within 4 bits as duplicates, using the bucket index
  frame-dedup dedup --threshold 5 --index bucket in.tfrecord out.tfrecord

  # Skip undecodable images and print the summary as JSON
  frame-dedup dedup --on-decode-error skip --json in.tfrecord out.tfrecord`,
	Args: cobra.ExactArgs(2),
	RunE: runDedup,
}

func init() {
	rootCmd.AddCommand(dedupCmd)

	dedupCmd.Flags().Int("threshold", dedup.DefaultThreshold, "Minimum Hamming distance for a frame to count as new (default from DEDUP_THRESHOLD or 1)")
	dedupCmd.Flags().String("index", "", "Kept-set index: linear or bucket (default from DEDUP_INDEX or linear)")
	dedupCmd.Flags().Bool("json", false, "Output summary as JSON")
}

// dedupSummary is the JSON output of the dedup command.
type dedupSummary struct {
	RunID     string `json:"run_id"`
	Input     string `json:"input"`
	Output    string `json:"output"`
	Hasher    string `json:"hasher"`
	Threshold int    `json:"threshold"`
	Index     string `json:"index"`
	dedup.Result
}

func runDedup(cmd *cobra.Command, args []string) error {
	input, output := args[0], args[1]
	jsonOutput := mustGetBool(cmd, "json")
	out := cmd.OutOrStdout()

	env, err := newRunEnv(cmd, config.DefaultSchema)
	if err != nil {
		return err
	}

	threshold := intOr(cmd, "threshold", env.cfg.Dedup.Threshold)
	index := stringOr(cmd, "index", env.cfg.Dedup.Index)

	filter, err := dedup.New(env.hasher,
		dedup.WithThreshold(threshold),
		dedup.WithIndex(index),
		dedup.WithDecodePolicy(env.policy),
		dedup.WithDecodeOptions(env.decode),
		dedup.WithLogger(env.logger),
	)
	if err != nil {
		return err
	}

	ctx, cancel := env.signalContext()
	defer cancel()

	src, err := env.openSource(ctx, input)
	if err != nil {
		return err
	}
	defer src.Close()

	sink, err := env.createSink(ctx, output)
	if err != nil {
		return err
	}

	log := env.logger.WithFields(logrus.Fields{
		"input":     input,
		"output":    output,
		"hasher":    env.hasher.Name(),
		"threshold": threshold,
		"index":     index,
	})
	log.Info("dedup started")

	bar := newRecordProgressBar("Filtering frames", jsonOutput)
	result, err := filter.Run(records.WithContext(ctx, withProgress(src, bar)), sink)
	finishProgress(bar)
	if err != nil {
		if abortErr := sink.Abort(); abortErr != nil {
			log.WithError(abortErr).Warn("failed to discard partial output")
		}
		return fmt.Errorf("dedup %s: %w", input, err)
	}
	if err := sink.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	log.WithFields(logrus.Fields{
		"processed":  result.Processed,
		"accepted":   result.Accepted,
		"duplicates": result.Duplicates,
		"skipped":    result.Skipped,
	}).Info("dedup finished")

	if jsonOutput {
		return outputJSON(out, dedupSummary{
			RunID:     env.runID,
			Input:     input,
			Output:    output,
			Hasher:    env.hasher.Name(),
			Threshold: threshold,
			Index:     index,
			Result:    result,
		})
	}

	fmt.Fprintf(out, "Total Dup: %d\n", result.Duplicates)
	fmt.Fprintf(out, "Kept:      %d of %d\n", result.Accepted, result.Processed)
	if result.Skipped > 0 {
		fmt.Fprintf(out, "Skipped:   %d (undecodable)\n", result.Skipped)
	}
	return nil
}
