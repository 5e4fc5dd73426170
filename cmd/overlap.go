package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/frame-dedup/internal/config"
	"github.com/kozaktomas/frame-dedup/internal/overlap"
	"github.com/kozaktomas/frame-dedup/internal/records"
)

var overlapCmd = &cobra.Command{
	Use:   "overlap <reference> <candidate>",
	Short: "Count candidate frames whose fingerprint also appears in a reference file",
	Long: `Fingerprint every frame of the reference file (e.g. a training split), then
count how many frames of the candidate file (e.g. a test split) have exactly the
same fingerprint. Frames that differ by even one bit count as unique.

Examples:
  frame-dedup overlap train.tfrecord test.tfrecord
  frame-dedup overlap --json s3://datasets/train.tfrecord s3://datasets/test.tfrecord`,
	Args: cobra.ExactArgs(2),
	RunE: runOverlap,
}

func init() {
	rootCmd.AddCommand(overlapCmd)

	overlapCmd.Flags().Bool("json", false, "Output summary as JSON")
}

// overlapSummary is the JSON output of the overlap command.
type overlapSummary struct {
	RunID     string `json:"run_id"`
	Reference string `json:"reference_file"`
	Candidate string `json:"candidate_file"`
	Hasher    string `json:"hasher"`
	overlap.Result
}

func runOverlap(cmd *cobra.Command, args []string) error {
	refPath, candPath := args[0], args[1]
	jsonOutput := mustGetBool(cmd, "json")
	out := cmd.OutOrStdout()

	env, err := newRunEnv(cmd, config.DefaultSchema)
	if err != nil {
		return err
	}

	checker, err := overlap.New(env.hasher,
		overlap.WithDecodePolicy(env.policy),
		overlap.WithDecodeOptions(env.decode),
		overlap.WithLogger(env.logger),
	)
	if err != nil {
		return err
	}

	ctx, cancel := env.signalContext()
	defer cancel()

	log := env.logger.WithFields(logrus.Fields{
		"reference": refPath,
		"candidate": candPath,
		"hasher":    env.hasher.Name(),
	})
	log.Info("overlap started")

	ref, err := env.openSource(ctx, refPath)
	if err != nil {
		return err
	}
	defer ref.Close()

	bar := newRecordProgressBar("Reading reference", jsonOutput)
	err = checker.LoadReference(records.WithContext(ctx, withProgress(ref, bar)))
	finishProgress(bar)
	if err != nil {
		return fmt.Errorf("reference %s: %w", refPath, err)
	}

	cand, err := env.openSource(ctx, candPath)
	if err != nil {
		return err
	}
	defer cand.Close()

	bar = newRecordProgressBar("Checking candidates", jsonOutput)
	result, err := checker.Check(records.WithContext(ctx, withProgress(cand, bar)))
	finishProgress(bar)
	if err != nil {
		return fmt.Errorf("candidate %s: %w", candPath, err)
	}

	log.WithFields(logrus.Fields{
		"reference_records":  result.Reference,
		"reference_distinct": result.ReferenceDistinct,
		"duplicates":         result.Duplicates,
		"unique":             result.Unique,
	}).Info("overlap finished")

	if jsonOutput {
		return outputJSON(out, overlapSummary{
			RunID:     env.runID,
			Reference: refPath,
			Candidate: candPath,
			Hasher:    env.hasher.Name(),
			Result:    result,
		})
	}

	fmt.Fprintf(out, "duplicates: %d\n", result.Duplicates)
	fmt.Fprintf(out, "unique: %d\n", result.Unique)
	if skipped := result.ReferenceSkipped + result.CandidateSkipped; skipped > 0 {
		fmt.Fprintf(out, "skipped: %d (undecodable)\n", skipped)
	}
	return nil
}
