package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/frame-dedup/internal/fingerprint"
	"github.com/kozaktomas/frame-dedup/internal/records"
)

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Display per-record fingerprints of a record file",
	Long: `Display the fingerprint of every record in a file together with the image
metadata stored next to it. Undecodable images are reported per record instead
of failing the command.

Examples:
  # Table of fingerprints
  frame-dedup info default.tfrecord

  # First 100 records as JSON, hashed with 8 workers
  frame-dedup info --limit 100 --concurrency 8 --json default.tfrecord`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().Bool("json", false, "Output as JSON")
	infoCmd.Flags().Int("limit", 0, "Limit number of records (0 = no limit)")
	infoCmd.Flags().Int("concurrency", 5, "Number of parallel workers")
}

var errLimitReached = errors.New("limit reached")

func runInfo(cmd *cobra.Command, args []string) error {
	path := args[0]
	jsonOutput := mustGetBool(cmd, "json")
	limit := mustGetInt(cmd, "limit")
	concurrency := mustGetInt(cmd, "concurrency")
	out := cmd.OutOrStdout()
	if concurrency < 1 {
		return errors.New("--concurrency must be at least 1")
	}

	env, err := newRunEnv(cmd, "image")
	if err != nil {
		return err
	}

	ctx, cancel := env.signalContext()
	defer cancel()

	src, err := env.openSource(ctx, path)
	if err != nil {
		return err
	}
	defer src.Close()

	var recs []records.Record
	err = records.ForEach(records.WithContext(ctx, src), func(rec records.Record) error {
		recs = append(recs, rec)
		if limit > 0 && len(recs) >= limit {
			return errLimitReached
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimitReached) {
		return err
	}

	bar := newHashProgressBar(len(recs), jsonOutput)
	infos := fingerprintConcurrently(env, recs, concurrency, bar)
	if bar != nil {
		fmt.Fprintln(os.Stderr)
	}

	if jsonOutput {
		return outputJSON(out, fingerprint.RecordInfoBatch{
			Source:  path,
			Hasher:  env.hasher.Name(),
			Records: infos,
			Count:   len(infos),
		})
	}
	outputInfoTable(out, infos)
	return nil
}

// newHashProgressBar creates a progress bar for hash computation, or nil if JSON output.
func newHashProgressBar(count int, jsonOutput bool) *progressbar.ProgressBar {
	if jsonOutput {
		return nil
	}
	return progressbar.NewOptions(count,
		progressbar.OptionSetDescription("Computing fingerprints"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("records"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

// buildRecordInfo fingerprints one record and collects its metadata.
func buildRecordInfo(env *runEnv, rec records.Record) fingerprint.RecordInfo {
	info := fingerprint.RecordInfo{Index: rec.Index}
	if ex := rec.Example; ex != nil {
		info.Filename = ex.StringValue("image/filename")
		info.SourceID = ex.StringValue("image/source_id")
		info.Format = ex.StringValue("image/format")
		if w, ok := ex.Int64Value("image/width"); ok {
			info.Width = int(w)
		}
		if h, ok := ex.Int64Value("image/height"); ok {
			info.Height = int(h)
		}
	}

	fp, err := fingerprint.Compute(env.hasher, rec.Image, env.decode)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.Fingerprint = fp
	info.Hash = fp.String()
	return info
}

// fingerprintConcurrently hashes records with workers, keeping input order.
func fingerprintConcurrently(env *runEnv, recs []records.Record, concurrency int, bar *progressbar.ProgressBar) []fingerprint.RecordInfo {
	results := make([]fingerprint.RecordInfo, len(recs))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i := range recs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = buildRecordInfo(env, recs[idx])

			if bar != nil {
				_ = bar.Add(1)
			}
		}(i)
	}
	wg.Wait()
	return results
}

func outputInfoTable(out io.Writer, infos []fingerprint.RecordInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tFILENAME\tFORMAT\tDIMENSIONS\tFINGERPRINT")
	fmt.Fprintln(w, "-----\t--------\t------\t----------\t-----------")

	failed := 0
	for i := range infos {
		info := &infos[i]
		dims := ""
		if info.Width > 0 && info.Height > 0 {
			dims = fmt.Sprintf("%dx%d", info.Width, info.Height)
		}
		hash := info.Hash
		if info.Error != "" {
			hash = "error: " + info.Error
			failed++
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", info.Index, info.Filename, info.Format, dims, hash)
	}

	w.Flush()
	fmt.Fprintf(out, "\nTotal: %d records", len(infos))
	if failed > 0 {
		fmt.Fprintf(out, " (%d undecodable)", failed)
	}
	fmt.Fprintln(out)
}
