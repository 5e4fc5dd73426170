package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/kozaktomas/frame-dedup/internal/records"
)

func outputJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// newRecordProgressBar creates a spinner counting records, or nil if JSON output.
// Record files carry no count up front, so the total is unknown.
func newRecordProgressBar(description string, jsonOutput bool) *progressbar.ProgressBar {
	if jsonOutput {
		return nil
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("records"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)
}

// withProgress advances bar for every record read from src.
func withProgress(src records.Source, bar *progressbar.ProgressBar) records.Source {
	if bar == nil {
		return src
	}
	return records.Observe(src, func(records.Record) {
		_ = bar.Add(1)
	})
}

// finishProgress completes the bar and moves to a fresh line.
func finishProgress(bar *progressbar.ProgressBar) {
	if bar == nil {
		return
	}
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)
}
