package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/frame-dedup/internal/config"
	"github.com/kozaktomas/frame-dedup/internal/fingerprint"
)

// Build metadata variables, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and the effective dedup defaults",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout(), config.Load())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// printVersion writes build metadata followed by the settings a run would use
// without flags, so a report can be reproduced from it.
func printVersion(w io.Writer, cfg *config.Config) {
	schemas := make([]string, 0)
	for name := range config.Schemas() {
		schemas = append(schemas, name)
	}
	sort.Strings(schemas)

	fmt.Fprintf(w, "frame-dedup %s\n", Version)
	fmt.Fprintf(w, "  Commit:    %s\n", CommitSHA)
	fmt.Fprintf(w, "  Built:     %s\n", BuildDate)
	fmt.Fprintf(w, "  Hasher:    %s (available: %s, %s, %s)\n", cfg.Dedup.Hasher,
		fingerprint.HasherPHash, fingerprint.HasherDHash, fingerprint.HasherGoImageHash)
	fmt.Fprintf(w, "  Threshold: %d\n", cfg.Dedup.Threshold)
	fmt.Fprintf(w, "  Index:     %s\n", cfg.Dedup.Index)
	fmt.Fprintf(w, "  Schemas:   %s\n", strings.Join(schemas, ", "))
}
