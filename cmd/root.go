package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "frame-dedup",
	Short: "A CLI tool for removing near-duplicate frames from TFRecord datasets",
	Long: `Frame Dedup reads labeled image records from TFRecord files and compares
them by perceptual fingerprint, so frames that look the same are recognized
even when their bytes differ (recompression, re-encode, minor crop).

It can drop near-duplicate frames within one file, measure how many frames of
one split also appear in another, and merge per-dataset exports into a single
file with a label map.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "", "Log level: debug, info, warn, error (default from LOG_LEVEL or info)")
	flags.String("log-format", "", "Log format: text or json (default from LOG_FORMAT or text)")
	flags.String("schema", "", "Feature schema used to read records (detection, merge, image)")
	flags.String("schema-file", "", "YAML file with custom feature schemas")
	flags.String("compression", "none", "TFRecord compression: none, gzip, zlib")
	flags.String("on-decode-error", "fail", "What to do with images that cannot be decoded: fail or skip")
	flags.Bool("auto-orient", false, "Apply EXIF orientation before fingerprinting")
	flags.String("hasher", "", "Fingerprint: phash, dhash, goimagehash (default from DEDUP_HASHER or phash)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
