package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"imagededup/internal/models"
)

var (
	dbPath    string
	threshold int
	agreement int
	hashSize  int
	workers   int
)

var rootCmd = &cobra.Command{
	Use:   "imagededup",
	Short: "Deduplicate image collections by visual similarity",
	Long: `imagededup finds images that are visually the same even when the bytes
differ (re-compressed, resized, or color-adjusted copies) and keeps the
best quality version of each.

Three perceptual hash algorithms (average, difference, perception) are
computed per image; two of the three must agree before a pair counts as
duplicates. Matched images are merged into groups and the highest
quality member of each group survives.

Example usage:
  imagededup dedupe ./photos ./unique     # Copy unique images to ./unique
  imagededup dedupe ./photos ./unique -n  # Dry run, no files touched
  imagededup analyze ./photos             # Report duplicates only
  imagededup list                         # Review groups from the last run`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	homeDir, _ := os.UserHomeDir()
	defaultDB := filepath.Join(homeDir, ".imagededup", "results.db")

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDB, "Path to SQLite results database")
	rootCmd.PersistentFlags().IntVarP(&threshold, "threshold", "t", 10, "Hamming distance threshold per algorithm (lower = stricter)")
	rootCmd.PersistentFlags().IntVarP(&agreement, "agreement", "a", 2, "Hash algorithms that must agree (1-3)")
	rootCmd.PersistentFlags().IntVar(&hashSize, "hash-size", 8, "Perceptual hash size (8 = 64-bit, 16 = 256-bit)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 8, "Number of parallel workers")
}

// buildConfig assembles and validates the run configuration from the
// shared flags. The threshold is an absolute bit distance calibrated
// for 64-bit hashes, so when the hash size is raised to 16 and the
// user left the threshold at its default, it is scaled to the larger
// bit width.
func buildConfig() (*models.Config, error) {
	cfg := &models.Config{
		HashSize:  hashSize,
		Threshold: threshold,
		Agreement: agreement,
		Workers:   workers,
	}
	if hashSize == 16 && !rootCmd.PersistentFlags().Changed("threshold") {
		cfg.Threshold = threshold * (cfg.HashBits() / 64)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
