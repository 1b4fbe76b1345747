package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"imagededup/internal/storage"
)

var (
	analyzeExtensions []string
	analyzeSample     int
	analyzeQuiet      bool
	analyzeNoSave     bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <folder>",
	Short: "Report duplicates without touching any files",
	Long: `Scan a folder and report duplicate groups without copying or moving
anything. Useful for understanding what duplicates exist before running
the full deduplication.

Example:
  imagededup analyze ./photos
  imagededup analyze ./photos --threshold 5 --agreement 3`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringSliceVarP(&analyzeExtensions, "extensions", "e", nil, "Additional file extensions to include")
	analyzeCmd.Flags().IntVar(&analyzeSample, "sample", 0, "Process only the first N images")
	analyzeCmd.Flags().BoolVarP(&analyzeQuiet, "quiet", "q", false, "Suppress progress output")
	analyzeCmd.Flags().BoolVar(&analyzeNoSave, "no-save", false, "Do not persist results to the database")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	result, absFolder, err := runDetection(args[0], cfg, analyzeExtensions, analyzeSample, analyzeQuiet)
	if err != nil {
		return err
	}
	if len(result.Groups) == 0 && len(result.Unprocessed) == 0 {
		fmt.Println("No images found.")
		return nil
	}

	printUnprocessed(result.Unprocessed, verboseErrors)
	printDetectionReport(result)

	if !analyzeNoSave {
		store, err := storage.NewStorage(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		if err := store.SaveRun(absFolder, result); err != nil {
			return fmt.Errorf("failed to save results: %w", err)
		}
	}

	return nil
}
