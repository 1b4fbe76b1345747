package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"imagededup/internal/organize"
	"imagededup/internal/storage"
)

var (
	extensions        []string
	preserveStructure bool
	dryRun            bool
	reportPath        string
	quiet             bool
	sample            int
	verboseErrors     bool
	noSave            bool
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe <input-folder> <output-folder>",
	Short: "Deduplicate a folder and copy unique images to the output",
	Long: `Scan a folder recursively, detect visually duplicate images, and copy
the best quality version of each into the output folder.

The pipeline:
1. Discover supported images (jpg, png, gif, webp, bmp, tiff, and more)
2. Compute three perceptual hashes per image
3. Group similar images by 2-of-3 hash consensus
4. Score each group member and elect the highest quality one
5. Copy the survivors into the output folder

Example:
  imagededup dedupe ./photos ./unique
  imagededup dedupe ./photos ./unique --dry-run
  imagededup dedupe ./photos ./unique --threshold 5 --preserve-structure`,
	Args: cobra.ExactArgs(2),
	RunE: runDedupe,
}

func init() {
	dedupeCmd.Flags().StringSliceVarP(&extensions, "extensions", "e", nil, "Additional file extensions to include (e.g. -e .heic)")
	dedupeCmd.Flags().BoolVarP(&preserveStructure, "preserve-structure", "p", false, "Preserve directory structure in output")
	dedupeCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would be done without copying files")
	dedupeCmd.Flags().StringVarP(&reportPath, "report", "r", "", "Save detailed JSON report to this path")
	dedupeCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress and verbose output")
	dedupeCmd.Flags().IntVar(&sample, "sample", 0, "Process only the first N images (for testing)")
	dedupeCmd.Flags().BoolVar(&verboseErrors, "verbose-errors", false, "Show all processing errors, not just the first 10")
	dedupeCmd.Flags().BoolVar(&noSave, "no-save", false, "Do not persist results to the database")
	rootCmd.AddCommand(dedupeCmd)
}

func runDedupe(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	result, absFolder, err := runDetection(args[0], cfg, extensions, sample, quiet)
	if err != nil {
		return err
	}
	if len(result.Groups) == 0 && len(result.Unprocessed) == 0 {
		fmt.Println("No images found.")
		return nil
	}

	if !quiet {
		printUnprocessed(result.Unprocessed, verboseErrors)
		printDetectionReport(result)
	}

	// Organize: copy the surviving representative of every group
	opts := []organize.Option{}
	if preserveStructure {
		opts = append(opts, organize.WithPreserveStructure())
	}
	if dryRun {
		opts = append(opts, organize.WithDryRun())
	}
	organizer := organize.NewOrganizer(args[1], opts...)

	if !quiet {
		if dryRun {
			fmt.Println("\nSimulating file organization...")
		} else {
			fmt.Println("\nOrganizing files...")
		}
	}

	report, err := organizer.Organize(result, absFolder)
	if err != nil {
		return fmt.Errorf("failed to organize files: %w", err)
	}

	printOrganizationReport(report, dryRun)

	if reportPath != "" {
		path, err := organizer.SaveReport(report, reportPath)
		if err != nil {
			fmt.Printf("Warning: failed to save report: %v\n", err)
		} else if !quiet {
			fmt.Printf("Detailed report saved to: %s\n", path)
		}
	}

	if !noSave && !dryRun {
		store, err := storage.NewStorage(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		if err := store.SaveRun(absFolder, result); err != nil {
			return fmt.Errorf("failed to save results: %w", err)
		}
		if !quiet {
			fmt.Println("\nRun 'imagededup list' to review the groups later.")
		}
	}

	return nil
}

func printOrganizationReport(report *organize.Report, dryRun bool) {
	fmt.Println("\n=== File Organization Report ===")
	if dryRun {
		fmt.Println("Operation:            DRY RUN (no files modified)")
	}
	fmt.Printf("Input images:         %d\n", report.TotalInputImages)
	fmt.Printf("Unique images copied: %d\n", report.UniqueImagesCopied)
	fmt.Printf("Duplicate groups:     %d\n", report.DuplicateGroups)
	fmt.Printf("Unprocessed images:   %d\n", len(report.Unprocessed))
	fmt.Printf("Space saved:          %s\n", humanize.Bytes(uint64(report.SpaceSaved)))

	if len(report.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(report.Errors))
		limit := len(report.Errors)
		if limit > 10 {
			limit = 10
		}
		for _, e := range report.Errors[:limit] {
			fmt.Printf("  %s\n", e)
		}
		if limit < len(report.Errors) {
			fmt.Printf("  ... and %d more\n", len(report.Errors)-limit)
		}
	}
}
