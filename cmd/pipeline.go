package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"imagededup/internal/hash"
	"imagededup/internal/match"
	"imagededup/internal/models"
	"imagededup/internal/quality"
	"imagededup/internal/scan"
)

// runDetection executes scan → hash → detect for a folder and returns
// the run result plus the resolved absolute folder path
func runDetection(folder string, cfg *models.Config, extensions []string, sample int, quiet bool) (*models.RunResult, string, error) {
	absFolder, err := filepath.Abs(folder)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve path: %w", err)
	}

	opts := []scan.Option{
		scan.WithWorkers(cfg.Workers),
		scan.WithExtensions(extensions),
	}
	if sample > 0 {
		opts = append(opts, scan.WithSample(sample))
	}

	lastLine := ""
	if !quiet {
		opts = append(opts, scan.WithProgress(func(scanned, total int, current string) {
			if lastLine != "" {
				fmt.Print("\r" + strings.Repeat(" ", len(lastLine)) + "\r")
			}
			shortPath := current
			if len(shortPath) > 50 {
				shortPath = "..." + shortPath[len(shortPath)-47:]
			}
			lastLine = fmt.Sprintf("Hashing: %d/%d  %s", scanned, total, shortPath)
			fmt.Print(lastLine)
		}))
	}

	scanner := scan.NewScanner(hash.NewGenerator(cfg.HashSize), opts...)

	if !quiet {
		fmt.Printf("Scanning: %s\n", absFolder)
		fmt.Printf("Threshold: %d bits, agreement: %d of 3, hash size: %d\n\n",
			cfg.Threshold, cfg.Agreement, cfg.HashSize)
	}

	processed, unprocessed, err := scanner.ScanFolder(absFolder)
	if err != nil {
		return nil, "", fmt.Errorf("scan failed: %w", err)
	}
	if lastLine != "" {
		fmt.Print("\r" + strings.Repeat(" ", len(lastLine)) + "\r")
	}

	if !quiet {
		fmt.Printf("Hashed %d images (%d unprocessable)\n", len(processed), len(unprocessed))
	}

	matcher := match.NewMatcher(cfg.Threshold, cfg.Agreement)
	detector := match.NewDetector(matcher, quality.NewAssessor(), cfg.Workers)

	groups, err := detector.Detect(processed)
	if err != nil {
		return nil, "", fmt.Errorf("detection failed: %w", err)
	}

	return &models.RunResult{Groups: groups, Unprocessed: unprocessed}, absFolder, nil
}

// printUnprocessed lists images that failed hashing. They are part of
// the run outcome and must never disappear silently.
func printUnprocessed(unprocessed []*models.Unprocessed, verbose bool) {
	if len(unprocessed) == 0 {
		return
	}

	fmt.Printf("\nWARNING: %d images could not be processed:\n", len(unprocessed))
	limit := len(unprocessed)
	if !verbose && limit > 10 {
		limit = 10
	}
	for _, u := range unprocessed[:limit] {
		fmt.Printf("  %s: %s\n", filepath.Base(u.Path), u.Reason)
	}
	if limit < len(unprocessed) {
		fmt.Printf("  ... and %d more (--verbose-errors shows all)\n", len(unprocessed)-limit)
	}
}

// printDetectionReport prints the duplicate groups found in a run
func printDetectionReport(result *models.RunResult) {
	dups := result.DuplicateGroups()

	fmt.Println("\n=== Duplicate Detection Report ===")
	fmt.Printf("Duplicate groups:  %d\n", len(dups))
	fmt.Printf("Duplicate images:  %d\n", result.TotalDuplicates())
	fmt.Printf("Reclaimable space: %s\n", humanize.Bytes(uint64(result.SpaceSaved())))

	if len(dups) == 0 {
		fmt.Println("No duplicates found. All images are unique.")
		return
	}

	// Groups are merged transitively: A~B and B~C lands all three in
	// one group even if A and C are not directly similar.
	fmt.Println("\nNote: groups are built by transitive matching; members are")
	fmt.Println("similar to at least one other member, not necessarily to all.")

	shown := dups
	if len(shown) > 10 {
		shown = shown[:10]
	}
	fmt.Printf("\nGroups (showing %d of %d):\n", len(shown), len(dups))
	for _, group := range shown {
		fmt.Printf("\nGroup %d (%d images):\n", group.ID, len(group.Images))
		printGroupImage(group.Representative, true)
		for _, img := range group.Rejected {
			printGroupImage(img, false)
		}
	}
}

func printGroupImage(img *models.ImageInfo, keep bool) {
	marker := "REJECT"
	if keep {
		marker = "KEEP  "
	}
	score := ""
	if img.Quality != nil {
		score = fmt.Sprintf("  score %.1f", img.Quality.Overall)
	}
	fmt.Printf("  %s %s  (%dx%d, %s, %s)%s\n",
		marker, shortenPath(img.Path, 48), img.Width, img.Height,
		strings.ToUpper(img.Format), humanize.Bytes(uint64(img.FileSize)), score)
}

func shortenPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}

	dir, file := filepath.Split(path)
	if len(file) >= maxLen-3 {
		return "..." + file[len(file)-(maxLen-3):]
	}

	remaining := maxLen - len(file) - 4
	if remaining > 0 && len(dir) > remaining {
		dir = dir[len(dir)-remaining:]
	}
	return "..." + dir + file
}
