package cmd

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"imagededup/internal/storage"
)

var listVerbose bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List duplicate groups from the last saved run",
	Long: `List the duplicate groups recorded by the most recent dedupe or
analyze run, including which image was kept as the representative of
each group and which were rejected.

Example:
  imagededup list
  imagededup list --verbose`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVarP(&listVerbose, "verbose", "v", false, "Show full paths and scores")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := storage.NewStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	groups, err := store.GetDuplicateGroups()
	if err != nil {
		return fmt.Errorf("failed to load groups: %w", err)
	}
	unprocessed, err := store.GetUnprocessed()
	if err != nil {
		return fmt.Errorf("failed to load unprocessed images: %w", err)
	}

	if len(groups) == 0 {
		fmt.Println("No duplicate groups found. Run 'imagededup analyze <folder>' first.")
		return nil
	}

	fmt.Printf("%d duplicate group(s):\n", len(groups))
	for _, group := range groups {
		fmt.Printf("\nGroup %d (%d images, %s total):\n",
			group.ID, len(group.Images), humanize.Bytes(uint64(group.TotalSize())))

		for _, img := range group.Images {
			marker := "✗"
			if group.Representative != nil && img.Path == group.Representative.Path {
				marker = "✓"
			}
			score := 0.0
			if img.Quality != nil {
				score = img.Quality.Overall
			}
			if listVerbose {
				fmt.Printf("  %s %s\n", marker, img.Path)
				fmt.Printf("      %dx%d  %s  %s  score %.1f\n",
					img.Width, img.Height, strings.ToUpper(img.Format),
					humanize.Bytes(uint64(img.FileSize)), score)
			} else {
				fmt.Printf("  %s %-48s  %dx%d  %-4s  %8s  score %.1f\n",
					marker, shortenPath(img.Path, 48), img.Width, img.Height,
					strings.ToUpper(img.Format), humanize.Bytes(uint64(img.FileSize)), score)
			}
		}
	}

	if len(unprocessed) > 0 {
		fmt.Printf("\n%d image(s) could not be processed in the last run:\n", len(unprocessed))
		for _, u := range unprocessed {
			fmt.Printf("  %s: %s\n", shortenPath(u.Path, 48), u.Reason)
		}
	}

	return nil
}
