package organize

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"imagededup/internal/models"
)

// CopyResult records the outcome of copying one image into the output
// directory
type CopyResult struct {
	Source      string `json:"source_path"`
	Destination string `json:"destination_path"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	BytesCopied int64  `json:"bytes_copied"`
}

// Report summarizes an organization run. It always carries all three
// outcome buckets: unique images copied, duplicates left behind, and
// images that could not be processed.
type Report struct {
	TotalInputImages   int                   `json:"total_input_images"`
	UniqueImagesCopied int                   `json:"unique_images_copied"`
	DuplicateGroups    int                   `json:"duplicate_groups_found"`
	SpaceSaved         int64                 `json:"total_space_saved_bytes"`
	CopyResults        []CopyResult          `json:"copy_results"`
	Unprocessed        []*models.Unprocessed `json:"unprocessed"`
	Errors             []string              `json:"errors"`
	Timestamp          string                `json:"timestamp"`
}

// Organizer copies the surviving representative of every similarity
// group into an output directory, resolving filename collisions. The
// detection core never calls it; it only consumes the core's output.
type Organizer struct {
	outputDir         string
	preserveStructure bool
	dryRun            bool
	usedNames         map[string]bool
}

// Option configures an Organizer
type Option func(*Organizer)

// WithPreserveStructure keeps the source directory layout below the
// output directory instead of flattening
func WithPreserveStructure() Option {
	return func(o *Organizer) {
		o.preserveStructure = true
	}
}

// WithDryRun simulates all copies without touching the filesystem
func WithDryRun() Option {
	return func(o *Organizer) {
		o.dryRun = true
	}
}

// NewOrganizer creates an Organizer targeting outputDir
func NewOrganizer(outputDir string, opts ...Option) *Organizer {
	o := &Organizer{
		outputDir: outputDir,
		usedNames: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Organize copies each group's representative into the output
// directory. Because groups partition the input, this is exactly the
// set of unique survivors; rejected duplicates stay where they are.
// sourceRoot is used to compute relative paths when preserving
// structure.
func (o *Organizer) Organize(result *models.RunResult, sourceRoot string) (*Report, error) {
	if !o.dryRun {
		if err := os.MkdirAll(o.outputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	report := &Report{
		DuplicateGroups: len(result.DuplicateGroups()),
		SpaceSaved:      result.SpaceSaved(),
		Unprocessed:     result.Unprocessed,
		Timestamp:       time.Now().Format(time.RFC3339),
	}

	for _, group := range result.Groups {
		report.TotalInputImages += len(group.Images)

		res := o.copyImage(group.Representative.Path, sourceRoot)
		report.CopyResults = append(report.CopyResults, res)
		if res.Success {
			report.UniqueImagesCopied++
		} else {
			report.Errors = append(report.Errors,
				fmt.Sprintf("failed to copy %s: %s", res.Source, res.Error))
		}
	}

	return report, nil
}

// copyImage copies one file into the output directory, picking a
// collision-free destination name
func (o *Organizer) copyImage(src, sourceRoot string) CopyResult {
	dest := filepath.Join(o.outputDir, filepath.Base(src))
	if o.preserveStructure && sourceRoot != "" {
		if rel, err := filepath.Rel(sourceRoot, src); err == nil && !strings.HasPrefix(rel, "..") {
			dest = filepath.Join(o.outputDir, rel)
		}
	}
	dest = o.uniqueDestination(dest)

	if o.dryRun {
		var size int64
		if stat, err := os.Stat(src); err == nil {
			size = stat.Size()
		}
		o.usedNames[dest] = true
		return CopyResult{Source: src, Destination: dest, Success: true, BytesCopied: size}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return CopyResult{Source: src, Error: err.Error()}
	}

	copied, err := copyFile(src, dest)
	if err != nil {
		return CopyResult{Source: src, Error: err.Error()}
	}
	o.usedNames[dest] = true
	return CopyResult{Source: src, Destination: dest, Success: true, BytesCopied: copied}
}

// uniqueDestination appends _1, _2, ... to the filename until it
// collides with neither a prior copy nor an existing file
func (o *Organizer) uniqueDestination(dest string) string {
	if o.available(dest) {
		return dest
	}

	ext := filepath.Ext(dest)
	stem := strings.TrimSuffix(dest, ext)
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, counter, ext)
		if o.available(candidate) {
			return candidate
		}
	}
}

func (o *Organizer) available(dest string) bool {
	if o.usedNames[dest] {
		return false
	}
	if o.dryRun {
		return true
	}
	_, err := os.Stat(dest)
	return os.IsNotExist(err)
}

// copyFile copies src to dest, preserving mode and modification time
func copyFile(src, dest string) (int64, error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return 0, err
	}

	destFile, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return 0, err
	}

	copied, err := io.Copy(destFile, srcFile)
	if err != nil {
		destFile.Close()
		return 0, err
	}
	if err := destFile.Close(); err != nil {
		return 0, err
	}

	os.Chtimes(dest, time.Now(), srcInfo.ModTime())
	return copied, nil
}

// SaveReport writes the report as indented JSON. An empty path picks a
// timestamped filename inside the output directory.
func (o *Organizer) SaveReport(report *Report, path string) (string, error) {
	if path == "" {
		path = filepath.Join(o.outputDir,
			fmt.Sprintf("dedup_report_%s.json", time.Now().Format("20060102_150405")))
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	if o.dryRun {
		return path, nil
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
