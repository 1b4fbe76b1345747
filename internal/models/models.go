package models

import (
	"strings"
	"time"

	"github.com/corona10/goimagehash"
)

// ImageInfo holds the identity, metadata and computed fingerprints of one image
type ImageInfo struct {
	ID           int64           `json:"id"`
	Path         string          `json:"path"`
	Width        int             `json:"width"`
	Height       int             `json:"height"`
	Format       string          `json:"format"`
	FileSize     int64           `json:"file_size"`
	ModTime      time.Time       `json:"mod_time"`
	HasExif      bool            `json:"has_exif"`
	Fingerprints *FingerprintSet `json:"-"`
	Quality      *QualityScore   `json:"quality,omitempty"`
	GroupID      int             `json:"group_id,omitempty"`
}

// PixelCount returns the total number of pixels in the image
func (i *ImageInfo) PixelCount() int {
	return i.Width * i.Height
}

// FingerprintSet is the three perceptual hashes computed for one image.
// All three use the same bit width; two sets must have equal widths to
// be compared. Computed once per run and never mutated afterwards.
type FingerprintSet struct {
	AHash *goimagehash.ExtImageHash
	DHash *goimagehash.ExtImageHash
	PHash *goimagehash.ExtImageHash
}

// Bits returns the bit width of the fingerprints in the set
func (f *FingerprintSet) Bits() int {
	if f == nil || f.AHash == nil {
		return 0
	}
	return f.AHash.Bits()
}

// QualityScore is the composite quality assessment for an image.
// Overall is in [0, 100]; the sub-scores explain how it was derived.
type QualityScore struct {
	Overall             float64 `json:"overall"`
	Format              float64 `json:"format"`
	Resolution          float64 `json:"resolution"`
	Size                float64 `json:"size"`
	Sharpness           float64 `json:"sharpness"`
	SharpnessDegraded   bool    `json:"sharpness_degraded,omitempty"`
	HasWatermark        bool    `json:"has_watermark"`
	WatermarkConfidence float64 `json:"watermark_confidence"`
}

// SimilarityGroup is a set of images judged mutually similar, with the
// elected representative and the rejected duplicates. Groups partition
// the processed input: every image belongs to exactly one group, and a
// group of size 1 means the image matched nothing.
//
// Membership is built by transitive union (A~B and B~C puts A, B, C in
// one group even if A and C are not directly similar), so every member
// is similar to at least one other member, not necessarily to all.
type SimilarityGroup struct {
	ID             int          `json:"id"`
	Images         []*ImageInfo `json:"images"`
	Representative *ImageInfo   `json:"representative"`
	Rejected       []*ImageInfo `json:"rejected"`
}

// IsSingleton reports whether the group contains a single unique image
func (g *SimilarityGroup) IsSingleton() bool {
	return len(g.Images) == 1
}

// TotalSize returns the total file size of all images in the group
func (g *SimilarityGroup) TotalSize() int64 {
	var total int64
	for _, img := range g.Images {
		total += img.FileSize
	}
	return total
}

// Unprocessed records an image that failed hashing and was excluded
// from comparison. These are reported, never silently dropped.
type Unprocessed struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// RunResult is the complete outcome of a detection run: the groups
// (singletons included), plus the images that could not be processed.
type RunResult struct {
	Groups      []*SimilarityGroup `json:"groups"`
	Unprocessed []*Unprocessed     `json:"unprocessed"`
}

// DuplicateGroups returns only the groups with two or more members
func (r *RunResult) DuplicateGroups() []*SimilarityGroup {
	var dups []*SimilarityGroup
	for _, g := range r.Groups {
		if !g.IsSingleton() {
			dups = append(dups, g)
		}
	}
	return dups
}

// TotalDuplicates returns the number of rejected images across all groups
func (r *RunResult) TotalDuplicates() int {
	total := 0
	for _, g := range r.Groups {
		total += len(g.Rejected)
	}
	return total
}

// SpaceSaved returns the bytes freed by keeping only representatives
func (r *RunResult) SpaceSaved() int64 {
	var total int64
	for _, g := range r.Groups {
		for _, img := range g.Rejected {
			total += img.FileSize
		}
	}
	return total
}

// FormatPriority returns the tie-break rank of an image format.
// Used only when composite quality scores tie; higher is better.
func FormatPriority(format string) int {
	switch NormalizeFormat(format) {
	case "psd":
		return 100
	case "png":
		return 90
	case "tiff":
		return 80
	case "bmp":
		return 70
	case "webp":
		return 60
	case "jpeg":
		return 50
	case "gif":
		return 40
	default:
		return 30
	}
}

// NormalizeFormat lower-cases a format name and folds aliases
// (jpg/jpeg, tif/tiff) together
func NormalizeFormat(format string) string {
	f := strings.ToLower(format)
	switch f {
	case "jpg":
		return "jpeg"
	case "tif":
		return "tiff"
	default:
		return f
	}
}
