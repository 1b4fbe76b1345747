package models

import (
	"testing"
)

func TestFormatPriority(t *testing.T) {
	tests := []struct {
		format   string
		expected int
	}{
		{"psd", 100},
		{"PSD", 100},
		{"png", 90},
		{"tiff", 80},
		{"tif", 80},
		{"bmp", 70},
		{"webp", 60},
		{"jpeg", 50},
		{"jpg", 50},
		{"JPG", 50},
		{"gif", 40},
		{"xcf", 30},
		{"", 30},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			if got := FormatPriority(tt.format); got != tt.expected {
				t.Errorf("FormatPriority(%q) = %d, want %d", tt.format, got, tt.expected)
			}
		})
	}
}

func TestNormalizeFormat(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{"jpg", "jpeg"},
		{"JPG", "jpeg"},
		{"jpeg", "jpeg"},
		{"tif", "tiff"},
		{"TIFF", "tiff"},
		{"PNG", "png"},
		{"webp", "webp"},
	}

	for _, tt := range tests {
		if got := NormalizeFormat(tt.in); got != tt.out {
			t.Errorf("NormalizeFormat(%q) = %q, want %q", tt.in, got, tt.out)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid defaults", Config{HashSize: 8, Threshold: 10, Agreement: 2, Workers: 8}, false},
		{"valid large hash", Config{HashSize: 16, Threshold: 40, Agreement: 3, Workers: 1}, false},
		{"zero threshold", Config{HashSize: 8, Threshold: 0, Agreement: 1, Workers: 1}, false},
		{"bad hash size", Config{HashSize: 12, Threshold: 10, Agreement: 2, Workers: 8}, true},
		{"negative threshold", Config{HashSize: 8, Threshold: -1, Agreement: 2, Workers: 8}, true},
		{"threshold above width", Config{HashSize: 8, Threshold: 65, Agreement: 2, Workers: 8}, true},
		{"agreement too low", Config{HashSize: 8, Threshold: 10, Agreement: 0, Workers: 8}, true},
		{"agreement too high", Config{HashSize: 8, Threshold: 10, Agreement: 4, Workers: 8}, true},
		{"no workers", Config{HashSize: 8, Threshold: 10, Agreement: 2, Workers: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWeightsValidate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Errorf("default weights should validate: %v", err)
	}

	bad := Weights{Format: 0.5, Resolution: 0.5, Size: 0.5}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for weights not summing to 1")
	}
}

func TestRunResultBuckets(t *testing.T) {
	rep := &ImageInfo{Path: "a.png", FileSize: 100}
	dup1 := &ImageInfo{Path: "b.jpg", FileSize: 40}
	dup2 := &ImageInfo{Path: "c.jpg", FileSize: 60}
	single := &ImageInfo{Path: "d.png", FileSize: 10}

	result := &RunResult{
		Groups: []*SimilarityGroup{
			{ID: 1, Images: []*ImageInfo{rep, dup1, dup2}, Representative: rep, Rejected: []*ImageInfo{dup1, dup2}},
			{ID: 2, Images: []*ImageInfo{single}, Representative: single},
		},
		Unprocessed: []*Unprocessed{{Path: "broken.jpg", Reason: "unreadable image"}},
	}

	if got := len(result.DuplicateGroups()); got != 1 {
		t.Errorf("DuplicateGroups() = %d groups, want 1", got)
	}
	if got := result.TotalDuplicates(); got != 2 {
		t.Errorf("TotalDuplicates() = %d, want 2", got)
	}
	if got := result.SpaceSaved(); got != 100 {
		t.Errorf("SpaceSaved() = %d, want 100", got)
	}
	if !result.Groups[1].IsSingleton() {
		t.Error("group 2 should be a singleton")
	}
	if got := result.Groups[0].TotalSize(); got != 200 {
		t.Errorf("TotalSize() = %d, want 200", got)
	}
}
