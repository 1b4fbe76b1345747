package models

import (
	"errors"
	"fmt"
	"math"
)

// Per-image failures are recoverable: the image is excluded from
// comparison and reported as unprocessed. Size mismatches and invalid
// configuration are fatal and surfaced before any comparison work.
var (
	// ErrUnreadableImage marks a file that could not be decoded
	// (corrupt data, unsupported codec, truncated file).
	ErrUnreadableImage = errors.New("unreadable image")

	// ErrUnsupportedColorMode marks an image that decoded but could
	// not be converted to grayscale for hashing.
	ErrUnsupportedColorMode = errors.New("unsupported color mode")

	// ErrIncompatibleFingerprintSize signals a bit-width mismatch
	// between two fingerprints. This is a configuration error, not an
	// image error, and aborts the run.
	ErrIncompatibleFingerprintSize = errors.New("incompatible fingerprint size")

	// ErrInsufficientData signals representative selection over a
	// group with no valid members. Upstream exclusion of failed images
	// should make this unreachable; if it occurs it is an invariant
	// violation, not a recoverable condition.
	ErrInsufficientData = errors.New("insufficient data for selection")
)

// Config is the detection configuration consumed by the core,
// validated before any comparison work begins.
type Config struct {
	HashSize  int // 8 or 16; bit width is HashSize squared
	Threshold int // absolute Hamming bit distance per algorithm
	Agreement int // algorithms that must vote similar (1-3)
	Workers   int // parallel workers for hashing and comparison
}

// HashBits returns the fingerprint bit width for the configured size
func (c *Config) HashBits() int {
	return c.HashSize * c.HashSize
}

// Validate checks the configuration, returning a fatal error on any
// out-of-range value.
func (c *Config) Validate() error {
	if c.HashSize != 8 && c.HashSize != 16 {
		return fmt.Errorf("hash size must be 8 or 16, got %d", c.HashSize)
	}
	if c.Threshold < 0 || c.Threshold > c.HashBits() {
		return fmt.Errorf("threshold must be between 0 and %d, got %d", c.HashBits(), c.Threshold)
	}
	if c.Agreement < 1 || c.Agreement > 3 {
		return fmt.Errorf("agreement must be between 1 and 3, got %d", c.Agreement)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

// Weights are the relative contributions of the quality sub-scores.
// They must sum to 1.
type Weights struct {
	Format     float64
	Resolution float64
	Size       float64
	Sharpness  float64
	Watermark  float64
}

// DefaultWeights returns the standard sub-score weighting
func DefaultWeights() Weights {
	return Weights{
		Format:     0.30,
		Resolution: 0.25,
		Size:       0.20,
		Sharpness:  0.20,
		Watermark:  0.05,
	}
}

// Validate checks that the weights sum to 1 within floating tolerance
func (w Weights) Validate() error {
	sum := w.Format + w.Resolution + w.Size + w.Sharpness + w.Watermark
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("quality weights must sum to 1.0, got %g", sum)
	}
	return nil
}
