package match

import (
	"fmt"

	"github.com/corona10/goimagehash"

	"imagededup/internal/models"
)

// Matcher decides whether two fingerprint sets describe similar images
// by consensus across the three hash algorithms. Each algorithm votes
// similar when its Hamming distance is at or below Threshold; the pair
// is similar when at least Agreement algorithms vote yes.
//
// Each algorithm has distinct blind spots (average hash is fooled by
// uniform recoloring, difference hash by rotation, perception hash is
// oversensitive to JPEG block artifacts), so requiring 2-of-3 keeps
// false positives down compared to any single algorithm.
type Matcher struct {
	Threshold int
	Agreement int
}

// NewMatcher creates a Matcher. Threshold is an absolute bit distance
// on the configured hash width; callers changing the hash size must
// scale it. Out-of-range agreement falls back to 2-of-3.
func NewMatcher(threshold, agreement int) *Matcher {
	if threshold < 0 {
		threshold = 10
	}
	if agreement < 1 || agreement > 3 {
		agreement = 2
	}
	return &Matcher{Threshold: threshold, Agreement: agreement}
}

// Similar reports whether two fingerprint sets pass the consensus
// check. It is a pure function of the fingerprints and fails only on
// mismatched bit widths, which is fatal to the run.
func (m *Matcher) Similar(a, b *models.FingerprintSet) (bool, error) {
	votes, err := m.votes(a, b)
	if err != nil {
		return false, err
	}
	return votes >= m.Agreement, nil
}

// votes counts how many algorithms consider the pair similar
func (m *Matcher) votes(a, b *models.FingerprintSet) (int, error) {
	votes := 0
	for _, pair := range [][2]*goimagehash.ExtImageHash{
		{a.AHash, b.AHash},
		{a.DHash, b.DHash},
		{a.PHash, b.PHash},
	} {
		dist, err := Distance(pair[0], pair[1])
		if err != nil {
			return 0, err
		}
		if dist <= m.Threshold {
			votes++
		}
	}
	return votes, nil
}

// Distance returns the Hamming distance between two fingerprints of
// equal width. A width mismatch wraps
// models.ErrIncompatibleFingerprintSize: it means cached and current
// hash sizes diverged, which must abort the run rather than produce
// bogus groupings.
func Distance(a, b *goimagehash.ExtImageHash) (int, error) {
	if a.Bits() != b.Bits() {
		return 0, fmt.Errorf("%w: %d bits vs %d bits",
			models.ErrIncompatibleFingerprintSize, a.Bits(), b.Bits())
	}
	dist, err := a.Distance(b)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrIncompatibleFingerprintSize, err)
	}
	return dist, nil
}
