package hash

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/corona10/goimagehash"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"imagededup/internal/models"
)

// Generator computes perceptual fingerprints and metadata for images.
// The hash size is fixed per run: 8 produces 64-bit fingerprints, 16
// produces 256-bit ones. Identical input bytes always yield identical
// fingerprints.
type Generator struct {
	hashSize int
}

// NewGenerator creates a Generator for the given hash size
func NewGenerator(hashSize int) *Generator {
	if hashSize <= 0 {
		hashSize = 8
	}
	return &Generator{hashSize: hashSize}
}

// HashSize returns the configured hash size
func (g *Generator) HashSize() int {
	return g.hashSize
}

// Generate decodes the image at path and computes its three perceptual
// hashes plus file metadata. Decode failures wrap
// models.ErrUnreadableImage; grayscale conversion failures wrap
// models.ErrUnsupportedColorMode. Both are recoverable per image: the
// caller excludes the image from comparison and reports it.
func (g *Generator) Generate(path string) (*models.ImageInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrUnreadableImage, path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrUnreadableImage, path, err)
	}

	// EXIF probe reads the file separately, before Decode consumes the reader
	hasExif := checkExif(path)

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrUnreadableImage, path, err)
	}

	fp, err := g.Fingerprint(img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	bounds := img.Bounds()

	return &models.ImageInfo{
		Path:         path,
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
		Format:       models.NormalizeFormat(format),
		FileSize:     stat.Size(),
		ModTime:      stat.ModTime(),
		HasExif:      hasExif,
		Fingerprints: fp,
	}, nil
}

// Fingerprint computes the average, difference and perception hashes
// for a decoded image. All three are computed at the configured hash
// size so the resulting bit vectors are directly comparable.
//
// goimagehash follows the same bit conventions the similarity
// thresholds are calibrated to: average hash sets a bit when the cell
// is strictly brighter than the grid mean, difference hash encodes
// row-wise left-brighter-than-right gradients, and perception hash
// thresholds the low-frequency DCT block against its median with the
// DC term excluded.
func (g *Generator) Fingerprint(img image.Image) (*models.FingerprintSet, error) {
	ahash, err := goimagehash.ExtAverageHash(img, g.hashSize, g.hashSize)
	if err != nil {
		return nil, fmt.Errorf("%w: average hash: %v", models.ErrUnsupportedColorMode, err)
	}
	dhash, err := goimagehash.ExtDifferenceHash(img, g.hashSize, g.hashSize)
	if err != nil {
		return nil, fmt.Errorf("%w: difference hash: %v", models.ErrUnsupportedColorMode, err)
	}
	phash, err := goimagehash.ExtPerceptionHash(img, g.hashSize, g.hashSize)
	if err != nil {
		return nil, fmt.Errorf("%w: perception hash: %v", models.ErrUnsupportedColorMode, err)
	}

	return &models.FingerprintSet{
		AHash: ahash,
		DHash: dhash,
		PHash: phash,
	}, nil
}

// checkExif reports whether the file at path contains EXIF metadata
func checkExif(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	_, err = exif.Decode(file)
	return err == nil
}

// DecodableImage reports whether the Go decoders registered above can
// handle the file's extension. Formats like PSD and camera RAW are
// still scanned but end up in the unprocessed bucket when decoding
// fails.
func DecodableImage(path string) bool {
	ext := strings.ToLower(path)
	for _, suffix := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff", ".tif"} {
		if strings.HasSuffix(ext, suffix) {
			return true
		}
	}
	return false
}
