package hash

import (
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"imagededup/internal/match"
	"imagededup/internal/models"
)

// gradientImage builds a smooth horizontal brightness ramp
func gradientImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 255 / (w - 1))})
		}
	}
	return img
}

// noiseImage builds a deterministic pseudo-random pattern, visually
// unrelated to the gradient
func noiseImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x*7919 + y*104729 + x*y*31) % 256)})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

func writeJPEG(t *testing.T, path string, img image.Image, quality int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "gradient.png")
	writePNG(t, path, gradientImage(256, 256))

	for _, size := range []int{8, 16} {
		g := NewGenerator(size)

		first, err := g.Generate(path)
		if err != nil {
			t.Fatalf("first Generate failed at size %d: %v", size, err)
		}
		second, err := g.Generate(path)
		if err != nil {
			t.Fatalf("second Generate failed at size %d: %v", size, err)
		}

		wantBits := size * size
		if got := first.Fingerprints.Bits(); got != wantBits {
			t.Errorf("size %d: fingerprint width = %d bits, want %d", size, got, wantBits)
		}

		if first.Fingerprints.AHash.ToString() != second.Fingerprints.AHash.ToString() {
			t.Errorf("size %d: average hash not deterministic", size)
		}
		if first.Fingerprints.DHash.ToString() != second.Fingerprints.DHash.ToString() {
			t.Errorf("size %d: difference hash not deterministic", size)
		}
		if first.Fingerprints.PHash.ToString() != second.Fingerprints.PHash.ToString() {
			t.Errorf("size %d: perception hash not deterministic", size)
		}
	}
}

func TestGenerate_Metadata(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "gradient.png")
	writePNG(t, path, gradientImage(320, 200))

	info, err := NewGenerator(8).Generate(path)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if info.Width != 320 || info.Height != 200 {
		t.Errorf("dimensions = %dx%d, want 320x200", info.Width, info.Height)
	}
	if info.Format != "png" {
		t.Errorf("format = %q, want png", info.Format)
	}
	if info.FileSize <= 0 {
		t.Errorf("file size = %d, want > 0", info.FileSize)
	}
	if info.Path != path {
		t.Errorf("path = %q, want %q", info.Path, path)
	}
}

func TestGenerate_IdenticalCopyIsSimilar(t *testing.T) {
	tmpDir := t.TempDir()
	img := gradientImage(256, 256)

	pathA := filepath.Join(tmpDir, "a.png")
	pathB := filepath.Join(tmpDir, "b.png")
	writePNG(t, pathA, img)
	writePNG(t, pathB, img)

	g := NewGenerator(8)
	a, err := g.Generate(pathA)
	if err != nil {
		t.Fatalf("Generate(a) failed: %v", err)
	}
	b, err := g.Generate(pathB)
	if err != nil {
		t.Fatalf("Generate(b) failed: %v", err)
	}

	dist, err := match.Distance(a.Fingerprints.AHash, b.Fingerprints.AHash)
	if err != nil {
		t.Fatalf("Distance failed: %v", err)
	}
	if dist != 0 {
		t.Errorf("identical copies should have zero average-hash distance, got %d", dist)
	}

	similar, err := match.NewMatcher(0, 3).Similar(a.Fingerprints, b.Fingerprints)
	if err != nil {
		t.Fatalf("Similar failed: %v", err)
	}
	if !similar {
		t.Error("byte-identical copies must pass consensus at any threshold")
	}
}

func TestGenerate_RecompressedAndResizedCopies(t *testing.T) {
	tmpDir := t.TempDir()
	original := gradientImage(256, 256)

	origPath := filepath.Join(tmpDir, "original.png")
	jpegPath := filepath.Join(tmpDir, "recompressed.jpg")
	smallPath := filepath.Join(tmpDir, "resized.jpg")
	otherPath := filepath.Join(tmpDir, "unrelated.png")

	writePNG(t, origPath, original)
	writeJPEG(t, jpegPath, original, 80)
	writeJPEG(t, smallPath, imaging.Resize(original, 128, 128, imaging.Box), 80)
	writePNG(t, otherPath, noiseImage(256, 256))

	g := NewGenerator(8)
	infos := make(map[string]*models.ImageInfo)
	for _, p := range []string{origPath, jpegPath, smallPath, otherPath} {
		info, err := g.Generate(p)
		if err != nil {
			t.Fatalf("Generate(%s) failed: %v", p, err)
		}
		infos[p] = info
	}

	m := match.NewMatcher(10, 2)

	for _, p := range []string{jpegPath, smallPath} {
		similar, err := m.Similar(infos[origPath].Fingerprints, infos[p].Fingerprints)
		if err != nil {
			t.Fatalf("Similar failed: %v", err)
		}
		if !similar {
			t.Errorf("%s should pass consensus against the original", filepath.Base(p))
		}
	}

	similar, err := m.Similar(infos[origPath].Fingerprints, infos[otherPath].Fingerprints)
	if err != nil {
		t.Fatalf("Similar failed: %v", err)
	}
	if similar {
		t.Error("unrelated image must not pass consensus")
	}
}

func TestGenerate_CorruptFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "corrupt.jpg")
	if err := os.WriteFile(path, []byte("this is not an image"), 0644); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}

	_, err := NewGenerator(8).Generate(path)
	if !errors.Is(err, models.ErrUnreadableImage) {
		t.Errorf("expected ErrUnreadableImage, got %v", err)
	}
}

func TestGenerate_MissingFile(t *testing.T) {
	_, err := NewGenerator(8).Generate("/nonexistent/photo.jpg")
	if !errors.Is(err, models.ErrUnreadableImage) {
		t.Errorf("expected ErrUnreadableImage, got %v", err)
	}
}

func TestDecodableImage(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"photo.jpg", true},
		{"photo.JPEG", true},
		{"photo.png", true},
		{"photo.gif", true},
		{"photo.webp", true},
		{"photo.bmp", true},
		{"photo.tiff", true},
		{"photo.tif", true},
		{"photo.psd", false},
		{"photo.cr2", false},
		{"document.pdf", false},
		{"noextension", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := DecodableImage(tt.path); got != tt.expected {
				t.Errorf("DecodableImage(%q) = %v, want %v", tt.path, got, tt.expected)
			}
		})
	}
}
