package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/corona10/goimagehash"

	"imagededup/internal/models"
)

func testFingerprints(a, d, p uint64) *models.FingerprintSet {
	return &models.FingerprintSet{
		AHash: goimagehash.NewExtImageHash([]uint64{a}, goimagehash.AHash, 64),
		DHash: goimagehash.NewExtImageHash([]uint64{d}, goimagehash.DHash, 64),
		PHash: goimagehash.NewExtImageHash([]uint64{p}, goimagehash.PHash, 64),
	}
}

func testImage(path string, score float64) *models.ImageInfo {
	return &models.ImageInfo{
		Path:         path,
		Width:        800,
		Height:       600,
		Format:       "jpeg",
		FileSize:     250_000,
		ModTime:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		HasExif:      true,
		Fingerprints: testFingerprints(0xDEADBEEF, 0xCAFE, 0x1234),
		Quality:      &models.QualityScore{Overall: score},
	}
}

func openStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(t *testing.T) *models.RunResult {
	t.Helper()
	best := testImage("/photos/best.jpg", 85.5)
	worse := testImage("/photos/worse.jpg", 42.0)
	solo := testImage("/photos/solo.jpg", 0)

	return &models.RunResult{
		Groups: []*models.SimilarityGroup{
			{
				ID:             1,
				Images:         []*models.ImageInfo{best, worse},
				Representative: best,
				Rejected:       []*models.ImageInfo{worse},
			},
			{
				ID:             2,
				Images:         []*models.ImageInfo{solo},
				Representative: solo,
			},
		},
		Unprocessed: []*models.Unprocessed{
			{Path: "/photos/z_broken.jpg", Reason: "unreadable image"},
			{Path: "/photos/a_raw.cr2", Reason: "unreadable image"},
		},
	}
}

func TestSaveRun_Roundtrip(t *testing.T) {
	s := openStorage(t)
	run := sampleRun(t)

	if err := s.SaveRun("/photos", run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	groups, err := s.GetDuplicateGroups()
	if err != nil {
		t.Fatalf("GetDuplicateGroups failed: %v", err)
	}

	// singletons are stored but not returned as duplicates
	if len(groups) != 1 {
		t.Fatalf("got %d duplicate groups, want 1", len(groups))
	}

	group := groups[0]
	if group.ID != 1 {
		t.Errorf("group ID = %d, want 1", group.ID)
	}
	if len(group.Images) != 2 {
		t.Fatalf("group has %d images, want 2", len(group.Images))
	}

	// ordered by score descending
	if group.Images[0].Path != "/photos/best.jpg" {
		t.Errorf("first image = %q, want the higher-scored one", group.Images[0].Path)
	}
	if group.Representative == nil || group.Representative.Path != "/photos/best.jpg" {
		t.Error("representative flag not preserved")
	}
	if len(group.Rejected) != 1 || group.Rejected[0].Path != "/photos/worse.jpg" {
		t.Errorf("rejected bucket not rebuilt: %+v", group.Rejected)
	}

	loaded := group.Images[0]
	if loaded.Width != 800 || loaded.Height != 600 || loaded.Format != "jpeg" {
		t.Errorf("metadata mismatch: %+v", loaded)
	}
	if !loaded.HasExif {
		t.Error("exif flag lost")
	}
	if loaded.Quality == nil || loaded.Quality.Overall != 85.5 {
		t.Errorf("score lost: %+v", loaded.Quality)
	}
}

func TestSaveRun_FingerprintsRoundtrip(t *testing.T) {
	s := openStorage(t)
	run := sampleRun(t)
	original := run.Groups[0].Images[0].Fingerprints

	if err := s.SaveRun("/photos", run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	groups, err := s.GetDuplicateGroups()
	if err != nil {
		t.Fatalf("GetDuplicateGroups failed: %v", err)
	}

	loaded := groups[0].Images[0].Fingerprints
	if loaded.Bits() != 64 {
		t.Errorf("fingerprint width = %d, want 64", loaded.Bits())
	}

	pairs := [][2]*goimagehash.ExtImageHash{
		{original.AHash, loaded.AHash},
		{original.DHash, loaded.DHash},
		{original.PHash, loaded.PHash},
	}
	for i, pair := range pairs {
		dist, err := pair[0].Distance(pair[1])
		if err != nil {
			t.Fatalf("distance on pair %d failed: %v", i, err)
		}
		if dist != 0 {
			t.Errorf("fingerprint %d changed across storage, distance %d", i, dist)
		}
	}
}

func TestGetUnprocessed(t *testing.T) {
	s := openStorage(t)
	if err := s.SaveRun("/photos", sampleRun(t)); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	unprocessed, err := s.GetUnprocessed()
	if err != nil {
		t.Fatalf("GetUnprocessed failed: %v", err)
	}

	if len(unprocessed) != 2 {
		t.Fatalf("got %d unprocessed, want 2", len(unprocessed))
	}
	// sorted by path
	if unprocessed[0].Path != "/photos/a_raw.cr2" || unprocessed[1].Path != "/photos/z_broken.jpg" {
		t.Errorf("unprocessed not sorted: %v, %v", unprocessed[0].Path, unprocessed[1].Path)
	}
	if unprocessed[0].Reason != "unreadable image" {
		t.Errorf("reason = %q", unprocessed[0].Reason)
	}
}

func TestSaveRun_ReplacesPreviousRun(t *testing.T) {
	s := openStorage(t)
	if err := s.SaveRun("/photos", sampleRun(t)); err != nil {
		t.Fatalf("first SaveRun failed: %v", err)
	}

	// a second run with only a singleton clears the previous groups
	solo := testImage("/other/only.jpg", 0)
	second := &models.RunResult{
		Groups: []*models.SimilarityGroup{
			{ID: 1, Images: []*models.ImageInfo{solo}, Representative: solo},
		},
	}
	if err := s.SaveRun("/other", second); err != nil {
		t.Fatalf("second SaveRun failed: %v", err)
	}

	groups, err := s.GetDuplicateGroups()
	if err != nil {
		t.Fatalf("GetDuplicateGroups failed: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("previous run's groups survived: %d", len(groups))
	}

	unprocessed, err := s.GetUnprocessed()
	if err != nil {
		t.Fatalf("GetUnprocessed failed: %v", err)
	}
	if len(unprocessed) != 0 {
		t.Errorf("previous run's unprocessed survived: %d", len(unprocessed))
	}
}

func TestNewStorage_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "dedup.db")
	s, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	defer s.Close()

	if err := s.SaveRun("/photos", &models.RunResult{}); err != nil {
		t.Errorf("SaveRun on fresh db failed: %v", err)
	}
}
