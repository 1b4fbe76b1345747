package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"imagededup/internal/hash"
	"imagededup/internal/models"
)

// defaultExtensions are the file types picked up by a scan. Formats
// the decoders cannot handle (psd, camera raw) are still collected so
// the run can report them as unprocessed instead of silently skipping.
var defaultExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".tif",
	".webp", ".psd", ".raw", ".cr2", ".nef", ".arw", ".dng",
}

// Scanner discovers image files under a directory and fingerprints
// them on a worker pool
type Scanner struct {
	generator  *hash.Generator
	extensions map[string]bool
	workers    int
	sample     int
	progressFn func(scanned, total int, current string)
}

// Option configures a Scanner
type Option func(*Scanner)

// WithWorkers sets the number of parallel hashing workers
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithExtensions adds file extensions to the scanned set
func WithExtensions(exts []string) Option {
	return func(s *Scanner) {
		for _, ext := range exts {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			s.extensions[strings.ToLower(ext)] = true
		}
	}
}

// WithSample limits the scan to the first n discovered images
func WithSample(n int) Option {
	return func(s *Scanner) {
		s.sample = n
	}
}

// WithProgress sets a progress callback invoked after each image
func WithProgress(fn func(scanned, total int, current string)) Option {
	return func(s *Scanner) {
		s.progressFn = fn
	}
}

// NewScanner creates a Scanner that fingerprints with the given
// generator
func NewScanner(generator *hash.Generator, opts ...Option) *Scanner {
	s := &Scanner{
		generator:  generator,
		extensions: make(map[string]bool),
		workers:    8,
	}
	for _, ext := range defaultExtensions {
		s.extensions[ext] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Discover walks the directory tree and returns the paths of candidate
// image files in sorted order
func (s *Scanner) Discover(folder string) ([]string, error) {
	info, err := os.Stat(folder)
	if err != nil {
		return nil, fmt.Errorf("folder not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", folder)
	}

	var paths []string
	err = filepath.Walk(folder, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable entries are the filesystem's problem, skip
		}
		if info.IsDir() {
			return nil
		}
		if s.extensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk folder: %w", err)
	}

	sort.Strings(paths)

	if s.sample > 0 && s.sample < len(paths) {
		paths = paths[:s.sample]
	}
	return paths, nil
}

// ScanFolder discovers and fingerprints every image under folder.
// Images that cannot be hashed are returned in the unprocessed bucket
// with their failure reason; they never abort the scan.
func (s *Scanner) ScanFolder(folder string) ([]*models.ImageInfo, []*models.Unprocessed, error) {
	paths, err := s.Discover(folder)
	if err != nil {
		return nil, nil, err
	}
	if len(paths) == 0 {
		return nil, nil, nil
	}

	processed, unprocessed := s.hashAll(paths)
	return processed, unprocessed, nil
}

// hashAll fingerprints paths on the worker pool. Each image is an
// isolated unit of work; results are appended under a mutex and the
// pixel buffers are released as soon as each hash is done.
func (s *Scanner) hashAll(paths []string) ([]*models.ImageInfo, []*models.Unprocessed) {
	var (
		mu          sync.Mutex
		processed   []*models.ImageInfo
		unprocessed []*models.Unprocessed
		wg          sync.WaitGroup
		scanned     int64
		total       = len(paths)
	)

	work := make(chan string, len(paths))
	for _, p := range paths {
		work <- p
	}
	close(work)

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range work {
				info, err := s.generator.Generate(path)

				mu.Lock()
				if err != nil {
					unprocessed = append(unprocessed, &models.Unprocessed{
						Path:   path,
						Reason: err.Error(),
					})
				} else {
					processed = append(processed, info)
				}
				mu.Unlock()

				n := atomic.AddInt64(&scanned, 1)
				if s.progressFn != nil {
					s.progressFn(int(n), total, path)
				}
			}
		}()
	}

	wg.Wait()

	// Workers finish in arbitrary order; restore deterministic ordering
	sort.Slice(processed, func(i, j int) bool { return processed[i].Path < processed[j].Path })
	sort.Slice(unprocessed, func(i, j int) bool { return unprocessed[i].Path < unprocessed[j].Path })

	return processed, unprocessed
}
