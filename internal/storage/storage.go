package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/corona10/goimagehash"
	_ "modernc.org/sqlite"

	"imagededup/internal/models"
)

// Storage persists the results of a detection run so groups can be
// reviewed later without rescanning. The detection core itself keeps
// no state across runs; this layer sits beside the organizer.
type Storage struct {
	db     *sql.DB
	dbPath string
}

// NewStorage opens (and if necessary creates) the database at dbPath
func NewStorage(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT UNIQUE NOT NULL,
		ahash TEXT NOT NULL,
		dhash TEXT NOT NULL,
		phash TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		format TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		mod_time DATETIME NOT NULL,
		has_exif INTEGER DEFAULT 0,
		score REAL DEFAULT 0,
		group_id INTEGER DEFAULT 0,
		is_representative INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_images_group_id ON images(group_id);
	CREATE INDEX IF NOT EXISTS idx_images_path ON images(path);

	CREATE TABLE IF NOT EXISTS unprocessed (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS scan_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		folder TEXT NOT NULL,
		scanned_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		total_images INTEGER NOT NULL,
		total_groups INTEGER NOT NULL,
		total_duplicates INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveRun replaces the stored results with those of a fresh run
func (s *Storage) SaveRun(folder string, result *models.RunResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM images"); err != nil {
		return fmt.Errorf("failed to clear images: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM unprocessed"); err != nil {
		return fmt.Errorf("failed to clear unprocessed: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO images (path, ahash, dhash, phash, width, height, format, file_size, mod_time, has_exif, score, group_id, is_representative)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	totalImages := 0
	for _, group := range result.Groups {
		for _, img := range group.Images {
			totalImages++
			isRep := 0
			if img == group.Representative {
				isRep = 1
			}
			hasExif := 0
			if img.HasExif {
				hasExif = 1
			}
			var score float64
			if img.Quality != nil {
				score = img.Quality.Overall
			}
			_, err := stmt.Exec(
				img.Path,
				img.Fingerprints.AHash.ToString(),
				img.Fingerprints.DHash.ToString(),
				img.Fingerprints.PHash.ToString(),
				img.Width,
				img.Height,
				img.Format,
				img.FileSize,
				img.ModTime,
				hasExif,
				score,
				group.ID,
				isRep,
			)
			if err != nil {
				return fmt.Errorf("failed to insert image %s: %w", img.Path, err)
			}
		}
	}

	for _, u := range result.Unprocessed {
		if _, err := tx.Exec("INSERT INTO unprocessed (path, reason) VALUES (?, ?)", u.Path, u.Reason); err != nil {
			return fmt.Errorf("failed to insert unprocessed %s: %w", u.Path, err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO scan_history (folder, total_images, total_groups, total_duplicates)
		VALUES (?, ?, ?, ?)
	`, folder, totalImages, len(result.DuplicateGroups()), result.TotalDuplicates())
	if err != nil {
		return fmt.Errorf("failed to record scan: %w", err)
	}

	return tx.Commit()
}

// GetDuplicateGroups returns the stored groups of size two or more,
// images ordered by score within each group
func (s *Storage) GetDuplicateGroups() ([]*models.SimilarityGroup, error) {
	rows, err := s.db.Query(`
		SELECT group_id FROM images GROUP BY group_id HAVING COUNT(*) > 1 ORDER BY group_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groupIDs []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}
		groupIDs = append(groupIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var groups []*models.SimilarityGroup
	for _, id := range groupIDs {
		group, err := s.getGroup(id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func (s *Storage) getGroup(groupID int) (*models.SimilarityGroup, error) {
	rows, err := s.db.Query(`
		SELECT id, path, ahash, dhash, phash, width, height, format, file_size, mod_time, has_exif, score, group_id, is_representative
		FROM images
		WHERE group_id = ?
		ORDER BY score DESC, path ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group %d: %w", groupID, err)
	}
	defer rows.Close()

	group := &models.SimilarityGroup{ID: groupID}
	for rows.Next() {
		img, isRep, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		group.Images = append(group.Images, img)
		if isRep {
			group.Representative = img
		} else {
			group.Rejected = append(group.Rejected, img)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return group, nil
}

// GetUnprocessed returns the unprocessed records of the stored run
func (s *Storage) GetUnprocessed() ([]*models.Unprocessed, error) {
	rows, err := s.db.Query("SELECT path, reason FROM unprocessed ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed: %w", err)
	}
	defer rows.Close()

	var result []*models.Unprocessed
	for rows.Next() {
		u := &models.Unprocessed{}
		if err := rows.Scan(&u.Path, &u.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan unprocessed row: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func scanImage(rows *sql.Rows) (*models.ImageInfo, bool, error) {
	img := &models.ImageInfo{}
	var (
		ahash, dhash, phash string
		modTime             string
		hasExif, isRep      int
		score               float64
	)
	err := rows.Scan(
		&img.ID,
		&img.Path,
		&ahash,
		&dhash,
		&phash,
		&img.Width,
		&img.Height,
		&img.Format,
		&img.FileSize,
		&modTime,
		&hasExif,
		&score,
		&img.GroupID,
		&isRep,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to scan row: %w", err)
	}
	img.HasExif = hasExif == 1
	img.ModTime = parseStoredTime(modTime)
	if score > 0 {
		img.Quality = &models.QualityScore{Overall: score}
	}

	fp, err := parseFingerprints(ahash, dhash, phash)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt fingerprint for %s: %w", img.Path, err)
	}
	img.Fingerprints = fp

	return img, isRep == 1, nil
}

func parseFingerprints(ahash, dhash, phash string) (*models.FingerprintSet, error) {
	a, err := goimagehash.ExtImageHashFromString(ahash)
	if err != nil {
		return nil, err
	}
	d, err := goimagehash.ExtImageHashFromString(dhash)
	if err != nil {
		return nil, err
	}
	p, err := goimagehash.ExtImageHashFromString(phash)
	if err != nil {
		return nil, err
	}
	return &models.FingerprintSet{AHash: a, DHash: d, PHash: p}, nil
}

func parseStoredTime(value string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
