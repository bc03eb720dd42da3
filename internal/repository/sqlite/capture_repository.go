package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"armory/internal/model"
)

// CaptureRepository implements repository.CaptureRepository for SQLite.
type CaptureRepository struct {
	db *DB
}

// NewCaptureRepository creates a new SQLite capture repository.
func NewCaptureRepository(db *DB) *CaptureRepository {
	return &CaptureRepository{db: db}
}

const captureColumns = `id, name, path, filesize, upload_date, is_deleted`

// InsertCapture adds a new capture record to the database.
func (r *CaptureRepository) InsertCapture(name, path string, size int64, capturedAt time.Time, deleted bool) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(`
		INSERT INTO captures (name, path, filesize, upload_date, is_deleted)
		VALUES (?, ?, ?, ?, ?)
	`, name, path, size, capturedAt, deleted)
	if err != nil {
		return fmt.Errorf("failed to insert capture: %w", err)
	}
	return nil
}

// GetCaptureByName retrieves a capture by its filename. It returns nil, nil when absent.
func (r *CaptureRepository) GetCaptureByName(name string) (*model.Capture, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`SELECT `+captureColumns+` FROM captures WHERE name = ?`, name)
	return scanCapture(row)
}

// GetByID retrieves a capture by its sequence id. It returns nil, nil when absent.
func (r *CaptureRepository) GetByID(id int64) (*model.Capture, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`SELECT `+captureColumns+` FROM captures WHERE id = ?`, id)
	return scanCapture(row)
}

// TotalActiveSize sums the file sizes of captures that are not soft-deleted.
func (r *CaptureRepository) TotalActiveSize() (int64, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var total int64
	err := r.db.Conn().QueryRow(`SELECT COALESCE(SUM(filesize), 0) FROM captures WHERE is_deleted = 0`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum capture sizes: %w", err)
	}
	return total, nil
}

// OldestActive returns up to limit captures that are not soft-deleted, oldest first.
func (r *CaptureRepository) OldestActive(limit int) ([]model.Capture, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT `+captureColumns+` FROM captures
		WHERE is_deleted = 0
		ORDER BY id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query captures: %w", err)
	}
	return scanCaptures(rows)
}

// ListActive returns a page of captures that are not soft-deleted, newest first.
func (r *CaptureRepository) ListActive(limit, offset int) ([]model.Capture, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT `+captureColumns+` FROM captures
		WHERE is_deleted = 0
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query captures: %w", err)
	}
	return scanCaptures(rows)
}

// CountActive returns the number of captures that are not soft-deleted.
func (r *CaptureRepository) CountActive() (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM captures WHERE is_deleted = 0`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count captures: %w", err)
	}
	return count, nil
}

// SoftDelete flags a capture as deleted. The row itself is kept.
func (r *CaptureRepository) SoftDelete(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`UPDATE captures SET is_deleted = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete capture: %w", err)
	}
	return nil
}

func scanCapture(row *sql.Row) (*model.Capture, error) {
	var c model.Capture
	err := row.Scan(&c.ID, &c.Filename, &c.FilePath, &c.FileSize, &c.CapturedAt, &c.Deleted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get capture: %w", err)
	}
	return &c, nil
}

func scanCaptures(rows *sql.Rows) ([]model.Capture, error) {
	defer rows.Close()

	var captures []model.Capture
	for rows.Next() {
		var c model.Capture
		if err := rows.Scan(&c.ID, &c.Filename, &c.FilePath, &c.FileSize, &c.CapturedAt, &c.Deleted); err != nil {
			return nil, fmt.Errorf("failed to scan capture: %w", err)
		}
		captures = append(captures, c)
	}
	return captures, rows.Err()
}
