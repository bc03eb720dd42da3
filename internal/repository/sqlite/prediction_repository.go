package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"armory/internal/model"
	"armory/internal/repository"

	"github.com/mattn/go-sqlite3"
)

// PredictionRepository implements repository.PredictionRepository for SQLite.
type PredictionRepository struct {
	db *DB
}

// NewPredictionRepository creates a new SQLite prediction repository.
func NewPredictionRepository(db *DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// SavePrediction stores the reduced detections of a capture. A capture can only
// have one prediction; a second call returns repository.ErrPredictionExists.
func (r *PredictionRepository) SavePrediction(p *model.Prediction) (int64, error) {
	detections := p.Detections
	if detections == nil {
		detections = []model.Detection{}
	}
	data, err := json.Marshal(detections)
	if err != nil {
		return 0, fmt.Errorf("failed to encode detections: %w", err)
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO predictions (capture_id, detections, annotated_image, created_at)
		VALUES (?, ?, ?, ?)
	`, p.CaptureID, string(data), p.AnnotatedImage, createdAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, fmt.Errorf("capture %d: %w", p.CaptureID, repository.ErrPredictionExists)
		}
		return 0, fmt.Errorf("failed to insert prediction: %w", err)
	}

	return result.LastInsertId()
}

// GetByCaptureID retrieves the prediction of a capture. It returns nil, nil when absent.
func (r *PredictionRepository) GetByCaptureID(captureID int64) (*model.Prediction, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var (
		p          model.Prediction
		detections string
		annotated  sql.NullString
	)
	err := r.db.Conn().QueryRow(`
		SELECT id, capture_id, detections, annotated_image, created_at
		FROM predictions WHERE capture_id = ?
	`, captureID).Scan(&p.ID, &p.CaptureID, &detections, &annotated, &p.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}

	if err := json.Unmarshal([]byte(detections), &p.Detections); err != nil {
		return nil, fmt.Errorf("failed to decode detections: %w", err)
	}
	p.AnnotatedImage = annotated.String

	return &p, nil
}
