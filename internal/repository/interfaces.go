package repository

import (
	"context"
	"errors"
	"io"
	"time"

	"armory/internal/model"
)

// ErrPredictionExists is returned when a capture already has a stored prediction.
var ErrPredictionExists = errors.New("prediction already stored for capture")

// CaptureRepository defines the interface for capture metadata operations.
type CaptureRepository interface {
	// Create operations
	InsertCapture(name, path string, size int64, capturedAt time.Time, deleted bool) error

	// Read operations
	GetCaptureByName(name string) (*model.Capture, error)
	GetByID(id int64) (*model.Capture, error)
	TotalActiveSize() (int64, error)
	OldestActive(limit int) ([]model.Capture, error)
	ListActive(limit, offset int) ([]model.Capture, error)
	CountActive() (int, error)

	// Update operations
	SoftDelete(id int64) error
}

// PredictionRepository defines the interface for prediction result operations.
type PredictionRepository interface {
	SavePrediction(p *model.Prediction) (int64, error)
	GetByCaptureID(captureID int64) (*model.Prediction, error)
}

// CategoryRepository defines the interface for categories and their attributes.
type CategoryRepository interface {
	InsertCategory(c *model.Category) (int64, error)
	GetAll() ([]model.Category, error)
	InsertAttributes(categoryID int64, data map[string]any) error
	AttributesByName(name string) (map[string]any, error)
}

// BlobStore mirrors frame bytes to object storage.
type BlobStore interface {
	UploadFile(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}
