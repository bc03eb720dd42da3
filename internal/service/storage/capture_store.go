package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"armory/internal/config"
	"armory/internal/logger"
	"armory/internal/model"
	"armory/internal/repository"

	"github.com/google/uuid"
)

// ErrCaptureNotRecorded is returned when the metadata row cannot be read back after insert.
var ErrCaptureNotRecorded = errors.New("capture record not found after insert")

const (
	bytesPerGB = 1 << 30
	// retentionBatch is how many captures are evicted per query during retention.
	retentionBatch = 50
)

// CaptureStore writes frames to disk and records their metadata.
type CaptureStore struct {
	captureDir string
	maxBytes   int64
	interval   time.Duration
	repo       repository.CaptureRepository
	blobs      repository.BlobStore
	logger     *logger.Logger
	now        func() time.Time
}

// NewCaptureStore creates a CaptureStore. blobs may be nil.
func NewCaptureStore(config *config.Config, logger *logger.Logger, repo repository.CaptureRepository, blobs repository.BlobStore) *CaptureStore {
	return &CaptureStore{
		captureDir: config.CaptureDirectory,
		maxBytes:   config.MaxCaptureDirectorySize * bytesPerGB,
		interval:   config.RetentionInterval,
		repo:       repo,
		blobs:      blobs,
		logger:     logger,
		now:        time.Now,
	}
}

// Save persists one frame and returns its capture record.
func (s *CaptureStore) Save(ctx context.Context, data []byte) (*model.Capture, error) {
	if err := os.MkdirAll(s.captureDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}

	capturedAt := s.now()
	filename := fmt.Sprintf("image_%s_%s.jpg", capturedAt.Format("20060102_150405.000"), uuid.NewString()[:8])
	fullpath := filepath.Join(s.captureDir, filename)

	if err := os.WriteFile(fullpath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write capture %s: %w", filename, err)
	}

	if err := s.repo.InsertCapture(filename, fullpath, int64(len(data)), capturedAt, false); err != nil {
		os.Remove(fullpath)
		return nil, err
	}

	capture, err := s.repo.GetCaptureByName(filename)
	if err != nil {
		return nil, err
	}
	if capture == nil {
		return nil, fmt.Errorf("%w: %s", ErrCaptureNotRecorded, filename)
	}

	s.logger.Info("Image saved to %s (%d bytes, sequence %d)", fullpath, len(data), capture.ID)

	if s.blobs != nil {
		if err := s.blobs.UploadFile(ctx, filename, bytes.NewReader(data), int64(len(data)), "image/jpeg"); err != nil {
			s.logger.Warning("Failed to mirror capture %s: %v", filename, err)
		}
	}

	return capture, nil
}

// Run periodically enforces the capture directory size limit until ctx is cancelled.
func (s *CaptureStore) Run(ctx context.Context) {
	if s.interval <= 0 || s.maxBytes <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.EnforceRetention(); err != nil {
				s.logger.Error("Retention pass failed: %v", err)
			}
		}
	}
}

// EnforceRetention soft-deletes the oldest captures and removes their files until
// the active captures fit within the size limit. It returns how many were evicted.
func (s *CaptureStore) EnforceRetention() (int, error) {
	if s.maxBytes <= 0 {
		return 0, nil
	}

	total, err := s.repo.TotalActiveSize()
	if err != nil {
		return 0, err
	}

	evicted := 0
	for total > s.maxBytes {
		oldest, err := s.repo.OldestActive(retentionBatch)
		if err != nil {
			return evicted, err
		}
		if len(oldest) == 0 {
			break
		}

		for _, capture := range oldest {
			if total <= s.maxBytes {
				break
			}
			if err := s.repo.SoftDelete(capture.ID); err != nil {
				return evicted, err
			}
			if err := os.Remove(capture.FilePath); err != nil && !os.IsNotExist(err) {
				s.logger.Warning("Failed to remove %s: %v", capture.FilePath, err)
			}
			total -= capture.FileSize
			evicted++
		}
	}

	if evicted > 0 {
		s.logger.Info("Retention removed %d captures", evicted)
	}
	return evicted, nil
}
