package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"armory/internal/model"
	"armory/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCaptureRepository_InsertAndGetByName(t *testing.T) {
	repo := NewCaptureRepository(newTestDB(t))
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.InsertCapture("image_1.jpg", "data/temp/image_1.jpg", 6, now, false))

	capture, err := repo.GetCaptureByName("image_1.jpg")
	require.NoError(t, err)
	require.NotNil(t, capture)
	assert.Equal(t, "image_1.jpg", capture.Filename)
	assert.Equal(t, "data/temp/image_1.jpg", capture.FilePath)
	assert.Equal(t, int64(6), capture.FileSize)
	assert.True(t, capture.CapturedAt.Equal(now))
	assert.False(t, capture.Deleted)

	missing, err := repo.GetCaptureByName("nope.jpg")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCaptureRepository_SequenceIDsIncrease(t *testing.T) {
	repo := NewCaptureRepository(newTestDB(t))

	require.NoError(t, repo.InsertCapture("a.jpg", "a.jpg", 1, time.Now(), false))
	require.NoError(t, repo.InsertCapture("b.jpg", "b.jpg", 1, time.Now(), false))

	a, err := repo.GetCaptureByName("a.jpg")
	require.NoError(t, err)
	b, err := repo.GetCaptureByName("b.jpg")
	require.NoError(t, err)

	assert.Greater(t, b.ID, a.ID)
}

func TestCaptureRepository_DuplicateNameRejected(t *testing.T) {
	repo := NewCaptureRepository(newTestDB(t))

	require.NoError(t, repo.InsertCapture("a.jpg", "a.jpg", 1, time.Now(), false))
	assert.Error(t, repo.InsertCapture("a.jpg", "a.jpg", 1, time.Now(), false))
}

func TestCaptureRepository_SoftDeleteAndRetentionQueries(t *testing.T) {
	repo := NewCaptureRepository(newTestDB(t))

	require.NoError(t, repo.InsertCapture("a.jpg", "a.jpg", 100, time.Now(), false))
	require.NoError(t, repo.InsertCapture("b.jpg", "b.jpg", 50, time.Now(), false))

	total, err := repo.TotalActiveSize()
	require.NoError(t, err)
	assert.Equal(t, int64(150), total)

	oldest, err := repo.OldestActive(1)
	require.NoError(t, err)
	require.Len(t, oldest, 1)
	assert.Equal(t, "a.jpg", oldest[0].Filename)

	require.NoError(t, repo.SoftDelete(oldest[0].ID))

	total, err = repo.TotalActiveSize()
	require.NoError(t, err)
	assert.Equal(t, int64(50), total)

	deleted, err := repo.GetByID(oldest[0].ID)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
}

func TestCaptureRepository_ListActivePages(t *testing.T) {
	repo := NewCaptureRepository(newTestDB(t))

	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		require.NoError(t, repo.InsertCapture(name, name, 10, time.Now(), false))
	}
	first, err := repo.GetCaptureByName("a.jpg")
	require.NoError(t, err)
	require.NoError(t, repo.SoftDelete(first.ID))

	count, err := repo.CountActive()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	page, err := repo.ListActive(1, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "c.jpg", page[0].Filename)

	page, err = repo.ListActive(10, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b.jpg", page[0].Filename)
}

func TestPredictionRepository_WriteOnce(t *testing.T) {
	db := newTestDB(t)
	captures := NewCaptureRepository(db)
	predictions := NewPredictionRepository(db)

	require.NoError(t, captures.InsertCapture("a.jpg", "a.jpg", 1, time.Now(), false))
	capture, err := captures.GetCaptureByName("a.jpg")
	require.NoError(t, err)

	prediction := &model.Prediction{
		CaptureID: capture.ID,
		Detections: []model.Detection{{
			ClassID:     2,
			ClassName:   "bottle",
			Confidence:  0.9,
			BoundingBox: model.BoundingBox{1, 2, 3, 4},
			Attributes:  map[string]any{"section": "Z2"},
		}},
		AnnotatedImage: "aGVsbG8=",
	}

	id, err := predictions.SavePrediction(prediction)
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = predictions.SavePrediction(prediction)
	assert.True(t, errors.Is(err, repository.ErrPredictionExists))

	stored, err := predictions.GetByCaptureID(capture.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Len(t, stored.Detections, 1)
	assert.Equal(t, "bottle", stored.Detections[0].ClassName)
	assert.Equal(t, model.BoundingBox{1, 2, 3, 4}, stored.Detections[0].BoundingBox)
	assert.Equal(t, "Z2", stored.Detections[0].Attributes["section"])
	assert.Equal(t, "aGVsbG8=", stored.AnnotatedImage)
}

func TestCategoryRepository_AttributesByName(t *testing.T) {
	repo := NewCategoryRepository(newTestDB(t))

	id, err := repo.InsertCategory(&model.Category{Name: "car", Description: "Four wheeler", AddedDate: time.Now(), IsActive: true})
	require.NoError(t, err)
	require.NoError(t, repo.InsertAttributes(id, map[string]any{"material_code": "M001"}))

	attributes, err := repo.AttributesByName("car")
	require.NoError(t, err)
	assert.Equal(t, "M001", attributes["material_code"])

	none, err := repo.AttributesByName("phone")
	require.NoError(t, err)
	assert.Nil(t, none)

	all, err := repo.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "car", all[0].Name)
	assert.True(t, all[0].IsActive)
}

func TestSeedCategories(t *testing.T) {
	repo := NewCategoryRepository(newTestDB(t))

	_, err := repo.InsertCategory(&model.Category{Name: "phone", AddedDate: time.Now(), IsActive: true})
	require.NoError(t, err)

	added, err := repository.SeedCategories(repo, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 4, added)

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 5)

	attributes, err := repo.AttributesByName("phone")
	require.NoError(t, err)
	assert.Equal(t, "M001", attributes["material_code"])
	assert.Equal(t, "Z1", attributes["section"])

	added, err = repository.SeedCategories(repo, time.Now())
	require.NoError(t, err)
	assert.Zero(t, added)
}
