package dto

import (
	"encoding/json"
	"testing"
	"time"

	"armory/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPredictionMessage_EmptyDetectionsEncodeAsList(t *testing.T) {
	capture := &model.Capture{ID: 3, Filename: "image_3.jpg"}

	data, err := json.Marshal(NewPredictionMessage(capture, &model.Prediction{}))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "prediction", decoded["type"])
	assert.Equal(t, float64(3), decoded["sequence_id"])
	assert.Equal(t, []any{}, decoded["predictions"])
	assert.NotContains(t, decoded, "annotated_image_base64")
}

func TestCaptureInfo_MarshalJSON(t *testing.T) {
	capture := model.Capture{
		ID:         9,
		Filename:   "image_9.jpg",
		FileSize:   2048,
		CapturedAt: time.Date(2024, 3, 7, 14, 5, 0, 0, time.UTC),
	}
	prediction := &model.Prediction{Detections: []model.Detection{
		{ClassName: "pencil", Confidence: 0.6},
		{ClassName: "bottle", Confidence: 0.6},
	}}

	data, err := json.Marshal(NewCaptureInfo(capture, prediction))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "07-03-2024", decoded["date"])
	assert.Equal(t, "14:05", decoded["timeOfDay"])
	assert.Equal(t, []any{"pencil", "bottle"}, decoded["objects"])
}

func TestNewCaptureInfo_WithoutPrediction(t *testing.T) {
	info := NewCaptureInfo(model.Capture{ID: 1, Filename: "a.jpg"}, nil)

	assert.Equal(t, []string{}, info.Objects)
	assert.Nil(t, info.Predictions)
}
