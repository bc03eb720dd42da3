package dto

import (
	"time"

	"armory/internal/model"
)

// PredictionMessage is the JSON document pushed to subscribers and the MQTT topic.
type PredictionMessage struct {
	Type           string            `json:"type"`
	SequenceID     int64             `json:"sequence_id"`
	Filename       string            `json:"filename"`
	CapturedAt     time.Time         `json:"captured_at"`
	Predictions    []model.Detection `json:"predictions"`
	AnnotatedImage string            `json:"annotated_image_base64,omitempty"`
}

// NewPredictionMessage builds the outbound message for a stored prediction.
func NewPredictionMessage(capture *model.Capture, prediction *model.Prediction) *PredictionMessage {
	predictions := prediction.Detections
	if predictions == nil {
		predictions = []model.Detection{}
	}
	return &PredictionMessage{
		Type:           "prediction",
		SequenceID:     capture.ID,
		Filename:       capture.Filename,
		CapturedAt:     capture.CapturedAt,
		Predictions:    predictions,
		AnnotatedImage: prediction.AnnotatedImage,
	}
}
