package model

import "time"

// Prediction is the reduced, write-once result stored for a capture.
type Prediction struct {
	ID             int64       `json:"id"`
	CaptureID      int64       `json:"capture_id"`
	Detections     []Detection `json:"predictions"`
	AnnotatedImage string      `json:"annotated_image_base64,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}
