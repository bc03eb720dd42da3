package model

// BoundingBox holds corner coordinates as x1, y1, x2, y2.
type BoundingBox [4]float64

// Detection represents one object found by the inference engine.
type Detection struct {
	ClassID     int            `json:"class_id"`
	ClassName   string         `json:"class_name"`
	Confidence  float64        `json:"confidence"`
	BoundingBox BoundingBox    `json:"bbox"`
	Attributes  map[string]any `json:"attributes"`
}

// InferenceResult is what a predictor returns for one capture.
type InferenceResult struct {
	Detections     []Detection
	AnnotatedImage string // base64 JPEG, may be empty
}
