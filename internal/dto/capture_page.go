// CapturePage is a paginated response payload for the capture history.
package dto

import (
	"encoding/json"
	"time"

	"armory/internal/model"
)

type CapturePage struct {
	Captures    []CaptureInfo `json:"captures"`
	CaptureDir  string        `json:"captureDir"`
	Size        int64         `json:"size"`
	MaxSize     int64         `json:"maxSize"`
	Length      int           `json:"length"`
	TotalPages  int           `json:"totalPages"`
	CurrentPage int           `json:"currentPage"`
	Limit       int           `json:"pageSize"`
}

// CaptureInfo is one capture together with its stored prediction, if any.
type CaptureInfo struct {
	SequenceID  int64             `json:"sequence_id"`
	Name        string            `json:"name"`
	Date        time.Time         `json:"date"`
	TimeOfDay   time.Time         `json:"timeOfDay"`
	Size        int64             `json:"size"`
	Objects     []string          `json:"objects"`
	Predictions []model.Detection `json:"predictions,omitempty"`
}

// NewCaptureInfo flattens a capture and its prediction. prediction may be nil.
func NewCaptureInfo(capture model.Capture, prediction *model.Prediction) CaptureInfo {
	info := CaptureInfo{
		SequenceID: capture.ID,
		Name:       capture.Filename,
		Date:       capture.CapturedAt,
		TimeOfDay:  capture.CapturedAt,
		Size:       capture.FileSize,
		Objects:    []string{},
	}
	if prediction != nil {
		info.Predictions = prediction.Detections
		for _, d := range prediction.Detections {
			info.Objects = append(info.Objects, d.ClassName)
		}
	}
	return info
}

// MarshalJSON formats date and time-of-day the way the gallery expects them.
func (c CaptureInfo) MarshalJSON() ([]byte, error) {
	type Alias CaptureInfo
	return json.Marshal(&struct {
		Date      string `json:"date"`
		TimeOfDay string `json:"timeOfDay"`
		Alias
	}{
		Date:      c.Date.Format("02-01-2006"),
		TimeOfDay: c.TimeOfDay.Format("15:04"),
		Alias:     (Alias)(c),
	})
}
