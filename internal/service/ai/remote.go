package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"armory/internal/logger"
	"armory/internal/model"
)

// RemoteClient delegates inference to an HTTP service.
type RemoteClient struct {
	url    string
	client *http.Client
	logger *logger.Logger
}

// NewRemoteClient creates a client posting captures to url.
func NewRemoteClient(url string, timeout time.Duration, logger *logger.Logger) *RemoteClient {
	return &RemoteClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type remoteRequest struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	UploadDate time.Time `json:"upload_date"`
	IsDeleted  bool      `json:"is_deleted"`
}

type remoteResponse struct {
	Predictions    json.RawMessage `json:"predictions"`
	AnnotatedImage *string         `json:"annotated_image_base64"`
	Error          string          `json:"error"`
}

type remoteDetection struct {
	ClassID    int             `json:"class_id"`
	ClassName  string          `json:"class_name"`
	Confidence float64         `json:"confidence"`
	BBox       json.RawMessage `json:"bbox"`
	Attributes json.RawMessage `json:"attributes"`
}

// Predict posts the capture metadata and decodes the detections.
func (c *RemoteClient) Predict(ctx context.Context, capture *model.Capture) (*model.InferenceResult, error) {
	body, err := json.Marshal(remoteRequest{
		Name:       capture.Filename,
		Path:       capture.FilePath,
		UploadDate: capture.CapturedAt,
		IsDeleted:  capture.Deleted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read inference response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference service returned %s", resp.Status)
	}

	return decodeRemoteResponse(raw)
}

// decodeRemoteResponse accepts both {"error": ...} bodies and an error object in
// place of the prediction list.
func decodeRemoteResponse(raw []byte) (*model.InferenceResult, error) {
	var resp remoteResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("inference failed: %s", resp.Error)
	}

	predictions := bytes.TrimSpace(resp.Predictions)
	if len(predictions) > 0 && predictions[0] == '{' {
		var failure struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(predictions, &failure); err == nil && failure.Error != "" {
			return nil, fmt.Errorf("inference failed: %s", failure.Error)
		}
		return nil, fmt.Errorf("%w: predictions is not a list", ErrInvalidResult)
	}

	var items []remoteDetection
	if len(predictions) > 0 && string(predictions) != "null" {
		if err := json.Unmarshal(predictions, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
		}
	}

	result := &model.InferenceResult{Detections: make([]model.Detection, 0, len(items))}
	if resp.AnnotatedImage != nil {
		result.AnnotatedImage = *resp.AnnotatedImage
	}

	for i, item := range items {
		box, err := decodeBoundingBox(item.BBox)
		if err != nil {
			return nil, fmt.Errorf("%w: detection %d: %v", ErrInvalidResult, i, err)
		}
		attributes, err := decodeAttributes(item.Attributes)
		if err != nil {
			return nil, fmt.Errorf("%w: detection %d: %v", ErrInvalidResult, i, err)
		}
		result.Detections = append(result.Detections, model.Detection{
			ClassID:     item.ClassID,
			ClassName:   item.ClassName,
			Confidence:  item.Confidence,
			BoundingBox: box,
			Attributes:  attributes,
		})
	}

	return result, nil
}

// decodeBoundingBox accepts [x1,y1,x2,y2] or [[x1,y1,x2,y2]].
func decodeBoundingBox(raw json.RawMessage) (model.BoundingBox, error) {
	var box model.BoundingBox

	var flat []float64
	if err := json.Unmarshal(raw, &flat); err == nil {
		if len(flat) != 4 {
			return box, fmt.Errorf("bbox has %d values", len(flat))
		}
		copy(box[:], flat)
		return box, nil
	}

	var nested [][]float64
	if err := json.Unmarshal(raw, &nested); err != nil {
		return box, fmt.Errorf("bbox is not a list of numbers")
	}
	if len(nested) != 1 || len(nested[0]) != 4 {
		return box, fmt.Errorf("bbox has an unexpected shape")
	}
	copy(box[:], nested[0])
	return box, nil
}

// decodeAttributes accepts an object, a JSON-encoded object string, or null.
func decodeAttributes(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}

	if trimmed[0] == '"' {
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return nil, err
		}
		trimmed = []byte(encoded)
	}

	var attributes map[string]any
	if err := json.Unmarshal(trimmed, &attributes); err != nil {
		return nil, fmt.Errorf("attributes are not an object")
	}
	return attributes, nil
}
