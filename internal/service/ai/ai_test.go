package ai

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"armory/internal/logger"
	"armory/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detection(name string, confidence float64) model.Detection {
	return model.Detection{ClassName: name, Confidence: confidence}
}

func TestReduce_Empty(t *testing.T) {
	assert.Equal(t, []model.Detection{}, Reduce(nil))
	assert.Equal(t, []model.Detection{}, Reduce([]model.Detection{}))
}

func TestReduce_UniqueMaximum(t *testing.T) {
	reduced := Reduce([]model.Detection{
		detection("car", 0.4),
		detection("bottle", 0.9),
		detection("phone", 0.7),
	})

	require.Len(t, reduced, 1)
	assert.Equal(t, "bottle", reduced[0].ClassName)
}

func TestReduce_AllTiedAreKept(t *testing.T) {
	input := []model.Detection{
		detection("car", 0.8),
		detection("bottle", 0.8),
		detection("phone", 0.8),
	}

	assert.Equal(t, input, Reduce(input))
}

func TestReduce_PartialTie(t *testing.T) {
	reduced := Reduce([]model.Detection{
		detection("car", 0.6),
		detection("bottle", 0.6),
		detection("phone", 0.3),
	})

	require.Len(t, reduced, 2)
	assert.Equal(t, "car", reduced[0].ClassName)
	assert.Equal(t, "bottle", reduced[1].ClassName)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		result  *model.InferenceResult
		wantErr bool
	}{
		{"nil result", nil, true},
		{"empty detections", &model.InferenceResult{}, false},
		{"valid", &model.InferenceResult{Detections: []model.Detection{detection("car", 1)}}, false},
		{"missing class", &model.InferenceResult{Detections: []model.Detection{detection("", 0.5)}}, true},
		{"confidence above one", &model.InferenceResult{Detections: []model.Detection{detection("car", 1.2)}}, true},
		{"negative confidence", &model.InferenceResult{Detections: []model.Detection{detection("car", -0.1)}}, true},
		{"nan confidence", &model.InferenceResult{Detections: []model.Detection{detection("car", math.NaN())}}, true},
		{"infinite bbox", &model.InferenceResult{Detections: []model.Detection{{
			ClassName:   "car",
			Confidence:  0.5,
			BoundingBox: model.BoundingBox{0, 0, math.Inf(1), 1},
		}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.result)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidResult)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseClassNames(t *testing.T) {
	list, err := parseClassNames([]byte("nc: 3\nnames: ['car', 'bicycle', 'bottle']\n"))
	require.NoError(t, err)
	assert.Equal(t, "bicycle", list.Name(1))
	assert.Equal(t, "unknown_9", list.Name(9))

	mapped, err := parseClassNames([]byte("names:\n  0: pencil\n  4: phone\n"))
	require.NoError(t, err)
	assert.Equal(t, "phone", mapped.Name(4))

	_, err = parseClassNames([]byte("nc: 1\n"))
	assert.Error(t, err)
}

func TestLoadClassNames_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.yaml")
	require.NoError(t, os.WriteFile(path, []byte("names:\n  - car\n  - phone\n"), 0644))

	names, err := LoadClassNames(path)
	require.NoError(t, err)
	assert.Equal(t, ClassNames{0: "car", 1: "phone"}, names)
}

func TestRemoteClient_Predict(t *testing.T) {
	var received remoteRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Write([]byte(`{
			"predictions": [
				{"class_id": 0, "class_name": "car", "confidence": 0.9,
				 "bbox": [[1, 2, 3, 4]], "attributes": "{\"section\": \"Z1\"}"},
				{"class_id": 2, "class_name": "bottle", "confidence": 0.4,
				 "bbox": [5, 6, 7, 8], "attributes": null}
			],
			"annotated_image_base64": "aW1n"
		}`))
	}))
	defer server.Close()

	client := NewRemoteClient(server.URL, time.Second, logger.Nop())
	result, err := client.Predict(context.Background(), &model.Capture{
		Filename: "image_2.jpg",
		FilePath: "data/temp/image_2.jpg",
	})
	require.NoError(t, err)

	assert.Equal(t, "image_2.jpg", received.Name)
	assert.Equal(t, "data/temp/image_2.jpg", received.Path)

	require.Len(t, result.Detections, 2)
	assert.Equal(t, model.BoundingBox{1, 2, 3, 4}, result.Detections[0].BoundingBox)
	assert.Equal(t, "Z1", result.Detections[0].Attributes["section"])
	assert.Equal(t, model.BoundingBox{5, 6, 7, 8}, result.Detections[1].BoundingBox)
	assert.Nil(t, result.Detections[1].Attributes)
	assert.Equal(t, "aW1n", result.AnnotatedImage)
}

func TestRemoteClient_ErrorShapes(t *testing.T) {
	bodies := map[string]string{
		"top-level error":    `{"error": "Image file not found"}`,
		"error in place":     `{"predictions": {"error": "boom"}, "annotated_image_base64": null}`,
		"malformed bbox":     `{"predictions": [{"class_name": "car", "confidence": 0.5, "bbox": [1, 2]}]}`,
		"not json":           `<html>`,
		"non-object attribs": `{"predictions": [{"class_name": "car", "confidence": 0.5, "bbox": [1,2,3,4], "attributes": 7}]}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := decodeRemoteResponse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestRemoteClient_HTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewRemoteClient(server.URL, time.Second, logger.Nop())
	_, err := client.Predict(context.Background(), &model.Capture{Filename: "a.jpg"})
	assert.Error(t, err)
}
