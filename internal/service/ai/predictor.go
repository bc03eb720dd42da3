package ai

import (
	"context"
	"errors"
	"fmt"
	"math"

	"armory/internal/model"
)

// ErrInvalidResult marks an inference result that failed boundary validation.
var ErrInvalidResult = errors.New("invalid inference result")

// Predictor runs inference for a stored capture.
type Predictor interface {
	Predict(ctx context.Context, capture *model.Capture) (*model.InferenceResult, error)
}

// Validate checks the shape of every detection before it travels further down the pipeline.
func Validate(result *model.InferenceResult) error {
	if result == nil {
		return fmt.Errorf("%w: empty result", ErrInvalidResult)
	}

	for i, d := range result.Detections {
		if d.ClassName == "" {
			return fmt.Errorf("%w: detection %d has no class name", ErrInvalidResult, i)
		}
		if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
			return fmt.Errorf("%w: detection %d confidence %v outside [0,1]", ErrInvalidResult, i, d.Confidence)
		}
		for _, v := range d.BoundingBox {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: detection %d has a non-finite bounding box", ErrInvalidResult, i)
			}
		}
	}

	return nil
}

// AttributeSource looks up the attribute document of a class name.
type AttributeSource interface {
	AttributesByName(name string) (map[string]any, error)
}
