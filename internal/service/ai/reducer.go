package ai

import "armory/internal/model"

// Reduce keeps every detection whose confidence equals the highest confidence in the list.
// Ties are all kept, in input order.
func Reduce(detections []model.Detection) []model.Detection {
	if len(detections) == 0 {
		return []model.Detection{}
	}

	best := detections[0].Confidence
	for _, d := range detections[1:] {
		if d.Confidence > best {
			best = d.Confidence
		}
	}

	reduced := make([]model.Detection, 0, 1)
	for _, d := range detections {
		if d.Confidence == best {
			reduced = append(reduced, d)
		}
	}
	return reduced
}
