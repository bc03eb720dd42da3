package opencv

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"

	"armory/internal/config"
	"armory/internal/logger"
	"armory/internal/model"
	"armory/internal/service/ai"

	"gocv.io/x/gocv"
)

// DetectionThreshold is used when the configuration does not set one.
const DetectionThreshold = 0.5

// DetectorService runs an SSD-style network through OpenCV's DNN module.
type DetectorService struct {
	net        gocv.Net
	netMutex   sync.Mutex
	ready      bool
	modelPath  string
	configPath string
	threshold  float64
	classes    ai.ClassNames
	attributes ai.AttributeSource
	logger     *logger.Logger
}

// NewDetectorService loads the network and class table. A missing model is logged,
// and every Predict call then fails until the service is recreated.
func NewDetectorService(config *config.Config, attributes ai.AttributeSource, logger *logger.Logger) *DetectorService {
	service := &DetectorService{
		modelPath:  config.ModelPath,
		configPath: config.ConfigPath,
		threshold:  config.DetectionThreshold,
		classes:    ai.DefaultClassNames(),
		attributes: attributes,
		logger:     logger,
	}
	if service.threshold <= 0 {
		service.threshold = DetectionThreshold
	}

	if names, err := ai.LoadClassNames(config.ClassNamesPath); err != nil {
		service.logger.Warning("Using built-in class names: %v", err)
	} else {
		service.classes = names
	}

	if err := service.initializeNet(); err != nil {
		service.logger.Warning("Could not initialize detection network: %v", err)
		return service
	}

	return service
}

// initializeNet loads the network from the model and config files.
func (s *DetectorService) initializeNet() error {
	if _, err := os.Stat(s.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.modelPath)
	}

	if _, err := os.Stat(s.configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", s.configPath)
	}

	net := gocv.ReadNet(s.modelPath, s.configPath)

	if net.Empty() {
		return fmt.Errorf("failed to load network")
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)

	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	s.net = net
	s.ready = true
	s.logger.Info("Detection network initialized successfully")
	return nil
}

// Predict reads the capture from disk, detects objects and returns them with an annotated image.
func (s *DetectorService) Predict(ctx context.Context, capture *model.Capture) (*model.InferenceResult, error) {
	if !s.ready {
		return nil, fmt.Errorf("detection network not initialized")
	}

	imageBytes, err := os.ReadFile(capture.FilePath)
	if err != nil {
		return nil, fmt.Errorf("image file not found at path %s: %w", capture.FilePath, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.IMDecode(imageBytes, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %v", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	detections := s.detectObjects(mat)

	for i := range detections {
		if s.attributes == nil {
			break
		}
		attributes, err := s.attributes.AttributesByName(detections[i].ClassName)
		if err != nil {
			s.logger.Warning("No attributes for %s: %v", detections[i].ClassName, err)
			continue
		}
		detections[i].Attributes = attributes
	}

	annotated, err := s.drawRectangles(mat, detections)
	if err != nil {
		s.logger.Error("Failed to draw rectangles: %v", err)
		annotated = imageBytes
	}

	return &model.InferenceResult{
		Detections:     detections,
		AnnotatedImage: base64.StdEncoding.EncodeToString(annotated),
	}, nil
}

// detectObjects runs the network and keeps detections above the threshold.
func (s *DetectorService) detectObjects(mat gocv.Mat) []model.Detection {
	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	s.netMutex.Lock()
	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	s.netMutex.Unlock()
	defer output.Close()

	cols := float64(mat.Cols())
	rows := float64(mat.Rows())

	detections := []model.Detection{}

	outputReshaped := output.Reshape(1, output.Total()/7)
	defer outputReshaped.Close()
	for i := 0; i < outputReshaped.Rows(); i++ {
		confidence := float64(outputReshaped.GetFloatAt(i, 2))
		if confidence <= s.threshold {
			continue
		}

		classID := int(outputReshaped.GetFloatAt(i, 1))
		detections = append(detections, model.Detection{
			ClassID:    classID,
			ClassName:  s.classes.Name(classID),
			Confidence: confidence,
			BoundingBox: model.BoundingBox{
				float64(outputReshaped.GetFloatAt(i, 3)) * cols,
				float64(outputReshaped.GetFloatAt(i, 4)) * rows,
				float64(outputReshaped.GetFloatAt(i, 5)) * cols,
				float64(outputReshaped.GetFloatAt(i, 6)) * rows,
			},
		})
		s.logger.Info("Detected %s (%.2f)", s.classes.Name(classID), confidence)
	}

	return detections
}

// drawRectangles draws every detection onto a copy of mat and encodes it as JPEG.
func (s *DetectorService) drawRectangles(mat gocv.Mat, detections []model.Detection) ([]byte, error) {
	red := color.RGBA{R: 255, G: 0, B: 0, A: 0}

	canvas := mat.Clone()
	defer canvas.Close()

	for _, detection := range detections {
		box := detection.BoundingBox
		rect := image.Rect(int(box[0]), int(box[1]), int(box[2]), int(box[3]))
		if err := gocv.Rectangle(&canvas, rect, red, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %v", err)
		}

		label := fmt.Sprintf("%s (%.2f)", detection.ClassName, detection.Confidence)
		pt := image.Pt(int(box[0]), int(box[1])-5)
		if err := gocv.PutText(&canvas, label, pt, gocv.FontHersheySimplex, 0.5, red, 1); err != nil {
			return nil, fmt.Errorf("failed to draw text: %v", err)
		}
	}

	buf, err := gocv.IMEncode(".jpg", canvas)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	finalImage := make([]byte, len(buf.GetBytes()))
	copy(finalImage, buf.GetBytes())
	return finalImage, nil
}

// Close releases the network.
func (s *DetectorService) Close() error {
	if !s.ready {
		return nil
	}
	s.ready = false
	return s.net.Close()
}
