package handler

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"

	"armory/internal/config"
	"armory/internal/dto"
	"armory/internal/logger"
	"armory/internal/repository"
)

const bytesPerGB = 1 << 30

// GetCapturesHandler returns a page of stored captures, newest first, with their predictions.
func GetCapturesHandler(cfg *config.Config, logger *logger.Logger,
	captureRepo repository.CaptureRepository, predictionRepo repository.PredictionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 24)

		captures, err := captureRepo.ListActive(limit, (page-1)*limit)
		if err != nil {
			logger.Error("Error querying captures from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalSize, err := captureRepo.TotalActiveSize()
		if err != nil {
			logger.Error("Error getting capture directory size: %v", err)
			totalSize = 0
		}

		totalCount, err := captureRepo.CountActive()
		if err != nil {
			logger.Error("Error counting captures: %v", err)
			totalCount = len(captures)
		}

		infos := make([]dto.CaptureInfo, 0, len(captures))
		for _, capture := range captures {
			prediction, err := predictionRepo.GetByCaptureID(capture.ID)
			if err != nil {
				logger.Error("Error getting prediction for capture %d: %v", capture.ID, err)
			}
			infos = append(infos, dto.NewCaptureInfo(capture, prediction))
		}

		data := dto.CapturePage{
			Captures:    infos,
			CaptureDir:  cfg.CaptureDirectory,
			Size:        totalSize,
			MaxSize:     cfg.MaxCaptureDirectorySize * bytesPerGB,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}

		writeJSON(w, logger, data)
	}
}

// GetCaptureHandler returns a single capture and its prediction, selected by the "id" query parameter.
func GetCaptureHandler(logger *logger.Logger,
	captureRepo repository.CaptureRepository, predictionRepo repository.PredictionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "Valid id parameter is required", http.StatusBadRequest)
			return
		}

		capture, err := captureRepo.GetByID(id)
		if err != nil {
			logger.Error("Error querying capture %d: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if capture == nil {
			http.NotFound(w, r)
			return
		}

		prediction, err := predictionRepo.GetByCaptureID(id)
		if err != nil {
			logger.Error("Error getting prediction for capture %d: %v", id, err)
		}

		writeJSON(w, logger, dto.NewCaptureInfo(*capture, prediction))
	}
}

// ViewCaptureHandler serves a single capture file specified via the "name" query parameter.
func ViewCaptureHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "Name parameter is required", http.StatusBadRequest)
			return
		}
		filePath := filepath.Join(cfg.CaptureDirectory, filepath.Base(name))
		http.ServeFile(w, r, filePath)
	}
}

func writeJSON(w http.ResponseWriter, logger *logger.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}
