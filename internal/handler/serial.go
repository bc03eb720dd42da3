package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"armory/internal/dto"
	"armory/internal/logger"
	"armory/internal/service"
)

// SerialController is the part of the Manager the serial endpoints drive.
type SerialController interface {
	Start(ctx context.Context) error
	Disconnect() error
	Status() dto.SerialStatus
}

// SerialConnectHandler handles POST /api/serial/connect. The loop runs on ctx,
// not on the request context, so it outlives the request.
func SerialConnectHandler(ctx context.Context, controller SerialController, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := controller.Start(ctx); err != nil {
			status := http.StatusServiceUnavailable
			if errors.Is(err, service.ErrAlreadyConnected) {
				status = http.StatusConflict
			}
			logger.Warning("Serial connect rejected: %v", err)
			writeStatus(w, logger, status, controller.Status(), err.Error())
			return
		}

		writeStatus(w, logger, http.StatusOK, controller.Status(), "connected")
	}
}

// SerialDisconnectHandler handles POST /api/serial/disconnect.
func SerialDisconnectHandler(controller SerialController, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		message := "disconnected"
		if err := controller.Disconnect(); err != nil {
			logger.Warning("Serial disconnect: %v", err)
			message = err.Error()
		}

		writeStatus(w, logger, http.StatusOK, controller.Status(), message)
	}
}

// SerialStatusHandler handles GET /api/serial/status.
func SerialStatusHandler(controller SerialController, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, logger, http.StatusOK, controller.Status(), "")
	}
}

func writeStatus(w http.ResponseWriter, logger *logger.Logger, code int, status dto.SerialStatus, message string) {
	status.Message = message
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}
