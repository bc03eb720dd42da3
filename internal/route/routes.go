package route

import (
	"context"
	"net/http"

	"armory/internal/config"
	"armory/internal/handler"
	"armory/internal/logger"
	"armory/internal/middleware"
	"armory/internal/repository"
	hub "armory/internal/service/websocket"
)

// Dependencies groups what the HTTP surface needs.
type Dependencies struct {
	Config         *config.Config
	Logger         *logger.Logger
	Hub            *hub.HubService
	Serial         handler.SerialController
	CaptureRepo    repository.CaptureRepository
	PredictionRepo repository.PredictionRepository
}

// SetupRoutes registers the subscriber WebSocket, the API endpoints and the
// log viewers, and wraps the mux with the authentication middleware. ctx is
// the lifetime of the serial loop started from the API.
func SetupRoutes(ctx context.Context, deps Dependencies) http.Handler {
	mux := http.NewServeMux()
	cfg, logger := deps.Config, deps.Logger

	// Subscribers
	mux.HandleFunc("/ws", handler.ViewWebsocketHandler(deps.Hub, logger))

	// Serial link control
	mux.HandleFunc("/api/serial/connect", handler.SerialConnectHandler(ctx, deps.Serial, logger))
	mux.HandleFunc("/api/serial/disconnect", handler.SerialDisconnectHandler(deps.Serial, logger))
	mux.HandleFunc("/api/serial/status", handler.SerialStatusHandler(deps.Serial, logger))

	// Capture history
	mux.HandleFunc("/api/captures", handler.GetCapturesHandler(cfg, logger, deps.CaptureRepo, deps.PredictionRepo))
	mux.HandleFunc("/api/captures/get", handler.GetCaptureHandler(logger, deps.CaptureRepo, deps.PredictionRepo))
	mux.HandleFunc("/api/captures/view", handler.ViewCaptureHandler(cfg))

	// Log endpoints
	for _, level := range handler.LogLevels {
		mux.HandleFunc("/logs/"+level, handler.ShowLogsHandler(cfg, level))
		mux.HandleFunc("/logs/"+level+"/clear", handler.ClearLogsHandler(logger, level))
	}

	// Auth endpoints
	mux.HandleFunc(handler.LoginPage, handler.LoginPageHandler)
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, logger))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	return middleware.AuthMiddleware(mux)
}
