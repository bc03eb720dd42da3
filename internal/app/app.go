package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"armory/internal/config"
	"armory/internal/logger"
	"armory/internal/repository"
	"armory/internal/repository/s3"
	"armory/internal/repository/sqlite"
	"armory/internal/route"
	"armory/internal/service"
	"armory/internal/service/ai"
	"armory/internal/service/ai/opencv"
	"armory/internal/service/emitter"
	"armory/internal/service/serial"
	"armory/internal/service/storage"
	"armory/internal/service/websocket"
)

const (
	shutdownTimeout    = 10 * time.Second
	mqttConnectTimeout = 10 * time.Second
)

type App struct {
	config         *config.Config
	logger         *logger.Logger
	db             *sqlite.DB
	captureRepo    repository.CaptureRepository
	predictionRepo repository.PredictionRepository
	hubService     *websocket.HubService
	captureStore   *storage.CaptureStore
	detector       *opencv.DetectorService
	emitter        *emitter.MQTTEmitter
	manager        *service.Manager
}

// NewApp loads the configuration and wires every component. Optional
// integrations (S3 mirror, MQTT) that fail to start are logged and skipped.
func NewApp(ctx context.Context) (*App, error) {
	cfg := config.Load()
	log := logger.NewLogger(cfg)

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &App{
		config:         cfg,
		logger:         log,
		db:             db,
		captureRepo:    sqlite.NewCaptureRepository(db),
		predictionRepo: sqlite.NewPredictionRepository(db),
		hubService:     websocket.NewHubService(cfg.BroadcastWriteTimeout, log),
	}
	categoryRepo := sqlite.NewCategoryRepository(db)
	if added, err := repository.SeedCategories(categoryRepo, time.Now()); err != nil {
		log.Warning("Failed to seed categories: %v", err)
	} else if added > 0 {
		log.Info("Seeded %d default categories", added)
	}

	var blobs repository.BlobStore
	if cfg.S3.Enabled() {
		store, err := s3.NewBlobStore(ctx, &cfg.S3, log)
		if err != nil {
			log.Warning("S3 mirror disabled: %v", err)
		} else {
			blobs = store
		}
	}
	a.captureStore = storage.NewCaptureStore(cfg, log, a.captureRepo, blobs)

	var predictor ai.Predictor
	switch cfg.InferenceBackend {
	case config.InferenceRemote:
		predictor = ai.NewRemoteClient(cfg.InferenceURL, cfg.InferenceTimeout, log)
	default:
		a.detector = opencv.NewDetectorService(cfg, categoryRepo, log)
		predictor = a.detector
	}

	var publishers []service.ResultPublisher
	if cfg.MQTT.Enabled() {
		a.emitter = emitter.NewMQTTEmitter(cfg.MQTT, log)
		connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
		if err := a.emitter.Connect(connectCtx); err != nil {
			log.Warning("MQTT broker %s not reachable yet: %v", cfg.MQTT.Broker, err)
		}
		cancel()
		publishers = append(publishers, a.emitter)
	}

	transport := serial.NewReader(nil, log)
	a.manager = service.NewManager(cfg, transport, a.captureStore, predictor, a.predictionRepo, a.hubService, log, publishers...)

	return a, nil
}

// Run serves HTTP until ctx is cancelled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	// Start background services
	go a.hubService.Run(ctx)
	go a.captureStore.Run(ctx)

	if a.config.SerialAutoConnect {
		if err := a.manager.Start(ctx); err != nil {
			a.logger.Error("Serial auto-connect failed: %v", err)
		}
	}

	router := route.SetupRoutes(ctx, route.Dependencies{
		Config:         a.config,
		Logger:         a.logger,
		Hub:            a.hubService,
		Serial:         a.manager,
		CaptureRepo:    a.captureRepo,
		PredictionRepo: a.predictionRepo,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Port),
		Handler: router,
	}

	a.logger.Info("Armory server listening on http://localhost:%d", a.config.Port)
	a.logger.Info("Serial port: %s @ %d baud", a.config.SerialPort, a.config.SerialBaudRate)
	a.logger.Info("Captures: %s", a.config.CaptureDirectory)
	a.logger.Info("Inference backend: %s", a.config.InferenceBackend)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (a *App) close() {
	if err := a.manager.Disconnect(); err != nil {
		a.logger.Warning("Serial disconnect: %v", err)
	}
	if a.emitter != nil {
		a.emitter.Disconnect()
	}
	if a.detector != nil {
		a.detector.Close()
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database: %v", err)
	}
	a.logger.Sync()
}
