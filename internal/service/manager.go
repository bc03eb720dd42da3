package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"armory/internal/config"
	"armory/internal/dto"
	"armory/internal/logger"
	"armory/internal/model"
	"armory/internal/service/ai"
	"armory/internal/service/frame"
	"armory/internal/service/serial"
)

// AckMessage is written back over the link after every processed frame.
const AckMessage = "IMAGE_RECEIVED"

// ErrProcessing marks a failure of a single frame. The loop keeps streaming after it.
var ErrProcessing = errors.New("frame processing failed")

// ErrAlreadyConnected is returned by Connect while a session is active.
var ErrAlreadyConnected = errors.New("serial session already active")

// State of the ingestion loop.
type State string

const (
	StateWaitingConnection State = "WAITING_CONNECTION"
	StateStreaming         State = "STREAMING"
	StateProcessingFrame   State = "PROCESSING_FRAME"
	StateErrorRecovery     State = "ERROR_RECOVERY"
	StateStopped           State = "STOPPED"
)

// Transport is the serial link driven by the Manager. *serial.Reader satisfies it.
type Transport interface {
	Connect(cfg serial.Config) error
	Disconnect() error
	Poll() ([]byte, error)
	Write(p []byte) error
	Running() bool
}

// CaptureStore persists frames.
type CaptureStore interface {
	Save(ctx context.Context, data []byte) (*model.Capture, error)
}

// PredictionStore persists reduced results.
type PredictionStore interface {
	SavePrediction(p *model.Prediction) (int64, error)
}

// Broadcaster hands messages to the subscriber-serving side.
type Broadcaster interface {
	BroadcastText(data []byte)
	BroadcastBinary(data []byte)
	GetClientCount() int
}

// ResultPublisher receives every stored prediction in addition to the subscribers.
type ResultPublisher interface {
	Publish(ctx context.Context, msg *dto.PredictionMessage) error
}

// publishCounter is implemented by publishers that track delivery outcomes.
type publishCounter interface {
	Stats() (published, failed uint64)
}

// Stats are cumulative counters across sessions.
type Stats struct {
	FramesProcessed uint64
	FramesFailed    uint64
	FramesDropped   uint64
	BytesReceived   uint64
}

type session struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	doneOnce sync.Once
	running  atomic.Bool
}

func newSession() *session {
	return &session{stop: make(chan struct{}), done: make(chan struct{})}
}

func (s *session) requestStop() { s.stopOnce.Do(func() { close(s.stop) }) }

func (s *session) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *session) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Manager runs the ingestion loop: it polls the transport, cuts frames and
// pushes each one through persist, infer, reduce, store, broadcast and acknowledge.
// The loop is the only reader of the transport and the only user of the reassembler.
type Manager struct {
	transport   Transport
	reassembler *frame.Reassembler
	captures    CaptureStore
	predictor   ai.Predictor
	predictions PredictionStore
	hub         Broadcaster
	publishers  []ResultPublisher
	logger      *logger.Logger

	serialConfig  serial.Config
	broadcastMode string
	interval      time.Duration

	mu      sync.Mutex
	session *session
	state   atomic.Value

	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	received  atomic.Uint64
}

// NewManager wires the pipeline collaborators. publishers may be empty.
func NewManager(cfg *config.Config, transport Transport, captures CaptureStore, predictor ai.Predictor,
	predictions PredictionStore, hub Broadcaster, logger *logger.Logger, publishers ...ResultPublisher) *Manager {
	m := &Manager{
		transport:   transport,
		reassembler: frame.NewReassembler(cfg.MaxFrameSize, cfg.FrameIdleTimeout),
		captures:    captures,
		predictor:   predictor,
		predictions: predictions,
		hub:         hub,
		publishers:  publishers,
		logger:      logger,
		serialConfig: serial.Config{
			Port:        cfg.SerialPort,
			BaudRate:    cfg.SerialBaudRate,
			ReadTimeout: cfg.SerialReadTimeout,
			ChunkSize:   cfg.SerialChunkSize,
		},
		broadcastMode: cfg.BroadcastMode,
		interval:      cfg.FrameInterval,
	}
	m.state.Store(StateWaitingConnection)

	switch m.broadcastMode {
	case config.BroadcastResult, config.BroadcastFrame, config.BroadcastBoth:
	default:
		m.logger.Warning("Unknown broadcast mode %q, using %s", m.broadcastMode, config.BroadcastResult)
		m.broadcastMode = config.BroadcastResult
	}

	m.logger.Info("Manager ready - port %s, broadcast mode %s, frame interval %s",
		m.serialConfig.Port, m.broadcastMode, m.interval)
	return m
}

// State returns the current loop state.
func (m *Manager) State() State {
	return m.state.Load().(State)
}

func (m *Manager) setState(s State) {
	if prev := m.state.Swap(s).(State); prev != s {
		m.logger.Info("Serial state %s -> %s", prev, s)
	}
}

// Stats returns the cumulative frame counters.
func (m *Manager) Stats() Stats {
	return Stats{
		FramesProcessed: m.processed.Load(),
		FramesFailed:    m.failed.Load(),
		FramesDropped:   m.dropped.Load(),
		BytesReceived:   m.received.Load(),
	}
}

// Status summarises the loop for the HTTP API.
func (m *Manager) Status() dto.SerialStatus {
	stats := m.Stats()
	status := dto.SerialStatus{
		State:           string(m.State()),
		Port:            m.serialConfig.Port,
		FramesProcessed: stats.FramesProcessed,
		FramesFailed:    stats.FramesFailed,
		FramesDropped:   stats.FramesDropped,
		BytesReceived:   stats.BytesReceived,
		Subscribers:     m.hub.GetClientCount(),
	}
	for _, p := range m.publishers {
		if c, ok := p.(publishCounter); ok {
			published, failed := c.Stats()
			status.Published += published
			status.PublishFailed += failed
		}
	}
	return status
}

// Done is closed when the current session reaches STOPPED. It is nil before the first Connect.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	return m.session.done
}

// Connect opens the transport and starts a new session in STREAMING.
// A stopped manager can be connected again.
func (m *Manager) Connect(ctx context.Context) error {
	_, err := m.connect(ctx)
	return err
}

func (m *Manager) connect(ctx context.Context) (*session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && !m.session.finished() {
		return nil, ErrAlreadyConnected
	}

	if err := m.transport.Connect(m.serialConfig); err != nil {
		return nil, err
	}

	m.reassembler.Reset()
	m.session = newSession()
	m.setState(StateStreaming)
	return m.session, nil
}

// Start connects and runs the loop in the background. The goroutine drives
// the session created here, never a later one.
func (m *Manager) Start(ctx context.Context) error {
	sess, err := m.connect(ctx)
	if err != nil {
		return err
	}

	go func() {
		err := m.run(ctx, sess)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, serial.ErrNotConnected) {
			m.logger.Error("Serial loop stopped: %v", err)
		}
	}()
	return nil
}

// Disconnect stops the loop and releases the transport. It is safe to call
// from any goroutine, any number of times.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()

	if sess != nil {
		sess.requestStop()
	}

	err := m.transport.Disconnect()

	if sess == nil {
		m.setState(StateStopped)
	} else if !sess.running.Load() {
		m.finish(sess)
	}
	return err
}

func (m *Manager) finish(sess *session) {
	sess.doneOnce.Do(func() {
		m.setState(StateStopped)
		close(sess.done)
	})
}

// Run drives the current session until Disconnect, a transport fault or ctx
// cancellation. It returns the transport fault, if any.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()

	return m.run(ctx, sess)
}

func (m *Manager) run(ctx context.Context, sess *session) error {
	if sess == nil || sess.finished() {
		return serial.ErrNotConnected
	}
	if !sess.running.CompareAndSwap(false, true) {
		return ErrAlreadyConnected
	}
	defer m.finish(sess)

	m.logger.Info("Serial loop started")

	for {
		select {
		case <-ctx.Done():
			m.transport.Disconnect()
			return ctx.Err()
		case <-sess.stop:
			return nil
		default:
		}

		if !m.transport.Running() {
			return nil
		}

		chunk, err := m.transport.Poll()
		if err != nil {
			if sess.stopping() {
				return nil
			}
			return m.transportFault(err)
		}

		if len(chunk) == 0 {
			if err := m.reassembler.Expire(time.Now()); err != nil {
				m.dropped.Add(1)
				m.logger.Warning("Malformed frame dropped: %v", err)
			}
			continue
		}
		m.received.Add(uint64(len(chunk)))

		data, ok, err := m.reassembler.Feed(chunk)
		if err != nil {
			m.dropped.Add(1)
			m.logger.Error("Malformed frame dropped: %v", err)
			continue
		}
		if !ok {
			continue
		}

		m.setState(StateProcessingFrame)
		err = m.ProcessFrame(ctx, data)
		m.reassembler.Reset()

		if errors.Is(err, serial.ErrTransport) {
			if sess.stopping() {
				return nil
			}
			return m.transportFault(err)
		}
		m.setState(StateStreaming)

		if !m.pace(ctx, sess) {
			if err := ctx.Err(); err != nil {
				m.transport.Disconnect()
				return err
			}
			return nil
		}
	}
}

func (m *Manager) transportFault(err error) error {
	m.setState(StateErrorRecovery)
	m.logger.Error("Serial transport failure: %v", err)
	if derr := m.transport.Disconnect(); derr != nil {
		m.logger.Warning("Failed to release serial transport: %v", derr)
	}
	return err
}

// pace waits out the minimum frame interval. It returns false when the wait
// was cut short by a stop request or ctx.
func (m *Manager) pace(ctx context.Context, sess *session) bool {
	if m.interval <= 0 {
		return true
	}

	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-sess.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

// ProcessFrame runs one completed frame through the pipeline and then
// acknowledges it. Processing failures are logged and returned wrapped in
// ErrProcessing; only a failed acknowledgment returns serial.ErrTransport.
func (m *Manager) ProcessFrame(ctx context.Context, data []byte) error {
	err := m.processFrame(ctx, data)
	if err != nil {
		m.failed.Add(1)
		m.logger.Error("Failed to process frame of %d bytes: %v", len(data), err)
	} else {
		m.processed.Add(1)
	}

	if ackErr := m.transport.Write([]byte(AckMessage)); ackErr != nil {
		m.logger.Warning("Failed to acknowledge frame: %v", ackErr)
		if errors.Is(ackErr, serial.ErrTransport) {
			return ackErr
		}
	}

	return err
}

func (m *Manager) processFrame(ctx context.Context, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrProcessing, r)
		}
	}()

	capture, err := m.captures.Save(ctx, data)
	if err != nil {
		return fmt.Errorf("%w: save capture: %v", ErrProcessing, err)
	}
	if capture == nil {
		return fmt.Errorf("%w: no capture record", ErrProcessing)
	}

	result, err := m.predictor.Predict(ctx, capture)
	if err != nil {
		return fmt.Errorf("%w: inference on %s: %v", ErrProcessing, capture.Filename, err)
	}
	if err := ai.Validate(result); err != nil {
		return fmt.Errorf("%w: inference on %s: %w", ErrProcessing, capture.Filename, err)
	}

	prediction := &model.Prediction{
		CaptureID:      capture.ID,
		Detections:     ai.Reduce(result.Detections),
		AnnotatedImage: result.AnnotatedImage,
		CreatedAt:      time.Now(),
	}

	id, err := m.predictions.SavePrediction(prediction)
	if err != nil {
		return fmt.Errorf("%w: save prediction for %s: %w", ErrProcessing, capture.Filename, err)
	}
	prediction.ID = id

	msg := dto.NewPredictionMessage(capture, prediction)
	if err := m.broadcast(msg, data); err != nil {
		return fmt.Errorf("%w: %v", ErrProcessing, err)
	}
	m.publish(ctx, msg)

	m.logger.Info("Frame %d (%s) processed: %d detection(s)", capture.ID, capture.Filename, len(prediction.Detections))
	return nil
}

func (m *Manager) broadcast(msg *dto.PredictionMessage, data []byte) error {
	if m.broadcastMode == config.BroadcastResult || m.broadcastMode == config.BroadcastBoth {
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode prediction message: %w", err)
		}
		m.hub.BroadcastText(payload)
	}

	if m.broadcastMode == config.BroadcastFrame || m.broadcastMode == config.BroadcastBoth {
		m.hub.BroadcastBinary(data)
	}
	return nil
}

func (m *Manager) publish(ctx context.Context, msg *dto.PredictionMessage) {
	for _, p := range m.publishers {
		if err := p.Publish(ctx, msg); err != nil {
			m.logger.Warning("Failed to publish prediction %d: %v", msg.SequenceID, err)
		}
	}
}
