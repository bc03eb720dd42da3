package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"armory/internal/config"
	"armory/internal/dto"
	"armory/internal/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 5 * time.Second

// MQTTEmitter publishes prediction messages to an MQTT broker.
type MQTTEmitter struct {
	cfg    config.MQTTConfig
	client mqtt.Client
	logger *logger.Logger

	mu        sync.RWMutex
	published uint64
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates an emitter; Connect must be called before Publish.
func NewMQTTEmitter(cfg config.MQTTConfig, logger *logger.Logger) *MQTTEmitter {
	return &MQTTEmitter{cfg: cfg, logger: logger}
}

// NewMQTTEmitterWithClient wraps an existing client.
func NewMQTTEmitterWithClient(cfg config.MQTTConfig, client mqtt.Client, logger *logger.Logger) *MQTTEmitter {
	return &MQTTEmitter{cfg: cfg, client: client, logger: logger, connected: client.IsConnected()}
}

// Connect establishes the broker connection with automatic reconnects.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		e.logger.Info("MQTT connection established to %s as %s", e.cfg.Broker, e.cfg.ClientID)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		e.logger.Warning("MQTT connection lost, will auto-reconnect: %v", err)
	}

	e.client = mqtt.NewClient(opts)
	token := e.client.Connect()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

// Publish sends msg as JSON to the configured topic.
func (e *MQTTEmitter) Publish(ctx context.Context, msg *dto.PredictionMessage) error {
	e.mu.RLock()
	connected := e.client != nil && e.connected
	e.mu.RUnlock()
	if !connected {
		e.recordError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode prediction: %w", err)
	}

	token := e.client.Publish(e.cfg.Topic, 1, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		e.recordError()
		return fmt.Errorf("mqtt publish to %s timed out", e.cfg.Topic)
	}

	if err := token.Error(); err != nil {
		e.recordError()
		return fmt.Errorf("mqtt publish to %s failed: %w", e.cfg.Topic, err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()
	return nil
}

func (e *MQTTEmitter) recordError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// Stats returns the number of published messages and failures.
func (e *MQTTEmitter) Stats() (published, failed uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.published, e.errors
}

// Disconnect closes the broker connection.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		e.logger.Info("MQTT emitter disconnected")
	}
}
