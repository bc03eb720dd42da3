package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"armory/internal/logger"

	bugst "go.bug.st/serial"
)

// ErrTransport marks failures of the serial link itself. They stop the pipeline.
var ErrTransport = errors.New("serial transport failure")

// ErrNotConnected is returned by Poll and Write before Connect succeeds.
var ErrNotConnected = fmt.Errorf("%w: port not connected", ErrTransport)

// DefaultChunkSize bounds a single Poll.
const DefaultChunkSize = 4096

// Config describes how to open the serial link.
type Config struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
	ChunkSize   int
}

// Port is an open serial link. Read returns 0, nil when the read timeout elapses.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens a Port for a configuration.
type Opener func(cfg Config) (Port, error)

// OpenPort opens a real serial device.
func OpenPort(cfg Config) (Port, error) {
	port, err := bugst.Open(cfg.Port, &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	})
	if err != nil {
		return nil, err
	}

	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	return port, nil
}

// Reader owns the serial transport. Poll is meant for a single goroutine;
// Disconnect may be called from any goroutine, any number of times.
type Reader struct {
	open    Opener
	logger  *logger.Logger
	mu      sync.Mutex
	port    Port
	cfg     Config
	running atomic.Bool
	chunk   []byte
}

// NewReader creates a Reader. A nil opener uses OpenPort.
func NewReader(open Opener, logger *logger.Logger) *Reader {
	if open == nil {
		open = OpenPort
	}
	return &Reader{open: open, logger: logger}
}

// Connect opens the transport and marks the reader as running.
func (r *Reader) Connect(cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.port != nil {
		return nil
	}

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}

	port, err := r.open(cfg)
	if err != nil {
		r.running.Store(false)
		r.logger.Error("Failed to connect to serial port %s: %v", cfg.Port, err)
		return fmt.Errorf("%w: open %s: %v", ErrTransport, cfg.Port, err)
	}

	r.port = port
	r.cfg = cfg
	r.chunk = make([]byte, cfg.ChunkSize)
	r.running.Store(true)

	r.logger.Info("Connected to %s at %d baudrate", cfg.Port, cfg.BaudRate)
	return nil
}

// Disconnect closes the transport and clears the running flag.
func (r *Reader) Disconnect() error {
	r.running.Store(false)

	r.mu.Lock()
	port := r.port
	r.port = nil
	r.mu.Unlock()

	if port == nil {
		return nil
	}

	if err := port.Close(); err != nil {
		r.logger.Warning("Error closing serial port: %v", err)
		return err
	}

	r.logger.Info("Serial connection closed")
	return nil
}

// Running reports whether the transport is open and no stop was requested.
func (r *Reader) Running() bool {
	return r.running.Load()
}

// Config returns the configuration of the current connection.
func (r *Reader) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Poll returns the bytes that arrived since the last call. It returns an empty
// slice when the read timeout passes without data. A read interrupted by
// Disconnect is not reported as an error.
func (r *Reader) Poll() ([]byte, error) {
	r.mu.Lock()
	port, chunk := r.port, r.chunk
	r.mu.Unlock()

	if port == nil {
		if !r.Running() {
			return nil, nil
		}
		return nil, ErrNotConnected
	}

	n, err := port.Read(chunk)
	if err != nil {
		if !r.Running() {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read: %v", ErrTransport, err)
	}
	if n == 0 {
		return nil, nil
	}

	data := make([]byte, n)
	copy(data, chunk[:n])
	return data, nil
}

// Write sends p over the link.
func (r *Reader) Write(p []byte) error {
	r.mu.Lock()
	port := r.port
	r.mu.Unlock()

	if port == nil {
		return ErrNotConnected
	}

	if _, err := port.Write(p); err != nil {
		return fmt.Errorf("%w: write: %v", ErrTransport, err)
	}
	return nil
}
