package websocket

import (
	"context"
	"sync"
	"time"

	"armory/internal/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Subscriber is a live outbound connection. *websocket.Conn satisfies it.
type Subscriber interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// writeDeadliner is implemented by connections that support write timeouts.
type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

type message struct {
	messageType int
	data        []byte
}

// HubService owns the subscriber registry. Only the Run goroutine mutates or
// iterates it; every other caller hands work over through channels.
type HubService struct {
	clients      map[Subscriber]string
	broadcast    chan message
	register     chan Subscriber
	unregister   chan Subscriber
	done         chan struct{}
	stopOnce     sync.Once
	registerMu   sync.Mutex
	mutex        sync.RWMutex
	writeTimeout time.Duration
	logger       *logger.Logger
}

// NewHubService creates a hub. writeTimeout bounds a single send; zero disables it.
func NewHubService(writeTimeout time.Duration, logger *logger.Logger) *HubService {
	return &HubService{
		clients:      make(map[Subscriber]string),
		broadcast:    make(chan message, 64),
		register:     make(chan Subscriber, 16),
		unregister:   make(chan Subscriber, 16),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then closes every subscriber.
func (h *HubService) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.add(client)

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *HubService) add(client Subscriber) {
	id := uuid.NewString()

	h.mutex.Lock()
	h.clients[client] = id
	total := len(h.clients)
	h.mutex.Unlock()

	h.logger.Info("Subscriber %s connected. Total: %d", id, total)
}

func (h *HubService) remove(client Subscriber) {
	h.mutex.Lock()
	id, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
	}
	total := len(h.clients)
	h.mutex.Unlock()

	if ok {
		client.Close()
		h.logger.Info("Subscriber %s disconnected. Total: %d", id, total)
	}
}

// deliver sends msg to a snapshot of the registry. A subscriber whose send fails
// is removed and closed; the remaining subscribers still get the message.
func (h *HubService) deliver(msg message) {
	h.mutex.RLock()
	snapshot := make([]Subscriber, 0, len(h.clients))
	for client := range h.clients {
		snapshot = append(snapshot, client)
	}
	h.mutex.RUnlock()

	for _, client := range snapshot {
		if h.writeTimeout > 0 {
			if d, ok := client.(writeDeadliner); ok {
				d.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			}
		}

		if err := client.WriteMessage(msg.messageType, msg.data); err != nil {
			h.logger.Error("Error sending message: %v", err)
			h.remove(client)
		}
	}
}

func (h *HubService) shutdown() {
	h.stopOnce.Do(func() { close(h.done) })

	// Registrations queued before done closed are still owned by the hub.
	h.registerMu.Lock()
	var queued []Subscriber
	for drained := false; !drained; {
		select {
		case client := <-h.register:
			queued = append(queued, client)
		default:
			drained = true
		}
	}
	h.registerMu.Unlock()

	h.mutex.Lock()
	clients := h.clients
	h.clients = make(map[Subscriber]string)
	h.mutex.Unlock()

	for _, client := range queued {
		clients[client] = ""
	}

	for client := range clients {
		client.Close()
	}
	h.logger.Info("Broadcast hub stopped, %d subscribers closed", len(clients))
}

// Register queues a subscriber for addition to the registry.
// A subscriber registered after Run has stopped is closed right away.
func (h *HubService) Register(client Subscriber) {
	h.registerMu.Lock()
	defer h.registerMu.Unlock()

	select {
	case <-h.done:
		client.Close()
		return
	default:
	}

	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister queues a subscriber for removal. Unknown subscribers are ignored.
func (h *HubService) Unregister(client Subscriber) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastText queues a text message for every subscriber.
func (h *HubService) BroadcastText(data []byte) {
	h.enqueue(message{messageType: websocket.TextMessage, data: data})
}

// BroadcastBinary queues a binary message for every subscriber.
func (h *HubService) BroadcastBinary(data []byte) {
	h.enqueue(message{messageType: websocket.BinaryMessage, data: data})
}

func (h *HubService) enqueue(msg message) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// GetClientCount returns the number of registered subscribers.
func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
