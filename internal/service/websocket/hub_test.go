package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"armory/internal/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	mu       sync.Mutex
	name     string
	fail     bool
	received [][]byte
	types    []int
	closed   bool
}

func (s *fakeSubscriber) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New(s.name + ": broken pipe")
	}
	s.received = append(s.received, data)
	s.types = append(s.types, messageType)
	return nil
}

func (s *fakeSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSubscriber) messages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.received...)
}

func (s *fakeSubscriber) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestHub_FailedSendPrunesOnlyThatSubscriber(t *testing.T) {
	hub := NewHubService(0, logger.Nop())
	a := &fakeSubscriber{name: "A"}
	b := &fakeSubscriber{name: "B", fail: true}
	c := &fakeSubscriber{name: "C"}
	hub.add(a)
	hub.add(b)
	hub.add(c)

	hub.deliver(message{messageType: websocket.TextMessage, data: []byte("hello")})

	assert.Equal(t, 2, hub.GetClientCount())
	assert.Equal(t, [][]byte{[]byte("hello")}, a.messages())
	assert.Equal(t, [][]byte{[]byte("hello")}, c.messages())
	assert.True(t, b.isClosed())

	hub.mutex.RLock()
	_, hasA := hub.clients[a]
	_, hasB := hub.clients[b]
	_, hasC := hub.clients[c]
	hub.mutex.RUnlock()
	assert.True(t, hasA)
	assert.False(t, hasB)
	assert.True(t, hasC)
}

func TestHub_RunDeliversTextAndBinary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHubService(time.Second, logger.Nop())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	a := &fakeSubscriber{name: "A"}
	hub.Register(a)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.BroadcastText([]byte(`{"type":"prediction"}`))
	hub.BroadcastBinary([]byte{0xFF, 0xD9})

	require.Eventually(t, func() bool { return len(a.messages()) == 2 }, time.Second, 5*time.Millisecond)
	a.mu.Lock()
	assert.Equal(t, []int{websocket.TextMessage, websocket.BinaryMessage}, a.types)
	a.mu.Unlock()

	cancel()
	<-done
	assert.True(t, a.isClosed())
	assert.Zero(t, hub.GetClientCount())
}

func TestHub_UnregisterRemovesSubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHubService(0, logger.Nop())
	go hub.Run(ctx)

	a := &fakeSubscriber{name: "A"}
	hub.Register(a)
	hub.Unregister(a)
	hub.Unregister(a)

	require.Eventually(t, a.isClosed, time.Second, 5*time.Millisecond)
	assert.Zero(t, hub.GetClientCount())
}

func TestHub_CallsAfterShutdownDoNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHubService(0, logger.Nop())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	late := &fakeSubscriber{name: "late"}
	for i := 0; i < 200; i++ {
		hub.BroadcastText([]byte("x"))
	}
	hub.Register(late)
	hub.Unregister(late)
}

func TestHub_LateRegistrationsAreClosed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHubService(0, logger.Nop())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	subscribers := make([]*fakeSubscriber, 16)
	var wg sync.WaitGroup
	for i := range subscribers {
		subscribers[i] = &fakeSubscriber{name: fmt.Sprintf("S%d", i)}
		wg.Add(1)
		go func(s *fakeSubscriber) {
			defer wg.Done()
			hub.Register(s)
		}(subscribers[i])
		if i == len(subscribers)/2 {
			cancel()
		}
	}
	wg.Wait()
	<-done

	for _, s := range subscribers {
		assert.True(t, s.isClosed(), s.name)
	}
	assert.Zero(t, hub.GetClientCount())
}
