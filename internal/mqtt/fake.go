package mqtt

import (
	"context"
	"errors"
	"sync"
)

var ErrNotConnected = errors.New("mqtt: not connected")

// Published is one message sent through a FakeClient
type Published struct {
	Topic   string
	Payload []byte
}

// FakeClient is an in-process Client that delivers to its own subscribers.
// Topics match exactly.
type FakeClient struct {
	mu        sync.Mutex
	connected bool
	handlers  map[string][]MessageHandler
	published []Published
}

func NewFakeClient() *FakeClient {
	return &FakeClient{handlers: make(map[string][]MessageHandler)}
}

func (f *FakeClient) Connect(context.Context) error {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *FakeClient) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *FakeClient) Subscribe(topic string, _ byte, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = append(f.handlers[topic], handler)
	return nil
}

func (f *FakeClient) Publish(topic string, _ byte, _ bool, payload []byte) error {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return ErrNotConnected
	}
	f.published = append(f.published, Published{Topic: topic, Payload: append([]byte(nil), payload...)})
	handlers := append([]MessageHandler(nil), f.handlers[topic]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(topic, payload)
	}
	return nil
}

func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Messages returns everything published so far
func (f *FakeClient) Messages() []Published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Published(nil), f.published...)
}
