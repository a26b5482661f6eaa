// Package notify is the pub/sub port used to tell other overlay instances and
// connected browser tabs that persisted catalog or banlist data changed.
package notify

import (
	"context"
	"sync"
)

// Message types carried on the modifications topic
const (
	TypeUpdated        = "updated"
	TypeCardsUpdated   = "cards-updated"
	TypeBanlistUpdated = "banlist-updated"
)

// Message is a change signal. Archetype is only set for cards-updated;
// an empty archetype means every open archetype view.
type Message struct {
	Type      string `json:"type"`
	Archetype string `json:"archetype,omitempty"`
	Origin    string `json:"origin,omitempty"`
}

// Handler receives messages published on a topic
type Handler func(ctx context.Context, msg Message)

// Bus publishes messages to every subscriber of a topic
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(topic string, h Handler) (unsubscribe func())
}

// MemoryBus is an in-process Bus. Handlers run synchronously in the publisher's goroutine.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]Handler
}

// NewMemoryBus creates an empty in-process bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[uint64]Handler)}
}

// Publish delivers msg to a snapshot of the topic's handlers
func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, msg)
	}
	return nil
}

// Subscribe registers h on topic until the returned func is called
func (b *MemoryBus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]Handler)
	}
	b.subs[topic][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], id)
			b.mu.Unlock()
		})
	}
}

type nopBus struct{}

func (nopBus) Publish(context.Context, string, Message) error { return nil }
func (nopBus) Subscribe(string, Handler) func()               { return func() {} }

// NopBus drops every message; for single-instance deployments without browser fan-out
func NopBus() Bus {
	return nopBus{}
}
