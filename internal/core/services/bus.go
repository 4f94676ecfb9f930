package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
	"github.com/custodia-labs/fieldsync/internal/logger"
)

// EventHandler receives record events.
type EventHandler func(ctx context.Context, ev domain.RecordEvent) error

type subscriber struct {
	name    string
	handler EventHandler
}

// EventBus delivers record events synchronously to subscribers in the
// order they subscribed. A failing subscriber is logged and never stops
// delivery to the others or reaches the publisher.
type EventBus struct {
	mu   sync.RWMutex
	subs []subscriber
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe adds a named handler. It returns false if the name is taken.
func (b *EventBus) Subscribe(name string, h EventHandler) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if s.name == name {
			return false
		}
	}
	b.subs = append(b.subs, subscriber{name: name, handler: h})
	return true
}

// Unsubscribe removes a named handler. It returns false if none existed.
func (b *EventBus) Unsubscribe(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.name == name {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers ev to every subscriber.
func (b *EventBus) Publish(ctx context.Context, ev domain.RecordEvent) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if err := deliver(ctx, s, ev); err != nil {
			logger.Warn("Event subscriber %s failed on %s: %v", s.name, ev.Type, err)
		}
	}
}

func deliver(ctx context.Context, s subscriber, ev domain.RecordEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.handler(ctx, ev)
}
