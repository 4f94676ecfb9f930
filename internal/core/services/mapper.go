package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/fieldsync/internal/codecs"
	"github.com/custodia-labs/fieldsync/internal/core/domain"
	"github.com/custodia-labs/fieldsync/internal/logger"
	"github.com/custodia-labs/fieldsync/internal/metrics"
)

// Listener handles normalised child events of one kind.
type Listener func(ctx context.Context, ev domain.ChildEvent) error

type namedListener struct {
	name string
	fn   Listener
}

// EventMapper turns raw create/update/delete notifications into child
// events and fans them out to the listeners registered for their kind.
type EventMapper struct {
	codecs *codecs.Registry

	mu        sync.RWMutex
	listeners map[domain.EntityKind][]namedListener
}

// NewEventMapper creates a mapper over the given codecs.
func NewEventMapper(reg *codecs.Registry) *EventMapper {
	return &EventMapper{
		codecs:    reg,
		listeners: make(map[domain.EntityKind][]namedListener),
	}
}

// Register adds a named listener for kind. It returns false if the name
// is already registered for that kind.
func (m *EventMapper) Register(kind domain.EntityKind, name string, fn Listener) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.listeners[kind] {
		if l.name == name {
			return false
		}
	}
	m.listeners[kind] = append(m.listeners[kind], namedListener{name: name, fn: fn})
	return true
}

// Unregister removes a named listener. It returns false if none existed.
func (m *EventMapper) Unregister(kind domain.EntityKind, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls := m.listeners[kind]
	for i, l := range ls {
		if l.name == name {
			m.listeners[kind] = append(ls[:i:i], ls[i+1:]...)
			return true
		}
	}
	return false
}

// Registered reports whether a named listener exists for kind.
func (m *EventMapper) Registered(kind domain.EntityKind, name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.listeners[kind] {
		if l.name == name {
			return true
		}
	}
	return false
}

// Normalize converts a raw notification into one child event per kind
// stored in the notified CRM entity.
func (m *EventMapper) Normalize(raw domain.RawEvent) ([]domain.ChildEvent, error) {
	op, err := domain.ParseOperation(raw.Op)
	if err != nil {
		return nil, err
	}

	kinds := domain.KindsForObject(raw.Object)
	if len(kinds) == 0 {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedKind, raw.Object)
	}

	id := raw.ObjectID
	if id == 0 {
		id = domain.ToInt(raw.Payload["id"])
	}
	if id <= 0 {
		return nil, fmt.Errorf("%w: %s event without an id", domain.ErrInvalidInput, raw.Object)
	}

	system := raw.System
	if system == "" {
		system = domain.SystemCRM
	}

	events := make([]domain.ChildEvent, 0, len(kinds))
	for _, kind := range kinds {
		c, err := m.codecs.Get(kind)
		if err != nil {
			continue
		}
		fields := make(map[string]any, len(raw.Payload)+1)
		for k, v := range raw.Payload {
			fields[k] = v
		}
		fields["id"] = id
		parentID := domain.ToInt(fields[c.ParentKey()])

		events = append(events, domain.ChildEvent{
			Op:       op,
			Kind:     kind,
			EntityID: id,
			ParentID: parentID,
			Record:   domain.RemoteRecord{ID: id, ParentID: parentID, Fields: fields},
			System:   system,
		})
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedKind, raw.Object)
	}
	return events, nil
}

// Dispatch normalises raw and delivers it to every registered listener.
// Only a malformed notification is returned as an error; listener
// failures are logged and never stop the others.
func (m *EventMapper) Dispatch(ctx context.Context, raw domain.RawEvent) error {
	ctx = WithRequest(ctx)

	events, err := m.Normalize(raw)
	if err != nil {
		metrics.EventsHandled.WithLabelValues(raw.Object, raw.Op, metrics.OutcomeInvalid).Inc()
		return fmt.Errorf("normalize %s event: %w", raw.Object, err)
	}

	for _, ev := range events {
		m.mu.RLock()
		ls := make([]namedListener, len(m.listeners[ev.Kind]))
		copy(ls, m.listeners[ev.Kind])
		m.mu.RUnlock()

		for _, l := range ls {
			if err := invoke(ctx, l.fn, ev); err != nil {
				logger.L().Warn().
					Err(err).
					Str("request_id", RequestID(ctx)).
					Str("listener", l.name).
					Str("kind", string(ev.Kind)).
					Str("op", string(ev.Op)).
					Int64("entity_id", ev.EntityID).
					Msg("Event listener failed")
			}
		}
	}
	return nil
}

func invoke(ctx context.Context, fn Listener, ev domain.ChildEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, ev)
}
