package services

import (
	"sync/atomic"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
)

// KindModule connects one entity kind's change handler to the mapper.
// Register and Unregister are idempotent.
type KindModule struct {
	kind       domain.EntityKind
	mapper     *EventMapper
	listener   Listener
	registered atomic.Bool
}

// NewKindModule creates an unregistered module.
func NewKindModule(kind domain.EntityKind, mapper *EventMapper, listener Listener) *KindModule {
	return &KindModule{kind: kind, mapper: mapper, listener: listener}
}

// Kind returns the module's entity kind.
func (m *KindModule) Kind() domain.EntityKind {
	return m.kind
}

// Register starts delivering the kind's events to the listener.
func (m *KindModule) Register() {
	if !m.registered.CompareAndSwap(false, true) {
		return
	}
	m.mapper.Register(m.kind, m.name(), m.listener)
}

// Unregister stops delivery.
func (m *KindModule) Unregister() {
	if !m.registered.CompareAndSwap(true, false) {
		return
	}
	m.mapper.Unregister(m.kind, m.name())
}

// Registered reports whether the module is registered.
func (m *KindModule) Registered() bool {
	return m.registered.Load()
}

func (m *KindModule) name() string {
	return "module:" + string(m.kind)
}
