package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
	"github.com/custodia-labs/fieldsync/internal/core/ports/driven"
)

// Ensure EntityResolver implements the interface.
var _ driven.EntityResolver = (*EntityResolver)(nil)

type entityKey struct {
	parentType string
	id         int64
}

// EntityResolver is an in-memory implementation of driven.EntityResolver.
type EntityResolver struct {
	mu       sync.RWMutex
	records  map[entityKey]int64
	entities map[entityKey]int64
	lookups  int
}

// NewEntityResolver creates an empty resolver.
func NewEntityResolver() *EntityResolver {
	return &EntityResolver{
		records:  make(map[entityKey]int64),
		entities: make(map[entityKey]int64),
	}
}

// Map links a parent Entity to a Content record.
func (r *EntityResolver) Map(parentType string, entityID, recordID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[entityKey{parentType, entityID}] = recordID
	r.entities[entityKey{parentType, recordID}] = entityID
}

// ResolveRecord returns the Content record for a parent Entity.
func (r *EntityResolver) ResolveRecord(
	_ context.Context,
	parentType string,
	entityID int64,
	_ domain.Operation,
) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	id, ok := r.records[entityKey{parentType, entityID}]
	return id, ok, nil
}

// ResolveEntity returns the parent Entity for a Content record.
func (r *EntityResolver) ResolveEntity(_ context.Context, recordID int64, parentType string) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	id, ok := r.entities[entityKey{parentType, recordID}]
	return id, ok, nil
}

// Lookups counts resolve calls.
func (r *EntityResolver) Lookups() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookups
}
