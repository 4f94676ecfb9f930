package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
	"github.com/custodia-labs/fieldsync/internal/core/ports/driven"
)

// Ensure FieldStore and FieldCatalog implement the interfaces.
var (
	_ driven.FieldStore   = (*FieldStore)(nil)
	_ driven.FieldCatalog = (*FieldCatalog)(nil)
)

type fieldKey struct {
	recordID int64
	selector string
}

// FieldStore is an in-memory implementation of driven.FieldStore.
type FieldStore struct {
	mu     sync.RWMutex
	values map[fieldKey]domain.FieldValue
	writes int
}

// NewFieldStore creates a new in-memory field store.
func NewFieldStore() *FieldStore {
	return &FieldStore{
		values: make(map[fieldKey]domain.FieldValue),
	}
}

// GetFieldValue returns a copy of the field's value.
func (s *FieldStore) GetFieldValue(_ context.Context, recordID int64, selector string) (domain.FieldValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[fieldKey{recordID, selector}]
	if !ok {
		return domain.FieldValue{}, nil
	}
	return value.Clone(), nil
}

// SetFieldValue replaces the field's value.
func (s *FieldStore) SetFieldValue(_ context.Context, recordID int64, selector string, value domain.FieldValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[fieldKey{recordID, selector}] = value.Clone()
	s.writes++
	return nil
}

// LocateRemoteID returns the fields holding a row linked to remoteID,
// ordered by record and selector.
func (s *FieldStore) LocateRemoteID(_ context.Context, remoteID int64) ([]domain.FieldRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var refs []domain.FieldRef
	for key, value := range s.values {
		if value.IndexOf(remoteID) >= 0 {
			refs = append(refs, domain.FieldRef{RecordID: key.recordID, Selector: key.selector})
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].RecordID != refs[j].RecordID {
			return refs[i].RecordID < refs[j].RecordID
		}
		return refs[i].Selector < refs[j].Selector
	})
	return refs, nil
}

// Writes counts SetFieldValue calls.
func (s *FieldStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// FieldCatalog is an in-memory implementation of driven.FieldCatalog.
type FieldCatalog struct {
	mu     sync.RWMutex
	fields map[int64][]domain.FieldDef
}

// NewFieldCatalog creates an empty catalog.
func NewFieldCatalog() *FieldCatalog {
	return &FieldCatalog{
		fields: make(map[int64][]domain.FieldDef),
	}
}

// AddField attaches a field to a record, replacing one with the same selector.
func (c *FieldCatalog) AddField(recordID int64, def domain.FieldDef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defs := c.fields[recordID]
	for i := range defs {
		if defs[i].Selector == def.Selector {
			defs[i] = def
			return
		}
	}
	c.fields[recordID] = append(defs, def)
}

// Fields returns the record's fields of kind in the order they were added.
func (c *FieldCatalog) Fields(_ context.Context, recordID int64, kind domain.EntityKind) ([]domain.FieldDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.FieldDef
	for _, def := range c.fields[recordID] {
		if def.Kind == kind {
			out = append(out, def)
		}
	}
	return out, nil
}

// Field returns one field by selector.
func (c *FieldCatalog) Field(_ context.Context, recordID int64, selector string) (*domain.FieldDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, def := range c.fields[recordID] {
		if def.Selector == selector {
			return &def, nil
		}
	}
	return nil, fmt.Errorf("%s on record %d: %w", selector, recordID, domain.ErrFieldNotFound)
}
