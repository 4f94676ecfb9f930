package driven

import (
	"context"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
)

// FieldStore persists Content field values.
// Values are arbitrary ordered arrays of sub-field maps.
type FieldStore interface {
	// GetFieldValue returns the field's value, or an empty value if unset.
	GetFieldValue(ctx context.Context, recordID int64, selector string) (domain.FieldValue, error)

	// SetFieldValue replaces the field's value.
	SetFieldValue(ctx context.Context, recordID int64, selector string, value domain.FieldValue) error

	// LocateRemoteID returns the fields holding a row linked to remoteID.
	// Remote IDs are only unique per CRM table, so callers filter by kind.
	LocateRemoteID(ctx context.Context, remoteID int64) ([]domain.FieldRef, error)
}

// FieldCatalog lists the Record-Set fields attached to Content records.
type FieldCatalog interface {
	// Fields returns the record's fields that mirror kind.
	Fields(ctx context.Context, recordID int64, kind domain.EntityKind) ([]domain.FieldDef, error)

	// Field returns one field by selector, or domain.ErrFieldNotFound.
	Field(ctx context.Context, recordID int64, selector string) (*domain.FieldDef, error)
}
