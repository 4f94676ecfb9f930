package driven

import (
	"context"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
)

// EntityResolver maps parent Entities to Content records.
// An unmapped entity is reported as ok == false, not as an error.
type EntityResolver interface {
	// ResolveRecord returns the Content record for a parent Entity.
	ResolveRecord(ctx context.Context, parentType string, entityID int64, op domain.Operation) (recordID int64, ok bool, err error)

	// ResolveEntity returns the parent Entity for a Content record.
	ResolveEntity(ctx context.Context, recordID int64, parentType string) (entityID int64, ok bool, err error)
}
