package driven

import (
	"context"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
)

// CRMClient is the CRM Record API for every entity kind.
//
// Errors must be distinguishable from empty results: Get returns an empty
// slice and nil when nothing matches. domain.ErrNotInitialized signals that
// the connection is unavailable and no write should be attempted.
type CRMClient interface {
	// Get returns the records matching filter. The filter always carries the parent key.
	Get(ctx context.Context, kind domain.EntityKind, filter domain.Filter) ([]domain.RemoteRecord, error)

	// Create creates a record. The payload never carries an id.
	Create(ctx context.Context, kind domain.EntityKind, payload domain.Payload) (*domain.RemoteRecord, error)

	// Update updates the record identified by payload["id"].
	Update(ctx context.Context, kind domain.EntityKind, payload domain.Payload) (*domain.RemoteRecord, error)

	// Delete removes a record.
	Delete(ctx context.Context, kind domain.EntityKind, id int64) error
}
