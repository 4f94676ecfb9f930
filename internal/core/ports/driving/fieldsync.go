package driving

import (
	"context"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
)

// FieldSync drives synchronisation in both directions.
type FieldSync interface {
	// Push reconciles one Content field against the CRM (Content to CRM).
	// The field is patched with newly minted remote IDs in a single write.
	Push(ctx context.Context, recordID int64, selector string, rows domain.FieldValue) (*domain.Result, error)

	// Dispatch handles one raw CRM notification (CRM to Content).
	Dispatch(ctx context.Context, raw domain.RawEvent) error

	// Status returns counters accumulated since start.
	Status(ctx context.Context) (*SyncStatus, error)
}

// SyncStatus summarises work done by this process.
type SyncStatus struct {
	// Pushes is the number of Push calls that reached the CRM.
	Pushes int `json:"pushes"`

	// Events is the number of dispatched CRM notifications.
	Events int `json:"events"`

	// Suppressed counts notifications dropped by the reverse-edit guard.
	Suppressed int `json:"suppressed"`

	// Unmapped counts notifications for entities with no Content record.
	Unmapped int `json:"unmapped"`

	// Totals are the CRM writes performed by Push.
	Totals domain.Stats `json:"totals"`
}
