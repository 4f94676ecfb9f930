package services

import (
	"context"
	"sync"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
)

type (
	originKey struct{}
	forceKey  struct{}
)

// WithOrigin records which system and identifier started the work carried
// by ctx. Writes made further down the same call chain consult it to avoid
// echoing a change back to where it came from.
func WithOrigin(ctx context.Context, o domain.Origin) context.Context {
	return context.WithValue(ctx, originKey{}, o)
}

// OriginFrom returns the origin recorded on ctx, or the zero Origin.
func OriginFrom(ctx context.Context) domain.Origin {
	o, _ := ctx.Value(originKey{}).(domain.Origin)
	return o
}

// ForcePropagation marks ctx so the guard lets every write through.
func ForcePropagation(ctx context.Context) context.Context {
	return context.WithValue(ctx, forceKey{}, true)
}

func forced(ctx context.Context) bool {
	v, _ := ctx.Value(forceKey{}).(bool)
	return v
}

// ForceFilter may override a suppression decision. Returning true lets
// the change propagate.
type ForceFilter func(ctx context.Context, target domain.Origin, ev domain.ChildEvent) bool

// ReverseEditGuard stops a change from being written back to the system
// it came from during the same request.
type ReverseEditGuard struct {
	mu      sync.RWMutex
	filters []ForceFilter
}

// NewReverseEditGuard creates a guard with no force filters.
func NewReverseEditGuard() *ReverseEditGuard {
	return &ReverseEditGuard{}
}

// AddForceFilter registers a filter consulted before suppressing.
func (g *ReverseEditGuard) AddForceFilter(f ForceFilter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.filters = append(g.filters, f)
}

// IsReverseEdit reports whether writing to target would echo the change
// that started this request.
//
// A CRM to Content write is a reverse edit when the request began as a
// Content edit of the same record. A Content to CRM write is a reverse
// edit when the request began as a CRM edit under the same parent entity.
func (g *ReverseEditGuard) IsReverseEdit(ctx context.Context, target domain.Origin) bool {
	origin := OriginFrom(ctx)
	if origin.IsZero() || origin.System != target.System {
		return false
	}

	switch target.System {
	case domain.SystemContent:
		return origin.RecordID != 0 && origin.RecordID == target.RecordID
	case domain.SystemCRM:
		if origin.EntityID == 0 || origin.EntityID != target.EntityID {
			return false
		}
		if origin.Kind == "" || target.Kind == "" {
			return true
		}
		return origin.Kind.ParentType() == target.Kind.ParentType()
	default:
		return false
	}
}

// Suppress reports whether a write to target should be skipped: it is a
// reverse edit and neither the context nor a force filter overrides it.
func (g *ReverseEditGuard) Suppress(ctx context.Context, target domain.Origin, ev domain.ChildEvent) bool {
	if !g.IsReverseEdit(ctx, target) {
		return false
	}
	if forced(ctx) {
		return false
	}

	g.mu.RLock()
	filters := make([]ForceFilter, len(g.filters))
	copy(filters, g.filters)
	g.mu.RUnlock()

	for _, f := range filters {
		if f(ctx, target, ev) {
			return false
		}
	}
	return true
}
