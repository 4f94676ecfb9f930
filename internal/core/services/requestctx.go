package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type requestKey struct{}

// request is the state shared by every call made while handling one
// inbound change. Lookups memoised here never outlive the request.
type request struct {
	id string

	mu    sync.Mutex
	cache map[string]any
}

// WithRequest starts a request scope. A context that already carries one
// is returned unchanged so nested calls share the outer request.
func WithRequest(ctx context.Context) context.Context {
	if requestFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, requestKey{}, &request{
		id:    uuid.NewString(),
		cache: make(map[string]any),
	})
}

// RequestID returns the current request ID, or "" outside a request.
func RequestID(ctx context.Context) string {
	if r := requestFrom(ctx); r != nil {
		return r.id
	}
	return ""
}

func requestFrom(ctx context.Context) *request {
	r, _ := ctx.Value(requestKey{}).(*request)
	return r
}

// memo returns the value cached under key for this request, calling load
// on first use. Errors are not cached. Outside a request load always runs.
func memo[T any](ctx context.Context, key string, load func() (T, error)) (T, error) {
	r := requestFrom(ctx)
	if r == nil {
		return load()
	}

	r.mu.Lock()
	if v, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return v.(T), nil
	}
	r.mu.Unlock()

	v, err := load()
	if err != nil {
		return v, err
	}

	r.mu.Lock()
	r.cache[key] = v
	r.mu.Unlock()
	return v, nil
}
