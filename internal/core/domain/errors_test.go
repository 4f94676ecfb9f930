package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrUnsupportedKind", ErrUnsupportedKind},
		{"ErrFieldNotFound", ErrFieldNotFound},
		{"ErrNotInitialized", ErrNotInitialized},
		{"ErrTransient", ErrTransient},
		{"ErrRejected", ErrRejected},
		{"ErrNotMapped", ErrNotMapped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestErrNotInitialized_Wrapped(t *testing.T) {
	err := fmt.Errorf("get address: %w", ErrNotInitialized)
	assert.True(t, errors.Is(err, ErrNotInitialized))
	assert.False(t, errors.Is(err, ErrTransient))
}

func TestRowFailure_ErrorAndUnwrap(t *testing.T) {
	create := &RowFailure{Op: ActionCreate, Key: 2, Err: ErrTransient}
	assert.Equal(t, "create row 2: transient crm failure", create.Error())
	assert.True(t, errors.Is(create, ErrTransient))

	del := &RowFailure{Op: ActionDelete, Key: -1, RemoteID: 12, Err: ErrRejected}
	assert.Equal(t, "delete remote 12: crm rejected request", del.Error())

	var target *RowFailure
	wrapped := fmt.Errorf("pass: %w", del)
	assert.True(t, errors.As(wrapped, &target))
	assert.Equal(t, int64(12), target.RemoteID)
}
