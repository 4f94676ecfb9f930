package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fieldsync/internal/codecs"
	"github.com/custodia-labs/fieldsync/internal/core/domain"
)

func TestEventMapper_Normalize(t *testing.T) {
	m := NewEventMapper(codecs.NewRegistry())

	events, err := m.Normalize(domain.RawEvent{
		Op:       "update",
		Object:   "Phone",
		ObjectID: 12,
		Payload:  map[string]any{"contact_id": "42", "phone": "555"},
	})
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, domain.KindPhone, events[0].Kind)
	assert.Equal(t, domain.KindPhoneSingle, events[1].Kind)
	for _, ev := range events {
		assert.Equal(t, domain.OpEdit, ev.Op)
		assert.Equal(t, int64(12), ev.EntityID)
		assert.Equal(t, int64(42), ev.ParentID)
		assert.Equal(t, int64(12), ev.Record.ID)
		assert.Equal(t, domain.SystemCRM, ev.System)
		assert.Equal(t, "555", ev.Record.Fields["phone"])
	}
}

func TestEventMapper_NormalizeAttachment(t *testing.T) {
	m := NewEventMapper(codecs.NewRegistry())

	events, err := m.Normalize(domain.RawEvent{
		Op:      "delete",
		Object:  "EntityFile",
		Payload: map[string]any{"id": 3, "entity_id": 9},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.KindAttachment, events[0].Kind)
	assert.Equal(t, int64(3), events[0].EntityID)
	assert.Equal(t, int64(9), events[0].ParentID)
}

func TestEventMapper_NormalizeErrors(t *testing.T) {
	m := NewEventMapper(codecs.NewRegistry())

	_, err := m.Normalize(domain.RawEvent{Op: "merge", Object: "Phone", ObjectID: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = m.Normalize(domain.RawEvent{Op: "create", Object: "Website", ObjectID: 1})
	assert.ErrorIs(t, err, domain.ErrUnsupportedKind)

	_, err = m.Normalize(domain.RawEvent{Op: "create", Object: "Email"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEventMapper_RegisterIsIdempotent(t *testing.T) {
	m := NewEventMapper(codecs.NewRegistry())
	calls := 0
	l := func(context.Context, domain.ChildEvent) error {
		calls++
		return nil
	}

	assert.True(t, m.Register(domain.KindEmail, "audit", l))
	assert.False(t, m.Register(domain.KindEmail, "audit", l))
	assert.True(t, m.Registered(domain.KindEmail, "audit"))

	require.NoError(t, m.Dispatch(context.Background(), domain.RawEvent{Op: "create", Object: "Email", ObjectID: 1}))
	assert.Equal(t, 1, calls)

	assert.True(t, m.Unregister(domain.KindEmail, "audit"))
	assert.False(t, m.Unregister(domain.KindEmail, "audit"))
	require.NoError(t, m.Dispatch(context.Background(), domain.RawEvent{Op: "create", Object: "Email", ObjectID: 1}))
	assert.Equal(t, 1, calls)
}

func TestEventMapper_FailingListenerDoesNotStopOthers(t *testing.T) {
	m := NewEventMapper(codecs.NewRegistry())
	var reached []string

	m.Register(domain.KindAddress, "broken", func(context.Context, domain.ChildEvent) error {
		reached = append(reached, "broken")
		return errors.New("boom")
	})
	m.Register(domain.KindAddress, "panics", func(context.Context, domain.ChildEvent) error {
		reached = append(reached, "panics")
		panic("boom")
	})
	m.Register(domain.KindAddress, "ok", func(context.Context, domain.ChildEvent) error {
		reached = append(reached, "ok")
		return nil
	})

	err := m.Dispatch(context.Background(), domain.RawEvent{Op: "edit", Object: "Address", ObjectID: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"broken", "panics", "ok"}, reached)
}

func TestEventMapper_DispatchRejectsMalformedEvents(t *testing.T) {
	m := NewEventMapper(codecs.NewRegistry())
	err := m.Dispatch(context.Background(), domain.RawEvent{Op: "create", Object: "Nope", ObjectID: 1})
	assert.ErrorIs(t, err, domain.ErrUnsupportedKind)
}

func TestEventMapper_DispatchStartsARequest(t *testing.T) {
	m := NewEventMapper(codecs.NewRegistry())
	var id string
	m.Register(domain.KindEmail, "id", func(ctx context.Context, _ domain.ChildEvent) error {
		id = RequestID(ctx)
		return nil
	})

	require.NoError(t, m.Dispatch(context.Background(), domain.RawEvent{Op: "create", Object: "Email", ObjectID: 1}))
	assert.NotEmpty(t, id)

	outer := WithRequest(context.Background())
	require.NoError(t, m.Dispatch(outer, domain.RawEvent{Op: "create", Object: "Email", ObjectID: 1}))
	assert.Equal(t, RequestID(outer), id)
}
