package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
)

func TestReverseEditGuard_NoOrigin(t *testing.T) {
	g := NewReverseEditGuard()
	target := domain.Origin{System: domain.SystemContent, RecordID: 1}
	assert.False(t, g.IsReverseEdit(context.Background(), target))
	assert.False(t, g.Suppress(context.Background(), target, domain.ChildEvent{}))
}

func TestReverseEditGuard_ContentTarget(t *testing.T) {
	g := NewReverseEditGuard()
	ctx := WithOrigin(context.Background(), domain.Origin{
		System:   domain.SystemContent,
		Kind:     domain.KindAddress,
		EntityID: 42,
		RecordID: 7,
	})

	assert.True(t, g.IsReverseEdit(ctx, domain.Origin{System: domain.SystemContent, RecordID: 7}))
	assert.False(t, g.IsReverseEdit(ctx, domain.Origin{System: domain.SystemContent, RecordID: 8}))
	assert.False(t, g.IsReverseEdit(ctx, domain.Origin{System: domain.SystemCRM, EntityID: 42}))
}

func TestReverseEditGuard_CRMTarget(t *testing.T) {
	g := NewReverseEditGuard()
	ctx := WithOrigin(context.Background(), domain.Origin{
		System:   domain.SystemCRM,
		Kind:     domain.KindPhone,
		EntityID: 42,
		RecordID: 7,
	})

	assert.True(t, g.IsReverseEdit(ctx, domain.Origin{System: domain.SystemCRM, Kind: domain.KindAddress, EntityID: 42}))
	assert.False(t, g.IsReverseEdit(ctx, domain.Origin{System: domain.SystemCRM, Kind: domain.KindAttachment, EntityID: 42}),
		"an activity with the same ID is a different parent")
	assert.False(t, g.IsReverseEdit(ctx, domain.Origin{System: domain.SystemCRM, Kind: domain.KindPhone, EntityID: 43}))
}

func TestReverseEditGuard_ForcePropagation(t *testing.T) {
	g := NewReverseEditGuard()
	ctx := WithOrigin(context.Background(), domain.Origin{System: domain.SystemContent, RecordID: 7})
	target := domain.Origin{System: domain.SystemContent, RecordID: 7}

	assert.True(t, g.Suppress(ctx, target, domain.ChildEvent{}))
	assert.False(t, g.Suppress(ForcePropagation(ctx), target, domain.ChildEvent{}))
}

func TestReverseEditGuard_ForceFilter(t *testing.T) {
	g := NewReverseEditGuard()
	g.AddForceFilter(func(_ context.Context, _ domain.Origin, ev domain.ChildEvent) bool {
		return ev.Kind == domain.KindEmail
	})
	ctx := WithOrigin(context.Background(), domain.Origin{System: domain.SystemContent, RecordID: 7})
	target := domain.Origin{System: domain.SystemContent, RecordID: 7}

	assert.False(t, g.Suppress(ctx, target, domain.ChildEvent{Kind: domain.KindEmail}))
	assert.True(t, g.Suppress(ctx, target, domain.ChildEvent{Kind: domain.KindPhone}))
}

func TestOriginFrom(t *testing.T) {
	assert.True(t, OriginFrom(context.Background()).IsZero())

	o := domain.Origin{System: domain.SystemCRM, EntityID: 1}
	assert.Equal(t, o, OriginFrom(WithOrigin(context.Background(), o)))
}
