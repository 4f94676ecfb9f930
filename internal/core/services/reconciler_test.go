package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fieldsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/fieldsync/internal/codecs"
	"github.com/custodia-labs/fieldsync/internal/core/domain"
)

// --- Test helpers ---

func newReconciler(t *testing.T, kind domain.EntityKind, crm *memory.CRM, bus *EventBus, opts ...ReconcilerOption) *RecordSetReconciler {
	t.Helper()
	codec, err := codecs.NewRegistry().Get(kind)
	require.NoError(t, err)
	return NewRecordSetReconciler(codec, crm, bus, opts...)
}

func ops(calls []memory.Call) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Op)
	}
	return out
}

func recordEvents(bus *EventBus) *[]domain.RecordEvent {
	var events []domain.RecordEvent
	bus.Subscribe("recorder", func(_ context.Context, ev domain.RecordEvent) error {
		events = append(events, ev)
		return nil
	})
	return &events
}

// patched applies a result's assignments the way Push does.
func patched(rows domain.FieldValue, res *domain.Result) domain.FieldValue {
	out := rows.Clone()
	for key, rec := range res.Assigned {
		out[key].SetRemoteID(rec.ID)
	}
	return out
}

// slowCRM never answers creates of one phone number.
type slowCRM struct {
	*memory.CRM
	slow string
}

func (s *slowCRM) Create(ctx context.Context, kind domain.EntityKind, payload domain.Payload) (*domain.RemoteRecord, error) {
	if domain.ToString(payload["phone"]) == s.slow {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.CRM.Create(ctx, kind, payload)
}

var addressField = domain.FieldDef{Selector: "field_addresses", Kind: domain.KindAddress}
var phoneField = domain.FieldDef{Selector: "field_phones", Kind: domain.KindPhone}

// --- Content to CRM ---

func TestReconcile_AddressScenario(t *testing.T) {
	crm := memory.NewCRM()
	crm.Seed(domain.KindAddress, map[string]any{"id": 10, "contact_id": 1, "street_address": "A", "is_primary": "1"})
	crm.Seed(domain.KindAddress, map[string]any{"id": 11, "contact_id": 1, "street_address": "B", "is_primary": "0"})
	crm.Seed(domain.KindAddress, map[string]any{"id": 12, "contact_id": 1, "street_address": "C", "is_primary": "0"})
	bus := NewEventBus()
	events := recordEvents(bus)
	r := newReconciler(t, domain.KindAddress, crm, bus)

	rows := domain.FieldValue{
		{"remote_id": int64(11), "is_primary": true},
		{"remote_id": "", "street_address": "New St"},
	}
	res, err := r.Reconcile(context.Background(), 1, addressField, rows)
	require.NoError(t, err)

	calls := crm.Calls()
	assert.Equal(t, []string{"get", "create", "update", "delete", "delete"}, ops(calls))
	assert.Equal(t, int64(11), calls[2].ID)
	assert.Equal(t, "1", calls[2].Payload["is_primary"])
	assert.Equal(t, int64(10), calls[3].ID)
	assert.Equal(t, int64(12), calls[4].ID)

	require.Contains(t, res.Assigned, 1)
	created := res.Assigned[1]
	assert.Equal(t, "New St", created.Fields["street_address"])
	assert.Equal(t, []int64{10, 12}, res.Removed)
	assert.Equal(t, domain.Stats{Created: 1, Updated: 1, Deleted: 2}, res.Stats)
	assert.True(t, res.Touched())

	value := patched(rows, res)
	id, ok := value[1].RemoteID()
	assert.True(t, ok)
	assert.Equal(t, created.ID, id)

	require.Len(t, *events, 4)
	types := []domain.EventType{}
	for _, ev := range *events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventChildCreated,
		domain.EventChildUpdated,
		domain.EventChildDeleted,
		domain.EventChildDeleted,
	}, types)

	ev := (*events)[0]
	assert.Equal(t, 1, ev.Key)
	assert.Equal(t, "New St", ev.Value["street_address"])
	assert.Equal(t, created.ID, ev.Record.ID)
	assert.Equal(t, int64(1), ev.ParentID)
	assert.Equal(t, "field_addresses", ev.Field)
	assert.Equal(t, int64(10), (*events)[2].RemoteID)
}

func TestReconcile_EmptyCurrentCreatesEverything(t *testing.T) {
	crm := memory.NewCRM()
	r := newReconciler(t, domain.KindPhone, crm, nil)

	rows := domain.FieldValue{{"phone": "1"}, {"phone": "2"}}
	res, err := r.Reconcile(context.Background(), 3, phoneField, rows)
	require.NoError(t, err)

	assert.Len(t, res.Assigned, 2)
	assert.Equal(t, []string{"get", "create", "create"}, ops(crm.Calls()))
	for _, rec := range crm.Records(domain.KindPhone) {
		assert.Equal(t, int64(3), rec.ParentID)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	crm := memory.NewCRM()
	r := newReconciler(t, domain.KindPhone, crm, nil)
	ctx := context.Background()

	rows := domain.FieldValue{
		{"phone": "555 0100", "is_primary": true, "phone_type": 1},
		{"phone": "555 0101", "is_primary": false},
	}
	res, err := r.Reconcile(ctx, 1, phoneField, rows)
	require.NoError(t, err)
	rows = patched(rows, res)

	writes := crm.Writes()
	res, err = r.Reconcile(ctx, 1, phoneField, rows)
	require.NoError(t, err)

	assert.Equal(t, writes, crm.Writes(), "second pass writes nothing")
	assert.False(t, res.Touched())
	assert.Equal(t, 2, res.Skipped)
	assert.Empty(t, res.Assigned)
}

func TestReconcile_ChangedRowIsUpdated(t *testing.T) {
	crm := memory.NewCRM()
	rec := crm.Seed(domain.KindPhone, map[string]any{"contact_id": 1, "phone": "1"})
	r := newReconciler(t, domain.KindPhone, crm, nil)

	res, err := r.Reconcile(context.Background(), 1, phoneField, domain.FieldValue{
		{"remote_id": rec.ID, "phone": "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Updated)

	got, _ := crm.Record(domain.KindPhone, rec.ID)
	assert.Equal(t, "2", got.Fields["phone"])
}

func TestReconcile_RowFailureDoesNotStopThePass(t *testing.T) {
	crm := memory.NewCRM()
	stale := crm.Seed(domain.KindPhone, map[string]any{"contact_id": 1, "phone": "old"})
	boom := errors.New("boom")
	crm.SetFault(func(c memory.Call) error {
		if c.Op == memory.OpCreate && c.Payload["phone"] == "bad" {
			return boom
		}
		return nil
	})
	r := newReconciler(t, domain.KindPhone, crm, nil)

	res, err := r.Reconcile(context.Background(), 1, phoneField, domain.FieldValue{
		{"phone": "bad"},
		{"phone": "good"},
	})
	require.NoError(t, err)

	require.Len(t, res.Failures, 1)
	f := res.Failures[0]
	assert.Equal(t, domain.ActionCreate, f.Op)
	assert.Equal(t, 0, f.Key)
	assert.Equal(t, "bad", f.Payload["phone"])
	assert.ErrorIs(t, f, boom)

	assert.NotContains(t, res.Assigned, 0)
	assert.Contains(t, res.Assigned, 1)
	assert.Equal(t, []int64{stale.ID}, res.Removed)
	assert.Equal(t, 1, res.Stats.Failed)
}

func TestReconcile_NotInitializedAbortsBeforeWriting(t *testing.T) {
	crm := memory.NewCRM()
	crm.Seed(domain.KindPhone, map[string]any{"contact_id": 1, "phone": "old"})
	crm.SetDown(true)
	r := newReconciler(t, domain.KindPhone, crm, nil)

	res, err := r.Reconcile(context.Background(), 1, phoneField, domain.FieldValue{{"phone": "new"}})

	assert.ErrorIs(t, err, domain.ErrNotInitialized)
	assert.Nil(t, res)
	assert.Zero(t, crm.Writes())
}

func TestReconcile_NotInitializedMidPassStops(t *testing.T) {
	crm := memory.NewCRM()
	crm.Seed(domain.KindPhone, map[string]any{"contact_id": 1, "phone": "old"})
	crm.SetFault(func(c memory.Call) error {
		if c.Op == memory.OpCreate {
			return domain.ErrNotInitialized
		}
		return nil
	})
	r := newReconciler(t, domain.KindPhone, crm, nil)

	res, err := r.Reconcile(context.Background(), 1, phoneField, domain.FieldValue{{"phone": "a"}, {"phone": "b"}})

	assert.ErrorIs(t, err, domain.ErrNotInitialized)
	require.NotNil(t, res)
	assert.Len(t, res.Failures, 1)
	assert.Equal(t, []string{"get", "create"}, ops(crm.Calls()))
}

func TestReconcile_CallTimeoutIsTransientRowFailure(t *testing.T) {
	crm := &slowCRM{CRM: memory.NewCRM(), slow: "slow"}
	codec, _ := codecs.NewRegistry().Get(domain.KindPhone)
	r := NewRecordSetReconciler(codec, crm, nil, WithCallTimeout(20*time.Millisecond))

	res, err := r.Reconcile(context.Background(), 1, phoneField, domain.FieldValue{{"phone": "slow"}, {"phone": "fast"}})
	require.NoError(t, err)

	require.Len(t, res.Failures, 1)
	assert.ErrorIs(t, res.Failures[0], domain.ErrTransient)
	assert.ErrorIs(t, res.Failures[0], context.DeadlineExceeded)
	assert.Contains(t, res.Assigned, 1)
}

func TestReconcile_CancellationKeepsCommittedWork(t *testing.T) {
	crm := memory.NewCRM()
	stale := crm.Seed(domain.KindPhone, map[string]any{"contact_id": 1, "phone": "old"})
	bus := NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Subscribe("cancel", func(context.Context, domain.RecordEvent) error {
		cancel()
		return nil
	})
	r := newReconciler(t, domain.KindPhone, crm, bus)

	res, err := r.Reconcile(ctx, 1, phoneField, domain.FieldValue{{"phone": "a"}, {"phone": "b"}})

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Len(t, res.Assigned, 1)
	_, stillThere := crm.Record(domain.KindPhone, stale.ID)
	assert.True(t, stillThere, "deletes never ran")
}

func TestReconcile_DuplicateRemoteID(t *testing.T) {
	crm := memory.NewCRM()
	rec := crm.Seed(domain.KindPhone, map[string]any{"contact_id": 1, "phone": "0"})
	r := newReconciler(t, domain.KindPhone, crm, nil)

	res, err := r.Reconcile(context.Background(), 1, phoneField, domain.FieldValue{
		{"remote_id": rec.ID, "phone": "first"},
		{"remote_id": rec.ID, "phone": "second"},
	})
	require.NoError(t, err)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.Failures[0].Key)
	assert.ErrorIs(t, res.Failures[0], domain.ErrInvalidInput)
	assert.Equal(t, []string{"get", "update"}, ops(crm.Calls()))

	got, _ := crm.Record(domain.KindPhone, rec.ID)
	assert.Equal(t, "first", got.Fields["phone"])
	assert.Len(t, crm.Records(domain.KindPhone), 1)
}

func TestReconcile_UnknownRemoteIDIsRecreated(t *testing.T) {
	crm := memory.NewCRM()
	r := newReconciler(t, domain.KindEmail, crm, nil)

	res, err := r.Reconcile(context.Background(), 1, domain.FieldDef{Selector: "field_email", Kind: domain.KindEmail},
		domain.FieldValue{{"remote_id": int64(99), "email": "a@example.org"}})
	require.NoError(t, err)

	require.Contains(t, res.Assigned, 0)
	assert.NotEqual(t, int64(99), res.Assigned[0].ID)
	assert.Empty(t, res.Failures)
}

func TestReconcile_FieldFilterScopesTheSet(t *testing.T) {
	crm := memory.NewCRM()
	home := crm.Seed(domain.KindAddress, map[string]any{"contact_id": 1, "location_type_id": 1, "city": "Home"})
	work := crm.Seed(domain.KindAddress, map[string]any{"contact_id": 1, "location_type_id": 2, "city": "Work"})
	r := newReconciler(t, domain.KindAddress, crm, nil)

	field := domain.FieldDef{
		Selector: "field_work_address",
		Kind:     domain.KindAddress,
		Filter:   domain.Filter{"location_type_id": 2},
	}
	res, err := r.Reconcile(context.Background(), 1, field, domain.FieldValue{{"city": "New Work"}})
	require.NoError(t, err)

	assert.Equal(t, []int64{work.ID}, res.Removed)
	_, ok := crm.Record(domain.KindAddress, home.ID)
	assert.True(t, ok, "records outside the filter are untouched")

	created := res.Assigned[0]
	assert.Equal(t, "2", domain.ToString(created.Fields["location_type_id"]))
	assert.Equal(t, "2", domain.ToString(crm.Calls()[0].Filter["location_type_id"]))
}

func TestReconcile_GetFailureAbortsPass(t *testing.T) {
	crm := memory.NewCRM()
	crm.SetFault(func(c memory.Call) error {
		if c.Op == memory.OpGet {
			return domain.ErrTransient
		}
		return nil
	})
	r := newReconciler(t, domain.KindPhone, crm, nil)

	res, err := r.Reconcile(context.Background(), 1, phoneField, domain.FieldValue{{"phone": "1"}})
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Nil(t, res)
	assert.Zero(t, crm.Writes())
}

// --- CRM to Content ---

func childEvent(op domain.Operation, kind domain.EntityKind, id, parentID int64, fields map[string]any) domain.ChildEvent {
	f := map[string]any{"id": id}
	for k, v := range fields {
		f[k] = v
	}
	return domain.ChildEvent{
		Op:       op,
		Kind:     kind,
		EntityID: id,
		ParentID: parentID,
		Record:   domain.RemoteRecord{ID: id, ParentID: parentID, Fields: f},
		System:   domain.SystemCRM,
	}
}

func TestApply_CreateEnforcesPrimary(t *testing.T) {
	r := newReconciler(t, domain.KindPhone, memory.NewCRM(), nil)
	value := domain.FieldValue{{"remote_id": int64(1), "phone": "1", "is_primary": true}}

	out, changed, err := r.Apply(context.Background(), value, phoneField,
		childEvent(domain.OpCreate, domain.KindPhone, 2, 5, map[string]any{"phone": "2", "is_primary": "1"}))
	require.NoError(t, err)

	assert.True(t, changed)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out.PrimaryCount())
	assert.True(t, out[1].IsPrimary())
	assert.Equal(t, "2", out[1]["phone"])
}

func TestApply_EditOfUnknownRecordIsCreate(t *testing.T) {
	r := newReconciler(t, domain.KindEmail, memory.NewCRM(), nil)

	out, changed, err := r.Apply(context.Background(), nil, domain.FieldDef{Selector: "field_email", Kind: domain.KindEmail},
		childEvent(domain.OpEdit, domain.KindEmail, 8, 5, map[string]any{"email": " x@example.org "}))
	require.NoError(t, err)

	assert.True(t, changed)
	require.Len(t, out, 1)
	assert.Equal(t, "x@example.org", out[0]["email"])
	id, _ := out[0].RemoteID()
	assert.Equal(t, int64(8), id)
}

func TestApply_RecordLeavingFilterIsRemoved(t *testing.T) {
	r := newReconciler(t, domain.KindAddress, memory.NewCRM(), nil)
	field := domain.FieldDef{Selector: "field_home", Kind: domain.KindAddress, Filter: domain.Filter{"location_type_id": 1}}
	value := domain.FieldValue{{"remote_id": int64(3), "city": "Home"}}

	out, changed, err := r.Apply(context.Background(), value, field,
		childEvent(domain.OpEdit, domain.KindAddress, 3, 5, map[string]any{"location_type_id": 2, "city": "Home"}))
	require.NoError(t, err)

	assert.True(t, changed)
	assert.Empty(t, out)
}

func TestApply_DeleteOfUnknownRecordIsNoop(t *testing.T) {
	r := newReconciler(t, domain.KindPhone, memory.NewCRM(), nil)
	value := domain.FieldValue{{"remote_id": int64(1)}}

	out, changed, err := r.Apply(context.Background(), value, phoneField,
		childEvent(domain.OpDelete, domain.KindPhone, 9, 5, nil))
	require.NoError(t, err)

	assert.False(t, changed)
	assert.Equal(t, value, out)
}
