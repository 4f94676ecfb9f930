package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
)

func TestCRM_CreateGetUpdateDelete(t *testing.T) {
	crm := NewCRM()
	ctx := context.Background()

	rec, err := crm.Create(ctx, domain.KindEmail, domain.Payload{"contact_id": int64(7), "email": "a@example.org"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)
	assert.Equal(t, int64(7), rec.ParentID)

	recs, err := crm.Get(ctx, domain.KindEmail, domain.Filter{"contact_id": 7})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a@example.org", recs[0].Fields["email"])

	_, err = crm.Update(ctx, domain.KindEmail, domain.Payload{"id": rec.ID, "email": "b@example.org", "on_hold": "null"})
	require.NoError(t, err)
	got, ok := crm.Record(domain.KindEmail, rec.ID)
	require.True(t, ok)
	assert.Equal(t, "b@example.org", got.Fields["email"])
	assert.Equal(t, "", got.Fields["on_hold"], "empty sentinel is stored as empty")

	require.NoError(t, crm.Delete(ctx, domain.KindEmail, rec.ID))
	recs, err = crm.Get(ctx, domain.KindEmail, domain.Filter{"contact_id": 7})
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, 3, crm.Writes())
}

func TestCRM_Get_EmptyIsNotAnError(t *testing.T) {
	crm := NewCRM()
	recs, err := crm.Get(context.Background(), domain.KindAddress, domain.Filter{"contact_id": 1})
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestCRM_Create_Rejections(t *testing.T) {
	crm := NewCRM()
	ctx := context.Background()

	_, err := crm.Create(ctx, domain.KindPhone, domain.Payload{"id": 4, "contact_id": 1})
	assert.ErrorIs(t, err, domain.ErrRejected)

	_, err = crm.Create(ctx, domain.KindPhone, domain.Payload{"phone": "555"})
	assert.ErrorIs(t, err, domain.ErrRejected)
}

func TestCRM_UpdateDelete_NotFound(t *testing.T) {
	crm := NewCRM()
	ctx := context.Background()

	_, err := crm.Update(ctx, domain.KindPhone, domain.Payload{"id": 99})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, crm.Delete(ctx, domain.KindPhone, 99), domain.ErrNotFound)
}

func TestCRM_PrimaryIsUniquePerParent(t *testing.T) {
	crm := NewCRM()
	ctx := context.Background()

	first := crm.Seed(domain.KindPhone, map[string]any{"contact_id": 1, "phone": "1", "is_primary": "1"})
	other := crm.Seed(domain.KindPhone, map[string]any{"contact_id": 2, "phone": "2", "is_primary": "1"})

	_, err := crm.Create(ctx, domain.KindPhone, domain.Payload{"contact_id": 1, "phone": "3", "is_primary": "1"})
	require.NoError(t, err)

	got, _ := crm.Record(domain.KindPhone, first.ID)
	assert.False(t, domain.ToBool(got.Fields["is_primary"]))
	got, _ = crm.Record(domain.KindPhone, other.ID)
	assert.True(t, domain.ToBool(got.Fields["is_primary"]), "other parents are untouched")
}

func TestCRM_PhoneKindsShareATable(t *testing.T) {
	crm := NewCRM()
	rec := crm.Seed(domain.KindPhone, map[string]any{"contact_id": 1, "phone": "1", "phone_type_id": 2})

	recs, err := crm.Get(context.Background(), domain.KindPhoneSingle, domain.Filter{"contact_id": 1, "phone_type_id": 2})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec.ID, recs[0].ID)
}

func TestCRM_AttachmentPathAndLimit(t *testing.T) {
	crm := NewCRM()
	crm.SetMaxAttachments(1)
	ctx := context.Background()

	rec, err := crm.Create(ctx, domain.KindAttachment, domain.Payload{"entity_id": 3, "file_path": "files/report.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "crm/1/report.pdf", rec.Fields["path"])
	assert.NotContains(t, rec.Fields, "file_path")

	_, err = crm.Create(ctx, domain.KindAttachment, domain.Payload{"entity_id": 3, "file_path": "files/other.pdf"})
	assert.ErrorIs(t, err, domain.ErrRejected)
}

func TestCRM_DownAndFaults(t *testing.T) {
	crm := NewCRM()
	ctx := context.Background()

	crm.SetDown(true)
	_, err := crm.Get(ctx, domain.KindEmail, nil)
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
	crm.SetDown(false)

	boom := errors.New("boom")
	crm.SetFault(func(c Call) error {
		if c.Op == OpCreate {
			return boom
		}
		return nil
	})
	_, err = crm.Create(ctx, domain.KindEmail, domain.Payload{"contact_id": 1})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, crm.Records(domain.KindEmail))
	assert.Len(t, crm.Calls(), 2)

	crm.ResetCalls()
	assert.Empty(t, crm.Calls())
}

func TestCRM_DelayRespectsDeadline(t *testing.T) {
	crm := NewCRM()
	crm.SetDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := crm.Get(ctx, domain.KindEmail, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCRM_OnWriteEmitsNotifications(t *testing.T) {
	crm := NewCRM()
	ctx := context.Background()

	var events []domain.RawEvent
	crm.OnWrite(func(_ context.Context, ev domain.RawEvent) {
		events = append(events, ev)
	})

	rec, err := crm.Create(ctx, domain.KindPhoneSingle, domain.Payload{"contact_id": 1, "phone": "555"})
	require.NoError(t, err)
	_, err = crm.Update(ctx, domain.KindPhoneSingle, domain.Payload{"id": rec.ID, "phone": "556"})
	require.NoError(t, err)
	require.NoError(t, crm.Delete(ctx, domain.KindPhoneSingle, rec.ID))

	require.Len(t, events, 3)
	assert.Equal(t, []string{"create", "edit", "delete"}, []string{events[0].Op, events[1].Op, events[2].Op})
	assert.Equal(t, "Phone", events[0].Object)
	assert.Equal(t, rec.ID, events[2].ObjectID)
	assert.Equal(t, "556", events[2].Payload["phone"])
}

func TestCRM_SeedKeepsExplicitID(t *testing.T) {
	crm := NewCRM()
	crm.Seed(domain.KindAddress, map[string]any{"id": 10, "contact_id": 1})

	rec, err := crm.Create(context.Background(), domain.KindAddress, domain.Payload{"contact_id": 1})
	require.NoError(t, err)
	assert.Equal(t, int64(11), rec.ID)
}
