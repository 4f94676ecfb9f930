package memory

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/fieldsync/internal/codecs"
	"github.com/custodia-labs/fieldsync/internal/core/domain"
	"github.com/custodia-labs/fieldsync/internal/core/ports/driven"
)

// Ensure CRM implements the interface.
var _ driven.CRMClient = (*CRM)(nil)

// CRM operation names, as recorded in Call.Op.
const (
	OpGet    = "get"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Call is one request the fake CRM received.
type Call struct {
	Op      string
	Kind    domain.EntityKind
	ID      int64
	Filter  domain.Filter
	Payload domain.Payload
}

// CRM is an in-memory driven.CRMClient.
//
// Like the real CRM it keeps a single primary record per parent and
// entity, stores cleared text as empty, and gives uploaded attachments a
// path of its own. Phone kinds share one table.
type CRM struct {
	mu             sync.Mutex
	nextID         int64
	tables         map[string]map[int64]domain.RemoteRecord
	calls          []Call
	down           bool
	delay          time.Duration
	fault          func(Call) error
	maxAttachments int
	codecs         *codecs.Registry

	hook func(ctx context.Context, ev domain.RawEvent)
}

// NewCRM creates an empty fake CRM. IDs start at 1.
func NewCRM() *CRM {
	return &CRM{
		nextID: 1,
		tables: make(map[string]map[int64]domain.RemoteRecord),
		codecs: codecs.NewRegistry(),
	}
}

// OnWrite sets a function called after every successful write with the
// notification the CRM would emit. It runs synchronously, outside the
// lock, with the caller's context.
func (c *CRM) OnWrite(fn func(ctx context.Context, ev domain.RawEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hook = fn
}

// SetDown makes every call fail with domain.ErrNotInitialized.
func (c *CRM) SetDown(down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.down = down
}

// SetDelay makes every call take d, or until its context is done.
func (c *CRM) SetDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
}

// SetFault installs a function that may fail any call. Nil clears it.
func (c *CRM) SetFault(fn func(Call) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fault = fn
}

// SetMaxAttachments caps attachments per parent. Zero means no cap.
func (c *CRM) SetMaxAttachments(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxAttachments = n
}

// Seed stores a record directly, bypassing hooks and faults. An "id"
// entry in fields is kept.
func (c *CRM) Seed(kind domain.EntityKind, fields map[string]any) domain.RemoteRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.insert(kind, domain.Payload(fields).Clone())
	return rec.Clone()
}

// Records returns every record of kind's table, ordered by ID.
func (c *CRM) Records(kind domain.EntityKind) []domain.RemoteRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.match(kind, nil)
}

// Record returns one record.
func (c *CRM) Record(kind domain.EntityKind, id int64) (domain.RemoteRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.tables[kind.Object()][id]
	if !ok {
		return domain.RemoteRecord{}, false
	}
	return rec.Clone(), true
}

// Calls returns every call received so far.
func (c *CRM) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// Writes counts create, update and delete calls received.
func (c *CRM) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Op != OpGet {
			n++
		}
	}
	return n
}

// ResetCalls forgets recorded calls.
func (c *CRM) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// Get returns the records of kind matching filter, ordered by ID.
func (c *CRM) Get(ctx context.Context, kind domain.EntityKind, filter domain.Filter) ([]domain.RemoteRecord, error) {
	if err := c.begin(ctx, Call{Op: OpGet, Kind: kind, Filter: filter}); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.match(kind, filter), nil
}

// Create stores a new record.
func (c *CRM) Create(ctx context.Context, kind domain.EntityKind, payload domain.Payload) (*domain.RemoteRecord, error) {
	if err := c.begin(ctx, Call{Op: OpCreate, Kind: kind, Payload: payload.Clone()}); err != nil {
		return nil, err
	}
	if _, ok := payload["id"]; ok {
		return nil, fmt.Errorf("%w: create with id", domain.ErrRejected)
	}

	c.mu.Lock()
	codec, err := c.codecs.Get(kind)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	parentID := domain.ToInt(payload[codec.ParentKey()])
	if parentID == 0 {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is required", domain.ErrRejected, codec.ParentKey())
	}
	if kind == domain.KindAttachment && c.maxAttachments > 0 &&
		len(c.match(kind, domain.Filter{codec.ParentKey(): parentID})) >= c.maxAttachments {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: attachment limit of %d reached", domain.ErrRejected, c.maxAttachments)
	}
	rec := c.insert(kind, clean(payload))
	out := rec.Clone()
	hook := c.hook
	c.mu.Unlock()

	c.notify(ctx, hook, OpCreate, kind, out)
	return &out, nil
}

// Update changes the record named by payload["id"].
func (c *CRM) Update(ctx context.Context, kind domain.EntityKind, payload domain.Payload) (*domain.RemoteRecord, error) {
	id := domain.ToInt(payload["id"])
	if err := c.begin(ctx, Call{Op: OpUpdate, Kind: kind, ID: id, Payload: payload.Clone()}); err != nil {
		return nil, err
	}

	c.mu.Lock()
	table := c.tables[kind.Object()]
	rec, ok := table[id]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s %d: %w", kind, id, domain.ErrNotFound)
	}
	for k, v := range clean(payload) {
		rec.Fields[k] = v
	}
	table[id] = rec
	c.demote(kind, rec)
	out := rec.Clone()
	hook := c.hook
	c.mu.Unlock()

	c.notify(ctx, hook, OpUpdate, kind, out)
	return &out, nil
}

// Delete removes a record.
func (c *CRM) Delete(ctx context.Context, kind domain.EntityKind, id int64) error {
	if err := c.begin(ctx, Call{Op: OpDelete, Kind: kind, ID: id}); err != nil {
		return err
	}

	c.mu.Lock()
	table := c.tables[kind.Object()]
	rec, ok := table[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%s %d: %w", kind, id, domain.ErrNotFound)
	}
	delete(table, id)
	hook := c.hook
	c.mu.Unlock()

	c.notify(ctx, hook, OpDelete, kind, rec)
	return nil
}

// begin records the call and applies outage, latency and faults.
func (c *CRM) begin(ctx context.Context, call Call) error {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	down, delay, fault := c.down, c.delay, c.fault
	c.mu.Unlock()

	if down {
		return domain.ErrNotInitialized
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if fault != nil {
		return fault(call)
	}
	return nil
}

// insert stores fields as a new record, keeping an id it already carries.
// Caller holds the lock.
func (c *CRM) insert(kind domain.EntityKind, fields domain.Payload) domain.RemoteRecord {
	id := domain.ToInt(fields["id"])
	if id <= 0 {
		id = c.nextID
	}
	if id >= c.nextID {
		c.nextID = id + 1
	}
	fields["id"] = id

	var parentID int64
	if codec, err := c.codecs.Get(kind); err == nil {
		parentID = domain.ToInt(fields[codec.ParentKey()])
	}
	if kind == domain.KindAttachment {
		if upload := domain.ToString(fields[codecs.AttachmentUpload]); upload != "" {
			fields[codecs.AttachmentPath] = fmt.Sprintf("crm/%d/%s", id, path.Base(upload))
		}
		delete(fields, codecs.AttachmentUpload)
	}

	rec := domain.RemoteRecord{ID: id, ParentID: parentID, Fields: map[string]any(fields)}
	table := c.tables[kind.Object()]
	if table == nil {
		table = make(map[int64]domain.RemoteRecord)
		c.tables[kind.Object()] = table
	}
	table[id] = rec
	c.demote(kind, rec)
	return rec
}

// demote clears the primary flag on rec's siblings when rec is primary.
// Caller holds the lock.
func (c *CRM) demote(kind domain.EntityKind, rec domain.RemoteRecord) {
	if !kind.HasPrimary() || !domain.ToBool(rec.Fields["is_primary"]) {
		return
	}
	for id, other := range c.tables[kind.Object()] {
		if id == rec.ID || other.ParentID != rec.ParentID {
			continue
		}
		if domain.ToBool(other.Fields["is_primary"]) {
			other.Fields["is_primary"] = "0"
		}
	}
}

// match returns filtered records ordered by ID. Caller holds the lock.
func (c *CRM) match(kind domain.EntityKind, filter domain.Filter) []domain.RemoteRecord {
	table := c.tables[kind.Object()]
	out := make([]domain.RemoteRecord, 0, len(table))
	for _, rec := range table {
		if filter.Matches(rec.Fields) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *CRM) notify(
	ctx context.Context,
	hook func(context.Context, domain.RawEvent),
	op string,
	kind domain.EntityKind,
	rec domain.RemoteRecord,
) {
	if hook == nil {
		return
	}
	if op == OpUpdate {
		op = string(domain.OpEdit)
	}
	hook(ctx, domain.RawEvent{
		System:   domain.SystemCRM,
		Op:       op,
		Object:   kind.Object(),
		ObjectID: rec.ID,
		Payload:  rec.Clone().Fields,
	})
}

// clean copies payload without its id, storing the empty sentinel as "".
func clean(payload domain.Payload) domain.Payload {
	out := make(domain.Payload, len(payload))
	for k, v := range payload {
		if k == "id" {
			continue
		}
		if s, ok := v.(string); ok && s == codecs.EmptySentinel {
			v = ""
		}
		out[k] = v
	}
	return out
}
