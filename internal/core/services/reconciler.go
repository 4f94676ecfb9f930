package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/fieldsync/internal/codecs"
	"github.com/custodia-labs/fieldsync/internal/core/domain"
	"github.com/custodia-labs/fieldsync/internal/core/ports/driven"
	"github.com/custodia-labs/fieldsync/internal/logger"
	"github.com/custodia-labs/fieldsync/internal/metrics"
)

// DefaultCallTimeout bounds each individual CRM call.
const DefaultCallTimeout = 15 * time.Second

// Pass result labels.
const (
	passTouched   = "touched"
	passUntouched = "untouched"
	passAborted   = "aborted"
)

// UpdateStrategy performs the CRM writes behind creates and updates.
// Kinds whose records carry more than plain sub-fields plug in their own.
type UpdateStrategy interface {
	// Create creates the record for row. The payload sent is returned even
	// when the call fails so it can be reported.
	Create(ctx context.Context, p *Pass, row domain.Row) (*domain.RemoteRecord, domain.Payload, error)

	// Update brings a.Current in line with a.Row.
	Update(ctx context.Context, p *Pass, a domain.Action) (Outcome, error)
}

// Outcome is what an update did.
type Outcome struct {
	// Record is the record now backing the row. Nil when nothing changed.
	Record *domain.RemoteRecord

	// Replaced is set when the record was deleted and recreated under a new ID.
	Replaced bool

	// Payload is what was sent.
	Payload domain.Payload
}

// PlanHook adjusts incoming rows before they are planned. It must return
// new rows rather than modify its input.
type PlanHook func(p *Pass, rows domain.FieldValue, current []domain.RemoteRecord) domain.FieldValue

// ApplyHook carries Content-side state the codec cannot derive from a CRM
// record alone.
type ApplyHook interface {
	// Prepare completes row, built from ev, before it is applied. existing
	// is the row currently holding the record, or nil.
	Prepare(ctx context.Context, existing domain.Row, ev domain.ChildEvent, row domain.Row) (domain.Row, error)

	// Forget is called for a row being removed from the field.
	Forget(ctx context.Context, row domain.Row)
}

// Pass is one Content to CRM reconciliation of a single field.
type Pass struct {
	ParentID int64
	Field    domain.FieldDef

	codec codecs.Codec
	calls crmCalls
}

// Codec returns the codec for the pass's kind.
func (p *Pass) Codec() codecs.Codec {
	return p.codec
}

// Filter returns the CRM get filter: the parent key plus the field's discriminators.
func (p *Pass) Filter() domain.Filter {
	f := domain.Filter{p.codec.ParentKey(): p.ParentID}
	for k, v := range p.Field.Filter {
		f[k] = v
	}
	return f
}

// Payload encodes row for the CRM, tied to the pass's parent and field.
func (p *Pass) Payload(row domain.Row, existingID int64) domain.Payload {
	payload := p.codec.ToRemote(row, existingID)
	payload.Merge(p.Field.Filter)
	payload[p.codec.ParentKey()] = p.ParentID
	return payload
}

// Create issues a bounded CRM create.
func (p *Pass) Create(ctx context.Context, payload domain.Payload) (*domain.RemoteRecord, error) {
	return p.calls.create(ctx, payload)
}

// Update issues a bounded CRM update.
func (p *Pass) Update(ctx context.Context, payload domain.Payload) (*domain.RemoteRecord, error) {
	return p.calls.update(ctx, payload)
}

// Delete issues a bounded CRM delete.
func (p *Pass) Delete(ctx context.Context, id int64) error {
	return p.calls.remove(ctx, id)
}

// fieldStrategy writes plain sub-field records.
type fieldStrategy struct{}

func (fieldStrategy) Create(ctx context.Context, p *Pass, row domain.Row) (*domain.RemoteRecord, domain.Payload, error) {
	payload := p.Payload(row, 0)
	rec, err := p.Create(ctx, payload)
	return rec, payload, err
}

func (fieldStrategy) Update(ctx context.Context, p *Pass, a domain.Action) (Outcome, error) {
	if a.Current != nil && !codecs.Changed(p.codec, a.Row, *a.Current) {
		return Outcome{}, nil
	}
	payload := p.Payload(a.Row, a.RemoteID)
	rec, err := p.Update(ctx, payload)
	if err != nil {
		return Outcome{Payload: payload}, err
	}
	return Outcome{Record: rec, Payload: payload}, nil
}

// ReconcilerOption configures a RecordSetReconciler.
type ReconcilerOption func(*RecordSetReconciler)

// WithCallTimeout bounds each CRM call. Zero disables the bound.
func WithCallTimeout(d time.Duration) ReconcilerOption {
	return func(r *RecordSetReconciler) { r.timeout = d }
}

// WithUpdateStrategy replaces the default create/update behaviour.
func WithUpdateStrategy(s UpdateStrategy) ReconcilerOption {
	return func(r *RecordSetReconciler) { r.strategy = s }
}

// WithPlanHook sets a hook run on incoming rows before planning.
func WithPlanHook(h PlanHook) ReconcilerOption {
	return func(r *RecordSetReconciler) { r.planHook = h }
}

// WithApplyHook sets a hook run on CRM changes before they are applied.
func WithApplyHook(h ApplyHook) ReconcilerOption {
	return func(r *RecordSetReconciler) { r.applyHook = h }
}

// RecordSetReconciler keeps one kind's Content field values and CRM
// records in agreement, in both directions.
type RecordSetReconciler struct {
	codec     codecs.Codec
	crm       driven.CRMClient
	bus       *EventBus
	strategy  UpdateStrategy
	planHook  PlanHook
	applyHook ApplyHook
	timeout   time.Duration
}

// NewRecordSetReconciler creates a reconciler for codec's kind.
// bus may be nil when no events are wanted.
func NewRecordSetReconciler(
	codec codecs.Codec,
	crm driven.CRMClient,
	bus *EventBus,
	opts ...ReconcilerOption,
) *RecordSetReconciler {
	r := &RecordSetReconciler{
		codec:    codec,
		crm:      crm,
		bus:      bus,
		strategy: fieldStrategy{},
		timeout:  DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Kind returns the entity kind this reconciler handles.
func (r *RecordSetReconciler) Kind() domain.EntityKind {
	return r.codec.Kind()
}

// Reconcile pushes a field value to the CRM.
//
// The CRM records under parentID matching the field's filter are fetched
// and compared with rows. Rows without a remote_id are created, rows whose
// remote_id is known are updated when they differ, and every record no row
// references is deleted. Buckets run in that order.
//
// A failing write is recorded in the result and the pass carries on. The
// pass stops early when the CRM is unavailable or ctx is done; the result
// then holds what was committed so far alongside the error.
func (r *RecordSetReconciler) Reconcile(
	ctx context.Context,
	parentID int64,
	field domain.FieldDef,
	rows domain.FieldValue,
) (*domain.Result, error) {
	kind := string(r.Kind())
	p := &Pass{
		ParentID: parentID,
		Field:    field,
		codec:    r.codec,
		calls:    crmCalls{kind: r.Kind(), client: r.crm, timeout: r.timeout},
	}

	current, err := p.calls.get(ctx, p.Filter())
	if err != nil {
		metrics.ReconcilePasses.WithLabelValues(kind, passAborted).Inc()
		r.logFailure(ctx, p, "get", 0, domain.Payload(p.Filter()), err)
		return nil, fmt.Errorf("get %s records of %d: %w", kind, parentID, err)
	}

	planned := rows
	if r.planHook != nil {
		planned = r.planHook(p, rows, current)
	}
	plan := BuildPlan(current, planned)

	logger.Debug("Reconcile %s %s for %d: %d create, %d update, %d delete",
		kind, field.Selector, parentID, len(plan.Creates), len(plan.Updates), len(plan.Deletes))

	res := domain.NewResult()
	adopt(res, rows, planned, current)

	for _, dup := range plan.Duplicates {
		r.fail(ctx, p, res, dup, nil,
			fmt.Errorf("%w: remote_id %d is already held by an earlier row", domain.ErrInvalidInput, dup.RemoteID))
	}

	runErr := r.run(ctx, p, plan, res)

	switch {
	case runErr != nil:
		metrics.ReconcilePasses.WithLabelValues(kind, passAborted).Inc()
		return res, fmt.Errorf("reconcile %s %s: %w", kind, field.Selector, runErr)
	case res.Touched():
		metrics.ReconcilePasses.WithLabelValues(kind, passTouched).Inc()
	default:
		metrics.ReconcilePasses.WithLabelValues(kind, passUntouched).Inc()
	}
	return res, nil
}

// run executes the plan bucket by bucket.
func (r *RecordSetReconciler) run(ctx context.Context, p *Pass, plan *domain.Plan, res *domain.Result) error {
	for _, a := range plan.Creates {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, payload, err := r.strategy.Create(ctx, p, a.Row)
		if err != nil {
			r.fail(ctx, p, res, a, payload, err)
			if stop(ctx, err) {
				return err
			}
			continue
		}
		res.Records = append(res.Records, *rec)
		res.Assigned[a.Key] = *rec
		res.Stats.Created++
		r.succeed(ctx, p, domain.EventChildCreated, a, rec)
	}

	for _, a := range plan.Updates {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := r.strategy.Update(ctx, p, a)
		if err != nil {
			r.fail(ctx, p, res, a, out.Payload, err)
			if stop(ctx, err) {
				return err
			}
			continue
		}
		if out.Record == nil {
			res.Skipped++
			res.Stats.Skipped++
			metrics.ReconcileActions.WithLabelValues(string(r.Kind()), string(a.Type), metrics.OutcomeSkipped).Inc()
			continue
		}
		res.Records = append(res.Records, *out.Record)
		if out.Replaced {
			res.Assigned[a.Key] = *out.Record
		}
		res.Stats.Updated++
		r.succeed(ctx, p, domain.EventChildUpdated, a, out.Record)
	}

	for _, a := range plan.Deletes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Delete(ctx, a.RemoteID); err != nil {
			r.fail(ctx, p, res, a, nil, err)
			if stop(ctx, err) {
				return err
			}
			continue
		}
		res.Removed = append(res.Removed, a.RemoteID)
		res.Stats.Deleted++
		r.succeed(ctx, p, domain.EventChildDeleted, a, a.Current)
	}
	return nil
}

// stop reports whether a failed write ends the pass.
func stop(ctx context.Context, err error) bool {
	return errors.Is(err, domain.ErrNotInitialized) || ctx.Err() != nil
}

func (r *RecordSetReconciler) succeed(
	ctx context.Context,
	p *Pass,
	typ domain.EventType,
	a domain.Action,
	rec *domain.RemoteRecord,
) {
	metrics.ReconcileActions.WithLabelValues(string(r.Kind()), string(a.Type), metrics.OutcomeSuccess).Inc()
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, domain.RecordEvent{
		Type:     typ,
		Kind:     r.Kind(),
		Key:      a.Key,
		Value:    a.Row,
		Record:   rec,
		RemoteID: a.RemoteID,
		ParentID: p.ParentID,
		RecordID: OriginFrom(ctx).RecordID,
		Field:    p.Field.Selector,
	})
}

func (r *RecordSetReconciler) fail(
	ctx context.Context,
	p *Pass,
	res *domain.Result,
	a domain.Action,
	payload domain.Payload,
	err error,
) {
	res.Failures = append(res.Failures, &domain.RowFailure{
		Op:       a.Type,
		Key:      a.Key,
		RemoteID: a.RemoteID,
		Payload:  payload,
		Err:      err,
	})
	res.Stats.Failed++
	metrics.ReconcileActions.WithLabelValues(string(r.Kind()), string(a.Type), metrics.OutcomeFailure).Inc()
	r.logFailure(ctx, p, string(a.Type), a.RemoteID, payload, err)
}

func (r *RecordSetReconciler) logFailure(
	ctx context.Context,
	p *Pass,
	op string,
	remoteID int64,
	payload domain.Payload,
	err error,
) {
	logger.L().Error().
		Err(err).
		Str("request_id", RequestID(ctx)).
		Str("kind", string(r.Kind())).
		Str("op", op).
		Str("field", p.Field.Selector).
		Int64("parent_id", p.ParentID).
		Int64("remote_id", remoteID).
		Interface("payload", payload).
		Msg("CRM call failed")
}

// adopt records rows the plan hook bound to an existing record.
func adopt(res *domain.Result, rows, planned domain.FieldValue, current []domain.RemoteRecord) {
	for i := 0; i < len(rows) && i < len(planned); i++ {
		was, _ := rows[i].RemoteID()
		now, linked := planned[i].RemoteID()
		if !linked || now == was {
			continue
		}
		for _, rec := range current {
			if rec.ID == now {
				res.Assigned[i] = rec
				break
			}
		}
	}
}

// Apply folds a CRM change into a field value and reports whether the
// value changed. A record that no longer matches the field's filter is
// removed from it. The input value is never modified.
func (r *RecordSetReconciler) Apply(
	ctx context.Context,
	value domain.FieldValue,
	field domain.FieldDef,
	ev domain.ChildEvent,
) (domain.FieldValue, bool, error) {
	op := ev.Op
	if op != domain.OpDelete && !field.Accepts(ev.Record) {
		op = domain.OpDelete
	}

	idx := value.IndexOf(ev.EntityID)

	if op == domain.OpDelete {
		if idx < 0 {
			return value, false, nil
		}
		if r.applyHook != nil {
			r.applyHook.Forget(ctx, value[idx])
		}
		out, changed := ApplyChange(value, domain.OpDelete, domain.Row{domain.FieldRemoteID: ev.EntityID}, false)
		return out, changed, nil
	}

	row := r.codec.ToContent(ev.Record)
	var existing domain.Row
	if idx >= 0 {
		existing = value[idx]
	}
	if r.applyHook != nil {
		var err error
		if row, err = r.applyHook.Prepare(ctx, existing, ev, row); err != nil {
			return value, false, fmt.Errorf("prepare %s %d: %w", r.Kind(), ev.EntityID, err)
		}
	}

	if r.Kind().IsSingle() {
		return replaceSingle(value, row)
	}

	out, changed := ApplyChange(value, op, row, r.Kind().HasPrimary())
	return out, changed, nil
}

// crmCalls bounds every CRM call with a deadline of its own. A call that
// runs out of time while the caller is still waiting is transient.
type crmCalls struct {
	kind    domain.EntityKind
	client  driven.CRMClient
	timeout time.Duration
}

func (c crmCalls) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c crmCalls) classify(parent context.Context, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTransient) {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	return err
}

func (c crmCalls) get(ctx context.Context, filter domain.Filter) ([]domain.RemoteRecord, error) {
	cctx, cancel := c.bound(ctx)
	defer cancel()
	recs, err := c.client.Get(cctx, c.kind, filter)
	return recs, c.classify(ctx, err)
}

func (c crmCalls) create(ctx context.Context, payload domain.Payload) (*domain.RemoteRecord, error) {
	cctx, cancel := c.bound(ctx)
	defer cancel()
	rec, err := c.client.Create(cctx, c.kind, payload)
	if err == nil && rec == nil {
		err = fmt.Errorf("%w: create returned no record", domain.ErrRejected)
	}
	return rec, c.classify(ctx, err)
}

func (c crmCalls) update(ctx context.Context, payload domain.Payload) (*domain.RemoteRecord, error) {
	cctx, cancel := c.bound(ctx)
	defer cancel()
	rec, err := c.client.Update(cctx, c.kind, payload)
	if err == nil && rec == nil {
		err = fmt.Errorf("%w: update returned no record", domain.ErrRejected)
	}
	return rec, c.classify(ctx, err)
}

func (c crmCalls) remove(ctx context.Context, id int64) error {
	cctx, cancel := c.bound(ctx)
	defer cancel()
	return c.classify(ctx, c.client.Delete(cctx, c.kind, id))
}
