package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/fieldsync/internal/codecs"
	"github.com/custodia-labs/fieldsync/internal/core/domain"
	"github.com/custodia-labs/fieldsync/internal/core/ports/driven"
	"github.com/custodia-labs/fieldsync/internal/core/ports/driving"
	"github.com/custodia-labs/fieldsync/internal/logger"
	"github.com/custodia-labs/fieldsync/internal/metrics"
)

// Ensure FieldSyncService implements the interface.
var _ driving.FieldSync = (*FieldSyncService)(nil)

// Field write directions for metrics.
const (
	directionPush  = "push"
	directionApply = "apply"
)

// FieldSyncOption configures a FieldSyncService.
type FieldSyncOption func(*FieldSyncService)

// WithCRMTimeout bounds each CRM call.
func WithCRMTimeout(d time.Duration) FieldSyncOption {
	return func(s *FieldSyncService) { s.timeout = d }
}

// WithCodecs replaces the default codec registry.
func WithCodecs(reg *codecs.Registry) FieldSyncOption {
	return func(s *FieldSyncService) { s.codecs = reg }
}

// FieldSyncService keeps Record-Set fields and CRM child records in
// agreement. Content edits arrive through Push, CRM notifications through
// Dispatch.
type FieldSyncService struct {
	crm      driven.CRMClient
	fields   driven.FieldStore
	catalog  driven.FieldCatalog
	resolver driven.EntityResolver
	meta     driven.MetadataStore
	files    driven.FileStore

	codecs      *codecs.Registry
	timeout     time.Duration
	guard       *ReverseEditGuard
	bus         *EventBus
	mapper      *EventMapper
	reconcilers map[domain.EntityKind]*RecordSetReconciler
	modules     map[domain.EntityKind]*KindModule

	mu     sync.Mutex
	status driving.SyncStatus
}

// NewFieldSyncService creates the service and registers a module for
// every kind the codec registry knows.
func NewFieldSyncService(
	crm driven.CRMClient,
	fields driven.FieldStore,
	catalog driven.FieldCatalog,
	resolver driven.EntityResolver,
	meta driven.MetadataStore,
	files driven.FileStore,
	opts ...FieldSyncOption,
) *FieldSyncService {
	s := &FieldSyncService{
		crm:         crm,
		fields:      fields,
		catalog:     catalog,
		resolver:    resolver,
		meta:        meta,
		files:       files,
		timeout:     DefaultCallTimeout,
		guard:       NewReverseEditGuard(),
		bus:         NewEventBus(),
		reconcilers: make(map[domain.EntityKind]*RecordSetReconciler),
		modules:     make(map[domain.EntityKind]*KindModule),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codecs == nil {
		s.codecs = codecs.NewRegistry()
	}
	s.mapper = NewEventMapper(s.codecs)

	attachments := NewAttachmentStrategy(meta, files)
	for _, kind := range s.codecs.Kinds() {
		codec, _ := s.codecs.Get(kind)
		ropts := []ReconcilerOption{WithCallTimeout(s.timeout)}
		switch {
		case kind == domain.KindAttachment:
			ropts = append(ropts, WithUpdateStrategy(attachments), WithApplyHook(attachments))
		case kind.IsSingle():
			ropts = append(ropts, WithPlanHook(singleValueHook("phone")))
		}
		s.reconcilers[kind] = NewRecordSetReconciler(codec, crm, s.bus, ropts...)

		module := NewKindModule(kind, s.mapper, s.handleEvent)
		module.Register()
		s.modules[kind] = module
	}
	return s
}

// Bus returns the bus record events are published on.
func (s *FieldSyncService) Bus() *EventBus { return s.bus }

// Guard returns the reverse-edit guard.
func (s *FieldSyncService) Guard() *ReverseEditGuard { return s.guard }

// Mapper returns the event mapper.
func (s *FieldSyncService) Mapper() *EventMapper { return s.mapper }

// Module returns the module for kind, or nil.
func (s *FieldSyncService) Module(kind domain.EntityKind) *KindModule { return s.modules[kind] }

// Push reconciles a Content field against the CRM.
//
// The pushed rows, patched with the remote_ids of new CRM records, are
// written once if they differ from the stored value. The write happens
// even if ctx is cancelled part way, so every record the CRM committed
// stays linked.
func (s *FieldSyncService) Push(
	ctx context.Context,
	recordID int64,
	selector string,
	rows domain.FieldValue,
) (*domain.Result, error) {
	ctx = WithRequest(ctx)

	field, err := s.field(ctx, recordID, selector)
	if err != nil {
		return nil, err
	}
	rec, ok := s.reconcilers[field.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedKind, field.Kind)
	}

	parentID, ok, err := s.resolveEntity(ctx, recordID, field.Kind.ParentType())
	if err != nil {
		return nil, fmt.Errorf("resolve %s of record %d: %w", field.Kind.ParentType(), recordID, err)
	}
	if !ok {
		logger.Debug("Record %d has no %s, skipping %s", recordID, field.Kind.ParentType(), selector)
		s.track(func(st *driving.SyncStatus) { st.Unmapped++ })
		res := domain.NewResult()
		return res, s.save(ctx, recordID, *field, rows, res)
	}

	target := domain.Origin{System: domain.SystemCRM, Kind: field.Kind, EntityID: parentID}
	if s.guard.Suppress(ctx, target, domain.ChildEvent{Kind: field.Kind, ParentID: parentID}) {
		logger.Debug("Skipping push of %s on record %d: change came from the CRM", selector, recordID)
		s.track(func(st *driving.SyncStatus) { st.Suppressed++ })
		return domain.NewResult(), nil
	}

	ctx = WithOrigin(ctx, domain.Origin{
		System:   domain.SystemContent,
		Kind:     field.Kind,
		EntityID: parentID,
		RecordID: recordID,
	})

	res, err := rec.Reconcile(ctx, parentID, *field, rows)
	if res != nil {
		if perr := s.save(ctx, recordID, *field, rows, res); perr != nil {
			err = errors.Join(err, perr)
		}
		s.track(func(st *driving.SyncStatus) {
			st.Pushes++
			st.Totals.Created += res.Stats.Created
			st.Totals.Updated += res.Stats.Updated
			st.Totals.Deleted += res.Stats.Deleted
			st.Totals.Skipped += res.Stats.Skipped
			st.Totals.Failed += res.Stats.Failed
		})
	}
	return res, err
}

// save writes the pushed rows, with the remote_ids assigned during the
// pass, unless the field already holds exactly that.
func (s *FieldSyncService) save(
	ctx context.Context,
	recordID int64,
	field domain.FieldDef,
	rows domain.FieldValue,
	res *domain.Result,
) error {
	ctx = context.WithoutCancel(ctx)
	value := rows.Clone()
	if value == nil {
		value = domain.FieldValue{}
	}
	for key, rec := range res.Assigned {
		if key >= 0 && key < len(value) {
			value[key].SetRemoteID(rec.ID)
		}
	}

	current, err := s.fields.GetFieldValue(ctx, recordID, field.Selector)
	if err != nil {
		return fmt.Errorf("read %s of record %d: %w", field.Selector, recordID, err)
	}
	if current.Equal(value) {
		return nil
	}
	if err := s.fields.SetFieldValue(ctx, recordID, field.Selector, value); err != nil {
		return fmt.Errorf("save %s on record %d: %w", field.Selector, recordID, err)
	}
	metrics.FieldWrites.WithLabelValues(string(field.Kind), directionPush).Inc()
	return nil
}

// Dispatch hands a raw CRM notification to the event mapper.
func (s *FieldSyncService) Dispatch(ctx context.Context, raw domain.RawEvent) error {
	return s.mapper.Dispatch(ctx, raw)
}

// Status returns a snapshot of the counters.
func (s *FieldSyncService) Status(_ context.Context) (*driving.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	return &st, nil
}

// handleEvent applies one CRM change to every matching field of the
// parent's Content record.
func (s *FieldSyncService) handleEvent(ctx context.Context, ev domain.ChildEvent) error {
	rec, ok := s.reconcilers[ev.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedKind, ev.Kind)
	}

	if ev.Op != domain.OpDelete && s.partial(ev) {
		full, err := s.refetch(ctx, ev)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				logger.Debug("%s %d is gone from the CRM, ignoring %s", ev.Kind, ev.EntityID, ev.Op)
				return nil
			}
			return err
		}
		ev = full
	}

	if ev.ParentID == 0 && ev.Op == domain.OpDelete {
		located, ok, err := s.locateParent(ctx, ev)
		if err != nil {
			return err
		}
		if !ok {
			s.countEvent(ev, metrics.OutcomeDispatched)
			logger.Debug("No Content row links %s %d, nothing to delete", ev.Kind, ev.EntityID)
			return nil
		}
		ev = located
	}

	if ev.ParentID == 0 {
		s.countEvent(ev, metrics.OutcomeUnmapped)
		logger.Debug("%s %d carries no parent, ignoring %s", ev.Kind, ev.EntityID, ev.Op)
		return nil
	}

	recordID, ok, err := s.resolveRecord(ctx, ev.Kind.ParentType(), ev.ParentID, ev.Op)
	if err != nil {
		return fmt.Errorf("resolve record of %s %d: %w", ev.Kind.ParentType(), ev.ParentID, err)
	}
	if !ok {
		s.countEvent(ev, metrics.OutcomeUnmapped)
		return nil
	}

	if s.guard.Suppress(ctx, domain.Origin{System: domain.SystemContent, Kind: ev.Kind, RecordID: recordID}, ev) {
		s.countEvent(ev, metrics.OutcomeSuppressed)
		return nil
	}

	ctx = WithOrigin(ctx, domain.Origin{
		System:   domain.SystemCRM,
		Kind:     ev.Kind,
		EntityID: ev.ParentID,
		RecordID: recordID,
	})

	defs, err := s.fieldsOf(ctx, recordID, ev.Kind)
	if err != nil {
		return fmt.Errorf("list %s fields of record %d: %w", ev.Kind, recordID, err)
	}

	var errs []error
	for _, def := range defs {
		if err := s.applyToField(ctx, rec, recordID, def, ev); err != nil {
			errs = append(errs, err)
		}
	}
	s.countEvent(ev, metrics.OutcomeDispatched)
	return errors.Join(errs...)
}

func (s *FieldSyncService) applyToField(
	ctx context.Context,
	rec *RecordSetReconciler,
	recordID int64,
	field domain.FieldDef,
	ev domain.ChildEvent,
) error {
	value, err := s.fields.GetFieldValue(ctx, recordID, field.Selector)
	if err != nil {
		return fmt.Errorf("read %s of record %d: %w", field.Selector, recordID, err)
	}
	out, changed, err := rec.Apply(ctx, value, field, ev)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fields.SetFieldValue(ctx, recordID, field.Selector, out); err != nil {
		return fmt.Errorf("write %s of record %d: %w", field.Selector, recordID, err)
	}
	metrics.FieldWrites.WithLabelValues(string(field.Kind), directionApply).Inc()
	return nil
}

// locateParent fills in the parent of a delete notification that names
// only the deleted record, through the Content row still linked to it.
func (s *FieldSyncService) locateParent(ctx context.Context, ev domain.ChildEvent) (domain.ChildEvent, bool, error) {
	refs, err := s.fields.LocateRemoteID(ctx, ev.EntityID)
	if err != nil {
		return ev, false, fmt.Errorf("locate %s %d: %w", ev.Kind, ev.EntityID, err)
	}
	for _, ref := range refs {
		def, err := s.field(ctx, ref.RecordID, ref.Selector)
		if errors.Is(err, domain.ErrFieldNotFound) {
			continue
		}
		if err != nil {
			return ev, false, err
		}
		if def.Kind != ev.Kind {
			continue
		}
		parentID, ok, err := s.resolveEntity(ctx, ref.RecordID, ev.Kind.ParentType())
		if err != nil {
			return ev, false, fmt.Errorf("resolve %s of record %d: %w", ev.Kind.ParentType(), ref.RecordID, err)
		}
		if !ok {
			continue
		}
		ev.ParentID = parentID
		ev.Record.ParentID = parentID
		return ev, true, nil
	}
	return ev, false, nil
}

// partial reports whether a notification carries only identifiers.
func (s *FieldSyncService) partial(ev domain.ChildEvent) bool {
	codec, err := s.codecs.Get(ev.Kind)
	if err != nil {
		return false
	}
	for k := range ev.Record.Fields {
		if k != "id" && k != codec.ParentKey() {
			return false
		}
	}
	return true
}

// refetch loads the full record behind a partial notification.
func (s *FieldSyncService) refetch(ctx context.Context, ev domain.ChildEvent) (domain.ChildEvent, error) {
	calls := crmCalls{kind: ev.Kind, client: s.crm, timeout: s.timeout}
	recs, err := calls.get(ctx, domain.Filter{"id": ev.EntityID})
	if err != nil {
		return ev, fmt.Errorf("fetch %s %d: %w", ev.Kind, ev.EntityID, err)
	}
	if len(recs) == 0 {
		return ev, fmt.Errorf("%w: %s %d", domain.ErrNotFound, ev.Kind, ev.EntityID)
	}
	ev.Record = recs[0].Clone()
	if ev.Record.ParentID != 0 {
		ev.ParentID = ev.Record.ParentID
	}
	return ev, nil
}

func (s *FieldSyncService) countEvent(ev domain.ChildEvent, outcome string) {
	metrics.EventsHandled.WithLabelValues(string(ev.Kind), string(ev.Op), outcome).Inc()
	s.track(func(st *driving.SyncStatus) {
		switch outcome {
		case metrics.OutcomeSuppressed:
			st.Suppressed++
		case metrics.OutcomeUnmapped:
			st.Unmapped++
		default:
			st.Events++
		}
	})
}

func (s *FieldSyncService) track(fn func(*driving.SyncStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

// Lookups below are memoised for the life of the request.

type resolution struct {
	id int64
	ok bool
}

func (s *FieldSyncService) field(ctx context.Context, recordID int64, selector string) (*domain.FieldDef, error) {
	return memo(ctx, fmt.Sprintf("field:%d:%s", recordID, selector), func() (*domain.FieldDef, error) {
		return s.catalog.Field(ctx, recordID, selector)
	})
}

func (s *FieldSyncService) fieldsOf(ctx context.Context, recordID int64, kind domain.EntityKind) ([]domain.FieldDef, error) {
	return memo(ctx, fmt.Sprintf("fields:%d:%s", recordID, kind), func() ([]domain.FieldDef, error) {
		return s.catalog.Fields(ctx, recordID, kind)
	})
}

func (s *FieldSyncService) resolveEntity(ctx context.Context, recordID int64, parentType string) (int64, bool, error) {
	r, err := memo(ctx, fmt.Sprintf("entity:%s:%d", parentType, recordID), func() (resolution, error) {
		id, ok, err := s.resolver.ResolveEntity(ctx, recordID, parentType)
		return resolution{id: id, ok: ok}, err
	})
	return r.id, r.ok, err
}

func (s *FieldSyncService) resolveRecord(
	ctx context.Context,
	parentType string,
	entityID int64,
	op domain.Operation,
) (int64, bool, error) {
	r, err := memo(ctx, fmt.Sprintf("record:%s:%d:%s", parentType, entityID, op), func() (resolution, error) {
		id, ok, err := s.resolver.ResolveRecord(ctx, parentType, entityID, op)
		return resolution{id: id, ok: ok}, err
	})
	return r.id, r.ok, err
}
