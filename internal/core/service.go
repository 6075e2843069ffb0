package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"itemcore/pkg/domain"
)

// Service runs item mutations through the permission, processing, validation,
// versioning, persistence and side-effect stages. It holds no per-item state;
// concurrent writers to one item are serialized by the store's version check.
type Service struct {
	gateway    PersistenceGateway
	gate       PermissionGate
	validator  FieldValidator
	chain      ProcessorChain
	versioning VersioningService
	resolver   ConflictResolver

	channels     []domain.NotificationChannel
	auditSink    domain.AuditSink
	attachments  domain.AttachmentStore
	dependencies domain.DependencyResolver
	cache        domain.ItemCache
	backups      domain.BackupWriter

	notifier *NotificationDispatcher
	audit    *AuditLogger

	clock         Clock
	newID         func() string
	logger        Logger
	metrics       MetricsRecorder
	tracer        Tracer
	effectTimeout time.Duration
}

// ServiceOption configures optional Service collaborators.
type ServiceOption func(*Service)

// WithClock overrides the time source used for timestamps.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the structured logger for pipeline events.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the recorder observing each operation.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer wrapping each operation.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithNotificationChannels registers channels available to notification settings.
func WithNotificationChannels(channels ...domain.NotificationChannel) ServiceOption {
	return func(s *Service) {
		s.channels = append(s.channels, channels...)
	}
}

// WithAuditSink sets the durable audit trail.
func WithAuditSink(sink domain.AuditSink) ServiceOption {
	return func(s *Service) { s.auditSink = sink }
}

// WithAttachmentStore sets the store cleaned up when items are deleted.
func WithAttachmentStore(store domain.AttachmentStore) ServiceOption {
	return func(s *Service) { s.attachments = store }
}

// WithDependencyResolver sets the resolver used to report broken references.
func WithDependencyResolver(resolver domain.DependencyResolver) ServiceOption {
	return func(s *Service) { s.dependencies = resolver }
}

// WithItemCache sets the cache invalidated after every committed mutation.
func WithItemCache(cache domain.ItemCache) ServiceOption {
	return func(s *Service) { s.cache = cache }
}

// WithBackupWriter sets the writer used when Options.Backup is enabled.
func WithBackupWriter(writer domain.BackupWriter) ServiceOption {
	return func(s *Service) { s.backups = writer }
}

// WithIDGenerator overrides the generator for item and audit entry ids.
func WithIDGenerator(gen func() string) ServiceOption {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithSideEffectTimeout sets the default bound on post-commit side effects.
func WithSideEffectTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.effectTimeout = timeout
		}
	}
}

// NewService constructs a service writing through store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		gateway:       NewPersistenceGateway(store),
		clock:         ClockFunc(func() time.Time { return time.Now().UTC() }),
		newID:         uuid.NewString,
		logger:        noopLogger{},
		metrics:       noopMetrics{},
		tracer:        noopTracer{},
		effectTimeout: defaultEffectTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.notifier = NewNotificationDispatcher(s.logger, s.channels...)
	s.audit = NewAuditLogger(s.auditSink, s.logger)
	return s
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// run wraps an operation with tracing, metrics and error logging.
func (s *Service) run(ctx context.Context, op string, attrs []SpanAttribute, fn func(context.Context) error) error {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, op, attrs...)
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "kind", string(domain.KindOf(err)), "error", err)
	}
	return err
}

// CreateItem stores a new item at version 1.
func (s *Service) CreateItem(ctx context.Context, req ItemCreateRequest, actor Actor, opts Options) (MutationResult, error) {
	var result MutationResult
	if req.ID == "" {
		req.ID = s.newID()
	}
	err := s.run(ctx, "create_item", spanAttrs(ActionCreate, req.ID), func(ctx context.Context) error {
		var err error
		result, err = s.createItem(ctx, req, actor, opts)
		return err
	})
	return result, err
}

func (s *Service) createItem(ctx context.Context, req ItemCreateRequest, actor Actor, opts Options) (MutationResult, error) {
	id := req.ID
	m := s.begin(ActionCreate, id, actor)

	if err := m.enter(ctx, PhaseAuthorizing); err != nil {
		return MutationResult{}, err
	}
	target := Item{ID: id, CreatedBy: stringField(req.Fields, domain.FieldCreatedBy)}
	if err := s.gate.Check(actor, ActionCreate, &target).Err(); err != nil {
		return MutationResult{}, m.fail(err)
	}

	if err := m.enter(ctx, PhasePreprocessing); err != nil {
		return MutationResult{}, err
	}
	working, err := s.chain.Apply(ctx, req.Fields, opts.PreProcessors)
	if err != nil {
		return MutationResult{}, m.fail(err)
	}

	if err := m.enter(ctx, PhaseValidating); err != nil {
		return MutationResult{}, err
	}
	violations := systemFieldViolations(Record{domain.FieldID: id}, working)
	res := s.validator.Validate(working, opts.ValidationRules)
	violations = append(violations, res.Violations...)
	item, decodeViolations := domain.DecodeRecord(Item{ID: id}, res.Record)
	violations = append(violations, decodeViolations...)
	if item.CreatedBy == "" {
		item.CreatedBy = actor.ID
	} else if item.CreatedBy != target.CreatedBy {
		if err := s.gate.Check(actor, ActionCreate, &item).Err(); err != nil {
			return MutationResult{}, m.fail(err)
		}
	}
	transition := CheckTransition(StageNone, item.WorkflowStage)
	violations = append(violations, transition...)
	if len(violations) > 0 {
		return MutationResult{}, m.fail(domain.ValidationFailed(violations))
	}
	warnings := s.referenceWarnings(ctx, item, nil)

	if err := m.enter(ctx, PhasePersisting); err != nil {
		return MutationResult{}, err
	}
	now := s.now()
	item.Version = 1
	item.CreatedAt = now
	item.UpdatedAt = now
	committed, err := s.gateway.Insert(ctx, item)
	if err != nil {
		return MutationResult{}, m.fail(err)
	}
	m.committed(committed.Version)

	result := s.afterCommit(ctx, m, opts, committed, nil, nil)
	result.Warnings = append(warnings, result.Warnings...)
	return result, nil
}

// UpdateItem applies changes to the item stored at expectedVersion. How a
// stale expectedVersion is handled depends on opts.ConflictStrategy.
func (s *Service) UpdateItem(ctx context.Context, id string, changes Record, expectedVersion int64, opts Options, actor Actor) (MutationResult, error) {
	var result MutationResult
	err := s.run(ctx, "update_item", spanAttrs(ActionUpdate, id), func(ctx context.Context) error {
		var err error
		result, err = s.updateItem(ctx, id, changes, expectedVersion, opts, actor)
		return err
	})
	return result, err
}

func (s *Service) updateItem(ctx context.Context, id string, changes Record, expectedVersion int64, opts Options, actor Actor) (MutationResult, error) {
	m := s.begin(ActionUpdate, id, actor)

	if err := m.enter(ctx, PhaseAuthorizing); err != nil {
		return MutationResult{}, err
	}
	current, err := s.gateway.Get(ctx, id)
	if err != nil {
		return MutationResult{}, m.fail(err)
	}
	if err := s.gate.Check(actor, ActionUpdate, &current).Err(); err != nil {
		return MutationResult{}, m.fail(err)
	}
	currentRec, err := current.Record()
	if err != nil {
		return MutationResult{}, m.fail(domain.PersistenceFailure("encode item", err))
	}

	if err := m.enter(ctx, PhasePreprocessing); err != nil {
		return MutationResult{}, err
	}
	if v := systemFieldViolations(currentRec, changes, domain.FieldCreatedBy); len(v) > 0 {
		return MutationResult{}, m.fail(domain.ValidationFailed(v))
	}
	processed, err := s.chain.Apply(ctx, currentRec.Overlay(changes), opts.PreProcessors)
	if err != nil {
		return MutationResult{}, m.fail(err)
	}

	if err := m.enter(ctx, PhaseValidating); err != nil {
		return MutationResult{}, err
	}
	_, delta, err := s.prepareUpdate(actor, current, currentRec, processed, opts.ValidationRules)
	if err != nil {
		return MutationResult{}, m.fail(err)
	}

	var snapshot *ItemSnapshot
	if opts.Versioning.Enabled {
		if err := m.enter(ctx, PhaseSnapshotting); err != nil {
			return MutationResult{}, err
		}
		snap := s.versioning.Snapshot(current, actor.ID, s.now())
		snapshot = &snap
	}

	if err := m.enter(ctx, PhasePersisting); err != nil {
		return MutationResult{}, err
	}
	fresh, err := s.gateway.Get(ctx, id)
	if err != nil {
		return MutationResult{}, m.fail(err)
	}
	freshRec, err := fresh.Record()
	if err != nil {
		return MutationResult{}, m.fail(domain.PersistenceFailure("encode item", err))
	}
	decision := s.resolver.Resolve(ConflictInput{
		ItemID:   id,
		Strategy: opts.ConflictStrategy,
		Expected: expectedVersion,
		Stored:   fresh.Version,
		Base:     s.baseRecord(ctx, current, currentRec, expectedVersion),
		Latest:   freshRec,
		Incoming: delta,
		Merge:    opts.Merge,
	})
	if decision.Err != nil {
		return MutationResult{}, m.fail(decision.Err)
	}
	if fresh.Version != current.Version {
		if err := s.gate.Check(actor, ActionUpdate, &fresh).Err(); err != nil {
			return MutationResult{}, m.fail(err)
		}
	}
	next, finalDelta, err := s.prepareUpdate(actor, fresh, freshRec, freshRec.Overlay(decision.Changes), opts.ValidationRules)
	if err != nil {
		return MutationResult{}, m.fail(err)
	}
	if snapshot != nil && snapshot.Version != fresh.Version {
		snap := s.versioning.Snapshot(fresh, actor.ID, s.now())
		snapshot = &snap
	}
	warnings := s.referenceWarnings(ctx, next, finalDelta)

	next.Version = decision.NewVersion
	next.UpdatedAt = s.now()
	committed, err := s.gateway.UpdateIfVersion(ctx, decision.Condition, next, snapshot)
	if err != nil {
		return MutationResult{}, m.fail(err)
	}
	m.committed(committed.Version)

	prior := fresh.Clone()
	result := s.afterCommit(ctx, m, opts, committed, &prior, snapshot)
	result.Warnings = append(warnings, result.Warnings...)
	return result, nil
}

// prepareUpdate validates proposed as the next full state of base and returns
// the decoded item together with the fields that differ from base.
func (s *Service) prepareUpdate(actor Actor, base Item, baseRec, proposed Record, rules RuleSet) (Item, Record, error) {
	violations := systemFieldViolations(baseRec, proposed, domain.FieldCreatedBy)
	res := s.validator.Validate(proposed, rules)
	violations = append(violations, res.Violations...)
	delta := diffRecords(baseRec, res.Record)
	next, decodeViolations := domain.DecodeRecord(base, delta)
	violations = append(violations, decodeViolations...)

	transition := CheckTransition(base.WorkflowStage, next.WorkflowStage)
	if len(transition) == 0 && len(violations) == 0 {
		if err := s.gate.CheckStageTransition(actor, base, next).Err(); err != nil {
			return Item{}, nil, err
		}
	}
	violations = append(violations, transition...)
	if len(violations) > 0 {
		return Item{}, nil, domain.ValidationFailed(violations)
	}
	return next, delta, nil
}

// baseRecord returns the item as the caller last saw it: the snapshot at
// expected when one is retained, otherwise the state read at pipeline start.
func (s *Service) baseRecord(ctx context.Context, current Item, currentRec Record, expected int64) Record {
	if expected == current.Version {
		return currentRec
	}
	snap, err := s.gateway.Snapshot(ctx, current.ID, expected)
	if err != nil {
		return currentRec
	}
	rec, err := snap.Item.Record()
	if err != nil {
		return currentRec
	}
	return rec
}

// DeleteItem removes an item after attempting dependent cleanup.
func (s *Service) DeleteItem(ctx context.Context, id string, actor Actor, opts DeleteOptions) (Confirmation, error) {
	var confirmation Confirmation
	err := s.run(ctx, "delete_item", spanAttrs(ActionDelete, id), func(ctx context.Context) error {
		var err error
		confirmation, err = s.deleteItem(ctx, id, actor, opts)
		return err
	})
	return confirmation, err
}

func (s *Service) deleteItem(ctx context.Context, id string, actor Actor, opts DeleteOptions) (Confirmation, error) {
	m := s.begin(ActionDelete, id, actor)

	if err := m.enter(ctx, PhaseAuthorizing); err != nil {
		return Confirmation{}, err
	}
	current, err := s.gateway.Get(ctx, id)
	if err != nil {
		return Confirmation{}, m.fail(err)
	}
	if err := s.gate.Check(actor, ActionDelete, &current).Err(); err != nil {
		return Confirmation{}, m.fail(err)
	}

	if err := m.enter(ctx, PhaseCleaningUp); err != nil {
		return Confirmation{}, err
	}
	warnings, cleanupErr := s.cleanupDependents(ctx, current, actor, opts)
	if cleanupErr != nil && opts.BlockOnCleanupFailure {
		return Confirmation{}, m.fail(cleanupErr)
	}

	if err := m.enter(ctx, PhasePersisting); err != nil {
		return Confirmation{}, err
	}
	removed, err := s.gateway.Delete(ctx, id)
	if err != nil {
		return Confirmation{}, m.fail(err)
	}
	m.committed(removed.Version)
	deletedAt := s.now()
	s.invalidate(ctx, id)

	effCtx, cancel := s.effectContext(ctx, opts.SideEffectTimeout)
	defer cancel()
	m.enterCommitted(PhaseNotifying)
	warnings = append(warnings, s.notifier.Dispatch(effCtx, opts.Notification, domain.NotificationPayload{
		Event:      EventItemDeleted,
		ActorID:    actor.ID,
		Item:       removed,
		OccurredAt: deletedAt,
	})...)
	m.enterCommitted(PhaseAuditing)
	warnings = append(warnings, s.audit.Record(effCtx, opts.Audit, AuditEntry{
		ID:        s.newID(),
		ItemID:    id,
		Action:    ActionDelete.AuditAction(),
		ActorID:   actor.ID,
		Timestamp: deletedAt,
	})...)
	m.done(len(warnings))

	return Confirmation{ItemID: id, Version: removed.Version, DeletedAt: deletedAt, Warnings: warnings}, nil
}

// cleanupDependents releases attachments, notifies dependent items and
// archives the audit trail. Every failure becomes a warning; the first one is
// also returned so callers that block on cleanup can abort.
func (s *Service) cleanupDependents(ctx context.Context, item Item, actor Actor, opts DeleteOptions) ([]Warning, error) {
	effCtx, cancel := s.effectContext(ctx, opts.SideEffectTimeout)
	defer cancel()

	var (
		warnings []Warning
		first    error
	)
	fail := func(source string, err error) {
		s.logger.Warn(EventSideEffectFailed, "stage", stageCleanup, "source", source, "item_id", item.ID, "error", err)
		warnings = append(warnings, failureWarning(stageCleanup, source, err))
		if first == nil {
			first = domain.ExternalServiceFailure(source, err)
		}
	}

	if s.attachments != nil && len(item.AttachmentIDs) > 0 {
		ids := append([]string(nil), item.AttachmentIDs...)
		err := bounded(effCtx, func(ctx context.Context) error {
			return s.attachments.Cleanup(ctx, ids)
		})
		if err != nil {
			fail("attachments", err)
		}
	}
	if dependents := dependentIDs(item); len(dependents) > 0 {
		settings := opts.Notification
		settings.Recipients = append(append([]string(nil), settings.Recipients...), dependents...)
		for _, w := range s.notifier.Dispatch(effCtx, settings, domain.NotificationPayload{
			Event:      EventLinkedItemGone,
			ActorID:    actor.ID,
			Item:       item,
			OccurredAt: s.now(),
		}) {
			warnings = append(warnings, Warning{Stage: stageCleanup, Source: w.Source, Message: w.Message})
			if first == nil {
				first = domain.ExternalServiceFailure(w.Source, errorString(w.Message))
			}
		}
	}
	if opts.Audit.Enabled {
		if err := s.audit.Archive(effCtx, item.ID); err != nil {
			fail("audit_archive", err)
		}
	}
	return warnings, first
}

// afterCommit runs post-processors and best-effort side effects. It never
// fails: the mutation is already durable.
func (s *Service) afterCommit(ctx context.Context, m *mutation, opts Options, committed Item, prior *Item, snapshot *ItemSnapshot) MutationResult {
	result := MutationResult{Item: committed}
	s.invalidate(ctx, committed.ID)

	m.enterCommitted(PhasePostprocessing)
	if len(opts.PostProcessors) > 0 {
		rec, err := committed.Record()
		if err == nil {
			rec, err = s.chain.Apply(context.WithoutCancel(ctx), rec, opts.PostProcessors)
		}
		if err != nil {
			s.logger.Warn(EventSideEffectFailed, "stage", stagePostprocess, "item_id", committed.ID, "error", err)
			result.Warnings = append(result.Warnings, Warning{Stage: stagePostprocess, Source: stepName(err), Message: err.Error()})
		} else {
			result.Derived = rec
		}
	}

	effCtx, cancel := s.effectContext(ctx, opts.SideEffectTimeout)
	defer cancel()

	event := EventItemCreated
	if m.action == ActionUpdate {
		event = EventItemUpdated
	}
	m.enterCommitted(PhaseNotifying)
	result.Warnings = append(result.Warnings, s.notifier.Dispatch(effCtx, opts.Notification, domain.NotificationPayload{
		Event:      event,
		ActorID:    m.actor,
		Item:       committed.Clone(),
		Prior:      prior,
		OccurredAt: committed.UpdatedAt,
	})...)

	m.enterCommitted(PhaseAuditing)
	after := committed.Clone()
	entry := AuditEntry{
		ID:         s.newID(),
		ItemID:     committed.ID,
		Action:     m.action.AuditAction(),
		ActorID:    m.actor,
		AfterState: &after,
		Timestamp:  committed.UpdatedAt,
	}
	if snapshot != nil {
		ref := snapshot.Ref()
		entry.BeforeSnapshotRef = &ref
	}
	result.Warnings = append(result.Warnings, s.audit.Record(effCtx, opts.Audit, entry)...)

	if opts.Backup.Enabled {
		backupItem := committed.Clone()
		if s.backups == nil {
			result.Warnings = append(result.Warnings, failureWarning(stageBackup, "backup_writer", errorString("no backup writer configured")))
		} else if err := bounded(effCtx, func(ctx context.Context) error {
			return s.backups.Backup(ctx, backupItem)
		}); err != nil {
			s.logger.Warn(EventSideEffectFailed, "stage", stageBackup, "item_id", committed.ID, "error", err)
			result.Warnings = append(result.Warnings, failureWarning(stageBackup, "backup_writer", err))
		}
	}
	m.done(len(result.Warnings))
	return result
}

func (s *Service) effectContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = s.effectTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	effCtx, cancel := s.effectContext(ctx, 0)
	defer cancel()
	err := bounded(effCtx, func(ctx context.Context) error {
		s.cache.Invalidate(ctx, id)
		return nil
	})
	if err != nil {
		s.logger.Warn(EventSideEffectFailed, "stage", "cache", "item_id", id, "error", err)
	}
}

// referenceWarnings reports dependencies and links that do not resolve. When
// delta is non-nil only changed reference fields are checked.
func (s *Service) referenceWarnings(ctx context.Context, item Item, delta Record) []Warning {
	if s.dependencies == nil {
		return nil
	}
	var ids []string
	if _, ok := delta["dependencies"]; delta == nil || ok {
		ids = append(ids, item.Dependencies...)
	}
	if _, ok := delta["linkedItems"]; delta == nil || ok {
		ids = append(ids, item.LinkedItems...)
	}
	if len(ids) == 0 {
		return nil
	}
	_, unresolved, err := s.dependencies.Resolve(ctx, uniqueStrings(ids))
	if err != nil {
		return []Warning{failureWarning(stageDependencies, "dependency_resolver", err)}
	}
	warnings := make([]Warning, 0, len(unresolved))
	for _, ref := range unresolved {
		warnings = append(warnings, Warning{Stage: stageDependencies, Source: ref, Message: "referenced item " + ref + " does not exist"})
	}
	return warnings
}
