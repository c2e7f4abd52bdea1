package core

import (
	"context"
	"fmt"
	"time"

	"batchledger/internal/infra/persistence/memory"
	"batchledger/pkg/domain"
)

// Service exposes the transactional ledger operations. Every mutating call
// resolves the caller against the role registry, applies the change and its
// history entry in one transaction, and emits exactly one event on success.
type Service struct {
	store domain.PersistentStore
	opts  serviceOptions
}

// NewService constructs a service backed by the supplied store. The registry
// binds the three supply-chain roles; it is validated up front and seeded
// into an empty store. When the store already carries persisted roles, the
// persisted distributor and retailer assignments win so that reassignments
// survive restarts, but the manufacturer binding must match.
func NewService(store domain.PersistentStore, registry RoleRegistry, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, domain.NewError(domain.KindInvalidArgument, "store must not be nil")
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}

	options := defaultServiceOptions()
	for _, opt := range opts {
		opt(&options)
	}
	svc := &Service{store: store, opts: options}

	persisted := store.Roles()
	switch {
	case persisted.IsZero():
		if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			return tx.SetRoles(registry)
		}); err != nil {
			return nil, err
		}
	case persisted.Manufacturer != registry.Manufacturer:
		return nil, domain.NewError(domain.KindInvalidArgument, fmt.Sprintf(
			"persisted manufacturer %s does not match supplied manufacturer %s",
			persisted.Manufacturer, registry.Manufacturer))
	}
	return svc, nil
}

// NewInMemoryService creates a service over a fresh in-memory store with the
// given rules engine. A nil engine installs the default ledger rules.
func NewInMemoryService(engine *RulesEngine, registry RoleRegistry, opts ...Option) (*Service, error) {
	if engine == nil {
		engine = DefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), registry, opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// CreateBatchInput carries the caller-supplied fields for batch creation.
type CreateBatchInput struct {
	ID       string
	Quantity int
	OwnerRef string
	Label    string
	Location string
}

// CreateBatch registers a new batch. Only the manufacturer may create.
func (s *Service) CreateBatch(ctx context.Context, caller Identity, input CreateBatchInput) (Batch, Result, error) {
	ctx, span, started := s.begin(ctx, "create_batch")
	var created Batch
	var events []Event
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		registry := tx.Roles()
		if role, ok := registry.RoleOf(caller); !ok || role != RoleManufacturer {
			return domain.NewError(domain.KindUnauthorized, "only the manufacturer may create batches")
		}
		if input.Label == "" {
			return domain.NewError(domain.KindInvalidArgument, "batch label must not be empty")
		}
		batch := Batch{
			ID:       input.ID,
			Quantity: input.Quantity,
			OwnerRef: input.OwnerRef,
			Label:    input.Label,
			Status:   StatusCreated,
			Location: input.Location,
			Holder:   registry.Manufacturer,
			History:  []string{fmt.Sprintf("created by %s at %s", RoleManufacturer, input.Location)},
		}
		var err error
		created, err = tx.CreateBatch(batch)
		if err != nil {
			return err
		}
		events = append(events, tx.AppendEvent(Event{
			Type:     domain.EventBatchCreated,
			BatchID:  created.ID,
			Label:    created.Label,
			Quantity: created.Quantity,
			OwnerRef: created.OwnerRef,
		}))
		return nil
	})
	s.finish(ctx, span, "create_batch", input.ID, caller, started, err)
	if err != nil {
		return Batch{}, res, err
	}
	s.publish(events)
	return created, res, nil
}

// UpdateStatus advances a batch along the lifecycle table. The edge is
// resolved before the caller's role so that an impossible move reports
// invalid_transition even for callers with no role at all.
func (s *Service) UpdateStatus(ctx context.Context, caller Identity, id string, target BatchStatus, location string) (Batch, Result, error) {
	ctx, span, started := s.begin(ctx, "update_status")
	var updated Batch
	var events []Event
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		batch, ok := tx.FindBatch(id)
		if !ok {
			return domain.NewError(domain.KindNotFound, fmt.Sprintf("batch %q not found", id))
		}
		spec, ok := domain.LookupTransition(batch.Status, target)
		if !ok {
			if batch.Status.Terminal() {
				return domain.NewError(domain.KindInvalidTransition, fmt.Sprintf("batch %q is in terminal status %s", id, batch.Status))
			}
			return domain.NewError(domain.KindInvalidTransition, fmt.Sprintf("no transition from %s to %s", batch.Status, target))
		}
		registry := tx.Roles()
		role, bound := registry.RoleOf(caller)
		if !bound || role != spec.Caller {
			return domain.NewError(domain.KindUnauthorized, fmt.Sprintf("transition from %s to %s requires role %s", batch.Status, target, spec.Caller))
		}
		label, err := target.Label()
		if err != nil {
			return err
		}
		updated, err = tx.UpdateBatch(id, func(b *Batch) error {
			b.Status = target
			b.Location = location
			if spec.ReceivesHolder {
				b.Holder = caller
			}
			b.History = append(b.History, fmt.Sprintf("status changed to %s by %s at %s", label, role, location))
			return nil
		})
		if err != nil {
			return err
		}
		events = append(events, tx.AppendEvent(Event{
			Type:        domain.EventBatchStatusUpdated,
			BatchID:     id,
			StatusLabel: label,
			Caller:      caller,
			Location:    location,
		}))
		return nil
	})
	s.finish(ctx, span, "update_status", id, caller, started, err)
	if err != nil {
		return Batch{}, res, err
	}
	s.publish(events)
	return updated, res, nil
}

// TransferOwnership hands a batch to a new holder without touching its
// lifecycle status. Only the current holder may transfer.
func (s *Service) TransferOwnership(ctx context.Context, caller Identity, id string, newHolder Identity, location string) (Batch, Result, error) {
	ctx, span, started := s.begin(ctx, "transfer_ownership")
	var updated Batch
	var events []Event
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		batch, ok := tx.FindBatch(id)
		if !ok {
			return domain.NewError(domain.KindNotFound, fmt.Sprintf("batch %q not found", id))
		}
		if caller.IsZero() || caller != batch.Holder {
			return domain.NewError(domain.KindUnauthorized, "only the current holder may transfer ownership")
		}
		if newHolder.IsZero() {
			return domain.NewError(domain.KindInvalidArgument, "new holder must not be empty")
		}
		if newHolder == batch.Holder {
			return domain.NewError(domain.KindInvalidArgument, "new holder already holds the batch")
		}
		oldHolder := batch.Holder
		var err error
		updated, err = tx.UpdateBatch(id, func(b *Batch) error {
			b.Holder = newHolder
			b.Location = location
			b.History = append(b.History, fmt.Sprintf("ownership transferred from %s to %s at %s", oldHolder, newHolder, location))
			return nil
		})
		if err != nil {
			return err
		}
		events = append(events, tx.AppendEvent(Event{
			Type:     domain.EventBatchTransferred,
			BatchID:  id,
			From:     oldHolder,
			To:       newHolder,
			Location: location,
		}))
		return nil
	})
	s.finish(ctx, span, "transfer_ownership", id, caller, started, err)
	if err != nil {
		return Batch{}, res, err
	}
	s.publish(events)
	return updated, res, nil
}

// SetDistributor rebinds the distributor role. Manufacturer only.
func (s *Service) SetDistributor(ctx context.Context, caller Identity, addr Identity) (Result, error) {
	return s.setRole(ctx, "set_distributor", caller, RoleDistributor, addr)
}

// SetRetailer rebinds the retailer role. Manufacturer only.
func (s *Service) SetRetailer(ctx context.Context, caller Identity, addr Identity) (Result, error) {
	return s.setRole(ctx, "set_retailer", caller, RoleRetailer, addr)
}

func (s *Service) setRole(ctx context.Context, op string, caller Identity, role Role, addr Identity) (Result, error) {
	ctx, span, started := s.begin(ctx, op)
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		registry := tx.Roles()
		if got, ok := registry.RoleOf(caller); !ok || got != RoleManufacturer {
			return domain.NewError(domain.KindUnauthorized, fmt.Sprintf("only the manufacturer may reassign the %s role", role))
		}
		if addr.IsZero() {
			return domain.NewError(domain.KindInvalidArgument, fmt.Sprintf("%s identity must not be empty", role))
		}
		switch role {
		case RoleDistributor:
			registry.Distributor = addr
		case RoleRetailer:
			registry.Retailer = addr
		default:
			return domain.NewError(domain.KindInvalidArgument, fmt.Sprintf("role %s is not reassignable", role))
		}
		return tx.SetRoles(registry)
	})
	s.finish(ctx, span, op, "", caller, started, err)
	return res, err
}

// Exists reports whether the batch id has ever been created.
func (s *Service) Exists(id string) bool {
	_, ok := s.store.GetBatch(id)
	return ok
}

// GetBatch returns the committed batch record.
func (s *Service) GetBatch(id string) (Batch, error) {
	batch, ok := s.store.GetBatch(id)
	if !ok {
		return Batch{}, domain.NewError(domain.KindNotFound, fmt.Sprintf("batch %q not found", id))
	}
	return batch, nil
}

// History returns the append-only audit trail of a batch.
func (s *Service) History(id string) ([]string, error) {
	batch, ok := s.store.GetBatch(id)
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, fmt.Sprintf("batch %q not found", id))
	}
	return batch.History, nil
}

// BatchIDs returns every batch id in creation order.
func (s *Service) BatchIDs() []string {
	return s.store.BatchIDs()
}

// BatchIDsByOwner returns the ids created for an owning principal in
// creation order.
func (s *Service) BatchIDsByOwner(ownerRef string) []string {
	return s.store.BatchIDsByOwner(ownerRef)
}

// Count returns the number of batches ever created.
func (s *Service) Count() int {
	return s.store.CountBatches()
}

// Roles returns the committed role registry.
func (s *Service) Roles() RoleRegistry {
	return s.store.Roles()
}

// Events returns the committed event log in commit order.
func (s *Service) Events() []Event {
	return s.store.Events()
}

func (s *Service) begin(ctx context.Context, op string) (context.Context, TraceSpan, time.Time) {
	ctx, span := s.opts.tracer.Start(ctx, op)
	return ctx, span, time.Now()
}

func (s *Service) finish(ctx context.Context, span TraceSpan, op, batchID string, caller Identity, started time.Time, err error) {
	duration := time.Since(started)
	span.End(err)
	s.opts.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.recordAuditError(ctx, op, batchID, caller, duration, err)
		s.opts.logger.Error("ledger operation failed", "operation", op, "batch_id", batchID, "error", err)
		return
	}
	s.recordAuditSuccess(ctx, op, batchID, caller, duration)
	s.opts.logger.Debug("ledger operation committed", "operation", op, "batch_id", batchID)
}

func (s *Service) recordAuditSuccess(ctx context.Context, op, batchID string, caller Identity, duration time.Duration) {
	s.opts.audit.Record(ctx, AuditEntry{
		Operation: op,
		BatchID:   batchID,
		Caller:    s.callerRole(caller),
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.opts.clock.Now(),
	})
}

func (s *Service) recordAuditError(ctx context.Context, op, batchID string, caller Identity, duration time.Duration, err error) {
	s.opts.audit.Record(ctx, AuditEntry{
		Operation: op,
		BatchID:   batchID,
		Caller:    s.callerRole(caller),
		Status:    AuditStatusError,
		Error:     err.Error(),
		Duration:  duration,
		Timestamp: s.opts.clock.Now(),
	})
}

func (s *Service) callerRole(caller Identity) Role {
	role, _ := s.store.Roles().RoleOf(caller)
	return role
}

func (s *Service) publish(events []Event) {
	if s.opts.sink == nil {
		return
	}
	for _, ev := range events {
		s.opts.sink.Publish(ev)
	}
}
