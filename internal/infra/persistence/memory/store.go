// Package memory provides the in-memory implementation of the ledger
// persistence store. It is the canonical semantics: every mutating call runs
// under the store mutex against a clone of committed state, rules evaluate
// against the candidate state, and the commit swaps state atomically. This
// replaces the serial executor of the original host environment.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"batchledger/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the
// domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type ledgerState struct {
	roles   domain.RoleRegistry
	batches map[string]domain.Batch
	// order holds batch ids in creation order; byOwner holds per-owner ids in
	// creation order. Both stay consistent with batches: every created id
	// appears in each exactly once.
	order   []string
	byOwner map[string][]string
	events  []domain.Event
}

func newLedgerState() ledgerState {
	return ledgerState{
		batches: make(map[string]domain.Batch),
		byOwner: make(map[string][]string),
	}
}

func (s ledgerState) clone() ledgerState {
	cloned := newLedgerState()
	cloned.roles = s.roles
	for id, b := range s.batches {
		cloned.batches[id] = b.Clone()
	}
	cloned.order = append([]string(nil), s.order...)
	for owner, ids := range s.byOwner {
		cloned.byOwner[owner] = append([]string(nil), ids...)
	}
	cloned.events = append([]domain.Event(nil), s.events...)
	return cloned
}

// Snapshot captures a point-in-time clone of the store state for durable
// backends and diagnostics.
type Snapshot struct {
	Roles      domain.RoleRegistry     `json:"roles"`
	Batches    map[string]domain.Batch `json:"batches"`
	BatchOrder []string                `json:"batch_order"`
	OwnerIndex map[string][]string     `json:"owner_index"`
	Events     []domain.Event          `json:"events"`
}

// Store provides an in-memory transactional ledger store.
type Store struct {
	mu     sync.RWMutex
	state  ledgerState
	engine *domain.RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newLedgerState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the transaction clock. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// Transaction represents a mutation set applied to the store state.
type Transaction struct {
	state *ledgerState
	now   time.Time
	// changes records batch mutations for rule evaluation at commit.
	changes []domain.Change
}

var _ domain.Transaction = (*Transaction)(nil)

// transactionView exposes a read-only snapshot of ledger state.
type transactionView struct {
	state *ledgerState
}

var _ domain.TransactionView = transactionView{}

// ListBatches returns all batches in creation order.
func (v transactionView) ListBatches() []domain.Batch {
	out := make([]domain.Batch, 0, len(v.state.order))
	for _, id := range v.state.order {
		if b, ok := v.state.batches[id]; ok {
			out = append(out, b.Clone())
		}
	}
	return out
}

// FindBatch retrieves a batch by id from the snapshot.
func (v transactionView) FindBatch(id string) (domain.Batch, bool) {
	b, ok := v.state.batches[id]
	if !ok {
		return domain.Batch{}, false
	}
	return b.Clone(), true
}

// Roles returns the role registry of the snapshot.
func (v transactionView) Roles() domain.RoleRegistry { return v.state.roles }

// BatchIDs returns all batch ids in creation order.
func (v transactionView) BatchIDs() []string {
	return append([]string(nil), v.state.order...)
}

// BatchIDsByOwner returns the ids created for ownerRef in creation order.
func (v transactionView) BatchIDsByOwner(ownerRef string) []string {
	return append([]string(nil), v.state.byOwner[ownerRef]...)
}

// Events returns the committed event log in commit order.
func (v transactionView) Events() []domain.Event {
	return append([]domain.Event(nil), v.state.events...)
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The commit is all-or-nothing: if fn or a blocking rule fails, the
// store is left exactly as before, with no event staged.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := s.state.clone()
	tx := &Transaction{state: &candidate, now: s.nowFn()}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		view := transactionView{state: &candidate}
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = candidate
	return result, nil
}

// View executes fn against a read-only snapshot of committed state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(transactionView{state: &snapshot})
}

// Snapshot returns a read-only view of the transactional state.
func (tx *Transaction) Snapshot() domain.TransactionView {
	return transactionView{state: tx.state}
}

// Roles returns the registry within the transaction.
func (tx *Transaction) Roles() domain.RoleRegistry { return tx.state.roles }

// SetRoles replaces the registry after validation.
func (tx *Transaction) SetRoles(registry domain.RoleRegistry) error {
	if err := registry.Validate(); err != nil {
		return err
	}
	tx.state.roles = registry
	return nil
}

// FindBatch retrieves a batch by id within the transaction.
func (tx *Transaction) FindBatch(id string) (domain.Batch, bool) {
	b, ok := tx.state.batches[id]
	if !ok {
		return domain.Batch{}, false
	}
	return b.Clone(), true
}

// CreateBatch inserts a new batch. A batch id, once used, is never reusable:
// creation fails when the id is already present, and batches are never
// deleted.
func (tx *Transaction) CreateBatch(b domain.Batch) (domain.Batch, error) {
	if b.ID == "" {
		return domain.Batch{}, domain.NewError(domain.KindInvalidArgument, "batch id must not be empty")
	}
	if _, exists := tx.state.batches[b.ID]; exists {
		return domain.Batch{}, domain.NewError(domain.KindAlreadyExists, fmt.Sprintf("batch %q already exists", b.ID))
	}
	if b.Quantity <= 0 {
		return domain.Batch{}, domain.NewError(domain.KindInvalidArgument, fmt.Sprintf("batch quantity must be positive, got %d", b.Quantity))
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	tx.state.batches[b.ID] = b.Clone()
	tx.state.order = append(tx.state.order, b.ID)
	tx.state.byOwner[b.OwnerRef] = append(tx.state.byOwner[b.OwnerRef], b.ID)
	after := b.Clone()
	tx.recordChange(domain.Change{Action: domain.ActionCreate, After: &after})
	return b.Clone(), nil
}

// UpdateBatch mutates a batch using the provided mutator function. The
// identifier is restored after mutation so it can never be rewritten.
func (tx *Transaction) UpdateBatch(id string, mutator func(*domain.Batch) error) (domain.Batch, error) {
	current, ok := tx.state.batches[id]
	if !ok {
		return domain.Batch{}, domain.NewError(domain.KindNotFound, fmt.Sprintf("batch %q not found", id))
	}
	before := current.Clone()
	working := current.Clone()
	if err := mutator(&working); err != nil {
		return domain.Batch{}, err
	}
	working.ID = id
	working.UpdatedAt = tx.now
	tx.state.batches[id] = working.Clone()
	after := working.Clone()
	tx.recordChange(domain.Change{Action: domain.ActionUpdate, Before: &before, After: &after})
	return working.Clone(), nil
}

// AppendEvent assigns the next commit sequence and stages the event.
func (tx *Transaction) AppendEvent(ev domain.Event) domain.Event {
	ev.Seq = uint64(len(tx.state.events)) + 1
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = tx.now
	}
	tx.state.events = append(tx.state.events, ev)
	return ev
}

func (tx *Transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// Read helpers ---------------------------------------------------------------

// GetBatch retrieves a batch by id from committed state.
func (s *Store) GetBatch(id string) (domain.Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.batches[id]
	if !ok {
		return domain.Batch{}, false
	}
	return b.Clone(), true
}

// ListBatches returns all batches from committed state in creation order.
func (s *Store) ListBatches() []domain.Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Batch, 0, len(s.state.order))
	for _, id := range s.state.order {
		if b, ok := s.state.batches[id]; ok {
			out = append(out, b.Clone())
		}
	}
	return out
}

// BatchIDs returns all batch ids in creation order.
func (s *Store) BatchIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.state.order...)
}

// BatchIDsByOwner returns the ids created for ownerRef in creation order.
func (s *Store) BatchIDsByOwner(ownerRef string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.state.byOwner[ownerRef]...)
}

// CountBatches returns the number of batches ever created.
func (s *Store) CountBatches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.order)
}

// Roles returns the committed role registry.
func (s *Store) Roles() domain.RoleRegistry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.roles
}

// Events returns the committed event log in commit order.
func (s *Store) Events() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Event(nil), s.state.events...)
}

// ExportState clones the committed state into a serializable snapshot.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Roles:      s.state.roles,
		Batches:    make(map[string]domain.Batch, len(s.state.batches)),
		BatchOrder: append([]string(nil), s.state.order...),
		OwnerIndex: make(map[string][]string, len(s.state.byOwner)),
		Events:     append([]domain.Event(nil), s.state.events...),
	}
	for id, b := range s.state.batches {
		snap.Batches[id] = b.Clone()
	}
	for owner, ids := range s.state.byOwner {
		snap.OwnerIndex[owner] = append([]string(nil), ids...)
	}
	return snap
}

// ImportState replaces the committed state with the snapshot contents,
// rebuilding missing indexes for snapshots taken by older writers.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newLedgerState()
	state.roles = snap.Roles
	for id, b := range snap.Batches {
		state.batches[id] = b.Clone()
	}
	if len(snap.BatchOrder) > 0 {
		state.order = append([]string(nil), snap.BatchOrder...)
	} else {
		state.order = rebuildOrder(state.batches)
	}
	if len(snap.OwnerIndex) > 0 {
		for owner, ids := range snap.OwnerIndex {
			state.byOwner[owner] = append([]string(nil), ids...)
		}
	} else {
		for _, id := range state.order {
			b := state.batches[id]
			state.byOwner[b.OwnerRef] = append(state.byOwner[b.OwnerRef], id)
		}
	}
	state.events = append([]domain.Event(nil), snap.Events...)
	s.state = state
}

func rebuildOrder(batches map[string]domain.Batch) []string {
	ids := make([]string, 0, len(batches))
	for id := range batches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		bi, bj := batches[ids[i]], batches[ids[j]]
		if bi.CreatedAt.Equal(bj.CreatedAt) {
			return ids[i] < ids[j]
		}
		return bi.CreatedAt.Before(bj.CreatedAt)
	})
	return ids
}
