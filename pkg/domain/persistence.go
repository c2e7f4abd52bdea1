package domain

import "context"

// Transaction exposes the ledger mutations that a persistence implementation
// must support within an atomic scope. Either every mutation in the scope
// commits together with its events, or none do.
type Transaction interface {
	Snapshot() TransactionView
	Roles() RoleRegistry
	// SetRoles replaces the role registry after validating it.
	SetRoles(RoleRegistry) error
	CreateBatch(Batch) (Batch, error)
	UpdateBatch(id string, mutator func(*Batch) error) (Batch, error)
	FindBatch(id string) (Batch, bool)
	// AppendEvent assigns the next commit sequence number and stages the
	// event for atomic commit with the state change it documents.
	AppendEvent(Event) Event
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	BatchIDs() []string
	BatchIDsByOwner(ownerRef string) []string
	Events() []Event
}

// PersistentStore is the minimal abstraction over durable backends. Mutating
// calls execute under mutual exclusion; reads observe committed state only.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetBatch(id string) (Batch, bool)
	ListBatches() []Batch
	BatchIDs() []string
	BatchIDsByOwner(ownerRef string) []string
	CountBatches() int
	Roles() RoleRegistry
	Events() []Event
}
