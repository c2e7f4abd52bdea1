package domain

import "time"

// EventType identifies an externally observable ledger event.
type EventType string

// Event types emitted by the ledger, ordered by commit sequence.
const (
	EventBatchCreated       EventType = "batch_created"
	EventBatchStatusUpdated EventType = "batch_status_updated"
	EventBatchTransferred   EventType = "batch_transferred"
)

// Event is one entry of the append-only ledger event log. Each successful
// mutating operation emits exactly one event, committed atomically with the
// state change it documents. Fields beyond the common header are populated
// per type.
type Event struct {
	Seq        uint64    `json:"seq"`
	Type       EventType `json:"type"`
	BatchID    string    `json:"batch_id"`
	OccurredAt time.Time `json:"occurred_at"`

	// batch_created
	Label    string `json:"label,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
	OwnerRef string `json:"owner_ref,omitempty"`

	// batch_status_updated
	StatusLabel string   `json:"status_label,omitempty"`
	Caller      Identity `json:"caller,omitempty"`
	Location    string   `json:"location,omitempty"`

	// batch_transferred
	From Identity `json:"from,omitempty"`
	To   Identity `json:"to,omitempty"`
}

// EventSink observes committed events. Sinks run after commit; they cannot
// veto or mutate ledger state.
type EventSink interface {
	Publish(Event)
}
