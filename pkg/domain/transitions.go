package domain

import "fmt"

// BatchStatus enumerates the canonical batch lifecycle states.
type BatchStatus string

// Lifecycle states form a strictly linear chain from creation to terminal
// consumer delivery; each forward edge is gated by a specific role.
const (
	StatusCreated                BatchStatus = "created"
	StatusInTransitToDistributor BatchStatus = "in_transit_to_distributor"
	StatusAtDistributor          BatchStatus = "at_distributor"
	StatusInTransitToRetailer    BatchStatus = "in_transit_to_retailer"
	StatusAtRetailer             BatchStatus = "at_retailer"
	StatusDeliveredToConsumer    BatchStatus = "delivered_to_consumer"
)

// statusLabels maps every status to its human-readable label. Kept in
// lockstep with the status set; Label fails loudly on an unmapped value
// instead of returning a default.
var statusLabels = map[BatchStatus]string{
	StatusCreated:                "manufactured",
	StatusInTransitToDistributor: "in transit to distributor",
	StatusAtDistributor:          "delivered to distributor",
	StatusInTransitToRetailer:    "in transit to retailer",
	StatusAtRetailer:             "delivered to retailer",
	StatusDeliveredToConsumer:    "delivered to consumer",
}

// Label returns the human-readable label for the status.
func (s BatchStatus) Label() (string, error) {
	label, ok := statusLabels[s]
	if !ok {
		return "", NewError(KindInvalidState, fmt.Sprintf("no label mapped for status %q", s))
	}
	return label, nil
}

// Valid reports whether s is a known lifecycle state.
func (s BatchStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Terminal reports whether s has no outgoing transitions.
func (s BatchStatus) Terminal() bool { return s == StatusDeliveredToConsumer }

// TransitionKey addresses one row of the transition table.
type TransitionKey struct {
	From BatchStatus
	To   BatchStatus
}

// TransitionSpec describes the gate on a single forward edge.
type TransitionSpec struct {
	// Caller is the role that may apply the transition.
	Caller Role
	// ReceivesHolder, when set, moves physical possession to the caller's
	// role identity as part of the transition ("received" edges).
	ReceivesHolder bool
}

var transitionTable = map[TransitionKey]TransitionSpec{
	{StatusCreated, StatusInTransitToDistributor}:       {Caller: RoleManufacturer},
	{StatusInTransitToDistributor, StatusAtDistributor}: {Caller: RoleDistributor, ReceivesHolder: true},
	{StatusAtDistributor, StatusInTransitToRetailer}:    {Caller: RoleDistributor},
	{StatusInTransitToRetailer, StatusAtRetailer}:       {Caller: RoleRetailer, ReceivesHolder: true},
	{StatusAtRetailer, StatusDeliveredToConsumer}:       {Caller: RoleRetailer},
}

// LookupTransition returns the gate for the (from, to) edge, if it exists.
// A missing edge means the transition is illegal regardless of caller.
func LookupTransition(from, to BatchStatus) (TransitionSpec, bool) {
	spec, ok := transitionTable[TransitionKey{From: from, To: to}]
	return spec, ok
}

// Transitions returns a copy of the full transition table for independent
// inspection and testing.
func Transitions() map[TransitionKey]TransitionSpec {
	out := make(map[TransitionKey]TransitionSpec, len(transitionTable))
	for k, v := range transitionTable {
		out[k] = v
	}
	return out
}

// Statuses returns all known lifecycle states in chain order.
func Statuses() []BatchStatus {
	return []BatchStatus{
		StatusCreated,
		StatusInTransitToDistributor,
		StatusAtDistributor,
		StatusInTransitToRetailer,
		StatusAtRetailer,
		StatusDeliveredToConsumer,
	}
}
