// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by the batch ledger.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Identity is the opaque address of an authenticated principal. The ledger
// never interprets it beyond equality checks against the role registry.
type Identity string

// IsZero reports whether the identity is absent or blank.
func (i Identity) IsZero() bool { return strings.TrimSpace(string(i)) == "" }

// Role identifies one of the three fixed supply-chain roles.
type Role string

// Supply-chain roles authorized to act on batches.
const (
	RoleManufacturer Role = "manufacturer"
	RoleDistributor  Role = "distributor"
	RoleRetailer     Role = "retailer"
)

// RoleRegistry binds the three roles to concrete identities. It is injected
// at service construction; the manufacturer binding is immutable afterwards,
// the distributor and retailer bindings are reassignable by the manufacturer.
type RoleRegistry struct {
	Manufacturer Identity `json:"manufacturer"`
	Distributor  Identity `json:"distributor"`
	Retailer     Identity `json:"retailer"`
}

// Validate rejects blank or duplicate role identities.
func (r RoleRegistry) Validate() error {
	bindings := []struct {
		role Role
		id   Identity
	}{
		{RoleManufacturer, r.Manufacturer},
		{RoleDistributor, r.Distributor},
		{RoleRetailer, r.Retailer},
	}
	seen := make(map[Identity]Role, len(bindings))
	for _, b := range bindings {
		if b.id.IsZero() {
			return NewError(KindInvalidArgument, fmt.Sprintf("%s identity must not be empty", b.role))
		}
		if prev, dup := seen[b.id]; dup {
			return NewError(KindInvalidArgument, fmt.Sprintf("identity %s bound to both %s and %s", b.id, prev, b.role))
		}
		seen[b.id] = b.role
	}
	return nil
}

// IsZero reports whether no role has been bound yet.
func (r RoleRegistry) IsZero() bool {
	return r.Manufacturer.IsZero() && r.Distributor.IsZero() && r.Retailer.IsZero()
}

// RoleOf resolves the role bound to the given identity.
func (r RoleRegistry) RoleOf(id Identity) (Role, bool) {
	switch {
	case id.IsZero():
		return "", false
	case id == r.Manufacturer:
		return RoleManufacturer, true
	case id == r.Distributor:
		return RoleDistributor, true
	case id == r.Retailer:
		return RoleRetailer, true
	}
	return "", false
}

// IdentityFor returns the identity currently bound to a role.
func (r RoleRegistry) IdentityFor(role Role) (Identity, bool) {
	switch role {
	case RoleManufacturer:
		return r.Manufacturer, true
	case RoleDistributor:
		return r.Distributor, true
	case RoleRetailer:
		return r.Retailer, true
	}
	return "", false
}

// Batch is a tracked quantity of product moving through the supply chain.
// ID, Quantity, OwnerRef, Label, and CreatedAt are immutable after creation;
// Status, Location, and Holder change only through ledger operations, each of
// which appends exactly one History entry.
type Batch struct {
	ID        string      `json:"id"`
	Quantity  int         `json:"quantity"`
	OwnerRef  string      `json:"owner_ref"`
	Label     string      `json:"label"`
	Status    BatchStatus `json:"status"`
	Location  string      `json:"location"`
	Holder    Identity    `json:"holder"`
	History   []string    `json:"history"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Clone returns a deep copy so store snapshots never alias caller slices.
func (b Batch) Clone() Batch {
	cp := b
	cp.History = append([]string(nil), b.History...)
	return cp
}

// Change describes a mutation applied to a batch during a transaction.
type Change struct {
	Action Action
	Before *Batch
	After  *Batch
}

// Action indicates the type of modification performed.
type Action string

// Change actions captured for rule evaluation. The ledger never deletes.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	BatchID  string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
