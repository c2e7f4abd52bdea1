package core

import "batchledger/pkg/domain"

type (
	Identity           = domain.Identity
	Role               = domain.Role
	RoleRegistry       = domain.RoleRegistry
	Batch              = domain.Batch
	BatchStatus        = domain.BatchStatus
	Change             = domain.Change
	Action             = domain.Action
	Severity           = domain.Severity
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	Event              = domain.Event
	EventSink          = domain.EventSink
)

const (
	RoleManufacturer = domain.RoleManufacturer
	RoleDistributor  = domain.RoleDistributor
	RoleRetailer     = domain.RoleRetailer
)

const (
	StatusCreated                = domain.StatusCreated
	StatusInTransitToDistributor = domain.StatusInTransitToDistributor
	StatusAtDistributor          = domain.StatusAtDistributor
	StatusInTransitToRetailer    = domain.StatusInTransitToRetailer
	StatusAtRetailer             = domain.StatusAtRetailer
	StatusDeliveredToConsumer    = domain.StatusDeliveredToConsumer
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }

// DefaultRulesEngine returns an engine with the core ledger integrity rules
// registered: status transitions, history append-only, batch identity.
func DefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(StatusTransitionRule())
	engine.Register(HistoryAppendRule())
	engine.Register(BatchIdentityRule())
	return engine
}
