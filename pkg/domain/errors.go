package domain

import "errors"

// ErrorKind classifies ledger failures for callers that map them onto
// transport-level responses.
type ErrorKind string

// Failure classifications. Every precondition violation aborts the whole
// operation: no partial mutation, no history append, no event emission.
const (
	// KindUnauthorized: caller lacks the role required for the action.
	KindUnauthorized ErrorKind = "unauthorized"
	// KindNotFound: referenced batch id is absent.
	KindNotFound ErrorKind = "not_found"
	// KindAlreadyExists: creation with a duplicate batch id.
	KindAlreadyExists ErrorKind = "already_exists"
	// KindInvalidArgument: zero, empty, or non-positive input.
	KindInvalidArgument ErrorKind = "invalid_argument"
	// KindInvalidTransition: current status incompatible with the target.
	KindInvalidTransition ErrorKind = "invalid_transition"
	// KindInvalidState: unmapped status value encountered when producing a
	// label. Unreachable while the label table stays exhaustive.
	KindInvalidState ErrorKind = "invalid_state"
)

// Error is the structured failure type returned by all ledger operations.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// NewError constructs a ledger error with the given kind and reason.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf unwraps err and returns its ledger error kind, or "" when err is nil
// or not a ledger error.
func KindOf(err error) ErrorKind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// IsKind reports whether err carries the given ledger error kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
