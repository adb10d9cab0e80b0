package chatflow

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	ErrSelfLoop        = errors.New("self loop")
	ErrSlotOccupied    = errors.New("slot occupied")
	ErrInvalidHandle   = errors.New("invalid source handle")
	ErrUnknownNodeType = errors.New("unknown node type")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrTenantViolation = errors.New("tenant isolation violation")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrNoConversation  = errors.New("conversation not found")
)

// StructuralError is returned by graph mutators when a request is malformed.
// It wraps one of the structural sentinels so callers can use errors.Is.
type StructuralError struct {
	Op  string
	ID  string
	Err error
}

func (e *StructuralError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

func structural(op, id string, err error) error {
	return &StructuralError{Op: op, ID: id, Err: err}
}

// IsStructural reports whether err came from a graph mutation rejection.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// ExecutionErrorKind classifies a failed conversation turn.
type ExecutionErrorKind string

const (
	ExecStepBudget            ExecutionErrorKind = "step_budget"
	ExecUnresolvableCondition ExecutionErrorKind = "unresolvable_condition"
	ExecMissingTarget         ExecutionErrorKind = "missing_target"
	ExecHTTPFailure           ExecutionErrorKind = "http_failure"
	ExecBadPayload            ExecutionErrorKind = "bad_payload"
	ExecDeliveryFailure       ExecutionErrorKind = "delivery_failure"
)

// ExecutionError ends a single conversation turn. It never crosses
// conversations.
type ExecutionError struct {
	Kind   ExecutionErrorKind
	NodeID string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("execution %s at node %s", e.Kind, e.NodeID)
	}
	return fmt.Sprintf("execution %s at node %s: %v", e.Kind, e.NodeID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
