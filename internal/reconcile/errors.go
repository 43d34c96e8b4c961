package reconcile

import (
	"errors"
	"fmt"
)

// Validation and state errors. Nothing is written when one of these is returned.
var (
	ErrNotFound              = errors.New("record not found")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrInvalidAmount         = errors.New("amounts must not be negative")
	ErrInvalidRefundStatus   = errors.New("invalid refund status")
	ErrInvalidIdempotencyKey = errors.New("idempotency key must be at most 128 characters")
	ErrPlotNotSold           = errors.New("plot has no active sale")
	ErrPlotUnavailable       = errors.New("target plot is not available")
	ErrSamePlot              = errors.New("cannot transfer a sale to the same plot")
	ErrSaleNotActive         = errors.New("sale is not active")
	ErrRefundTransition      = errors.New("refund status cannot move backwards")
	ErrRefundDecrease        = errors.New("net refund cannot drop below the amount already recorded")
	ErrRefundExceedsPaid     = errors.New("net refund exceeds the amount paid")
	ErrIdempotencyConflict   = errors.New("idempotency key was already used for a different request")
	ErrWorkflowInProgress    = errors.New("another operation on this record is in progress")
)

// StepError reports a datastore failure inside a workflow step. The whole
// operation was rolled back.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed, no changes were saved: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
