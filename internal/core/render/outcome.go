package render

import (
	"errors"
	"fmt"
)

// ErrOutOfBounds marks geometry that falls fully or partially outside the
// target's addressable rectangle. Always a skip, never a page failure.
var ErrOutOfBounds = errors.New("component geometry out of bounds")

// Outcome summarizes one render attempt.
type Outcome string

const (
	// OutcomeComplete means every component rendered.
	OutcomeComplete Outcome = "complete"
	// OutcomePartial means at least one component rendered and at least
	// one was skipped or failed.
	OutcomePartial Outcome = "partial"
	// OutcomeFailed means zero components rendered.
	OutcomeFailed Outcome = "failed"
)

// ComponentError records one component that was skipped or failed, with
// enough context to identify the offending field.
type ComponentError struct {
	Index   int    `json:"index"`
	Type    string `json:"type"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *ComponentError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("components[%d] (%s) %s: %s", e.Index, e.Type, e.Field, e.Message)
	}
	return fmt.Sprintf("components[%d] (%s): %s", e.Index, e.Type, e.Message)
}

func (e *ComponentError) Unwrap() error { return e.Err }

// Result is what a render reports back to its caller. Errors below the
// aggregate-failure threshold are carried here for diagnosis but do not
// fail the operation.
type Result struct {
	Outcome  Outcome           `json:"outcome"`
	Rendered int               `json:"rendered"`
	Skipped  int               `json:"skipped"`
	Errors   []*ComponentError `json:"errors,omitempty"`
}

// Failed reports whether the render produced nothing at all.
func (r *Result) Failed() bool {
	return r.Outcome == OutcomeFailed
}

func failedResult(errs ...*ComponentError) *Result {
	return &Result{Outcome: OutcomeFailed, Errors: errs}
}
