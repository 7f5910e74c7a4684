package model

import (
	"fmt"

	"github.com/google/uuid"
)

// GraphIntegrityError reports a dependency graph that violates its own
// construction invariants: a cycle (the scheduler terminates before
// visiting every registered call) or a deterministic call id colliding
// with differing content. Fatal; indicates a bug in stubbing or a DSL
// program violating the termination precondition.
type GraphIntegrityError struct {
	GraphID uuid.UUID
	Reason  string
}

func (e *GraphIntegrityError) Error() string {
	return fmt.Sprintf("dependency graph %s integrity violated: %s", e.GraphID, e.Reason)
}

// MissingDependencyError reports that a call's dependency result was
// absent when evaluation was attempted. Under correct scheduling this
// cannot happen, so it is fatal for the valuation, not retried.
type MissingDependencyError struct {
	CallID       uuid.UUID
	DependencyID uuid.UUID
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("call %s: no result for dependency %s", e.CallID, e.DependencyID)
}
