// Package model defines the domain records shared by the compiler,
// scheduler, evaluator, and stores. Every record is immutable once
// registered; repositories enforce write-once semantics.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/contactsonle/quantdsl/internal/dsl"
)

// ContractSpecification is the DSL source text describing a financial
// instrument's payoff rules. Created once per submission.
type ContractSpecification struct {
	ID     uuid.UUID `json:"id"`
	Source string    `json:"source"`
}

// StubbedCall is one deferred sub-expression produced by the stub
// generator: a graph node with its own identity and dependencies.
type StubbedCall struct {
	CallID               uuid.UUID   `json:"call_id"`
	DSLSource            string      `json:"dsl_source"`
	EffectivePresentTime *time.Time  `json:"effective_present_time"`
	Dependencies         []uuid.UUID `json:"dependencies"`
}

// CallRequirement is the persisted form of a stubbed call: the residual
// DSL source and the time at which it should be evaluated. A nil
// EffectivePresentTime means "inherit the simulation's observation date".
type CallRequirement struct {
	CallID               uuid.UUID  `json:"call_id"`
	DSLSource            string     `json:"dsl_source"`
	EffectivePresentTime *time.Time `json:"effective_present_time"`
}

// CallDependencies records the set of call ids a call needs before it can
// be evaluated. Registered atomically with the call requirement.
type CallDependencies struct {
	CallID       uuid.UUID   `json:"call_id"`
	Dependencies []uuid.UUID `json:"dependencies"`
}

// CallDependents is the inversion of CallDependencies: the calls that
// consume this call's result. The graph root carries an explicitly empty
// dependents set.
type CallDependents struct {
	CallID     uuid.UUID   `json:"call_id"`
	Dependents []uuid.UUID `json:"dependents"`
}

// CallLink is one link of the persisted execution-order chain. The chain
// starts at the dependency graph id and each successive link is keyed by
// the previously yielded call id.
type CallLink struct {
	LinkID uuid.UUID `json:"link_id"`
	CallID uuid.UUID `json:"call_id"`
}

// CallResult is the evaluated value of one call under one market
// simulation, written exactly once per call id.
type CallResult struct {
	CallID uuid.UUID `json:"call_id"`
	Value  dsl.Value `json:"value"`
}

// DependencyGraph summarizes one compiled contract: the root call id
// equals the graph id, which equals the owning contract specification id.
type DependencyGraph struct {
	ID                      uuid.UUID   `json:"id"`
	ContractSpecificationID uuid.UUID   `json:"contract_specification_id"`
	CallCount               int         `json:"call_count"`
	LeafCallIDs             []uuid.UUID `json:"leaf_call_ids"`
}

// ContractValuation represents one valuation run of a dependency graph
// against a market simulation. Its final value is the CallResult of the
// graph's root call id.
type ContractValuation struct {
	ID                 uuid.UUID `json:"id"`
	DependencyGraphID  uuid.UUID `json:"dependency_graph_id"`
	MarketSimulationID uuid.UUID `json:"market_simulation_id"`
}
