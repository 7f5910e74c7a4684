// Package store defines the repository contract for the domain records
// and provides in-memory and SQLite-backed implementations.
//
// All repositories are write-once: a Put of an identical payload under an
// existing id is a no-op, a Put of a differing payload under an existing
// id fails with ErrConflict, and a Get of an absent id fails with
// ErrNotFound. Nothing is ever deleted or mutated after creation.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/contactsonle/quantdsl/internal/model"
)

// ErrNotFound is returned by Get methods when no record exists for an id.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned by Put methods when an id already exists with a
// different payload. For deterministic call ids this indicates a hashing
// or stubbing bug, not a transient condition.
var ErrConflict = errors.New("store: id already exists with different content")

// Store is the persistence interface for every entity kind. The memory
// implementation backs tests and default wiring; SQLite provides durable
// replay of graphs, execution orders, and results across runs.
type Store interface {
	PutContractSpecification(ctx context.Context, spec *model.ContractSpecification) error
	GetContractSpecification(ctx context.Context, id uuid.UUID) (*model.ContractSpecification, error)

	PutDependencyGraph(ctx context.Context, graph *model.DependencyGraph) error
	GetDependencyGraph(ctx context.Context, id uuid.UUID) (*model.DependencyGraph, error)

	PutCallRequirement(ctx context.Context, call *model.CallRequirement) error
	GetCallRequirement(ctx context.Context, id uuid.UUID) (*model.CallRequirement, error)

	PutCallDependencies(ctx context.Context, deps *model.CallDependencies) error
	GetCallDependencies(ctx context.Context, id uuid.UUID) (*model.CallDependencies, error)

	PutCallDependents(ctx context.Context, deps *model.CallDependents) error
	GetCallDependents(ctx context.Context, id uuid.UUID) (*model.CallDependents, error)

	PutCallLink(ctx context.Context, link *model.CallLink) error
	GetCallLink(ctx context.Context, linkID uuid.UUID) (*model.CallLink, error)

	PutCallResult(ctx context.Context, result *model.CallResult) error
	GetCallResult(ctx context.Context, id uuid.UUID) (*model.CallResult, error)

	PutMarketCalibration(ctx context.Context, calibration *model.MarketCalibration) error
	GetMarketCalibration(ctx context.Context, id uuid.UUID) (*model.MarketCalibration, error)

	PutMarketSimulation(ctx context.Context, sim *model.MarketSimulation) error
	GetMarketSimulation(ctx context.Context, id uuid.UUID) (*model.MarketSimulation, error)

	PutSimulatedPrice(ctx context.Context, price *model.SimulatedPrice) error
	GetSimulatedPrice(ctx context.Context, id string) (*model.SimulatedPrice, error)

	PutContractValuation(ctx context.Context, valuation *model.ContractValuation) error
	GetContractValuation(ctx context.Context, id uuid.UUID) (*model.ContractValuation, error)

	Close() error
}
