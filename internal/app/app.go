// Package app wires the repositories, compiler, scheduler, simulator,
// and evaluator into the entry points the host application uses.
//
// Flow of user stories:
//
//	Register a contract specification (DSL text).
//	Generate its dependency graph.            -> gives required market names and fixing dates
//	Register a market calibration.
//	Generate a market simulation.
//	Generate a contract valuation.            -> gives the root call's result
package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/contactsonle/quantdsl/internal/compiler"
	"github.com/contactsonle/quantdsl/internal/ctxlog"
	"github.com/contactsonle/quantdsl/internal/dsl"
	"github.com/contactsonle/quantdsl/internal/evaluator"
	"github.com/contactsonle/quantdsl/internal/metrics"
	"github.com/contactsonle/quantdsl/internal/model"
	"github.com/contactsonle/quantdsl/internal/scheduler"
	"github.com/contactsonle/quantdsl/internal/simulation"
	"github.com/contactsonle/quantdsl/internal/store"
)

// Options configures an App.
type Options struct {
	// Store backs every repository; defaults to the in-memory store.
	Store store.Store
	// Workers is the evaluation worker count; values above 1 enable
	// frontier-parallel evaluation.
	Workers int
	// MaxStubbedCalls bounds graph expansion; 0 means the compiler
	// default.
	MaxStubbedCalls int
}

// App is the application facade.
type App struct {
	st       store.Store
	eval     *evaluator.Evaluator
	maxCalls int
}

// New creates an App from opts.
func New(opts Options) *App {
	st := opts.Store
	if st == nil {
		st = store.NewMemory()
	}
	prices := simulation.NewPriceRepo(st)
	return &App{
		st:       st,
		eval:     evaluator.New(st, prices, opts.Workers),
		maxCalls: opts.MaxStubbedCalls,
	}
}

// Close releases the underlying store.
func (a *App) Close() error { return a.st.Close() }

// Store exposes the underlying repositories.
func (a *App) Store() store.Store { return a.st }

// RegisterContractSpecification stores a new contract specification and
// returns its record.
func (a *App) RegisterContractSpecification(ctx context.Context, source string) (*model.ContractSpecification, error) {
	spec := &model.ContractSpecification{ID: uuid.New(), Source: source}
	if err := a.st.PutContractSpecification(ctx, spec); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Info("contract specification registered.", "spec_id", spec.ID)
	return spec, nil
}

// GenerateDependencyGraph compiles a contract specification into its
// dependency graph and persists the execution order. Re-running on an
// already-compiled specification is a no-op thanks to deterministic ids
// and write-once repositories.
func (a *App) GenerateDependencyGraph(ctx context.Context, spec *model.ContractSpecification) (*model.DependencyGraph, error) {
	graph, err := compiler.GenerateDependencyGraph(ctx, a.st, spec, a.maxCalls)
	if err != nil {
		return nil, err
	}
	if _, err := scheduler.GenerateExecutionOrder(ctx, a.st, graph); err != nil {
		return nil, err
	}
	return graph, nil
}

// GraphRequirements reports the market names and fixing dates a compiled
// graph needs from a simulation.
func (a *App) GraphRequirements(ctx context.Context, graphID uuid.UUID) (*compiler.Requirements, error) {
	return compiler.GraphRequirements(ctx, a.st, graphID)
}

// RegisterMarketCalibration stores a market calibration.
func (a *App) RegisterMarketCalibration(ctx context.Context, priceProcessName string, params map[string]model.MarketParams) (*model.MarketCalibration, error) {
	return simulation.RegisterMarketCalibration(ctx, a.st, priceProcessName, params)
}

// GenerateMarketSimulation generates and stores a market simulation with
// its simulated price vectors.
func (a *App) GenerateMarketSimulation(ctx context.Context, p simulation.GenerateParams) (*model.MarketSimulation, error) {
	return simulation.Generate(ctx, a.st, p)
}

// GenerateContractValuation values a compiled graph against a market
// simulation and returns the valuation record along with the root call's
// result.
func (a *App) GenerateContractValuation(ctx context.Context, graphID uuid.UUID, sim *model.MarketSimulation) (*model.ContractValuation, dsl.Value, error) {
	valuation := &model.ContractValuation{
		ID:                 uuid.New(),
		DependencyGraphID:  graphID,
		MarketSimulationID: sim.ID,
	}
	if err := a.st.PutContractValuation(ctx, valuation); err != nil {
		return nil, dsl.Value{}, err
	}

	var value dsl.Value
	var err error
	if a.eval.Workers() > 1 {
		value, err = a.eval.EvaluateParallel(ctx, graphID, sim)
	} else {
		value, err = a.eval.Evaluate(ctx, graphID, sim)
	}
	if err != nil {
		metrics.ValuationsTotal.WithLabelValues("error").Inc()
		return nil, dsl.Value{}, fmt.Errorf("valuation %s: %w", valuation.ID, err)
	}

	metrics.ValuationsTotal.WithLabelValues("ok").Inc()
	ctxlog.FromContext(ctx).Info("contract valuation complete.",
		"valuation_id", valuation.ID, "graph_id", graphID, "simulation_id", sim.ID)
	return valuation, value, nil
}
