// Package evaluator drives numeric evaluation of a compiled dependency
// graph against a market simulation, producing one result per call and
// culminating in the root call's result.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/contactsonle/quantdsl/internal/ctxlog"
	"github.com/contactsonle/quantdsl/internal/dsl"
	"github.com/contactsonle/quantdsl/internal/metrics"
	"github.com/contactsonle/quantdsl/internal/model"
	"github.com/contactsonle/quantdsl/internal/scheduler"
	"github.com/contactsonle/quantdsl/internal/store"
)

// Evaluator values dependency graphs. Results are written exactly once
// per call id; re-running a valuation re-derives the same deterministic
// ids, so already-evaluated calls are no-ops.
type Evaluator struct {
	st      store.Store
	prices  dsl.PriceLookup
	workers int
}

// New creates an Evaluator. workers > 1 enables frontier-parallel
// evaluation via EvaluateParallel.
func New(st store.Store, prices dsl.PriceLookup, workers int) *Evaluator {
	if workers < 1 {
		workers = 1
	}
	return &Evaluator{st: st, prices: prices, workers: workers}
}

// Workers reports the configured worker count.
func (e *Evaluator) Workers() int { return e.workers }

// Evaluate walks the persisted execution order sequentially, evaluating
// each call in turn, and returns the root call's result. The root call id
// equals the graph id.
func (e *Evaluator) Evaluate(ctx context.Context, graphID uuid.UUID, sim *model.MarketSimulation) (dsl.Value, error) {
	logger := ctxlog.FromContext(ctx)

	order, err := scheduler.ReplayExecutionOrder(ctx, e.st, graphID)
	if err != nil {
		return dsl.Value{}, err
	}
	graph, err := e.st.GetDependencyGraph(ctx, graphID)
	if err != nil {
		return dsl.Value{}, err
	}
	if len(order) != graph.CallCount {
		return dsl.Value{}, &model.GraphIntegrityError{
			GraphID: graphID,
			Reason:  fmt.Sprintf("replayed order has %d calls, graph has %d", len(order), graph.CallCount),
		}
	}

	for _, callID := range order {
		if err := ctx.Err(); err != nil {
			return dsl.Value{}, err
		}
		if err := e.evaluateCall(ctx, callID, sim, "sequential"); err != nil {
			return dsl.Value{}, err
		}
	}

	result, err := e.st.GetCallResult(ctx, graphID)
	if err != nil {
		return dsl.Value{}, fmt.Errorf("root call result: %w", err)
	}
	logger.Debug("valuation complete.", "graph_id", graphID, "calls", len(order))
	return result.Value, nil
}

// evaluateCall computes and stores the result of one call. The execution
// order guarantees dependency results are present; their absence is a
// fatal scheduling violation, not a transient condition.
func (e *Evaluator) evaluateCall(ctx context.Context, callID uuid.UUID, sim *model.MarketSimulation, mode string) error {
	started := time.Now()

	call, err := e.st.GetCallRequirement(ctx, callID)
	if err != nil {
		return err
	}
	deps, err := e.st.GetCallDependencies(ctx, callID)
	if err != nil {
		return err
	}

	locals := make(dsl.Namespace, len(deps.Dependencies))
	for _, depID := range deps.Dependencies {
		result, err := e.st.GetCallResult(ctx, depID)
		if errors.Is(err, store.ErrNotFound) {
			return &model.MissingDependencyError{CallID: callID, DependencyID: depID}
		}
		if err != nil {
			return err
		}
		locals[depID.String()] = result.Value
	}

	expr, err := dsl.ParseExpression(call.DSLSource)
	if err != nil {
		return fmt.Errorf("call %s: %w", callID, err)
	}
	reduced, err := dsl.Reduce(expr, locals)
	if err != nil {
		return fmt.Errorf("call %s: %w", callID, err)
	}

	presentTime := sim.ObservationDate
	if call.EffectivePresentTime != nil {
		presentTime = *call.EffectivePresentTime
	}
	firstMarket := ""
	if len(sim.MarketNames) > 0 {
		firstMarket = sim.MarketNames[0]
	}

	value, err := dsl.Evaluate(ctx, reduced, dsl.EvalContext{
		Prices:          e.prices,
		SimulationID:    sim.ID,
		InterestRate:    sim.InterestRate,
		PresentTime:     presentTime,
		FirstMarketName: firstMarket,
	})
	if err != nil {
		return fmt.Errorf("call %s: %w", callID, err)
	}

	if err := e.st.PutCallResult(ctx, &model.CallResult{CallID: callID, Value: value}); err != nil {
		return err
	}

	metrics.CallsEvaluated.WithLabelValues(mode).Inc()
	metrics.CallEvaluationSeconds.Observe(time.Since(started).Seconds())
	return nil
}
