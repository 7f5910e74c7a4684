package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/contactsonle/quantdsl/internal/ctxlog"
	"github.com/contactsonle/quantdsl/internal/dsl"
	"github.com/contactsonle/quantdsl/internal/model"
	"github.com/contactsonle/quantdsl/internal/scheduler"
)

// evalNode is a call plus the frontier bookkeeping for one parallel run.
// remaining counts unsatisfied dependencies; the node enters the ready
// channel when it reaches zero.
type evalNode struct {
	id         uuid.UUID
	dependents []*evalNode
	remaining  atomic.Int64
	skipOnce   sync.Once
	err        error
}

// EvaluateParallel values the graph with a pool of workers. At any point
// every call whose dependencies are satisfied sits in the ready channel;
// workers evaluate independently and synchronize only when releasing
// dependents into the frontier. Results across independent branches land
// in any order; a call's result is always written before any dependent
// starts, which the frontier discipline enforces by construction.
func (e *Evaluator) EvaluateParallel(ctx context.Context, graphID uuid.UUID, sim *model.MarketSimulation) (dsl.Value, error) {
	logger := ctxlog.FromContext(ctx)

	graph, err := e.st.GetDependencyGraph(ctx, graphID)
	if err != nil {
		return dsl.Value{}, err
	}
	// The replayed order doubles as the registry of every call id and as
	// the acyclicity check for this graph.
	order, err := scheduler.ReplayExecutionOrder(ctx, e.st, graphID)
	if err != nil {
		return dsl.Value{}, err
	}
	if len(order) != graph.CallCount {
		return dsl.Value{}, &model.GraphIntegrityError{
			GraphID: graphID,
			Reason:  fmt.Sprintf("replayed order has %d calls, graph has %d", len(order), graph.CallCount),
		}
	}

	nodes := make(map[uuid.UUID]*evalNode, len(order))
	for _, id := range order {
		nodes[id] = &evalNode{id: id}
	}
	for _, id := range order {
		deps, err := e.st.GetCallDependencies(ctx, id)
		if err != nil {
			return dsl.Value{}, err
		}
		node := nodes[id]
		node.remaining.Store(int64(len(deps.Dependencies)))
		for _, depID := range deps.Dependencies {
			dep, ok := nodes[depID]
			if !ok {
				return dsl.Value{}, &model.GraphIntegrityError{
					GraphID: graphID,
					Reason:  "dependency " + depID.String() + " is not part of the execution order",
				}
			}
			dep.dependents = append(dep.dependents, node)
		}
	}

	readyChan := make(chan *evalNode, len(nodes))
	for _, node := range nodes {
		if node.remaining.Load() == 0 {
			readyChan <- node
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(len(nodes))

	logger.Debug("starting evaluation worker pool.", "graph_id", graphID, "workers", e.workers, "calls", len(nodes))
	for i := 0; i < e.workers; i++ {
		go e.worker(runCtx, sim, readyChan, cancel, &wg)
	}

	wg.Wait()
	close(readyChan)

	var firstErr error
	for _, id := range order {
		node := nodes[id]
		if node.err != nil && !errors.Is(node.err, context.Canceled) && !errors.Is(node.err, errSkipped) {
			firstErr = node.err
			break
		}
	}
	if firstErr != nil {
		return dsl.Value{}, firstErr
	}

	result, err := e.st.GetCallResult(ctx, graphID)
	if err != nil {
		return dsl.Value{}, fmt.Errorf("root call result: %w", err)
	}
	return result.Value, nil
}

var errSkipped = errors.New("skipped due to upstream failure")

// worker is the processing loop for one concurrent worker.
func (e *Evaluator) worker(ctx context.Context, sim *model.MarketSimulation, readyChan chan *evalNode, cancel context.CancelFunc, wg *sync.WaitGroup) {
	for node := range readyChan {
		if ctx.Err() != nil {
			node.skipOnce.Do(func() {
				node.err = ctx.Err()
				wg.Done()
			})
			// Dependents of a skipped node never reach the frontier on
			// their own; release them here so the pool drains.
			e.skipDependents(node, wg)
			continue
		}

		if err := e.evaluateCall(ctx, node.id, sim, "parallel"); err != nil {
			node.err = err
			cancel()
			e.skipDependents(node, wg)
			wg.Done()
			continue
		}

		for _, dependent := range node.dependents {
			if dependent.remaining.Add(-1) == 0 {
				readyChan <- dependent
			}
		}
		wg.Done()
	}
}

// skipDependents marks every downstream node as failed so the WaitGroup
// still drains after an upstream error.
func (e *Evaluator) skipDependents(node *evalNode, wg *sync.WaitGroup) {
	for _, dependent := range node.dependents {
		dependent.skipOnce.Do(func() {
			dependent.err = fmt.Errorf("%w: %s", errSkipped, node.id)
			wg.Done()
			e.skipDependents(dependent, wg)
		})
	}
}
