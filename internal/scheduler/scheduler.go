// Package scheduler computes and persists a topological execution order
// over a registered dependency graph.
//
// The order is produced with Kahn's algorithm in its edge-removal
// variant: a frontier of calls with zero outstanding dependencies,
// expanded by marking edges satisfied as their sources are yielded. The
// persisted form is a singly linked chain of call links rooted at the
// graph id, so an order can be replayed without re-running the algorithm.
package scheduler

import (
	"bytes"
	"container/heap"
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/contactsonle/quantdsl/internal/ctxlog"
	"github.com/contactsonle/quantdsl/internal/model"
	"github.com/contactsonle/quantdsl/internal/store"
)

// GenerateExecutionOrder computes a total order over the graph's calls in
// which every call appears after all of its dependencies, persists it as
// a call-link chain, and returns it.
//
// The frontier is drained smallest-id-first. Kahn's algorithm permits any
// choice here, but a deterministic one makes re-registration of an
// already-persisted order a no-op instead of a chain conflict; the
// parallelism the graph allows is exploited at evaluation time, not in
// the persisted order.
func GenerateExecutionOrder(ctx context.Context, st store.Store, graph *model.DependencyGraph) ([]uuid.UUID, error) {
	logger := ctxlog.FromContext(ctx)

	frontier := make(callIDHeap, 0, len(graph.LeafCallIDs))
	frontier = append(frontier, graph.LeafCallIDs...)
	heap.Init(&frontier)
	removedEdges := make(map[uuid.UUID]map[uuid.UUID]bool)

	var order []uuid.UUID
	for frontier.Len() > 0 {
		n := heap.Pop(&frontier).(uuid.UUID)
		order = append(order, n)

		dependents, err := st.GetCallDependents(ctx, n)
		if errors.Is(err, store.ErrNotFound) {
			// Nothing depends on this call; yield it and move on.
			continue
		}
		if err != nil {
			return nil, err
		}

		for _, m := range dependents.Dependents {
			removed := removedEdges[m]
			if removed == nil {
				removed = make(map[uuid.UUID]bool)
				removedEdges[m] = removed
			}
			removed[n] = true

			deps, err := st.GetCallDependencies(ctx, m)
			if err != nil {
				return nil, err
			}
			if satisfied(deps.Dependencies, removed) {
				delete(removedEdges, m)
				heap.Push(&frontier, m)
			}
		}
	}

	if len(order) != graph.CallCount {
		return nil, &model.GraphIntegrityError{
			GraphID: graph.ID,
			Reason:  "execution order is incomplete; the dependency graph contains a cycle",
		}
	}

	linkID := graph.ID
	for _, callID := range order {
		if err := st.PutCallLink(ctx, &model.CallLink{LinkID: linkID, CallID: callID}); err != nil {
			return nil, err
		}
		linkID = callID
	}

	logger.Debug("execution order persisted.", "graph_id", graph.ID, "calls", len(order))
	return order, nil
}

// ReplayExecutionOrder walks the persisted call-link chain from the graph
// id to its end, returning the recorded order without recomputation. The
// root call id equals the graph id, so its link closes the chain back on
// the first one; the walk ends when the root is yielded.
func ReplayExecutionOrder(ctx context.Context, st store.Store, graphID uuid.UUID) ([]uuid.UUID, error) {
	var order []uuid.UUID
	seen := make(map[uuid.UUID]bool)

	linkID := graphID
	for {
		link, err := st.GetCallLink(ctx, linkID)
		if errors.Is(err, store.ErrNotFound) {
			return order, nil
		}
		if err != nil {
			return nil, err
		}
		if seen[link.CallID] {
			return nil, &model.GraphIntegrityError{
				GraphID: graphID,
				Reason:  "call-link chain revisits " + link.CallID.String(),
			}
		}
		seen[link.CallID] = true
		order = append(order, link.CallID)
		if link.CallID == graphID {
			return order, nil
		}
		linkID = link.CallID
	}
}

// callIDHeap is a min-heap of call ids in byte order, which for UUIDs is
// the same order as their canonical string form. A node enters the
// frontier exactly once (when its last dependency is yielded), so no
// membership dedup is needed.
type callIDHeap []uuid.UUID

func (h callIDHeap) Len() int           { return len(h) }
func (h callIDHeap) Less(i, j int) bool { return bytes.Compare(h[i][:], h[j][:]) < 0 }
func (h callIDHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *callIDHeap) Push(x any) { *h = append(*h, x.(uuid.UUID)) }

func (h *callIDHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func satisfied(deps []uuid.UUID, removed map[uuid.UUID]bool) bool {
	for _, d := range deps {
		if !removed[d] {
			return false
		}
	}
	return true
}
