package scheduler

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactsonle/quantdsl/internal/compiler"
	"github.com/contactsonle/quantdsl/internal/model"
	"github.com/contactsonle/quantdsl/internal/store"
)

// registerGraph writes a graph's dependency and dependents edges directly,
// bypassing the compiler, so shapes the DSL cannot produce (like cycles)
// are testable.
func registerGraph(t *testing.T, st store.Store, graph *model.DependencyGraph, deps map[uuid.UUID][]uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	dependents := make(map[uuid.UUID][]uuid.UUID)
	for callID, d := range deps {
		require.NoError(t, st.PutCallDependencies(ctx, &model.CallDependencies{CallID: callID, Dependencies: d}))
		for _, dep := range d {
			dependents[dep] = append(dependents[dep], callID)
		}
	}
	for callID, d := range dependents {
		require.NoError(t, st.PutCallDependents(ctx, &model.CallDependents{CallID: callID, Dependents: d}))
	}
	require.NoError(t, st.PutDependencyGraph(ctx, graph))
}

func assertTopological(t *testing.T, order []uuid.UUID, deps map[uuid.UUID][]uuid.UUID) {
	t.Helper()
	position := make(map[uuid.UUID]int, len(order))
	for i, id := range order {
		position[id] = i
	}
	for callID, d := range deps {
		for _, dep := range d {
			assert.Less(t, position[dep], position[callID],
				"dependency %s must precede %s", dep, callID)
		}
	}
}

func TestGenerateExecutionOrderDiamond(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	defer st.Close()

	root := uuid.New()
	left := uuid.New()
	right := uuid.New()
	leaf := uuid.New()

	deps := map[uuid.UUID][]uuid.UUID{
		root:  {left, right},
		left:  {leaf},
		right: {leaf},
		leaf:  {},
	}
	graph := &model.DependencyGraph{
		ID:                      root,
		ContractSpecificationID: root,
		CallCount:               4,
		LeafCallIDs:             []uuid.UUID{leaf},
	}
	registerGraph(t, st, graph, deps)

	order, err := GenerateExecutionOrder(ctx, st, graph)
	require.NoError(t, err)

	require.Len(t, order, 4)
	assertTopological(t, order, deps)
	assert.Equal(t, leaf, order[0])
	assert.Equal(t, root, order[3])

	// left and right become ready together; the frontier yields the
	// smaller id first so the persisted order is deterministic.
	assert.Less(t, order[1].String(), order[2].String())

	t.Run("replay returns the persisted order", func(t *testing.T) {
		replayed, err := ReplayExecutionOrder(ctx, st, graph.ID)
		require.NoError(t, err)
		assert.Equal(t, order, replayed)
	})

	t.Run("regeneration is a no-op", func(t *testing.T) {
		again, err := GenerateExecutionOrder(ctx, st, graph)
		require.NoError(t, err)
		assert.Equal(t, order, again)
	})
}

func TestGenerateExecutionOrderDetectsCycle(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	defer st.Close()

	a := uuid.New()
	b := uuid.New()
	leaf := uuid.New()

	// a and b depend on each other; only leaf is reachable.
	deps := map[uuid.UUID][]uuid.UUID{
		a:    {b, leaf},
		b:    {a, leaf},
		leaf: {},
	}
	graph := &model.DependencyGraph{
		ID:          a,
		CallCount:   3,
		LeafCallIDs: []uuid.UUID{leaf},
	}
	registerGraph(t, st, graph, deps)

	_, err := GenerateExecutionOrder(ctx, st, graph)
	var gerr *model.GraphIntegrityError
	require.ErrorAs(t, err, &gerr)
	assert.Contains(t, gerr.Reason, "cycle")
}

func TestGenerateExecutionOrderEmptyFrontier(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	defer st.Close()

	graph := &model.DependencyGraph{ID: uuid.New(), CallCount: 2}
	_, err := GenerateExecutionOrder(ctx, st, graph)
	var gerr *model.GraphIntegrityError
	assert.ErrorAs(t, err, &gerr)
}

func TestReplayExecutionOrderEmptyChain(t *testing.T) {
	st := store.NewMemory()
	defer st.Close()

	order, err := ReplayExecutionOrder(context.Background(), st, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, order)
}

func TestReplayExecutionOrderTerminatesAtRoot(t *testing.T) {
	// The root call id equals the graph id, so the last link points the
	// chain back at the first one; replay must stop there, not loop.
	ctx := context.Background()
	st := store.NewMemory()
	defer st.Close()

	t.Run("single self-closing link", func(t *testing.T) {
		graphID := uuid.New()
		require.NoError(t, st.PutCallLink(ctx, &model.CallLink{LinkID: graphID, CallID: graphID}))

		order, err := ReplayExecutionOrder(ctx, st, graphID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{graphID}, order)
	})

	t.Run("chain closing through intermediate calls", func(t *testing.T) {
		graphID := uuid.New()
		a := uuid.New()
		b := uuid.New()
		require.NoError(t, st.PutCallLink(ctx, &model.CallLink{LinkID: graphID, CallID: a}))
		require.NoError(t, st.PutCallLink(ctx, &model.CallLink{LinkID: a, CallID: b}))
		require.NoError(t, st.PutCallLink(ctx, &model.CallLink{LinkID: b, CallID: graphID}))

		order, err := ReplayExecutionOrder(ctx, st, graphID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{a, b, graphID}, order)
	})
}

func TestReplayExecutionOrderRejectsRevisitingChain(t *testing.T) {
	// A cycle that never reaches the root is a malformed chain, not a
	// terminator.
	ctx := context.Background()
	st := store.NewMemory()
	defer st.Close()

	graphID := uuid.New()
	a := uuid.New()
	b := uuid.New()
	require.NoError(t, st.PutCallLink(ctx, &model.CallLink{LinkID: graphID, CallID: a}))
	require.NoError(t, st.PutCallLink(ctx, &model.CallLink{LinkID: a, CallID: b}))
	require.NoError(t, st.PutCallLink(ctx, &model.CallLink{LinkID: b, CallID: a}))

	_, err := ReplayExecutionOrder(ctx, st, graphID)
	var gerr *model.GraphIntegrityError
	require.ErrorAs(t, err, &gerr)
	assert.Contains(t, gerr.Reason, "revisits")
}

func TestExecutionOrderForCompiledContract(t *testing.T) {
	src := `
def "opt" {
  params = ["t"]
  body   = t < date("2026-03-03") ? choice(market("GAS") - 9, fixing(t + days(1), opt(t + days(1)))) : max(market("GAS") - 9, 0)
}

value = opt(date("2026-03-01"))
`
	ctx := context.Background()
	st := store.NewMemory()
	defer st.Close()
	spec := &model.ContractSpecification{ID: uuid.New(), Source: src}

	graph, err := compiler.GenerateDependencyGraph(ctx, st, spec, 0)
	require.NoError(t, err)

	order, err := GenerateExecutionOrder(ctx, st, graph)
	require.NoError(t, err)

	require.Len(t, order, graph.CallCount)
	assert.Equal(t, graph.LeafCallIDs[0], order[0])
	assert.Equal(t, graph.ID, order[len(order)-1])
}
