package compiler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactsonle/quantdsl/internal/dsl"
	"github.com/contactsonle/quantdsl/internal/model"
	"github.com/contactsonle/quantdsl/internal/store"
)

func mustParse(t *testing.T, src string) *dsl.Module {
	t.Helper()
	mod, err := dsl.Parse("contract.qdsl", []byte(src))
	require.NoError(t, err)
	return mod
}

func stubByID(stubs []model.StubbedCall, id uuid.UUID) *model.StubbedCall {
	for i := range stubs {
		if stubs[i].CallID == id {
			return &stubs[i]
		}
	}
	return nil
}

func TestGenerateStubbedCallsConstantContract(t *testing.T) {
	rootID := uuid.New()
	stubs, err := GenerateStubbedCalls(context.Background(), rootID, mustParse(t, "value = 1 + 2\n"), 0)
	require.NoError(t, err)

	require.Len(t, stubs, 1)
	assert.Equal(t, rootID, stubs[0].CallID)
	assert.Equal(t, "3", stubs[0].DSLSource)
	assert.Empty(t, stubs[0].Dependencies)
	assert.Nil(t, stubs[0].EffectivePresentTime)
}

func TestGenerateStubbedCallsUsesFirstRootExpression(t *testing.T) {
	src := "first = 2 * 3\nsecond = market(\"GAS\")\n"
	rootID := uuid.New()
	stubs, err := GenerateStubbedCalls(context.Background(), rootID, mustParse(t, src), 0)
	require.NoError(t, err)

	require.Len(t, stubs, 1)
	assert.Equal(t, "6", stubs[0].DSLSource)
}

func TestGenerateStubbedCallsRecursiveChain(t *testing.T) {
	src := `
def "opt" {
  params = ["t"]
  body   = t < date("2026-03-03") ? choice(market("GAS") - 9, fixing(t + days(1), opt(t + days(1)))) : max(market("GAS") - 9, 0)
}

value = opt(date("2026-03-01"))
`
	rootID := uuid.New()
	stubs, err := GenerateStubbedCalls(context.Background(), rootID, mustParse(t, src), 0)
	require.NoError(t, err)

	// Root plus one node per exercise date.
	require.Len(t, stubs, 4)

	root := stubByID(stubs, rootID)
	require.NotNil(t, root)
	require.Len(t, root.Dependencies, 1)

	// The chain is linear: each node defers exactly to the next day's
	// evaluation, and the horizon node has no dependencies.
	current := root
	depth := 0
	for len(current.Dependencies) > 0 {
		current = stubByID(stubs, current.Dependencies[0])
		require.NotNil(t, current)
		depth++
	}
	assert.Equal(t, 3, depth)
	assert.Contains(t, current.DSLSource, "max(")
	require.NotNil(t, current.EffectivePresentTime)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), current.EffectivePresentTime.UTC())

	// Intermediate nodes keep their early-exercise structure with the
	// continuation replaced by a stub reference.
	mid := stubByID(stubs, root.Dependencies[0])
	require.NotNil(t, mid)
	assert.Contains(t, mid.DSLSource, "choice(")
	assert.Contains(t, mid.DSLSource, `stub("`)
}

func TestGenerateStubbedCallsDeduplicatesSharedCalls(t *testing.T) {
	src := `
def "leg" {
  params = []
  body   = market("GAS")
}
def "a" {
  params = []
  body   = leg() + 1
}
def "b" {
  params = []
  body   = leg() + 2
}

value = a() + b()
`
	rootID := uuid.New()
	stubs, err := GenerateStubbedCalls(context.Background(), rootID, mustParse(t, src), 0)
	require.NoError(t, err)

	// leg() is reached through both branches but registered once.
	require.Len(t, stubs, 4)

	legID := model.ComputeCallID("leg", nil, nil)
	leg := stubByID(stubs, legID)
	require.NotNil(t, leg)
	assert.Empty(t, leg.Dependencies)

	aID := model.ComputeCallID("a", nil, nil)
	bID := model.ComputeCallID("b", nil, nil)
	assert.Equal(t, []uuid.UUID{legID}, stubByID(stubs, aID).Dependencies)
	assert.Equal(t, []uuid.UUID{legID}, stubByID(stubs, bID).Dependencies)

	root := stubByID(stubs, rootID)
	require.NotNil(t, root)
	assert.ElementsMatch(t, []uuid.UUID{aID, bID}, root.Dependencies)
}

func TestGenerateStubbedCallsRepeatedReferenceWithinOneCaller(t *testing.T) {
	src := `
def "leg" {
  params = []
  body   = market("GAS")
}

value = leg() + leg()
`
	stubs, err := GenerateStubbedCalls(context.Background(), uuid.New(), mustParse(t, src), 0)
	require.NoError(t, err)
	require.Len(t, stubs, 2)
	assert.Len(t, stubs[0].Dependencies, 1)
}

func TestGenerateStubbedCallsBoundsRunawayRecursion(t *testing.T) {
	// No horizon: every expansion defers to the next day forever.
	src := `
def "opt" {
  params = ["t"]
  body   = fixing(t + days(1), opt(t + days(1)))
}

value = opt(date("2026-01-01"))
`
	_, err := GenerateStubbedCalls(context.Background(), uuid.New(), mustParse(t, src), 50)
	var gerr *model.GraphIntegrityError
	require.ErrorAs(t, err, &gerr)
	assert.Contains(t, gerr.Reason, "limit exceeded")
}

func TestGenerateStubbedCallsErrors(t *testing.T) {
	t.Run("undefined function", func(t *testing.T) {
		_, err := GenerateStubbedCalls(context.Background(), uuid.New(), mustParse(t, "value = f(1)\n"), 0)
		assert.ErrorContains(t, err, "undefined function f")
	})

	t.Run("wrong argument count", func(t *testing.T) {
		src := "def \"f\" {\n  params = [\"x\"]\n  body = x\n}\nvalue = f(1, 2)\n"
		_, err := GenerateStubbedCalls(context.Background(), uuid.New(), mustParse(t, src), 0)
		assert.ErrorContains(t, err, "wrong argument count")
	})

	t.Run("unbounded conditional", func(t *testing.T) {
		src := "def \"f\" {\n  params = []\n  body = market(\"GAS\") < 10 ? 1 : 0\n}\nvalue = f()\n"
		_, err := GenerateStubbedCalls(context.Background(), uuid.New(), mustParse(t, src), 0)
		var rerr *dsl.ReductionError
		require.ErrorAs(t, err, &rerr)
		assert.Contains(t, rerr.Reason, "recursion cannot be bounded")
	})
}

func TestGenerateDependencyGraph(t *testing.T) {
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

	graph, err := GenerateDependencyGraph(ctx, st, spec, 0)
	require.NoError(t, err)

	assert.Equal(t, spec.ID, graph.ID)
	assert.Equal(t, spec.ID, graph.ContractSpecificationID)
	assert.Equal(t, 4, graph.CallCount)
	require.Len(t, graph.LeafCallIDs, 1)

	t.Run("requirements and dependencies are registered", func(t *testing.T) {
		leaf, err := st.GetCallRequirement(ctx, graph.LeafCallIDs[0])
		require.NoError(t, err)
		assert.Contains(t, leaf.DSLSource, "max(")

		deps, err := st.GetCallDependencies(ctx, graph.LeafCallIDs[0])
		require.NoError(t, err)
		assert.Empty(t, deps.Dependencies)

		rootDeps, err := st.GetCallDependencies(ctx, graph.ID)
		require.NoError(t, err)
		assert.Len(t, rootDeps.Dependencies, 1)
	})

	t.Run("dependents are the inverted edges", func(t *testing.T) {
		leafDependents, err := st.GetCallDependents(ctx, graph.LeafCallIDs[0])
		require.NoError(t, err)
		require.Len(t, leafDependents.Dependents, 1)

		rootDependents, err := st.GetCallDependents(ctx, graph.ID)
		require.NoError(t, err)
		assert.Empty(t, rootDependents.Dependents)
	})

	t.Run("regeneration is idempotent", func(t *testing.T) {
		again, err := GenerateDependencyGraph(ctx, st, spec, 0)
		require.NoError(t, err)
		assert.Equal(t, graph, again)
	})
}

func TestGraphRequirements(t *testing.T) {
	src := `
def "opt" {
  params = ["t"]
  body   = t < date("2026-03-03") ? choice(market("GAS") - 9, fixing(t + days(1), opt(t + days(1)))) : max(market("NBP") - 9, 0)
}

value = opt(date("2026-03-01"))
`
	ctx := context.Background()
	st := store.NewMemory()
	defer st.Close()
	spec := &model.ContractSpecification{ID: uuid.New(), Source: src}

	graph, err := GenerateDependencyGraph(ctx, st, spec, 0)
	require.NoError(t, err)

	req, err := GraphRequirements(ctx, st, graph.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"GAS", "NBP"}, req.MarketNames)
	assert.Equal(t, []time.Time{
		time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
	}, req.FixingDates)
}
