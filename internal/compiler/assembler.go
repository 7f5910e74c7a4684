package compiler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/contactsonle/quantdsl/internal/ctxlog"
	"github.com/contactsonle/quantdsl/internal/dsl"
	"github.com/contactsonle/quantdsl/internal/metrics"
	"github.com/contactsonle/quantdsl/internal/model"
	"github.com/contactsonle/quantdsl/internal/store"
)

// GenerateDependencyGraph parses a contract specification, expands it
// into stubbed calls, and registers the call requirements, dependency
// sets, and inverted dependents sets. The returned graph record carries
// the leaves (the scheduler's initial frontier) and the total call count
// (the scheduler's completeness check).
func GenerateDependencyGraph(ctx context.Context, st store.Store, spec *model.ContractSpecification, maxCalls int) (*model.DependencyGraph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("generating dependency graph.", "spec_id", spec.ID)

	mod, err := dsl.Parse(spec.ID.String()+".qdsl", []byte(spec.Source))
	if err != nil {
		return nil, err
	}

	stubs, err := GenerateStubbedCalls(ctx, spec.ID, mod, maxCalls)
	if err != nil {
		return nil, err
	}

	var leaves []uuid.UUID
	dependents := make(map[uuid.UUID][]uuid.UUID)
	for _, stub := range stubs {
		if err := register(ctx, st, stub); err != nil {
			return nil, err
		}
		if len(stub.Dependencies) == 0 {
			leaves = append(leaves, stub.CallID)
		}
		for _, dep := range stub.Dependencies {
			dependents[dep] = append(dependents[dep], stub.CallID)
		}
	}

	for callID, deps := range dependents {
		if err := st.PutCallDependents(ctx, &model.CallDependents{CallID: callID, Dependents: deps}); err != nil {
			return nil, wrapConflict(spec.ID, err)
		}
	}
	// The root is consumed by nothing downstream; register that explicitly.
	if err := st.PutCallDependents(ctx, &model.CallDependents{CallID: spec.ID, Dependents: []uuid.UUID{}}); err != nil {
		return nil, wrapConflict(spec.ID, err)
	}

	graph := &model.DependencyGraph{
		ID:                      spec.ID,
		ContractSpecificationID: spec.ID,
		CallCount:               len(stubs),
		LeafCallIDs:             leaves,
	}
	if err := st.PutDependencyGraph(ctx, graph); err != nil {
		return nil, wrapConflict(spec.ID, err)
	}

	metrics.CallsCompiled.Add(float64(len(stubs)))
	logger.Debug("dependency graph registered.", "spec_id", spec.ID, "calls", len(stubs), "leaves", len(leaves))
	return graph, nil
}

// register persists one stubbed call's requirement and dependency set.
// An id collision with differing content is a graph-integrity error, not
// a storage error: the deterministic id scheme guarantees identical
// content for identical ids.
func register(ctx context.Context, st store.Store, stub model.StubbedCall) error {
	err := st.PutCallRequirement(ctx, &model.CallRequirement{
		CallID:               stub.CallID,
		DSLSource:            stub.DSLSource,
		EffectivePresentTime: stub.EffectivePresentTime,
	})
	if err != nil {
		return wrapConflict(stub.CallID, err)
	}

	deps := stub.Dependencies
	if deps == nil {
		deps = []uuid.UUID{}
	}
	if err := st.PutCallDependencies(ctx, &model.CallDependencies{CallID: stub.CallID, Dependencies: deps}); err != nil {
		return wrapConflict(stub.CallID, err)
	}
	return nil
}

func wrapConflict(id uuid.UUID, err error) error {
	if errors.Is(err, store.ErrConflict) {
		return &model.GraphIntegrityError{
			GraphID: id,
			Reason:  fmt.Sprintf("deterministic id collision with differing content: %v", err),
		}
	}
	return err
}
