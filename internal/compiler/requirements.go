package compiler

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/contactsonle/quantdsl/internal/dsl"
	"github.com/contactsonle/quantdsl/internal/model"
	"github.com/contactsonle/quantdsl/internal/store"
)

// Requirements describes what a compiled contract needs from a market
// simulation: the market names it observes and the dates at which it
// fixes or settles. Used to size a simulation before valuing the graph.
type Requirements struct {
	MarketNames []string
	FixingDates []time.Time
}

// GraphRequirements walks every call requirement of a registered graph
// and collects the markets and fixing dates its expressions reference.
func GraphRequirements(ctx context.Context, st store.Store, graphID uuid.UUID) (*Requirements, error) {
	graph, err := st.GetDependencyGraph(ctx, graphID)
	if err != nil {
		return nil, err
	}

	markets := make(map[string]bool)
	dates := make(map[time.Time]bool)

	// Every call is reachable from a leaf through dependents edges.
	visited := make(map[uuid.UUID]bool)
	frontier := append([]uuid.UUID(nil), graph.LeafCallIDs...)
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		call, err := st.GetCallRequirement(ctx, id)
		if err != nil {
			return nil, err
		}
		expr, err := dsl.ParseExpression(call.DSLSource)
		if err != nil {
			return nil, err
		}
		collect(expr, markets, dates)
		if call.EffectivePresentTime != nil {
			dates[call.EffectivePresentTime.UTC()] = true
		}

		dependents, err := st.GetCallDependents(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		frontier = append(frontier, dependents.Dependents...)
	}

	if len(visited) != graph.CallCount {
		return nil, &model.GraphIntegrityError{
			GraphID: graphID,
			Reason:  "dependents registry does not reach every registered call",
		}
	}

	req := &Requirements{}
	for name := range markets {
		req.MarketNames = append(req.MarketNames, name)
	}
	sort.Strings(req.MarketNames)
	for d := range dates {
		req.FixingDates = append(req.FixingDates, d)
	}
	sort.Slice(req.FixingDates, func(i, j int) bool { return req.FixingDates[i].Before(req.FixingDates[j]) })
	return req, nil
}

func collect(expr dsl.Expr, markets map[string]bool, dates map[time.Time]bool) {
	dsl.Walk(expr, func(e dsl.Expr) bool {
		switch n := e.(type) {
		case *dsl.Market:
			if c, ok := n.Name.(*dsl.Constant); ok && c.Value.Kind == dsl.KindString {
				markets[c.Value.Str] = true
			}
		case *dsl.Wait:
			recordDate(n.Time, dates)
		case *dsl.Fixing:
			recordDate(n.Time, dates)
		case *dsl.Settlement:
			recordDate(n.Time, dates)
		}
		return true
	})
}

func recordDate(e dsl.Expr, dates map[time.Time]bool) {
	if c, ok := e.(*dsl.Constant); ok && c.Value.Kind == dsl.KindDate {
		dates[c.Value.Date.UTC()] = true
	}
}
