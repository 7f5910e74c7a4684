package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/contactsonle/quantdsl/internal/model"
)

// Memory is the in-memory Store. Records are held as canonical JSON so
// write-once comparison is structural and callers cannot alias stored
// state. Safe for concurrent use.
type Memory struct {
	specs        table
	graphs       table
	calls        table
	dependencies table
	dependents   table
	links        table
	results      table
	calibrations table
	simulations  table
	prices       table
	valuations   table
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Close() error { return nil }

// table is one write-once keyspace.
type table struct {
	mu   sync.RWMutex
	rows map[string][]byte
}

func (t *table) put(key string, rec any) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rows == nil {
		t.rows = make(map[string][]byte)
	}
	if existing, ok := t.rows[key]; ok {
		if bytes.Equal(existing, encoded) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrConflict, key)
	}
	t.rows[key] = encoded
	return nil
}

func (t *table) get(key string, out any) error {
	t.mu.RLock()
	encoded, ok := t.rows[key]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return json.Unmarshal(encoded, out)
}

func (m *Memory) PutContractSpecification(_ context.Context, spec *model.ContractSpecification) error {
	return m.specs.put(spec.ID.String(), spec)
}

func (m *Memory) GetContractSpecification(_ context.Context, id uuid.UUID) (*model.ContractSpecification, error) {
	var spec model.ContractSpecification
	if err := m.specs.get(id.String(), &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (m *Memory) PutDependencyGraph(_ context.Context, graph *model.DependencyGraph) error {
	return m.graphs.put(graph.ID.String(), graph)
}

func (m *Memory) GetDependencyGraph(_ context.Context, id uuid.UUID) (*model.DependencyGraph, error) {
	var graph model.DependencyGraph
	if err := m.graphs.get(id.String(), &graph); err != nil {
		return nil, err
	}
	return &graph, nil
}

func (m *Memory) PutCallRequirement(_ context.Context, call *model.CallRequirement) error {
	return m.calls.put(call.CallID.String(), call)
}

func (m *Memory) GetCallRequirement(_ context.Context, id uuid.UUID) (*model.CallRequirement, error) {
	var call model.CallRequirement
	if err := m.calls.get(id.String(), &call); err != nil {
		return nil, err
	}
	return &call, nil
}

func (m *Memory) PutCallDependencies(_ context.Context, deps *model.CallDependencies) error {
	return m.dependencies.put(deps.CallID.String(), deps)
}

func (m *Memory) GetCallDependencies(_ context.Context, id uuid.UUID) (*model.CallDependencies, error) {
	var deps model.CallDependencies
	if err := m.dependencies.get(id.String(), &deps); err != nil {
		return nil, err
	}
	return &deps, nil
}

func (m *Memory) PutCallDependents(_ context.Context, deps *model.CallDependents) error {
	return m.dependents.put(deps.CallID.String(), deps)
}

func (m *Memory) GetCallDependents(_ context.Context, id uuid.UUID) (*model.CallDependents, error) {
	var deps model.CallDependents
	if err := m.dependents.get(id.String(), &deps); err != nil {
		return nil, err
	}
	return &deps, nil
}

func (m *Memory) PutCallLink(_ context.Context, link *model.CallLink) error {
	return m.links.put(link.LinkID.String(), link)
}

func (m *Memory) GetCallLink(_ context.Context, linkID uuid.UUID) (*model.CallLink, error) {
	var link model.CallLink
	if err := m.links.get(linkID.String(), &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (m *Memory) PutCallResult(_ context.Context, result *model.CallResult) error {
	return m.results.put(result.CallID.String(), result)
}

func (m *Memory) GetCallResult(_ context.Context, id uuid.UUID) (*model.CallResult, error) {
	var result model.CallResult
	if err := m.results.get(id.String(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (m *Memory) PutMarketCalibration(_ context.Context, calibration *model.MarketCalibration) error {
	return m.calibrations.put(calibration.ID.String(), calibration)
}

func (m *Memory) GetMarketCalibration(_ context.Context, id uuid.UUID) (*model.MarketCalibration, error) {
	var calibration model.MarketCalibration
	if err := m.calibrations.get(id.String(), &calibration); err != nil {
		return nil, err
	}
	return &calibration, nil
}

func (m *Memory) PutMarketSimulation(_ context.Context, sim *model.MarketSimulation) error {
	return m.simulations.put(sim.ID.String(), sim)
}

func (m *Memory) GetMarketSimulation(_ context.Context, id uuid.UUID) (*model.MarketSimulation, error) {
	var sim model.MarketSimulation
	if err := m.simulations.get(id.String(), &sim); err != nil {
		return nil, err
	}
	return &sim, nil
}

func (m *Memory) PutSimulatedPrice(_ context.Context, price *model.SimulatedPrice) error {
	return m.prices.put(price.ID, price)
}

func (m *Memory) GetSimulatedPrice(_ context.Context, id string) (*model.SimulatedPrice, error) {
	var price model.SimulatedPrice
	if err := m.prices.get(id, &price); err != nil {
		return nil, err
	}
	return &price, nil
}

func (m *Memory) PutContractValuation(_ context.Context, valuation *model.ContractValuation) error {
	return m.valuations.put(valuation.ID.String(), valuation)
}

func (m *Memory) GetContractValuation(_ context.Context, id uuid.UUID) (*model.ContractValuation, error) {
	var valuation model.ContractValuation
	if err := m.valuations.get(id.String(), &valuation); err != nil {
		return nil, err
	}
	return &valuation, nil
}
