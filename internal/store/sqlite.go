package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/contactsonle/quantdsl/internal/model"
)

// sqliteSchema creates one write-once table per entity kind. Records are
// stored as JSON payloads keyed by their id.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS contract_specifications (id TEXT PRIMARY KEY, payload TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS dependency_graphs       (id TEXT PRIMARY KEY, payload TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS call_requirements       (id TEXT PRIMARY KEY, payload TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS call_dependencies       (id TEXT PRIMARY KEY, payload TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS call_dependents         (id TEXT PRIMARY KEY, payload TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS call_links              (id TEXT PRIMARY KEY, payload TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS call_results            (id TEXT PRIMARY KEY, payload TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS market_calibrations     (id TEXT PRIMARY KEY, payload TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS market_simulations      (id TEXT PRIMARY KEY, payload TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS simulated_prices        (id TEXT PRIMARY KEY, payload TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS contract_valuations     (id TEXT PRIMARY KEY, payload TEXT NOT NULL);
`

// SQLite is the durable Store backed by a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if necessary) a SQLite-backed store at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// put inserts a record, treating an identical existing payload as a no-op
// and a differing one as ErrConflict.
func (s *SQLite) put(ctx context.Context, table, key string, rec any) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (id, payload) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		key, string(encoded))
	if err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	var existing string
	err = s.db.QueryRowContext(ctx, `SELECT payload FROM `+table+` WHERE id = ?`, key).Scan(&existing)
	if err != nil {
		return fmt.Errorf("read back %s/%s: %w", table, key, err)
	}
	if bytes.Equal([]byte(existing), encoded) {
		return nil
	}
	return fmt.Errorf("%w: %s/%s", ErrConflict, table, key)
}

func (s *SQLite) get(ctx context.Context, table, key string, out any) error {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM `+table+` WHERE id = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, table, key)
	}
	if err != nil {
		return fmt.Errorf("select from %s: %w", table, err)
	}
	return json.Unmarshal([]byte(payload), out)
}

func (s *SQLite) PutContractSpecification(ctx context.Context, spec *model.ContractSpecification) error {
	return s.put(ctx, "contract_specifications", spec.ID.String(), spec)
}

func (s *SQLite) GetContractSpecification(ctx context.Context, id uuid.UUID) (*model.ContractSpecification, error) {
	var spec model.ContractSpecification
	if err := s.get(ctx, "contract_specifications", id.String(), &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (s *SQLite) PutDependencyGraph(ctx context.Context, graph *model.DependencyGraph) error {
	return s.put(ctx, "dependency_graphs", graph.ID.String(), graph)
}

func (s *SQLite) GetDependencyGraph(ctx context.Context, id uuid.UUID) (*model.DependencyGraph, error) {
	var graph model.DependencyGraph
	if err := s.get(ctx, "dependency_graphs", id.String(), &graph); err != nil {
		return nil, err
	}
	return &graph, nil
}

func (s *SQLite) PutCallRequirement(ctx context.Context, call *model.CallRequirement) error {
	return s.put(ctx, "call_requirements", call.CallID.String(), call)
}

func (s *SQLite) GetCallRequirement(ctx context.Context, id uuid.UUID) (*model.CallRequirement, error) {
	var call model.CallRequirement
	if err := s.get(ctx, "call_requirements", id.String(), &call); err != nil {
		return nil, err
	}
	return &call, nil
}

func (s *SQLite) PutCallDependencies(ctx context.Context, deps *model.CallDependencies) error {
	return s.put(ctx, "call_dependencies", deps.CallID.String(), deps)
}

func (s *SQLite) GetCallDependencies(ctx context.Context, id uuid.UUID) (*model.CallDependencies, error) {
	var deps model.CallDependencies
	if err := s.get(ctx, "call_dependencies", id.String(), &deps); err != nil {
		return nil, err
	}
	return &deps, nil
}

func (s *SQLite) PutCallDependents(ctx context.Context, deps *model.CallDependents) error {
	return s.put(ctx, "call_dependents", deps.CallID.String(), deps)
}

func (s *SQLite) GetCallDependents(ctx context.Context, id uuid.UUID) (*model.CallDependents, error) {
	var deps model.CallDependents
	if err := s.get(ctx, "call_dependents", id.String(), &deps); err != nil {
		return nil, err
	}
	return &deps, nil
}

func (s *SQLite) PutCallLink(ctx context.Context, link *model.CallLink) error {
	return s.put(ctx, "call_links", link.LinkID.String(), link)
}

func (s *SQLite) GetCallLink(ctx context.Context, linkID uuid.UUID) (*model.CallLink, error) {
	var link model.CallLink
	if err := s.get(ctx, "call_links", linkID.String(), &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (s *SQLite) PutCallResult(ctx context.Context, result *model.CallResult) error {
	return s.put(ctx, "call_results", result.CallID.String(), result)
}

func (s *SQLite) GetCallResult(ctx context.Context, id uuid.UUID) (*model.CallResult, error) {
	var result model.CallResult
	if err := s.get(ctx, "call_results", id.String(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *SQLite) PutMarketCalibration(ctx context.Context, calibration *model.MarketCalibration) error {
	return s.put(ctx, "market_calibrations", calibration.ID.String(), calibration)
}

func (s *SQLite) GetMarketCalibration(ctx context.Context, id uuid.UUID) (*model.MarketCalibration, error) {
	var calibration model.MarketCalibration
	if err := s.get(ctx, "market_calibrations", id.String(), &calibration); err != nil {
		return nil, err
	}
	return &calibration, nil
}

func (s *SQLite) PutMarketSimulation(ctx context.Context, sim *model.MarketSimulation) error {
	return s.put(ctx, "market_simulations", sim.ID.String(), sim)
}

func (s *SQLite) GetMarketSimulation(ctx context.Context, id uuid.UUID) (*model.MarketSimulation, error) {
	var sim model.MarketSimulation
	if err := s.get(ctx, "market_simulations", id.String(), &sim); err != nil {
		return nil, err
	}
	return &sim, nil
}

func (s *SQLite) PutSimulatedPrice(ctx context.Context, price *model.SimulatedPrice) error {
	return s.put(ctx, "simulated_prices", price.ID, price)
}

func (s *SQLite) GetSimulatedPrice(ctx context.Context, id string) (*model.SimulatedPrice, error) {
	var price model.SimulatedPrice
	if err := s.get(ctx, "simulated_prices", id, &price); err != nil {
		return nil, err
	}
	return &price, nil
}

func (s *SQLite) PutContractValuation(ctx context.Context, valuation *model.ContractValuation) error {
	return s.put(ctx, "contract_valuations", valuation.ID.String(), valuation)
}

func (s *SQLite) GetContractValuation(ctx context.Context, id uuid.UUID) (*model.ContractValuation, error) {
	var valuation model.ContractValuation
	if err := s.get(ctx, "contract_valuations", id.String(), &valuation); err != nil {
		return nil, err
	}
	return &valuation, nil
}
