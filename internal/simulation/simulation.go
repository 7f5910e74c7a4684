// Package simulation registers market calibrations and generates market
// simulations: geometric Brownian motion price paths per market across an
// observation date and a set of fixing dates, written to the
// simulated-price repository for lookup during evaluation.
package simulation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/contactsonle/quantdsl/internal/ctxlog"
	"github.com/contactsonle/quantdsl/internal/dsl"
	"github.com/contactsonle/quantdsl/internal/model"
	"github.com/contactsonle/quantdsl/internal/store"
)

// RegisterMarketCalibration stores a calibration: per-market spot and
// volatility under a named price process. Parameter estimation happens
// upstream; calibrations arrive already computed.
func RegisterMarketCalibration(ctx context.Context, st store.Store, priceProcessName string, params map[string]model.MarketParams) (*model.MarketCalibration, error) {
	calibration := &model.MarketCalibration{
		ID:               uuid.New(),
		PriceProcessName: priceProcessName,
		Parameters:       params,
	}
	if err := st.PutMarketCalibration(ctx, calibration); err != nil {
		return nil, err
	}
	return calibration, nil
}

// GenerateParams describes one market simulation to generate.
type GenerateParams struct {
	CalibrationID   uuid.UUID
	MarketNames     []string
	FixingDates     []time.Time
	ObservationDate time.Time
	PathCount       int
	InterestRate    float64
	Seed            int64
}

// Generate registers a market simulation and writes its simulated price
// vectors. Each market evolves as geometric Brownian motion under the
// risk-neutral drift, stepping from the observation date through the
// fixing dates in order. Generation is deterministic for a given seed.
func Generate(ctx context.Context, st store.Store, p GenerateParams) (*model.MarketSimulation, error) {
	logger := ctxlog.FromContext(ctx)

	if p.PathCount <= 0 {
		return nil, fmt.Errorf("path count must be positive, got %d", p.PathCount)
	}
	calibration, err := st.GetMarketCalibration(ctx, p.CalibrationID)
	if err != nil {
		return nil, err
	}

	dates := fixingSchedule(p.ObservationDate, p.FixingDates)
	if dates[0].Before(p.ObservationDate) {
		return nil, fmt.Errorf("fixing date %s precedes observation date %s",
			dates[0].Format("2006-01-02"), p.ObservationDate.Format("2006-01-02"))
	}

	sim := &model.MarketSimulation{
		ID:              uuid.New(),
		CalibrationID:   p.CalibrationID,
		MarketNames:     p.MarketNames,
		FixingDates:     p.FixingDates,
		ObservationDate: p.ObservationDate,
		PathCount:       p.PathCount,
		InterestRate:    p.InterestRate,
		Seed:            p.Seed,
	}
	if err := st.PutMarketSimulation(ctx, sim); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(p.Seed))

	// Markets are simulated in name order so a seed pins every path.
	names := append([]string(nil), p.MarketNames...)
	sort.Strings(names)
	for _, name := range names {
		params, ok := calibration.Parameters[name]
		if !ok {
			return nil, fmt.Errorf("calibration %s has no parameters for market %q", calibration.ID, name)
		}
		if err := simulateMarket(ctx, st, sim, name, params, dates, rng); err != nil {
			return nil, err
		}
	}

	logger.Debug("market simulation generated.",
		"simulation_id", sim.ID, "markets", len(names), "dates", len(dates), "paths", p.PathCount)
	return sim, nil
}

// fixingSchedule is the observation date plus the fixing dates, sorted
// and deduplicated by calendar day.
func fixingSchedule(observation time.Time, fixings []time.Time) []time.Time {
	byDay := map[string]time.Time{
		observation.UTC().Format("2006-01-02"): observation.UTC(),
	}
	for _, t := range fixings {
		byDay[t.UTC().Format("2006-01-02")] = t.UTC()
	}
	dates := make([]time.Time, 0, len(byDay))
	for _, t := range byDay {
		dates = append(dates, t)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func simulateMarket(ctx context.Context, st store.Store, sim *model.MarketSimulation, name string, params model.MarketParams, dates []time.Time, rng *rand.Rand) error {
	paths := make([]float64, sim.PathCount)
	for i := range paths {
		paths[i] = params.Spot
	}

	prev := dates[0]
	for _, date := range dates {
		dt := dsl.YearFraction(prev, date)
		if dt > 0 {
			drift := (sim.InterestRate - 0.5*params.Volatility*params.Volatility) * dt
			diffusion := params.Volatility * math.Sqrt(dt)
			for i := range paths {
				paths[i] *= math.Exp(drift + diffusion*rng.NormFloat64())
			}
		}
		prev = date

		price := &model.SimulatedPrice{
			ID:    model.SimulatedPriceID(sim.ID, name, date),
			Paths: append([]float64(nil), paths...),
		}
		if err := st.PutSimulatedPrice(ctx, price); err != nil {
			return err
		}
	}
	return nil
}

// PriceRepo adapts the store to the DSL's price lookup interface.
type PriceRepo struct {
	st store.Store
}

// NewPriceRepo creates a PriceRepo over st.
func NewPriceRepo(st store.Store) *PriceRepo {
	return &PriceRepo{st: st}
}

// Price returns the simulated per-path prices of a market at a time.
func (r *PriceRepo) Price(ctx context.Context, simulationID uuid.UUID, marketName string, t time.Time) ([]float64, error) {
	price, err := r.st.GetSimulatedPrice(ctx, model.SimulatedPriceID(simulationID, marketName, t))
	if err != nil {
		return nil, fmt.Errorf("market %q at %s: %w", marketName, t.Format("2006-01-02"), err)
	}
	return price.Paths, nil
}
