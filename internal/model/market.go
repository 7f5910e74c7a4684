package model

import (
	"time"

	"github.com/google/uuid"
)

// MarketParams holds the calibrated parameters of one market's price
// process: the spot price at the observation date and the annualized
// volatility of its geometric Brownian motion.
type MarketParams struct {
	Spot       float64 `json:"spot"`
	Volatility float64 `json:"volatility"`
}

// MarketCalibration is the result of fitting a price-process model to
// market data. Parameter estimation is outside this system; calibrations
// are registered with their parameters already computed.
type MarketCalibration struct {
	ID               uuid.UUID               `json:"id"`
	PriceProcessName string                  `json:"price_process_name"`
	Parameters       map[string]MarketParams `json:"parameters"`
}

// MarketSimulation identifies one set of simulated price paths across
// named markets. Immutable once registered; consumed, never mutated, by
// evaluation. InterestRate is a continuously compounded annual rate
// expressed as a decimal fraction (0.05 for 5%).
type MarketSimulation struct {
	ID              uuid.UUID   `json:"id"`
	CalibrationID   uuid.UUID   `json:"calibration_id"`
	MarketNames     []string    `json:"market_names"`
	FixingDates     []time.Time `json:"fixing_dates"`
	ObservationDate time.Time   `json:"observation_date"`
	PathCount       int         `json:"path_count"`
	InterestRate    float64     `json:"interest_rate"`
	Seed            int64       `json:"seed"`
}

// SimulatedPrice is the vector of per-path prices of one market at one
// date within one simulation.
type SimulatedPrice struct {
	ID    string    `json:"id"`
	Paths []float64 `json:"paths"`
}

// SimulatedPriceID derives the repository key for a simulated price.
// Prices are day-granular, so the date component is the UTC calendar day.
func SimulatedPriceID(simulationID uuid.UUID, marketName string, t time.Time) string {
	return simulationID.String() + "/" + marketName + "/" + t.UTC().Format("2006-01-02")
}
