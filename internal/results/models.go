// Package results persists per-quarter simulation output to SQLite and
// serves it back for analysis.
package results

import (
	"github.com/policylab/tradewar/internal/domain"
)

// StepRecord is everything worth keeping from one simulation quarter.
type StepRecord struct {
	SimulationID string                        `json:"simulation_id"`
	Period       domain.Period                 `json:"period"`
	Countries    []CountrySnapshot             `json:"countries"`
	Actions      []domain.EconomicAction       `json:"actions"`
	EventsFired  []string                      `json:"events_fired"`
	Global       domain.StabilityScore         `json:"global_stability"`
	Stability    map[string]domain.StabilityScore `json:"country_stability"`
}

// CountrySnapshot captures one country's position at the end of a
// quarter. The map-valued fields are stored as msgpack blobs.
type CountrySnapshot struct {
	Country       string             `json:"country"`
	GDP           float64            `json:"gdp"`
	CurrencyValue float64            `json:"currency_value"`
	GDPGrowth     float64            `json:"gdp_growth"`
	Inflation     float64            `json:"inflation"`
	Unemployment  float64            `json:"unemployment"`
	Consumer      float64            `json:"consumer_confidence"`
	Business      float64            `json:"business_confidence"`
	TradeBalance  map[string]float64 `json:"trade_balance"`
	GrowthFactors map[string]float64 `json:"growth_factors"`
}

// RunSummary describes one stored simulation run.
type RunSummary struct {
	SimulationID string        `json:"simulation_id"`
	Seed         int64         `json:"seed"`
	Countries    []string      `json:"countries"`
	LastPeriod   domain.Period `json:"last_period"`
	Steps        int           `json:"steps"`
	CreatedAt    string        `json:"created_at"`
}
