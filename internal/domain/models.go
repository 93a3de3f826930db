// Package domain holds the shared vocabulary of the trade-policy simulator:
// countries, actions, tariff policies, trade flows, events, indicator
// snapshots and stability scores. The domain layer is pure - it has no
// infrastructure dependencies and no behavior beyond validation and a few
// derived values.
package domain

import (
	"math"
	"sort"
)

// Country is one participant in the simulation. Countries are created once
// at construction and live for the whole run.
type Country struct {
	Name           string             `json:"name"`
	GDP            float64            `json:"gdp"` // never negative or NaN
	Population     int64              `json:"population"`
	CurrencyValue  float64            `json:"currency_value"`
	BaselineGrowth float64            `json:"baseline_growth"` // annual rate, e.g. 0.02
	BaseInflation  float64            `json:"base_inflation"`
	Unemployment   float64            `json:"unemployment"`
	Sectors        map[string]float64 `json:"sectors,omitempty"` // export sector weights
}

// ApplyGDPDelta adds delta to the country's GDP, guarding the two
// invariants every GDP write must preserve: the value is never negative
// and never NaN/Inf. A non-finite delta is dropped entirely.
func (c *Country) ApplyGDPDelta(delta float64) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return
	}
	c.GDP += delta
	if c.GDP < 0 || math.IsNaN(c.GDP) {
		c.GDP = 0
	}
}

// TariffPolicy is a set of sector tariff rates imposed by one country on
// another for a bounded number of quarters. The end period is derived in
// quarter-index space from the start period.
type TariffPolicy struct {
	ImposingCountry  string             `json:"imposing_country"`
	TargetCountry    string             `json:"target_country"`
	SectorRates      map[string]float64 `json:"sector_rates"`
	Start            Period             `json:"start"`
	DurationQuarters int                `json:"duration_quarters"`
}

// End returns the first period in which the policy is no longer active.
// Duration is floored at one quarter so End is always strictly after Start.
func (p TariffPolicy) End() Period {
	d := p.DurationQuarters
	if d < 1 {
		d = 1
	}
	return p.Start.AddQuarters(d)
}

// ActiveAt reports whether the policy is in force during the given period.
func (p TariffPolicy) ActiveAt(period Period) bool {
	return !period.Before(p.Start) && period.Before(p.End())
}

// AverageRate returns the mean tariff rate across the policy's sectors.
func (p TariffPolicy) AverageRate() float64 {
	if len(p.SectorRates) == 0 {
		return 0
	}
	return SumOrdered(p.SectorRates) / float64(len(p.SectorRates))
}

// TradeFlow is the quarterly export volume from one country to another in
// a single sector. Volumes are floored at zero after any adjustment.
type TradeFlow struct {
	Exporter string  `json:"exporter"`
	Importer string  `json:"importer"`
	Sector   string  `json:"sector"`
	Volume   float64 `json:"volume"`
}

// EventConfig describes one entry of the exogenous event catalog. Scheduled
// events carry a TriggerTime; probabilistic events fire on an independent
// draw against Probability each quarter.
type EventConfig struct {
	Name              string             `json:"name"`
	Description       string             `json:"description"`
	Probability       float64            `json:"probability"`
	TriggerTime       *Period            `json:"trigger_time,omitempty"`
	OneTime           bool               `json:"one_time"`
	DurationQuarters  int                `json:"duration_quarters"`
	AffectedCountries []string           `json:"affected_countries"`
	AffectedSectors   []string           `json:"affected_sectors"`
	GrowthImpact      map[string]float64 `json:"growth_impact"` // per-country growth-rate delta
	MagnitudeRange    [2]float64         `json:"magnitude_range"` // sampled scaling factor, zero value means 1.0
}

// Affects reports whether the event touches the named country.
func (e EventConfig) Affects(country string) bool {
	for _, c := range e.AffectedCountries {
		if c == country {
			return true
		}
	}
	return false
}

// EventInstance is a fired catalog event living in the state until it
// expires. Instances are created only by the event generator, never by
// agents. All optional behavior (trigger time, one-shot) is carried as
// explicit fields on the config rather than injected dynamically.
type EventInstance struct {
	Config    EventConfig `json:"config"`
	Activated Period      `json:"activated"`
	Magnitude float64     `json:"magnitude"` // sampled from the config's magnitude range at fire time
	Applied   bool        `json:"applied"`   // first-quarter effects already applied
}

// Expired reports whether the instance should be removed by the
// expiration sweep at the given period. One-time events expire as soon as
// their first effect has been applied.
func (e EventInstance) Expired(now Period) bool {
	if e.Config.OneTime && e.Applied {
		return true
	}
	elapsed := now.Index() - e.Activated.Index()
	return elapsed >= e.Config.DurationQuarters
}

// IndicatorSnapshot records one country's dynamic indicators for one
// quarter. One snapshot is appended per country per step; the state keeps
// at least the previous snapshot for growth-rate lookback.
type IndicatorSnapshot struct {
	Country            string             `json:"country"`
	Period             Period             `json:"period"`
	GDP                float64            `json:"gdp"`
	GDPGrowth          float64            `json:"gdp_growth"`
	Inflation          float64            `json:"inflation"`
	Unemployment       float64            `json:"unemployment"`
	ConsumerConfidence float64            `json:"consumer_confidence"`
	BusinessConfidence float64            `json:"business_confidence"`
	CurrencyValue      float64            `json:"currency_value"`
	TradeBalance       map[string]float64 `json:"trade_balance"` // per partner
}

// StabilityScope identifies what a stability score describes.
type StabilityScope string

const (
	ScopeCountry StabilityScope = "country"
	ScopeGlobal  StabilityScope = "global"
)

// StabilityScore is a derived [0,1] health summary with a per-factor
// breakdown for explainability. Scores are computed on demand and never
// persisted across steps by the core.
type StabilityScore struct {
	Scope   StabilityScope     `json:"scope"`
	Country string             `json:"country,omitempty"`
	Value   float64            `json:"value"` // clamped to [0,1]
	Factors map[string]float64 `json:"factors"`
	Trend   string             `json:"trend,omitempty"`
}

// Clamp01 bounds v to [0,1]. Stability factor math routes every composite
// through this before it leaves the analyzer.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0.0, math.Min(1.0, v))
}

// SumOrdered adds the map's values in sorted key order. Float addition is
// not associative, so summing in map iteration order would make the last
// ULPs of the result vary between runs. Every aggregate that feeds back
// into simulation state must sum through this.
func SumOrdered(m map[string]float64) float64 {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	total := 0.0
	for _, k := range keys {
		total += m[k]
	}
	return total
}
