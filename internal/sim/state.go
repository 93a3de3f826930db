// Package sim implements the simulation core: the mutable per-simulation
// state, the deterministic step engine, the exogenous event generator and
// the stability analyzer.
package sim

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"

	"github.com/policylab/tradewar/internal/domain"
	"github.com/policylab/tradewar/internal/economics"
	"github.com/policylab/tradewar/pkg/logger"
)

// Indicator calibration constants. Confidence indices live on a 0-200
// scale centered at 100. All weights are explicit so hosts can reason
// about (and tests can pin) indicator behavior.
const (
	// FallbackGrowthRate is returned when a growth lookback is impossible
	// (fewer than two snapshots, or a zero previous GDP).
	FallbackGrowthRate = 0.02

	// TariffInflationWeight scales the recency-weighted tariff price
	// effect into an inflation contribution.
	TariffInflationWeight = 0.3

	// InflationRecencyDecay halves the weight of a tariff price effect
	// for every quarter of age.
	InflationRecencyDecay     = 0.5
	InflationLookbackQuarters = 4

	// OkunCoefficient relates growth deviation from trend to the change
	// in unemployment.
	OkunCoefficient = 0.4
	MinUnemployment = 0.02
	MaxUnemployment = 0.20

	// TargetInflation and InflationDeviationThreshold define the band
	// outside which confidence indices start penalizing inflation.
	TargetInflation             = 0.02
	InflationDeviationThreshold = 0.01

	ConfidenceBase = 100.0
	ConfidenceMin  = 0.0
	ConfidenceMax  = 200.0

	// Consumer confidence weights.
	ConsumerGrowthWeight       = 400.0 // +1pp quarterly growth -> +4 points
	ConsumerInflationWeight    = 800.0 // per unit of deviation beyond the band
	ConsumerUnemploymentWeight = 500.0 // per unit of unemployment increase

	// Business confidence weights.
	BusinessGrowthWeight       = 500.0
	BusinessTariffWeight       = 40.0 // per unit of average incoming tariff rate
	BusinessTradeBalanceWeight = 0.5  // per unit of balance deterioration relative to GDP percent

	// actionHistoryWindow bounds the recent-action list used by the
	// calculators; the full action log is unbounded history.
	actionHistoryWindow = 10

	// defaultIndicatorWindow bounds per-country snapshot history. At
	// least two snapshots are always retained for growth lookback.
	defaultIndicatorWindow = 40
)

// Profile is the flat numeric baseline supplied per country at
// construction. Zero values get sensible defaults.
type Profile struct {
	GDP            float64            `json:"gdp"`
	Population     int64              `json:"population"`
	CurrencyValue  float64            `json:"currency_value"`
	BaselineGrowth float64            `json:"baseline_growth"` // annual
	BaseInflation  float64            `json:"base_inflation"`
	Unemployment   float64            `json:"unemployment"`
	Sectors        map[string]float64 `json:"sectors,omitempty"`
}

type priceEffect struct {
	Period domain.Period
	Effect float64 // average consumer price increase across sectors
}

// QuotaRecord is an import quota applied by Importer against Exporter.
type QuotaRecord struct {
	Importer string
	Exporter string
	Sectors  []string
	Factor   float64 // multiplicative, in [0.1, 1.0]
	Period   domain.Period
}

// SubsidyRecord tracks subsidy-style actions for inspection and scoring.
type SubsidyRecord struct {
	Country   string
	Kind      domain.ActionType
	Sectors   []string
	Magnitude float64
	Period    domain.Period
}

// State owns all mutable entities of one running simulation. It is not
// safe for concurrent use; the engine and any host must serialize access.
type State struct {
	Now domain.Period

	countries []*domain.Country // stable, sorted by name
	byName    map[string]*domain.Country

	Flows    []domain.TradeFlow
	Policies []domain.TariffPolicy
	Events   []domain.EventInstance

	indicators map[string][]domain.IndicatorSnapshot
	recent     []domain.EconomicAction
	actionLog  []domain.EconomicAction

	priceFx   map[string][]priceEffect
	Quotas    []QuotaRecord
	Subsidies []SubsidyRecord

	rng             *rand.Rand
	indicatorWindow int
	log             zerolog.Logger
}

// NewState builds the state for one simulation. The RNG is seeded here,
// once per instance, and threaded explicitly into the calculators and the
// event generator; identical seeds reproduce identical trajectories.
// An empty profile map is a fatal configuration error.
func NewState(profiles map[string]Profile, seed int64, log zerolog.Logger) (*State, error) {
	if len(profiles) == 0 {
		return nil, domain.ErrNoCountries
	}

	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	s := &State{
		byName:          make(map[string]*domain.Country, len(profiles)),
		indicators:      make(map[string][]domain.IndicatorSnapshot, len(profiles)),
		priceFx:         make(map[string][]priceEffect, len(profiles)),
		indicatorWindow: defaultIndicatorWindow,
		rng:             rand.New(rand.NewSource(seed)),
		log:             logger.ForComponent(log, "state"),
	}

	for _, name := range names {
		p := profiles[name]
		c := &domain.Country{
			Name:           name,
			GDP:            math.Max(0, p.GDP),
			Population:     p.Population,
			CurrencyValue:  p.CurrencyValue,
			BaselineGrowth: p.BaselineGrowth,
			BaseInflation:  p.BaseInflation,
			Unemployment:   p.Unemployment,
			Sectors:        p.Sectors,
		}
		if c.CurrencyValue <= 0 {
			c.CurrencyValue = 1.0
		}
		if c.BaseInflation == 0 {
			c.BaseInflation = TargetInflation
		}
		if c.Unemployment == 0 {
			c.Unemployment = 0.05
		}
		s.countries = append(s.countries, c)
		s.byName[name] = c
		s.indicators[name] = nil
	}

	return s, nil
}

// Countries returns the participants in stable (sorted) order.
func (s *State) Countries() []*domain.Country {
	return s.countries
}

// Country resolves a country by name.
func (s *State) Country(name string) (*domain.Country, bool) {
	c, ok := s.byName[name]
	return c, ok
}

// Rng exposes the per-simulation random source. Calculators and the event
// generator receive it explicitly; nothing in the core touches the global
// math/rand state.
func (s *State) Rng() *rand.Rand {
	return s.rng
}

// AddAction validates and appends an action to the log. Unknown country
// references produce a non-fatal ValidationError; the caller logs and
// skips the action and the step continues.
func (s *State) AddAction(a domain.EconomicAction) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if _, ok := s.byName[a.Country]; !ok {
		return &domain.ValidationError{Field: "country", Reason: fmt.Sprintf("unknown country %q", a.Country)}
	}
	if a.TargetCountry != "" {
		if _, ok := s.byName[a.TargetCountry]; !ok {
			return &domain.ValidationError{Field: "target_country", Reason: fmt.Sprintf("unknown country %q", a.TargetCountry)}
		}
	}

	s.recent = append(s.recent, a)
	if len(s.recent) > actionHistoryWindow {
		s.recent = s.recent[len(s.recent)-actionHistoryWindow:]
	}
	s.actionLog = append(s.actionLog, a)
	return nil
}

// RecentActions returns the bounded recent-action window.
func (s *State) RecentActions() []domain.EconomicAction {
	return s.recent
}

// ActionLog returns the full immutable action history.
func (s *State) ActionLog() []domain.EconomicAction {
	return s.actionLog
}

// ActionsAt returns the accepted actions for one period.
func (s *State) ActionsAt(p domain.Period) []domain.EconomicAction {
	var out []domain.EconomicAction
	for _, a := range s.actionLog {
		if a.Period == p {
			out = append(out, a)
		}
	}
	return out
}

// AddTradeFlow validates and appends (or merges into) a trade flow.
// Unknown country references are rejected with a ValidationError; negative
// volumes are floored at zero.
func (s *State) AddTradeFlow(f domain.TradeFlow) error {
	if _, ok := s.byName[f.Exporter]; !ok {
		return &domain.ValidationError{Field: "exporter", Reason: fmt.Sprintf("unknown country %q", f.Exporter)}
	}
	if _, ok := s.byName[f.Importer]; !ok {
		return &domain.ValidationError{Field: "importer", Reason: fmt.Sprintf("unknown country %q", f.Importer)}
	}
	if f.Exporter == f.Importer {
		return &domain.ValidationError{Field: "importer", Reason: "flow endpoints must differ"}
	}
	if f.Volume < 0 {
		f.Volume = 0
	}
	for i := range s.Flows {
		if s.Flows[i].Exporter == f.Exporter && s.Flows[i].Importer == f.Importer && s.Flows[i].Sector == f.Sector {
			s.Flows[i].Volume = f.Volume
			return nil
		}
	}
	s.Flows = append(s.Flows, f)
	return nil
}

// AdjustFlow applies a volume delta to the identified flow, flooring the
// result at zero. Missing flows are created when the delta is positive.
func (s *State) AdjustFlow(exporter, importer, sector string, delta float64) {
	for i := range s.Flows {
		f := &s.Flows[i]
		if f.Exporter == exporter && f.Importer == importer && f.Sector == sector {
			f.Volume += delta
			if f.Volume < 0 {
				f.Volume = 0
			}
			return
		}
	}
	if delta > 0 {
		s.Flows = append(s.Flows, domain.TradeFlow{
			Exporter: exporter, Importer: importer, Sector: sector, Volume: delta,
		})
	}
}

// ScaleFlow multiplies the identified flow's volume by factor.
func (s *State) ScaleFlow(exporter, importer, sector string, factor float64) {
	for i := range s.Flows {
		f := &s.Flows[i]
		if f.Exporter == exporter && f.Importer == importer && f.Sector == sector {
			f.Volume *= factor
			if f.Volume < 0 {
				f.Volume = 0
			}
			return
		}
	}
}

// FlowVolumes returns the current volumes from exporter to importer keyed
// by sector.
func (s *State) FlowVolumes(exporter, importer string) map[string]float64 {
	out := make(map[string]float64)
	for _, f := range s.Flows {
		if f.Exporter == exporter && f.Importer == importer {
			out[f.Sector] += f.Volume
		}
	}
	return out
}

// AddTariffPolicy registers a policy in the active set.
func (s *State) AddTariffPolicy(p domain.TariffPolicy) {
	s.Policies = append(s.Policies, p)
}

// PoliciesImposedBy returns active policies imposed by the named country.
func (s *State) PoliciesImposedBy(name string) []domain.TariffPolicy {
	var out []domain.TariffPolicy
	for _, p := range s.Policies {
		if p.ImposingCountry == name {
			out = append(out, p)
		}
	}
	return out
}

// PoliciesTargeting returns active policies targeting the named country.
func (s *State) PoliciesTargeting(name string) []domain.TariffPolicy {
	var out []domain.TariffPolicy
	for _, p := range s.Policies {
		if p.TargetCountry == name {
			out = append(out, p)
		}
	}
	return out
}

// AddEvent registers a fired event instance.
func (s *State) AddEvent(e domain.EventInstance) {
	s.Events = append(s.Events, e)
}

// RecordPriceEffects stores the average tariff price effect hitting a
// country this quarter; inflation derives from the recency-weighted
// history of these entries.
func (s *State) RecordPriceEffects(country string, effects map[string]float64, period domain.Period) {
	if len(effects) == 0 {
		return
	}
	s.priceFx[country] = append(s.priceFx[country], priceEffect{
		Period: period,
		Effect: domain.SumOrdered(effects) / float64(len(effects)),
	})
}

// RemoveExpiredItems purges expired tariff policies and events. It must
// run once per step, after indicators are recomputed and before new events
// are injected: effects have to apply before they can expire. The active
// sets therefore never grow without bound.
func (s *State) RemoveExpiredItems() (policies, events int) {
	keptP := s.Policies[:0]
	for _, p := range s.Policies {
		if s.Now.Before(p.End()) {
			keptP = append(keptP, p)
		} else {
			policies++
			s.log.Debug().
				Str("imposer", p.ImposingCountry).
				Str("target", p.TargetCountry).
				Stringer("end", p.End()).
				Msg("Tariff policy expired")
		}
	}
	s.Policies = keptP

	keptE := s.Events[:0]
	for _, e := range s.Events {
		if !e.Expired(s.Now) {
			keptE = append(keptE, e)
		} else {
			events++
			s.log.Debug().Str("event", e.Config.Name).Msg("Event expired")
		}
	}
	s.Events = keptE
	return policies, events
}

// ComputeGDPGrowth returns the growth rate between the two most recent
// snapshots of a country. With fewer than two snapshots, or a zero
// previous GDP, it returns the fixed fallback rate instead of failing.
func (s *State) ComputeGDPGrowth(country string) float64 {
	snaps := s.indicators[country]
	if len(snaps) < 2 {
		return FallbackGrowthRate
	}
	prev := snaps[len(snaps)-2].GDP
	cur := snaps[len(snaps)-1].GDP
	return growthRate(cur, prev)
}

// growthRate guards the division: zero or non-finite inputs yield the
// fallback rate.
func growthRate(cur, prev float64) float64 {
	if prev == 0 || math.IsNaN(prev) || math.IsNaN(cur) {
		return FallbackGrowthRate
	}
	g := (cur - prev) / prev
	if math.IsNaN(g) || math.IsInf(g, 0) {
		return FallbackGrowthRate
	}
	return g
}

// pendingGrowth computes the growth rate for the snapshot being built:
// current live GDP against the last recorded snapshot.
func (s *State) pendingGrowth(c *domain.Country) float64 {
	snaps := s.indicators[c.Name]
	if len(snaps) == 0 {
		return FallbackGrowthRate
	}
	return growthRate(c.GDP, snaps[len(snaps)-1].GDP)
}

// ComputeInflation returns base inflation plus a recency-weighted average
// of recent tariff-induced price effects on the country.
func (s *State) ComputeInflation(country string) float64 {
	c, ok := s.byName[country]
	if !ok {
		return TargetInflation
	}
	base := c.BaseInflation

	history := s.priceFx[country]
	weightedSum, weightTotal := 0.0, 0.0
	for _, pe := range history {
		age := s.Now.Index() - pe.Period.Index()
		if age < 0 || age > InflationLookbackQuarters {
			continue
		}
		w := math.Pow(InflationRecencyDecay, float64(age))
		weightedSum += pe.Effect * w
		weightTotal += w
	}
	if weightTotal == 0 {
		return base
	}
	return base + (weightedSum/weightTotal)*TariffInflationWeight
}

// ComputeUnemployment applies an Okun's-law style update: unemployment
// moves against the gap between realized growth and trend growth, clamped
// to [MinUnemployment, MaxUnemployment].
func (s *State) ComputeUnemployment(country string) float64 {
	c, ok := s.byName[country]
	if !ok {
		return MinUnemployment
	}
	prev := c.Unemployment
	if snaps := s.indicators[country]; len(snaps) > 0 {
		prev = snaps[len(snaps)-1].Unemployment
	}

	growth := s.pendingGrowth(c)
	trend := economics.BaselineQuarterlyGrowth(c.BaselineGrowth)
	u := prev - OkunCoefficient*(growth-trend)
	return math.Max(MinUnemployment, math.Min(MaxUnemployment, u))
}

// ComputeConsumerConfidence builds the consumer index: growth is
// rewarded, inflation deviation beyond the threshold band and rising
// unemployment are penalized.
func (s *State) ComputeConsumerConfidence(country string) float64 {
	c, ok := s.byName[country]
	if !ok {
		return ConfidenceBase
	}

	growth := s.pendingGrowth(c)
	inflation := s.ComputeInflation(country)
	unemployment := s.ComputeUnemployment(country)

	prevUnemployment := c.Unemployment
	if snaps := s.indicators[country]; len(snaps) > 0 {
		prevUnemployment = snaps[len(snaps)-1].Unemployment
	}

	idx := ConfidenceBase
	idx += growth * ConsumerGrowthWeight

	deviation := math.Abs(inflation - TargetInflation)
	if deviation > InflationDeviationThreshold {
		idx -= (deviation - InflationDeviationThreshold) * ConsumerInflationWeight
	}
	if rise := unemployment - prevUnemployment; rise > 0 {
		idx -= rise * ConsumerUnemploymentWeight
	}

	return clampConfidence(idx)
}

// ComputeBusinessConfidence builds the business index: growth is
// rewarded, incoming tariff severity and trade-balance deterioration are
// penalized.
func (s *State) ComputeBusinessConfidence(country string) float64 {
	c, ok := s.byName[country]
	if !ok {
		return ConfidenceBase
	}

	idx := ConfidenceBase
	idx += s.pendingGrowth(c) * BusinessGrowthWeight

	incoming := s.PoliciesTargeting(country)
	if len(incoming) > 0 {
		total := 0.0
		for _, p := range incoming {
			total += p.AverageRate()
		}
		idx -= (total / float64(len(incoming))) * BusinessTariffWeight
	}

	// Trade-balance deterioration relative to the previous snapshot,
	// expressed in percent of GDP.
	if snaps := s.indicators[country]; len(snaps) > 0 && c.GDP > 0 {
		prevTotal := domain.SumOrdered(snaps[len(snaps)-1].TradeBalance)
		curTotal := domain.SumOrdered(s.TradeBalances(country))
		if drop := prevTotal - curTotal; drop > 0 {
			idx -= (drop / c.GDP) * 100 * BusinessTradeBalanceWeight
		}
	}

	return clampConfidence(idx)
}

func clampConfidence(v float64) float64 {
	if math.IsNaN(v) {
		return ConfidenceBase
	}
	return math.Max(ConfidenceMin, math.Min(ConfidenceMax, v))
}

// TradeBalances returns the bilateral balances of a country against every
// partner, positive meaning surplus.
func (s *State) TradeBalances(country string) map[string]float64 {
	out := make(map[string]float64, len(s.countries)-1)
	for _, partner := range s.countries {
		if partner.Name == country {
			continue
		}
		out[partner.Name] = economics.TradeBalance(s.Flows, country, partner.Name)
	}
	return out
}

// RecomputeIndicators derives the dynamic indicators for every country
// and appends one snapshot each for the current period. Histories are
// truncated to the indicator window but always keep the lookback entry.
func (s *State) RecomputeIndicators() {
	for _, c := range s.countries {
		snap := domain.IndicatorSnapshot{
			Country:            c.Name,
			Period:             s.Now,
			GDP:                c.GDP,
			GDPGrowth:          s.pendingGrowth(c),
			Inflation:          s.ComputeInflation(c.Name),
			Unemployment:       s.ComputeUnemployment(c.Name),
			ConsumerConfidence: s.ComputeConsumerConfidence(c.Name),
			BusinessConfidence: s.ComputeBusinessConfidence(c.Name),
			CurrencyValue:      c.CurrencyValue,
			TradeBalance:       s.TradeBalances(c.Name),
		}
		// Snapshot-derived values feed back into the live country record
		// so the next step starts from this quarter's levels.
		c.Unemployment = snap.Unemployment

		hist := append(s.indicators[c.Name], snap)
		if len(hist) > s.indicatorWindow && s.indicatorWindow >= 2 {
			hist = hist[len(hist)-s.indicatorWindow:]
		}
		s.indicators[c.Name] = hist
	}
}

// Indicators returns the snapshot history of a country, oldest first.
func (s *State) Indicators(country string) []domain.IndicatorSnapshot {
	return s.indicators[country]
}

// LatestIndicator returns the most recent snapshot of a country.
func (s *State) LatestIndicator(country string) (domain.IndicatorSnapshot, bool) {
	snaps := s.indicators[country]
	if len(snaps) == 0 {
		return domain.IndicatorSnapshot{}, false
	}
	return snaps[len(snaps)-1], true
}

// Clone returns a deep copy of the state. The copy receives its own RNG
// seeded from the original's next draw; note that cloning therefore
// consumes one draw from the original's sequence.
func (s *State) Clone() *State {
	c := &State{
		Now:             s.Now,
		byName:          make(map[string]*domain.Country, len(s.byName)),
		indicators:      make(map[string][]domain.IndicatorSnapshot, len(s.indicators)),
		priceFx:         make(map[string][]priceEffect, len(s.priceFx)),
		indicatorWindow: s.indicatorWindow,
		rng:             rand.New(rand.NewSource(s.rng.Int63())),
		log:             s.log,
	}
	for _, country := range s.countries {
		cp := *country
		cp.Sectors = copyFloatMap(country.Sectors)
		c.countries = append(c.countries, &cp)
		c.byName[cp.Name] = &cp
	}
	c.Flows = append([]domain.TradeFlow(nil), s.Flows...)
	c.Policies = make([]domain.TariffPolicy, len(s.Policies))
	for i, p := range s.Policies {
		p.SectorRates = copyFloatMap(p.SectorRates)
		c.Policies[i] = p
	}
	c.Events = append([]domain.EventInstance(nil), s.Events...)
	c.recent = append([]domain.EconomicAction(nil), s.recent...)
	c.actionLog = append([]domain.EconomicAction(nil), s.actionLog...)
	c.Quotas = append([]QuotaRecord(nil), s.Quotas...)
	c.Subsidies = append([]SubsidyRecord(nil), s.Subsidies...)
	for name, snaps := range s.indicators {
		c.indicators[name] = append([]domain.IndicatorSnapshot(nil), snaps...)
	}
	for name, fx := range s.priceFx {
		c.priceFx[name] = append([]priceEffect(nil), fx...)
	}
	return c
}

func copyFloatMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
