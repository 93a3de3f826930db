package sim

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/policylab/tradewar/internal/domain"
	"github.com/policylab/tradewar/pkg/logger"
)

// Stability factor weights. Country and global weights each sum to 1.0.
const (
	CountryWeightGDPGrowth    = 0.25
	CountryWeightInflation    = 0.15
	CountryWeightUnemployment = 0.15
	CountryWeightTariffImpact = 0.20
	CountryWeightTradeBalance = 0.15
	CountryWeightConfidence   = 0.10

	GlobalWeightTariffLevel    = 0.25
	GlobalWeightRetaliation    = 0.25
	GlobalWeightTradeImbalance = 0.20
	GlobalWeightVolatility     = 0.20
	GlobalWeightEvents         = 0.10

	// NeutralStability is returned when there is not enough data to
	// score anything.
	NeutralStability = 0.5

	// trendWindow is how many past global scores feed the trend slope.
	trendWindow = 5
	// trendSlopeBand is the slope magnitude below which the trend is
	// called stable.
	trendSlopeBand = 0.01

	// eventImpactScale normalizes average event impact into [0,1]; a 2%
	// average growth impact zeroes the factor.
	eventImpactScale = 0.02
)

// StabilityThresholds tune how aggressively factors are penalized.
type StabilityThresholds struct {
	TariffThreshold     float64 // average tariff rate that zeroes the tariff factor
	VolatilityThreshold float64 // indicator std-dev that zeroes the volatility factor
	DeficitThreshold    float64 // |trade balance|/GDP that zeroes the imbalance factor
}

// DefaultStabilityThresholds mirrors the analyzer's standard calibration.
func DefaultStabilityThresholds() StabilityThresholds {
	return StabilityThresholds{
		TariffThreshold:     0.25,
		VolatilityThreshold: 0.03,
		DeficitThreshold:    0.10,
	}
}

// StabilityAnalyzer scores a finalized state. The scoring methods are
// pure reads: calling them twice on an unmutated state yields identical
// results. Trend memory is advanced only by the explicit Observe call,
// which hosts invoke once per step.
type StabilityAnalyzer struct {
	thresholds StabilityThresholds
	history    []float64 // recent global scores, oldest first
	log        zerolog.Logger
}

// NewStabilityAnalyzer builds an analyzer with the given thresholds.
func NewStabilityAnalyzer(thresholds StabilityThresholds, log zerolog.Logger) *StabilityAnalyzer {
	if thresholds == (StabilityThresholds{}) {
		thresholds = DefaultStabilityThresholds()
	}
	return &StabilityAnalyzer{
		thresholds: thresholds,
		log:        logger.ForComponent(log, "stability"),
	}
}

// Observe records a global score for trend analysis. Keep at most
// trendWindow entries.
func (a *StabilityAnalyzer) Observe(score float64) {
	a.history = append(a.history, score)
	if len(a.history) > trendWindow {
		a.history = a.history[len(a.history)-trendWindow:]
	}
}

// CountryStability scores one country's economic health in [0,1] with a
// factor breakdown.
func (a *StabilityAnalyzer) CountryStability(state *State, country string) domain.StabilityScore {
	latest, ok := state.LatestIndicator(country)
	if !ok {
		return domain.StabilityScore{
			Scope:   domain.ScopeCountry,
			Country: country,
			Value:   NeutralStability,
			Factors: map[string]float64{"insufficient_data": 1},
		}
	}

	factors := make(map[string]float64, 6)

	// Growth: 0.5 is flat, each percentage point of quarterly growth
	// moves the factor by 0.1.
	factors["gdp_growth"] = domain.Clamp01(0.5 + latest.GDPGrowth*10)

	inflationDeviation := math.Abs(latest.Inflation - TargetInflation)
	factors["inflation"] = domain.Clamp01(1 - inflationDeviation*10)

	factors["unemployment"] = domain.Clamp01(1 - latest.Unemployment*5)

	incoming := state.PoliciesTargeting(country)
	if len(incoming) > 0 {
		total := 0.0
		for _, p := range incoming {
			total += p.AverageRate()
		}
		avg := total / float64(len(incoming))
		factors["tariff_impact"] = domain.Clamp01(1 - avg*2)
	} else {
		factors["tariff_impact"] = 1.0
	}

	factors["trade_balance"] = a.tradeBalanceFactor(state, country, latest)

	factors["confidence"] = domain.Clamp01(
		(latest.ConsumerConfidence + latest.BusinessConfidence) / (2 * ConfidenceMax),
	)

	value := factors["gdp_growth"]*CountryWeightGDPGrowth +
		factors["inflation"]*CountryWeightInflation +
		factors["unemployment"]*CountryWeightUnemployment +
		factors["tariff_impact"]*CountryWeightTariffImpact +
		factors["trade_balance"]*CountryWeightTradeBalance +
		factors["confidence"]*CountryWeightConfidence

	return domain.StabilityScore{
		Scope:   domain.ScopeCountry,
		Country: country,
		Value:   domain.Clamp01(value),
		Factors: factors,
	}
}

func (a *StabilityAnalyzer) tradeBalanceFactor(state *State, country string, latest domain.IndicatorSnapshot) float64 {
	c, ok := state.Country(country)
	if !ok || c.GDP <= 0 || len(latest.TradeBalance) == 0 {
		return NeutralStability
	}
	ratio := math.Abs(domain.SumOrdered(latest.TradeBalance) / c.GDP)
	return domain.Clamp01(1 - ratio/a.thresholds.DeficitThreshold)
}

// GlobalStability scores the whole system in [0,1] with a factor
// breakdown and a trend classification derived from previously observed
// scores.
func (a *StabilityAnalyzer) GlobalStability(state *State) domain.StabilityScore {
	factors := map[string]float64{
		"tariff_level":        a.tariffLevelFactor(state),
		"retaliation":         a.retaliationFactor(state),
		"trade_imbalance":     a.tradeImbalanceFactor(state),
		"economic_volatility": a.volatilityFactor(state),
		"external_events":     a.eventFactor(state),
	}

	value := factors["tariff_level"]*GlobalWeightTariffLevel +
		factors["retaliation"]*GlobalWeightRetaliation +
		factors["trade_imbalance"]*GlobalWeightTradeImbalance +
		factors["economic_volatility"]*GlobalWeightVolatility +
		factors["external_events"]*GlobalWeightEvents

	value = domain.Clamp01(value)

	return domain.StabilityScore{
		Scope:   domain.ScopeGlobal,
		Value:   value,
		Factors: factors,
		Trend:   a.trend(value),
	}
}

// tariffLevelFactor scores average tariff rates: no tariffs is perfectly
// stable, rates at or above the threshold zero the factor.
func (a *StabilityAnalyzer) tariffLevelFactor(state *State) float64 {
	total, count := 0.0, 0
	for _, p := range state.Policies {
		total += domain.SumOrdered(p.SectorRates)
		count += len(p.SectorRates)
	}
	if count == 0 {
		return 1.0
	}
	avg := total / float64(count)
	return domain.Clamp01(1 - avg/a.thresholds.TariffThreshold)
}

// retaliationFactor detects bilateral tariff cycles: the higher the share
// of tariff relationships that run in both directions, the lower the
// factor.
func (a *StabilityAnalyzer) retaliationFactor(state *State) float64 {
	if len(state.Policies) < 2 {
		return 1.0
	}

	directed := make(map[[2]string]bool)
	for _, p := range state.Policies {
		directed[[2]string{p.ImposingCountry, p.TargetCountry}] = true
	}
	if len(directed) == 0 {
		return 1.0
	}

	bilateral := 0
	counted := make(map[[2]string]bool)
	for pair := range directed {
		reverse := [2]string{pair[1], pair[0]}
		if directed[reverse] && !counted[pair] && !counted[reverse] {
			bilateral++
			counted[pair] = true
		}
	}

	ratio := float64(bilateral) * 2 / float64(len(directed))
	return domain.Clamp01(1 - ratio)
}

// tradeImbalanceFactor scores the level and dispersion of bilateral
// imbalances relative to GDP.
func (a *StabilityAnalyzer) tradeImbalanceFactor(state *State) float64 {
	var ratios []float64
	for _, c := range state.Countries() {
		if c.GDP <= 0 {
			continue
		}
		latest, ok := state.LatestIndicator(c.Name)
		if !ok || len(latest.TradeBalance) == 0 {
			continue
		}
		ratios = append(ratios, math.Abs(domain.SumOrdered(latest.TradeBalance)/c.GDP))
	}
	if len(ratios) == 0 {
		return NeutralStability
	}

	level := stat.Mean(ratios, nil)
	dispersion := 0.0
	if len(ratios) > 1 {
		dispersion = stat.StdDev(ratios, nil)
	}
	return domain.Clamp01(1 - (level+dispersion)/(2*a.thresholds.DeficitThreshold))
}

// volatilityFactor scores the standard deviation of growth and inflation
// across each country's recent history.
func (a *StabilityAnalyzer) volatilityFactor(state *State) float64 {
	var scores []float64
	for _, c := range state.Countries() {
		snaps := state.Indicators(c.Name)
		if len(snaps) < 3 {
			continue
		}
		growth := make([]float64, len(snaps))
		inflation := make([]float64, len(snaps))
		for i, s := range snaps {
			growth[i] = s.GDPGrowth
			inflation[i] = s.Inflation
		}
		combined := (stat.StdDev(growth, nil) + stat.StdDev(inflation, nil)) / 2
		scores = append(scores, domain.Clamp01(1-combined/a.thresholds.VolatilityThreshold))
	}
	if len(scores) == 0 {
		return NeutralStability
	}
	return stat.Mean(scores, nil)
}

// eventFactor scores the load of active exogenous shocks.
func (a *StabilityAnalyzer) eventFactor(state *State) float64 {
	if len(state.Events) == 0 {
		return 1.0
	}
	total, count := 0.0, 0
	for _, e := range state.Events {
		countries := make([]string, 0, len(e.Config.GrowthImpact))
		for country := range e.Config.GrowthImpact {
			countries = append(countries, country)
		}
		sort.Strings(countries)
		for _, country := range countries {
			total += math.Abs(e.Config.GrowthImpact[country])
			count++
		}
	}
	if count == 0 {
		return 1.0
	}
	avg := total / float64(count)
	return domain.Clamp01(1 - avg/eventImpactScale)
}

// trend classifies the direction of recent global scores using a linear
// regression slope over the observation history plus the current score.
// It reads the history without recording, so repeated scoring of the
// same state stays pure.
func (a *StabilityAnalyzer) trend(current float64) string {
	series := append(append([]float64(nil), a.history...), current)
	if len(series) < 3 {
		return "insufficient data"
	}
	xs := make([]float64, len(series))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, series, nil, false)
	switch {
	case slope > trendSlopeBand:
		return "improving"
	case slope < -trendSlopeBand:
		return "deteriorating"
	default:
		return "stable"
	}
}
