// Package agents provides the decision providers that drive country
// behavior: deterministic rule-based strategies plus an optional
// model-backed provider. Every provider satisfies sim.DecisionProvider
// and is safe to substitute for any other.
package agents

import (
	"sort"

	"github.com/policylab/tradewar/internal/domain"
	"github.com/policylab/tradewar/internal/sim"
)

// StrategyParams tunes a rule-based provider. Zero values select the
// defaults documented on each provider.
type StrategyParams struct {
	// FocusSectors are the sectors the provider names on its actions.
	FocusSectors []string `json:"focus_sectors,omitempty"`

	// DeficitThreshold is the |deficit|/GDP ratio beyond which a deficit
	// hawk escalates. Zero selects 0.02.
	DeficitThreshold float64 `json:"deficit_threshold,omitempty"`

	// TariffMagnitude is the rate a provider uses when it raises
	// tariffs. Zero selects 0.25.
	TariffMagnitude float64 `json:"tariff_magnitude,omitempty"`

	// RetaliatoryFactor scales a retaliator's mirrored tariff relative
	// to the provocation. Zero selects 1.0.
	RetaliatoryFactor float64 `json:"retaliatory_factor,omitempty"`

	// ProtectionistTendency in [0,1] scales defensive measures taken
	// during a slowdown. Zero selects 0.5.
	ProtectionistTendency float64 `json:"protectionist_tendency,omitempty"`

	// GrowthFloor is the quarterly growth rate under which a hedging
	// provider turns defensive. Zero selects 0.015.
	GrowthFloor float64 `json:"growth_floor,omitempty"`
}

const (
	defaultDeficitThreshold      = 0.02
	defaultTariffMagnitude       = 0.25
	defaultRetaliatoryFactor     = 1.0
	defaultProtectionistTendency = 0.5
	defaultGrowthFloor           = 0.015
)

func (p StrategyParams) deficitThreshold() float64 {
	if p.DeficitThreshold > 0 {
		return p.DeficitThreshold
	}
	return defaultDeficitThreshold
}

func (p StrategyParams) tariffMagnitude() float64 {
	if p.TariffMagnitude > 0 {
		return p.TariffMagnitude
	}
	return defaultTariffMagnitude
}

func (p StrategyParams) retaliatoryFactor() float64 {
	if p.RetaliatoryFactor > 0 {
		return p.RetaliatoryFactor
	}
	return defaultRetaliatoryFactor
}

func (p StrategyParams) protectionistTendency() float64 {
	if p.ProtectionistTendency > 0 {
		return p.ProtectionistTendency
	}
	return defaultProtectionistTendency
}

func (p StrategyParams) growthFloor() float64 {
	if p.GrowthFloor > 0 {
		return p.GrowthFloor
	}
	return defaultGrowthFloor
}

func (p StrategyParams) focusSectors(fallback []string) []string {
	if len(p.FocusSectors) > 0 {
		return p.FocusSectors
	}
	return fallback
}

// worstDeficitPartner finds the partner with which country runs the
// largest trade deficit. Ties break alphabetically so the choice is
// deterministic.
func worstDeficitPartner(state *sim.State, country string) (partner string, deficit float64) {
	balances := state.TradeBalances(country)
	names := make([]string, 0, len(balances))
	for name := range balances {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if balances[name] < deficit {
			partner, deficit = name, balances[name]
		}
	}
	return partner, deficit
}

// latestTariffAgainst returns the most recent tariff-raising action by
// any country against target, if one exists in the recent window.
func latestTariffAgainst(state *sim.State, target string) (domain.EconomicAction, bool) {
	recent := state.RecentActions()
	for i := len(recent) - 1; i >= 0; i-- {
		a := recent[i]
		if a.TargetCountry != target {
			continue
		}
		if a.Type == domain.ActionTariffIncrease || a.Type == domain.ActionTariffAdjustment {
			return a, true
		}
	}
	return domain.EconomicAction{}, false
}

// latestGrowth returns the most recent observed quarterly growth for
// country, or ok=false when no indicators exist yet.
func latestGrowth(state *sim.State, country string) (float64, bool) {
	snap, ok := state.LatestIndicator(country)
	if !ok {
		return 0, false
	}
	return snap.GDPGrowth, true
}

func statusQuo(country, justification string) domain.EconomicAction {
	return domain.EconomicAction{
		Country:       country,
		Type:          domain.ActionStatusQuo,
		Justification: justification,
	}
}
