package agents

import (
	"context"

	"github.com/policylab/tradewar/internal/domain"
	"github.com/policylab/tradewar/internal/sim"
)

// Diversifier plays the smaller-economy hedge: when the two largest
// other economies are escalating against each other it reroutes supply
// chains toward a friendly partner, during a domestic slowdown it turns
// protectionist, and otherwise it invests in development.
type Diversifier struct {
	country string
	params  StrategyParams
}

var defaultPrioritySectors = []string{"agriculture", "manufacturing", "natural_resources", "tourism"}

// NewDiversifier builds a diversifier for country.
func NewDiversifier(country string, params StrategyParams) *Diversifier {
	return &Diversifier{country: country, params: params}
}

func (d *Diversifier) DecideAction(_ context.Context, state *sim.State) (domain.EconomicAction, error) {
	if ally, ok := d.conflictAlly(state); ok {
		return domain.EconomicAction{
			Country:       d.country,
			Type:          domain.ActionSupplyChainDiversification,
			TargetCountry: ally,
			Sectors:       d.params.focusSectors(defaultPrioritySectors)[:1],
			Magnitude:     0.15,
			Justification: "leveraging major-power trade tensions to reroute supply chains",
		}, nil
	}

	if growth, ok := latestGrowth(state, d.country); ok && growth < d.params.growthFloor() {
		return domain.EconomicAction{
			Country:       d.country,
			Type:          domain.ActionIndustrialSubsidy,
			Sectors:       d.params.focusSectors(defaultPrioritySectors),
			Magnitude:     0.1 * d.params.protectionistTendency(),
			Justification: "protecting domestic industries during economic slowdown",
		}, nil
	}

	return domain.EconomicAction{
		Country:       d.country,
		Type:          domain.ActionGreenTechInvestment,
		Sectors:       d.params.focusSectors(defaultPrioritySectors),
		Magnitude:     0.08,
		Justification: "continuing focus on economic development and domestic growth",
	}, nil
}

// conflictAlly detects an active tariff exchange between the two largest
// other economies and, when found, picks the safest of the remaining
// partners to diversify toward: the largest economy with no tariffs
// against us.
func (d *Diversifier) conflictAlly(state *sim.State) (string, bool) {
	first, second := d.largestRivals(state)
	if first == "" || second == "" {
		return "", false
	}

	firstHits, secondHits := false, false
	for _, a := range state.RecentActions() {
		if a.Type != domain.ActionTariffIncrease && a.Type != domain.ActionTariffAdjustment {
			continue
		}
		if a.Country == first && a.TargetCountry == second {
			firstHits = true
		}
		if a.Country == second && a.TargetCountry == first {
			secondHits = true
		}
	}
	if !firstHits || !secondHits {
		return "", false
	}

	var ally string
	var allyGDP float64
	for _, c := range state.Countries() {
		if c.Name == d.country {
			continue
		}
		if len(state.PoliciesImposedBy(c.Name)) > 0 && d.targetsUs(state, c.Name) {
			continue
		}
		if c.GDP > allyGDP {
			ally, allyGDP = c.Name, c.GDP
		}
	}
	if ally == "" {
		return "", false
	}
	return ally, true
}

func (d *Diversifier) targetsUs(state *sim.State, imposer string) bool {
	for _, p := range state.PoliciesImposedBy(imposer) {
		if p.TargetCountry == d.country && p.ActiveAt(state.Now) {
			return true
		}
	}
	return false
}

// largestRivals returns the two largest economies other than ours, by
// GDP with alphabetical tie-break from the state's sorted ordering.
func (d *Diversifier) largestRivals(state *sim.State) (string, string) {
	var first, second string
	var firstGDP, secondGDP float64
	for _, c := range state.Countries() {
		if c.Name == d.country {
			continue
		}
		switch {
		case c.GDP > firstGDP:
			second, secondGDP = first, firstGDP
			first, firstGDP = c.Name, c.GDP
		case c.GDP > secondGDP:
			second, secondGDP = c.Name, c.GDP
		}
	}
	return first, second
}

func (d *Diversifier) ObserveState(_ *sim.State) {}
