package agents

import (
	"context"
	"math"

	"github.com/policylab/tradewar/internal/domain"
	"github.com/policylab/tradewar/internal/sim"
)

// Retaliator mirrors tariff escalation directed at it, scaled by its
// retaliatory factor. Left unprovoked, it invests in its strategic
// sectors instead.
type Retaliator struct {
	country string
	params  StrategyParams
}

var defaultStrategicSectors = []string{"technology", "manufacturing", "raw_materials"}

// NewRetaliator builds a retaliator for country.
func NewRetaliator(country string, params StrategyParams) *Retaliator {
	return &Retaliator{country: country, params: params}
}

func (r *Retaliator) DecideAction(_ context.Context, state *sim.State) (domain.EconomicAction, error) {
	if provocation, ok := latestTariffAgainst(state, r.country); ok {
		magnitude := math.Min(1.0, provocation.Magnitude*r.params.retaliatoryFactor())
		sectors := provocation.Sectors
		if len(sectors) == 0 {
			sectors = r.params.focusSectors(defaultStrategicSectors)
		}
		return domain.EconomicAction{
			Country:       r.country,
			Type:          domain.ActionTariffIncrease,
			TargetCountry: provocation.Country,
			Sectors:       sectors,
			Magnitude:     magnitude,
			Justification: "reciprocal measures in response to tariffs on our exports",
		}, nil
	}

	return domain.EconomicAction{
		Country:       r.country,
		Type:          domain.ActionIndustrialSubsidy,
		Sectors:       r.params.focusSectors(defaultStrategicSectors),
		Magnitude:     0.1,
		Justification: "strategic sector development",
	}, nil
}

func (r *Retaliator) ObserveState(_ *sim.State) {}
