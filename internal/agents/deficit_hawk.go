package agents

import (
	"context"

	"github.com/policylab/tradewar/internal/domain"
	"github.com/policylab/tradewar/internal/sim"
)

// DeficitHawk escalates against whichever partner it runs the largest
// trade deficit with. While the deficit exceeds the threshold share of
// GDP it raises tariffs on its focus sectors; otherwise it holds.
type DeficitHawk struct {
	country string
	params  StrategyParams
}

var defaultHawkSectors = []string{"technology", "manufacturing", "agriculture"}

// NewDeficitHawk builds a deficit hawk for country.
func NewDeficitHawk(country string, params StrategyParams) *DeficitHawk {
	return &DeficitHawk{country: country, params: params}
}

func (h *DeficitHawk) DecideAction(_ context.Context, state *sim.State) (domain.EconomicAction, error) {
	partner, deficit := worstDeficitPartner(state, h.country)
	if partner == "" {
		return statusQuo(h.country, "no bilateral trade recorded"), nil
	}

	c, ok := state.Country(h.country)
	if !ok || c.GDP <= 0 {
		return statusQuo(h.country, "no domestic baseline to defend"), nil
	}

	if -deficit/c.GDP < h.params.deficitThreshold() {
		return statusQuo(h.country, "trade balance within tolerance"), nil
	}

	return domain.EconomicAction{
		Country:       h.country,
		Type:          domain.ActionTariffIncrease,
		TargetCountry: partner,
		Sectors:       h.params.focusSectors(defaultHawkSectors),
		Magnitude:     h.params.tariffMagnitude(),
		Justification: "addressing trade imbalance and protecting domestic industries",
	}, nil
}

func (h *DeficitHawk) ObserveState(_ *sim.State) {}
