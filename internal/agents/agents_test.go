package agents

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policylab/tradewar/internal/domain"
	"github.com/policylab/tradewar/internal/sim"
)

// newAgentState builds a small three-country world. US GDP is kept low
// so that realistic flow volumes can cross the hawk's deficit threshold.
func newAgentState(t *testing.T) *sim.State {
	t.Helper()
	s, err := sim.NewState(map[string]sim.Profile{
		"US":        {GDP: 1000, BaselineGrowth: 0.022, Sectors: map[string]float64{"technology": 0.25}},
		"China":     {GDP: 900, BaselineGrowth: 0.048, Sectors: map[string]float64{"manufacturing": 0.35}},
		"Indonesia": {GDP: 140, BaselineGrowth: 0.05, Sectors: map[string]float64{"agriculture": 0.13}},
	}, 42, zerolog.Nop())
	require.NoError(t, err)
	s.Now = domain.Period{Year: 1, Quarter: 0}
	return s
}

func addFlow(t *testing.T, s *sim.State, exporter, importer, sector string, volume float64) {
	t.Helper()
	require.NoError(t, s.AddTradeFlow(domain.TradeFlow{
		Exporter: exporter, Importer: importer, Sector: sector, Volume: volume,
	}))
}

func TestDeficitHawkEscalatesOverThreshold(t *testing.T) {
	state := newAgentState(t)
	addFlow(t, state, "China", "US", "manufacturing", 120)
	addFlow(t, state, "US", "China", "technology", 40)

	hawk := NewDeficitHawk("US", StrategyParams{})
	action, err := hawk.DecideAction(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionTariffIncrease, action.Type)
	assert.Equal(t, "China", action.TargetCountry)
	assert.Equal(t, defaultTariffMagnitude, action.Magnitude)
	assert.Equal(t, defaultHawkSectors, action.Sectors)
}

func TestDeficitHawkHoldsWithinTolerance(t *testing.T) {
	state := newAgentState(t)
	addFlow(t, state, "China", "US", "manufacturing", 50)
	addFlow(t, state, "US", "China", "technology", 45)

	hawk := NewDeficitHawk("US", StrategyParams{})
	action, err := hawk.DecideAction(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionStatusQuo, action.Type)
}

func TestDeficitHawkHoldsWithoutTrade(t *testing.T) {
	state := newAgentState(t)

	hawk := NewDeficitHawk("US", StrategyParams{})
	action, err := hawk.DecideAction(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionStatusQuo, action.Type)
}

func TestDeficitHawkPicksWorstPartner(t *testing.T) {
	state := newAgentState(t)
	addFlow(t, state, "China", "US", "manufacturing", 120)
	addFlow(t, state, "Indonesia", "US", "agriculture", 200)

	hawk := NewDeficitHawk("US", StrategyParams{})
	action, err := hawk.DecideAction(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "Indonesia", action.TargetCountry)
}

func TestRetaliatorMirrorsProvocation(t *testing.T) {
	state := newAgentState(t)
	require.NoError(t, state.AddAction(domain.EconomicAction{
		Country:       "US",
		Type:          domain.ActionTariffIncrease,
		TargetCountry: "China",
		Sectors:       []string{"manufacturing"},
		Magnitude:     0.3,
	}))

	r := NewRetaliator("China", StrategyParams{RetaliatoryFactor: 1.5})
	action, err := r.DecideAction(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionTariffIncrease, action.Type)
	assert.Equal(t, "US", action.TargetCountry)
	assert.InDelta(t, 0.45, action.Magnitude, 1e-9)
	assert.Equal(t, []string{"manufacturing"}, action.Sectors)
}

func TestRetaliationIsCappedAtFullRate(t *testing.T) {
	state := newAgentState(t)
	require.NoError(t, state.AddAction(domain.EconomicAction{
		Country:       "US",
		Type:          domain.ActionTariffIncrease,
		TargetCountry: "China",
		Sectors:       []string{"technology"},
		Magnitude:     0.8,
	}))

	r := NewRetaliator("China", StrategyParams{RetaliatoryFactor: 1.5})
	action, err := r.DecideAction(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, 1.0, action.Magnitude)
}

func TestUnprovokedRetaliatorInvests(t *testing.T) {
	state := newAgentState(t)

	r := NewRetaliator("China", StrategyParams{})
	action, err := r.DecideAction(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionIndustrialSubsidy, action.Type)
	assert.Equal(t, defaultStrategicSectors, action.Sectors)
}

func TestDiversifierExploitsMajorPowerConflict(t *testing.T) {
	state := newAgentState(t)
	for _, a := range []domain.EconomicAction{
		{Country: "US", Type: domain.ActionTariffIncrease, TargetCountry: "China", Sectors: []string{"manufacturing"}, Magnitude: 0.25},
		{Country: "China", Type: domain.ActionTariffIncrease, TargetCountry: "US", Sectors: []string{"technology"}, Magnitude: 0.25},
	} {
		require.NoError(t, state.AddAction(a))
	}

	d := NewDiversifier("Indonesia", StrategyParams{})
	action, err := d.DecideAction(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionSupplyChainDiversification, action.Type)
	assert.Equal(t, "US", action.TargetCountry, "diversify toward the largest economy not tariffing us")
	assert.Len(t, action.Sectors, 1)
}

func TestDiversifierTurnsDefensiveInSlowdown(t *testing.T) {
	state := newAgentState(t)
	state.RecomputeIndicators() // first snapshot carries the fallback growth rate

	d := NewDiversifier("Indonesia", StrategyParams{
		GrowthFloor:           0.05,
		ProtectionistTendency: 1.0,
	})
	action, err := d.DecideAction(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionIndustrialSubsidy, action.Type)
	assert.InDelta(t, 0.1, action.Magnitude, 1e-9)
}

func TestDiversifierDefaultsToGreenTech(t *testing.T) {
	state := newAgentState(t)

	d := NewDiversifier("Indonesia", StrategyParams{})
	action, err := d.DecideAction(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionGreenTechInvestment, action.Type)
	assert.Equal(t, 0.08, action.Magnitude)
}

func TestStatusQuoProviderNeverActs(t *testing.T) {
	state := newAgentState(t)

	p := NewStatusQuoProvider("US")
	action, err := p.DecideAction(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionStatusQuo, action.Type)
	assert.Equal(t, "US", action.Country)
}

func TestStrategyParamDefaults(t *testing.T) {
	var p StrategyParams
	assert.Equal(t, defaultDeficitThreshold, p.deficitThreshold())
	assert.Equal(t, defaultTariffMagnitude, p.tariffMagnitude())
	assert.Equal(t, defaultRetaliatoryFactor, p.retaliatoryFactor())
	assert.Equal(t, defaultProtectionistTendency, p.protectionistTendency())
	assert.Equal(t, defaultGrowthFloor, p.growthFloor())
	assert.Equal(t, []string{"x"}, p.focusSectors([]string{"x"}))

	p.FocusSectors = []string{"steel"}
	assert.Equal(t, []string{"steel"}, p.focusSectors([]string{"x"}))
}
