package sim

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policylab/tradewar/internal/domain"
)

// scriptedProvider returns a fixed action, or a fixed error, on every
// call. Deterministic by construction.
type scriptedProvider struct {
	action domain.EconomicAction
	err    error

	observed int
}

func (p *scriptedProvider) DecideAction(_ context.Context, _ *State) (domain.EconomicAction, error) {
	if p.err != nil {
		return domain.EconomicAction{}, p.err
	}
	return p.action, nil
}

func (p *scriptedProvider) ObserveState(_ *State) { p.observed++ }

func newTestEngine(t *testing.T, seed int64, providers map[string]DecisionProvider) *Engine {
	t.Helper()
	eng, err := NewEngine(EngineConfig{
		Profiles:  testProfiles(),
		Seed:      seed,
		Catalog:   []domain.EventConfig{}, // no exogenous shocks
		Providers: providers,
		Log:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return eng
}

func seedFlows(t *testing.T, s *State) {
	t.Helper()
	flows := []domain.TradeFlow{
		{Exporter: "China", Importer: "US", Sector: "manufacturing", Volume: 120},
		{Exporter: "China", Importer: "US", Sector: "technology", Volume: 60},
		{Exporter: "US", Importer: "China", Sector: "technology", Volume: 40},
		{Exporter: "Indonesia", Importer: "US", Sector: "manufacturing", Volume: 25},
	}
	for _, f := range flows {
		require.NoError(t, s.AddTradeFlow(f))
	}
}

func TestNewEngineRequiresCountries(t *testing.T) {
	_, err := NewEngine(EngineConfig{Log: zerolog.Nop()})
	require.ErrorIs(t, err, domain.ErrNoCountries)
}

func TestStepWithoutProvidersHoldsStatusQuo(t *testing.T) {
	eng := newTestEngine(t, 42, nil)
	seedFlows(t, eng.State())

	_, summary, err := eng.Step(context.Background(), 1, 0)
	require.NoError(t, err)

	assert.Equal(t, domain.Period{Year: 1, Quarter: 0}, summary.Period)
	assert.Equal(t, 3, summary.ActionsAccepted)
	assert.Zero(t, summary.ActionsRejected)
	assert.Zero(t, summary.Fallbacks, "absent providers are not failures")

	for _, a := range eng.State().ActionsAt(domain.Period{Year: 1, Quarter: 0}) {
		assert.Equal(t, domain.ActionStatusQuo, a.Type)
	}
}

func TestStepIsolatesProviderFailure(t *testing.T) {
	providers := map[string]DecisionProvider{
		"US": &scriptedProvider{err: errors.New("model timeout")},
		"China": &scriptedProvider{action: domain.EconomicAction{
			Country:       "China",
			Type:          domain.ActionIndustrialSubsidy,
			Sectors:       []string{"technology"},
			Magnitude:     0.1,
			Justification: "industrial upgrading",
		}},
	}
	eng := newTestEngine(t, 42, providers)
	seedFlows(t, eng.State())

	_, summary, err := eng.Step(context.Background(), 1, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Fallbacks)
	assert.Equal(t, 3, summary.ActionsAccepted, "fallback still yields an accepted action")

	var usAction domain.EconomicAction
	for _, a := range eng.State().ActionsAt(domain.Period{Year: 1, Quarter: 0}) {
		if a.Country == "US" {
			usAction = a
		}
	}
	assert.Equal(t, domain.ActionStatusQuo, usAction.Type)
	assert.Contains(t, usAction.Justification, "model timeout")

	require.Len(t, eng.State().Subsidies, 1)
	assert.Equal(t, "China", eng.State().Subsidies[0].Country)
}

func TestStepRejectsTargetedActionWithoutTarget(t *testing.T) {
	providers := map[string]DecisionProvider{
		"US": &scriptedProvider{action: domain.EconomicAction{
			Country:   "US",
			Type:      domain.ActionTariffIncrease,
			Magnitude: 0.25,
		}},
	}
	eng := newTestEngine(t, 42, providers)
	seedFlows(t, eng.State())

	_, summary, err := eng.Step(context.Background(), 1, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ActionsRejected)
	assert.Equal(t, 2, summary.ActionsAccepted)
	assert.Empty(t, eng.State().Policies)
}

func TestTariffIncreaseCreatesPolicyAndDragsVolume(t *testing.T) {
	providers := map[string]DecisionProvider{
		"US": &scriptedProvider{action: domain.EconomicAction{
			Country:       "US",
			Type:          domain.ActionTariffIncrease,
			TargetCountry: "China",
			Sectors:       []string{"manufacturing"},
			Magnitude:     0.25,
		}},
	}
	eng := newTestEngine(t, 42, providers)
	seedFlows(t, eng.State())

	_, _, err := eng.Step(context.Background(), 1, 0)
	require.NoError(t, err)

	policies := eng.State().PoliciesImposedBy("US")
	require.Len(t, policies, 1)
	assert.Equal(t, "China", policies[0].TargetCountry)
	assert.Equal(t, 0.25, policies[0].SectorRates["manufacturing"])
	assert.Equal(t, 4, policies[0].DurationQuarters)

	volumes := eng.State().FlowVolumes("China", "US")
	assert.Less(t, volumes["manufacturing"], 120.0, "tariffed flow shrinks")
	assert.Positive(t, volumes["manufacturing"])
}

func TestImportQuotaScalesFlow(t *testing.T) {
	providers := map[string]DecisionProvider{
		"US": &scriptedProvider{action: domain.EconomicAction{
			Country:       "US",
			Type:          domain.ActionImportQuota,
			TargetCountry: "China",
			Sectors:       []string{"manufacturing"},
			Magnitude:     0.4,
		}},
	}
	eng := newTestEngine(t, 42, providers)
	seedFlows(t, eng.State())

	_, _, err := eng.Step(context.Background(), 1, 0)
	require.NoError(t, err)

	require.Len(t, eng.State().Quotas, 1)
	assert.InDelta(t, 0.6, eng.State().Quotas[0].Factor, 1e-9)

	volumes := eng.State().FlowVolumes("China", "US")
	assert.InDelta(t, 120*0.6, volumes["manufacturing"], 120*0.6*0.25,
		"quota dominates the first-quarter volume change")
}

func TestCurrencyDevaluationFloors(t *testing.T) {
	providers := map[string]DecisionProvider{
		"US": &scriptedProvider{action: domain.EconomicAction{
			Country:   "US",
			Type:      domain.ActionCurrencyDevaluation,
			Magnitude: 1.0,
		}},
	}
	eng := newTestEngine(t, 42, providers)

	for q := 0; q < 4; q++ {
		_, _, err := eng.Step(context.Background(), 1, q)
		require.NoError(t, err)
	}

	us, ok := eng.State().Country("US")
	require.True(t, ok)
	assert.GreaterOrEqual(t, us.CurrencyValue, devaluationFloor)
}

func TestStepNotifiesProviders(t *testing.T) {
	us := &scriptedProvider{action: domain.EconomicAction{Country: "US", Type: domain.ActionStatusQuo}}
	eng := newTestEngine(t, 42, map[string]DecisionProvider{"US": us})

	_, _, err := eng.Step(context.Background(), 1, 0)
	require.NoError(t, err)
	_, _, err = eng.Step(context.Background(), 1, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, us.observed)
}

func TestIdenticalSeedsProduceIdenticalTrajectories(t *testing.T) {
	build := func() *Engine {
		providers := map[string]DecisionProvider{
			// Five sectors so the per-sector GDP sums have enough terms
			// for ordering mistakes to show up as ULP drift.
			"US": &scriptedProvider{action: domain.EconomicAction{
				Country:       "US",
				Type:          domain.ActionTariffIncrease,
				TargetCountry: "China",
				Sectors:       []string{"manufacturing", "technology", "agriculture", "energy", "automotive"},
				Magnitude:     0.2,
			}},
			"China": &scriptedProvider{action: domain.EconomicAction{
				Country:       "China",
				Type:          domain.ActionTariffIncrease,
				TargetCountry: "US",
				Sectors:       []string{"technology"},
				Magnitude:     0.15,
			}},
		}
		eng, err := NewEngine(EngineConfig{
			Profiles:  testProfiles(),
			Seed:      1234,
			Providers: providers,
			Log:       zerolog.Nop(),
		})
		require.NoError(t, err)
		seedFlows(t, eng.State())
		return eng
	}

	a, b := build(), build()
	for year := 1; year <= 3; year++ {
		for quarter := 0; quarter < 4; quarter++ {
			_, sa, err := a.Step(context.Background(), year, quarter)
			require.NoError(t, err)
			_, sb, err := b.Step(context.Background(), year, quarter)
			require.NoError(t, err)
			assert.Equal(t, sa.EventsFired, sb.EventsFired)
		}
	}

	for _, c := range a.State().Countries() {
		other, ok := b.State().Country(c.Name)
		require.True(t, ok)
		assert.Equal(t, c.GDP, other.GDP, "GDP diverged for %s", c.Name)
		assert.Equal(t, c.CurrencyValue, other.CurrencyValue)
		assert.Equal(t, c.Unemployment, other.Unemployment)
	}

	snapsA := a.State().Indicators("US")
	snapsB := b.State().Indicators("US")
	assert.Equal(t, snapsA, snapsB)
}
