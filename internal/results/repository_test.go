package results

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policylab/tradewar/internal/database"
	"github.com/policylab/tradewar/internal/domain"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := NewRepository(db.Conn(), zerolog.Nop())
	require.NoError(t, err)
	return repo
}

func sampleRecord(simID string, period domain.Period) StepRecord {
	return StepRecord{
		SimulationID: simID,
		Period:       period,
		Countries: []CountrySnapshot{
			{
				Country:       "US",
				GDP:           27010.5,
				CurrencyValue: 0.98,
				GDPGrowth:     0.0051,
				Inflation:     0.021,
				Unemployment:  0.047,
				Consumer:      101.2,
				Business:      99.8,
				TradeBalance:  map[string]float64{"China": -80, "Indonesia": -12},
				GrowthFactors: map[string]float64{"baseline": 0.0054, "tariffs": -0.0003},
			},
			{
				Country:       "China",
				GDP:           17910.0,
				CurrencyValue: 1.0,
				GDPGrowth:     0.0117,
				Inflation:     0.024,
				Unemployment:  0.051,
				Consumer:      98.5,
				Business:      102.3,
				TradeBalance:  map[string]float64{"US": 80},
			},
		},
		Actions: []domain.EconomicAction{{
			Country:       "US",
			Type:          domain.ActionTariffIncrease,
			TargetCountry: "China",
			Sectors:       []string{"manufacturing"},
			Magnitude:     0.25,
			Justification: "rebalancing",
			Period:        period,
		}},
		EventsFired: []string{"oil_price_shock"},
		Global: domain.StabilityScore{
			Scope:   domain.ScopeGlobal,
			Value:   0.72,
			Trend:   "stable",
			Factors: map[string]float64{"tariff_level": 0.8},
		},
		Stability: map[string]domain.StabilityScore{
			"US": {Scope: domain.ScopeCountry, Country: "US", Value: 0.68,
				Factors: map[string]float64{"gdp_growth": 0.55}},
		},
	}
}

func TestRunLifecycle(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.CreateRun("run-1", 42, []string{"US", "China"}))
	require.NoError(t, repo.SaveStep(sampleRecord("run-1", domain.Period{Year: 1, Quarter: 0})))
	require.NoError(t, repo.SaveStep(sampleRecord("run-1", domain.Period{Year: 1, Quarter: 1})))

	run, err := repo.GetRun("run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "run-1", run.SimulationID)
	assert.Equal(t, int64(42), run.Seed)
	assert.Equal(t, []string{"US", "China"}, run.Countries)
	assert.Equal(t, 2, run.Steps)
	assert.Equal(t, domain.Period{Year: 1, Quarter: 1}, run.LastPeriod)
}

func TestGetRunUnknownIsNil(t *testing.T) {
	repo := newTestRepository(t)
	run, err := repo.GetRun("missing")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestSaveStepIsIdempotentPerPeriod(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.CreateRun("run-1", 1, []string{"US", "China"}))

	record := sampleRecord("run-1", domain.Period{Year: 1, Quarter: 0})
	require.NoError(t, repo.SaveStep(record))
	record.Countries[0].GDP = 27100.0
	require.NoError(t, repo.SaveStep(record), "replaying a period replaces its snapshots")

	history, err := repo.CountryHistory("run-1", "US")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 27100.0, history[0].GDP)
}

func TestCountryHistoryRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.CreateRun("run-1", 7, []string{"US", "China"}))

	for q := 0; q < 3; q++ {
		p := domain.Period{Year: 1, Quarter: 0}.AddQuarters(q)
		require.NoError(t, repo.SaveStep(sampleRecord("run-1", p)))
	}

	history, err := repo.CountryHistory("run-1", "US")
	require.NoError(t, err)
	require.Len(t, history, 3)

	first := history[0]
	assert.Equal(t, "US", first.Country)
	assert.Equal(t, 27010.5, first.GDP)
	assert.Equal(t, 0.0051, first.GDPGrowth)
	assert.Equal(t, map[string]float64{"China": -80, "Indonesia": -12}, first.TradeBalance)
	assert.Equal(t, map[string]float64{"baseline": 0.0054, "tariffs": -0.0003}, first.GrowthFactors)

	history, err = repo.CountryHistory("run-1", "Brazil")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStabilityHistoryRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.CreateRun("run-1", 7, []string{"US", "China"}))
	require.NoError(t, repo.SaveStep(sampleRecord("run-1", domain.Period{Year: 1, Quarter: 0})))

	scores, err := repo.StabilityHistory("run-1")
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, domain.ScopeGlobal, scores[0].Scope)
	assert.Equal(t, 0.72, scores[0].Value)
	assert.Equal(t, "stable", scores[0].Trend)
	assert.Equal(t, map[string]float64{"tariff_level": 0.8}, scores[0].Factors)
}

func TestListRunsNewestFirst(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.CreateRun("run-a", 1, []string{"US"}))
	require.NoError(t, repo.CreateRun("run-b", 2, []string{"China"}))

	runs, err := repo.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	runs, err = repo.ListRuns(1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestDeleteRunRemovesEverything(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.CreateRun("run-1", 3, []string{"US", "China"}))
	require.NoError(t, repo.SaveStep(sampleRecord("run-1", domain.Period{Year: 1, Quarter: 0})))

	require.NoError(t, repo.DeleteRun("run-1"))

	run, err := repo.GetRun("run-1")
	require.NoError(t, err)
	assert.Nil(t, run)

	history, err := repo.CountryHistory("run-1", "US")
	require.NoError(t, err)
	assert.Empty(t, history)

	scores, err := repo.StabilityHistory("run-1")
	require.NoError(t, err)
	assert.Empty(t, scores)
}
