package economics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policylab/tradewar/internal/domain"
)

func TestComputeDiversionMovesVolumeToCheaperSupplier(t *testing.T) {
	now := domain.Period{Year: 1, Quarter: 0}
	flows := []domain.TradeFlow{
		{Exporter: "China", Importer: "US", Sector: "manufacturing", Volume: 100},
		{Exporter: "Indonesia", Importer: "US", Sector: "manufacturing", Volume: 20},
	}
	policies := []domain.TariffPolicy{{
		ImposingCountry:  "US",
		TargetCountry:    "China",
		SectorRates:      map[string]float64{"manufacturing": 0.25},
		Start:            now,
		DurationQuarters: 4,
	}}

	adjustments := ComputeDiversion(flows, policies, now, DefaultDiversionConfig())
	require.Len(t, adjustments, 2)

	// Gap 0.25 exceeds the 0.10 threshold; share is capped but positive.
	var removed, added float64
	for _, adj := range adjustments {
		switch adj.Exporter {
		case "China":
			removed = adj.Delta
		case "Indonesia":
			added = adj.Delta
		}
	}
	assert.Negative(t, removed)
	assert.Positive(t, added)
	assert.InDelta(t, 0, removed+added, 1e-9, "diversion conserves total volume")
	assert.InDelta(t, -25.0, removed, 1e-9, "share equals the gap up to the cap")
}

func TestComputeDiversionRespectsThreshold(t *testing.T) {
	now := domain.Period{Year: 1, Quarter: 0}
	flows := []domain.TradeFlow{
		{Exporter: "China", Importer: "US", Sector: "manufacturing", Volume: 100},
		{Exporter: "Indonesia", Importer: "US", Sector: "manufacturing", Volume: 20},
	}
	policies := []domain.TariffPolicy{{
		ImposingCountry:  "US",
		TargetCountry:    "China",
		SectorRates:      map[string]float64{"manufacturing": 0.08}, // below the gap threshold
		Start:            now,
		DurationQuarters: 4,
	}}

	assert.Empty(t, ComputeDiversion(flows, policies, now, DefaultDiversionConfig()))
}

func TestComputeDiversionCapsShare(t *testing.T) {
	now := domain.Period{Year: 1, Quarter: 0}
	flows := []domain.TradeFlow{
		{Exporter: "China", Importer: "US", Sector: "technology", Volume: 100},
		{Exporter: "Indonesia", Importer: "US", Sector: "technology", Volume: 50},
	}
	policies := []domain.TariffPolicy{{
		ImposingCountry:  "US",
		TargetCountry:    "China",
		SectorRates:      map[string]float64{"technology": 0.9},
		Start:            now,
		DurationQuarters: 4,
	}}

	adjustments := ComputeDiversion(flows, policies, now, DefaultDiversionConfig())
	require.NotEmpty(t, adjustments)
	for _, adj := range adjustments {
		if adj.Exporter == "China" {
			assert.InDelta(t, -100*DefaultMaxDiversionFraction, adj.Delta, 1e-9)
		}
	}
}

func TestComputeDiversionSingleSupplierIsUntouched(t *testing.T) {
	now := domain.Period{Year: 1, Quarter: 0}
	flows := []domain.TradeFlow{
		{Exporter: "China", Importer: "US", Sector: "manufacturing", Volume: 100},
	}
	policies := []domain.TariffPolicy{{
		ImposingCountry:  "US",
		TargetCountry:    "China",
		SectorRates:      map[string]float64{"manufacturing": 0.5},
		Start:            now,
		DurationQuarters: 4,
	}}

	assert.Empty(t, ComputeDiversion(flows, policies, now, DefaultDiversionConfig()),
		"no alternative supplier means nowhere to divert")
}

func TestComputeAgreementBoosts(t *testing.T) {
	flows := []domain.TradeFlow{
		{Exporter: "Indonesia", Importer: "US", Sector: "manufacturing", Volume: 40},
		{Exporter: "China", Importer: "US", Sector: "manufacturing", Volume: 100},
	}
	cfg := DefaultDiversionConfig()
	cfg.AgreementPartners = [][2]string{{"US", "Indonesia"}}

	// Before the agreement starts nothing happens.
	assert.Empty(t, ComputeAgreementBoosts(flows, domain.Period{Year: 0, Quarter: 3}, cfg))

	boosts := ComputeAgreementBoosts(flows, domain.Period{Year: 1, Quarter: 0}, cfg)
	require.Len(t, boosts, 1)
	assert.Equal(t, "Indonesia", boosts[0].Exporter)
	assert.InDelta(t, 40*DefaultAgreementBoost, boosts[0].Delta, 1e-9)
}

func TestTradeBalance(t *testing.T) {
	flows := []domain.TradeFlow{
		{Exporter: "China", Importer: "US", Sector: "manufacturing", Volume: 100},
		{Exporter: "China", Importer: "US", Sector: "technology", Volume: 40},
		{Exporter: "US", Importer: "China", Sector: "agriculture", Volume: 30},
	}

	assert.InDelta(t, -110.0, TradeBalance(flows, "US", "China"), 1e-9)
	assert.InDelta(t, 110.0, TradeBalance(flows, "China", "US"), 1e-9)
	assert.Zero(t, TradeBalance(flows, "US", "Indonesia"))
}
