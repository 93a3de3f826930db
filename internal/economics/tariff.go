// Package economics contains the pure impact calculators of the simulator:
// tariff effects, GDP growth deltas and trade-flow adjustments. Functions
// here never mutate simulation state; they take current values and return
// computed impacts for the engine to apply.
//
// The coefficients in this package are internally consistent calibration
// constants, not estimates with an economic derivation. They are exported
// or configurable so hosts can tune them.
package economics

import (
	"math"
	"sort"

	"github.com/policylab/tradewar/internal/domain"
)

const (
	// PricePassThrough is the fraction of a tariff rate that shows up as
	// a consumer price increase in the importing country.
	PricePassThrough = 0.7

	// DefaultPriceElasticity is used for sectors without a table entry.
	DefaultPriceElasticity = -2.0

	// ExporterGDPShare discounts export losses before they hit the
	// exporter's GDP; substitution into other markets absorbs the rest.
	ExporterGDPShare = 0.8

	// ConsumerSurplusShare is the fraction of tariff revenue lost to
	// reduced consumer welfare in the importing country.
	ConsumerSurplusShare = 0.3

	// fallbackTradeScale sizes an estimated bilateral flow from the two
	// GDPs when no observed trade data exists.
	fallbackTradeScale = 0.001
)

// sectorElasticities holds price elasticity of import demand per sector.
var sectorElasticities = map[string]float64{
	"agriculture":         -0.8,
	"manufacturing":       -1.5,
	"technology":          -2.0,
	"raw_materials":       -0.6,
	"services":            -1.8,
	"digital_services":    -1.6,
	"healthcare":          -1.2,
	"tourism":             -2.5,
	"energy":              -0.9,
	"green_tech":          -1.4,
	"batteries":           -1.3,
	"automotive":          -1.7,
	"natural_resources":   -0.7,
	"rare_earth_minerals": -0.5,
}

// SectorElasticity returns the price elasticity of demand for a sector.
func SectorElasticity(sector string) float64 {
	if e, ok := sectorElasticities[sector]; ok {
		return e
	}
	return DefaultPriceElasticity
}

// TariffImpact is the computed effect of one tariff policy on the two
// economies involved.
type TariffImpact struct {
	Policy            domain.TariffPolicy
	ExporterGDPImpact float64            // GDP delta for the targeted (exporting) country
	ImporterGDPImpact float64            // GDP delta for the imposing (importing) country
	VolumeChange      map[string]float64 // per sector, never pushes a volume below zero
	PriceEffects      map[string]float64 // per sector consumer price increase
}

// CalculateTariffImpact computes the effect of a tariff policy given the
// current bilateral flow volumes from the targeted country into the
// imposing country (keyed by sector). exporterGDP and importerGDP are used
// only to estimate a baseline flow when no trade data exists; zero GDPs
// produce a neutral impact rather than an error.
func CalculateTariffImpact(
	policy domain.TariffPolicy,
	sectorVolumes map[string]float64,
	exporterGDP, importerGDP float64,
	elasticityMultiplier float64,
) TariffImpact {
	if elasticityMultiplier <= 0 {
		elasticityMultiplier = 1.0
	}

	volumeChange := make(map[string]float64, len(policy.SectorRates))
	priceEffects := make(map[string]float64, len(policy.SectorRates))

	// Estimated flow per sector when no observed data exists for it.
	// Geometric-mean scaling keeps the estimate bounded by the smaller
	// economy; two zero-GDP countries estimate to zero, which yields a
	// neutral impact.
	estimated := 0.0
	if len(policy.SectorRates) > 0 {
		estimated = math.Sqrt(exporterGDP*importerGDP) * fallbackTradeScale / float64(len(policy.SectorRates))
	}

	// Accumulate in sorted sector order so the float sums below are
	// reproducible; map iteration order would perturb the last ULPs.
	sectors := make([]string, 0, len(policy.SectorRates))
	for sector := range policy.SectorRates {
		sectors = append(sectors, sector)
	}
	sort.Strings(sectors)

	for _, sector := range sectors {
		rate := policy.SectorRates[sector]
		if rate <= 0 {
			continue
		}
		base := sectorVolumes[sector]
		if base <= 0 {
			base = estimated
		}

		priceIncrease := rate * PricePassThrough
		priceEffects[sector] = priceIncrease

		change := base * SectorElasticity(sector) * elasticityMultiplier * priceIncrease
		// A tariff can at most wipe out the flow it targets.
		if change < -base {
			change = -base
		}
		volumeChange[sector] = change
	}

	totalExportLoss := 0.0
	for _, sector := range sectors {
		totalExportLoss += volumeChange[sector]
	}
	exporterImpact := totalExportLoss * ExporterGDPShare

	// The imposing country collects revenue on the reduced import volume
	// but loses consumer surplus to higher prices.
	tariffRevenue := 0.0
	for _, sector := range sectors {
		tariffRevenue += -volumeChange[sector] * policy.SectorRates[sector]
	}
	importerImpact := tariffRevenue - tariffRevenue*ConsumerSurplusShare

	return TariffImpact{
		Policy:            policy,
		ExporterGDPImpact: exporterImpact,
		ImporterGDPImpact: importerImpact,
		VolumeChange:      volumeChange,
		PriceEffects:      priceEffects,
	}
}
