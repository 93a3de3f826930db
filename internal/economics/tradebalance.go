package economics

import (
	"sort"

	"github.com/policylab/tradewar/internal/domain"
)

// Trade diversion calibration constants.
const (
	// DefaultDiversionThreshold is the tariff gap between two suppliers
	// above which an importer starts reallocating demand.
	DefaultDiversionThreshold = 0.10

	// DefaultMaxDiversionFraction caps how much of a flow can be diverted
	// away from a high-tariff supplier in one quarter.
	DefaultMaxDiversionFraction = 0.30

	// DefaultAgreementBoost is the preference multiplier applied each
	// quarter to flows between designated agreement partners.
	DefaultAgreementBoost = 0.05
)

// DiversionConfig parameterizes trade-diversion behavior.
type DiversionConfig struct {
	TariffGapThreshold   float64
	MaxDiversionFraction float64
	AgreementBoost       float64
	AgreementStart       domain.Period
	AgreementPartners    [][2]string // unordered pairs
}

// DefaultDiversionConfig returns the calibration used when the host does
// not override it.
func DefaultDiversionConfig() DiversionConfig {
	return DiversionConfig{
		TariffGapThreshold:   DefaultDiversionThreshold,
		MaxDiversionFraction: DefaultMaxDiversionFraction,
		AgreementBoost:       DefaultAgreementBoost,
		AgreementStart:       domain.Period{Year: 1, Quarter: 0},
	}
}

func (c DiversionConfig) isAgreementPair(a, b string) bool {
	for _, p := range c.AgreementPartners {
		if (p[0] == a && p[1] == b) || (p[0] == b && p[1] == a) {
			return true
		}
	}
	return false
}

// FlowAdjustment describes a volume delta for one flow.
type FlowAdjustment struct {
	Exporter string
	Importer string
	Sector   string
	Delta    float64
}

// averageTariffOn returns the mean active tariff rate importer applies to
// goods from exporter in the given sector.
func averageTariffOn(policies []domain.TariffPolicy, importer, exporter, sector string, now domain.Period) float64 {
	total, n := 0.0, 0
	for _, p := range policies {
		if p.ImposingCountry != importer || p.TargetCountry != exporter || !p.ActiveAt(now) {
			continue
		}
		if rate, ok := p.SectorRates[sector]; ok {
			total += rate
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// ComputeDiversion reallocates a bounded fraction of each importer's
// demand away from suppliers whose tariff burden exceeds the cheapest
// alternative by more than the configured threshold. Returned adjustments
// are balanced: volume removed from one supplier is added to lower-tariff
// suppliers of the same sector, weighted by their existing volumes.
func ComputeDiversion(
	flows []domain.TradeFlow,
	policies []domain.TariffPolicy,
	now domain.Period,
	cfg DiversionConfig,
) []FlowAdjustment {
	// Group flows by (importer, sector) to find competing suppliers.
	type key struct{ importer, sector string }
	groups := make(map[key][]domain.TradeFlow)
	for _, f := range flows {
		if f.Volume <= 0 {
			continue
		}
		k := key{f.Importer, f.Sector}
		groups[k] = append(groups[k], f)
	}

	var adjustments []FlowAdjustment

	// Deterministic iteration order.
	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].importer != keys[j].importer {
			return keys[i].importer < keys[j].importer
		}
		return keys[i].sector < keys[j].sector
	})

	for _, k := range keys {
		suppliers := groups[k]
		if len(suppliers) < 2 {
			continue
		}

		// Tariff burden per supplier.
		burden := make(map[string]float64, len(suppliers))
		minBurden := -1.0
		for _, f := range suppliers {
			b := averageTariffOn(policies, k.importer, f.Exporter, k.sector, now)
			burden[f.Exporter] = b
			if minBurden < 0 || b < minBurden {
				minBurden = b
			}
		}

		for _, f := range suppliers {
			gap := burden[f.Exporter] - minBurden
			if gap <= cfg.TariffGapThreshold {
				continue
			}

			// Diverted share grows with the gap but is capped.
			share := gap
			if share > cfg.MaxDiversionFraction {
				share = cfg.MaxDiversionFraction
			}
			diverted := f.Volume * share
			if diverted <= 0 {
				continue
			}

			adjustments = append(adjustments, FlowAdjustment{
				Exporter: f.Exporter, Importer: f.Importer, Sector: f.Sector, Delta: -diverted,
			})

			// Distribute to lower-tariff suppliers proportionally to
			// their current volumes.
			totalAlt := 0.0
			for _, alt := range suppliers {
				if alt.Exporter != f.Exporter && burden[alt.Exporter] <= minBurden+cfg.TariffGapThreshold {
					totalAlt += alt.Volume
				}
			}
			if totalAlt <= 0 {
				continue
			}
			for _, alt := range suppliers {
				if alt.Exporter == f.Exporter || burden[alt.Exporter] > minBurden+cfg.TariffGapThreshold {
					continue
				}
				adjustments = append(adjustments, FlowAdjustment{
					Exporter: alt.Exporter, Importer: alt.Importer, Sector: alt.Sector,
					Delta: diverted * alt.Volume / totalAlt,
				})
			}
		}
	}

	return adjustments
}

// ComputeAgreementBoosts returns the preference adjustments applied to
// flows between designated agreement partners once the configured start
// period is reached.
func ComputeAgreementBoosts(
	flows []domain.TradeFlow,
	now domain.Period,
	cfg DiversionConfig,
) []FlowAdjustment {
	if now.Before(cfg.AgreementStart) || cfg.AgreementBoost <= 0 {
		return nil
	}
	var adjustments []FlowAdjustment
	for _, f := range flows {
		if f.Volume <= 0 {
			continue
		}
		if cfg.isAgreementPair(f.Exporter, f.Importer) {
			adjustments = append(adjustments, FlowAdjustment{
				Exporter: f.Exporter, Importer: f.Importer, Sector: f.Sector,
				Delta: f.Volume * cfg.AgreementBoost,
			})
		}
	}
	return adjustments
}

// TradeBalance computes the bilateral balance from a's perspective:
// positive is a surplus.
func TradeBalance(flows []domain.TradeFlow, a, b string) float64 {
	exports, imports := 0.0, 0.0
	for _, f := range flows {
		switch {
		case f.Exporter == a && f.Importer == b:
			exports += f.Volume
		case f.Exporter == b && f.Importer == a:
			imports += f.Volume
		}
	}
	return exports - imports
}
