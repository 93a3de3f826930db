package sim

import (
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/policylab/tradewar/internal/domain"
	"github.com/policylab/tradewar/pkg/logger"
)

// EventGenerator produces exogenous shocks from a fixed catalog. Scheduled
// entries fire when the step time matches their trigger time; the rest
// fire on an independent draw per entry against its probability. One-time
// entries are recorded in a fired set and excluded from all future draws.
//
// The generator owns no randomness of its own: draws come from the
// per-simulation RNG passed to Generate, preserving reproducibility.
type EventGenerator struct {
	catalog []domain.EventConfig
	fired   map[string]bool
	log     zerolog.Logger
}

// NewEventGenerator builds a generator over the given catalog. Passing a
// nil catalog selects the default one.
func NewEventGenerator(catalog []domain.EventConfig, log zerolog.Logger) *EventGenerator {
	if catalog == nil {
		catalog = DefaultEventCatalog()
	}
	return &EventGenerator{
		catalog: catalog,
		fired:   make(map[string]bool),
		log:     logger.ForComponent(log, "events"),
	}
}

// Catalog returns the configured event catalog.
func (g *EventGenerator) Catalog() []domain.EventConfig {
	return g.catalog
}

// Generate evaluates the catalog for one step and returns the instances
// that fire. The catalog is walked in declaration order and every
// probabilistic entry gets exactly one draw, so a fixed seed yields a
// fixed firing sequence.
func (g *EventGenerator) Generate(now domain.Period, rng *rand.Rand) []domain.EventInstance {
	var instances []domain.EventInstance

	for _, cfg := range g.catalog {
		if g.fired[cfg.Name] && cfg.OneTime {
			continue
		}

		var fires bool
		if cfg.TriggerTime != nil {
			fires = cfg.TriggerTime.Index() == now.Index()
		} else {
			fires = rng.Float64() < cfg.Probability
		}
		if !fires {
			continue
		}

		magnitude := 1.0
		if cfg.MagnitudeRange != [2]float64{} {
			lo, hi := cfg.MagnitudeRange[0], cfg.MagnitudeRange[1]
			if hi > lo {
				magnitude = lo + rng.Float64()*(hi-lo)
			} else {
				magnitude = lo
			}
		}

		if cfg.OneTime {
			g.fired[cfg.Name] = true
		}

		g.log.Info().
			Str("event", cfg.Name).
			Stringer("period", now).
			Float64("magnitude", magnitude).
			Msg("Event fired")

		instances = append(instances, domain.EventInstance{
			Config:    cfg,
			Activated: now,
			Magnitude: magnitude,
		})
	}

	return instances
}

func period(year, quarter int) *domain.Period {
	p := domain.Period{Year: year, Quarter: quarter}
	return &p
}

// DefaultEventCatalog is the built-in shock catalog. Probabilities are per
// quarter; growth impacts are quarterly growth-rate deltas keyed by
// country name.
func DefaultEventCatalog() []domain.EventConfig {
	return []domain.EventConfig{
		{
			Name:              "global_financial_crisis",
			Description:       "Major global financial crisis impacting all economies",
			Probability:       0.01,
			DurationQuarters:  4,
			AffectedCountries: []string{"US", "China", "Indonesia"},
			AffectedSectors:   []string{"banking", "services", "manufacturing"},
			GrowthImpact:      map[string]float64{"US": -0.02, "China": -0.015, "Indonesia": -0.025},
		},
		{
			Name:              "us_recession",
			Description:       "Economic recession in the United States",
			Probability:       0.03,
			DurationQuarters:  3,
			AffectedCountries: []string{"US", "China", "Indonesia"},
			AffectedSectors:   []string{"services", "manufacturing", "technology"},
			GrowthImpact:      map[string]float64{"US": -0.015, "China": -0.01, "Indonesia": -0.005},
		},
		{
			Name:              "us_presidential_election",
			Description:       "US presidential election causing policy uncertainty",
			TriggerTime:       period(2, 3),
			OneTime:           true,
			DurationQuarters:  1,
			AffectedCountries: []string{"US", "China", "Indonesia"},
			AffectedSectors:   []string{"all"},
			GrowthImpact:      map[string]float64{"US": 0, "China": 0, "Indonesia": 0},
		},
		{
			Name:              "china_credit_crunch",
			Description:       "Tightening credit conditions in China's economy",
			Probability:       0.02,
			DurationQuarters:  2,
			AffectedCountries: []string{"China", "US", "Indonesia"},
			AffectedSectors:   []string{"real_estate", "manufacturing", "banking"},
			GrowthImpact:      map[string]float64{"China": -0.02, "US": -0.005, "Indonesia": -0.01},
		},
		{
			Name:              "supply_chain_disruption",
			Description:       "Major disruption to global supply chains",
			Probability:       0.025,
			DurationQuarters:  2,
			AffectedCountries: []string{"US", "China", "Indonesia"},
			AffectedSectors:   []string{"manufacturing", "technology", "raw_materials"},
			GrowthImpact:      map[string]float64{"US": -0.01, "China": -0.015, "Indonesia": -0.01},
		},
		{
			Name:              "indonesia_natural_disaster",
			Description:       "Major natural disaster affecting Indonesia's economy",
			Probability:       0.03,
			DurationQuarters:  2,
			AffectedCountries: []string{"Indonesia"},
			AffectedSectors:   []string{"agriculture", "manufacturing", "tourism"},
			GrowthImpact:      map[string]float64{"Indonesia": -0.02},
		},
		{
			Name:              "oil_price_shock",
			Description:       "Sudden change in global oil prices",
			Probability:       0.02,
			DurationQuarters:  3,
			AffectedCountries: []string{"US", "China", "Indonesia"},
			AffectedSectors:   []string{"energy", "transportation", "manufacturing"},
			GrowthImpact:      map[string]float64{"US": -0.007, "China": -0.01, "Indonesia": 0.01},
			MagnitudeRange:    [2]float64{0.5, 1.5},
		},
		{
			Name:              "technology_breakthrough",
			Description:       "Breakthrough in technology providing economic advantages",
			Probability:       0.01,
			OneTime:           true,
			DurationQuarters:  6,
			AffectedCountries: []string{"US", "China"},
			AffectedSectors:   []string{"technology", "manufacturing"},
			GrowthImpact:      map[string]float64{"US": 0.01, "China": 0.007},
		},
		{
			Name:              "global_pandemic",
			Description:       "Global health crisis severely impacting all economies",
			Probability:       0.005,
			OneTime:           true,
			DurationQuarters:  5,
			AffectedCountries: []string{"US", "China", "Indonesia"},
			AffectedSectors:   []string{"all"},
			GrowthImpact:      map[string]float64{"US": -0.03, "China": -0.025, "Indonesia": -0.035},
		},
	}
}
