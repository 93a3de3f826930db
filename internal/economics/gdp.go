package economics

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/policylab/tradewar/internal/domain"
)

// Growth-rate calibration constants. All contributions are quarterly
// growth-rate deltas.
const (
	// OutgoingTariffDrag scales the small negative effect a country's own
	// tariffs have on its growth (revenue roughly offsets welfare loss).
	OutgoingTariffDrag = 0.05

	// IncomingTariffDrag scales the larger negative effect of tariffs
	// imposed on a country; exports contribute to GDP directly.
	IncomingTariffDrag = 0.15

	// SubsidyMultiplier amplifies subsidy spending into growth.
	SubsidyMultiplier = 1.5

	// ExportSubsidyBoost scales the small growth gain from an export
	// subsidy action.
	ExportSubsidyBoost = 0.01

	// GreenTechBoost scales the growth gain from green-tech investment.
	GreenTechBoost = 0.012

	// TechControlTargetPenalty and TechControlSourceGain capture the
	// asymmetric effect of export controls on technology.
	TechControlTargetPenalty = 0.02
	TechControlSourceGain    = 0.004

	// DevaluationExportBoost converts a currency devaluation fraction
	// into an export-led growth gain.
	DevaluationExportBoost = 0.03

	// DataSovereigntyDrag applies symmetrically to both sides of a
	// digital-services restriction.
	DataSovereigntyDrag = 0.003

	// GrowthNoiseAmplitude bounds the stochastic term. The draw comes
	// from the per-simulation RNG, so identical seeds reproduce identical
	// trajectories.
	GrowthNoiseAmplitude = 0.0025

	// CycleAmplitude and CyclePeriodQuarters model a slow global economic
	// cycle shared by all countries.
	CycleAmplitude      = 0.005
	CyclePeriodQuarters = 20

	// MinQuarterlyGrowth and MaxQuarterlyGrowth bound the final rate.
	MinQuarterlyGrowth = -0.08
	MaxQuarterlyGrowth = 0.10
)

// GrowthInput bundles everything the GDP calculator reads for one country
// in one quarter.
type GrowthInput struct {
	Country        *domain.Country
	Now            domain.Period
	ActivePolicies []domain.TariffPolicy
	RecentActions  []domain.EconomicAction // this quarter's accepted actions
	ActiveEvents   []domain.EventInstance
	Rng            *rand.Rand
}

// CalculateGrowth aggregates every influence on a country's quarterly GDP
// growth into a single rate plus a factor breakdown. The stochastic term
// is drawn from the supplied RNG; passing nil disables it.
func CalculateGrowth(in GrowthInput) (float64, map[string]float64) {
	baseline := BaselineQuarterlyGrowth(in.Country.BaselineGrowth)
	tariff := tariffGrowthImpact(in.Country.Name, in.ActivePolicies)
	actions := actionsGrowthImpact(in.Country.Name, in.RecentActions)
	events := eventsGrowthImpact(in.Country.Name, in.Now, in.ActiveEvents)
	cycle := globalCycleImpact(in.Now)

	noise := 0.0
	if in.Rng != nil {
		noise = (in.Rng.Float64()*2 - 1) * GrowthNoiseAmplitude
	}

	growth := baseline + tariff + actions + events + cycle + noise
	growth = math.Max(MinQuarterlyGrowth, math.Min(MaxQuarterlyGrowth, growth))

	factors := map[string]float64{
		"baseline": baseline,
		"tariffs":  tariff,
		"actions":  actions,
		"events":   events,
		"cycle":    cycle,
		"noise":    noise,
	}
	return growth, factors
}

// BaselineQuarterlyGrowth converts an annual baseline growth rate into
// its quarterly equivalent.
func BaselineQuarterlyGrowth(annual float64) float64 {
	return math.Pow(1+annual, 0.25) - 1
}

func tariffGrowthImpact(country string, policies []domain.TariffPolicy) float64 {
	impact := 0.0
	for _, p := range policies {
		avg := p.AverageRate()
		if avg <= 0 {
			continue
		}
		switch {
		case p.ImposingCountry == country:
			impact -= avg * OutgoingTariffDrag
		case p.TargetCountry == country:
			impact -= avg * IncomingTariffDrag
		}
	}
	return impact
}

// actionsGrowthImpact sums the per-kind growth contributions of this
// quarter's actions for one country. Every action kind is handled; an
// unhandled kind reaching this switch is a programming defect and panics
// in tests via ActionGrowthContribution's exhaustiveness check.
func actionsGrowthImpact(country string, actions []domain.EconomicAction) float64 {
	impact := 0.0
	for _, a := range actions {
		impact += ActionGrowthContribution(a, country)
	}
	return impact
}

// ActionGrowthContribution returns the growth-rate delta an action
// contributes to the named country. The switch is exhaustive over the
// closed ActionType set.
func ActionGrowthContribution(a domain.EconomicAction, country string) float64 {
	isActor := a.Country == country
	isTarget := a.TargetCountry == country

	switch a.Type {
	case domain.ActionTariffIncrease, domain.ActionTariffDecrease, domain.ActionTariffAdjustment:
		// Tariff effects flow through active policies, not the action.
		return 0

	case domain.ActionImportQuota:
		// Quota effects flow through the trade-flow adjustment.
		return 0

	case domain.ActionExportSubsidy:
		if isActor {
			return a.Magnitude * ExportSubsidyBoost
		}
		return 0

	case domain.ActionCurrencyDevaluation:
		if isActor && a.Magnitude > 0 {
			return a.Magnitude * DevaluationExportBoost
		}
		return 0

	case domain.ActionTechExportControl:
		if isTarget {
			return -a.Magnitude * TechControlTargetPenalty
		}
		if isActor {
			return a.Magnitude * TechControlSourceGain
		}
		return 0

	case domain.ActionIndustrialSubsidy:
		if isActor {
			// Spending scaled by how many named sectors it reaches.
			sectorShare := 1.0
			if n := len(a.Sectors); n > 0 {
				sectorShare = math.Min(1.0, float64(n)/4.0)
			}
			return a.Magnitude * SubsidyMultiplier * 0.01 * sectorShare
		}
		return 0

	case domain.ActionSupplyChainDiversification, domain.ActionFriendShoring:
		// Growth effects arrive through the redirected trade flows.
		return 0

	case domain.ActionGreenTechInvestment:
		if isActor {
			return a.Magnitude * GreenTechBoost
		}
		return 0

	case domain.ActionDataSovereignty:
		if isActor || isTarget {
			return -a.Magnitude * DataSovereigntyDrag
		}
		return 0

	case domain.ActionStatusQuo:
		return 0
	}

	// Unreachable for valid actions; validation rejects unknown kinds
	// before they enter the pipeline.
	panic(fmt.Sprintf("unhandled action type %q", a.Type))
}

// eventsGrowthImpact sums active event contributions. The activation
// quarter is excluded because the event generator applies the first
// quarter's effect immediately when the event fires.
func eventsGrowthImpact(country string, now domain.Period, events []domain.EventInstance) float64 {
	impact := 0.0
	for _, ev := range events {
		elapsed := now.Index() - ev.Activated.Index()
		if elapsed <= 0 || elapsed >= ev.Config.DurationQuarters {
			continue
		}
		impact += EventGrowthContribution(ev, country)
	}
	return impact
}

// EventGrowthContribution returns the growth delta one event applies to
// the named country for a single quarter.
func EventGrowthContribution(ev domain.EventInstance, country string) float64 {
	if !ev.Config.Affects(country) {
		return 0
	}
	mag := ev.Magnitude
	if mag == 0 {
		mag = 1.0
	}
	return ev.Config.GrowthImpact[country] * mag
}

func globalCycleImpact(now domain.Period) float64 {
	pos := now.Index() % CyclePeriodQuarters
	return CycleAmplitude * math.Sin(2*math.Pi*float64(pos)/float64(CyclePeriodQuarters))
}
