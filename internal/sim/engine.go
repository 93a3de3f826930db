package sim

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/policylab/tradewar/internal/domain"
	"github.com/policylab/tradewar/internal/economics"
	"github.com/policylab/tradewar/pkg/logger"
)

// DecisionProvider is the engine's view of a country's decision policy.
// Implementations may be rule-based or backed by a remote model; either
// way the engine calls them synchronously and substitutes a deterministic
// status-quo fallback when they fail, so one country's failure never
// aborts the step for the others.
type DecisionProvider interface {
	// DecideAction proposes one action for the current step. The state
	// must be treated as read-only.
	DecideAction(ctx context.Context, state *State) (domain.EconomicAction, error)

	// ObserveState lets the provider update its own strategy bookkeeping
	// after a step completes. Opaque to the core.
	ObserveState(state *State)
}

// Default policy parameters used when an action does not specify them.
const (
	defaultPolicyDurationQuarters = 4

	// devaluationFloor keeps a currency value strictly positive no
	// matter how aggressive the devaluation sequence is.
	devaluationFloor = 0.05

	// redirectCap bounds the share of a flow moved by one supply-chain
	// diversification or friend-shoring action.
	redirectCap = 0.5
)

// StepSummary reports what happened during one step.
type StepSummary struct {
	Period          domain.Period `json:"period"`
	ActionsAccepted int           `json:"actions_accepted"`
	ActionsRejected int           `json:"actions_rejected"`
	Fallbacks       int           `json:"fallbacks"`
	EventsFired     []string      `json:"events_fired"`
	Warnings        []string      `json:"warnings"`
}

// Engine composes the state, the impact calculators, the event generator
// and the external decision providers into one deterministic per-step
// pipeline. It owns no notion of time: the caller passes (year, quarter)
// into Step and the engine only writes it into the state, which makes
// Step idempotent in its time parameters and rules out the classic
// double-increment bug.
type Engine struct {
	state      *State
	providers  map[string]DecisionProvider
	events     *EventGenerator
	diversion  economics.DiversionConfig
	elasticity float64
	log        zerolog.Logger

	lastGrowthFactors map[string]map[string]float64
}

// EngineConfig assembles an engine. Profiles must not be empty; every
// other field has a default.
type EngineConfig struct {
	Profiles  map[string]Profile
	Seed      int64
	Catalog   []domain.EventConfig // nil selects the default catalog
	Diversion *economics.DiversionConfig
	// Providers maps country name to its decision provider. Countries
	// without a provider always take the status-quo fallback.
	Providers map[string]DecisionProvider
	// ElasticityMultiplier tunes tariff demand response; zero means 1.0.
	ElasticityMultiplier float64
	Log                  zerolog.Logger
}

// NewEngine validates the configuration and builds the engine and its
// state. An empty country set is fatal: the simulation cannot exist.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	state, err := NewState(cfg.Profiles, cfg.Seed, cfg.Log)
	if err != nil {
		return nil, err
	}

	diversion := economics.DefaultDiversionConfig()
	if cfg.Diversion != nil {
		diversion = *cfg.Diversion
	}
	elasticity := cfg.ElasticityMultiplier
	if elasticity <= 0 {
		elasticity = 1.0
	}

	providers := cfg.Providers
	if providers == nil {
		providers = map[string]DecisionProvider{}
	}

	return &Engine{
		state:      state,
		providers:  providers,
		events:     NewEventGenerator(cfg.Catalog, cfg.Log),
		diversion:  diversion,
		elasticity: elasticity,
		log:        logger.ForComponent(cfg.Log, "engine"),
	}, nil
}

// State exposes the engine's state to the host.
func (e *Engine) State() *State {
	return e.state
}

// GrowthFactors returns the per-country growth factor breakdown of the
// most recent step.
func (e *Engine) GrowthFactors() map[string]map[string]float64 {
	return e.lastGrowthFactors
}

// Step runs one quarter of the simulation. Pipeline order is a contract:
// collect actions, apply them, run impact calculators, recompute
// indicators, purge expired items, inject new events, notify providers.
// Expiration must follow indicator recomputation and precede event
// injection so that effects always apply before they can expire.
func (e *Engine) Step(ctx context.Context, year, quarter int) (*State, StepSummary, error) {
	now := domain.Period{Year: year, Quarter: quarter}
	e.state.Now = now
	summary := StepSummary{Period: now}

	e.log.Info().Stringer("period", now).Msg("Running simulation step")

	// 1. Collect one action per country.
	actions := e.collectActions(ctx, &summary)

	// 2. Apply accepted actions: mutate policies, flows, currency.
	newPolicies := e.applyActions(actions, &summary)

	// 3. Impact calculators: tariffs, quotas, diversion, GDP.
	e.applyTariffImpacts(newPolicies)
	e.applyQuotas()
	e.applyDiversion()
	e.applyGrowth(actions)

	// 4. Derive the quarter's indicators.
	e.state.RecomputeIndicators()

	// 5. Purge expired policies and events.
	e.state.RemoveExpiredItems()

	// 6. Inject new exogenous shocks with immediate effect.
	fired := e.events.Generate(now, e.state.Rng())
	for _, inst := range fired {
		e.applyImmediateEventEffect(&inst)
		e.state.AddEvent(inst)
		summary.EventsFired = append(summary.EventsFired, inst.Config.Name)
	}

	// 7. Let providers update their own bookkeeping.
	for _, name := range e.providerOrder() {
		e.providers[name].ObserveState(e.state)
	}

	return e.state, summary, nil
}

// providerOrder returns provider country names sorted for deterministic
// iteration.
func (e *Engine) providerOrder() []string {
	names := make([]string, 0, len(e.providers))
	for name := range e.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// collectActions asks every country's provider for one action, falling
// back to status quo on failure. Validation rejections are logged and
// skipped; they never abort the step for other countries.
func (e *Engine) collectActions(ctx context.Context, summary *StepSummary) []domain.EconomicAction {
	var accepted []domain.EconomicAction

	for _, c := range e.state.Countries() {
		action, failure := e.decideFor(ctx, c.Name)
		if failure != nil {
			summary.Fallbacks++
			summary.Warnings = append(summary.Warnings, failure.Error())
			e.log.Warn().Err(failure).Str("country", c.Name).Msg("Provider failed, using fallback action")
			action = fallbackAction(c.Name, e.state.Now, failure.Error())
		}
		action.Period = e.state.Now

		if action.Type.RequiresTarget() && action.TargetCountry == "" {
			summary.ActionsRejected++
			warning := fmt.Sprintf("%s: %s requires a target country", c.Name, action.Type)
			summary.Warnings = append(summary.Warnings, warning)
			e.log.Warn().Str("country", c.Name).Str("action", string(action.Type)).Msg("Action missing target, skipped")
			continue
		}

		if err := e.state.AddAction(action); err != nil {
			summary.ActionsRejected++
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: %v", c.Name, err))
			e.log.Warn().Err(err).Str("country", c.Name).Msg("Action rejected")
			continue
		}

		summary.ActionsAccepted++
		e.log.Info().
			Str("country", c.Name).
			Str("action", string(action.Type)).
			Float64("magnitude", action.Magnitude).
			Str("justification", action.Justification).
			Msg("Action accepted")
		accepted = append(accepted, action)
	}

	return accepted
}

func (e *Engine) decideFor(ctx context.Context, country string) (domain.EconomicAction, *domain.AgentFailure) {
	provider, ok := e.providers[country]
	if !ok {
		return fallbackAction(country, e.state.Now, "no provider configured"), nil
	}
	action, err := provider.DecideAction(ctx, e.state)
	if err != nil {
		return domain.EconomicAction{}, &domain.AgentFailure{Country: country, Err: err}
	}
	if action.Country == "" {
		action.Country = country
	}
	return action, nil
}

// fallbackAction is the deterministic substitute used whenever a provider
// fails or is absent.
func fallbackAction(country string, now domain.Period, reason string) domain.EconomicAction {
	return domain.EconomicAction{
		Country:       country,
		Type:          domain.ActionStatusQuo,
		Justification: "fallback: " + reason,
		Period:        now,
	}
}

// applyActions dispatches every accepted action to its per-kind handler
// and returns the tariff policies created this step. The switch is
// exhaustive over the closed kind set; reaching the default branch means
// a kind was added without a handler, which is reported loudly instead of
// being silently ignored.
func (e *Engine) applyActions(actions []domain.EconomicAction, summary *StepSummary) []domain.TariffPolicy {
	var newPolicies []domain.TariffPolicy

	for _, a := range actions {
		switch a.Type {
		case domain.ActionTariffIncrease:
			p := e.buildTariffPolicy(a, a.Magnitude)
			e.state.AddTariffPolicy(p)
			newPolicies = append(newPolicies, p)

		case domain.ActionTariffDecrease:
			e.reduceTariffs(a)

		case domain.ActionTariffAdjustment:
			// Adjustment replaces the actor's rates on the target with
			// the action's magnitude.
			e.removeTariffs(a.Country, a.TargetCountry)
			p := e.buildTariffPolicy(a, a.Magnitude)
			e.state.AddTariffPolicy(p)
			newPolicies = append(newPolicies, p)

		case domain.ActionImportQuota:
			e.state.Quotas = append(e.state.Quotas, QuotaRecord{
				Importer: a.Country,
				Exporter: a.TargetCountry,
				Sectors:  e.actionSectors(a),
				Factor:   domain.QuotaFactor(a.Magnitude),
				Period:   e.state.Now,
			})

		case domain.ActionExportSubsidy, domain.ActionIndustrialSubsidy, domain.ActionGreenTechInvestment:
			e.state.Subsidies = append(e.state.Subsidies, SubsidyRecord{
				Country:   a.Country,
				Kind:      a.Type,
				Sectors:   e.actionSectors(a),
				Magnitude: a.Magnitude,
				Period:    e.state.Now,
			})

		case domain.ActionCurrencyDevaluation:
			if c, ok := e.state.Country(a.Country); ok {
				v := c.CurrencyValue * (1 - a.Magnitude)
				c.CurrencyValue = math.Max(devaluationFloor, v)
			}

		case domain.ActionTechExportControl:
			// Restrict the actor's technology exports to the target.
			e.state.ScaleFlow(a.Country, a.TargetCountry, "technology", 1-a.Magnitude)

		case domain.ActionSupplyChainDiversification, domain.ActionFriendShoring:
			e.redirectImports(a)

		case domain.ActionDataSovereignty:
			factor := 1 - a.Magnitude
			e.state.ScaleFlow(a.Country, a.TargetCountry, "digital_services", factor)
			e.state.ScaleFlow(a.TargetCountry, a.Country, "digital_services", factor)

		case domain.ActionStatusQuo:
			// Deliberate no-op.

		default:
			warning := fmt.Sprintf("unhandled action type %q from %s", a.Type, a.Country)
			summary.Warnings = append(summary.Warnings, warning)
			e.log.Error().Str("action", string(a.Type)).Msg("Unhandled action type reached dispatch")
		}
	}

	return newPolicies
}

// actionSectors returns the action's sectors, defaulting to the actor's
// profile sectors in sorted order when none are named.
func (e *Engine) actionSectors(a domain.EconomicAction) []string {
	if len(a.Sectors) > 0 {
		return a.Sectors
	}
	c, ok := e.state.Country(a.Country)
	if !ok || len(c.Sectors) == 0 {
		return []string{"manufacturing"}
	}
	sectors := make([]string, 0, len(c.Sectors))
	for s := range c.Sectors {
		sectors = append(sectors, s)
	}
	sort.Strings(sectors)
	return sectors
}

func (e *Engine) buildTariffPolicy(a domain.EconomicAction, rate float64) domain.TariffPolicy {
	rates := make(map[string]float64)
	for _, s := range e.actionSectors(a) {
		rates[s] = rate
	}
	return domain.TariffPolicy{
		ImposingCountry:  a.Country,
		TargetCountry:    a.TargetCountry,
		SectorRates:      rates,
		Start:            e.state.Now,
		DurationQuarters: defaultPolicyDurationQuarters,
	}
}

// reduceTariffs lowers the actor's active rates on the target by the
// action magnitude, flooring at zero and dropping emptied policies.
func (e *Engine) reduceTariffs(a domain.EconomicAction) {
	kept := e.state.Policies[:0]
	for _, p := range e.state.Policies {
		if p.ImposingCountry == a.Country && p.TargetCountry == a.TargetCountry {
			remaining := false
			for sector, rate := range p.SectorRates {
				r := rate - a.Magnitude
				if r < 0 {
					r = 0
				}
				p.SectorRates[sector] = r
				if r > 0 {
					remaining = true
				}
			}
			if !remaining {
				continue
			}
		}
		kept = append(kept, p)
	}
	e.state.Policies = kept
}

func (e *Engine) removeTariffs(imposer, target string) {
	kept := e.state.Policies[:0]
	for _, p := range e.state.Policies {
		if p.ImposingCountry == imposer && p.TargetCountry == target {
			continue
		}
		kept = append(kept, p)
	}
	e.state.Policies = kept
}

// redirectImports moves a bounded share of the actor's imports in the
// named sectors from their largest current supplier toward the target
// ally.
func (e *Engine) redirectImports(a domain.EconomicAction) {
	share := math.Min(a.Magnitude, redirectCap)
	if share <= 0 {
		return
	}
	for _, sector := range e.actionSectors(a) {
		// Largest supplier other than the ally.
		var donor string
		var donorVolume float64
		for _, f := range e.state.Flows {
			if f.Importer != a.Country || f.Sector != sector || f.Exporter == a.TargetCountry {
				continue
			}
			if f.Volume > donorVolume {
				donor, donorVolume = f.Exporter, f.Volume
			}
		}
		if donor == "" || donorVolume <= 0 {
			continue
		}
		moved := donorVolume * share
		e.state.AdjustFlow(donor, a.Country, sector, -moved)
		e.state.AdjustFlow(a.TargetCountry, a.Country, sector, moved)
	}
}

// applyTariffImpacts runs the tariff calculator for every policy created
// this step and applies GDP deltas, flow changes and price effects.
func (e *Engine) applyTariffImpacts(policies []domain.TariffPolicy) {
	for _, p := range policies {
		exporter, okE := e.state.Country(p.TargetCountry)
		importer, okI := e.state.Country(p.ImposingCountry)
		if !okE || !okI {
			continue
		}

		volumes := e.state.FlowVolumes(p.TargetCountry, p.ImposingCountry)
		impact := economics.CalculateTariffImpact(p, volumes, exporter.GDP, importer.GDP, e.elasticity)

		exporter.ApplyGDPDelta(impact.ExporterGDPImpact)
		importer.ApplyGDPDelta(impact.ImporterGDPImpact)
		for sector, change := range impact.VolumeChange {
			e.state.AdjustFlow(p.TargetCountry, p.ImposingCountry, sector, change)
		}
		e.state.RecordPriceEffects(p.ImposingCountry, impact.PriceEffects, e.state.Now)
	}
}

// applyQuotas scales flows under quotas recorded this step.
func (e *Engine) applyQuotas() {
	for _, q := range e.state.Quotas {
		if q.Period != e.state.Now {
			continue
		}
		for _, sector := range q.Sectors {
			e.state.ScaleFlow(q.Exporter, q.Importer, sector, q.Factor)
		}
	}
}

// applyDiversion reallocates demand away from high-tariff suppliers and
// applies agreement-partner preference boosts.
func (e *Engine) applyDiversion() {
	adjustments := economics.ComputeDiversion(e.state.Flows, e.state.Policies, e.state.Now, e.diversion)
	for _, adj := range adjustments {
		e.state.AdjustFlow(adj.Exporter, adj.Importer, adj.Sector, adj.Delta)
	}
	boosts := economics.ComputeAgreementBoosts(e.state.Flows, e.state.Now, e.diversion)
	for _, adj := range boosts {
		e.state.AdjustFlow(adj.Exporter, adj.Importer, adj.Sector, adj.Delta)
	}
}

// applyGrowth aggregates every growth influence per country and applies
// the resulting delta to GDP, recording the factor breakdown.
func (e *Engine) applyGrowth(actions []domain.EconomicAction) {
	factors := make(map[string]map[string]float64, len(e.state.Countries()))
	for _, c := range e.state.Countries() {
		growth, breakdown := economics.CalculateGrowth(economics.GrowthInput{
			Country:        c,
			Now:            e.state.Now,
			ActivePolicies: e.state.Policies,
			RecentActions:  actions,
			ActiveEvents:   e.state.Events,
			Rng:            e.state.Rng(),
		})
		c.ApplyGDPDelta(c.GDP * growth)
		factors[c.Name] = breakdown
	}
	e.lastGrowthFactors = factors
}

// applyImmediateEventEffect applies a newly fired event's first-quarter
// effect. Later quarters flow through the growth calculator while the
// instance stays active.
func (e *Engine) applyImmediateEventEffect(inst *domain.EventInstance) {
	for _, name := range inst.Config.AffectedCountries {
		c, ok := e.state.Country(name)
		if !ok {
			continue
		}
		g := economics.EventGrowthContribution(*inst, name)
		c.ApplyGDPDelta(c.GDP * g)
	}
	inst.Applied = true
}
