package agents

import (
	"context"
	"fmt"

	"github.com/policylab/tradewar/internal/domain"
	"github.com/policylab/tradewar/internal/sim"
)

// Strategy names accepted by the factory.
const (
	StrategyDeficitHawk = "deficit_hawk"
	StrategyRetaliator  = "retaliator"
	StrategyDiversifier = "diversifier"
	StrategyStatusQuo   = "status_quo"
	StrategyModel       = "model"
)

// StatusQuoProvider always holds current policy. It is the explicit form
// of the engine's fallback, useful for control runs.
type StatusQuoProvider struct {
	country string
}

// NewStatusQuoProvider builds a provider that never acts.
func NewStatusQuoProvider(country string) *StatusQuoProvider {
	return &StatusQuoProvider{country: country}
}

func (p *StatusQuoProvider) DecideAction(_ context.Context, _ *sim.State) (domain.EconomicAction, error) {
	return statusQuo(p.country, "maintaining current policy"), nil
}

func (p *StatusQuoProvider) ObserveState(_ *sim.State) {}

// Factory builds decision providers by strategy name. A model client is
// optional; requesting the model strategy without one is an error.
type Factory struct {
	model PolicyModel
}

// NewFactory creates a provider factory. model may be nil when only
// rule-based strategies are used.
func NewFactory(model PolicyModel) *Factory {
	return &Factory{model: model}
}

// Create builds the named strategy for a country.
func (f *Factory) Create(strategy, country string, params StrategyParams) (sim.DecisionProvider, error) {
	switch strategy {
	case StrategyDeficitHawk:
		return NewDeficitHawk(country, params), nil
	case StrategyRetaliator:
		return NewRetaliator(country, params), nil
	case StrategyDiversifier:
		return NewDiversifier(country, params), nil
	case StrategyStatusQuo:
		return NewStatusQuoProvider(country), nil
	case StrategyModel:
		if f.model == nil {
			return nil, fmt.Errorf("model strategy requested for %s but no model client configured", country)
		}
		return NewModelProvider(country, f.model), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q for %s", strategy, country)
	}
}

// CreateAll builds one provider per country from a strategy map.
func (f *Factory) CreateAll(strategies map[string]string, params map[string]StrategyParams) (map[string]sim.DecisionProvider, error) {
	providers := make(map[string]sim.DecisionProvider, len(strategies))
	for country, strategy := range strategies {
		p, err := f.Create(strategy, country, params[country])
		if err != nil {
			return nil, err
		}
		providers[country] = p
	}
	return providers, nil
}
