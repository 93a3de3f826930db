package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/policylab/tradewar/internal/domain"
	"github.com/policylab/tradewar/internal/sim"
)

// PolicyModel is the narrow completion surface the model-backed provider
// needs. *modelapi.Client satisfies it.
type PolicyModel interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ModelProvider asks a language model for the next action. Any transport
// or parse failure is returned as an error so the engine substitutes its
// deterministic status-quo fallback; the model can degrade but never
// corrupt a run.
type ModelProvider struct {
	country string
	model   PolicyModel
}

// NewModelProvider builds a model-backed provider for country.
func NewModelProvider(country string, model PolicyModel) *ModelProvider {
	return &ModelProvider{country: country, model: model}
}

const policySystemPrompt = `You decide quarterly trade policy for one country in an economic simulation.
Respond with a single JSON object and nothing else:
{"action_type": "...", "target_country": "...", "sectors": ["..."], "magnitude": 0.0, "justification": "..."}
Valid action_type values: %s.
Magnitude is a fraction in [0,1] (currency_devaluation allows [-1,1]).`

func (m *ModelProvider) DecideAction(ctx context.Context, state *sim.State) (domain.EconomicAction, error) {
	system := fmt.Sprintf(policySystemPrompt, actionTypeList())
	response, err := m.model.Complete(ctx, system, m.describeState(state))
	if err != nil {
		return domain.EconomicAction{}, fmt.Errorf("model completion for %s: %w", m.country, err)
	}

	action, err := parseModelAction(response, m.country, state.Now)
	if err != nil {
		return domain.EconomicAction{}, fmt.Errorf("model response for %s: %w", m.country, err)
	}
	return action, nil
}

func (m *ModelProvider) ObserveState(_ *sim.State) {}

func actionTypeList() string {
	names := make([]string, len(domain.AllActionTypes))
	for i, t := range domain.AllActionTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// describeState summarizes the observable situation from the acting
// country's point of view.
func (m *ModelProvider) describeState(state *sim.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. Current period: %s.\n", m.country, state.Now)

	for _, c := range state.Countries() {
		fmt.Fprintf(&b, "%s: GDP %.1f, currency %.3f", c.Name, c.GDP, c.CurrencyValue)
		if snap, ok := state.LatestIndicator(c.Name); ok {
			fmt.Fprintf(&b, ", growth %.2f%%, inflation %.2f%%, unemployment %.2f%%",
				snap.GDPGrowth*100, snap.Inflation*100, snap.Unemployment*100)
		}
		b.WriteString("\n")
	}

	if incoming := state.PoliciesTargeting(m.country); len(incoming) > 0 {
		b.WriteString("Tariffs against you:\n")
		for _, p := range incoming {
			fmt.Fprintf(&b, "- %s at average rate %.2f until %s\n", p.ImposingCountry, p.AverageRate(), p.End())
		}
	}

	if recent := state.RecentActions(); len(recent) > 0 {
		b.WriteString("Recent actions:\n")
		for _, a := range recent {
			fmt.Fprintf(&b, "- %s: %s", a.Country, a.Type)
			if a.TargetCountry != "" {
				fmt.Fprintf(&b, " against %s", a.TargetCountry)
			}
			fmt.Fprintf(&b, " (magnitude %.2f)\n", a.Magnitude)
		}
	}

	b.WriteString("Decide your action for this quarter.")
	return b.String()
}

type modelAction struct {
	ActionType    string   `json:"action_type"`
	TargetCountry string   `json:"target_country"`
	Sectors       []string `json:"sectors"`
	Magnitude     float64  `json:"magnitude"`
	Justification string   `json:"justification"`
}

// parseModelAction extracts the JSON object from a model response,
// tolerating surrounding prose and markdown fences.
func parseModelAction(response, country string, now domain.Period) (domain.EconomicAction, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return domain.EconomicAction{}, fmt.Errorf("no JSON object in response")
	}

	var raw modelAction
	if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil {
		return domain.EconomicAction{}, fmt.Errorf("invalid JSON: %w", err)
	}

	kind, err := domain.ParseActionType(raw.ActionType)
	if err != nil {
		return domain.EconomicAction{}, err
	}

	action := domain.EconomicAction{
		Country:       country,
		Type:          kind,
		TargetCountry: raw.TargetCountry,
		Sectors:       raw.Sectors,
		Magnitude:     raw.Magnitude,
		Justification: raw.Justification,
		Period:        now,
	}
	if err := action.Validate(); err != nil {
		return domain.EconomicAction{}, err
	}
	return action, nil
}
