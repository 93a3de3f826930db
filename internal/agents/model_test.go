package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policylab/tradewar/internal/domain"
)

type stubModel struct {
	response string
	err      error

	lastSystem string
	lastUser   string
}

func (m *stubModel) Complete(_ context.Context, system, user string) (string, error) {
	m.lastSystem, m.lastUser = system, user
	return m.response, m.err
}

func TestParseModelActionPlainJSON(t *testing.T) {
	now := domain.Period{Year: 2, Quarter: 1}
	action, err := parseModelAction(
		`{"action_type":"tariff_increase","target_country":"China","sectors":["technology"],"magnitude":0.2,"justification":"rebalancing"}`,
		"US", now)
	require.NoError(t, err)

	assert.Equal(t, "US", action.Country)
	assert.Equal(t, domain.ActionTariffIncrease, action.Type)
	assert.Equal(t, "China", action.TargetCountry)
	assert.Equal(t, 0.2, action.Magnitude)
	assert.Equal(t, now, action.Period)
}

func TestParseModelActionToleratesProseAndFences(t *testing.T) {
	response := "Here is my decision:\n```json\n" +
		`{"action_type":"industrial_subsidy","sectors":["manufacturing"],"magnitude":0.1,"justification":"capacity building"}` +
		"\n```\nLet me know if you need more detail."

	action, err := parseModelAction(response, "China", domain.Period{Year: 1, Quarter: 2})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionIndustrialSubsidy, action.Type)
}

func TestParseModelActionFailures(t *testing.T) {
	now := domain.Period{Year: 1, Quarter: 0}
	cases := []struct {
		name     string
		response string
	}{
		{"no JSON object", "I would rather not decide."},
		{"malformed JSON", `{"action_type": tariff_increase}`},
		{"unknown action type", `{"action_type":"declare_war","magnitude":0.5}`},
		{"magnitude out of range", `{"action_type":"tariff_increase","target_country":"China","magnitude":1.5}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseModelAction(tc.response, "US", now)
			assert.Error(t, err)
		})
	}
}

func TestModelProviderPropagatesTransportErrors(t *testing.T) {
	state := newAgentState(t)
	provider := NewModelProvider("US", &stubModel{err: errors.New("upstream 503")})

	_, err := provider.DecideAction(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream 503")
}

func TestModelProviderReturnsParsedAction(t *testing.T) {
	state := newAgentState(t)
	model := &stubModel{response: `{"action_type":"status_quo","justification":"holding"}`}
	provider := NewModelProvider("US", model)

	action, err := provider.DecideAction(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionStatusQuo, action.Type)
	assert.Equal(t, "US", action.Country)

	assert.Contains(t, model.lastSystem, string(domain.ActionTariffIncrease),
		"system prompt enumerates the valid action kinds")
	assert.Contains(t, model.lastUser, "You are US")
}

func TestDescribeStateMentionsEveryCountry(t *testing.T) {
	state := newAgentState(t)
	provider := NewModelProvider("Indonesia", &stubModel{})

	summary := provider.describeState(state)
	for _, name := range []string{"US", "China", "Indonesia"} {
		assert.True(t, strings.Contains(summary, name), "summary should mention %s", name)
	}
}

func TestFactoryBuildsEachStrategy(t *testing.T) {
	factory := NewFactory(&stubModel{})

	for _, strategy := range []string{
		StrategyDeficitHawk, StrategyRetaliator, StrategyDiversifier, StrategyStatusQuo, StrategyModel,
	} {
		provider, err := factory.Create(strategy, "US", StrategyParams{})
		require.NoError(t, err, strategy)
		assert.NotNil(t, provider, strategy)
	}
}

func TestFactoryRejectsUnknownStrategy(t *testing.T) {
	factory := NewFactory(nil)
	_, err := factory.Create("mercantilist", "US", StrategyParams{})
	assert.ErrorContains(t, err, "mercantilist")
}

func TestFactoryRequiresModelClientForModelStrategy(t *testing.T) {
	factory := NewFactory(nil)
	_, err := factory.Create(StrategyModel, "US", StrategyParams{})
	assert.Error(t, err)
}

func TestCreateAllAssignsPerCountryProviders(t *testing.T) {
	factory := NewFactory(nil)
	providers, err := factory.CreateAll(map[string]string{
		"US":        StrategyDeficitHawk,
		"China":     StrategyRetaliator,
		"Indonesia": StrategyDiversifier,
	}, map[string]StrategyParams{
		"US": {TariffMagnitude: 0.3},
	})
	require.NoError(t, err)
	require.Len(t, providers, 3)
	assert.IsType(t, &DeficitHawk{}, providers["US"])
	assert.IsType(t, &Retaliator{}, providers["China"])
	assert.IsType(t, &Diversifier{}, providers["Indonesia"])
}
