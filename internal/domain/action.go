package domain

import "fmt"

// ActionType is the closed set of economic actions a country can take.
// It is a tagged variant rather than a free-form string: anything that is
// not one of the enumerated kinds is rejected at construction time, so an
// unknown kind can never silently flow through the engine.
type ActionType string

const (
	ActionTariffIncrease             ActionType = "tariff_increase"
	ActionTariffDecrease             ActionType = "tariff_decrease"
	ActionTariffAdjustment           ActionType = "tariff_adjustment"
	ActionImportQuota                ActionType = "import_quota"
	ActionExportSubsidy              ActionType = "export_subsidy"
	ActionCurrencyDevaluation        ActionType = "currency_devaluation"
	ActionTechExportControl          ActionType = "tech_export_control"
	ActionIndustrialSubsidy          ActionType = "industrial_subsidy"
	ActionSupplyChainDiversification ActionType = "supply_chain_diversification"
	ActionFriendShoring              ActionType = "friend_shoring"
	ActionGreenTechInvestment        ActionType = "green_tech_investment"
	ActionDataSovereignty            ActionType = "data_sovereignty"
	ActionStatusQuo                  ActionType = "status_quo"
)

// AllActionTypes lists every valid action kind. Engine dispatch is tested
// against this list so a newly added kind without a handler fails fast.
var AllActionTypes = []ActionType{
	ActionTariffIncrease,
	ActionTariffDecrease,
	ActionTariffAdjustment,
	ActionImportQuota,
	ActionExportSubsidy,
	ActionCurrencyDevaluation,
	ActionTechExportControl,
	ActionIndustrialSubsidy,
	ActionSupplyChainDiversification,
	ActionFriendShoring,
	ActionGreenTechInvestment,
	ActionDataSovereignty,
	ActionStatusQuo,
}

var validActionTypes = func() map[ActionType]bool {
	m := make(map[ActionType]bool, len(AllActionTypes))
	for _, t := range AllActionTypes {
		m[t] = true
	}
	return m
}()

// Valid reports whether t is one of the enumerated action kinds.
func (t ActionType) Valid() bool {
	return validActionTypes[t]
}

// RequiresTarget reports whether actions of this kind must name a target
// country to have any effect.
func (t ActionType) RequiresTarget() bool {
	switch t {
	case ActionTariffIncrease, ActionTariffDecrease, ActionTariffAdjustment,
		ActionImportQuota, ActionTechExportControl,
		ActionSupplyChainDiversification, ActionFriendShoring,
		ActionDataSovereignty:
		return true
	default:
		return false
	}
}

// ParseActionType converts a raw string into an ActionType.
func ParseActionType(s string) (ActionType, error) {
	t := ActionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown action type %q", s)
	}
	return t, nil
}

// EconomicAction is one country's policy decision for one quarter.
// Actions are immutable once created; the state appends them to the action
// log and never mutates them.
type EconomicAction struct {
	Country       string     `json:"country"`
	Type          ActionType `json:"action_type"`
	TargetCountry string     `json:"target_country,omitempty"`
	Sectors       []string   `json:"sectors,omitempty"`
	Magnitude     float64    `json:"magnitude"`
	Justification string     `json:"justification"`
	Period        Period     `json:"period"`
}

// Validate checks the action against the closed kind set and magnitude
// bounds. Magnitude is normalized to [0,1] for every kind except currency
// devaluation, which carries a signed fraction in [-1,1].
func (a EconomicAction) Validate() error {
	if !a.Type.Valid() {
		return &ValidationError{Field: "action_type", Reason: fmt.Sprintf("unknown kind %q", string(a.Type))}
	}
	if a.Country == "" {
		return &ValidationError{Field: "country", Reason: "missing actor country"}
	}
	lo := 0.0
	if a.Type == ActionCurrencyDevaluation {
		lo = -1.0
	}
	if a.Magnitude < lo || a.Magnitude > 1.0 {
		return &ValidationError{
			Field:  "magnitude",
			Reason: fmt.Sprintf("%.3f outside [%.0f,1] for %s", a.Magnitude, lo, a.Type),
		}
	}
	return nil
}

// MaxQuotaReduction caps how much of a trade flow an import quota can
// remove. Even the harshest quota leaves 10% of the flow intact.
const MaxQuotaReduction = 0.9

// QuotaFactor converts an import-quota magnitude into the multiplicative
// factor applied to matching trade-flow volumes. It is non-increasing in
// magnitude and bounded to [0.1, 1.0].
func QuotaFactor(magnitude float64) float64 {
	if magnitude < 0 {
		magnitude = 0
	}
	reduction := magnitude
	if reduction > MaxQuotaReduction {
		reduction = MaxQuotaReduction
	}
	return 1.0 - reduction
}
