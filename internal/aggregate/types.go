package aggregate

import "fmt"

// Scope is the unit of tenant partitioning.
type Scope string

const (
	ScopeDepartment Scope = "department"
	ScopeCompany    Scope = "company"
)

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeDepartment, ScopeCompany:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("unknown scope %q", s)
	}
}

// TermCount is one row of a frequency table.
type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// DailyAggregate is the rollup of one scope on one calendar day. It holds
// no timestamps so recomputation over the same signals is identical.
type DailyAggregate struct {
	Scope             Scope       `json:"scope"`
	ScopeID           string      `json:"scope_id"`
	Day               string      `json:"day"`
	AverageStress     float64     `json:"average_stress"`
	AverageIntensity  float64     `json:"average_intensity"`
	ActiveUserCount   int         `json:"active_user_count"`
	ConversationCount int         `json:"conversation_count"`
	RiskAlertCount    int         `json:"risk_alert_count"`
	SignalCount       int         `json:"signal_count"`
	TopKeywords       []TermCount `json:"top_keywords"`
	TopTriggers       []TermCount `json:"top_triggers"`
}

// TrendKind distinguishes keyword and trigger trend rows.
type TrendKind string

const (
	TrendKeyword TrendKind = "keyword"
	TrendTrigger TrendKind = "trigger"
)

// Trend is one ranked term of a company's keyword analysis for a day.
type Trend struct {
	CompanyID string    `json:"company_id"`
	Day       string    `json:"day"`
	Kind      TrendKind `json:"kind"`
	Term      string    `json:"term"`
	Count     int       `json:"count"`
	Rank      int       `json:"rank"`
}
