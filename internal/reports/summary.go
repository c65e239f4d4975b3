package reports

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ziadkadry99/pulse/internal/aggregate"
	"github.com/ziadkadry99/pulse/internal/db"
)

// topTerms is how many keywords and triggers a period summary keeps.
const topTerms = 5

// PeriodSummary folds the daily aggregates of one scope over a period.
// Averages are weighted by each day's signal count.
type PeriodSummary struct {
	ScopeID           string                `json:"scope_id"`
	PeriodStart       string                `json:"period_start"`
	PeriodEnd         string                `json:"period_end"`
	DaysWithData      int                   `json:"days_with_data"`
	SignalCount       int                   `json:"signal_count"`
	AverageStress     float64               `json:"average_stress"`
	AverageIntensity  float64               `json:"average_intensity"`
	PeakActiveUsers   int                   `json:"peak_active_users"`
	ConversationCount int                   `json:"conversation_count"`
	RiskAlertCount    int                   `json:"risk_alert_count"`
	TopKeywords       []aggregate.TermCount `json:"top_keywords"`
	TopTriggers       []aggregate.TermCount `json:"top_triggers"`
}

// Summarize builds the PeriodSummary of aggs, which must be in day order.
// Keyword and trigger rankings fold the stored daily top lists, so a term
// that never reached a day's top aggregate.TopN is missing from the period
// ranking and counts are lower bounds.
func Summarize(scopeID string, start, end time.Time, aggs []aggregate.DailyAggregate) PeriodSummary {
	s := PeriodSummary{
		ScopeID:     scopeID,
		PeriodStart: db.FormatDay(start),
		PeriodEnd:   db.FormatDay(end),
	}
	var stress, intensity float64
	keywords := newTally()
	triggers := newTally()
	for _, a := range aggs {
		if a.SignalCount > 0 {
			s.DaysWithData++
		}
		s.SignalCount += a.SignalCount
		stress += a.AverageStress * float64(a.SignalCount)
		intensity += a.AverageIntensity * float64(a.SignalCount)
		s.PeakActiveUsers = max(s.PeakActiveUsers, a.ActiveUserCount)
		s.ConversationCount += a.ConversationCount
		s.RiskAlertCount += a.RiskAlertCount
		for _, tc := range a.TopKeywords {
			keywords.add(tc)
		}
		for _, tc := range a.TopTriggers {
			triggers.add(tc)
		}
	}
	if s.SignalCount > 0 {
		s.AverageStress = math.Round(stress/float64(s.SignalCount)*100) / 100
		s.AverageIntensity = math.Round(intensity/float64(s.SignalCount)*100) / 100
	}
	s.TopKeywords = keywords.top(topTerms)
	s.TopTriggers = triggers.top(topTerms)
	return s
}

// Text renders the summary as the plain-text brief given to the narrator
// and used as the report's summary section.
func (s PeriodSummary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Período: %s a %s\n", s.PeriodStart, s.PeriodEnd)
	if s.SignalCount == 0 {
		b.WriteString("Nenhum sinal registrado no período.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Dias com dados: %d\n", s.DaysWithData)
	fmt.Fprintf(&b, "Mensagens analisadas: %d\n", s.SignalCount)
	fmt.Fprintf(&b, "Estresse médio: %.2f\n", s.AverageStress)
	fmt.Fprintf(&b, "Intensidade emocional média: %.2f\n", s.AverageIntensity)
	fmt.Fprintf(&b, "Pico de usuários ativos: %d\n", s.PeakActiveUsers)
	fmt.Fprintf(&b, "Conversas: %d\n", s.ConversationCount)
	fmt.Fprintf(&b, "Alertas de risco: %d\n", s.RiskAlertCount)
	if len(s.TopKeywords) > 0 {
		fmt.Fprintf(&b, "Palavras-chave: %s\n", joinTerms(s.TopKeywords))
	}
	if len(s.TopTriggers) > 0 {
		fmt.Fprintf(&b, "Gatilhos: %s\n", joinTerms(s.TopTriggers))
	}
	return b.String()
}

func joinTerms(terms []aggregate.TermCount) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = fmt.Sprintf("%s (%d)", t.Term, t.Count)
	}
	return strings.Join(parts, ", ")
}

// tally sums term counts across days, keeping first-seen order for ties.
type tally struct {
	index  map[string]int
	counts []aggregate.TermCount
}

func newTally() *tally {
	return &tally{index: make(map[string]int)}
}

func (t *tally) add(tc aggregate.TermCount) {
	if i, ok := t.index[tc.Term]; ok {
		t.counts[i].Count += tc.Count
		return
	}
	t.index[tc.Term] = len(t.counts)
	t.counts = append(t.counts, tc)
}

func (t *tally) top(n int) []aggregate.TermCount {
	out := make([]aggregate.TermCount, len(t.counts))
	copy(out, t.counts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
