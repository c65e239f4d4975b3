package aggregate

import (
	"math"

	"github.com/ziadkadry99/pulse/internal/signals"
)

// Compute rolls up the signals of one scope and day. Signals must be in
// scan order (timestamp, id); that order decides ranking ties. Averages
// cover only signals with a detected emotion, while user and conversation
// counts cover every signal.
func Compute(scope Scope, scopeID, day string, sigs []signals.EmotionSignal, riskThreshold int) DailyAggregate {
	agg := DailyAggregate{
		Scope:       scope,
		ScopeID:     scopeID,
		Day:         day,
		SignalCount: len(sigs),
		TopKeywords: []TermCount{},
		TopTriggers: []TermCount{},
	}
	if len(sigs) == 0 {
		return agg
	}

	users := map[string]bool{}
	conversations := map[string]bool{}
	var stressSum, intensitySum float64
	analysed := 0

	for _, s := range sigs {
		users[s.UserID] = true
		if s.ConversationID != "" {
			conversations[s.ConversationID] = true
		}
		if riskThreshold > 0 && s.RiskLevel >= riskThreshold {
			agg.RiskAlertCount++
		}
		if s.PrimaryEmotion != "" {
			analysed++
			stressSum += float64(s.StressLevel)
			intensitySum += float64(s.Intensity)
		}
	}

	agg.ActiveUserCount = len(users)
	agg.ConversationCount = len(conversations)
	if analysed > 0 {
		agg.AverageStress = round2(stressSum / float64(analysed))
		agg.AverageIntensity = round2(intensitySum / float64(analysed))
	}
	keywords, triggers := countTerms(sigs)
	agg.TopKeywords = keywords.top(TopN)
	agg.TopTriggers = triggers.top(TopN)
	return agg
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// countTerms builds the keyword and trigger frequency tables of sigs.
// Keywords come from context summaries and trigger phrases.
func countTerms(sigs []signals.EmotionSignal) (keywords, triggers *counter) {
	keywords = newCounter()
	triggers = newCounter()
	for _, s := range sigs {
		for _, tok := range tokenize(s.ContextSummary) {
			keywords.add(tok)
		}
		for _, tr := range s.Triggers {
			triggers.add(normalizeTerm(tr))
			for _, tok := range tokenize(tr) {
				keywords.add(tok)
			}
		}
	}
	return keywords, triggers
}
