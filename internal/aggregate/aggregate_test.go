package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ziadkadry99/pulse/internal/db"
	"github.com/ziadkadry99/pulse/internal/signals"
)

func setup(t *testing.T) (*signals.Store, *Store, *Aggregator) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	sigStore := signals.NewStore(database, time.UTC)
	store := NewStore(database)
	return sigStore, store, New(sigStore, store, 70, nil)
}

func save(t *testing.T, store *signals.Store, sigs ...signals.EmotionSignal) {
	t.Helper()
	for _, s := range sigs {
		s := s
		if err := store.SaveEmotion(context.Background(), &s); err != nil {
			t.Fatalf("SaveEmotion: %v", err)
		}
	}
}

var may1 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func at(h int) time.Time { return may1.Add(time.Duration(h) * time.Hour) }

func TestComputeCounts(t *testing.T) {
	sigs := []signals.EmotionSignal{
		{UserID: "u1", ConversationID: "c1", PrimaryEmotion: "medo", Intensity: 80, StressLevel: 70, RiskLevel: 75},
		{UserID: "u1", ConversationID: "c1", PrimaryEmotion: "calma", Intensity: 20, StressLevel: 10},
		{UserID: "u2", ConversationID: "c2", PrimaryEmotion: "raiva", Intensity: 50, StressLevel: 40, RiskLevel: 90},
		{UserID: "u3"},
	}

	agg := Compute(ScopeDepartment, "d1", "2024-05-01", sigs, 70)

	if agg.ActiveUserCount != 3 {
		t.Errorf("ActiveUserCount = %d, want 3", agg.ActiveUserCount)
	}
	if agg.ConversationCount != 2 {
		t.Errorf("ConversationCount = %d, want 2", agg.ConversationCount)
	}
	if agg.RiskAlertCount != 2 {
		t.Errorf("RiskAlertCount = %d, want 2", agg.RiskAlertCount)
	}
	if agg.AverageIntensity != 50 {
		t.Errorf("AverageIntensity = %v, want 50", agg.AverageIntensity)
	}
	if agg.AverageStress != 40 {
		t.Errorf("AverageStress = %v, want 40", agg.AverageStress)
	}
	if agg.SignalCount != 4 {
		t.Errorf("SignalCount = %d", agg.SignalCount)
	}
}

func TestComputeRankingTieBreakIsFirstSeen(t *testing.T) {
	sigs := []signals.EmotionSignal{
		{UserID: "u1", Triggers: []string{"Prazo apertado", "reunião"}},
		{UserID: "u2", Triggers: []string{"chefe", "reunião"}},
		{UserID: "u3", Triggers: []string{"prazo  apertado", "chefe", "mudança"}},
		{UserID: "u4", Triggers: []string{"mudança"}},
	}

	agg := Compute(ScopeCompany, "acme", "2024-05-01", sigs, 70)

	want := []TermCount{
		{Term: "prazo apertado", Count: 2},
		{Term: "reunião", Count: 2},
		{Term: "chefe", Count: 2},
		{Term: "mudança", Count: 2},
	}
	if diff := cmp.Diff(want, agg.TopTriggers); diff != "" {
		t.Errorf("TopTriggers mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeKeywordsSkipStopwordsAndShortTokens(t *testing.T) {
	sigs := []signals.EmotionSignal{
		{UserID: "u1", ContextSummary: "Medo de ser demitido na próxima semana"},
		{UserID: "u2", ContextSummary: "Medo do prazo"},
	}
	agg := Compute(ScopeCompany, "acme", "2024-05-01", sigs, 70)

	want := []TermCount{
		{Term: "medo", Count: 2},
		{Term: "demitido", Count: 1},
		{Term: "próxima", Count: 1},
		{Term: "semana", Count: 1},
		{Term: "prazo", Count: 1},
	}
	if diff := cmp.Diff(want, agg.TopKeywords); diff != "" {
		t.Errorf("TopKeywords mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeKeepsTopN(t *testing.T) {
	triggers := []string{"alfa", "beta", "gama", "delta", "épsilon", "zeta", "eta", "teta", "iota", "capa", "lambda", "mi"}
	agg := Compute(ScopeCompany, "acme", "2024-05-01", []signals.EmotionSignal{{UserID: "u", Triggers: triggers}}, 70)
	if len(agg.TopTriggers) != TopN {
		t.Errorf("expected %d triggers, got %d", TopN, len(agg.TopTriggers))
	}
}

func TestAggregateDayIsIdempotent(t *testing.T) {
	sigStore, store, agg := setup(t)
	save(t, sigStore,
		signals.EmotionSignal{UserID: "u1", CompanyID: "acme", DepartmentID: "eng", ConversationID: "c1", Timestamp: at(9),
			PrimaryEmotion: "medo", Intensity: 80, StressLevel: 60, Triggers: []string{"prazo"}, ContextSummary: "prazo curto"},
		signals.EmotionSignal{UserID: "u2", CompanyID: "acme", DepartmentID: "eng", ConversationID: "c2", Timestamp: at(11),
			PrimaryEmotion: "alegria", Intensity: 40, StressLevel: 20, Triggers: []string{"equipe"}, ContextSummary: "equipe unida"},
	)
	ctx := context.Background()

	first, err := agg.AggregateDepartment(ctx, "eng", may1)
	if err != nil {
		t.Fatalf("first AggregateDepartment: %v", err)
	}
	stored1, err := store.Get(ctx, ScopeDepartment, "eng", "2024-05-01")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	second, err := agg.AggregateDepartment(ctx, "eng", may1)
	if err != nil {
		t.Fatalf("second AggregateDepartment: %v", err)
	}
	stored2, err := store.Get(ctx, ScopeDepartment, "eng", "2024-05-01")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("recompute differs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(stored1, stored2); diff != "" {
		t.Errorf("stored row differs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first, stored2); diff != "" {
		t.Errorf("stored row differs from computed (-computed +stored):\n%s", diff)
	}
	if stored2.ActiveUserCount != 2 {
		t.Errorf("ActiveUserCount = %d, want 2 (no accumulation)", stored2.ActiveUserCount)
	}
}

func TestAggregateDayWithoutSignalsIsZero(t *testing.T) {
	sigStore, store, agg := setup(t)
	save(t, sigStore, signals.EmotionSignal{UserID: "u1", CompanyID: "acme", DepartmentID: "D", Timestamp: at(10), PrimaryEmotion: "calma"})
	ctx := context.Background()

	may2 := may1.AddDate(0, 0, 1)
	got, err := agg.AggregateDay(ctx, ScopeDepartment, "D", may2)
	if err != nil {
		t.Fatalf("AggregateDay: %v", err)
	}
	if got.ActiveUserCount != 0 || got.SignalCount != 0 {
		t.Errorf("expected zero aggregate, got %+v", got)
	}
	if got.Day != "2024-05-02" {
		t.Errorf("Day = %q", got.Day)
	}
	if _, err := store.Get(ctx, ScopeDepartment, "D", "2024-05-02"); err != nil {
		t.Errorf("zero aggregate should be stored: %v", err)
	}
}

func TestAggregateDayRejectsBadInput(t *testing.T) {
	_, _, agg := setup(t)
	if _, err := agg.AggregateDay(context.Background(), ScopeCompany, "", may1); err == nil {
		t.Error("expected error for empty scope id")
	}
	if _, err := agg.AggregateDay(context.Background(), Scope("team"), "x", may1); err == nil {
		t.Error("expected error for unknown scope")
	}
}

func TestStoreGetNotFound(t *testing.T) {
	_, store, _ := setup(t)
	_, err := store.Get(context.Background(), ScopeCompany, "nope", "2024-05-01")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCompanyRange(t *testing.T) {
	sigStore, store, agg := setup(t)
	ctx := context.Background()
	for d := 0; d < 3; d++ {
		day := may1.AddDate(0, 0, d)
		save(t, sigStore, signals.EmotionSignal{UserID: "u1", CompanyID: "acme", Timestamp: day.Add(9 * time.Hour), PrimaryEmotion: "calma", StressLevel: 10 * (d + 1)})
		if _, err := agg.AggregateCompany(ctx, "acme", day); err != nil {
			t.Fatalf("AggregateCompany: %v", err)
		}
	}

	got, err := store.CompanyRange(ctx, "acme", may1.AddDate(0, 0, 1), may1.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("CompanyRange: %v", err)
	}
	var days []string
	for _, a := range got {
		days = append(days, a.Day)
	}
	if diff := cmp.Diff([]string{"2024-05-02", "2024-05-03"}, days); diff != "" {
		t.Errorf("days mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeKeywordsReplacesTrends(t *testing.T) {
	sigStore, store, agg := setup(t)
	ctx := context.Background()
	save(t, sigStore,
		signals.EmotionSignal{UserID: "u1", CompanyID: "acme", Timestamp: at(8), Triggers: []string{"prazo"}, ContextSummary: "prazo apertado"},
		signals.EmotionSignal{UserID: "u2", CompanyID: "acme", Timestamp: at(9), Triggers: []string{"prazo"}, ContextSummary: "cansaço"},
	)

	for i := 0; i < 2; i++ {
		if _, err := agg.AnalyzeKeywords(ctx, "acme", may1); err != nil {
			t.Fatalf("AnalyzeKeywords: %v", err)
		}
	}

	trends, err := store.Trends(ctx, "acme", "2024-05-01")
	if err != nil {
		t.Fatalf("Trends: %v", err)
	}
	want := []Trend{
		{CompanyID: "acme", Day: "2024-05-01", Kind: TrendKeyword, Term: "prazo", Count: 3, Rank: 1},
		{CompanyID: "acme", Day: "2024-05-01", Kind: TrendKeyword, Term: "apertado", Count: 1, Rank: 2},
		{CompanyID: "acme", Day: "2024-05-01", Kind: TrendKeyword, Term: "cansaço", Count: 1, Rank: 3},
		{CompanyID: "acme", Day: "2024-05-01", Kind: TrendTrigger, Term: "prazo", Count: 2, Rank: 1},
	}
	if diff := cmp.Diff(want, trends); diff != "" {
		t.Errorf("trends mismatch (-want +got):\n%s", diff)
	}
}

func TestParseScope(t *testing.T) {
	if _, err := ParseScope("department"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := ParseScope("team"); err == nil {
		t.Error("expected error")
	}
}
