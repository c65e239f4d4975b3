package reports

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/ziadkadry99/pulse/internal/aggregate"
	"github.com/ziadkadry99/pulse/internal/db"
	"github.com/ziadkadry99/pulse/internal/llm"
)

func TestMain(m *testing.M) {
	// opencensus, pulled in by the genai SDK, starts its stats worker at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

var (
	may1 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	may7 = time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC)
)

type fakeNarrator struct {
	insights        string
	recommendations string
	briefs          []string
}

func (n *fakeNarrator) GenerateInsights(ctx context.Context, summary string) string {
	n.briefs = append(n.briefs, summary)
	return n.insights
}

func (n *fakeNarrator) GenerateRecommendations(ctx context.Context, summary string) string {
	n.briefs = append(n.briefs, summary)
	return n.recommendations
}

type fakeDepartments map[string][]string

func (f fakeDepartments) DepartmentsOfCompanyBetween(ctx context.Context, companyID string, first, last time.Time) ([]string, error) {
	return f[companyID], nil
}

type failingAggregates struct{}

func (failingAggregates) CompanyRange(ctx context.Context, companyID string, first, last time.Time) ([]aggregate.DailyAggregate, error) {
	return nil, errors.New("disk on fire")
}

func (failingAggregates) DepartmentRange(ctx context.Context, departmentID string, first, last time.Time) ([]aggregate.DailyAggregate, error) {
	panic("department range exploded")
}

type fixture struct {
	store    *Store
	aggs     *aggregate.Store
	narrator *fakeNarrator
	gen      *Generator
}

func setup(t *testing.T) *fixture {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	f := &fixture{
		store:    NewStore(database),
		aggs:     aggregate.NewStore(database),
		narrator: &fakeNarrator{insights: "Estresse concentrado em prazos.", recommendations: "Revisar prazos da sprint."},
	}
	f.gen = NewGenerator(f.store, f.aggs, fakeDepartments{"c-1": {"d-1", "d-2"}}, f.narrator, nil)
	return f
}

func (f *fixture) upsert(t *testing.T, aggs ...aggregate.DailyAggregate) {
	t.Helper()
	for _, a := range aggs {
		if err := f.aggs.Upsert(context.Background(), a); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
}

func seed(t *testing.T, f *fixture) {
	f.upsert(t,
		aggregate.DailyAggregate{
			Scope: aggregate.ScopeCompany, ScopeID: "c-1", Day: "2024-05-01",
			AverageStress: 80, AverageIntensity: 60, ActiveUserCount: 3, ConversationCount: 4,
			RiskAlertCount: 1, SignalCount: 2,
			TopKeywords: []aggregate.TermCount{{Term: "prazo", Count: 2}},
			TopTriggers: []aggregate.TermCount{{Term: "chefe", Count: 1}},
		},
		aggregate.DailyAggregate{
			Scope: aggregate.ScopeCompany, ScopeID: "c-1", Day: "2024-05-03",
			AverageStress: 20, AverageIntensity: 30, ActiveUserCount: 5, ConversationCount: 2,
			SignalCount: 2,
			TopKeywords: []aggregate.TermCount{{Term: "férias", Count: 2}, {Term: "prazo", Count: 1}},
		},
		aggregate.DailyAggregate{
			Scope: aggregate.ScopeDepartment, ScopeID: "d-1", Day: "2024-05-01",
			AverageStress: 80, AverageIntensity: 60, ActiveUserCount: 2, SignalCount: 2, RiskAlertCount: 1,
		},
	)
}

func fullSpec() Spec {
	return Spec{
		CompanyID:               "c-1",
		Type:                    TypeComprehensive,
		PeriodStart:             may1,
		PeriodEnd:               may7,
		GenerateInsights:        true,
		GenerateRecommendations: true,
		IncludeSections:         true,
	}
}

func sectionTypes(r *Report) []SectionType {
	var out []SectionType
	for _, s := range r.Sections {
		out = append(out, s.Type)
	}
	return out
}

func TestGenerateBuildsSectionsInOrder(t *testing.T) {
	f := setup(t)
	seed(t, f)

	r, err := f.gen.Generate(context.Background(), fullSpec())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if r.Status != StatusCompleted {
		t.Fatalf("Status = %s, want COMPLETED", r.Status)
	}
	if r.GeneratedAt == nil {
		t.Fatal("GeneratedAt not set")
	}

	want := []SectionType{SectionSummary, SectionMetrics, SectionInsights, SectionRecommendations, SectionDepartmentBreakdown}
	if diff := cmp.Diff(want, sectionTypes(r)); diff != "" {
		t.Errorf("section order mismatch (-want +got):\n%s", diff)
	}

	stored, err := f.store.Get(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != StatusCompleted {
		t.Errorf("stored Status = %s", stored.Status)
	}
	if diff := cmp.Diff(want, sectionTypes(stored)); diff != "" {
		t.Errorf("stored section order mismatch (-want +got):\n%s", diff)
	}
	for i, s := range stored.Sections {
		if s.Order != i+1 {
			t.Errorf("section %d has Order %d", i, s.Order)
		}
	}
	if stored.Sections[2].Content != f.narrator.insights {
		t.Errorf("insights = %q", stored.Sections[2].Content)
	}
}

func TestGenerateMetricsAreWeightedBySignals(t *testing.T) {
	f := setup(t)
	seed(t, f)

	r, err := f.gen.Generate(context.Background(), fullSpec())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var got PeriodSummary
	if err := json.Unmarshal(r.Sections[1].StructuredData, &got); err != nil {
		t.Fatalf("decoding metrics: %v", err)
	}
	want := PeriodSummary{
		ScopeID:           "c-1",
		PeriodStart:       "2024-05-01",
		PeriodEnd:         "2024-05-07",
		DaysWithData:      2,
		SignalCount:       4,
		AverageStress:     50,
		AverageIntensity:  45,
		PeakActiveUsers:   5,
		ConversationCount: 6,
		RiskAlertCount:    1,
		TopKeywords:       []aggregate.TermCount{{Term: "prazo", Count: 3}, {Term: "férias", Count: 2}},
		TopTriggers:       []aggregate.TermCount{{Term: "chefe", Count: 1}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarizeFoldsDailyTopTerms(t *testing.T) {
	aggs := []aggregate.DailyAggregate{
		{SignalCount: 2, TopKeywords: []aggregate.TermCount{{Term: "prazo", Count: 3}, {Term: "chefe", Count: 1}}},
		{SignalCount: 1, TopKeywords: []aggregate.TermCount{{Term: "chefe", Count: 4}}},
	}
	s := Summarize("c1", may1, may7, aggs)

	want := []aggregate.TermCount{{Term: "chefe", Count: 5}, {Term: "prazo", Count: 3}}
	if diff := cmp.Diff(want, s.TopKeywords); diff != "" {
		t.Errorf("TopKeywords (-want +got):\n%s", diff)
	}
}

func TestGenerateKeepsFallbackNarrative(t *testing.T) {
	f := setup(t)
	f.narrator.insights = llm.ApologyText
	f.narrator.recommendations = llm.ApologyText

	spec := fullSpec()
	spec.IncludeSections = false
	r, err := f.gen.Generate(context.Background(), spec)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := []SectionType{SectionSummary, SectionInsights, SectionRecommendations}
	if diff := cmp.Diff(want, sectionTypes(r)); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}
	if r.Sections[1].Content != llm.ApologyText {
		t.Errorf("insights content = %q, want sentinel", r.Sections[1].Content)
	}
}

func TestGenerateDepartmentReportHasNoBreakdown(t *testing.T) {
	f := setup(t)
	seed(t, f)

	spec := fullSpec()
	spec.DepartmentID = "d-1"
	r, err := f.gen.Generate(context.Background(), spec)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, s := range r.Sections {
		if s.Type == SectionDepartmentBreakdown {
			t.Error("department report should not have a breakdown")
		}
	}
	if !strings.Contains(r.Sections[0].Content, "Mensagens analisadas: 2") {
		t.Errorf("summary = %q", r.Sections[0].Content)
	}
}

func TestGenerateFailureMarksReportFailed(t *testing.T) {
	f := setup(t)
	gen := NewGenerator(f.store, failingAggregates{}, nil, f.narrator, nil)

	r, err := gen.Generate(context.Background(), fullSpec())
	if err == nil {
		t.Fatal("expected error")
	}
	if r.Status != StatusFailed {
		t.Errorf("Status = %s, want FAILED", r.Status)
	}

	stored, err := f.store.Get(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != StatusFailed || !strings.Contains(stored.Error, "disk on fire") {
		t.Errorf("stored = %s %q", stored.Status, stored.Error)
	}
	if stored.GeneratedAt != nil {
		t.Error("failed report should have no GeneratedAt")
	}
}

func TestGenerateRecoversPanic(t *testing.T) {
	f := setup(t)
	gen := NewGenerator(f.store, failingAggregates{}, nil, f.narrator, nil)

	spec := fullSpec()
	spec.DepartmentID = "d-1"
	r, err := gen.Generate(context.Background(), spec)
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("err = %v", err)
	}
	if r.Status != StatusFailed {
		t.Errorf("Status = %s", r.Status)
	}
}

func TestGenerateRejectsInvalidSpec(t *testing.T) {
	f := setup(t)
	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"no company", func(s *Spec) { s.CompanyID = "" }},
		{"bad type", func(s *Spec) { s.Type = "DAILY" }},
		{"inverted period", func(s *Spec) { s.PeriodStart, s.PeriodEnd = may7, may1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := fullSpec()
			tt.mutate(&spec)
			if _, err := f.gen.Generate(context.Background(), spec); err == nil {
				t.Error("expected error")
			}
		})
	}
	list, _ := f.store.List(context.Background(), ListFilter{})
	if len(list) != 0 {
		t.Errorf("invalid specs created %d reports", len(list))
	}
}

func completedAt(t *testing.T, f *fixture, generated time.Time) string {
	t.Helper()
	ctx := context.Background()
	r, err := f.gen.Create(ctx, fullSpec())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.store.SetStatus(ctx, r.ID, StatusPending, StatusGenerating); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	r.GeneratedAt = &generated
	if err := f.store.Complete(ctx, r); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	return r.ID
}

func TestArchiverSweep(t *testing.T) {
	f := setup(t)
	now := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	old := completedAt(t, f, now.AddDate(0, 0, -400))
	recent := completedAt(t, f, now.AddDate(0, 0, -10))

	n, err := NewArchiver(f.store, DefaultArchiveAfter, nil).Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("archived %d, want 1", n)
	}

	for id, want := range map[string]Status{old: StatusArchived, recent: StatusCompleted} {
		r, err := f.store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if r.Status != want {
			t.Errorf("report %s: Status = %s, want %s", id, r.Status, want)
		}
	}

	// A second sweep changes nothing.
	n, _ = NewArchiver(f.store, DefaultArchiveAfter, nil).Sweep(context.Background(), now)
	if n != 0 {
		t.Errorf("second sweep archived %d", n)
	}
}

func TestQueueRunsJobsAndNotifies(t *testing.T) {
	f := setup(t)
	seed(t, f)

	var mu sync.Mutex
	var done []Completion
	q := NewQueue(f.gen, QueueOptions{Workers: 2, Size: 4, Notify: func(c Completion) {
		mu.Lock()
		done = append(done, c)
		mu.Unlock()
	}})

	var ids []string
	for range 3 {
		id, err := q.Submit(context.Background(), fullSpec())
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, id)
	}
	q.Close()

	if len(done) != 3 {
		t.Fatalf("got %d completions, want 3", len(done))
	}
	for _, c := range done {
		if c.Status != StatusCompleted || c.Err != nil {
			t.Errorf("completion %+v", c)
		}
	}
	for _, id := range ids {
		r, err := f.store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if r.Status != StatusCompleted {
			t.Errorf("report %s: Status = %s", id, r.Status)
		}
	}

	if _, err := q.Submit(context.Background(), fullSpec()); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Submit after Close: %v", err)
	}
}

type blockingNarrator struct {
	release chan struct{}
}

func (n *blockingNarrator) GenerateInsights(ctx context.Context, summary string) string {
	<-n.release
	return "ok"
}

func (n *blockingNarrator) GenerateRecommendations(ctx context.Context, summary string) string {
	return "ok"
}

func waitForStatus(t *testing.T, store *Store, status Status, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		list, err := store.List(context.Background(), ListFilter{Status: status})
		if err == nil && len(list) == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s reports", n, status)
}

func TestQueueRejectsWhenFull(t *testing.T) {
	f := setup(t)
	narrator := &blockingNarrator{release: make(chan struct{})}
	gen := NewGenerator(f.store, f.aggs, nil, narrator, nil)
	q := NewQueue(gen, QueueOptions{Workers: 1, Size: 1, Notify: func(Completion) {}})

	spec := fullSpec()
	spec.IncludeSections = false
	spec.GenerateRecommendations = false

	// The first job occupies the worker, the second fills the buffer.
	if _, err := q.Submit(context.Background(), spec); err != nil {
		t.Fatalf("Submit 1: %v", err)
	}
	waitForStatus(t, f.store, StatusGenerating, 1)
	if _, err := q.Submit(context.Background(), spec); err != nil {
		t.Fatalf("Submit 2: %v", err)
	}
	_, err := q.Submit(context.Background(), spec)
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Submit 3: err = %v, want ErrQueueFull", err)
	}

	close(narrator.release)
	q.Close()

	failed, _ := f.store.List(context.Background(), ListFilter{Status: StatusFailed})
	if len(failed) != 1 {
		t.Errorf("got %d failed reports, want 1", len(failed))
	}
	completed, _ := f.store.List(context.Background(), ListFilter{Status: StatusCompleted})
	if len(completed) != 2 {
		t.Errorf("got %d completed reports, want 2", len(completed))
	}
}

func TestRenderHTML(t *testing.T) {
	f := setup(t)
	seed(t, f)
	r, err := f.gen.Generate(context.Background(), fullSpec())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	md := RenderMarkdown(r)
	if !strings.HasPrefix(md, "# Relatório comprehensive 2024-05-01 a 2024-05-07") {
		t.Errorf("markdown header: %q", strings.SplitN(md, "\n", 2)[0])
	}

	page, err := RenderHTML(r)
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	html := string(page)
	for _, want := range []string{"<title>Relatório comprehensive", "<h2 id=", "<table>", "Revisar prazos da sprint."} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
}

func TestRoutes(t *testing.T) {
	f := setup(t)
	seed(t, f)
	q := NewQueue(f.gen, QueueOptions{Workers: 1, Size: 2})

	r := chi.NewRouter()
	RegisterRoutes(r, f.store, q, time.UTC)

	body := `{"company_id":"c-1","type":"WEEKLY","period_start":"2024-05-01","period_end":"2024-05-07","include_sections":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/reports", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST status = %d: %s", rec.Code, rec.Body.String())
	}
	var created map[string]string
	json.NewDecoder(rec.Body).Decode(&created)
	q.Close()

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports/"+created["id"], nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	var got Report
	json.NewDecoder(rec.Body).Decode(&got)
	if got.Status != StatusCompleted || got.Type != TypeWeekly {
		t.Errorf("got %s %s", got.Status, got.Type)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports/"+created["id"]+"/html", nil))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	bad := `{"company_id":"c-1","period_start":"01/05/2024","period_end":"2024-05-07"}`
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reports", strings.NewReader(bad)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad request status = %d", rec.Code)
	}
}
