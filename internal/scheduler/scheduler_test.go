package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/ziadkadry99/pulse/internal/aggregate"
	"github.com/ziadkadry99/pulse/internal/db"
	"github.com/ziadkadry99/pulse/internal/reports"
)

func TestMain(m *testing.M) {
	// opencensus, pulled in by the genai SDK, starts its stats worker at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeIndex struct {
	departments []string
	companies   []string
	between     []string
	err         error

	mu    sync.Mutex
	first time.Time
	last  time.Time
}

func (f *fakeIndex) DepartmentsWithSignals(ctx context.Context, day time.Time) ([]string, error) {
	return f.departments, f.err
}

func (f *fakeIndex) CompaniesWithSignals(ctx context.Context, day time.Time) ([]string, error) {
	return f.companies, nil
}

func (f *fakeIndex) CompaniesWithSignalsBetween(ctx context.Context, first, last time.Time) ([]string, error) {
	f.mu.Lock()
	f.first, f.last = first, last
	f.mu.Unlock()
	return f.between, nil
}

type fakeAggregator struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
	block chan struct{}
}

func (f *fakeAggregator) record(kind, id string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind+":"+id)
	if f.fail[id] {
		if kind == "department" {
			panic("bad department row")
		}
		return errors.New("boom")
	}
	return nil
}

func (f *fakeAggregator) AggregateDepartment(ctx context.Context, id string, day time.Time) (*aggregate.DailyAggregate, error) {
	return nil, f.record("department", id)
}

func (f *fakeAggregator) AggregateCompany(ctx context.Context, id string, day time.Time) (*aggregate.DailyAggregate, error) {
	return nil, f.record("company", id)
}

func (f *fakeAggregator) AnalyzeKeywords(ctx context.Context, id string, day time.Time) ([]aggregate.Trend, error) {
	return nil, f.record("keywords", id)
}

func (f *fakeAggregator) sortedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

type fakeSubmitter struct {
	mu    sync.Mutex
	specs []reports.Spec
	fail  map[string]bool
}

func (f *fakeSubmitter) Submit(ctx context.Context, spec reports.Spec) (string, error) {
	if f.fail[spec.CompanyID] {
		return "", errors.New("report generation failed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs = append(f.specs, spec)
	return db.NewID(), nil
}

type fakeArchiver struct {
	at time.Time
}

func (f *fakeArchiver) Sweep(ctx context.Context, now time.Time) (int, error) {
	f.at = now
	return 1, nil
}

func newScheduler(t *testing.T, index *fakeIndex, agg *fakeAggregator, sub *fakeSubmitter, arch *fakeArchiver, pool int) *Scheduler {
	t.Helper()
	s, err := New(index, agg, sub, arch, Options{Location: time.UTC, PoolSize: pool, Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s
}

// Tuesday.
var fireAt = time.Date(2024, 5, 14, 6, 0, 0, 0, time.UTC)

func TestWeeklyRunIsolatesFailedCompany(t *testing.T) {
	index := &fakeIndex{between: []string{"A", "B"}}
	sub := &fakeSubmitter{fail: map[string]bool{"A": true}}
	s := newScheduler(t, index, &fakeAggregator{}, sub, &fakeArchiver{}, 1)

	result, err := s.Run(context.Background(), TriggerWeekly, fireAt)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed != 1 || result.Processed != 1 {
		t.Errorf("processed=%d failed=%d, want 1/1", result.Processed, result.Failed)
	}
	if result.State != StateCompletedWithErrors {
		t.Errorf("State = %s", result.State)
	}
	if len(sub.specs) != 1 || sub.specs[0].CompanyID != "B" {
		t.Fatalf("submitted %+v, want only B", sub.specs)
	}

	spec := sub.specs[0]
	if spec.Type != reports.TypeComprehensive {
		t.Errorf("Type = %s", spec.Type)
	}
	if got := db.FormatDay(spec.PeriodStart) + ".." + db.FormatDay(spec.PeriodEnd); got != "2024-05-07..2024-05-13" {
		t.Errorf("period = %s", got)
	}
}

// companyAggregates fails range reads for the companies in fail.
type companyAggregates struct {
	fail map[string]bool
}

func (a companyAggregates) CompanyRange(ctx context.Context, companyID string, first, last time.Time) ([]aggregate.DailyAggregate, error) {
	if a.fail[companyID] {
		return nil, errors.New("aggregate read failed")
	}
	return nil, nil
}

func (a companyAggregates) DepartmentRange(ctx context.Context, departmentID string, first, last time.Time) ([]aggregate.DailyAggregate, error) {
	return nil, nil
}

func (companyAggregates) DepartmentsOfCompanyBetween(ctx context.Context, companyID string, first, last time.Time) ([]string, error) {
	return nil, nil
}

type cannedNarrator struct{}

func (cannedNarrator) GenerateInsights(ctx context.Context, summary string) string { return "insights" }

func (cannedNarrator) GenerateRecommendations(ctx context.Context, summary string) string {
	return "recomendações"
}

func TestWeeklyRunCountsReportFailedInQueue(t *testing.T) {
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	store := reports.NewStore(database)
	aggs := companyAggregates{fail: map[string]bool{"A": true}}
	gen := reports.NewGenerator(store, aggs, aggs, cannedNarrator{}, zaptest.NewLogger(t))

	var s *Scheduler
	var mu sync.Mutex
	statuses := map[string]reports.Status{}
	queue := reports.NewQueue(gen, reports.QueueOptions{
		Workers: 2,
		Size:    4,
		Notify: func(c reports.Completion) {
			s.ReportCompleted(c)
			mu.Lock()
			statuses[c.CompanyID] = c.Status
			mu.Unlock()
		},
	})
	s, err = New(&fakeIndex{between: []string{"A", "B"}}, &fakeAggregator{}, queue, &fakeArchiver{},
		Options{Location: time.UTC, PoolSize: 2, Logger: zaptest.NewLogger(t)})
	if err != nil {
		queue.Close()
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Stop(context.Background()) })

	if _, err := s.Run(context.Background(), TriggerWeekly, fireAt); err != nil {
		queue.Close()
		t.Fatalf("Run: %v", err)
	}
	queue.Close()

	want := map[string]reports.Status{"A": reports.StatusFailed, "B": reports.StatusCompleted}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Errorf("report statuses (-want +got):\n%s", diff)
	}
	last, ok := s.LastRun(TriggerWeekly)
	if !ok {
		t.Fatal("no weekly run recorded")
	}
	if last.Processed != 1 || last.Failed != 1 || last.State != StateCompletedWithErrors {
		t.Errorf("last run = %+v, want 1 processed, 1 failed, completed_with_errors", last)
	}
}

func TestReportCompletedIgnoresUnknownReports(t *testing.T) {
	s := newScheduler(t, &fakeIndex{between: []string{"A"}}, &fakeAggregator{}, &fakeSubmitter{}, &fakeArchiver{}, 1)
	if _, err := s.Run(context.Background(), TriggerWeekly, fireAt); err != nil {
		t.Fatalf("Run: %v", err)
	}
	s.ReportCompleted(reports.Completion{ReportID: "manual", CompanyID: "A", Status: reports.StatusFailed, Err: errors.New("boom")})

	last, _ := s.LastRun(TriggerWeekly)
	if last.Failed != 0 || last.State != StateCompleted {
		t.Errorf("last run = %+v, a report the scheduler did not submit should not count", last)
	}
}

func TestMonthlyRunCoversPreviousMonth(t *testing.T) {
	index := &fakeIndex{between: []string{"A"}}
	sub := &fakeSubmitter{}
	s := newScheduler(t, index, &fakeAggregator{}, sub, &fakeArchiver{}, 2)

	at := time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)
	result, err := s.Run(context.Background(), TriggerMonthly, at)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.PeriodStart != "2024-02-01" || result.PeriodEnd != "2024-02-29" {
		t.Errorf("period = %s..%s", result.PeriodStart, result.PeriodEnd)
	}
	if result.State != StateCompleted || result.Processed != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestDailyRunContinuesAfterFailures(t *testing.T) {
	index := &fakeIndex{departments: []string{"d-1", "d-2", "d-3"}, companies: []string{"c-1", "c-2"}}
	agg := &fakeAggregator{fail: map[string]bool{"d-2": true, "c-1": true}}
	s := newScheduler(t, index, agg, &fakeSubmitter{}, &fakeArchiver{}, 3)

	result, err := s.Run(context.Background(), TriggerDaily, fireAt)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"company:c-1", "company:c-2",
		"department:d-1", "department:d-2", "department:d-3",
		"keywords:c-1", "keywords:c-2",
	}
	if diff := cmp.Diff(want, agg.sortedCalls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	// d-2 panics, c-1 fails both company rollup and keyword analysis.
	if result.Failed != 3 || result.Processed != 4 {
		t.Errorf("processed=%d failed=%d, want 4/3", result.Processed, result.Failed)
	}
	if result.PeriodStart != "2024-05-13" {
		t.Errorf("day = %s, want yesterday", result.PeriodStart)
	}
}

func TestDailyRunCountsListingFailure(t *testing.T) {
	index := &fakeIndex{err: errors.New("db locked"), companies: []string{"c-1"}}
	agg := &fakeAggregator{}
	s := newScheduler(t, index, agg, &fakeSubmitter{}, &fakeArchiver{}, 1)

	result, _ := s.Run(context.Background(), TriggerDaily, fireAt)
	if result.Failed != 1 || result.Processed != 2 {
		t.Errorf("processed=%d failed=%d, want 2/1", result.Processed, result.Failed)
	}
}

func TestArchiveRun(t *testing.T) {
	arch := &fakeArchiver{}
	s := newScheduler(t, &fakeIndex{}, &fakeAggregator{}, &fakeSubmitter{}, arch, 1)

	result, err := s.Run(context.Background(), TriggerArchive, fireAt)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !arch.at.Equal(fireAt) {
		t.Errorf("Sweep called with %v", arch.at)
	}
	if result.State != StateCompleted || result.Processed != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestOverlappingRunIsRefused(t *testing.T) {
	agg := &fakeAggregator{block: make(chan struct{})}
	s := newScheduler(t, &fakeIndex{departments: []string{"d-1"}}, agg, &fakeSubmitter{}, &fakeArchiver{}, 1)

	done := make(chan RunResult, 1)
	go func() {
		r, _ := s.Run(context.Background(), TriggerDaily, fireAt)
		done <- r
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if r, ok := s.LastRun(TriggerDaily); ok && r.State == StateRunning {
			break
		}
		if time.Now().After(deadline) {
			close(agg.block)
			t.Fatal("run never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := s.Run(context.Background(), TriggerDaily, fireAt); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run: err = %v, want ErrAlreadyRunning", err)
	}
	// Other triggers are independent.
	if _, err := s.Run(context.Background(), TriggerArchive, fireAt); err != nil {
		t.Errorf("archive Run: %v", err)
	}

	close(agg.block)
	if r := <-done; r.State != StateCompleted {
		t.Errorf("first run State = %s", r.State)
	}
	if r, _ := s.LastRun(TriggerDaily); r.State != StateCompleted {
		t.Errorf("LastRun State = %s", r.State)
	}
}

func TestNewRejectsBadCron(t *testing.T) {
	_, err := New(&fakeIndex{}, &fakeAggregator{}, &fakeSubmitter{}, &fakeArchiver{}, Options{WeeklyCron: "whenever"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestStartStop(t *testing.T) {
	s := newScheduler(t, &fakeIndex{}, &fakeAggregator{}, &fakeSubmitter{}, &fakeArchiver{}, 1)
	s.Start()
	if n := len(s.cron.Entries()); n != len(Triggers) {
		t.Errorf("got %d cron entries, want %d", n, len(Triggers))
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestRoutes(t *testing.T) {
	s := newScheduler(t, &fakeIndex{between: []string{"A"}}, &fakeAggregator{}, &fakeSubmitter{}, &fakeArchiver{}, 1)
	r := chi.NewRouter()
	RegisterRoutes(r, s)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/weekly", nil))
	var idle RunResult
	json.NewDecoder(rec.Body).Decode(&idle)
	if idle.State != StateIdle {
		t.Errorf("State before any run = %s", idle.State)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/runs/weekly", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST status = %d: %s", rec.Code, rec.Body.String())
	}
	var run RunResult
	json.NewDecoder(rec.Body).Decode(&run)
	if run.State != StateCompleted || run.Processed != 1 {
		t.Errorf("run = %+v", run)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/runs/hourly", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown trigger status = %d", rec.Code)
	}
}

func TestOnUnitSeesEveryUnit(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	s, err := New(&fakeIndex{between: []string{"A", "B"}}, &fakeAggregator{}, &fakeSubmitter{fail: map[string]bool{"B": true}}, &fakeArchiver{},
		Options{PoolSize: 2, OnUnit: func(trigger Trigger, unit, id string, err error) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, string(trigger)+"/"+unit+"/"+id+"/"+strconv.FormatBool(err == nil))
		}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Stop(context.Background())

	if _, err := s.Run(context.Background(), TriggerWeekly, fireAt); err != nil {
		t.Fatalf("Run: %v", err)
	}
	sort.Strings(seen)
	want := []string{"weekly/report/A/true", "weekly/report/B/false"}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("units mismatch (-want +got):\n%s", diff)
	}
}
