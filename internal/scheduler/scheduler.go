package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ziadkadry99/pulse/internal/aggregate"
	"github.com/ziadkadry99/pulse/internal/db"
	"github.com/ziadkadry99/pulse/internal/logging"
	"github.com/ziadkadry99/pulse/internal/reports"
)

// ErrAlreadyRunning is returned when a trigger fires while its previous run
// is still in progress.
var ErrAlreadyRunning = errors.New("trigger is already running")

// SignalIndex lists the tenants that have signals in a period.
type SignalIndex interface {
	DepartmentsWithSignals(ctx context.Context, day time.Time) ([]string, error)
	CompaniesWithSignals(ctx context.Context, day time.Time) ([]string, error)
	CompaniesWithSignalsBetween(ctx context.Context, first, last time.Time) ([]string, error)
}

// Aggregator computes daily rollups.
type Aggregator interface {
	AggregateDepartment(ctx context.Context, departmentID string, day time.Time) (*aggregate.DailyAggregate, error)
	AggregateCompany(ctx context.Context, companyID string, day time.Time) (*aggregate.DailyAggregate, error)
	AnalyzeKeywords(ctx context.Context, companyID string, day time.Time) ([]aggregate.Trend, error)
}

// ReportSubmitter enqueues report generation without waiting for it.
type ReportSubmitter interface {
	Submit(ctx context.Context, spec reports.Spec) (string, error)
}

// Archiver archives old reports.
type Archiver interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Options configures a Scheduler. Empty cron expressions use the defaults.
type Options struct {
	Location    *time.Location
	PoolSize    int
	DailyCron   string
	WeeklyCron  string
	MonthlyCron string
	ArchiveCron string
	Logger      *zap.Logger
	// OnUnit, if set, is called after every unit of every run. Calls may
	// be concurrent.
	OnUnit func(trigger Trigger, unit, id string, err error)
}

// Default cron expressions.
const (
	DefaultDailyCron   = "0 1 * * *"
	DefaultWeeklyCron  = "0 6 * * 1"
	DefaultMonthlyCron = "0 7 1 * *"
	DefaultArchiveCron = "0 3 * * 0"
)

// Scheduler fires the calendar triggers and fans each run out across
// tenants.
type Scheduler struct {
	index    SignalIndex
	agg      Aggregator
	reports  ReportSubmitter
	archiver Archiver

	loc    *time.Location
	pool   int
	specs  map[Trigger]string
	logger *zap.Logger
	onUnit func(trigger Trigger, unit, id string, err error)
	now    func() time.Time

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running map[Trigger]bool
	last    map[Trigger]RunResult
	runs    map[Trigger]*counters

	// submitMu orders Submit before registration in pending, so a
	// completion never arrives for an unknown report.
	submitMu sync.Mutex
	pending  map[string]pendingReport
}

// pendingReport ties a submitted report to the run that submitted it.
type pendingReport struct {
	trigger Trigger
	run     *counters
}

// New creates a Scheduler. Call Start to begin firing triggers.
func New(index SignalIndex, agg Aggregator, submitter ReportSubmitter, archiver Archiver, opts Options) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	opts.Logger = logging.OrNop(opts.Logger)
	specs := map[Trigger]string{
		TriggerDaily:   orDefault(opts.DailyCron, DefaultDailyCron),
		TriggerWeekly:  orDefault(opts.WeeklyCron, DefaultWeeklyCron),
		TriggerMonthly: orDefault(opts.MonthlyCron, DefaultMonthlyCron),
		TriggerArchive: orDefault(opts.ArchiveCron, DefaultArchiveCron),
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		index:    index,
		agg:      agg,
		reports:  submitter,
		archiver: archiver,
		loc:      opts.Location,
		pool:     max(opts.PoolSize, 1),
		specs:    specs,
		logger:   opts.Logger.Named("scheduler"),
		onUnit:   opts.OnUnit,
		now:      time.Now,
		cron:     cron.New(cron.WithLocation(opts.Location)),
		ctx:      ctx,
		cancel:   cancel,
		running:  make(map[Trigger]bool),
		last:     make(map[Trigger]RunResult),
		runs:     make(map[Trigger]*counters),
		pending:  make(map[string]pendingReport),
	}

	for _, trigger := range Triggers {
		if _, err := s.cron.AddFunc(specs[trigger], func() { s.fire(trigger) }); err != nil {
			cancel()
			return nil, fmt.Errorf("scheduling %s trigger %q: %w", trigger, specs[trigger], err)
		}
	}
	return s, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Start begins firing triggers in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Debug("trigger scheduled", zap.Time("next", e.Next))
	}
	s.logger.Info("scheduler started", zap.String("timezone", s.loc.String()), zap.Int("pool_size", s.pool))
}

// Stop stops firing triggers and waits for running ones until ctx is done,
// after which they are cancelled.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.cancel()
		<-done.Done()
	}
	s.cancel()
	s.logger.Info("scheduler stopped")
}

// LastRun returns the most recent run of trigger, including one in progress.
func (s *Scheduler) LastRun(trigger Trigger) (RunResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.last[trigger]
	return r, ok
}

func (s *Scheduler) fire(trigger Trigger) {
	if _, err := s.Run(s.ctx, trigger, s.now()); err != nil {
		s.logger.Warn("trigger skipped", zap.String("trigger", string(trigger)), zap.Error(err))
	}
}

// Run executes trigger as if fired at now. Overlapping runs of the same
// trigger are refused with ErrAlreadyRunning.
func (s *Scheduler) Run(ctx context.Context, trigger Trigger, now time.Time) (RunResult, error) {
	var run func(context.Context, time.Time, *counters, *RunResult)
	switch trigger {
	case TriggerDaily:
		run = s.runDaily
	case TriggerWeekly:
		run = s.runWeekly
	case TriggerMonthly:
		run = s.runMonthly
	case TriggerArchive:
		run = s.runArchive
	default:
		return RunResult{}, fmt.Errorf("unknown trigger %q", trigger)
	}

	result := RunResult{Trigger: trigger, State: StateRunning, StartedAt: now}
	c := &counters{}
	if s.onUnit != nil {
		c.onUnit = func(unit, id string, err error) { s.onUnit(trigger, unit, id, err) }
	}

	s.mu.Lock()
	if s.running[trigger] {
		s.mu.Unlock()
		return RunResult{}, fmt.Errorf("%s: %w", trigger, ErrAlreadyRunning)
	}
	s.running[trigger] = true
	s.last[trigger] = result
	s.runs[trigger] = c
	s.mu.Unlock()

	log := s.logger.With(zap.String("trigger", string(trigger)))
	log.Info("run started")

	run(ctx, now.In(s.loc), c, &result)

	s.mu.Lock()
	result.FinishedAt = s.now()
	c.fill(&result)
	s.running[trigger] = false
	s.last[trigger] = result
	s.mu.Unlock()

	log.Info("run finished",
		zap.String("state", string(result.State)),
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed))
	return result, nil
}

// list fetches unit ids; a listing error counts as one failed unit.
func (s *Scheduler) list(ctx context.Context, unit string, c *counters, fn func(context.Context) ([]string, error)) []string {
	ids, err := fn(ctx)
	if err != nil {
		s.logger.Error("listing units failed", zap.String("unit", unit), zap.Error(err))
		c.done("list-"+unit, "", err)
		return nil
	}
	return ids
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// runDaily rolls up yesterday: departments, then companies, then keyword
// analysis per company.
func (s *Scheduler) runDaily(ctx context.Context, now time.Time, c *counters, result *RunResult) {
	day := midnight(now).AddDate(0, 0, -1)
	result.PeriodStart = db.FormatDay(day)
	result.PeriodEnd = result.PeriodStart

	depts := s.list(ctx, "department", c, func(ctx context.Context) ([]string, error) {
		return s.index.DepartmentsWithSignals(ctx, day)
	})
	fanOut(ctx, s.logger, s.pool, "department", depts, c, func(ctx context.Context, id string) error {
		_, err := s.agg.AggregateDepartment(ctx, id, day)
		return err
	})

	companies := s.list(ctx, "company", c, func(ctx context.Context) ([]string, error) {
		return s.index.CompaniesWithSignals(ctx, day)
	})
	fanOut(ctx, s.logger, s.pool, "company", companies, c, func(ctx context.Context, id string) error {
		_, err := s.agg.AggregateCompany(ctx, id, day)
		return err
	})

	fanOut(ctx, s.logger, s.pool, "keywords", companies, c, func(ctx context.Context, id string) error {
		_, err := s.agg.AnalyzeKeywords(ctx, id, day)
		return err
	})
}

// runWeekly requests a report over the trailing seven days.
func (s *Scheduler) runWeekly(ctx context.Context, now time.Time, c *counters, result *RunResult) {
	today := midnight(now)
	s.submitReports(ctx, today.AddDate(0, 0, -7), today.AddDate(0, 0, -1), c, result)
}

// runMonthly requests a report from the first day of the previous month to
// the day before now.
func (s *Scheduler) runMonthly(ctx context.Context, now time.Time, c *counters, result *RunResult) {
	today := midnight(now)
	first := time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, today.Location())
	s.submitReports(ctx, first, today.AddDate(0, 0, -1), c, result)
}

func (s *Scheduler) submitReports(ctx context.Context, first, last time.Time, c *counters, result *RunResult) {
	result.PeriodStart = db.FormatDay(first)
	result.PeriodEnd = db.FormatDay(last)

	companies := s.list(ctx, "company", c, func(ctx context.Context) ([]string, error) {
		return s.index.CompaniesWithSignalsBetween(ctx, first, last)
	})
	fanOut(ctx, s.logger, s.pool, "report", companies, c, func(ctx context.Context, id string) error {
		s.submitMu.Lock()
		defer s.submitMu.Unlock()
		reportID, err := s.reports.Submit(ctx, reports.Spec{
			CompanyID:               id,
			Type:                    reports.TypeComprehensive,
			PeriodStart:             first,
			PeriodEnd:               last,
			GenerateInsights:        true,
			GenerateRecommendations: true,
			IncludeSections:         true,
		})
		if err != nil {
			return err
		}
		s.pending[reportID] = pendingReport{trigger: result.Trigger, run: c}
		s.logger.Debug("report submitted", zap.String("company_id", id), zap.String("report_id", reportID))
		return nil
	})
}

// ReportCompleted records the outcome of a report submitted by a run. A
// failed report moves its unit from processed to failed in that run's
// result, even after the run has finished. Reports the scheduler did not
// submit are ignored.
func (s *Scheduler) ReportCompleted(done reports.Completion) {
	s.submitMu.Lock()
	p, ok := s.pending[done.ReportID]
	delete(s.pending, done.ReportID)
	s.submitMu.Unlock()
	if !ok || done.Err == nil {
		return
	}

	s.logger.Error("submitted report failed",
		zap.String("trigger", string(p.trigger)),
		zap.String("report_id", done.ReportID),
		zap.String("company_id", done.CompanyID),
		zap.Error(done.Err))
	p.run.processed.Add(-1)
	p.run.failed.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	// A run still in progress picks the change up when it finishes.
	if s.running[p.trigger] || s.runs[p.trigger] != p.run {
		return
	}
	r := s.last[p.trigger]
	p.run.fill(&r)
	s.last[p.trigger] = r
}

func (s *Scheduler) runArchive(ctx context.Context, now time.Time, c *counters, result *RunResult) {
	fanOut(ctx, s.logger, 1, "archive", []string{"reports"}, c, func(ctx context.Context, _ string) error {
		_, err := s.archiver.Sweep(ctx, now)
		return err
	})
}
