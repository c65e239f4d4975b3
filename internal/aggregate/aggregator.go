package aggregate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/pulse/internal/db"
	"github.com/ziadkadry99/pulse/internal/logging"
	"github.com/ziadkadry99/pulse/internal/signals"
)

// TrendDepth is how many terms of each kind keyword analysis keeps.
const TrendDepth = 25

// SignalSource reads the signals of one scope and day in scan order.
type SignalSource interface {
	ListByDepartment(ctx context.Context, departmentID string, day time.Time) ([]signals.EmotionSignal, error)
	ListByCompany(ctx context.Context, companyID string, day time.Time) ([]signals.EmotionSignal, error)
}

// Aggregator computes and stores daily rollups. Every call recomputes from
// the signals and overwrites, so repeating it is safe.
type Aggregator struct {
	source        SignalSource
	store         *Store
	riskThreshold int
	logger        *zap.Logger
}

// New creates an Aggregator. Signals with a risk level at or above
// riskThreshold count as risk alerts.
func New(source SignalSource, store *Store, riskThreshold int, logger *zap.Logger) *Aggregator {
	logger = logging.OrNop(logger)
	return &Aggregator{
		source:        source,
		store:         store,
		riskThreshold: riskThreshold,
		logger:        logger.Named("aggregate"),
	}
}

// AggregateDepartment recomputes one department's aggregate for day.
func (a *Aggregator) AggregateDepartment(ctx context.Context, departmentID string, day time.Time) (*DailyAggregate, error) {
	return a.AggregateDay(ctx, ScopeDepartment, departmentID, day)
}

// AggregateCompany recomputes one company's aggregate for day.
func (a *Aggregator) AggregateCompany(ctx context.Context, companyID string, day time.Time) (*DailyAggregate, error) {
	return a.AggregateDay(ctx, ScopeCompany, companyID, day)
}

// AggregateDay recomputes and stores the aggregate of a scope for day. A
// day without signals stores a zero aggregate.
func (a *Aggregator) AggregateDay(ctx context.Context, scope Scope, scopeID string, day time.Time) (*DailyAggregate, error) {
	if scopeID == "" {
		return nil, fmt.Errorf("aggregate %s: empty scope id", scope)
	}

	var (
		sigs []signals.EmotionSignal
		err  error
	)
	switch scope {
	case ScopeDepartment:
		sigs, err = a.source.ListByDepartment(ctx, scopeID, day)
	case ScopeCompany:
		sigs, err = a.source.ListByCompany(ctx, scopeID, day)
	default:
		return nil, fmt.Errorf("unknown scope %q", scope)
	}
	if err != nil {
		return nil, fmt.Errorf("reading signals for %s %s: %w", scope, scopeID, err)
	}

	agg := Compute(scope, scopeID, db.FormatDay(day), sigs, a.riskThreshold)
	if err := a.store.Upsert(ctx, agg); err != nil {
		return nil, err
	}

	a.logger.Debug("aggregate stored",
		zap.String("scope", string(scope)),
		zap.String("scope_id", scopeID),
		zap.String("day", agg.Day),
		zap.Int("signals", agg.SignalCount),
		zap.Int("active_users", agg.ActiveUserCount),
	)
	return &agg, nil
}

// AnalyzeKeywords ranks a company's keywords and triggers for day and
// replaces the stored trend rows.
func (a *Aggregator) AnalyzeKeywords(ctx context.Context, companyID string, day time.Time) ([]Trend, error) {
	sigs, err := a.source.ListByCompany(ctx, companyID, day)
	if err != nil {
		return nil, fmt.Errorf("reading signals for company %s: %w", companyID, err)
	}

	keywords, triggers := countTerms(sigs)

	dayStr := db.FormatDay(day)
	var trends []Trend
	for i, tc := range keywords.top(TrendDepth) {
		trends = append(trends, Trend{CompanyID: companyID, Day: dayStr, Kind: TrendKeyword, Term: tc.Term, Count: tc.Count, Rank: i + 1})
	}
	for i, tc := range triggers.top(TrendDepth) {
		trends = append(trends, Trend{CompanyID: companyID, Day: dayStr, Kind: TrendTrigger, Term: tc.Term, Count: tc.Count, Rank: i + 1})
	}

	if err := a.store.ReplaceTrends(ctx, companyID, dayStr, trends); err != nil {
		return nil, err
	}
	return trends, nil
}
