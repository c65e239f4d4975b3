package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/pulse/internal/aggregate"
	"github.com/ziadkadry99/pulse/internal/logging"
)

// AggregateReader reads stored daily aggregates over a day range.
type AggregateReader interface {
	CompanyRange(ctx context.Context, companyID string, first, last time.Time) ([]aggregate.DailyAggregate, error)
	DepartmentRange(ctx context.Context, departmentID string, first, last time.Time) ([]aggregate.DailyAggregate, error)
}

// DepartmentLister finds the departments of a company with data in a period.
type DepartmentLister interface {
	DepartmentsOfCompanyBetween(ctx context.Context, companyID string, first, last time.Time) ([]string, error)
}

// Narrator writes the narrative sections. Its methods never fail; a failed
// model call yields a fallback sentinel.
type Narrator interface {
	GenerateInsights(ctx context.Context, summary string) string
	GenerateRecommendations(ctx context.Context, summary string) string
}

// Generator assembles reports from daily aggregates.
type Generator struct {
	store       *Store
	aggregates  AggregateReader
	departments DepartmentLister
	narrator    Narrator
	logger      *zap.Logger
	now         func() time.Time
}

// NewGenerator creates a Generator.
func NewGenerator(store *Store, aggregates AggregateReader, departments DepartmentLister, narrator Narrator, logger *zap.Logger) *Generator {
	logger = logging.OrNop(logger)
	return &Generator{
		store:       store,
		aggregates:  aggregates,
		departments: departments,
		narrator:    narrator,
		logger:      logger.Named("reports"),
		now:         time.Now,
	}
}

// Create validates spec and stores a new Pending report for it.
func (g *Generator) Create(ctx context.Context, spec Spec) (*Report, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	r := &Report{
		CompanyID:    spec.CompanyID,
		DepartmentID: spec.DepartmentID,
		Type:         spec.Type,
		Status:       StatusPending,
		PeriodStart:  spec.PeriodStart,
		PeriodEnd:    spec.PeriodEnd,
		CreatedAt:    g.now(),
	}
	if err := g.store.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Generate creates a report for spec and builds it synchronously. When
// building fails the returned report is Failed and the error is returned
// alongside it.
func (g *Generator) Generate(ctx context.Context, spec Spec) (*Report, error) {
	r, err := g.Create(ctx, spec)
	if err != nil {
		return nil, err
	}
	return r, g.Run(ctx, r, spec)
}

// Run moves a Pending report through Generating to Completed, or to Failed
// on any error. Failed reports are not retried.
func (g *Generator) Run(ctx context.Context, r *Report, spec Spec) (err error) {
	started := g.now()
	log := g.logger.With(zap.String("report_id", r.ID), zap.String("company_id", r.CompanyID))

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("report generation panicked: %v", p)
		}
		if err == nil {
			return
		}
		elapsed := g.now().Sub(started).Milliseconds()
		r.Status = StatusFailed
		r.Error = err.Error()
		r.GenerationDurationMs = elapsed
		// The caller's context may be the reason for the failure.
		if ferr := g.store.Fail(context.WithoutCancel(ctx), r.ID, r.Error, elapsed); ferr != nil {
			log.Error("recording report failure", zap.Error(ferr))
		}
		log.Warn("report generation failed", zap.Error(err))
	}()

	if err := g.store.SetStatus(ctx, r.ID, StatusPending, StatusGenerating); err != nil {
		return err
	}
	r.Status = StatusGenerating

	sections, err := g.buildSections(ctx, spec)
	if err != nil {
		return err
	}

	finished := g.now()
	r.Sections = sections
	r.GenerationDurationMs = finished.Sub(started).Milliseconds()
	r.GeneratedAt = &finished
	if err := g.store.Complete(ctx, r); err != nil {
		return err
	}
	r.Status = StatusCompleted

	log.Info("report generated",
		zap.Int("sections", len(sections)),
		zap.Int64("duration_ms", r.GenerationDurationMs))
	return nil
}

func (g *Generator) buildSections(ctx context.Context, spec Spec) ([]Section, error) {
	scopeID := spec.CompanyID
	readRange := g.aggregates.CompanyRange
	if spec.DepartmentID != "" {
		scopeID = spec.DepartmentID
		readRange = g.aggregates.DepartmentRange
	}
	aggs, err := readRange(ctx, scopeID, spec.PeriodStart, spec.PeriodEnd)
	if err != nil {
		return nil, fmt.Errorf("reading aggregates: %w", err)
	}
	summary := Summarize(scopeID, spec.PeriodStart, spec.PeriodEnd, aggs)
	brief := summary.Text()

	var sections []Section
	add := func(typ SectionType, title, content string, data any) error {
		raw := json.RawMessage("{}")
		if data != nil {
			b, err := json.Marshal(data)
			if err != nil {
				return fmt.Errorf("encoding %s section: %w", typ, err)
			}
			raw = b
		}
		sections = append(sections, Section{
			Order:          len(sections) + 1,
			Type:           typ,
			Title:          title,
			Content:        content,
			StructuredData: raw,
		})
		return nil
	}

	if err := add(SectionSummary, "Resumo executivo", brief, nil); err != nil {
		return nil, err
	}
	if spec.IncludeSections {
		if err := add(SectionMetrics, "Métricas", metricsContent(summary), summary); err != nil {
			return nil, err
		}
	}
	if spec.GenerateInsights {
		if err := add(SectionInsights, "Insights", g.narrator.GenerateInsights(ctx, brief), nil); err != nil {
			return nil, err
		}
	}
	if spec.GenerateRecommendations {
		if err := add(SectionRecommendations, "Recomendações", g.narrator.GenerateRecommendations(ctx, brief), nil); err != nil {
			return nil, err
		}
	}
	if spec.IncludeSections && spec.DepartmentID == "" {
		breakdown, err := g.departmentBreakdown(ctx, spec)
		if err != nil {
			return nil, err
		}
		if err := add(SectionDepartmentBreakdown, "Detalhamento por departamento", breakdownContent(breakdown), breakdown); err != nil {
			return nil, err
		}
	}
	return sections, nil
}

func (g *Generator) departmentBreakdown(ctx context.Context, spec Spec) ([]PeriodSummary, error) {
	if g.departments == nil {
		return nil, errors.New("no department lister configured")
	}
	ids, err := g.departments.DepartmentsOfCompanyBetween(ctx, spec.CompanyID, spec.PeriodStart, spec.PeriodEnd)
	if err != nil {
		return nil, fmt.Errorf("listing departments: %w", err)
	}
	out := make([]PeriodSummary, 0, len(ids))
	for _, id := range ids {
		aggs, err := g.aggregates.DepartmentRange(ctx, id, spec.PeriodStart, spec.PeriodEnd)
		if err != nil {
			return nil, fmt.Errorf("reading aggregates of department %s: %w", id, err)
		}
		out = append(out, Summarize(id, spec.PeriodStart, spec.PeriodEnd, aggs))
	}
	return out, nil
}

func metricsContent(s PeriodSummary) string {
	var b strings.Builder
	b.WriteString("| Métrica | Valor |\n|---|---|\n")
	fmt.Fprintf(&b, "| Mensagens analisadas | %d |\n", s.SignalCount)
	fmt.Fprintf(&b, "| Estresse médio | %.2f |\n", s.AverageStress)
	fmt.Fprintf(&b, "| Intensidade média | %.2f |\n", s.AverageIntensity)
	fmt.Fprintf(&b, "| Pico de usuários ativos | %d |\n", s.PeakActiveUsers)
	fmt.Fprintf(&b, "| Conversas | %d |\n", s.ConversationCount)
	fmt.Fprintf(&b, "| Alertas de risco | %d |\n", s.RiskAlertCount)
	return b.String()
}

func breakdownContent(depts []PeriodSummary) string {
	if len(depts) == 0 {
		return "Nenhum departamento com dados no período.\n"
	}
	var b strings.Builder
	b.WriteString("| Departamento | Mensagens | Estresse médio | Alertas de risco |\n|---|---|---|---|\n")
	for _, d := range depts {
		fmt.Fprintf(&b, "| %s | %d | %.2f | %d |\n", d.ScopeID, d.SignalCount, d.AverageStress, d.RiskAlertCount)
	}
	return b.String()
}
