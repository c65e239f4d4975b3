package reports

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type is the kind of report.
type Type string

const (
	TypeComprehensive Type = "COMPREHENSIVE"
	TypeWeekly        Type = "WEEKLY"
	TypeMonthly       Type = "MONTHLY"
	TypeCustom        Type = "CUSTOM"
)

// Status is the lifecycle state of a report.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusGenerating Status = "GENERATING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusArchived   Status = "ARCHIVED"
)

// SectionType identifies a report section.
type SectionType string

const (
	SectionSummary             SectionType = "SUMMARY"
	SectionMetrics             SectionType = "METRICS"
	SectionInsights            SectionType = "INSIGHTS"
	SectionRecommendations     SectionType = "RECOMMENDATIONS"
	SectionDepartmentBreakdown SectionType = "DEPARTMENT_BREAKDOWN"
)

// Section is one part of a report. Sections are ordered by Order.
type Section struct {
	Order          int             `json:"order"`
	Type           SectionType     `json:"type"`
	Title          string          `json:"title"`
	Content        string          `json:"content"`
	StructuredData json.RawMessage `json:"structured_data,omitempty"`
}

// Report is a multi-section well-being report for a company, or for one of
// its departments, over a range of days.
type Report struct {
	ID                   string     `json:"id"`
	CompanyID            string     `json:"company_id"`
	DepartmentID         string     `json:"department_id,omitempty"`
	Type                 Type       `json:"type"`
	Status               Status     `json:"status"`
	PeriodStart          time.Time  `json:"period_start"`
	PeriodEnd            time.Time  `json:"period_end"`
	Sections             []Section  `json:"sections"`
	GenerationDurationMs int64      `json:"generation_duration_ms"`
	Error                string     `json:"error,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	GeneratedAt          *time.Time `json:"generated_at,omitempty"`
}

// Spec describes a report to generate. PeriodStart and PeriodEnd are
// inclusive calendar days.
type Spec struct {
	CompanyID               string    `json:"company_id"`
	DepartmentID            string    `json:"department_id,omitempty"`
	Type                    Type      `json:"type"`
	PeriodStart             time.Time `json:"period_start"`
	PeriodEnd               time.Time `json:"period_end"`
	GenerateInsights        bool      `json:"generate_insights"`
	GenerateRecommendations bool      `json:"generate_recommendations"`
	IncludeSections         bool      `json:"include_sections"`
}

// Validate reports whether s describes a report that can be generated.
func (s Spec) Validate() error {
	if s.CompanyID == "" {
		return fmt.Errorf("report spec: company_id is required")
	}
	switch s.Type {
	case TypeComprehensive, TypeWeekly, TypeMonthly, TypeCustom:
	default:
		return fmt.Errorf("report spec: unknown type %q", s.Type)
	}
	if s.PeriodStart.IsZero() || s.PeriodEnd.IsZero() {
		return fmt.Errorf("report spec: period is required")
	}
	if s.PeriodEnd.Before(s.PeriodStart) {
		return fmt.Errorf("report spec: period ends before it starts")
	}
	return nil
}

// Completion reports the outcome of a queued report.
type Completion struct {
	ReportID  string
	CompanyID string
	Status    Status
	Err       error
}
