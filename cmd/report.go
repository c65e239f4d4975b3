package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/pulse/internal/db"
	"github.com/ziadkadry99/pulse/internal/reports"
)

var (
	reportCompany     string
	reportDepartment  string
	reportType        string
	reportFrom        string
	reportTo          string
	reportHTML        string
	reportNoInsights  bool
	reportNoRecommend bool
	reportNoSections  bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate one report synchronously",
	Long: `Generates a well-being report for a company (or one of its departments)
over a range of days from the stored daily aggregates, and prints it as
Markdown or writes it as HTML.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		today := time.Now().In(a.loc)
		end, err := parseDayFlag("--to", reportTo, today.AddDate(0, 0, -1), a.loc)
		if err != nil {
			return err
		}
		start, err := parseDayFlag("--from", reportFrom, end.AddDate(0, 0, -6), a.loc)
		if err != nil {
			return err
		}

		spec := reports.Spec{
			CompanyID:               reportCompany,
			DepartmentID:            reportDepartment,
			Type:                    reports.Type(strings.ToUpper(reportType)),
			PeriodStart:             start,
			PeriodEnd:               end,
			GenerateInsights:        !reportNoInsights,
			GenerateRecommendations: !reportNoRecommend,
			IncludeSections:         !reportNoSections,
		}
		r, err := a.generator.Generate(ctx, spec)
		if err != nil {
			return fmt.Errorf("generating report: %w", err)
		}

		if reportHTML == "" {
			fmt.Print(reports.RenderMarkdown(r))
			return nil
		}
		page, err := reports.RenderHTML(r)
		if err != nil {
			return err
		}
		if err := os.WriteFile(reportHTML, page, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", reportHTML, err)
		}
		fmt.Fprintf(os.Stderr, "Report %s written to %s (%d ms)\n", r.ID, reportHTML, r.GenerationDurationMs)
		return nil
	},
}

func parseDayFlag(name, value string, def time.Time, loc *time.Location) (time.Time, error) {
	if value == "" {
		y, m, d := def.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	t, err := time.ParseInLocation(db.DayLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

func init() {
	reportCmd.Flags().StringVar(&reportCompany, "company", "", "Company id (required)")
	reportCmd.Flags().StringVar(&reportDepartment, "department", "", "Restrict the report to one department")
	reportCmd.Flags().StringVar(&reportType, "type", string(reports.TypeCustom), "Report type: comprehensive, weekly, monthly, custom")
	reportCmd.Flags().StringVar(&reportFrom, "from", "", "First day (YYYY-MM-DD, default: seven days before --to)")
	reportCmd.Flags().StringVar(&reportTo, "to", "", "Last day (YYYY-MM-DD, default: yesterday)")
	reportCmd.Flags().StringVar(&reportHTML, "html", "", "Write the report as HTML to this file instead of printing Markdown")
	reportCmd.Flags().BoolVar(&reportNoInsights, "no-insights", false, "Skip the insights section")
	reportCmd.Flags().BoolVar(&reportNoRecommend, "no-recommendations", false, "Skip the recommendations section")
	reportCmd.Flags().BoolVar(&reportNoSections, "summary-only", false, "Skip metrics and department breakdown")
	_ = reportCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(reportCmd)
}
