package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/pulse/internal/db"
	"github.com/ziadkadry99/pulse/internal/progress"
	"github.com/ziadkadry99/pulse/internal/reports"
	"github.com/ziadkadry99/pulse/internal/scheduler"
)

var runAt string

var runCmd = &cobra.Command{
	Use:       "run <daily|weekly|monthly|archive>",
	Short:     "Run one scheduled trigger now",
	Long:      `Runs a calendar trigger once, as if it fired now (or on --at), and waits for any reports it requests.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"daily", "weekly", "monthly", "archive"},
	RunE: func(cmd *cobra.Command, args []string) error {
		trigger, err := scheduler.ParseTrigger(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		now := time.Now().In(a.loc)
		if runAt != "" {
			day, err := time.ParseInLocation(db.DayLayout, runAt, a.loc)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			now = day.Add(time.Duration(now.Hour())*time.Hour + time.Duration(now.Minute())*time.Minute)
		}

		reporter := progress.NewReporter()
		reporter.Start(-1, fmt.Sprintf("%s run for %s", trigger, now.Format(db.DayLayout)))

		// Assigned before the run submits anything.
		var sched *scheduler.Scheduler
		queue := reports.NewQueue(a.generator, reports.QueueOptions{
			Workers: a.cfg.Reports.Workers,
			Size:    a.cfg.Reports.QueueSize,
			Logger:  a.logger,
			Notify: func(c reports.Completion) {
				if sched != nil {
					sched.ReportCompleted(c)
				}
				reporter.Update("report "+c.ReportID+" for "+c.CompanyID, c.Err != nil)
			},
		})

		sched, err = scheduler.New(a.signals, a.aggregator, queue, a.archiver, scheduler.Options{
			Location: a.loc,
			PoolSize: a.cfg.Scheduler.PoolSize,
			Logger:   a.logger,
			OnUnit: func(_ scheduler.Trigger, unit, id string, err error) {
				reporter.Update(unit+" "+id, err != nil)
			},
		})
		if err != nil {
			queue.Close()
			return err
		}
		defer sched.Stop(ctx)

		if _, err := sched.Run(ctx, trigger, now); err != nil {
			queue.Close()
			return err
		}
		// Wait for the reports the run requested; their failures land in
		// the run's result.
		queue.Close()
		result, _ := sched.LastRun(trigger)

		summary := fmt.Sprintf("%s: %d processed, %d failed", result.State, result.Processed, result.Failed)
		if result.PeriodStart != "" {
			summary += fmt.Sprintf(" (%s..%s)", result.PeriodStart, result.PeriodEnd)
		}
		reporter.Finish(summary)

		if result.State == scheduler.StateCompletedWithErrors {
			fmt.Fprintln(os.Stderr, "Some units failed; see the log for details.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runAt, "at", "", "Run as if fired on this day (YYYY-MM-DD)")
	rootCmd.AddCommand(runCmd)
}
