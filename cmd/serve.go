package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ziadkadry99/pulse/internal/reports"
	"github.com/ziadkadry99/pulse/internal/scheduler"
	"github.com/ziadkadry99/pulse/internal/server"
)

var (
	serverPort       int
	redeliverEvery   time.Duration
	shutdownTimeout  = 30 * time.Second
	schedulerEnabled bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler and the operational HTTP server",
	Long: `Starts the calendar triggers (daily rollup, weekly and monthly reports,
archival sweep), the report workers and the HTTP API for ingesting turns and
reading aggregates, reports and alerts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		logger := a.logger

		// Assigned before the scheduler or the server can submit reports.
		var sched *scheduler.Scheduler
		queue := reports.NewQueue(a.generator, reports.QueueOptions{
			Workers: a.cfg.Reports.Workers,
			Size:    a.cfg.Reports.QueueSize,
			Logger:  logger,
			Notify: func(c reports.Completion) {
				if sched != nil {
					sched.ReportCompleted(c)
				}
				if c.Err != nil {
					logger.Warn("report failed", zap.String("report_id", c.ReportID),
						zap.String("company_id", c.CompanyID), zap.Error(c.Err))
					return
				}
				logger.Info("report ready", zap.String("report_id", c.ReportID),
					zap.String("company_id", c.CompanyID), zap.String("status", string(c.Status)))
			},
		})

		sched, err = scheduler.New(a.signals, a.aggregator, queue, a.archiver, scheduler.Options{
			Location:    a.loc,
			PoolSize:    a.cfg.Scheduler.PoolSize,
			DailyCron:   a.cfg.Scheduler.DailyCron,
			WeeklyCron:  a.cfg.Scheduler.WeeklyCron,
			MonthlyCron: a.cfg.Scheduler.MonthlyCron,
			ArchiveCron: a.cfg.Scheduler.ArchiveCron,
			Logger:      logger,
		})
		if err != nil {
			queue.Close()
			return err
		}
		if schedulerEnabled {
			sched.Start()
		}

		port := a.cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = serverPort
		}
		srv := server.New(server.Config{
			Port:     port,
			AllowAll: a.cfg.Server.AllowAllOrigins,
		}, server.Deps{
			DB:         a.db,
			Location:   a.loc,
			Ingestor:   a.ingestor,
			Signals:    a.signals,
			Aggregates: a.aggregates,
			Reports:    a.reports,
			Queue:      queue,
			Alerts:     a.alerts,
			Dispatcher: a.dispatcher,
			Scheduler:  sched,
		}, logger)

		done := make(chan struct{})
		go func() {
			defer close(done)
			redeliverLoop(ctx, a, redeliverEvery)
		}()

		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown", zap.Error(err))
			}
		}()

		fmt.Fprintf(os.Stderr, "pulse %s starting on port %d\n", Version, port)
		fmt.Fprintf(os.Stderr, "  Database: %s\n", a.db.Path())
		fmt.Fprintf(os.Stderr, "  Provider: %s (%s)\n", a.client.ProviderName(), a.cfg.LLM.Model)
		fmt.Fprintf(os.Stderr, "  Timezone: %s\n", a.loc)

		serveErr := srv.Start()
		stop()
		<-done

		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		sched.Stop(stopCtx)
		queue.Close()
		return serveErr
	},
}

// redeliverLoop retries pending risk alerts until ctx is done.
func redeliverLoop(ctx context.Context, a *app, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.dispatcher.Redeliver(ctx)
			if err != nil {
				a.logger.Warn("redelivering alerts", zap.Error(err))
				continue
			}
			if n > 0 {
				a.logger.Info("alerts redelivered", zap.Int("count", n))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&serverPort, "port", 8080, "Port to listen on (overrides server.port)")
	serveCmd.Flags().DurationVar(&redeliverEvery, "redeliver-every", 5*time.Minute, "How often pending risk alerts are retried (0 disables)")
	serveCmd.Flags().BoolVar(&schedulerEnabled, "scheduler", true, "Fire the calendar triggers")
	rootCmd.AddCommand(serveCmd)
}
