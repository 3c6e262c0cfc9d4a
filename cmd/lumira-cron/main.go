package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/lumira-io/lumira-support/internal/config"
	"github.com/lumira-io/lumira-support/internal/database"
	"github.com/lumira-io/lumira-support/internal/jobs"
	"github.com/lumira-io/lumira-support/internal/logging"
	"github.com/lumira-io/lumira-support/internal/models"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configFlag string

var (
	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumira_job_runs_total",
		Help: "Completed scheduled job runs by job and outcome.",
	}, []string{"job", "status"})

	mailgateMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumira_mailgate_messages_total",
		Help: "Mailbox messages processed, by outcome.",
	}, []string{"outcome"})

	slaTickets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lumira_sla_tickets",
		Help: "Open SLA-bound tickets by status, as of the last monitor run.",
	}, []string{"status"})
)

var rootCmd = &cobra.Command{
	Use:   "lumira-cron",
	Short: "LUMIRA support batch scheduler daemon",
	Long: `lumira-cron runs the mailbox ingestor and the SLA monitor on their
configured schedules in one long-lived process, and optionally serves
Prometheus metrics about the runs.

Schedule changes in the config file take effect after a restart; all other
settings are re-read from the watched file and apply to the next run.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().StringVar(&configFlag, "config", "", "Path to config file (default ./config.yaml)")
}

// daemon shares one connection and the live config across scheduled runs.
type daemon struct {
	mu     sync.RWMutex
	cfg    *config.Config
	conn   *database.Conn
	logger *log.Logger
}

func (d *daemon) config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

func (d *daemon) setConfig(cfg *config.Config) {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
}

// Scheduled runs are bounded so a hung mailbox server cannot wedge the
// daemon past the next tick forever.
const jobTimeout = 10 * time.Minute

func (d *daemon) runIngest() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	stats, err := jobs.Ingest(ctx, d.config(), d.conn, d.logger)
	switch {
	case errors.Is(err, jobs.ErrSkipped):
		jobRuns.WithLabelValues("ingest", "skipped").Inc()
	case err != nil:
		d.logger.Printf("ingest run failed: %v", err)
		jobRuns.WithLabelValues("ingest", "error").Inc()
	default:
		jobRuns.WithLabelValues("ingest", "ok").Inc()
	}
	mailgateMessages.WithLabelValues("new_ticket").Add(float64(stats.NewTickets))
	mailgateMessages.WithLabelValues("reply").Add(float64(stats.Replies))
	mailgateMessages.WithLabelValues("failed").Add(float64(stats.Failures))
}

func (d *daemon) runMonitor() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	report, err := jobs.Monitor(ctx, d.config(), d.conn, d.logger)
	switch {
	case errors.Is(err, jobs.ErrSkipped):
		jobRuns.WithLabelValues("monitor", "skipped").Inc()
		return
	case err != nil:
		d.logger.Printf("monitor run failed: %v", err)
		jobRuns.WithLabelValues("monitor", "error").Inc()
	default:
		jobRuns.WithLabelValues("monitor", "ok").Inc()
	}
	slaTickets.WithLabelValues(models.SLAOnTrack).Set(float64(report.OnTrack))
	slaTickets.WithLabelValues(models.SLAAtRisk).Set(float64(report.AtRisk))
	slaTickets.WithLabelValues(models.SLABreached).Set(float64(report.Breached))
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.NewRunLogger(filepath.Join(cfg.App.LogDir, "cron.log"))
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := database.Open(ctx, database.SettingsFromConfig(cfg.Database))
	if err != nil {
		logger.Printf("fatal: %v", err)
		return err
	}
	defer conn.Close()

	d := &daemon{cfg: cfg, conn: conn, logger: logger}
	// Live reload is best-effort; env-only deployments have no file to watch.
	if _, err := config.LoadAndWatch(configFlag, logger, d.setConfig); err != nil {
		logger.Printf("config watch disabled: %v", err)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Scheduler.IngestSchedule, d.runIngest); err != nil {
		return fmt.Errorf("ingest schedule %q: %w", cfg.Scheduler.IngestSchedule, err)
	}
	if _, err := scheduler.AddFunc(cfg.Scheduler.MonitorSchedule, d.runMonitor); err != nil {
		return fmt.Errorf("monitor schedule %q: %w", cfg.Scheduler.MonitorSchedule, err)
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Printf("serving metrics on %s", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("metrics server: %v", err)
			}
		}()
	}

	logger.Printf("scheduler started: ingest %q, monitor %q",
		cfg.Scheduler.IngestSchedule, cfg.Scheduler.MonitorSchedule)
	scheduler.Start()

	<-ctx.Done()
	logger.Printf("shutting down")

	// Let in-flight jobs finish before closing the connection.
	<-scheduler.Stop().Done()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
