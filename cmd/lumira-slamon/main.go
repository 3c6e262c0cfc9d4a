package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lumira-io/lumira-support/internal/config"
	"github.com/lumira-io/lumira-support/internal/database"
	"github.com/lumira-io/lumira-support/internal/jobs"
	"github.com/lumira-io/lumira-support/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "lumira-slamon",
	Short: "LUMIRA support SLA compliance monitor",
	Long: `lumira-slamon runs one compliance pass over all open tickets bound
to an SLA policy: overdue deadlines are recorded as breaches and escalated,
tickets close to a deadline get a one-time warning, and the cached SLA
status on every checked ticket is refreshed.

Intended to be invoked on a schedule (cron, or the lumira-cron daemon).`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().StringVar(&configFlag, "config", "", "Path to config file (default ./config.yaml)")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.NewRunLogger(filepath.Join(cfg.App.LogDir, "slamon.log"))
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

	_, err = jobs.Monitor(ctx, cfg, conn, logger)
	if errors.Is(err, jobs.ErrSkipped) {
		return nil
	}
	if err != nil {
		logger.Printf("fatal: %v", err)
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
