// Package jobs wires the two batch components end to end. Each job takes
// its advisory run lock, builds the component over the shared connection,
// and runs one pass; the one-shot binaries and the scheduler daemon call
// the same functions.
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lumira-io/lumira-support/internal/config"
	"github.com/lumira-io/lumira-support/internal/database"
	"github.com/lumira-io/lumira-support/internal/email"
	"github.com/lumira-io/lumira-support/internal/email/inbound/connector"
	"github.com/lumira-io/lumira-support/internal/email/inbound/postmaster"
	"github.com/lumira-io/lumira-support/internal/repository"
	"github.com/lumira-io/lumira-support/internal/sla"
	"github.com/lumira-io/lumira-support/internal/storage"
)

// Lock names for the advisory run locks.
const (
	IngestLock  = "lumira:mailgate"
	MonitorLock = "lumira:slamon"
)

// ErrSkipped reports that another invocation already holds the job's run
// lock. Callers treat it as a clean no-op.
var ErrSkipped = fmt.Errorf("previous run still active")

func notifier(cfg *config.Config, logger *log.Logger) *email.Notifier {
	sender := email.NewSMTPSender(cfg.SMTP)
	return email.NewNotifier(sender, cfg.App.PortalURL, cfg.Ingest.TeamAddress, logger)
}

// Ingest runs one mailbox ingest pass: fetch unseen messages and convert
// them to tickets and replies. Returns ErrSkipped when a previous run still
// holds the lock.
func Ingest(ctx context.Context, cfg *config.Config, conn *database.Conn, logger *log.Logger) (postmaster.Stats, error) {
	ok, release, err := conn.TryRunLock(ctx, IngestLock)
	if err != nil {
		return postmaster.Stats{}, err
	}
	if !ok {
		logger.Printf("ingest: %v, skipping", ErrSkipped)
		return postmaster.Stats{}, ErrSkipped
	}
	defer release()

	calc, err := sla.NewCalculator(cfg.SLA.BusinessHours)
	if err != nil {
		return postmaster.Stats{}, fmt.Errorf("business hours config: %w", err)
	}

	processor := postmaster.NewProcessor(
		repository.NewSQLStore(conn),
		storage.NewDiskStore(cfg.Ingest.UploadDir),
		notifier(cfg, logger),
		calc,
		cfg.Ingest,
		logger,
	)

	account := connector.AccountFromConfig(cfg.Mailbox)
	factory := connector.NewFactory(
		connector.WithFetcher(connector.NewIMAPFetcher(connector.WithIMAPLogger(logger)), "imap", "imaps", "imap_tls"),
		connector.WithFetcher(connector.NewPOP3Fetcher(connector.WithPOP3Logger(logger)), "pop3", "pop3s", "pop3_tls"),
	)
	fetcher, err := factory.FetcherFor(account)
	if err != nil {
		return postmaster.Stats{}, err
	}

	start := time.Now()
	fetchErr := fetcher.Fetch(ctx, account, processor)
	stats := processor.Stats()
	logger.Printf("ingest complete in %s: %d processed (%d new tickets, %d replies), %d failed",
		time.Since(start).Round(time.Millisecond), stats.Processed, stats.NewTickets, stats.Replies, stats.Failures)
	return stats, fetchErr
}

// Monitor runs one SLA compliance pass over all open SLA-bound tickets.
// Returns ErrSkipped when a previous run still holds the lock.
func Monitor(ctx context.Context, cfg *config.Config, conn *database.Conn, logger *log.Logger) (sla.Report, error) {
	ok, release, err := conn.TryRunLock(ctx, MonitorLock)
	if err != nil {
		return sla.Report{}, err
	}
	if !ok {
		logger.Printf("monitor: %v, skipping", ErrSkipped)
		return sla.Report{}, ErrSkipped
	}
	defer release()

	monitor := sla.NewMonitor(repository.NewSQLStore(conn), notifier(cfg, logger), logger)
	return monitor.Run(ctx)
}
