package sla

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/lumira-io/lumira-support/internal/email"
	"github.com/lumira-io/lumira-support/internal/models"
	"github.com/lumira-io/lumira-support/internal/repository"
)

// Report tallies one monitor run. Every evaluated ticket is counted once,
// under the worst status either of its deadlines reached.
type Report struct {
	Checked  int
	OnTrack  int
	AtRisk   int
	Breached int
	Failures int
}

// Monitor walks all open tickets bound to an SLA policy and drives the
// breach, escalation, and warning side effects.
type Monitor struct {
	store    repository.Store
	notifier *email.Notifier
	logger   *log.Logger
	now      func() time.Time
}

// MonitorOption customizes a Monitor.
type MonitorOption func(*Monitor)

// WithMonitorClock overrides the wall clock, primarily for tests.
func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMonitor wires a monitor onto a store and a notifier.
func NewMonitor(store repository.Store, notifier *email.Notifier, logger *log.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}

// Run evaluates every open SLA-bound ticket. A failure on one ticket is
// logged and does not stop the rest of the batch.
func (m *Monitor) Run(ctx context.Context) (Report, error) {
	var report Report

	tickets, err := m.store.Tickets().OpenWithSLA(ctx)
	if err != nil {
		return report, fmt.Errorf("load tickets: %w", err)
	}
	m.logf("checking %d tickets with SLA policies", len(tickets))

	for i := range tickets {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		t := tickets[i]
		report.Checked++
		status, err := m.evaluate(ctx, &t)
		if err != nil {
			m.logf("ticket %s: %v", t.TicketNumber, err)
			report.Failures++
			continue
		}
		switch status {
		case models.SLABreached:
			report.Breached++
		case models.SLAAtRisk:
			report.AtRisk++
		default:
			report.OnTrack++
		}
	}

	m.logf("summary: %d on track, %d at risk, %d breached, %d failed",
		report.OnTrack, report.AtRisk, report.Breached, report.Failures)
	return report, nil
}

func (m *Monitor) evaluate(ctx context.Context, t *models.MonitoredTicket) (string, error) {
	now := m.now()
	// A ticket whose deadlines are all satisfied or absent keeps whatever
	// status it already carries. on_track is only ever written from the
	// evaluated-and-clear first-response path below, so a breach recorded
	// in an earlier run survives the first response arriving.
	status := t.SLAStatus
	breachedNow := false

	if t.FirstRespondedAt == nil && t.FirstResponseDue != nil {
		hoursUntil := t.FirstResponseDue.Sub(now).Hours()
		switch {
		case hoursUntil <= 0:
			if err := m.breach(ctx, t, models.BreachFirstResponse, *t.FirstResponseDue, -hoursUntil, now); err != nil {
				return "", err
			}
			status = models.SLABreached
			breachedNow = true
		case hoursUntil <= 0.5:
			if err := m.warn(ctx, t, models.BreachFirstResponse, t.FirstResponseDue.Sub(now), now); err != nil {
				return "", err
			}
			if err := m.store.Tickets().UpdateSLAStatus(ctx, t.ID, models.SLAAtRisk); err != nil {
				return "", err
			}
			status = models.SLAAtRisk
		default:
			if err := m.store.Tickets().UpdateSLAStatus(ctx, t.ID, models.SLAOnTrack); err != nil {
				return "", err
			}
			status = models.SLAOnTrack
		}
	}

	if t.ResolvedAt == nil && t.ResolutionDue != nil {
		hoursUntil := t.ResolutionDue.Sub(now).Hours()
		switch {
		case hoursUntil <= 0:
			if err := m.breach(ctx, t, models.BreachResolution, *t.ResolutionDue, -hoursUntil, now); err != nil {
				return "", err
			}
			status = models.SLABreached
		case hoursUntil <= t.ResolutionHours*0.2:
			// Suppressed once the ticket is already breached, either from
			// a prior run or from the first-response check above.
			if t.SLAStatus != models.SLABreached && !breachedNow {
				if err := m.warn(ctx, t, models.BreachResolution, t.ResolutionDue.Sub(now), now); err != nil {
					return "", err
				}
				if err := m.store.Tickets().UpdateSLAStatus(ctx, t.ID, models.SLAAtRisk); err != nil {
					return "", err
				}
				status = models.SLAAtRisk
			}
		}
	}

	return status, nil
}

// breach records the crossing once, escalates, and alerts. A deadline that
// already has a breach row only refreshes the cached status.
func (m *Monitor) breach(ctx context.Context, t *models.MonitoredTicket, breachType string, due time.Time, hoursOverdue float64, now time.Time) error {
	already, err := m.store.SLA().HasBreach(ctx, t.ID, breachType)
	if err != nil {
		return err
	}
	if already {
		return m.store.Tickets().UpdateSLAStatus(ctx, t.ID, models.SLABreached)
	}

	m.logf("BREACH: %s %s overdue by %.1f hours", t.TicketNumber, breachType, hoursOverdue)

	err = m.store.WithinTx(ctx, func(s repository.Store) error {
		if err := s.SLA().RecordBreach(ctx, &models.SLABreach{
			TicketID:     t.ID,
			SLAPolicyID:  t.SLAPolicyID,
			BreachType:   breachType,
			TargetTime:   due,
			ActualTime:   now,
			HoursOverdue: hoursOverdue,
			Escalated:    true,
		}); err != nil {
			return err
		}
		if t.EscalationUserID != nil {
			escID := *t.EscalationUserID
			if err := s.Tickets().Assign(ctx, t.ID, escID); err != nil {
				return err
			}
			if err := s.Comments().Create(ctx, &models.Comment{
				TicketID:   t.ID,
				UserID:     &escID,
				Comment:    "Ticket automatically escalated due to SLA breach.",
				IsInternal: true,
				CreatedAt:  now,
			}); err != nil {
				return err
			}
		}
		return s.Tickets().UpdateSLAStatus(ctx, t.ID, models.SLABreached)
	})
	if err != nil {
		return err
	}

	// The alert goes to whoever holds the ticket after escalation.
	if t.EscalationUserID != nil {
		esc, err := m.store.Users().GetByID(ctx, *t.EscalationUserID)
		if err != nil {
			return err
		}
		if esc != nil {
			t.AssignedToID = &esc.ID
			t.AssignedEmail = &esc.Email
			t.AssignedName = &esc.FullName
		}
	}
	m.notifier.BreachAlert(t, breachType, hoursOverdue)
	return nil
}

// warn emits the at-most-once risk warning for a deadline: one internal
// marker comment plus one email to the assigned agent.
func (m *Monitor) warn(ctx context.Context, t *models.MonitoredTicket, breachType string, remaining time.Duration, now time.Time) error {
	warned := t.FirstResponseWarnedAt != nil
	if breachType == models.BreachResolution {
		warned = t.ResolutionWarnedAt != nil
	}
	if warned {
		return nil
	}

	minutes := int(math.Round(remaining.Minutes()))
	m.logf("AT RISK: %s %s due in %d minutes", t.TicketNumber, breachType, minutes)

	err := m.store.WithinTx(ctx, func(s repository.Store) error {
		if err := s.Comments().Create(ctx, &models.Comment{
			TicketID:   t.ID,
			Comment:    fmt.Sprintf("SLA WARNING: %s - %d minutes remaining", breachType, minutes),
			IsInternal: true,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		if breachType == models.BreachResolution {
			return s.Tickets().MarkResolutionWarned(ctx, t.ID, now)
		}
		return s.Tickets().MarkFirstResponseWarned(ctx, t.ID, now)
	})
	if err != nil {
		return err
	}

	m.notifier.RiskWarning(t, breachType, remaining)
	return nil
}
