package sla

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumira-io/lumira-support/internal/email"
	"github.com/lumira-io/lumira-support/internal/models"
	"github.com/lumira-io/lumira-support/internal/repository"
)

type recordingSender struct {
	sent []*email.Message
}

func (r *recordingSender) Send(msg *email.Message) error {
	r.sent = append(r.sent, msg)
	return nil
}

type monitorFixture struct {
	store      *repository.MemoryStore
	sender     *recordingSender
	monitor    *Monitor
	now        time.Time
	requester  *models.User
	agent      *models.User
	escalation *models.User
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()
	f := &monitorFixture{
		store:  repository.NewMemoryStore().SeedDefaults(),
		sender: &recordingSender{},
		now:    time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
	}
	f.requester = f.store.AddUser("dana@example.com", "Dana Reyes", false)
	f.agent = f.store.AddUser("agent@lumira.example", "Avery Kim", true)
	f.escalation = f.store.AddUser("lead@lumira.example", "Lee Ortega", true)
	notifier := email.NewNotifier(f.sender, "https://support.lumira.example", "", nil)
	f.monitor = NewMonitor(f.store, notifier, nil, WithMonitorClock(func() time.Time { return f.now }))
	return f
}

func (f *monitorFixture) addPolicy(escalateTo *int64) *models.SLAPolicy {
	return f.store.AddPolicy(models.SLAPolicy{
		Name:               "Standard SLA",
		PriorityID:         1,
		FirstResponseHours: 2,
		ResolutionHours:    24,
		EscalationUserID:   escalateTo,
		CustomerTier:       "standard",
		IsActive:           true,
	})
}

func (f *monitorFixture) addTicket(policy *models.SLAPolicy, assignee *int64, firstDue, resolutionDue time.Time) *models.Ticket {
	return f.store.AddTicket(models.Ticket{
		TicketNumber:     fmt.Sprintf("TKT-20260831-%06d", len(f.store.TicketsByID)+1),
		Subject:          "printer on fire",
		RequesterID:      f.requester.ID,
		AssignedToID:     assignee,
		SLAPolicyID:      &policy.ID,
		FirstResponseDue: &firstDue,
		ResolutionDue:    &resolutionDue,
		SLAStatus:        models.SLAOnTrack,
	})
}

func TestBreachEscalatesAndAlerts(t *testing.T) {
	f := newMonitorFixture(t)
	policy := f.addPolicy(&f.escalation.ID)
	ticket := f.addTicket(policy, &f.agent.ID, f.now.Add(-195*time.Minute), f.now.Add(20*time.Hour))

	report, err := f.monitor.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Checked: 1, Breached: 1}, report)

	require.Len(t, f.store.BreachRows, 1)
	breach := f.store.BreachRows[0]
	assert.Equal(t, models.BreachFirstResponse, breach.BreachType)
	assert.True(t, breach.Escalated)
	assert.InDelta(t, 3.25, breach.HoursOverdue, 0.001)

	got := f.store.TicketsByID[ticket.ID]
	assert.Equal(t, models.SLABreached, got.SLAStatus)
	require.NotNil(t, got.AssignedToID)
	assert.Equal(t, f.escalation.ID, *got.AssignedToID)

	comments := f.store.CommentsOn(ticket.ID)
	require.Len(t, comments, 1)
	assert.Equal(t, "Ticket automatically escalated due to SLA breach.", comments[0].Comment)
	assert.True(t, comments[0].IsInternal)
	require.NotNil(t, comments[0].UserID)
	assert.Equal(t, f.escalation.ID, *comments[0].UserID)

	// The alert goes to the post-escalation assignee.
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, []string{"lead@lumira.example"}, f.sender.sent[0].To)
	assert.Contains(t, f.sender.sent[0].Subject, "SLA BREACH")
	assert.Contains(t, f.sender.sent[0].Body, "OVERDUE BY: 3.2 hours")
}

func TestBreachIsRecordedOnce(t *testing.T) {
	f := newMonitorFixture(t)
	policy := f.addPolicy(&f.escalation.ID)
	ticket := f.addTicket(policy, &f.agent.ID, f.now.Add(-time.Hour), f.now.Add(20*time.Hour))

	_, err := f.monitor.Run(context.Background())
	require.NoError(t, err)
	report, err := f.monitor.Run(context.Background())
	require.NoError(t, err)

	// The second run still reports the ticket breached but repeats none of
	// the side effects.
	assert.Equal(t, Report{Checked: 1, Breached: 1}, report)
	assert.Len(t, f.store.BreachRows, 1)
	assert.Len(t, f.store.CommentsOn(ticket.ID), 1)
	assert.Len(t, f.sender.sent, 1)
	assert.Equal(t, models.SLABreached, f.store.TicketsByID[ticket.ID].SLAStatus)
}

func TestBreachStatusSurvivesFirstResponse(t *testing.T) {
	f := newMonitorFixture(t)
	policy := f.addPolicy(&f.escalation.ID)
	ticket := f.addTicket(policy, &f.agent.ID, f.now.Add(-time.Hour), f.now.Add(20*time.Hour))

	_, err := f.monitor.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.SLABreached, f.store.TicketsByID[ticket.ID].SLAStatus)

	// The agent responds after the breach; resolution is still far out, so
	// the next run evaluates nothing and must not clear the cached status.
	responded := f.now
	f.store.TicketsByID[ticket.ID].FirstRespondedAt = &responded

	report, err := f.monitor.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Checked: 1, Breached: 1}, report)
	assert.Equal(t, models.SLABreached, f.store.TicketsByID[ticket.ID].SLAStatus)
	assert.Len(t, f.store.BreachRows, 1)
}

func TestFirstResponseWarningFiresOnce(t *testing.T) {
	f := newMonitorFixture(t)
	policy := f.addPolicy(&f.escalation.ID)
	ticket := f.addTicket(policy, &f.agent.ID, f.now.Add(20*time.Minute), f.now.Add(20*time.Hour))

	report, err := f.monitor.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Checked: 1, AtRisk: 1}, report)

	got := f.store.TicketsByID[ticket.ID]
	assert.Equal(t, models.SLAAtRisk, got.SLAStatus)
	require.NotNil(t, got.FirstResponseWarnedAt)

	comments := f.store.CommentsOn(ticket.ID)
	require.Len(t, comments, 1)
	assert.Equal(t, "SLA WARNING: first_response - 20 minutes remaining", comments[0].Comment)
	assert.True(t, comments[0].IsInternal)
	assert.Nil(t, comments[0].UserID)

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, []string{"agent@lumira.example"}, f.sender.sent[0].To)
	assert.Contains(t, f.sender.sent[0].Subject, "SLA WARNING")
	assert.Contains(t, f.sender.sent[0].Body, "Time Remaining: 20 minutes")

	// A second run stays at risk without a second warning.
	report, err = f.monitor.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Checked: 1, AtRisk: 1}, report)
	assert.Len(t, f.store.CommentsOn(ticket.ID), 1)
	assert.Len(t, f.sender.sent, 1)
}

func TestResolutionWarning(t *testing.T) {
	f := newMonitorFixture(t)
	policy := f.addPolicy(nil)
	responded := f.now.Add(-time.Hour)
	ticket := f.addTicket(policy, &f.agent.ID, f.now.Add(-2*time.Hour), f.now.Add(2*time.Hour))
	f.store.TicketsByID[ticket.ID].FirstRespondedAt = &responded

	report, err := f.monitor.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Checked: 1, AtRisk: 1}, report)

	comments := f.store.CommentsOn(ticket.ID)
	require.Len(t, comments, 1)
	assert.Equal(t, "SLA WARNING: resolution - 120 minutes remaining", comments[0].Comment)
	require.NotNil(t, f.store.TicketsByID[ticket.ID].ResolutionWarnedAt)
}

func TestResolutionWarningSuppressedByBreach(t *testing.T) {
	f := newMonitorFixture(t)
	policy := f.addPolicy(&f.escalation.ID)
	// First response already breached; resolution inside its warning window.
	ticket := f.addTicket(policy, &f.agent.ID, f.now.Add(-time.Hour), f.now.Add(2*time.Hour))

	report, err := f.monitor.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Checked: 1, Breached: 1}, report)

	for _, c := range f.store.CommentsOn(ticket.ID) {
		assert.NotContains(t, c.Comment, "SLA WARNING")
	}
	assert.Nil(t, f.store.TicketsByID[ticket.ID].ResolutionWarnedAt)
}

func TestUnassignedBreachSkipsAlert(t *testing.T) {
	f := newMonitorFixture(t)
	policy := f.addPolicy(nil)
	ticket := f.addTicket(policy, nil, f.now.Add(-time.Hour), f.now.Add(20*time.Hour))

	report, err := f.monitor.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Checked: 1, Breached: 1}, report)

	// The breach is still recorded; only the notification is skipped.
	assert.Len(t, f.store.BreachRows, 1)
	assert.Empty(t, f.sender.sent)
	assert.Empty(t, f.store.CommentsOn(ticket.ID))
	assert.Equal(t, models.SLABreached, f.store.TicketsByID[ticket.ID].SLAStatus)
}

func TestOnTrackTicketIsLeftAlone(t *testing.T) {
	f := newMonitorFixture(t)
	policy := f.addPolicy(nil)
	ticket := f.addTicket(policy, &f.agent.ID, f.now.Add(time.Hour), f.now.Add(23*time.Hour))

	report, err := f.monitor.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Checked: 1, OnTrack: 1}, report)
	assert.Empty(t, f.sender.sent)
	assert.Empty(t, f.store.CommentsOn(ticket.ID))
	assert.Equal(t, models.SLAOnTrack, f.store.TicketsByID[ticket.ID].SLAStatus)
}

func TestRespondedAndResolvedDeadlinesAreSkipped(t *testing.T) {
	f := newMonitorFixture(t)
	policy := f.addPolicy(&f.escalation.ID)
	responded := f.now.Add(-2 * time.Hour)
	resolved := f.now.Add(-time.Hour)
	ticket := f.addTicket(policy, &f.agent.ID, f.now.Add(-3*time.Hour), f.now.Add(-time.Minute))
	f.store.TicketsByID[ticket.ID].FirstRespondedAt = &responded
	f.store.TicketsByID[ticket.ID].ResolvedAt = &resolved

	report, err := f.monitor.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Checked: 1, OnTrack: 1}, report)
	assert.Empty(t, f.store.BreachRows)
}

// flakyStore fails SLA status writes for one ticket so batch isolation can
// be observed.
type flakyStore struct {
	repository.Store
	failID int64
}

func (f flakyStore) Tickets() repository.TicketStore {
	return flakyTickets{f.Store.Tickets(), f.failID}
}

type flakyTickets struct {
	repository.TicketStore
	failID int64
}

func (f flakyTickets) UpdateSLAStatus(ctx context.Context, id int64, status string) error {
	if id == f.failID {
		return errors.New("write conflict")
	}
	return f.TicketStore.UpdateSLAStatus(ctx, id, status)
}

func TestFailureOnOneTicketDoesNotStopTheRun(t *testing.T) {
	f := newMonitorFixture(t)
	policy := f.addPolicy(nil)
	bad := f.addTicket(policy, &f.agent.ID, f.now.Add(time.Hour), f.now.Add(23*time.Hour))
	f.addTicket(policy, &f.agent.ID, f.now.Add(time.Hour), f.now.Add(23*time.Hour))

	var logged strings.Builder
	monitor := NewMonitor(flakyStore{f.store, bad.ID},
		email.NewNotifier(f.sender, "https://support.lumira.example", "", nil),
		log.New(&logged, "", 0),
		WithMonitorClock(func() time.Time { return f.now }))

	report, err := monitor.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.OnTrack)
	assert.Equal(t, 1, report.Failures)
	assert.Contains(t, logged.String(), "write conflict")
}
