package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumira-io/lumira-support/internal/database"
	"github.com/lumira-io/lumira-support/internal/models"
)

func newMockConn(t *testing.T, driver string) (*database.Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return database.NewConn(db, driver), mock
}

func TestGetByNumberMissing(t *testing.T) {
	conn, mock := newMockConn(t, "postgres")
	mock.ExpectQuery(`SELECT(?s).+FROM tickets WHERE ticket_number = \$1`).
		WithArgs("TKT-20260831-ABC123").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewTicketRepository(conn)
	got, err := repo.GetByNumber(context.Background(), "TKT-20260831-ABC123")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTicketPostgres(t *testing.T) {
	conn, mock := newMockConn(t, "postgres")
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO tickets(?s).+RETURNING id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(41))

	repo := NewTicketRepository(conn)
	tk := &models.Ticket{
		TicketNumber: "TKT-20260831-0A1B2C",
		Subject:      "Printer on fire",
		Description:  "It is actually on fire.",
		Source:       models.SourceEmail,
		CategoryID:   1,
		PriorityID:   2,
		StatusID:     1,
		RequesterID:  7,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, repo.Create(context.Background(), tk))
	assert.Equal(t, int64(41), tk.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplySLASetsOnTrack(t *testing.T) {
	conn, mock := newMockConn(t, "postgres")
	due := time.Now().Add(4 * time.Hour)
	resDue := time.Now().Add(24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE tickets SET`)).
		WithArgs(int64(9), due, resDue, models.SLAOnTrack, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewTicketRepository(conn)
	require.NoError(t, repo.ApplySLA(context.Background(), 5, 9, due, resDue))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenWithSLAScansJoinedRow(t *testing.T) {
	conn, mock := newMockConn(t, "postgres")
	frDue := time.Now().Add(-time.Hour)
	cols := []string{
		"id", "ticket_number", "subject", "sla_policy_id", "sla_status",
		"assigned_to_id", "first_response_due", "resolution_due",
		"first_responded_at", "resolved_at",
		"first_response_warned_at", "resolution_warned_at",
		"first_response_hours", "resolution_hours", "escalation_user_id",
		"sla_name", "requester_email", "requester_name",
		"assigned_email", "assigned_name",
	}
	mock.ExpectQuery(`SELECT t\.id,(?s).+FROM tickets t`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			int64(3), "TKT-20260830-FACE01", "Checkout broken", int64(2), "on_track",
			nil, frDue, frDue.Add(20*time.Hour),
			nil, nil, nil, nil,
			2.0, 24.0, nil,
			"High priority SLA", "dana@example.com", "Dana Reyes",
			nil, nil,
		))

	repo := NewTicketRepository(conn)
	rows, err := repo.OpenWithSLA(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "TKT-20260830-FACE01", rows[0].TicketNumber)
	assert.Nil(t, rows[0].AssignedToID)
	assert.Equal(t, 2.0, rows[0].FirstResponseHours)
	assert.Equal(t, "dana@example.com", rows[0].RequesterEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}
