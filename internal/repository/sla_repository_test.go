package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumira-io/lumira-support/internal/models"
)

func TestPolicyForPriorityNone(t *testing.T) {
	conn, mock := newMockConn(t, "postgres")
	mock.ExpectQuery(`SELECT(?s).+FROM sla_policies(?s).+LIMIT 1`).
		WithArgs(int64(4), true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	p, err := NewSLARepository(conn).PolicyForPriority(context.Background(), 4)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPolicyForPriorityScansEscalation(t *testing.T) {
	conn, mock := newMockConn(t, "postgres")
	mock.ExpectQuery(`SELECT(?s).+FROM sla_policies(?s).+LIMIT 1`).
		WithArgs(int64(3), true).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "priority_id", "first_response_hours", "resolution_hours",
			"escalation_user_id", "customer_tier", "is_active",
		}).AddRow(int64(2), "High priority SLA", int64(3), 2.0, 24.0, int64(9), "vip", true))

	p, err := NewSLARepository(conn).PolicyForPriority(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NotNil(t, p.EscalationUserID)
	assert.Equal(t, int64(9), *p.EscalationUserID)
	assert.Equal(t, "vip", p.CustomerTier)
}

func TestMemoryPolicyOrderPrefersVIP(t *testing.T) {
	store := NewMemoryStore()
	store.AddPolicy(models.SLAPolicy{Name: "standard high", PriorityID: 3, CustomerTier: "standard", IsActive: true})
	vip := store.AddPolicy(models.SLAPolicy{Name: "vip high", PriorityID: 3, CustomerTier: "vip", IsActive: true})
	store.AddPolicy(models.SLAPolicy{Name: "inactive vip", PriorityID: 3, CustomerTier: "vip"})

	p, err := store.SLA().PolicyForPriority(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, vip.ID, p.ID)
}

func TestRecordBreach(t *testing.T) {
	conn, mock := newMockConn(t, "postgres")
	target := time.Now().Add(-2 * time.Hour)
	actual := time.Now()
	mock.ExpectQuery(`INSERT INTO sla_breaches(?s).+RETURNING id`).
		WithArgs(int64(5), int64(2), models.BreachFirstResponse, target, actual, 2.0, true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	b := &models.SLABreach{
		TicketID:     5,
		SLAPolicyID:  2,
		BreachType:   models.BreachFirstResponse,
		TargetTime:   target,
		ActualTime:   actual,
		HoursOverdue: 2.0,
		Escalated:    true,
	}
	require.NoError(t, NewSLARepository(conn).RecordBreach(context.Background(), b))
	assert.Equal(t, int64(1), b.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
