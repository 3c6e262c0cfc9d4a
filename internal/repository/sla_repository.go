package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lumira-io/lumira-support/internal/database"
	"github.com/lumira-io/lumira-support/internal/models"
)

// SLARepository handles policy selection and the breach audit log.
type SLARepository struct {
	conn *database.Conn
}

func NewSLARepository(conn *database.Conn) *SLARepository {
	return &SLARepository{conn: conn}
}

// PolicyForPriority picks the active policy for a priority tier, preferring
// vip over standard over everything else. Returns (nil, nil) when no active
// policy covers the priority.
func (r *SLARepository) PolicyForPriority(ctx context.Context, priorityID int64) (*models.SLAPolicy, error) {
	var p models.SLAPolicy
	var escalation sql.NullInt64
	err := r.conn.QueryRowContext(ctx, `
		SELECT id, name, priority_id, first_response_hours, resolution_hours,
		       escalation_user_id, customer_tier, is_active
		FROM sla_policies
		WHERE priority_id = $1 AND is_active = $2
		ORDER BY CASE customer_tier
			WHEN 'vip' THEN 1
			WHEN 'standard' THEN 2
			ELSE 3
		END
		LIMIT 1`, priorityID, true).
		Scan(&p.ID, &p.Name, &p.PriorityID, &p.FirstResponseHours,
			&p.ResolutionHours, &escalation, &p.CustomerTier, &p.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select sla policy for priority %d: %w", priorityID, err)
	}
	if escalation.Valid {
		p.EscalationUserID = &escalation.Int64
	}
	return &p, nil
}

// HasBreach reports whether the ticket already has a recorded breach of
// the given type.
func (r *SLARepository) HasBreach(ctx context.Context, ticketID int64, breachType string) (bool, error) {
	var n int
	err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sla_breaches WHERE ticket_id = $1 AND breach_type = $2`,
		ticketID, breachType).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check breach for ticket %d: %w", ticketID, err)
	}
	return n > 0, nil
}

// RecordBreach appends one immutable breach audit row.
func (r *SLARepository) RecordBreach(ctx context.Context, b *models.SLABreach) error {
	id, err := r.conn.InsertReturningID(ctx, `
		INSERT INTO sla_breaches (
			ticket_id, sla_policy_id, breach_type, target_time,
			actual_time, hours_overdue, escalated
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		b.TicketID, b.SLAPolicyID, b.BreachType, b.TargetTime,
		b.ActualTime, b.HoursOverdue, b.Escalated,
	)
	if err != nil {
		return fmt.Errorf("record %s breach for ticket %d: %w", b.BreachType, b.TicketID, err)
	}
	b.ID = id
	return nil
}
