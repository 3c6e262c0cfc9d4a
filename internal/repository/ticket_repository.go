package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lumira-io/lumira-support/internal/database"
	"github.com/lumira-io/lumira-support/internal/models"
)

// TicketRepository handles ticket rows.
type TicketRepository struct {
	conn *database.Conn
}

// NewTicketRepository creates a ticket repository on the given connection.
func NewTicketRepository(conn *database.Conn) *TicketRepository {
	return &TicketRepository{conn: conn}
}

const ticketColumns = `
	id, ticket_number, subject, description, source, category_id,
	priority_id, status_id, department_id, requester_id, assigned_to_id,
	sla_policy_id, email_thread_id, first_response_due, resolution_due,
	first_responded_at, resolved_at, first_response_warned_at,
	resolution_warned_at, sla_status, is_archived, created_at, updated_at`

// GetByNumber fetches a ticket by its immutable ticket number. Returns
// (nil, nil) when no such ticket exists.
func (r *TicketRepository) GetByNumber(ctx context.Context, number string) (*models.Ticket, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT`+ticketColumns+` FROM tickets WHERE ticket_number = $1`, number)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", number, err)
	}
	return t, nil
}

func scanTicket(row *sql.Row) (*models.Ticket, error) {
	var t models.Ticket
	var slaStatus sql.NullString
	err := row.Scan(
		&t.ID, &t.TicketNumber, &t.Subject, &t.Description, &t.Source,
		&t.CategoryID, &t.PriorityID, &t.StatusID, &t.DepartmentID,
		&t.RequesterID, &t.AssignedToID, &t.SLAPolicyID, &t.EmailThreadID,
		&t.FirstResponseDue, &t.ResolutionDue, &t.FirstRespondedAt,
		&t.ResolvedAt, &t.FirstResponseWarnedAt, &t.ResolutionWarnedAt,
		&slaStatus, &t.IsArchived, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.SLAStatus = slaStatus.String
	return &t, nil
}

// Create inserts a ticket and fills in its id. Unique-violation errors on
// ticket_number surface as database.IsDuplicate for the caller's retry.
func (r *TicketRepository) Create(ctx context.Context, t *models.Ticket) error {
	id, err := r.conn.InsertReturningID(ctx, `
		INSERT INTO tickets (
			ticket_number, subject, description, source, category_id,
			priority_id, status_id, department_id, requester_id,
			email_thread_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		t.TicketNumber, t.Subject, t.Description, t.Source, t.CategoryID,
		t.PriorityID, t.StatusID, t.DepartmentID, t.RequesterID,
		t.EmailThreadID, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if database.IsDuplicate(err) {
			return fmt.Errorf("ticket number %s taken: %w", t.TicketNumber, err)
		}
		return fmt.Errorf("insert ticket: %w", err)
	}
	t.ID = id
	return nil
}

// Touch bumps updated_at after a reply lands.
func (r *TicketRepository) Touch(ctx context.Context, id int64, now time.Time) error {
	_, err := r.conn.ExecContext(ctx,
		`UPDATE tickets SET updated_at = $1 WHERE id = $2`, now, id)
	if err != nil {
		return fmt.Errorf("touch ticket %d: %w", id, err)
	}
	return nil
}

// UpdateSLAStatus writes the informational sla_status cache.
func (r *TicketRepository) UpdateSLAStatus(ctx context.Context, id int64, status string) error {
	_, err := r.conn.ExecContext(ctx,
		`UPDATE tickets SET sla_status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update sla status for ticket %d: %w", id, err)
	}
	return nil
}

// Assign reassigns the ticket, overwriting any current assignee.
func (r *TicketRepository) Assign(ctx context.Context, id, userID int64) error {
	_, err := r.conn.ExecContext(ctx,
		`UPDATE tickets SET assigned_to_id = $1 WHERE id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("assign ticket %d: %w", id, err)
	}
	return nil
}

// ApplySLA stamps the selected policy and its due times onto the ticket.
func (r *TicketRepository) ApplySLA(ctx context.Context, id, policyID int64, firstResponseDue, resolutionDue time.Time) error {
	_, err := r.conn.ExecContext(ctx, `
		UPDATE tickets SET
			sla_policy_id = $1,
			first_response_due = $2,
			resolution_due = $3,
			sla_status = $4
		WHERE id = $5`,
		policyID, firstResponseDue, resolutionDue, models.SLAOnTrack, id)
	if err != nil {
		return fmt.Errorf("apply sla to ticket %d: %w", id, err)
	}
	return nil
}

// MarkFirstResponseWarned records that the at-risk warning for the
// first-response deadline went out.
func (r *TicketRepository) MarkFirstResponseWarned(ctx context.Context, id int64, now time.Time) error {
	_, err := r.conn.ExecContext(ctx,
		`UPDATE tickets SET first_response_warned_at = $1 WHERE id = $2`, now, id)
	if err != nil {
		return fmt.Errorf("mark first response warned for ticket %d: %w", id, err)
	}
	return nil
}

// MarkResolutionWarned records that the at-risk warning for the resolution
// deadline went out.
func (r *TicketRepository) MarkResolutionWarned(ctx context.Context, id int64, now time.Time) error {
	_, err := r.conn.ExecContext(ctx,
		`UPDATE tickets SET resolution_warned_at = $1 WHERE id = $2`, now, id)
	if err != nil {
		return fmt.Errorf("mark resolution warned for ticket %d: %w", id, err)
	}
	return nil
}

const openWithSLAQuery = `
	SELECT t.id, t.ticket_number, t.subject, t.sla_policy_id, t.sla_status,
	       t.assigned_to_id, t.first_response_due, t.resolution_due,
	       t.first_responded_at, t.resolved_at,
	       t.first_response_warned_at, t.resolution_warned_at,
	       s.first_response_hours, s.resolution_hours, s.escalation_user_id,
	       s.name AS sla_name,
	       u.email AS requester_email, u.full_name AS requester_name,
	       a.email AS assigned_email, a.full_name AS assigned_name
	FROM tickets t
	JOIN sla_policies s ON t.sla_policy_id = s.id
	JOIN users u ON t.requester_id = u.id
	LEFT JOIN users a ON t.assigned_to_id = a.id
	WHERE t.status_id NOT IN (
		SELECT id FROM ticket_statuses WHERE name IN ('Closed', 'Resolved')
	)
	AND t.sla_policy_id IS NOT NULL`

// OpenWithSLA loads the monitor's working set: every non-terminal ticket
// bound to a policy, joined with thresholds and contact info.
func (r *TicketRepository) OpenWithSLA(ctx context.Context) ([]models.MonitoredTicket, error) {
	sx := sqlx.NewDb(r.conn.DB(), r.conn.DriverName())
	var tickets []models.MonitoredTicket
	if err := sx.SelectContext(ctx, &tickets, openWithSLAQuery); err != nil {
		return nil, fmt.Errorf("load open sla tickets: %w", err)
	}
	return tickets, nil
}
