package repository

import (
	"context"
	"fmt"

	"github.com/lumira-io/lumira-support/internal/database"
	"github.com/lumira-io/lumira-support/internal/models"
)

// TrackingRepository correlates mailbox messages with tickets.
type TrackingRepository struct {
	conn *database.Conn
}

func NewTrackingRepository(conn *database.Conn) *TrackingRepository {
	return &TrackingRepository{conn: conn}
}

func (r *TrackingRepository) Record(ctx context.Context, rec *models.EmailTrackingRecord) error {
	id, err := r.conn.InsertReturningID(ctx, `
		INSERT INTO ticket_email_tracking (
			ticket_id, message_id, subject, from_address, direction, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		rec.TicketID, rec.MessageID, rec.Subject, rec.FromAddress,
		rec.Direction, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record email tracking for ticket %d: %w", rec.TicketID, err)
	}
	rec.ID = id
	return nil
}
