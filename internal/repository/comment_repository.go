package repository

import (
	"context"
	"fmt"

	"github.com/lumira-io/lumira-support/internal/database"
	"github.com/lumira-io/lumira-support/internal/models"
)

// CommentRepository handles ticket comments.
type CommentRepository struct {
	conn *database.Conn
}

func NewCommentRepository(conn *database.Conn) *CommentRepository {
	return &CommentRepository{conn: conn}
}

// Create inserts a comment and fills in its id. A nil UserID stores NULL,
// marking the entry as system-generated.
func (r *CommentRepository) Create(ctx context.Context, c *models.Comment) error {
	id, err := r.conn.InsertReturningID(ctx, `
		INSERT INTO ticket_comments (ticket_id, user_id, comment, is_internal, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		c.TicketID, c.UserID, c.Comment, c.IsInternal, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert comment on ticket %d: %w", c.TicketID, err)
	}
	c.ID = id
	return nil
}
