package repository

import (
	"context"
	"fmt"

	"github.com/lumira-io/lumira-support/internal/database"
	"github.com/lumira-io/lumira-support/internal/models"
)

// AttachmentRepository handles attachment metadata rows. The payload itself
// lives on disk via the storage package.
type AttachmentRepository struct {
	conn *database.Conn
}

func NewAttachmentRepository(conn *database.Conn) *AttachmentRepository {
	return &AttachmentRepository{conn: conn}
}

func (r *AttachmentRepository) Create(ctx context.Context, a *models.Attachment) error {
	id, err := r.conn.InsertReturningID(ctx, `
		INSERT INTO ticket_attachments (
			ticket_id, comment_id, filename, original_filename,
			file_path, file_size, mime_type, uploaded_by_id, uploaded_by_email
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		a.TicketID, a.CommentID, a.Filename, a.OriginalFilename,
		a.FilePath, a.FileSize, a.MimeType, a.UploadedByID, a.UploadedByEmail,
	)
	if err != nil {
		return fmt.Errorf("insert attachment %s on ticket %d: %w", a.OriginalFilename, a.TicketID, err)
	}
	a.ID = id
	return nil
}
