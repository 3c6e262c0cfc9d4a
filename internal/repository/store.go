package repository

import (
	"context"

	"github.com/lumira-io/lumira-support/internal/database"
)

// SQLStore is the production Store over a database.Conn.
type SQLStore struct {
	conn *database.Conn
}

// NewSQLStore wires the repository bundle onto a connection.
func NewSQLStore(conn *database.Conn) *SQLStore {
	return &SQLStore{conn: conn}
}

func (s *SQLStore) Tickets() TicketStore         { return NewTicketRepository(s.conn) }
func (s *SQLStore) Comments() CommentStore       { return NewCommentRepository(s.conn) }
func (s *SQLStore) Attachments() AttachmentStore { return NewAttachmentRepository(s.conn) }
func (s *SQLStore) Users() UserStore             { return NewUserRepository(s.conn) }
func (s *SQLStore) Lookups() LookupStore         { return NewLookupRepository(s.conn) }
func (s *SQLStore) SLA() SLAStore                { return NewSLARepository(s.conn) }
func (s *SQLStore) Tracking() TrackingStore      { return NewTrackingRepository(s.conn) }

// WithinTx derives a Store bound to one transaction for the duration of fn.
func (s *SQLStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	return s.conn.WithinTx(ctx, func(tx *database.Conn) error {
		return fn(NewSQLStore(tx))
	})
}
