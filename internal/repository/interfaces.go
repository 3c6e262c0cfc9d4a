// Package repository implements ticket-store access for the support core.
// Queries are written once in PostgreSQL dialect; database.Conn translates
// for MySQL. Lookups that can legitimately miss return (nil, nil) or a
// found flag rather than an error.
package repository

import (
	"context"
	"time"

	"github.com/lumira-io/lumira-support/internal/models"
)

// TicketStore covers every ticket mutation the ingestor and monitor issue.
type TicketStore interface {
	GetByNumber(ctx context.Context, number string) (*models.Ticket, error)
	Create(ctx context.Context, t *models.Ticket) error
	Touch(ctx context.Context, id int64, now time.Time) error
	UpdateSLAStatus(ctx context.Context, id int64, status string) error
	Assign(ctx context.Context, id, userID int64) error
	ApplySLA(ctx context.Context, id, policyID int64, firstResponseDue, resolutionDue time.Time) error
	MarkFirstResponseWarned(ctx context.Context, id int64, now time.Time) error
	MarkResolutionWarned(ctx context.Context, id int64, now time.Time) error
	OpenWithSLA(ctx context.Context) ([]models.MonitoredTicket, error)
}

type CommentStore interface {
	Create(ctx context.Context, c *models.Comment) error
}

type AttachmentStore interface {
	Create(ctx context.Context, a *models.Attachment) error
}

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	CreateCustomer(ctx context.Context, email, fullName string) (*models.User, error)
	// StaffIDByEmail resolves an address to a user holding an Admin or
	// Support Agent role.
	StaffIDByEmail(ctx context.Context, email string) (int64, bool, error)
}

type LookupStore interface {
	CategoryIDByName(ctx context.Context, name string) (int64, bool, error)
	DefaultCategoryID(ctx context.Context) (int64, error)
	PriorityIDByName(ctx context.Context, name string) (int64, bool, error)
	PriorityNameByID(ctx context.Context, id int64) (string, error)
	StatusIDByName(ctx context.Context, name string) (int64, bool, error)
	DepartmentIDByName(ctx context.Context, name string) (int64, bool, error)
}

type SLAStore interface {
	// PolicyForPriority selects the active policy for a priority tier,
	// vip customers ordered first.
	PolicyForPriority(ctx context.Context, priorityID int64) (*models.SLAPolicy, error)
	RecordBreach(ctx context.Context, b *models.SLABreach) error
	// HasBreach reports whether a breach of the given type was already
	// recorded, so repeated monitor runs do not re-breach the same
	// deadline crossing.
	HasBreach(ctx context.Context, ticketID int64, breachType string) (bool, error)
}

type TrackingStore interface {
	Record(ctx context.Context, rec *models.EmailTrackingRecord) error
}

// Store bundles the ticket-store surface. WithinTx yields a Store whose
// mutations share one transaction.
type Store interface {
	Tickets() TicketStore
	Comments() CommentStore
	Attachments() AttachmentStore
	Users() UserStore
	Lookups() LookupStore
	SLA() SLAStore
	Tracking() TrackingStore
	WithinTx(ctx context.Context, fn func(Store) error) error
}
