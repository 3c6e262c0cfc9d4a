// Package models holds the persistent shapes of the LUMIRA support core.
package models

import "time"

// Ticket SLA status cache values.
const (
	SLAOnTrack  = "on_track"
	SLAAtRisk   = "at_risk"
	SLABreached = "breached"
)

// Breach deadline types.
const (
	BreachFirstResponse = "first_response"
	BreachResolution    = "resolution"
)

// Ticket sources.
const (
	SourceWeb   = "web"
	SourceEmail = "email"
	SourceChat  = "chat"
)

// Email tracking directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Ticket is the central entity. TicketNumber is immutable once assigned and
// is parsed back out of email subjects for reply threading.
type Ticket struct {
	ID                    int64
	TicketNumber          string
	Subject               string
	Description           string
	Source                string
	CategoryID            int64
	PriorityID            int64
	StatusID              int64
	DepartmentID          *int64
	RequesterID           int64
	AssignedToID          *int64
	SLAPolicyID           *int64
	EmailThreadID         *string
	FirstResponseDue      *time.Time
	ResolutionDue         *time.Time
	FirstRespondedAt      *time.Time
	ResolvedAt            *time.Time
	FirstResponseWarnedAt *time.Time
	ResolutionWarnedAt    *time.Time
	SLAStatus             string
	IsArchived            bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Comment is one reply or note on a ticket. Internal comments are never
// shown to the requester and never emailed out. UserID is nil for
// system-generated entries such as SLA warnings.
type Comment struct {
	ID         int64
	TicketID   int64
	UserID     *int64
	Comment    string
	IsInternal bool
	CreatedAt  time.Time
}

// Attachment is a stored file bound to a ticket, and optionally to one
// comment. A nil CommentID means the file hangs off the ticket itself.
type Attachment struct {
	ID               int64
	TicketID         int64
	CommentID        *int64
	Filename         string
	OriginalFilename string
	FilePath         string
	FileSize         int64
	MimeType         string
	UploadedByID     int64
	UploadedByEmail  string
}

// User is the slice of the account table the support core touches.
type User struct {
	ID            int64
	Email         string
	PasswordHash  string
	FullName      string
	RoleID        int64
	EmailVerified bool
	CreatedAt     time.Time
}

// SLAPolicy pairs a priority tier with response/resolution windows.
// CustomerTier orders policy selection (vip before standard before other);
// its provenance is external to this core.
type SLAPolicy struct {
	ID                 int64
	Name               string
	PriorityID         int64
	FirstResponseHours float64
	ResolutionHours    float64
	EscalationUserID   *int64
	CustomerTier       string
	IsActive           bool
}

// SLABreach is an immutable audit record written once per detected breach.
type SLABreach struct {
	ID           int64
	TicketID     int64
	SLAPolicyID  int64
	BreachType   string
	TargetTime   time.Time
	ActualTime   time.Time
	HoursOverdue float64
	Escalated    bool
}

// EmailTrackingRecord correlates a mailbox message with a ticket.
type EmailTrackingRecord struct {
	ID          int64
	TicketID    int64
	MessageID   string
	Subject     string
	FromAddress string
	Direction   string
	CreatedAt   time.Time
}

// MonitoredTicket is the joined row the SLA monitor iterates: ticket fields
// plus policy thresholds and requester/assignee contact info.
type MonitoredTicket struct {
	ID                    int64      `db:"id"`
	TicketNumber          string     `db:"ticket_number"`
	Subject               string     `db:"subject"`
	SLAPolicyID           int64      `db:"sla_policy_id"`
	SLAStatus             string     `db:"sla_status"`
	AssignedToID          *int64     `db:"assigned_to_id"`
	FirstResponseDue      *time.Time `db:"first_response_due"`
	ResolutionDue         *time.Time `db:"resolution_due"`
	FirstRespondedAt      *time.Time `db:"first_responded_at"`
	ResolvedAt            *time.Time `db:"resolved_at"`
	FirstResponseWarnedAt *time.Time `db:"first_response_warned_at"`
	ResolutionWarnedAt    *time.Time `db:"resolution_warned_at"`
	FirstResponseHours    float64    `db:"first_response_hours"`
	ResolutionHours       float64    `db:"resolution_hours"`
	EscalationUserID      *int64     `db:"escalation_user_id"`
	SLAName               string     `db:"sla_name"`
	RequesterEmail        string     `db:"requester_email"`
	RequesterName         string     `db:"requester_name"`
	AssignedEmail         *string    `db:"assigned_email"`
	AssignedName          *string    `db:"assigned_name"`
}
