package postmaster

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/xeonx/timeago"

	"github.com/lumira-io/lumira-support/internal/classify"
	"github.com/lumira-io/lumira-support/internal/config"
	"github.com/lumira-io/lumira-support/internal/database"
	"github.com/lumira-io/lumira-support/internal/email"
	"github.com/lumira-io/lumira-support/internal/email/inbound/connector"
	"github.com/lumira-io/lumira-support/internal/models"
	"github.com/lumira-io/lumira-support/internal/repository"
	"github.com/lumira-io/lumira-support/internal/sla"
	"github.com/lumira-io/lumira-support/internal/storage"
	"github.com/lumira-io/lumira-support/internal/ticketnumber"
)

// FileStore persists attachment payloads.
type FileStore interface {
	Save(ticketID int64, originalName string, data []byte) (storage.StoredFile, error)
}

// Stats counts the outcomes of one ingest run.
type Stats struct {
	Processed  int
	NewTickets int
	Replies    int
	Failures   int
}

// Processor is the connector.Handler that turns parsed messages into
// ticket-store mutations. All writes for one message share a transaction;
// a returned error leaves the message unseen for the next run.
type Processor struct {
	store     repository.Store
	files     FileStore
	notifier  *email.Notifier
	numbers   *ticketnumber.Generator
	parser    *Parser
	deadlines *sla.Calculator
	cfg       config.IngestConfig
	logger    *log.Logger
	now       func() time.Time

	stats Stats
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithProcessorClock overrides the wall clock, primarily for tests.
func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithTicketNumbers overrides the ticket number generator.
func WithTicketNumbers(g *ticketnumber.Generator) ProcessorOption {
	return func(p *Processor) {
		if g != nil {
			p.numbers = g
		}
	}
}

// NewProcessor wires the ingest pipeline.
func NewProcessor(store repository.Store, files FileStore, notifier *email.Notifier, deadlines *sla.Calculator, cfg config.IngestConfig, logger *log.Logger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:     store,
		files:     files,
		notifier:  notifier,
		numbers:   ticketnumber.NewGenerator(),
		parser:    NewParser(cfg.BodyLimit, cfg.AttachmentLimit, logger),
		deadlines: deadlines,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}

// Stats returns a snapshot of the run counters.
func (p *Processor) Stats() Stats { return p.stats }

// Handle processes one fetched message.
func (p *Processor) Handle(ctx context.Context, msg *connector.FetchedMessage) error {
	env, err := p.parser.Parse(msg.Raw)
	if err != nil {
		p.stats.Failures++
		return fmt.Errorf("parse message %s: %w", msg.UID, err)
	}
	if env.FromEmail == "" {
		p.stats.Failures++
		return fmt.Errorf("message %s has no sender address", msg.UID)
	}
	p.logf("processing message %s from %s <%s> (received %s)",
		msg.UID, env.FromName, env.FromEmail, timeago.English.Format(msg.ReceivedAt))

	if number, ok := ticketnumber.FromSubject(env.Subject); ok {
		if err := p.handleReply(ctx, number, env); err != nil {
			p.stats.Failures++
			return err
		}
		p.stats.Processed++
		p.stats.Replies++
		return nil
	}

	if err := p.handleNewTicket(ctx, env); err != nil {
		p.stats.Failures++
		return err
	}
	p.stats.Processed++
	p.stats.NewTickets++
	return nil
}

// handleReply appends an authorized sender's message as a comment.
func (p *Processor) handleReply(ctx context.Context, number string, env *Envelope) error {
	now := p.now()

	ticket, err := p.store.Tickets().GetByNumber(ctx, number)
	if err != nil {
		return err
	}
	if ticket == nil {
		return fmt.Errorf("reply to unknown ticket %s", number)
	}

	userID, isRequester, err := p.authorizeReply(ctx, ticket, env.FromEmail)
	if err != nil {
		return err
	}

	err = p.store.WithinTx(ctx, func(s repository.Store) error {
		comment := &models.Comment{
			TicketID:  ticket.ID,
			UserID:    &userID,
			Comment:   env.Body,
			CreatedAt: now,
		}
		if err := s.Comments().Create(ctx, comment); err != nil {
			return err
		}
		if err := p.saveAttachments(ctx, s, env, ticket.ID, &comment.ID, userID); err != nil {
			return err
		}
		if err := s.Tickets().Touch(ctx, ticket.ID, now); err != nil {
			return err
		}
		return p.trackInbound(ctx, s, ticket.ID, env, now)
	})
	if err != nil {
		return err
	}

	p.logf("added reply to ticket %s from %s", number, env.FromEmail)
	p.notifyReply(ctx, ticket, env.FromEmail, isRequester)
	return nil
}

// authorizeReply resolves the sender to a user allowed to touch the
// ticket: its requester, or any staff account.
func (p *Processor) authorizeReply(ctx context.Context, ticket *models.Ticket, from string) (int64, bool, error) {
	user, err := p.store.Users().FindByEmail(ctx, from)
	if err != nil {
		return 0, false, err
	}
	if user != nil && user.ID == ticket.RequesterID {
		return user.ID, true, nil
	}
	staffID, ok, err := p.store.Users().StaffIDByEmail(ctx, from)
	if err != nil {
		return 0, false, err
	}
	if ok {
		return staffID, false, nil
	}
	return 0, false, fmt.Errorf("unauthorized sender %s for ticket %s", from, ticket.TicketNumber)
}

func (p *Processor) notifyReply(ctx context.Context, ticket *models.Ticket, from string, isRequester bool) {
	if isRequester {
		if ticket.AssignedToID == nil {
			return
		}
		agent, err := p.store.Users().GetByID(ctx, *ticket.AssignedToID)
		if err != nil || agent == nil {
			p.logf("resolve assigned agent for %s failed: %v", ticket.TicketNumber, err)
			return
		}
		p.notifier.ReplyNotice(ticket, agent.Email, from)
		return
	}
	requester, err := p.store.Users().GetByID(ctx, ticket.RequesterID)
	if err != nil || requester == nil {
		p.logf("resolve requester for %s failed: %v", ticket.TicketNumber, err)
		return
	}
	p.notifier.ReplyReceipt(ticket, requester.Email)
}

// handleNewTicket creates a ticket, its user if needed, and its SLA stamps.
func (p *Processor) handleNewTicket(ctx context.Context, env *Envelope) error {
	now := p.now()
	text := env.Subject + " " + env.Body

	var (
		ticket       *models.Ticket
		requester    *models.User
		priorityName string
	)
	err := p.store.WithinTx(ctx, func(s repository.Store) error {
		var err error
		requester, err = s.Users().FindByEmail(ctx, env.FromEmail)
		if err != nil {
			return err
		}
		if requester == nil {
			requester, err = s.Users().CreateCustomer(ctx, env.FromEmail, env.FromName)
			if err != nil {
				return err
			}
			p.logf("created customer account %s (id %d)", env.FromEmail, requester.ID)
		}

		categoryID, err := p.resolveCategory(ctx, s, text)
		if err != nil {
			return err
		}
		priorityID, err := p.resolvePriority(ctx, s, text)
		if err != nil {
			return err
		}
		statusID, ok, err := s.Lookups().StatusIDByName(ctx, "New")
		if err != nil {
			return err
		}
		if !ok {
			statusID = 1
		}
		var departmentID *int64
		if p.cfg.DefaultDepartment != "" {
			id, ok, err := s.Lookups().DepartmentIDByName(ctx, p.cfg.DefaultDepartment)
			if err != nil {
				return err
			}
			if ok {
				departmentID = &id
			}
		}

		ticket = &models.Ticket{
			Subject:      env.Subject,
			Description:  env.Body,
			Source:       models.SourceEmail,
			CategoryID:   categoryID,
			PriorityID:   priorityID,
			StatusID:     statusID,
			DepartmentID: departmentID,
			RequesterID:  requester.ID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if env.MessageID != "" {
			ticket.EmailThreadID = &env.MessageID
		}
		if err := p.createWithFreshNumber(ctx, s, ticket); err != nil {
			return err
		}

		if err := p.applySLA(ctx, s, ticket, priorityID, now); err != nil {
			return err
		}
		if err := p.saveAttachments(ctx, s, env, ticket.ID, nil, requester.ID); err != nil {
			return err
		}
		if err := p.trackInbound(ctx, s, ticket.ID, env, now); err != nil {
			return err
		}

		priorityName, err = s.Lookups().PriorityNameByID(ctx, priorityID)
		if err != nil {
			priorityName = "Unknown"
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.logf("created ticket %s (id %d) for %s", ticket.TicketNumber, ticket.ID, env.FromEmail)
	p.notifier.TicketAcknowledgement(ticket, requester, priorityName)
	p.notifier.NewTicketAlert(ticket, requester, priorityName)
	return nil
}

// createWithFreshNumber retries number generation on the rare same-day
// suffix collision.
func (p *Processor) createWithFreshNumber(ctx context.Context, s repository.Store, ticket *models.Ticket) error {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		number, err := p.numbers.Next()
		if err != nil {
			return err
		}
		ticket.TicketNumber = number
		err = s.Tickets().Create(ctx, ticket)
		if err == nil {
			return nil
		}
		if !database.IsDuplicate(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("ticket number collisions after %d attempts: %w", maxAttempts, lastErr)
}

func (p *Processor) resolveCategory(ctx context.Context, s repository.Store, text string) (int64, error) {
	for _, name := range classify.Categories(text) {
		id, ok, err := s.Lookups().CategoryIDByName(ctx, name)
		if err != nil {
			return 0, err
		}
		if ok {
			p.logf("detected category: %s", name)
			return id, nil
		}
	}
	return s.Lookups().DefaultCategoryID(ctx)
}

func (p *Processor) resolvePriority(ctx context.Context, s repository.Store, text string) (int64, error) {
	name := classify.Priority(text)
	id, ok, err := s.Lookups().PriorityIDByName(ctx, name)
	if err != nil {
		return 0, err
	}
	if ok {
		return id, nil
	}
	if name != classify.PriorityMedium {
		id, ok, err = s.Lookups().PriorityIDByName(ctx, classify.PriorityMedium)
		if err != nil {
			return 0, err
		}
		if ok {
			return id, nil
		}
	}
	// Seed data places Medium at id 3.
	return 3, nil
}

func (p *Processor) applySLA(ctx context.Context, s repository.Store, ticket *models.Ticket, priorityID int64, now time.Time) error {
	policy, err := s.SLA().PolicyForPriority(ctx, priorityID)
	if err != nil {
		return err
	}
	if policy == nil {
		return nil
	}
	due := p.deadlines.Due(policy, now)
	if err := s.Tickets().ApplySLA(ctx, ticket.ID, policy.ID, due.FirstResponseDue, due.ResolutionDue); err != nil {
		return err
	}
	ticket.SLAPolicyID = &policy.ID
	ticket.FirstResponseDue = &due.FirstResponseDue
	ticket.ResolutionDue = &due.ResolutionDue
	ticket.SLAStatus = models.SLAOnTrack
	p.logf("applied SLA policy: %s", policy.Name)
	return nil
}

func (p *Processor) saveAttachments(ctx context.Context, s repository.Store, env *Envelope, ticketID int64, commentID *int64, userID int64) error {
	for _, part := range env.Attachments {
		stored, err := p.files.Save(ticketID, part.Filename, part.Data)
		if err != nil {
			return err
		}
		if err := s.Attachments().Create(ctx, &models.Attachment{
			TicketID:         ticketID,
			CommentID:        commentID,
			Filename:         stored.Filename,
			OriginalFilename: part.Filename,
			FilePath:         stored.Path,
			FileSize:         stored.Size,
			MimeType:         part.ContentType,
			UploadedByID:     userID,
			UploadedByEmail:  env.FromEmail,
		}); err != nil {
			return err
		}
		p.logf("saved attachment: %s", part.Filename)
	}
	return nil
}

func (p *Processor) trackInbound(ctx context.Context, s repository.Store, ticketID int64, env *Envelope, now time.Time) error {
	if env.MessageID == "" {
		return nil
	}
	return s.Tracking().Record(ctx, &models.EmailTrackingRecord{
		TicketID:    ticketID,
		MessageID:   env.MessageID,
		Subject:     env.Subject,
		FromAddress: env.FromEmail,
		Direction:   models.DirectionInbound,
		CreatedAt:   now,
	})
}
