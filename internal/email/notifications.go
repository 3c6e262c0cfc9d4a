package email

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/lumira-io/lumira-support/internal/models"
)

// Notifier composes and sends the support core's outbound notifications.
// Send failures are logged and swallowed; a lost email never fails the
// ticket operation that triggered it.
type Notifier struct {
	sender      Sender
	portalURL   string
	teamAddress string
	logger      *log.Logger
}

func NewNotifier(sender Sender, portalURL, teamAddress string, logger *log.Logger) *Notifier {
	return &Notifier{
		sender:      sender,
		portalURL:   portalURL,
		teamAddress: teamAddress,
		logger:      logger,
	}
}

func (n *Notifier) logf(format string, args ...any) {
	if n.logger != nil {
		n.logger.Printf(format, args...)
	}
}

func (n *Notifier) send(kind string, msg *Message) {
	if err := n.sender.Send(msg); err != nil {
		n.logf("send %s to %v failed: %v", kind, msg.To, err)
		return
	}
	n.logf("sent %s to %v", kind, msg.To)
}

func (n *Notifier) ticketLink(id int64) string {
	return fmt.Sprintf("%s/tickets/%d", n.portalURL, id)
}

// TicketAcknowledgement confirms ticket creation to the requester.
func (n *Notifier) TicketAcknowledgement(t *models.Ticket, requester *models.User, priorityName string) {
	body := fmt.Sprintf(`
Hello %s,

Thank you for contacting LUMIRA support. Your ticket has been received and our team will respond shortly.

Ticket Details:
- Ticket Number: %s
- Subject: %s
- Priority: %s
- Created: %s

You can view and reply to this ticket at:
%s

To reply via email, simply respond to this message. Your reply will be automatically added to the ticket.

Best regards,
LUMIRA Support Team
`, requester.FullName, t.TicketNumber, t.Subject, priorityName,
		t.CreatedAt.Format("January 2, 2006 3:04 PM"), n.ticketLink(t.ID))

	n.send("acknowledgement", &Message{
		To:      []string{requester.Email},
		Subject: fmt.Sprintf("Your support ticket has been created [%s]", t.TicketNumber),
		Body:    body,
	})
}

// NewTicketAlert tells the support team a ticket arrived by email.
func (n *Notifier) NewTicketAlert(t *models.Ticket, requester *models.User, priorityName string) {
	if n.teamAddress == "" {
		return
	}
	body := fmt.Sprintf(`
A new support ticket has arrived by email:

Ticket Number: %s
Subject: %s
Customer: %s (%s)
Priority: %s

View Ticket: %s

LUMIRA Support System
`, t.TicketNumber, t.Subject, requester.FullName, requester.Email,
		priorityName, n.ticketLink(t.ID))

	n.send("new ticket alert", &Message{
		To:      []string{n.teamAddress},
		Subject: fmt.Sprintf("New support ticket [%s] %s", t.TicketNumber, t.Subject),
		Body:    body,
	})
}

// ReplyNotice tells the assigned agent a customer replied by email.
func (n *Notifier) ReplyNotice(t *models.Ticket, agentEmail, requesterEmail string) {
	if agentEmail == "" {
		return
	}
	body := fmt.Sprintf(`
A customer replied to one of your tickets by email:

Ticket Number: %s
Subject: %s
Customer: %s

View Ticket: %s

LUMIRA Support System
`, t.TicketNumber, t.Subject, requesterEmail, n.ticketLink(t.ID))

	n.send("reply notice", &Message{
		To:      []string{agentEmail},
		Subject: fmt.Sprintf("New reply on ticket [%s]", t.TicketNumber),
		Body:    body,
	})
}

// ReplyReceipt tells the requester an agent replied to their ticket.
func (n *Notifier) ReplyReceipt(t *models.Ticket, customerEmail string) {
	if customerEmail == "" {
		return
	}
	body := fmt.Sprintf(`
Our support team has replied to your ticket:

Ticket Number: %s
Subject: %s

You can view the reply at:
%s

To respond, simply reply to this message.

Best regards,
LUMIRA Support Team
`, t.TicketNumber, t.Subject, n.ticketLink(t.ID))

	n.send("reply receipt", &Message{
		To:      []string{customerEmail},
		Subject: fmt.Sprintf("New reply on your ticket [%s]", t.TicketNumber),
		Body:    body,
	})
}

func deadlineLabel(breachType string) string {
	if breachType == models.BreachFirstResponse {
		return "First Response"
	}
	return "Resolution"
}

// BreachAlert tells the currently assigned agent a deadline was missed.
// Skipped silently when the ticket has no assignee.
func (n *Notifier) BreachAlert(t *models.MonitoredTicket, breachType string, hoursOverdue float64) {
	if t.AssignedEmail == nil || *t.AssignedEmail == "" {
		return
	}
	body := fmt.Sprintf(`
A ticket has breached its SLA and requires immediate attention:

Ticket Number: %s
Subject: %s
Customer: %s (%s)

SLA Policy: %s
Breach Type: %s
OVERDUE BY: %.1f hours

This ticket has been automatically escalated.

View Ticket: %s

LUMIRA Support System
`, t.TicketNumber, t.Subject, t.RequesterName, t.RequesterEmail,
		t.SLAName, deadlineLabel(breachType), hoursOverdue, n.ticketLink(t.ID))

	n.send("breach alert", &Message{
		To:      []string{*t.AssignedEmail},
		Subject: fmt.Sprintf("SLA BREACH - Ticket %s requires immediate attention", t.TicketNumber),
		Body:    body,
	})
}

// RiskWarning tells the assigned agent a deadline is close. Skipped
// silently when the ticket has no assignee.
func (n *Notifier) RiskWarning(t *models.MonitoredTicket, breachType string, remaining time.Duration) {
	if t.AssignedEmail == nil || *t.AssignedEmail == "" {
		return
	}
	minutes := int(math.Round(remaining.Minutes()))
	body := fmt.Sprintf(`
A ticket is approaching its SLA deadline:

Ticket Number: %s
Subject: %s
Customer: %s (%s)

SLA Policy: %s
Warning Type: %s
Time Remaining: %d minutes

Please respond as soon as possible to avoid SLA breach.

View Ticket: %s

LUMIRA Support System
`, t.TicketNumber, t.Subject, t.RequesterName, t.RequesterEmail,
		t.SLAName, deadlineLabel(breachType), minutes, n.ticketLink(t.ID))

	n.send("risk warning", &Message{
		To:      []string{*t.AssignedEmail},
		Subject: fmt.Sprintf("SLA WARNING - Ticket %s approaching deadline", t.TicketNumber),
		Body:    body,
	})
}
