// Package connector fetches unseen mailbox messages and streams them into
// the inbound pipeline. A message is acknowledged on the server (flagged
// seen, or deleted for POP3) only after its handler returns nil; failed
// messages stay unseen and are retried on the next run.
package connector

import (
	"context"
	"time"

	"github.com/lumira-io/lumira-support/internal/config"
)

// Account carries what a connector needs to open the support mailbox.
type Account struct {
	Type     string // imap, imaps, pop3, pop3s
	Host     string
	Port     int
	Username string
	Password []byte
	Folder   string
}

// AccountFromConfig maps the mailbox config block onto an Account.
func AccountFromConfig(cfg config.MailboxConfig) Account {
	return Account{
		Type:     cfg.Type,
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: []byte(cfg.Password),
		Folder:   cfg.Folder,
	}
}

// FetchedMessage wraps the on-wire RFC822 payload plus derived metadata.
type FetchedMessage struct {
	Connector  string
	UID        string
	ReceivedAt time.Time
	SizeBytes  int64
	Raw        []byte
}

// Handler receives fully fetched messages. A nil return acknowledges the
// message on the server; an error leaves it unseen for the next run.
type Handler interface {
	Handle(ctx context.Context, msg *FetchedMessage) error
}

// Fetcher implementations (IMAP, POP3) stream unseen messages to a handler.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, account Account, handler Handler) error
}
