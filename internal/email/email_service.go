// Package email sends the support core's outbound notifications over SMTP
// and composes their bodies.
package email

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/lumira-io/lumira-support/internal/config"
)

// Sender is the outbound surface the ingestor and monitor depend on.
type Sender interface {
	Send(msg *Message) error
}

// Message is one outbound email.
type Message struct {
	To      []string
	CC      []string
	Subject string
	Body    string
}

// SMTPSender delivers messages through a single configured SMTP account.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	useTLS   bool

	// dial and sendMail are swappable for tests.
	dial     func(addr string, cfg *tls.Config) (*tls.Conn, error)
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender builds a sender from the smtp config block.
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		useTLS:   cfg.UseTLS,
		dial: func(addr string, c *tls.Config) (*tls.Conn, error) {
			return tls.Dial("tcp", addr, c)
		},
		sendMail: smtp.SendMail,
	}
}

// Send delivers one message. Notification failures upstream are logged and
// never fail the triggering ticket operation.
func (s *SMTPSender) Send(msg *Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients")
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", s.from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	if len(msg.CC) > 0 {
		fmt.Fprintf(&buf, "Cc: %s\r\n", strings.Join(msg.CC, ", "))
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(msg.Body)

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	rcpts := append(append([]string{}, msg.To...), msg.CC...)

	if s.useTLS {
		return s.sendTLS(addr, auth, rcpts, buf.Bytes())
	}
	return s.sendMail(addr, auth, s.from, rcpts, buf.Bytes())
}

func (s *SMTPSender) sendTLS(addr string, auth smtp.Auth, to []string, payload []byte) error {
	conn, err := s.dial(addr, &tls.Config{ServerName: s.host})
	if err != nil {
		return fmt.Errorf("connect to smtp server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("add recipient %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("start data transfer: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data transfer: %w", err)
	}
	return client.Quit()
}
