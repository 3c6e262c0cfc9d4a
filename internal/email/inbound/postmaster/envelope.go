// Package postmaster turns fetched mailbox messages into ticket-store
// mutations: new tickets for fresh conversations, comments for replies.
package postmaster

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"log"
	"mime"
	stdmail "net/mail"
	"regexp"
	"strings"
	"sync"
	"time"

	gomessage "github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"
	htmlcharset "golang.org/x/net/html/charset"
)

// Envelope is the parsed, cleaned view of one inbound message.
type Envelope struct {
	Subject     string
	FromEmail   string
	FromName    string
	MessageID   string
	Body        string
	Attachments []AttachmentPart
}

// AttachmentPart is one decoded file carried by the message.
type AttachmentPart struct {
	Filename    string
	ContentType string
	Data        []byte
}

var charsetReaderOnce sync.Once

// Parser extracts envelopes from raw RFC822 payloads. HTML bodies are
// preferred and flattened to text; plain text is the fallback.
type Parser struct {
	bodyLimit       int64
	attachmentLimit int64
	logger          *log.Logger
	htmlPolicy      *bluemonday.Policy
}

// NewParser builds a parser with per-part size caps in bytes.
func NewParser(bodyLimit, attachmentLimit int64, logger *log.Logger) *Parser {
	charsetReaderOnce.Do(func() {
		gomessage.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
			return htmlcharset.NewReaderLabel(charset, input)
		}
	})
	if bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}
	if attachmentLimit <= 0 {
		attachmentLimit = 25 << 20
	}
	return &Parser{
		bodyLimit:       bodyLimit,
		attachmentLimit: attachmentLimit,
		logger:          logger,
		htmlPolicy:      bluemonday.StrictPolicy(),
	}
}

func (p *Parser) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}

// Parse extracts the envelope from a raw message.
func (p *Parser) Parse(raw []byte) (*Envelope, error) {
	reader, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		p.logf("structured parse failed, using plain reader: %v", err)
		return p.parsePlain(raw)
	}

	env := &Envelope{}
	if subject, err := reader.Header.Subject(); err == nil {
		env.Subject = subject
	} else {
		env.Subject = strings.TrimSpace(reader.Header.Get("Subject"))
	}
	if env.Subject == "" {
		env.Subject = "No Subject"
	}
	if list, err := reader.Header.AddressList("From"); err == nil && len(list) > 0 {
		env.FromEmail = strings.ToLower(strings.TrimSpace(list[0].Address))
		env.FromName = strings.TrimSpace(list[0].Name)
	}
	if env.FromName == "" {
		env.FromName = env.FromEmail
	}
	env.MessageID = strings.TrimSpace(reader.Header.Get("Message-Id"))

	var plainBody, htmlBody string
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.logf("read part failed: %v", err)
			break
		}
		switch header := part.Header.(type) {
		case *gomail.InlineHeader:
			mimeType, ctParams, ctErr := header.ContentType()
			if ctErr != nil {
				mimeType = "text/plain"
			}
			mimeType = strings.ToLower(strings.TrimSpace(mimeType))

			// Inline parts carrying a filename are files, not body text.
			if filename := inlineFilename(header, ctParams); filename != "" &&
				!strings.HasPrefix(mimeType, "text/") {
				if att := p.readAttachment(part.Body, filename, mimeType); att != nil {
					env.Attachments = append(env.Attachments, *att)
				}
				continue
			}

			body, readErr := p.readBody(part.Body)
			if readErr != nil {
				p.logf("read part body failed: %v", readErr)
				continue
			}
			switch {
			case strings.HasPrefix(mimeType, "text/html"):
				if htmlBody == "" {
					htmlBody = body
				}
			default:
				if plainBody == "" {
					plainBody = body
				}
			}
		case *gomail.AttachmentHeader:
			filename, fnErr := header.Filename()
			if fnErr != nil || strings.TrimSpace(filename) == "" {
				filename = fmt.Sprintf("attachment-%d.bin", time.Now().UnixNano())
			}
			mimeType, _, ctErr := header.ContentType()
			if ctErr != nil || strings.TrimSpace(mimeType) == "" {
				mimeType = "application/octet-stream"
			}
			if att := p.readAttachment(part.Body, filename, strings.ToLower(mimeType)); att != nil {
				env.Attachments = append(env.Attachments, *att)
			}
		}
	}

	switch {
	case htmlBody != "":
		env.Body = CleanBody(p.htmlToText(htmlBody))
	case plainBody != "":
		env.Body = CleanBody(plainBody)
	}
	return env, nil
}

// parsePlain is the fallback for messages go-message cannot structure.
func (p *Parser) parsePlain(raw []byte) (*Envelope, error) {
	msg, err := stdmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	env := &Envelope{
		Subject:   strings.TrimSpace(msg.Header.Get("Subject")),
		MessageID: strings.TrimSpace(msg.Header.Get("Message-Id")),
	}
	if env.Subject == "" {
		env.Subject = "No Subject"
	}
	if addr, err := stdmail.ParseAddress(msg.Header.Get("From")); err == nil {
		env.FromEmail = strings.ToLower(strings.TrimSpace(addr.Address))
		env.FromName = strings.TrimSpace(addr.Name)
	}
	if env.FromName == "" {
		env.FromName = env.FromEmail
	}
	body, err := io.ReadAll(io.LimitReader(msg.Body, p.bodyLimit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	env.Body = CleanBody(string(body))
	return env, nil
}

func (p *Parser) readBody(src io.Reader) (string, error) {
	if src == nil {
		return "", nil
	}
	data, err := io.ReadAll(io.LimitReader(src, p.bodyLimit))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (p *Parser) readAttachment(src io.Reader, filename, mimeType string) *AttachmentPart {
	if src == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(src, p.attachmentLimit))
	if err != nil {
		p.logf("read attachment %s failed: %v", filename, err)
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	return &AttachmentPart{Filename: filename, ContentType: mimeType, Data: data}
}

// inlineFilename digs a filename out of an inline part's disposition or
// content-type parameters, matching how embedded files usually arrive.
func inlineFilename(header *gomail.InlineHeader, ctParams map[string]string) string {
	if _, params, err := mime.ParseMediaType(header.Get("Content-Disposition")); err == nil {
		if name := strings.TrimSpace(params["filename"]); name != "" {
			return name
		}
	}
	return strings.TrimSpace(ctParams["name"])
}

func (p *Parser) htmlToText(htmlBody string) string {
	return html.UnescapeString(p.htmlPolicy.Sanitize(htmlBody))
}

var bodyCleanups = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^>.*$`),                 // quoted lines
	regexp.MustCompile(`(?m)^On .* wrote:$`),        // quote intro
	regexp.MustCompile(`(?m)--\s*$`),                // signature delimiter
	regexp.MustCompile(`_{10,}`),                    // long underscore rules
	regexp.MustCompile(`(?mi)Sent from my .*$`),     // mobile footers
	regexp.MustCompile(`(?mi)Get Outlook for .*$`),  // client footers
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// CleanBody strips quoted history and boilerplate signatures from a
// message body and collapses leftover blank runs.
func CleanBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	for _, re := range bodyCleanups {
		body = re.ReplaceAllString(body, "")
	}
	body = blankRuns.ReplaceAllString(body, "\n\n")
	return strings.TrimSpace(body)
}
