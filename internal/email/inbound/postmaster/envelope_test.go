package postmaster

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParser() *Parser {
	return NewParser(0, 0, nil)
}

func TestParsePlainMessage(t *testing.T) {
	raw := strings.Join([]string{
		"From: Dana Reyes <Dana@Example.com>",
		"To: support@lumira.example",
		"Subject: Cannot log in",
		"Message-Id: <abc-123@example.com>",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"I forgot my password and cannot log in.",
		"",
	}, "\r\n")

	env, err := testParser().Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "Cannot log in", env.Subject)
	assert.Equal(t, "dana@example.com", env.FromEmail)
	assert.Equal(t, "Dana Reyes", env.FromName)
	assert.Equal(t, "<abc-123@example.com>", env.MessageID)
	assert.Equal(t, "I forgot my password and cannot log in.", env.Body)
	assert.Empty(t, env.Attachments)
}

func TestParsePrefersHTMLBody(t *testing.T) {
	raw := strings.Join([]string{
		"From: dana@example.com",
		"Subject: Order question",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="BOUND"`,
		"",
		"--BOUND",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"plain fallback",
		"--BOUND",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>Where is my <b>order</b>?</p>",
		"--BOUND--",
		"",
	}, "\r\n")

	env, err := testParser().Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "Where is my order?", env.Body)
}

func TestParseDecodesBase64Attachment(t *testing.T) {
	payload := []byte("%PDF-1.4 not really a pdf")
	raw := strings.Join([]string{
		"From: dana@example.com",
		"Subject: Invoice attached",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="BOUND"`,
		"",
		"--BOUND",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"See attached invoice.",
		"--BOUND",
		"Content-Type: application/pdf",
		"Content-Transfer-Encoding: base64",
		`Content-Disposition: attachment; filename="invoice.pdf"`,
		"",
		base64.StdEncoding.EncodeToString(payload),
		"--BOUND--",
		"",
	}, "\r\n")

	env, err := testParser().Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "See attached invoice.", env.Body)
	require.Len(t, env.Attachments, 1)
	att := env.Attachments[0]
	assert.Equal(t, "invoice.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.Equal(t, payload, att.Data)
}

func TestParseMissingSubjectAndName(t *testing.T) {
	raw := strings.Join([]string{
		"From: dana@example.com",
		"Content-Type: text/plain",
		"",
		"hello",
		"",
	}, "\r\n")

	env, err := testParser().Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "No Subject", env.Subject)
	assert.Equal(t, "dana@example.com", env.FromName)
}

func TestCleanBody(t *testing.T) {
	in := strings.Join([]string{
		"Thanks, that fixed it!",
		"",
		"On Mon, Aug 31, 2026 someone wrote:",
		"> earlier message",
		"> more quoted text",
		"",
		"--",
		"Dana",
		"Sent from my iPhone",
	}, "\n")

	got := CleanBody(in)
	assert.Contains(t, got, "Thanks, that fixed it!")
	assert.NotContains(t, got, "earlier message")
	assert.NotContains(t, got, "Sent from my iPhone")
	assert.NotContains(t, got, "\n\n\n")
}

func TestCleanBodyCollapsesBlankRuns(t *testing.T) {
	got := CleanBody("a\n\n\n\n\nb")
	assert.Equal(t, "a\n\nb", got)
}
