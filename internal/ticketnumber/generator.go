// Package ticketnumber generates and parses LUMIRA ticket numbers.
//
// The format is TKT-YYYYMMDD-XXXXXX where the suffix is six uppercase hex
// characters. The bracketed form [TKT-YYYYMMDD-XXXXXX] embedded in an email
// subject threads a reply onto its ticket, so the format is bit-exact.
package ticketnumber

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"time"
)

// SubjectTokenPattern matches a bracketed ticket token anywhere in a subject
// line. The suffix class is deliberately wider ([A-Z0-9]) than what the
// generator emits, matching what the portal has historically accepted.
var SubjectTokenPattern = regexp.MustCompile(`\[TKT-(\d{8})-([A-Z0-9]{6})\]`)

// Generator produces ticket numbers. The zero value is not usable; call
// NewGenerator.
type Generator struct {
	now  func() time.Time
	rand io.Reader
}

// Option customizes a Generator.
type Option func(*Generator)

// WithClock overrides the wall clock, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithRand overrides the entropy source, primarily for tests.
func WithRand(r io.Reader) Option {
	return func(g *Generator) {
		if r != nil {
			g.rand = r
		}
	}
}

// NewGenerator returns a generator backed by crypto/rand.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		now:  func() time.Time { return time.Now() },
		rand: rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next returns a fresh ticket number for today's date.
func (g *Generator) Next() (string, error) {
	var b [3]byte
	if _, err := io.ReadFull(g.rand, b[:]); err != nil {
		return "", fmt.Errorf("ticketnumber: read entropy: %w", err)
	}
	return fmt.Sprintf("TKT-%s-%02X%02X%02X", g.now().Format("20060102"), b[0], b[1], b[2]), nil
}

// FromSubject extracts the ticket number referenced by a reply subject, if
// any.
func FromSubject(subject string) (string, bool) {
	m := SubjectTokenPattern.FindStringSubmatch(subject)
	if m == nil {
		return "", false
	}
	return "TKT-" + m[1] + "-" + m[2], true
}
