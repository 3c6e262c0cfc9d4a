// Package classify maps inbound email text to a ticket category and
// priority by fixed keyword tables. The tables and their scan order are a
// behavioral contract shared with the web portal's auto-triage.
package classify

import "strings"

// Priority names returned by Priority.
const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
)

type categoryRule struct {
	Name     string
	Keywords []string
}

// categoryRules is scanned in order; within a rule, keywords are tested in
// order and the first hit wins.
var categoryRules = []categoryRule{
	{"Password/Login", []string{"password", "login", "signin", "sign in", "cant login", "forgot password", "reset password"}},
	{"Technical Issue", []string{"error", "broken", "not working", "bug", "issue", "problem", "crash"}},
	{"Billing", []string{"billing", "invoice", "payment", "charge", "refund", "subscription"}},
	{"Product Question", []string{"product", "feature", "how to", "how do i", "question about"}},
	{"Order Issue", []string{"order", "shipping", "delivery", "tracking", "received"}},
}

var highPriorityKeywords = []string{"urgent", "asap", "emergency", "critical", "down", "broken", "not working"}

// Categories returns every category whose keyword list matches the text, in
// table order. Callers that cannot resolve the first name (absent lookup
// row) move on to the next before falling back to the default category.
// Matching is case-insensitive substring search.
func Categories(text string) []string {
	text = strings.ToLower(text)
	var names []string
	for _, rule := range categoryRules {
		for _, word := range rule.Keywords {
			if strings.Contains(text, word) {
				names = append(names, rule.Name)
				break
			}
		}
	}
	return names
}

// Category returns the first category whose keyword list matches the text,
// or "" when nothing matches.
func Category(text string) string {
	if names := Categories(text); len(names) > 0 {
		return names[0]
	}
	return ""
}

// Priority returns PriorityHigh when any urgency keyword appears in the
// text, PriorityMedium otherwise.
func Priority(text string) string {
	text = strings.ToLower(text)
	for _, word := range highPriorityKeywords {
		if strings.Contains(text, word) {
			return PriorityHigh
		}
	}
	return PriorityMedium
}

// Classify runs both detectors over the same text.
func Classify(text string) (category, priority string) {
	return Category(text), Priority(text)
}
