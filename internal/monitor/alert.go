package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/kuitang/sitesmoke/internal/email"
	"github.com/kuitang/sitesmoke/internal/htmlreport"
	"github.com/kuitang/sitesmoke/internal/notify"
)

const maxListedFailures = 5

var criticalFlowWords = []string{"Login", "Checkout", "Payment", "API"}

// AlertCard builds the webhook card for a cycle.
func AlertCard(r CycleResult) notify.Card {
	status := strings.ToUpper(string(r.Status))
	color := notify.ColorSuccess
	switch r.Status {
	case HealthCritical:
		color = notify.ColorFailure
	case HealthWarning:
		color = notify.ColorWarning
	}

	card := notify.NewCard("Site Monitor - "+status, color)
	total := r.Summary.Total
	card.Sections = append(card.Sections, notify.Section{
		ActivityTitle:    "Real-Time Monitoring Alert",
		ActivitySubtitle: fmt.Sprintf("Status: %s | %s", status, r.Timestamp.UTC().Format(time.RFC3339)),
		Facts: []notify.Fact{
			{Name: "Overall Status", Value: status},
			{Name: "Passed", Value: fmt.Sprintf("%d/%d", r.Summary.Passed, total)},
			{Name: "Failed", Value: fmt.Sprintf("%d/%d", r.Summary.Failed, total)},
			{Name: "Warnings", Value: fmt.Sprintf("%d/%d", r.Summary.Warnings, total)},
		},
		Markdown: true,
	})

	var critical, failed, warned []CheckResult
	for _, c := range r.Checks {
		switch c.Status {
		case CheckFail:
			failed = append(failed, c)
			if containsWord(c.Name, criticalFlowWords) {
				critical = append(critical, c)
			}
		case CheckWarning:
			warned = append(warned, c)
		}
	}

	if len(critical) > 0 {
		card.Sections = append(card.Sections, notify.Section{
			ActivityTitle:    "Critical Failures - Immediate Action Required",
			ActivitySubtitle: fmt.Sprintf("%d critical flows broken", len(critical)),
			Facts:            checkFacts(critical, len(critical)),
			Markdown:         true,
		})
	}
	if len(failed) > 0 {
		card.Sections = append(card.Sections, notify.Section{
			ActivityTitle:    "All Failed Checks",
			ActivitySubtitle: fmt.Sprintf("%d total failures", len(failed)),
			Facts:            checkFacts(failed, maxListedFailures),
			Markdown:         true,
		})
	}
	if len(warned) > 0 {
		card.Sections = append(card.Sections, notify.Section{
			ActivityTitle:    "Warnings",
			ActivitySubtitle: fmt.Sprintf("%d check(s) degraded", len(warned)),
			Facts:            checkFacts(warned, maxListedFailures),
			Markdown:         true,
		})
	}
	return card
}

// AlertEmail renders card as an escalation email to recipients.
func AlertEmail(card notify.Card, recipients []string) email.Message {
	var md, text strings.Builder
	fmt.Fprintf(&md, "# %s\n\n", card.Title)
	fmt.Fprintf(&text, "%s\n", card.Title)
	for _, s := range card.Sections {
		fmt.Fprintf(&md, "## %s\n\n", s.ActivityTitle)
		fmt.Fprintf(&text, "\n%s\n", s.ActivityTitle)
		if s.ActivitySubtitle != "" {
			fmt.Fprintf(&md, "%s\n\n", htmlreport.EscapeMarkdown(s.ActivitySubtitle))
			fmt.Fprintf(&text, "%s\n", s.ActivitySubtitle)
		}
		for _, f := range s.Facts {
			fmt.Fprintf(&md, "- **%s**: %s\n", htmlreport.EscapeMarkdown(f.Name), htmlreport.EscapeMarkdown(f.Value))
			fmt.Fprintf(&text, "  %s: %s\n", f.Name, f.Value)
		}
		md.WriteString("\n")
	}
	return email.Message{
		To:      recipients,
		Subject: card.Title,
		HTML:    string(htmlreport.RenderMarkdown([]byte(md.String()))),
		Text:    text.String(),
	}
}

func checkFacts(checks []CheckResult, limit int) []notify.Fact {
	if len(checks) > limit {
		checks = checks[:limit]
	}
	facts := make([]notify.Fact, 0, len(checks))
	for _, c := range checks {
		facts = append(facts, notify.Fact{Name: c.Name, Value: describe(c)})
	}
	return facts
}

func describe(c CheckResult) string {
	if c.Error != "" {
		return c.Error
	}
	if c.Status == CheckWarning {
		for _, key := range []string{"loginFound", "cartFound", "referralFound"} {
			if found, ok := c.Details[key].(bool); ok && !found {
				return "entry point not found on page"
			}
		}
		if functional, ok := c.Details["functional"].(bool); ok && !functional {
			return "flow reached but expected fields are missing"
		}
		if n, ok := c.Details["totalErrors"].(int); ok && n > 0 {
			return fmt.Sprintf("%d integration console error(s)", n)
		}
	}
	return "Unknown error"
}

func containsWord(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
