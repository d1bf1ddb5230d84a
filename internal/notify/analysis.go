package notify

import (
	"strings"

	"github.com/kuitang/sitesmoke/internal/report"
)

// Severity ranks a classified failure.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities; higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

// Analysis is the triage guess for one failure.
type Analysis struct {
	Severity       Severity
	Kind           string // flow, api, ui, content, integration
	Description    string
	Impact         string
	Recommendation string
}

type rule struct {
	titleWords []string
	errorWords []string
	analysis   Analysis
}

// Rules are checked in order; the first match wins.
var rules = []rule{
	{titleWords: []string{"checkout", "payment", "stripe"}, analysis: Analysis{
		Severity: SeverityCritical, Kind: "flow",
		Description:    "Checkout/payment flow failure",
		Impact:         "Users cannot complete purchases",
		Recommendation: "Check the payment integration and the checkout flow",
	}},
	{titleWords: []string{"login", "auth"}, analysis: Analysis{
		Severity: SeverityCritical, Kind: "flow",
		Description:    "Authentication flow failure",
		Impact:         "Users cannot access their accounts",
		Recommendation: "Check identity providers, sessions and login endpoints",
	}},
	{titleWords: []string{"referral", "claim"}, analysis: Analysis{
		Severity: SeverityCritical, Kind: "flow",
		Description:    "Referral tracking/claiming failure",
		Impact:         "Referral program is broken",
		Recommendation: "Check referral tracking and claim processing",
	}},
	{errorWords: []string{"stripe", "payment"}, analysis: Analysis{
		Severity: SeverityCritical, Kind: "api",
		Description:    "Payment API failure",
		Impact:         "Payment processing is down",
		Recommendation: "Check payment provider status and webhook configuration",
	}},
	{errorWords: []string{"twilio", "sms", "phone"}, analysis: Analysis{
		Severity: SeverityHigh, Kind: "api",
		Description:    "SMS/phone API failure",
		Impact:         "SMS notifications and phone verification are down",
		Recommendation: "Check SMS provider status and number configuration",
	}},
	{errorWords: []string{"sendgrid", "email", "mail"}, analysis: Analysis{
		Severity: SeverityHigh, Kind: "api",
		Description:    "Email API failure",
		Impact:         "Transactional email is not sending",
		Recommendation: "Check email provider status and templates",
	}},
	{titleWords: []string{"cta", "button", "form"}, analysis: Analysis{
		Severity: SeverityHigh, Kind: "ui",
		Description:    "Critical UI element missing",
		Impact:         "Conversion flows are broken",
		Recommendation: "Check rendering, CSS loading and client-side scripts",
	}},
	{titleWords: []string{"image", "loading"}, analysis: Analysis{
		Severity: SeverityMedium, Kind: "ui",
		Description:    "UI rendering issue",
		Impact:         "Degraded user experience",
		Recommendation: "Check the image CDN and loading states",
	}},
	{titleWords: []string{"content", "404"}, errorWords: []string{"not found"}, analysis: Analysis{
		Severity: SeverityMedium, Kind: "content",
		Description:    "Content loading failure",
		Impact:         "Users see broken pages",
		Recommendation: "Check content delivery and page routing",
	}},
}

var defaultAnalysis = Analysis{
	Severity: SeverityLow, Kind: "integration",
	Description:    "General test failure",
	Impact:         "Unknown impact",
	Recommendation: "Review test logs and investigate the root cause",
}

// Classify guesses the severity of a failure from its title and error text.
func Classify(title, errText string) Analysis {
	title = strings.ToLower(title)
	errText = strings.ToLower(errText)
	for _, r := range rules {
		if containsAny(title, r.titleWords) || containsAny(errText, r.errorWords) {
			return r.analysis
		}
	}
	return defaultAnalysis
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// ClassifiedFailure pairs a failing outcome with its analysis.
type ClassifiedFailure struct {
	Outcome  report.Outcome
	Analysis Analysis
}

// Triage classifies failures and groups them by severity, preserving order
// within each group.
func Triage(failures []report.Outcome) map[Severity][]ClassifiedFailure {
	groups := make(map[Severity][]ClassifiedFailure)
	for _, f := range failures {
		a := Classify(f.Title, f.Error)
		groups[a.Severity] = append(groups[a.Severity], ClassifiedFailure{Outcome: f, Analysis: a})
	}
	return groups
}
