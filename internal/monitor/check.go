// Package monitor runs the critical user flows of both sites on a schedule
// and alerts the webhook when any of them degrade.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/sitesmoke/internal/smoke"
	"github.com/kuitang/sitesmoke/internal/urlutil"
)

// CheckStatus is the outcome of one check.
type CheckStatus string

const (
	CheckPass    CheckStatus = "pass"
	CheckFail    CheckStatus = "fail"
	CheckWarning CheckStatus = "warning"
)

// Health is the overall state of a cycle.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
)

// CheckResult is one check's outcome.
type CheckResult struct {
	Name     string         `json:"name"`
	Status   CheckStatus    `json:"status"`
	Duration time.Duration  `json:"duration"`
	Error    string         `json:"error,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// Summary counts check results by status.
type Summary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Warnings int `json:"warnings"`
}

// CycleResult is the outcome of one monitoring cycle.
type CycleResult struct {
	Timestamp time.Time     `json:"timestamp"`
	Status    Health        `json:"status"`
	Checks    []CheckResult `json:"checks"`
	Summary   Summary       `json:"summary"`
}

// Evaluate tallies checks and derives the cycle status: critical when any
// check failed, warning when any warned, healthy otherwise.
func Evaluate(ts time.Time, checks []CheckResult) CycleResult {
	r := CycleResult{Timestamp: ts, Checks: checks, Summary: Summary{Total: len(checks)}}
	for _, c := range checks {
		switch c.Status {
		case CheckPass:
			r.Summary.Passed++
		case CheckFail:
			r.Summary.Failed++
		case CheckWarning:
			r.Summary.Warnings++
		}
	}
	switch {
	case r.Summary.Failed > 0:
		r.Status = HealthCritical
	case r.Summary.Warnings > 0:
		r.Status = HealthWarning
	default:
		r.Status = HealthHealthy
	}
	return r
}

// Session is the page and context a probe runs with.
type Session struct {
	Page   smoke.Page
	Env    smoke.Env
	settle time.Duration

	mu      sync.Mutex
	console []string
}

func newSession(page smoke.Page, env smoke.Env, settle time.Duration) *Session {
	s := &Session{Page: page, Env: env, settle: settle}
	page.OnConsole(func(m playwright.ConsoleMessage) {
		if m.Type() != "error" {
			return
		}
		s.mu.Lock()
		s.console = append(s.console, m.Text())
		s.mu.Unlock()
	})
	return s
}

// ConsoleErrors returns the console errors seen so far.
func (s *Session) ConsoleErrors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.console...)
}

// Settle waits for background requests to finish or ctx to end.
func (s *Session) Settle(ctx context.Context) error {
	if s.settle <= 0 {
		return nil
	}
	t := time.NewTimer(s.settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ProbeFunc inspects a page already navigated to the check's URL. A returned
// error fails the check.
type ProbeFunc func(ctx context.Context, s *Session) (CheckStatus, map[string]any, error)

// Check is one monitored flow.
type Check struct {
	Name  string
	URL   func(env smoke.Env) string
	Probe ProbeFunc
}

func mainURL(env smoke.Env) string     { return env.MainURL }
func referralURL(env smoke.Env) string { return env.ReferralURL }

// DefaultChecks returns the critical flows in run order.
func DefaultChecks() []Check {
	return []Check{
		{Name: "Main Homepage", URL: mainURL, Probe: probeTitle},
		{Name: "Main Login Flow", URL: mainURL, Probe: probeLogin},
		{Name: "Main Checkout Flow", URL: mainURL, Probe: probeCheckout},
		{Name: "Referral Homepage", URL: referralURL, Probe: probeTitle},
		{Name: "Referral Claim Flow", URL: referralURL, Probe: probeReferral},
		{Name: "API Integrations", URL: mainURL, Probe: probeAPI},
	}
}

func probeTitle(_ context.Context, s *Session) (CheckStatus, map[string]any, error) {
	title, err := s.Page.Title()
	if err != nil {
		return CheckFail, nil, err
	}
	details := map[string]any{"title": title, "loaded": title != ""}
	if title == "" {
		return CheckWarning, details, nil
	}
	return CheckPass, details, nil
}

var (
	loginSelectors = []string{
		`a[href*="login"]`,
		`button:has-text("Login")`,
		`button:has-text("Sign In")`,
		`[class*="login"]`,
	}
	cartSelectors = []string{
		`a[href*="cart"]`,
		`button:has-text("Cart")`,
		`[class*="cart"]`,
		`a[href*="checkout"]`,
	}
	referralSelectors = []string{
		`button:has-text("Claim")`,
		`button:has-text("Refer")`,
		`a[href*="claim"]`,
		`a[href*="refer"]`,
		`[class*="referral"]`,
	}
	emailFields      = `input[type="email"], input[name*="email"]`
	passwordFields   = `input[type="password"]`
	checkoutElements = `a[href*="checkout"], button:has-text("Checkout"), [class*="checkout"]`
	paymentForms     = `form[action*="stripe"], [class*="stripe"], [data-stripe]`
)

// firstMatch returns the first element of the first selector with matches.
func firstMatch(page smoke.Page, selectors []string) (playwright.Locator, bool, error) {
	for _, sel := range selectors {
		loc := page.Locator(sel)
		n, err := loc.Count()
		if err != nil {
			return nil, false, fmt.Errorf("count %q: %w", sel, err)
		}
		if n > 0 {
			return loc.First(), true, nil
		}
	}
	return nil, false, nil
}

func count(page smoke.Page, selector string) (int, error) {
	n, err := page.Locator(selector).Count()
	if err != nil {
		return 0, fmt.Errorf("count %q: %w", selector, err)
	}
	return n, nil
}

func waitLoaded(page smoke.Page) error {
	return page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateDomcontentloaded,
	})
}

func probeLogin(_ context.Context, s *Session) (CheckStatus, map[string]any, error) {
	var href string
	for _, sel := range loginSelectors {
		loc := s.Page.Locator(sel)
		n, err := loc.Count()
		if err != nil {
			return CheckFail, nil, fmt.Errorf("count %q: %w", sel, err)
		}
		if n == 0 {
			continue
		}
		if h, err := loc.First().GetAttribute("href"); err == nil && strings.TrimSpace(h) != "" {
			href = h
			break
		}
	}
	if href == "" {
		return CheckWarning, map[string]any{"loginFound": false}, nil
	}

	target := urlutil.BuildAbsolute(urlutil.Origin(s.Page.URL()), href)
	if _, err := s.Page.Goto(target, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateDomcontentloaded}); err != nil {
		return CheckFail, map[string]any{"loginFound": true, "href": target}, fmt.Errorf("goto login: %w", err)
	}
	forms, err := count(s.Page, "form")
	if err != nil {
		return CheckFail, nil, err
	}
	emails, err := count(s.Page, emailFields)
	if err != nil {
		return CheckFail, nil, err
	}
	passwords, err := count(s.Page, passwordFields)
	if err != nil {
		return CheckFail, nil, err
	}
	functional := forms > 0 && emails > 0 && passwords > 0
	details := map[string]any{
		"loginFound":     true,
		"href":           target,
		"forms":          forms,
		"emailFields":    emails,
		"passwordFields": passwords,
		"functional":     functional,
	}
	if !functional {
		return CheckWarning, details, nil
	}
	return CheckPass, details, nil
}

func probeCheckout(_ context.Context, s *Session) (CheckStatus, map[string]any, error) {
	loc, found, err := firstMatch(s.Page, cartSelectors)
	if err != nil {
		return CheckFail, nil, err
	}
	if !found {
		return CheckWarning, map[string]any{"cartFound": false}, nil
	}
	if err := loc.Click(); err != nil {
		return CheckFail, map[string]any{"cartFound": true}, fmt.Errorf("open cart: %w", err)
	}
	if err := waitLoaded(s.Page); err != nil {
		return CheckFail, map[string]any{"cartFound": true}, err
	}
	checkout, err := count(s.Page, checkoutElements)
	if err != nil {
		return CheckFail, nil, err
	}
	payment, err := count(s.Page, paymentForms)
	if err != nil {
		return CheckFail, nil, err
	}
	functional := checkout > 0 || payment > 0
	details := map[string]any{
		"cartFound":        true,
		"checkoutElements": checkout,
		"paymentForms":     payment,
		"functional":       functional,
	}
	if !functional {
		return CheckWarning, details, nil
	}
	return CheckPass, details, nil
}

func probeReferral(_ context.Context, s *Session) (CheckStatus, map[string]any, error) {
	loc, found, err := firstMatch(s.Page, referralSelectors)
	if err != nil {
		return CheckFail, nil, err
	}
	if !found {
		return CheckWarning, map[string]any{"referralFound": false}, nil
	}
	if err := loc.Click(); err != nil {
		return CheckFail, map[string]any{"referralFound": true}, fmt.Errorf("open referral flow: %w", err)
	}
	if err := waitLoaded(s.Page); err != nil {
		return CheckFail, map[string]any{"referralFound": true}, err
	}
	forms, err := count(s.Page, "form")
	if err != nil {
		return CheckFail, nil, err
	}
	emails, err := count(s.Page, emailFields)
	if err != nil {
		return CheckFail, nil, err
	}
	functional := forms > 0 || emails > 0
	details := map[string]any{
		"referralFound": true,
		"forms":         forms,
		"emailFields":   emails,
		"functional":    functional,
	}
	if !functional {
		return CheckWarning, details, nil
	}
	return CheckPass, details, nil
}

var (
	apiErrorWords      = []string{"stripe", "twilio", "sendgrid", "api", "fetch", "xhr"}
	criticalErrorWords = []string{"stripe", "payment", "auth"}
)

// ClassifyConsoleErrors splits console errors into integration errors and
// the critical subset among them.
func ClassifyConsoleErrors(messages []string) (api, critical []string) {
	for _, m := range messages {
		lower := strings.ToLower(m)
		if !containsAny(lower, apiErrorWords) {
			continue
		}
		api = append(api, m)
		if containsAny(lower, criticalErrorWords) {
			critical = append(critical, m)
		}
	}
	return api, critical
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func probeAPI(ctx context.Context, s *Session) (CheckStatus, map[string]any, error) {
	if err := s.Settle(ctx); err != nil {
		return CheckFail, nil, err
	}
	api, critical := ClassifyConsoleErrors(s.ConsoleErrors())
	details := map[string]any{
		"totalErrors":    len(api),
		"criticalErrors": len(critical),
		"healthy":        len(critical) == 0,
	}
	switch {
	case len(critical) > 0:
		return CheckFail, details, fmt.Errorf("%d critical integration error(s): %s", len(critical), critical[0])
	case len(api) > 0:
		return CheckWarning, details, nil
	default:
		return CheckPass, details, nil
	}
}
