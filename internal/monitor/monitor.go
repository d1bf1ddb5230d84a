package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/time/rate"

	"github.com/kuitang/sitesmoke/internal/email"
	"github.com/kuitang/sitesmoke/internal/errs"
	"github.com/kuitang/sitesmoke/internal/notify"
	"github.com/kuitang/sitesmoke/internal/obs"
	"github.com/kuitang/sitesmoke/internal/smoke"
)

const (
	defaultInterval     = 5 * time.Minute
	defaultErrorBackoff = time.Minute
	defaultSettle       = 3 * time.Second
)

// Options configures a Monitor.
type Options struct {
	Env         smoke.Env
	WebhookURL  string
	SendEnabled bool
	// Interval is the minimum time between cycle starts.
	Interval time.Duration
	// ErrorBackoff is the pause after a cycle that could not run.
	ErrorBackoff time.Duration
	// Settle is how long the integrations check lets background requests run.
	// Zero means 3s; negative disables the wait.
	Settle time.Duration
	Checks []Check
	// Mailer escalates critical cycles to EmailTo. Nil disables email.
	Mailer  email.Sender
	EmailTo []string
	Now     func() time.Time
}

// Monitor runs check cycles and alerts on degraded ones.
type Monitor struct {
	factory smoke.PageFactory
	sender  *notify.Sender
	metrics *Metrics
	opts    Options
	logger  *slog.Logger
}

// New returns a Monitor. metrics may be nil.
func New(factory smoke.PageFactory, sender *notify.Sender, metrics *Metrics, opts Options, logger *slog.Logger) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = defaultErrorBackoff
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	} else if opts.Settle == 0 {
		opts.Settle = defaultSettle
	}
	if opts.Checks == nil {
		opts.Checks = DefaultChecks()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = obs.Discard()
	}
	return &Monitor{factory: factory, sender: sender, metrics: metrics, opts: opts, logger: logger}
}

// RunCycle runs every check once, each on its own page. It returns an error
// only when no page can be opened or ctx ends.
func (m *Monitor) RunCycle(ctx context.Context) (CycleResult, error) {
	started := m.opts.Now()
	results := make([]CheckResult, 0, len(m.opts.Checks))
	for _, c := range m.opts.Checks {
		if err := ctx.Err(); err != nil {
			return CycleResult{}, err
		}
		res, err := m.runCheck(ctx, c)
		if err != nil {
			return CycleResult{}, err
		}
		results = append(results, res)
	}
	r := Evaluate(started, results)
	m.logger.Info("monitor cycle complete",
		"status", r.Status,
		"passed", r.Summary.Passed,
		"failed", r.Summary.Failed,
		"warnings", r.Summary.Warnings,
		"duration_ms", m.opts.Now().Sub(started).Milliseconds(),
	)
	return r, nil
}

func (m *Monitor) runCheck(ctx context.Context, c Check) (CheckResult, error) {
	start := m.opts.Now()
	res := CheckResult{Name: c.Name}
	finish := func(status CheckStatus, details map[string]any, err error) CheckResult {
		res.Status = status
		res.Details = details
		if err != nil {
			res.Status = CheckFail
			res.Error = err.Error()
		}
		res.Duration = m.opts.Now().Sub(start)
		return res
	}

	target := c.URL(m.opts.Env)
	if target == "" {
		return finish(CheckFail, nil, errors.New("site URL not configured")), nil
	}

	page, release, err := m.factory.NewPage()
	if err != nil {
		return CheckResult{}, errs.Wrap(errs.Unavailable, "open monitor page", err)
	}
	defer release()

	session := newSession(page, m.opts.Env, m.opts.Settle)
	if _, err := page.Goto(target, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateDomcontentloaded}); err != nil {
		return finish(CheckFail, map[string]any{"url": target}, fmt.Errorf("navigate: %w", err)), nil
	}
	status, details, err := c.Probe(ctx, session)
	if err != nil && ctx.Err() != nil {
		return CheckResult{}, ctx.Err()
	}
	res = finish(status, details, err)
	m.logger.Debug("monitor check finished",
		"check", res.Name,
		"status", res.Status,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// Alert posts the cycle card when the cycle is not healthy and mails it when
// the cycle is critical. It returns the webhook delivery state.
func (m *Monitor) Alert(ctx context.Context, r CycleResult) notify.State {
	if r.Status == HealthHealthy {
		return notify.StateSkipped
	}
	if !m.opts.SendEnabled {
		m.logger.Info("alerts disabled; skipping notification", "status", r.Status)
		return notify.StateSkipped
	}
	card := AlertCard(r)
	state := m.sender.Deliver(ctx, m.opts.WebhookURL, card)
	if r.Status == HealthCritical && m.opts.Mailer != nil && len(m.opts.EmailTo) > 0 {
		if err := m.opts.Mailer.Send(ctx, AlertEmail(card, m.opts.EmailTo)); err != nil {
			m.logger.Warn("escalation email failed", "error", err)
		} else {
			m.logger.Info("escalation email sent", "recipients", len(m.opts.EmailTo))
		}
	}
	return state
}

// Single runs one cycle, records it and alerts on it.
func (m *Monitor) Single(ctx context.Context) (CycleResult, error) {
	r, err := m.RunCycle(ctx)
	if err != nil {
		return CycleResult{}, err
	}
	m.metrics.Observe(r)
	m.Alert(ctx, r)
	return r, nil
}

// Continuous runs cycles at most once per Interval until ctx ends. A cycle
// that cannot run raises a system alert and pauses for ErrorBackoff.
func (m *Monitor) Continuous(ctx context.Context) error {
	m.logger.Info("continuous monitoring started", "interval", m.opts.Interval.String())
	limiter := rate.NewLimiter(rate.Every(m.opts.Interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			m.logger.Info("continuous monitoring stopped")
			return nil
		}
		if _, err := m.Single(ctx); err != nil {
			if ctx.Err() != nil {
				m.logger.Info("continuous monitoring stopped")
				return nil
			}
			m.logger.Error("monitor cycle failed", "error", err, "backoff", m.opts.ErrorBackoff.String())
			m.Alert(ctx, m.systemFailure(err))
			if !sleep(ctx, m.opts.ErrorBackoff) {
				m.logger.Info("continuous monitoring stopped")
				return nil
			}
			limiter = rate.NewLimiter(rate.Every(m.opts.Interval), 1)
		}
	}
}

func (m *Monitor) systemFailure(err error) CycleResult {
	return Evaluate(m.opts.Now(), []CheckResult{{
		Name:   "Monitoring System",
		Status: CheckFail,
		Error:  err.Error(),
	}})
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
