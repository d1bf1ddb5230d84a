package smoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/sitesmoke/internal/obs"
	"github.com/kuitang/sitesmoke/internal/report"
)

const projectName = "chromium"

// Options configures a Runner.
type Options struct {
	Env     Env
	Retries int
	// OutputDir receives per-attempt screenshots and console logs.
	OutputDir string
	RunID     string
}

// Runner executes smoke cases sequentially and records every attempt.
type Runner struct {
	opts    Options
	factory PageFactory
	logger  *slog.Logger
	now     func() time.Time
}

// NewRunner returns a Runner opening pages from factory. A nil logger
// discards diagnostics.
func NewRunner(factory PageFactory, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = obs.Discard()
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Runner{opts: opts, factory: factory, logger: logger, now: time.Now}
}

// Run executes cases and returns the run report. A canceled context stops
// the run before the next attempt; the report covers what ran and the
// context error is returned with it.
func (r *Runner) Run(ctx context.Context, cases []Case) (*report.RunReport, error) {
	start := r.now()
	rep := &report.RunReport{
		Config: map[string]any{
			"retries":     r.opts.Retries,
			"runId":       r.opts.RunID,
			"mainUrl":     r.opts.Env.MainURL,
			"referralUrl": r.opts.Env.ReferralURL,
		},
		Suites: []report.Suite{},
	}
	suites := map[Site]int{}

	var runErr error
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			runErr = err
			rep.Errors = append(rep.Errors, report.ReportError{Message: "run interrupted: " + err.Error()})
			r.logger.Warn("smoke run interrupted", "remaining_from", c.ID, "error", err)
			break
		}
		spec, interrupted := r.runCase(ctx, c)
		idx, ok := suites[c.Site]
		if !ok {
			rep.Suites = append(rep.Suites, report.Suite{Title: siteTitle(c.Site), File: specFile(c.Site)})
			idx = len(rep.Suites) - 1
			suites[c.Site] = idx
		}
		rep.Suites[idx].Specs = append(rep.Suites[idx].Specs, spec)
		if interrupted != nil {
			runErr = interrupted
		}
	}

	rep.Stats = stats(rep, start, r.now())
	r.logger.Info("smoke run finished",
		"run_id", r.opts.RunID,
		"expected", rep.Stats.Expected,
		"unexpected", rep.Stats.Unexpected,
		"flaky", rep.Stats.Flaky,
		"skipped", rep.Stats.Skipped,
		"duration_ms", int64(rep.Stats.Duration),
	)
	return rep, runErr
}

func siteTitle(s Site) string {
	if s == SiteReferral {
		return "referral site"
	}
	return "main site"
}

func specFile(s Site) string {
	return "smoke/" + string(s)
}

func (r *Runner) runCase(ctx context.Context, c Case) (report.Spec, error) {
	spec := report.Spec{
		ID:    strings.ToLower(c.ID),
		Title: c.FullTitle(),
		File:  specFile(c.Site),
		Line:  c.Number(),
		Tags:  c.Tags(),
	}
	test := report.Test{ProjectName: projectName, ExpectedStatus: report.StatusPassed}

	if c.Run == nil {
		test.ExpectedStatus = report.StatusSkipped
		test.Annotations = []report.Annotation{{Type: "fixme", Description: "not implemented"}}
		test.Results = []report.Result{{Status: report.StatusSkipped, StartTime: r.now().UTC().Format(time.RFC3339Nano)}}
		test.Status = "skipped"
		spec.OK = true
		spec.Tests = []report.Test{test}
		r.logger.Info("case skipped", "case", c.ID, "reason", "not implemented")
		return spec, nil
	}

	var interrupted error
	for attempt := 0; attempt <= r.opts.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			interrupted = err
			break
		}
		res := r.attempt(c, attempt)
		test.Results = append(test.Results, res)
		if res.Status == report.StatusPassed {
			break
		}
	}

	test.Status = testStatus(test.Results)
	spec.OK = test.Status != "unexpected"
	spec.Tests = []report.Test{test}
	return spec, interrupted
}

// testStatus summarises attempts the way the JSON reporter does.
func testStatus(results []report.Result) string {
	if len(results) == 0 {
		return "skipped"
	}
	last := results[len(results)-1].Status
	switch {
	case last == report.StatusSkipped:
		return "skipped"
	case last == report.StatusPassed && len(results) > 1:
		return "flaky"
	case last == report.StatusPassed:
		return "expected"
	default:
		return "unexpected"
	}
}

func (r *Runner) attempt(c Case, attempt int) report.Result {
	started := r.now()
	res := report.Result{Retry: attempt, StartTime: started.UTC().Format(time.RFC3339Nano)}
	logger := r.logger.With("case", c.ID, "attempt", attempt+1)

	page, release, err := r.factory.NewPage()
	if err != nil {
		res.Status = report.StatusFailed
		res.Error = &report.ReportError{Message: err.Error()}
		res.Duration = r.now().Sub(started).Milliseconds()
		logger.Error("could not open page", "error", err)
		return res
	}
	defer release()

	var (
		mu      sync.Mutex
		console []string
	)
	page.OnConsole(func(m playwright.ConsoleMessage) {
		if m.Type() != "error" {
			return
		}
		mu.Lock()
		console = append(console, m.Text())
		mu.Unlock()
	})

	err = c.Run(page, r.opts.Env)
	res.Duration = r.now().Sub(started).Milliseconds()
	if err == nil {
		res.Status = report.StatusPassed
		logger.Info("case passed", "duration_ms", res.Duration)
		return res
	}

	res.Status = classify(err)
	res.Error = &report.ReportError{Message: err.Error()}
	logger.Warn("case failed", "status", res.Status, "error", err)

	base := fmt.Sprintf("%s-retry%d", strings.ToLower(c.ID), attempt)
	if shot, err := r.screenshot(page, base); err != nil {
		logger.Warn("screenshot failed", "error", err)
	} else {
		res.Attachments = append(res.Attachments, shot)
	}
	mu.Lock()
	lines := append([]string(nil), console...)
	mu.Unlock()
	if len(lines) > 0 {
		if att, err := r.writeLog(base, lines); err != nil {
			logger.Warn("console log not written", "error", err)
		} else {
			res.Attachments = append(res.Attachments, att)
		}
	}
	return res
}

// classify maps an automation timeout to timedOut and anything else to
// failed.
func classify(err error) report.Status {
	if errors.Is(err, playwright.ErrTimeout) {
		return report.StatusTimedOut
	}
	return report.StatusFailed
}

func (r *Runner) screenshot(page Page, base string) (report.Attachment, error) {
	if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		return report.Attachment{}, err
	}
	path := filepath.Join(r.opts.OutputDir, base+"-screenshot.png")
	if _, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		return report.Attachment{}, err
	}
	return report.Attachment{Name: "screenshot", ContentType: "image/png", Path: absPath(path)}, nil
}

func (r *Runner) writeLog(base string, lines []string) (report.Attachment, error) {
	if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		return report.Attachment{}, err
	}
	path := filepath.Join(r.opts.OutputDir, base+"-console.log")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return report.Attachment{}, err
	}
	return report.Attachment{Name: "console-log", ContentType: "text/plain", Path: absPath(path)}, nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func stats(rep *report.RunReport, start, end time.Time) report.Stats {
	s := report.Stats{
		StartTime: start.UTC().Format(time.RFC3339Nano),
		Duration:  float64(end.Sub(start).Milliseconds()),
	}
	for _, suite := range rep.Suites {
		for _, spec := range suite.Specs {
			for _, t := range spec.Tests {
				switch t.Status {
				case "expected":
					s.Expected++
				case "flaky":
					s.Flaky++
				case "skipped":
					s.Skipped++
				default:
					s.Unexpected++
				}
			}
		}
	}
	return s
}
