package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/kuitang/sitesmoke/internal/config"
	"github.com/kuitang/sitesmoke/internal/errs"
	"github.com/kuitang/sitesmoke/internal/obs"
	"github.com/kuitang/sitesmoke/internal/report"
)

// ReporterConfig is what the reporter needs from configuration.
type ReporterConfig struct {
	ReportPaths     []string
	ArchiveDir      string
	WebhookURL      string
	Enabled         bool
	FailureAnalysis bool
	RunID           string
	StartTime       *time.Time
	ReportURL       string
	ScreenshotURL   func(fileName string) string
}

// ReporterConfigFrom maps loaded configuration onto a ReporterConfig.
func ReporterConfigFrom(cfg *config.Config) ReporterConfig {
	return ReporterConfig{
		ReportPaths:     cfg.ReportPaths,
		ArchiveDir:      cfg.ArchiveDir,
		WebhookURL:      cfg.WebhookURL,
		Enabled:         cfg.SendEnabled,
		FailureAnalysis: cfg.FailureAnalysis,
		RunID:           cfg.RunID,
		StartTime:       cfg.StartTime,
		ReportURL:       cfg.ReportURL(),
		ScreenshotURL:   cfg.ScreenshotURL(),
	}
}

// RunResult describes one reporter run.
type RunResult struct {
	State       State
	History     []State
	ReportPath  string
	ArchivePath string
	Summary     *Summary
}

// Reporter loads a run report, composes its card and delivers it.
type Reporter struct {
	cfg        ReporterConfig
	sender     *Sender
	aggregator *report.Aggregator
	logger     *slog.Logger
	now        func() time.Time
}

// NewReporter returns a Reporter. A nil logger discards diagnostics.
func NewReporter(cfg ReporterConfig, sender *Sender, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = obs.Discard()
	}
	if sender == nil {
		sender = NewSender(nil, logger)
	}
	return &Reporter{
		cfg:        cfg,
		sender:     sender,
		aggregator: report.NewAggregator(logger),
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes one notification pass. It never fails the caller: every error
// path is logged and ends in a terminal state.
func (r *Reporter) Run(ctx context.Context) RunResult {
	res := RunResult{State: StateIdle, History: []State{StateIdle}}
	move := func(s State) {
		res.State = s
		res.History = append(res.History, s)
	}
	move(StateBuilding)

	rep, path, err := report.Load(r.cfg.ReportPaths)
	res.ReportPath = path
	if err != nil {
		switch errs.CodeOf(err) {
		case errs.ReportMissing:
			r.logger.Info("no run report found; skipping notification", "candidates", r.cfg.ReportPaths)
		default:
			r.logger.Warn("run report unreadable; skipping notification", "path", path, "error", err)
		}
		move(StateSkipped)
		return res
	}
	r.logger.Info("run report loaded", "path", path, "bytes", len(rep.Raw()))

	if r.cfg.ArchiveDir != "" {
		archived, err := report.Archive(r.cfg.ArchiveDir, r.cfg.RunID, rep.Raw())
		if err != nil {
			r.logger.Warn("archive run report", "dir", r.cfg.ArchiveDir, "error", err)
		} else {
			res.ArchivePath = archived
		}
	}

	outcomes := r.aggregator.Flatten(rep)
	meta := RunMeta{
		RunID:         r.cfg.RunID,
		StartTime:     r.cfg.StartTime,
		Now:           r.now(),
		ReportURL:     r.cfg.ReportURL,
		ScreenshotURL: r.cfg.ScreenshotURL,
	}
	summary := Summarize(outcomes, meta)
	res.Summary = &summary
	checkFailureCount(r.logger, summary)
	r.logger.Info("run summary",
		"passed", summary.Counts.Passed,
		"failed", summary.Counts.Failed,
		"skipped", summary.Counts.Skipped,
		"total", summary.Total,
		"pass_percent", summary.PassPercent,
	)

	if !r.cfg.Enabled {
		r.logger.Info("notifications disabled; skipping")
		move(StateSkipped)
		return res
	}
	if r.cfg.WebhookURL == "" {
		r.logger.Info("webhook not configured; skipping notification")
		move(StateSkipped)
		return res
	}

	card := Composer{FailureAnalysis: r.cfg.FailureAnalysis}.Compose(summary, meta)
	move(StateSending)
	move(r.sender.Deliver(ctx, r.cfg.WebhookURL, card))
	return res
}

// checkFailureCount warns when the tally and the listed failures disagree and
// reports whether they matched.
func checkFailureCount(logger *slog.Logger, s Summary) bool {
	if s.Counts.Failed == len(s.Failures) {
		return true
	}
	logger.Warn("failed count does not match enumerated failures; some failures may not be listed",
		"failed", s.Counts.Failed,
		"enumerated", len(s.Failures),
	)
	return false
}
