package smoke

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/sitesmoke/internal/config"
	"github.com/kuitang/sitesmoke/internal/pages"
)

var setenv = os.Setenv

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "smoke-" + uuid.NewString()
}

// Prepare stamps the run ID and start time onto cfg when they are not set
// and exports both as TEST_RUN_ID and TEST_START_TIME for later steps run as
// separate processes.
func Prepare(cfg *config.Config, now time.Time, logger *slog.Logger) {
	if cfg.RunID == "" {
		cfg.RunID = NewRunID()
	}
	if cfg.StartTime == nil {
		start := now.UTC()
		cfg.StartTime = &start
	}
	for key, value := range map[string]string{
		"TEST_RUN_ID":     cfg.RunID,
		"TEST_START_TIME": cfg.StartTime.Format(time.RFC3339Nano),
	} {
		if err := setenv(key, value); err != nil {
			logger.Warn("could not export run variable", "key", key, "error", err)
		}
	}

	if cfg.WebhookURL == "" {
		logger.Warn("TEAMS_WEBHOOK_URL not set; notifications are disabled")
	}
	logger.Info("smoke run prepared", "run_id", cfg.RunID, "start_time", cfg.StartTime)
}

// Probe visits each site once and logs whether it answered. Failures are
// logged only; the cases report them properly.
func Probe(factory PageFactory, env Env, logger *slog.Logger) {
	for _, site := range []struct {
		name string
		url  string
	}{
		{"main", env.MainURL},
		{"referral", env.ReferralURL},
	} {
		if site.url == "" {
			continue
		}
		page, release, err := factory.NewPage()
		if err != nil {
			logger.Warn("connectivity probe could not open page", "site", site.name, "error", err)
			return
		}
		p := pages.NewBasePage(page)
		if err := p.Goto(site.url); err != nil {
			logger.Warn("site unreachable", "site", site.name, "url", site.url, "error", err)
			release()
			continue
		}
		title, _ := p.Title()
		logger.Info("site reachable", "site", site.name, "url", site.url, "title", title)
		release()
	}
}
