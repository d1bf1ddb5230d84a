// Command smoke runs the browser smoke suite against the main and referral
// sites, writes the JSON run report and the HTML report, then publishes the
// report and posts the run card.
//
// Usage:
//
//	go run ./cmd/smoke [-grep '@module:checkout'] [-install-browsers] [-headed] [-skip-teardown]
//
// Exit status is 1 when any case failed, 2 on a setup error.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kuitang/sitesmoke/internal/config"
	"github.com/kuitang/sitesmoke/internal/htmlreport"
	"github.com/kuitang/sitesmoke/internal/notify"
	"github.com/kuitang/sitesmoke/internal/obs"
	"github.com/kuitang/sitesmoke/internal/publish"
	"github.com/kuitang/sitesmoke/internal/report"
	"github.com/kuitang/sitesmoke/internal/smoke"
)

func main() {
	grep := flag.String("grep", "", "only run cases whose title or tags match this regexp")
	install := flag.Bool("install-browsers", false, "download the Chromium build before running")
	headed := flag.Bool("headed", false, "show the browser window")
	skipTeardown := flag.Bool("skip-teardown", false, "do not publish the report or post the run card")
	flag.Parse()

	obs.Init()
	logger := obs.Pkg("smoke")

	if err := config.LoadDotEnv(); err != nil {
		logger.Error("load .env", "error", err)
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err == nil {
		err = cfg.ValidateFor(config.ModeSmoke)
	}
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, options{
		grep:         *grep,
		install:      *install,
		headed:       *headed,
		skipTeardown: *skipTeardown,
	}, logger)
	stop()
	os.Exit(code)
}

type options struct {
	grep         string
	install      bool
	headed       bool
	skipTeardown bool
}

func run(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger) int {
	smoke.Prepare(cfg, time.Now(), logger)
	ctx = obs.WithCorrelation(ctx, obs.Correlation{RunID: cfg.RunID, Command: "smoke"})
	logger = obs.From(ctx).With("pkg", "smoke")

	cases, err := smoke.Filter(smoke.Cases(), opts.grep)
	if err != nil {
		logger.Error("bad -grep pattern", "error", err)
		return 2
	}
	if len(cases) == 0 {
		logger.Warn("no cases match", "grep", opts.grep)
	}

	browser, err := smoke.Launch(smoke.LaunchOptions{
		Headed:  cfg.Headed || opts.headed,
		Timeout: cfg.SmokeTimeout,
		Install: opts.install,
	})
	if err != nil {
		logger.Error("launch browser", "error", err)
		return 2
	}
	defer func() {
		if err := browser.Close(); err != nil {
			logger.Warn("close browser", "error", err)
		}
	}()

	env := smoke.Env{MainURL: cfg.MainSiteURL, ReferralURL: cfg.ReferralSiteURL}
	smoke.Probe(browser, env, logger)

	runner := smoke.NewRunner(browser, smoke.Options{
		Env:       env,
		Retries:   cfg.Retries,
		OutputDir: filepath.Join(filepath.Dir(cfg.ReportOutput), "artifacts"),
		RunID:     cfg.RunID,
	}, logger)
	rep, runErr := runner.Run(ctx, cases)
	if runErr != nil {
		logger.Warn("smoke run interrupted", "error", runErr)
	}

	if _, err := report.Write(cfg.ReportOutput, rep); err != nil {
		logger.Error("write run report", "error", err)
		return 2
	}
	logger.Info("run report written", "path", cfg.ReportOutput)

	duration := time.Since(*cfg.StartTime)
	if _, err := htmlreport.NewWriter(obs.From(ctx).With("pkg", "htmlreport")).Write(cfg.HTMLReportDir, htmlreport.Page{
		Title:     "Smoke Test Report",
		RunID:     cfg.RunID,
		Generated: time.Now(),
		Duration:  &duration,
		Outcomes:  report.Flatten(rep),
	}); err != nil {
		logger.Error("write html report", "error", err)
	}

	if !opts.skipTeardown {
		teardown(context.WithoutCancel(ctx), cfg)
	}

	if rep.Stats.Unexpected > 0 || runErr != nil {
		return 1
	}
	return 0
}

// teardown publishes the HTML report first so the card's report link is live
// when the card arrives.
func teardown(ctx context.Context, cfg *config.Config) {
	if cfg.PublishTarget != "" {
		plog := obs.From(ctx).With("pkg", "publish")
		pub, err := publish.FromConfig(ctx, cfg, cfg.PublishTarget, plog)
		if err != nil {
			plog.Error("build publisher", "target", cfg.PublishTarget, "error", err)
		} else if res, err := pub.Publish(ctx, cfg.HTMLReportDir); err != nil {
			plog.Error("publish report", "target", cfg.PublishTarget, "files", res.Files, "error", err)
		} else {
			plog.Info("report published", "target", res.Target, "files", res.Files, "bytes", res.Bytes, "url", res.URL)
		}
	}

	nlog := obs.From(ctx).With("pkg", "notify")
	rcfg := notify.ReporterConfigFrom(cfg)
	rcfg.ReportPaths = append([]string{cfg.ReportOutput}, cfg.ReportPaths...)
	sender := notify.NewSender(&http.Client{Timeout: cfg.WebhookTimeout}, nlog)
	res := notify.NewReporter(rcfg, sender, nlog).Run(ctx)
	nlog.Info("notification finished", "state", res.State)
}
