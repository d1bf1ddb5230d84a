// Command monitor checks the critical user flows of both sites and alerts the
// chat webhook when any of them degrade.
//
// Usage:
//
//	go run ./cmd/monitor [-mode single|continuous] [-metrics-addr :9102]
//
// In single mode the exit status is 1 when the cycle is critical.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kuitang/sitesmoke/internal/config"
	"github.com/kuitang/sitesmoke/internal/email"
	"github.com/kuitang/sitesmoke/internal/monitor"
	"github.com/kuitang/sitesmoke/internal/notify"
	"github.com/kuitang/sitesmoke/internal/obs"
	"github.com/kuitang/sitesmoke/internal/smoke"
)

func main() {
	mode := flag.String("mode", "continuous", "single or continuous")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address; empty disables")
	install := flag.Bool("install-browsers", false, "download the Chromium build before running")
	noEmail := flag.Bool("no-email", false, "capture escalation email in EMAIL_OUTBOX_DIR instead of sending it")
	flag.Parse()

	obs.Init()
	logger := obs.Pkg("monitor")

	if *mode != "single" && *mode != "continuous" {
		logger.Error("unknown mode; use single or continuous", "mode", *mode)
		os.Exit(2)
	}
	if err := config.LoadDotEnv(); err != nil {
		logger.Error("load .env", "error", err)
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err == nil {
		err = cfg.ValidateFor(config.ModeMonitor)
	}
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, *mode, *metricsAddr, *install, *noEmail)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, mode, metricsAddr string, install, noEmail bool) int {
	ctx = obs.WithCorrelation(ctx, obs.Correlation{Command: "monitor"})
	logger := obs.From(ctx).With("pkg", "monitor")

	mailer, err := newMailer(cfg, noEmail, logger)
	if err != nil {
		logger.Error("set up escalation email", "error", err)
		return 2
	}

	reg := prometheus.NewRegistry()
	metrics := monitor.NewMetrics(reg)
	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", "addr", metricsAddr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("serving metrics", "addr", metricsAddr)
	}

	browser, err := smoke.Launch(smoke.LaunchOptions{
		Headed:  cfg.Headed,
		Timeout: cfg.SmokeTimeout,
		Install: install,
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

	m := monitor.New(browser,
		notify.NewSender(&http.Client{Timeout: cfg.WebhookTimeout}, logger),
		metrics,
		monitor.Options{
			Env:         smoke.Env{MainURL: cfg.MainSiteURL, ReferralURL: cfg.ReferralSiteURL},
			WebhookURL:  cfg.WebhookURL,
			SendEnabled: cfg.SendEnabled,
			Interval:    cfg.MonitorInterval,
			Mailer:      mailer,
			EmailTo:     cfg.AlertEmailTo,
		},
		logger,
	)

	if mode == "continuous" {
		if err := m.Continuous(ctx); err != nil {
			logger.Error("continuous monitoring", "error", err)
			return 1
		}
		return 0
	}

	r, err := m.Single(ctx)
	if err != nil {
		logger.Error("monitor cycle failed", "error", err)
		return 1
	}
	if r.Status == monitor.HealthCritical {
		return 1
	}
	return 0
}

func newMailer(cfg *config.Config, noEmail bool, logger *slog.Logger) (email.Sender, error) {
	if len(cfg.AlertEmailTo) == 0 {
		return nil, nil
	}
	if noEmail {
		return email.NewOutbox(cfg.EmailOutboxDir, logger.With("pkg", "email"))
	}
	if cfg.ResendAPIKey == "" {
		logger.Warn("ALERT_EMAIL_TO set without RESEND_API_KEY; escalation email disabled")
		return nil, nil
	}
	return email.NewResend(cfg.ResendAPIKey, cfg.AlertEmailFrom), nil
}
