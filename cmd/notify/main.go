// Command notify loads the latest smoke run report and posts its summary card
// to the chat webhook. It always exits 0 once configuration is valid: a
// missing report or a failed delivery is logged, never fatal.
//
// Usage:
//
//	go run ./cmd/notify [-report test-results/results.json]
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kuitang/sitesmoke/internal/config"
	"github.com/kuitang/sitesmoke/internal/notify"
	"github.com/kuitang/sitesmoke/internal/obs"
)

func main() {
	reportPath := flag.String("report", "", "report file to try before the configured candidates")
	flag.Parse()

	obs.Init()
	logger := obs.Pkg("notify")

	if err := config.LoadDotEnv(); err != nil {
		logger.Error("load .env", "error", err)
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err == nil {
		err = cfg.ValidateFor(config.ModeNotify)
	}
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = obs.WithCorrelation(ctx, obs.Correlation{RunID: cfg.RunID, Command: "notify"})
	logger = obs.From(ctx).With("pkg", "notify")

	rcfg := notify.ReporterConfigFrom(cfg)
	if *reportPath != "" {
		rcfg.ReportPaths = append([]string{*reportPath}, rcfg.ReportPaths...)
	}
	sender := notify.NewSender(&http.Client{Timeout: cfg.WebhookTimeout}, logger)
	res := notify.NewReporter(rcfg, sender, logger).Run(ctx)
	logger.Info("notification finished", "state", res.State, "report", res.ReportPath)
}
