// Command publish-report uploads the rendered HTML report directory to S3 or
// to a web server over SFTP.
//
// Usage:
//
//	go run ./cmd/publish-report -target s3 [-dir playwright-report]
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/kuitang/sitesmoke/internal/config"
	"github.com/kuitang/sitesmoke/internal/obs"
	"github.com/kuitang/sitesmoke/internal/publish"
)

func main() {
	target := flag.String("target", "", "s3 or sftp; defaults to PUBLISH_TARGET")
	dir := flag.String("dir", "", "report directory; defaults to HTML_REPORT_DIR")
	flag.Parse()

	obs.Init()
	logger := obs.Pkg("publish")

	if err := config.LoadDotEnv(); err != nil {
		logger.Error("load .env", "error", err)
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	if *target == "" {
		*target = cfg.PublishTarget
	}
	if *dir == "" {
		*dir = cfg.HTMLReportDir
	}

	var mode config.Mode
	switch *target {
	case publish.TargetS3:
		mode = config.ModePublishS3
	case publish.TargetSFTP:
		mode = config.ModePublishSFTP
	default:
		logger.Error("unknown publish target; use -target s3 or -target sftp", "target", *target)
		os.Exit(2)
	}
	if err := cfg.ValidateFor(mode); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = obs.WithCorrelation(ctx, obs.Correlation{RunID: cfg.RunID, Command: "publish-report"})
	logger = obs.From(ctx).With("pkg", "publish")

	pub, err := publish.FromConfig(ctx, cfg, *target, logger)
	if err != nil {
		logger.Error("build publisher", "target", *target, "error", err)
		os.Exit(1)
	}
	res, err := pub.Publish(ctx, *dir)
	if err != nil {
		logger.Error("publish report", "target", *target, "dir", *dir, "files", res.Files, "error", err)
		os.Exit(1)
	}
	logger.Info("report published", "target", res.Target, "files", res.Files, "bytes", res.Bytes, "url", res.URL)
}
