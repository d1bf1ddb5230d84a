package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kuitang/sitesmoke/internal/obs"
	"github.com/kuitang/sitesmoke/internal/s3client"
	"github.com/kuitang/sitesmoke/internal/urlutil"
)

// ScreenshotDir is the report subdirectory holding screenshot attachments.
const ScreenshotDir = "data"

// S3Options controls key layout.
type S3Options struct {
	// ReportPrefix is prepended to every report key.
	ReportPrefix string
	// ScreenshotPrefix additionally receives the contents of the report's
	// data/ directory. Empty skips the second upload.
	ScreenshotPrefix string
	// Prune deletes keys under ReportPrefix that this publish did not write.
	// Ignored when ReportPrefix is empty.
	Prune bool
}

// S3Publisher uploads a report directory to a bucket.
type S3Publisher struct {
	client *s3client.Client
	opts   S3Options
	logger *slog.Logger
}

// NewS3 returns an S3Publisher. A nil logger discards diagnostics.
func NewS3(client *s3client.Client, opts S3Options, logger *slog.Logger) *S3Publisher {
	if logger == nil {
		logger = obs.Discard()
	}
	return &S3Publisher{client: client, opts: opts, logger: logger}
}

// Publish uploads every file under localDir to <ReportPrefix>/<rel>, then the
// files under localDir/data to <ScreenshotPrefix>/<rel>.
func (p *S3Publisher) Publish(ctx context.Context, localDir string) (Result, error) {
	res := Result{Target: TargetS3, URL: p.client.GetPublicURL(urlutil.JoinKey(p.opts.ReportPrefix, "index.html"))}

	files, err := listFiles(localDir)
	if err != nil {
		return res, err
	}
	written := make(map[string]bool, len(files))
	if err := p.upload(ctx, files, p.opts.ReportPrefix, &res, written); err != nil {
		return res, err
	}

	dataDir := filepath.Join(localDir, ScreenshotDir)
	if p.opts.ScreenshotPrefix != "" && urlutil.JoinKey(p.opts.ScreenshotPrefix) != urlutil.JoinKey(p.opts.ReportPrefix, ScreenshotDir) {
		if info, err := os.Stat(dataDir); err == nil && info.IsDir() {
			shots, err := listFiles(dataDir)
			if err != nil {
				return res, err
			}
			if err := p.upload(ctx, shots, p.opts.ScreenshotPrefix, &res, written); err != nil {
				return res, err
			}
		}
	}

	if p.opts.Prune && strings.Trim(p.opts.ReportPrefix, "/") != "" {
		if err := p.prune(ctx, written); err != nil {
			return res, err
		}
	}

	p.logger.Info("report published",
		"target", TargetS3,
		"bucket", p.client.BucketName(),
		"files", res.Files,
		"bytes", res.Bytes,
		"url", res.URL,
	)
	return res, nil
}

func (p *S3Publisher) upload(ctx context.Context, files []localFile, prefix string, res *Result, written map[string]bool) error {
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := urlutil.JoinKey(prefix, f.rel)
		n, err := p.client.UploadFile(ctx, key, f.path)
		if err != nil {
			p.logger.Error("upload failed; earlier uploads are kept",
				"key", key,
				"uploaded", res.Files,
				"error", err,
			)
			return fmt.Errorf("publish: %w", err)
		}
		written[key] = true
		res.Files++
		res.Bytes += int64(n)
		p.logger.Debug("uploaded", "key", key, "bytes", n)
	}
	return nil
}

func (p *S3Publisher) prune(ctx context.Context, written map[string]bool) error {
	prefix := urlutil.JoinKey(p.opts.ReportPrefix) + "/"
	keys, err := p.client.ListKeys(ctx, prefix)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	removed := 0
	for _, k := range keys {
		if written[k] {
			continue
		}
		if err := p.client.DeleteObject(ctx, k); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		removed++
	}
	if removed > 0 {
		p.logger.Info("pruned stale report objects", "prefix", prefix, "removed", removed)
	}
	return nil
}
