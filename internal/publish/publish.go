// Package publish uploads a rendered HTML report directory to where the team
// reads it: an S3 bucket or a web server reachable over SFTP.
//
// Uploads are sequential. A failed upload stops the walk and leaves earlier
// uploads in place.
package publish

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kuitang/sitesmoke/internal/config"
	"github.com/kuitang/sitesmoke/internal/errs"
	"github.com/kuitang/sitesmoke/internal/s3client"
)

const (
	TargetS3   = "s3"
	TargetSFTP = "sftp"
)

// Result summarizes one publish.
type Result struct {
	Target string
	Files  int
	Bytes  int64
	URL    string
}

// Publisher uploads a local report directory.
type Publisher interface {
	Publish(ctx context.Context, localDir string) (Result, error)
}

// FromConfig builds the publisher for target from configuration.
func FromConfig(ctx context.Context, cfg *config.Config, target string, logger *slog.Logger) (Publisher, error) {
	switch target {
	case TargetS3:
		if cfg.AWSBucket == "" {
			return nil, errs.New(errs.NotConfigured, "publish: AWS_S3_BUCKET not set")
		}
		client, err := s3client.New(ctx, s3client.Config{
			Endpoint:        cfg.AWSEndpointS3,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			BucketName:      cfg.AWSBucket,
			PublicURL:       cfg.S3PublicBase(),
			UsePathStyle:    cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("publish: %w", err)
		}
		return NewS3(client, S3Options{
			ReportPrefix:     cfg.AWSReportPrefix,
			ScreenshotPrefix: cfg.AWSScreenshotPrefix,
			Prune:            cfg.S3Prune,
		}, logger), nil
	case TargetSFTP:
		if cfg.SFTPHost == "" {
			return nil, errs.New(errs.NotConfigured, "publish: SFTP_HOST not set")
		}
		return NewSFTP(SFTPOptions{
			Host:      cfg.SFTPHost,
			Port:      cfg.SFTPPort,
			User:      cfg.SFTPUser,
			Password:  cfg.SFTPPassword,
			HostKey:   cfg.SFTPHostKey,
			RemoteDir: cfg.SFTPRemoteDir,
			PublicURL: cfg.SFTPPublicURL,
		}, logger), nil
	default:
		return nil, errs.New(errs.NotConfigured, fmt.Sprintf("publish: unknown target %q", target))
	}
}

type localFile struct {
	path string
	rel  string // slash-separated, relative to the walk root
	size int64
}

// listFiles returns the regular files under dir in lexical order.
func listFiles(dir string) ([]localFile, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("publish: report dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("publish: %s is not a directory", dir)
	}
	var files []localFile
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, localFile{path: p, rel: filepath.ToSlash(rel), size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("publish: walk %s: %w", dir, err)
	}
	return files, nil
}
