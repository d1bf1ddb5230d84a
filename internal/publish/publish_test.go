package publish

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/kuitang/sitesmoke/internal/config"
	"github.com/kuitang/sitesmoke/internal/errs"
	"github.com/kuitang/sitesmoke/internal/s3client"
)

// writeReportDir lays out a small rendered report.
func writeReportDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"index.html":          "<html>report</html>",
		"data/shot-1.png":     "png-bytes",
		"data/nested/log.txt": "console output",
	}
	for rel, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return dir
}

func TestS3Publish_UploadsReportAndScreenshots(t *testing.T) {
	client := s3client.TestClient(t, "reports")
	ctx := context.Background()
	dir := writeReportDir(t)

	pub := NewS3(client, S3Options{ReportPrefix: "smoke/latest", ScreenshotPrefix: "smoke/screenshots"}, nil)
	res, err := pub.Publish(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, TargetS3, res.Target)
	assert.Equal(t, 5, res.Files)
	assert.Equal(t, client.GetPublicURL("smoke/latest/index.html"), res.URL)

	keys, err := client.ListKeys(ctx, "smoke/")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{
		"smoke/latest/data/nested/log.txt",
		"smoke/latest/data/shot-1.png",
		"smoke/latest/index.html",
		"smoke/screenshots/nested/log.txt",
		"smoke/screenshots/shot-1.png",
	}, keys)

	assert.Equal(t, "text/html", s3client.ObjectContentType(t, client, "smoke/latest/index.html"))
}

func TestS3Publish_ScreenshotPrefixInsideReportIsNotDuplicated(t *testing.T) {
	client := s3client.TestClient(t, "reports")
	pub := NewS3(client, S3Options{ReportPrefix: "latest", ScreenshotPrefix: "latest/data"}, nil)
	res, err := pub.Publish(context.Background(), writeReportDir(t))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Files)
}

func TestS3Publish_PruneRemovesStaleKeys(t *testing.T) {
	client := s3client.TestClient(t, "reports")
	ctx := context.Background()
	require.NoError(t, client.PutObject(ctx, "latest/old.html", []byte("old"), "text/html"))
	require.NoError(t, client.PutObject(ctx, "keep/other.html", []byte("x"), "text/html"))

	pub := NewS3(client, S3Options{ReportPrefix: "latest", Prune: true}, nil)
	_, err := pub.Publish(ctx, writeReportDir(t))
	require.NoError(t, err)

	_, ok := s3client.ReadObject(t, client, "latest/old.html")
	assert.False(t, ok)
	_, ok = s3client.ReadObject(t, client, "keep/other.html")
	assert.True(t, ok)
}

func TestS3Publish_MissingDir(t *testing.T) {
	client := s3client.TestClient(t, "reports")
	_, err := NewS3(client, S3Options{}, nil).Publish(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestS3Publish_CanceledContextStopsWalk(t *testing.T) {
	client := s3client.TestClient(t, "reports")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewS3(client, S3Options{ReportPrefix: "latest"}, nil).Publish(ctx, writeReportDir(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Files)
}

// memSFTP returns a client talking to an in-memory SFTP server.
func memSFTP(t *testing.T) *sftp.Client {
	t.Helper()
	c1, c2 := net.Pipe()
	server := sftp.NewRequestServer(c1, sftp.InMemHandler())
	go func() { _ = server.Serve() }()

	client, err := sftp.NewClientPipe(c2, c2)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client
}

func readRemote(t *testing.T, client *sftp.Client, p string) string {
	t.Helper()
	f, err := client.Open(p)
	require.NoError(t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(b)
}

func TestSFTPMirror_ReplacesRemoteTree(t *testing.T) {
	client := memSFTP(t)
	ctx := context.Background()

	require.NoError(t, client.MkdirAll("/var/www/html/reports/latest/stale"))
	f, err := client.Create("/var/www/html/reports/latest/stale/old.html")
	require.NoError(t, err)
	_, _ = f.Write([]byte("old"))
	require.NoError(t, f.Close())

	pub := NewSFTP(SFTPOptions{Host: "reports.example.com", PublicURL: "http://reports.example.com/reports/latest/index.html"}, nil)
	res, err := pub.Mirror(ctx, client, writeReportDir(t))
	require.NoError(t, err)
	assert.Equal(t, TargetSFTP, res.Target)
	assert.Equal(t, 3, res.Files)
	assert.Equal(t, "http://reports.example.com/reports/latest/index.html", res.URL)

	assert.Equal(t, "<html>report</html>", readRemote(t, client, "/var/www/html/reports/latest/index.html"))
	assert.Equal(t, "console output", readRemote(t, client, "/var/www/html/reports/latest/data/nested/log.txt"))

	_, err = client.Stat("/var/www/html/reports/latest/stale/old.html")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSFTPMirror_CustomRemoteDir(t *testing.T) {
	client := memSFTP(t)
	pub := NewSFTP(SFTPOptions{Host: "h", RemoteDir: "/srv/reports/"}, nil)
	_, err := pub.Mirror(context.Background(), client, writeReportDir(t))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", readRemote(t, client, "/srv/reports/data/shot-1.png"))
}

func TestSFTPMirror_RefusesShallowRemoteDir(t *testing.T) {
	client := memSFTP(t)
	require.NoError(t, client.MkdirAll("/etc/app"))
	f, err := client.Create("/etc/app/settings.conf")
	require.NoError(t, err)
	_, _ = f.Write([]byte("keep me"))
	require.NoError(t, f.Close())

	for _, dir := range []string{"/", "/etc", "/etc/", "/srv/..", "relative/dir"} {
		pub := NewSFTP(SFTPOptions{Host: "h", RemoteDir: dir}, nil)
		res, err := pub.Mirror(context.Background(), client, writeReportDir(t))
		require.Error(t, err, dir)
		assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err), dir)
		assert.Equal(t, 0, res.Files, dir)
	}
	assert.Equal(t, "keep me", readRemote(t, client, "/etc/app/settings.conf"))
}

func TestSFTPPublish_RefusesRootBeforeDialing(t *testing.T) {
	p := NewSFTP(SFTPOptions{Host: "203.0.113.1", RemoteDir: "/", Timeout: time.Nanosecond}, nil)
	_, err := p.Publish(context.Background(), writeReportDir(t))
	require.Error(t, err)
	assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
}

func TestSFTP_HostKeyParsing(t *testing.T) {
	pubKey, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshKey, err := ssh.NewPublicKey(pubKey)
	require.NoError(t, err)

	pinned := NewSFTP(SFTPOptions{Host: "h", HostKey: string(ssh.MarshalAuthorizedKey(sshKey))}, nil)
	cb, err := pinned.hostKeyCallback()
	require.NoError(t, err)
	assert.NoError(t, cb("h:22", &net.TCPAddr{}, sshKey))

	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	otherKey, err := ssh.NewPublicKey(otherPub)
	require.NoError(t, err)
	assert.Error(t, cb("h:22", &net.TCPAddr{}, otherKey))

	_, err = NewSFTP(SFTPOptions{Host: "h", HostKey: "garbage"}, nil).hostKeyCallback()
	assert.Error(t, err)
}

func TestSFTP_Defaults(t *testing.T) {
	p := NewSFTP(SFTPOptions{Host: "h"}, nil)
	assert.Equal(t, 22, p.opts.Port)
	assert.Equal(t, DefaultSFTPRemoteDir, p.opts.RemoteDir)
}

func TestSFTPPublish_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	p := NewSFTP(SFTPOptions{Host: "127.0.0.1", Port: addr.Port, User: "u", Password: "p"}, nil)
	_, err = p.Publish(context.Background(), writeReportDir(t))
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	ctx := context.Background()

	_, err := FromConfig(ctx, &config.Config{}, TargetS3, nil)
	assert.Equal(t, errs.NotConfigured, errs.CodeOf(err))
	_, err = FromConfig(ctx, &config.Config{}, TargetSFTP, nil)
	assert.Equal(t, errs.NotConfigured, errs.CodeOf(err))
	_, err = FromConfig(ctx, &config.Config{}, "ftp", nil)
	assert.Equal(t, errs.NotConfigured, errs.CodeOf(err))
	assert.ErrorContains(t, err, `"ftp"`)

	p, err := FromConfig(ctx, &config.Config{SFTPHost: "h", SFTPPort: 2222, SFTPRemoteDir: "/srv/x"}, TargetSFTP, nil)
	require.NoError(t, err)
	require.IsType(t, &SFTPPublisher{}, p)
	assert.Equal(t, 2222, p.(*SFTPPublisher).opts.Port)

	p, err = FromConfig(ctx, &config.Config{AWSBucket: "b", AWSRegion: "us-east-1", AWSAccessKeyID: "k", AWSSecretAccessKey: "s"}, TargetS3, nil)
	require.NoError(t, err)
	assert.IsType(t, &S3Publisher{}, p)
}
