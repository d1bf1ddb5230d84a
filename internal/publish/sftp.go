package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/kuitang/sitesmoke/internal/errs"
	"github.com/kuitang/sitesmoke/internal/obs"
)

const (
	DefaultSFTPRemoteDir = "/var/www/html/reports/latest"
	defaultSFTPTimeout   = 30 * time.Second
)

// SFTPOptions configures the SFTP publisher.
type SFTPOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	// HostKey pins the server key, in authorized_keys format. Empty accepts
	// any key and logs a warning.
	HostKey   string
	RemoteDir string
	PublicURL string
	Timeout   time.Duration
}

// SFTPPublisher mirrors a report directory onto a web server over SFTP.
type SFTPPublisher struct {
	opts   SFTPOptions
	logger *slog.Logger
}

// NewSFTP returns an SFTPPublisher. A nil logger discards diagnostics.
func NewSFTP(opts SFTPOptions, logger *slog.Logger) *SFTPPublisher {
	if logger == nil {
		logger = obs.Discard()
	}
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.RemoteDir == "" {
		opts.RemoteDir = DefaultSFTPRemoteDir
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultSFTPTimeout
	}
	return &SFTPPublisher{opts: opts, logger: logger}
}

// minRemoteDepth is the fewest path segments a remote dir may have. Mirror
// deletes the remote dir's whole tree first.
const minRemoteDepth = 2

// checkRemoteDir rejects relative dirs and dirs too close to the root.
func checkRemoteDir(dir string) (string, error) {
	clean := path.Clean(dir)
	if !path.IsAbs(clean) {
		return "", errs.New(errs.InvalidArgument, fmt.Sprintf("publish: remote dir %q is not absolute", dir))
	}
	if depth := len(strings.Split(strings.Trim(clean, "/"), "/")); clean == "/" || depth < minRemoteDepth {
		return "", errs.New(errs.InvalidArgument, fmt.Sprintf("publish: refusing to clear remote dir %q", dir))
	}
	return clean, nil
}

// Publish connects, replaces the remote directory with the contents of
// localDir and disconnects.
func (p *SFTPPublisher) Publish(ctx context.Context, localDir string) (Result, error) {
	if _, err := checkRemoteDir(p.opts.RemoteDir); err != nil {
		return Result{Target: TargetSFTP}, err
	}
	client, closeFn, err := p.dial(ctx)
	if err != nil {
		return Result{Target: TargetSFTP}, err
	}
	defer closeFn()
	return p.Mirror(ctx, client, localDir)
}

// Mirror clears the remote directory, recreates it and uploads every file
// under localDir into it.
func (p *SFTPPublisher) Mirror(ctx context.Context, client *sftp.Client, localDir string) (Result, error) {
	res := Result{Target: TargetSFTP, URL: p.opts.PublicURL}
	remoteDir, err := checkRemoteDir(p.opts.RemoteDir)
	if err != nil {
		return res, err
	}

	files, err := listFiles(localDir)
	if err != nil {
		return res, err
	}
	if err := removeTree(client, remoteDir); err != nil {
		return res, fmt.Errorf("publish: clear %s: %w", remoteDir, err)
	}
	if err := client.MkdirAll(remoteDir); err != nil {
		return res, fmt.Errorf("publish: mkdir %s: %w", remoteDir, err)
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		remote := path.Join(remoteDir, f.rel)
		if dir := path.Dir(remote); dir != remoteDir {
			if err := client.MkdirAll(dir); err != nil {
				return res, fmt.Errorf("publish: mkdir %s: %w", dir, err)
			}
		}
		n, err := putFile(client, f.path, remote)
		if err != nil {
			p.logger.Error("upload failed; earlier uploads are kept",
				"remote", remote,
				"uploaded", res.Files,
				"error", err,
			)
			return res, fmt.Errorf("publish: %w", err)
		}
		res.Files++
		res.Bytes += n
		p.logger.Debug("uploaded", "remote", remote, "bytes", n)
	}

	p.logger.Info("report published",
		"target", TargetSFTP,
		"host", p.opts.Host,
		"remote_dir", remoteDir,
		"files", res.Files,
		"bytes", res.Bytes,
		"url", res.URL,
	)
	return res, nil
}

func (p *SFTPPublisher) dial(ctx context.Context) (*sftp.Client, func(), error) {
	hostKeyCallback, err := p.hostKeyCallback()
	if err != nil {
		return nil, nil, err
	}
	addr := net.JoinHostPort(p.opts.Host, strconv.Itoa(p.opts.Port))
	sshCfg := &ssh.ClientConfig{
		User:            p.opts.User,
		Auth:            []ssh.AuthMethod{ssh.Password(p.opts.Password)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         p.opts.Timeout,
	}

	d := net.Dialer{Timeout: p.opts.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("publish: dial %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("publish: ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(c, chans, reqs)
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("publish: start sftp session: %w", err)
	}
	return client, func() {
		client.Close()
		sshClient.Close()
	}, nil
}

func (p *SFTPPublisher) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if p.opts.HostKey == "" {
		p.logger.Warn("SFTP_HOST_KEY not set; server host key is not verified", "host", p.opts.Host)
		return ssh.InsecureIgnoreHostKey(), nil
	}
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(p.opts.HostKey))
	if err != nil {
		return nil, fmt.Errorf("publish: parse SFTP_HOST_KEY: %w", err)
	}
	return ssh.FixedHostKey(key), nil
}

// removeTree deletes dir and everything below it. A missing dir is not an error.
func removeTree(client *sftp.Client, dir string) error {
	if _, err := client.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	entries, err := client.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		child := path.Join(dir, e.Name())
		if e.IsDir() {
			if err := removeTree(client, child); err != nil {
				return err
			}
			continue
		}
		if err := client.Remove(child); err != nil {
			return err
		}
	}
	return client.RemoveDirectory(dir)
}

func putFile(client *sftp.Client, localPath, remotePath string) (int64, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := client.Create(remotePath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", remotePath, err)
	}
	n, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("write %s: %w", remotePath, err)
	}
	return n, nil
}
