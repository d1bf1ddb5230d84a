// Package config provides centralized configuration for the smoke suite, the
// run reporter, the report publishers and the monitor. It loads an optional
// .env file, reads environment variables once, and validates the keys each
// command needs before any work starts.
//
// Components never read the environment themselves; they receive the values
// they need from Config.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultReportOutput    = "test-results/results.json"
	defaultHTMLReportDir   = "playwright-report"
	defaultArchiveDir      = "test-results/archive"
	defaultSFTPRemoteDir   = "/var/www/html/reports/latest"
	defaultSFTPPort        = 22
	defaultWebhookTimeout  = 15 * time.Second
	defaultSmokeTimeout    = 30 * time.Second
	defaultMonitorInterval = 5 * time.Minute
)

// DefaultReportPaths are the report locations tried in order when
// REPORT_PATHS is not set. The first existing file wins.
var DefaultReportPaths = []string{
	"test-results/results.json",
	"playwright-report/results.json",
	"test-results/report.json",
	"test-results/playwright-report.json",
}

// Mode selects which keys Validate requires.
type Mode string

const (
	ModeSmoke       Mode = "smoke"
	ModeNotify      Mode = "notify"
	ModePublishS3   Mode = "publish-s3"
	ModePublishSFTP Mode = "publish-sftp"
	ModeMonitor     Mode = "monitor"
)

// Config holds all configuration.
type Config struct {
	// Sites under test
	MainSiteURL     string // MAIN_SITE_URL
	ReferralSiteURL string // REFERRAL_SITE_URL

	// Run metadata
	RunID     string     // TEST_RUN_ID
	StartTime *time.Time // TEST_START_TIME (RFC3339); nil when unknown

	// Report artifacts
	ReportPaths   []string // REPORT_PATHS, comma separated candidates
	ReportOutput  string   // REPORT_OUTPUT, where the smoke runner writes its report
	HTMLReportDir string   // HTML_REPORT_DIR
	ArchiveDir    string   // REPORT_ARCHIVE_DIR

	// Notifications
	WebhookURL      string        // TEAMS_WEBHOOK_URL
	SendEnabled     bool          // SEND_TEAMS feature flag (default true)
	FailureAnalysis bool          // TEAMS_FAILURE_ANALYSIS
	WebhookTimeout  time.Duration // WEBHOOK_TIMEOUT

	// Smoke runner
	Retries      int           // SMOKE_RETRIES
	SmokeTimeout time.Duration // SMOKE_TIMEOUT, per navigation/assertion
	Headed       bool          // SMOKE_HEADED

	// Monitor
	MonitorInterval time.Duration // MONITOR_INTERVAL

	// Escalation email for critical monitor cycles
	ResendAPIKey   string   // RESEND_API_KEY
	AlertEmailFrom string   // ALERT_EMAIL_FROM, must be verified in Resend
	AlertEmailTo   []string // ALERT_EMAIL_TO, comma separated; empty disables
	EmailOutboxDir string   // EMAIL_OUTBOX_DIR, where -no-email writes captured mail

	// S3 (uses AWS_ env vars)
	AWSRegion           string // AWS_REGION
	AWSBucket           string // AWS_S3_BUCKET
	AWSReportPrefix     string // AWS_S3_REPORT_PREFIX
	AWSScreenshotPrefix string // AWS_S3_SCREENSHOT_PREFIX
	AWSAccessKeyID      string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey  string // AWS_SECRET_ACCESS_KEY
	AWSEndpointS3       string // AWS_ENDPOINT_URL_S3
	S3PublicURL         string // S3_PUBLIC_URL
	S3UsePathStyle      bool   // S3_USE_PATH_STYLE
	S3Prune             bool   // AWS_S3_PRUNE, delete stale keys under the report prefix
	PublishTarget       string // PUBLISH_TARGET: "", "s3" or "sftp"

	// SFTP
	SFTPHost      string // SFTP_HOST
	SFTPPort      int    // SFTP_PORT
	SFTPUser      string // SFTP_USER
	SFTPPassword  string // SFTP_PASS
	SFTPHostKey   string // SFTP_HOST_KEY, authorized_keys format; empty skips verification
	SFTPRemoteDir string // SFTP_REMOTE_DIR
	SFTPPublicURL string // SFTP_PUBLIC_URL
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// LoadDotEnv loads variables from the given .env files without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables. It does not validate;
// call ValidateFor with the command's mode.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.MainSiteURL = strings.TrimRight(strings.TrimSpace(os.Getenv("MAIN_SITE_URL")), "/")
	cfg.ReferralSiteURL = strings.TrimRight(strings.TrimSpace(os.Getenv("REFERRAL_SITE_URL")), "/")

	cfg.RunID = strings.TrimSpace(os.Getenv("TEST_RUN_ID"))
	if raw := strings.TrimSpace(os.Getenv("TEST_START_TIME")); raw != "" {
		start, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, &ValidationError{Errors: []string{fmt.Sprintf("TEST_START_TIME must be RFC3339, got %q", raw)}}
		}
		cfg.StartTime = &start
	}

	cfg.ReportPaths = parseListOrDefault("REPORT_PATHS", DefaultReportPaths)
	cfg.ReportOutput = getEnvOrDefault("REPORT_OUTPUT", defaultReportOutput)
	cfg.HTMLReportDir = getEnvOrDefault("HTML_REPORT_DIR", defaultHTMLReportDir)
	cfg.ArchiveDir = getEnvOrDefault("REPORT_ARCHIVE_DIR", defaultArchiveDir)

	cfg.WebhookURL = strings.TrimSpace(os.Getenv("TEAMS_WEBHOOK_URL"))
	cfg.SendEnabled = parseBoolOrDefault("SEND_TEAMS", true)
	cfg.FailureAnalysis = parseBoolOrDefault("TEAMS_FAILURE_ANALYSIS", false)
	cfg.WebhookTimeout = parseDurationOrDefault("WEBHOOK_TIMEOUT", defaultWebhookTimeout)

	cfg.Retries = parseIntOrDefault("SMOKE_RETRIES", 0)
	cfg.SmokeTimeout = parseDurationOrDefault("SMOKE_TIMEOUT", defaultSmokeTimeout)
	cfg.Headed = parseBoolOrDefault("SMOKE_HEADED", false)

	cfg.MonitorInterval = parseDurationOrDefault("MONITOR_INTERVAL", defaultMonitorInterval)

	cfg.ResendAPIKey = strings.TrimSpace(os.Getenv("RESEND_API_KEY"))
	cfg.AlertEmailFrom = strings.TrimSpace(os.Getenv("ALERT_EMAIL_FROM"))
	cfg.AlertEmailTo = parseListOrDefault("ALERT_EMAIL_TO", nil)
	cfg.EmailOutboxDir = strings.TrimSpace(os.Getenv("EMAIL_OUTBOX_DIR"))

	cfg.AWSRegion = strings.TrimSpace(os.Getenv("AWS_REGION"))
	cfg.AWSBucket = strings.TrimSpace(os.Getenv("AWS_S3_BUCKET"))
	cfg.AWSReportPrefix = strings.Trim(strings.TrimSpace(os.Getenv("AWS_S3_REPORT_PREFIX")), "/")
	cfg.AWSScreenshotPrefix = strings.Trim(strings.TrimSpace(os.Getenv("AWS_S3_SCREENSHOT_PREFIX")), "/")
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.S3PublicURL = strings.TrimRight(strings.TrimSpace(os.Getenv("S3_PUBLIC_URL")), "/")
	cfg.S3UsePathStyle = parseBoolOrDefault("S3_USE_PATH_STYLE", false)
	cfg.S3Prune = parseBoolOrDefault("AWS_S3_PRUNE", false)
	cfg.PublishTarget = strings.ToLower(strings.TrimSpace(os.Getenv("PUBLISH_TARGET")))

	cfg.SFTPHost = strings.TrimSpace(os.Getenv("SFTP_HOST"))
	cfg.SFTPPort = parseIntOrDefault("SFTP_PORT", defaultSFTPPort)
	cfg.SFTPUser = strings.TrimSpace(os.Getenv("SFTP_USER"))
	cfg.SFTPPassword = os.Getenv("SFTP_PASS")
	cfg.SFTPHostKey = strings.TrimSpace(os.Getenv("SFTP_HOST_KEY"))
	cfg.SFTPRemoteDir = getEnvOrDefault("SFTP_REMOTE_DIR", defaultSFTPRemoteDir)
	cfg.SFTPPublicURL = strings.TrimSpace(os.Getenv("SFTP_PUBLIC_URL"))

	return cfg, nil
}

// ValidateFor checks that every key the given mode needs is present.
// A missing webhook URL is never an error: it disables notifications.
func (c *Config) ValidateFor(mode Mode) error {
	var errs []string

	switch mode {
	case ModeSmoke, ModeMonitor:
		if c.MainSiteURL == "" {
			errs = append(errs, "MAIN_SITE_URL is required")
		}
		if c.ReferralSiteURL == "" {
			errs = append(errs, "REFERRAL_SITE_URL is required")
		}
		if c.Retries < 0 {
			errs = append(errs, "SMOKE_RETRIES must not be negative")
		}
		if c.SmokeTimeout <= 0 {
			errs = append(errs, "SMOKE_TIMEOUT must be positive")
		}
		if mode == ModeMonitor && c.MonitorInterval <= 0 {
			errs = append(errs, "MONITOR_INTERVAL must be positive")
		}
		if mode == ModeMonitor && c.ResendAPIKey != "" && len(c.AlertEmailTo) > 0 && c.AlertEmailFrom == "" {
			errs = append(errs, "ALERT_EMAIL_FROM is required when RESEND_API_KEY and ALERT_EMAIL_TO are set")
		}
		if mode == ModeSmoke {
			switch c.PublishTarget {
			case "":
			case "s3":
				errs = append(errs, c.s3Errors()...)
			case "sftp":
				errs = append(errs, c.sftpErrors()...)
			default:
				errs = append(errs, fmt.Sprintf("PUBLISH_TARGET must be s3 or sftp, got %q", c.PublishTarget))
			}
		}
	case ModeNotify:
		if len(c.ReportPaths) == 0 {
			errs = append(errs, "REPORT_PATHS must name at least one candidate")
		}
	case ModePublishS3:
		errs = append(errs, c.s3Errors()...)
	case ModePublishSFTP:
		errs = append(errs, c.sftpErrors()...)
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if c.WebhookTimeout <= 0 {
		errs = append(errs, "WEBHOOK_TIMEOUT must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func (c *Config) s3Errors() []string {
	var errs []string
	if c.AWSBucket == "" {
		errs = append(errs, "AWS_S3_BUCKET is required")
	}
	if c.AWSRegion == "" {
		errs = append(errs, "AWS_REGION is required")
	}
	if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
		errs = append(errs, "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
	}
	return errs
}

func (c *Config) sftpErrors() []string {
	var errs []string
	if c.SFTPHost == "" {
		errs = append(errs, "SFTP_HOST is required")
	}
	if c.SFTPUser == "" {
		errs = append(errs, "SFTP_USER is required")
	}
	if c.SFTPPassword == "" {
		errs = append(errs, "SFTP_PASS is required")
	}
	if c.SFTPPort <= 0 || c.SFTPPort > 65535 {
		errs = append(errs, "SFTP_PORT must be between 1 and 65535")
	}
	if !strings.HasPrefix(c.SFTPRemoteDir, "/") {
		errs = append(errs, "SFTP_REMOTE_DIR must be absolute")
	} else if remoteDirDepth(c.SFTPRemoteDir) < 2 {
		errs = append(errs, "SFTP_REMOTE_DIR must be at least two levels deep; it is cleared on every publish")
	}
	return errs
}

// remoteDirDepth counts the non-empty segments of a slash path after cleaning.
func remoteDirDepth(dir string) int {
	n := 0
	for _, seg := range strings.Split(path.Clean(dir), "/") {
		if seg != "" && seg != "." && seg != ".." {
			n++
		}
	}
	return n
}

// NotificationsEnabled reports whether the reporter should attempt delivery.
func (c *Config) NotificationsEnabled() bool {
	return c.SendEnabled && c.WebhookURL != ""
}

// S3PublicBase returns the base URL under which uploaded objects are served.
func (c *Config) S3PublicBase() string {
	if c.S3PublicURL != "" {
		return c.S3PublicURL
	}
	if c.AWSEndpointS3 != "" {
		return strings.TrimRight(c.AWSEndpointS3, "/") + "/" + c.AWSBucket
	}
	if c.AWSBucket == "" || c.AWSRegion == "" {
		return ""
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", c.AWSBucket, c.AWSRegion)
}

// ReportURL returns the public URL of the uploaded HTML report, or "" when
// no publisher is configured.
func (c *Config) ReportURL() string {
	if c.SFTPPublicURL != "" && c.PublishTarget == "sftp" {
		return c.SFTPPublicURL
	}
	base := c.S3PublicBase()
	if base == "" {
		return c.SFTPPublicURL
	}
	if c.AWSReportPrefix == "" {
		return base + "/index.html"
	}
	return base + "/" + c.AWSReportPrefix + "/index.html"
}

// reportAssetDir is the report subdirectory that holds copied screenshots.
const reportAssetDir = "data"

// ScreenshotURL returns a builder that maps a screenshot file name to its
// public URL on the configured publish target, or nil when screenshots are
// not published anywhere reachable.
func (c *Config) ScreenshotURL() func(fileName string) string {
	var prefix string
	switch c.PublishTarget {
	case "sftp":
		if c.SFTPPublicURL == "" {
			return nil
		}
		prefix = reportBase(c.SFTPPublicURL) + "/" + reportAssetDir + "/"
	default:
		base := c.S3PublicBase()
		if base == "" {
			return nil
		}
		switch {
		case c.AWSScreenshotPrefix != "":
			prefix = base + "/" + strings.Trim(c.AWSScreenshotPrefix, "/") + "/"
		case c.AWSReportPrefix != "":
			prefix = base + "/" + strings.Trim(c.AWSReportPrefix, "/") + "/" + reportAssetDir + "/"
		default:
			prefix = base + "/" + reportAssetDir + "/"
		}
	}
	return func(fileName string) string {
		return prefix + fileName
	}
}

// reportBase strips a trailing page name from a report URL.
func reportBase(u string) string {
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndex(u, "/"); i > len("https://") && strings.HasSuffix(u, ".html") {
		return u[:i]
	}
	return u
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseListOrDefault(key string, defaultValue []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// MustLoad loads and validates configuration for mode and panics on failure.
// Use this in main() to fail fast on bad config.
func MustLoad(mode Mode) *Config {
	cfg, err := Load()
	if err == nil {
		err = cfg.ValidateFor(mode)
	}
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			panic(fmt.Sprintf("Configuration validation failed:\n  - %s", strings.Join(validationErr.Errors, "\n  - ")))
		}
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}
