package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kuitang/sitesmoke/internal/errs"
	"github.com/kuitang/sitesmoke/internal/obs"
)

// MaxSuiteDepth bounds suite nesting during flattening. Suites nested deeper
// are skipped with a warning.
const MaxSuiteDepth = 64

// Load reads the first candidate path that exists and decodes it.
//
// When no candidate exists the error carries errs.ReportMissing; when the
// chosen file cannot be read or decoded it carries errs.ReportInvalid. Both
// are expected conditions for callers, not process failures.
func Load(paths []string) (*RunReport, string, error) {
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, p, errs.Wrap(errs.ReportInvalid, "stat report "+p, err)
		}
		if info.IsDir() {
			continue
		}
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, p, errs.Wrap(errs.ReportInvalid, "read report "+p, err)
		}
		r, err := Decode(raw)
		if err != nil {
			return nil, p, errs.Wrap(errs.ReportInvalid, "decode report "+p, err)
		}
		return r, p, nil
	}
	return nil, "", errs.New(errs.ReportMissing, fmt.Sprintf("no report at any of %d candidate paths", len(paths)))
}

// Decode parses a JSON run report.
func Decode(raw []byte) (*RunReport, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, errors.New("empty report")
	}
	var r RunReport
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	r.raw = raw
	return &r, nil
}

// Aggregator flattens run reports into outcomes.
type Aggregator struct {
	logger   *slog.Logger
	maxDepth int
}

// NewAggregator returns an Aggregator logging through logger. A nil logger
// discards diagnostics.
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = obs.Discard()
	}
	return &Aggregator{logger: logger, maxDepth: MaxSuiteDepth}
}

// Flatten returns one Outcome per (spec, attempt) pair in source order:
// depth-first over suites with a suite's child suites before its own specs,
// specs in listed order, tests in listed order, attempts in retry order.
// A nil report yields an empty slice.
func (a *Aggregator) Flatten(r *RunReport) []Outcome {
	out := []Outcome{}
	if r == nil {
		return out
	}
	for i := range r.Suites {
		out = a.collect(out, &r.Suites[i], 1)
	}
	return out
}

func (a *Aggregator) collect(out []Outcome, s *Suite, depth int) []Outcome {
	if depth > a.maxDepth {
		a.logger.Warn("suite nesting exceeds limit; skipping subtree",
			"suite", s.Title,
			"depth", depth,
			"max_depth", a.maxDepth,
		)
		return out
	}
	for i := range s.Suites {
		out = a.collect(out, &s.Suites[i], depth+1)
	}
	for _, spec := range s.Specs {
		for _, test := range spec.Tests {
			for _, res := range test.Results {
				out = append(out, Outcome{
					Title:       spec.Title,
					File:        spec.File,
					Line:        spec.Line,
					Project:     test.ProjectName,
					Retry:       res.Retry,
					Duration:    time.Duration(res.Duration) * time.Millisecond,
					Status:      res.Status,
					Error:       res.ErrorText(),
					Attachments: res.Attachments,
					IsFailure:   res.Status.IsFailure(),
				})
			}
		}
	}
	return out
}

// Flatten flattens r without diagnostics.
func Flatten(r *RunReport) []Outcome {
	return NewAggregator(nil).Flatten(r)
}

// Counts tallies outcomes by status.
type Counts struct {
	Passed  int
	Failed  int
	Skipped int
}

// Total is the number of tallied outcomes.
func (c Counts) Total() int {
	return c.Passed + c.Failed + c.Skipped
}

// PassPercent formats Passed/Total*100 with one decimal, rounding halves
// up, and "0.0" for an empty run.
func (c Counts) PassPercent() string {
	total := c.Total()
	if total == 0 {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", math.Round(float64(c.Passed)*1000/float64(total))/10)
}

// Tally counts outcomes. Statuses other than passed and skipped count as failed.
func Tally(outcomes []Outcome) Counts {
	var c Counts
	for _, o := range outcomes {
		switch o.Status {
		case StatusPassed:
			c.Passed++
		case StatusSkipped:
			c.Skipped++
		default:
			c.Failed++
		}
	}
	return c
}

// Failures returns the outcomes marked as failures, in order.
func Failures(outcomes []Outcome) []Outcome {
	var out []Outcome
	for _, o := range outcomes {
		if o.IsFailure {
			out = append(out, o)
		}
	}
	return out
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Archive writes raw into dir as <runID>-results.json and returns the path.
func Archive(dir, runID string, raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", errs.New(errs.InvalidArgument, "archive: empty report")
	}
	name := unsafeFileChars.ReplaceAllString(strings.TrimSpace(runID), "_")
	if name == "" || strings.Trim(name, "._") == "" {
		name = "unknown"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create archive dir: %w", err)
	}
	dst := filepath.Join(dir, name+"-results.json")
	if err := os.WriteFile(dst, raw, 0o644); err != nil {
		return "", fmt.Errorf("report: write archive: %w", err)
	}
	return dst, nil
}

// Write encodes r as indented JSON at path, creating parent directories.
func Write(path string, r *RunReport) ([]byte, error) {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("report: create output dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return nil, fmt.Errorf("report: write %s: %w", path, err)
	}
	return raw, nil
}
