// Package report models the JSON run report written by the smoke runner (the
// Playwright JSON reporter layout) and flattens it into per-attempt outcomes.
package report

import (
	"strings"
	"time"
)

// Status is the outcome of a single test attempt.
type Status string

const (
	StatusPassed      Status = "passed"
	StatusFailed      Status = "failed"
	StatusSkipped     Status = "skipped"
	StatusTimedOut    Status = "timedOut"
	StatusInterrupted Status = "interrupted"
)

// IsFailure reports whether s counts as a failure. Anything that is neither
// passed nor skipped is a failure, including timedOut and unknown statuses.
func (s Status) IsFailure() bool {
	return s != StatusPassed && s != StatusSkipped
}

// RunReport is the root of one run's report.
type RunReport struct {
	Config map[string]any `json:"config,omitempty"`
	Suites []Suite        `json:"suites"`
	Errors []ReportError  `json:"errors,omitempty"`
	Stats  Stats          `json:"stats"`

	raw []byte
}

// Raw returns the bytes the report was decoded from, or nil for reports
// built in memory.
func (r *RunReport) Raw() []byte {
	if r == nil {
		return nil
	}
	return r.raw
}

// Stats is the run-level summary the runner writes next to the suites.
type Stats struct {
	StartTime  string  `json:"startTime,omitempty"`
	Duration   float64 `json:"duration"`
	Expected   int     `json:"expected"`
	Skipped    int     `json:"skipped"`
	Unexpected int     `json:"unexpected"`
	Flaky      int     `json:"flaky"`
}

// Suite groups specs. Suites nest arbitrarily.
type Suite struct {
	Title  string  `json:"title"`
	File   string  `json:"file,omitempty"`
	Line   int     `json:"line,omitempty"`
	Column int     `json:"column,omitempty"`
	Suites []Suite `json:"suites,omitempty"`
	Specs  []Spec  `json:"specs,omitempty"`
}

// Spec is one declared test case.
type Spec struct {
	ID     string   `json:"id,omitempty"`
	Title  string   `json:"title"`
	File   string   `json:"file"`
	Line   int      `json:"line"`
	Column int      `json:"column,omitempty"`
	OK     bool     `json:"ok"`
	Tags   []string `json:"tags,omitempty"`
	Tests  []Test   `json:"tests"`
}

// Test is a spec executed in one project. Results holds one entry per attempt.
type Test struct {
	ProjectName    string       `json:"projectName,omitempty"`
	ExpectedStatus Status       `json:"expectedStatus,omitempty"`
	Status         string       `json:"status,omitempty"`
	Annotations    []Annotation `json:"annotations,omitempty"`
	Results        []Result     `json:"results"`
}

// Annotation is a free-form note attached to a test (for example "skip").
type Annotation struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Result is one attempt of a test.
type Result struct {
	WorkerIndex int           `json:"workerIndex"`
	Retry       int           `json:"retry"`
	Status      Status        `json:"status"`
	Duration    int64         `json:"duration"` // milliseconds
	StartTime   string        `json:"startTime,omitempty"`
	Error       *ReportError  `json:"error,omitempty"`
	Errors      []ReportError `json:"errors,omitempty"`
	Attachments []Attachment  `json:"attachments,omitempty"`
}

// ErrorText returns the attempt's error message, falling back to the first
// entry of Errors.
func (r Result) ErrorText() string {
	if r.Error != nil && r.Error.Message != "" {
		return r.Error.Message
	}
	if len(r.Errors) > 0 {
		return r.Errors[0].Message
	}
	return ""
}

// ReportError is an error recorded by the runner.
type ReportError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Category is the display category of an attachment.
type Category string

const (
	CategoryNone       Category = ""
	CategoryScreenshot Category = "screenshot"
	CategoryLog        Category = "log"
)

// Attachment is a file recorded for an attempt.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Path        string `json:"path,omitempty"`
	Body        string `json:"body,omitempty"`
}

// IsScreenshot reports whether the attachment is a stored screenshot.
func (a Attachment) IsScreenshot() bool {
	return a.Path != "" && strings.Contains(strings.ToLower(a.Name), string(CategoryScreenshot))
}

// IsLog reports whether the attachment is a stored log.
func (a Attachment) IsLog() bool {
	return a.Path != "" && strings.Contains(strings.ToLower(a.Name), string(CategoryLog))
}

// Category returns the attachment's display category. The two predicates are
// independent; screenshot wins when both match.
func (a Attachment) Category() Category {
	switch {
	case a.IsScreenshot():
		return CategoryScreenshot
	case a.IsLog():
		return CategoryLog
	default:
		return CategoryNone
	}
}

// Outcome is one (spec, attempt) pair flattened out of a RunReport.
type Outcome struct {
	Title       string
	File        string
	Line        int
	Project     string
	Retry       int
	Duration    time.Duration
	Status      Status
	Error       string
	Attachments []Attachment
	IsFailure   bool
}

// Screenshots returns the outcome's screenshot attachments.
func (o Outcome) Screenshots() []Attachment {
	return o.attachmentsWhere(Attachment.IsScreenshot)
}

// Logs returns the outcome's log attachments.
func (o Outcome) Logs() []Attachment {
	return o.attachmentsWhere(Attachment.IsLog)
}

func (o Outcome) attachmentsWhere(match func(Attachment) bool) []Attachment {
	var out []Attachment
	for _, a := range o.Attachments {
		if match(a) {
			out = append(out, a)
		}
	}
	return out
}
