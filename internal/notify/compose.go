package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/kuitang/sitesmoke/internal/report"
	"github.com/kuitang/sitesmoke/internal/urlutil"
)

const (
	TitleFailure = "Smoke Test Failures"
	TitleSuccess = "Smoke Tests All Passed"

	reportActionName = "View Latest Test Report"
	analysisTopN     = 3
	dateLayout       = "2006-01-02 15:04:05 MST"
)

// RunMeta is the run context a card is built from.
type RunMeta struct {
	RunID     string
	StartTime *time.Time
	Now       time.Time
	ReportURL string
	// ScreenshotURL maps a screenshot's base file name to a public URL.
	// Nil leaves screenshot links out.
	ScreenshotURL func(fileName string) string
}

// Summary holds the derived numbers a card shows.
type Summary struct {
	Counts      report.Counts
	Total       int
	PassPercent string
	Duration    *time.Duration
	Date        time.Time
	Failures    []report.Outcome
}

// HasFailures reports whether the run has at least one failing outcome.
func (s Summary) HasFailures() bool {
	return len(s.Failures) > 0
}

// Summarize derives counts, pass percentage and duration from outcomes.
func Summarize(outcomes []report.Outcome, meta RunMeta) Summary {
	counts := report.Tally(outcomes)
	s := Summary{
		Counts:      counts,
		Total:       counts.Total(),
		PassPercent: counts.PassPercent(),
		Date:        meta.Now,
		Failures:    report.Failures(outcomes),
	}
	if meta.StartTime != nil {
		d := meta.Now.Sub(*meta.StartTime).Round(time.Second)
		if d < 0 {
			d = 0
		}
		s.Duration = &d
		s.Date = *meta.StartTime
	}
	return s
}

// Composer builds run cards.
type Composer struct {
	// FailureAnalysis adds triage sections for critical and high failures.
	FailureAnalysis bool
}

// Compose builds the card for a run.
func (c Composer) Compose(s Summary, meta RunMeta) Card {
	failed := s.HasFailures()
	title, color := TitleSuccess, ColorSuccess
	if failed {
		title, color = TitleFailure, ColorFailure
	}
	card := NewCard(title, color)
	card.Sections = append(card.Sections, summarySection(s, meta))
	if failed {
		card.Sections = append(card.Sections, failureSection(s.Failures, meta.ScreenshotURL))
		if c.FailureAnalysis {
			card.Sections = append(card.Sections, analysisSections(s.Failures)...)
		}
	}
	if meta.ReportURL != "" {
		card.PotentialAction = []Action{OpenURI(reportActionName, meta.ReportURL)}
	}
	return card
}

func summarySection(s Summary, meta RunMeta) Section {
	date := s.Date.UTC().Format(dateLayout)

	var text strings.Builder
	if meta.ReportURL != "" {
		fmt.Fprintf(&text, "**[View Detailed HTML Report](%s)**\n\n", meta.ReportURL)
	}
	activity := "Smoke Run - All Green"
	if s.HasFailures() {
		activity = "Smoke Run - Issues Detected"
		text.WriteString("**Issues detected in this run. Please review the failures below.**")
	} else {
		text.WriteString("All tests passed. No issues detected.")
	}

	facts := []Fact{
		{Name: "Passed", Value: fmt.Sprint(s.Counts.Passed)},
		{Name: "Failed", Value: fmt.Sprint(s.Counts.Failed)},
		{Name: "Skipped", Value: fmt.Sprint(s.Counts.Skipped)},
		{Name: "Total", Value: fmt.Sprint(s.Total)},
	}
	if s.Duration != nil {
		facts = append(facts, Fact{Name: "Duration", Value: fmt.Sprintf("%ds", int64(s.Duration.Seconds()))})
	}
	facts = append(facts,
		Fact{Name: "Date", Value: date},
		Fact{Name: "Pass %", Value: s.PassPercent + "%"},
	)
	if meta.RunID != "" {
		facts = append(facts, Fact{Name: "Run ID", Value: meta.RunID})
	}

	return Section{
		ActivityTitle:    activity,
		ActivitySubtitle: "Test Date: " + date,
		Text:             text.String(),
		Facts:            facts,
		Markdown:         true,
	}
}

func failureSection(failures []report.Outcome, screenshotURL func(string) string) Section {
	facts := make([]Fact, 0, len(failures))
	for _, f := range failures {
		facts = append(facts, Fact{Name: f.Title, Value: FailureValue(f, screenshotURL)})
	}
	return Section{
		ActivityTitle:    "Failed Tests",
		ActivitySubtitle: fmt.Sprintf("Showing %d failure(s) below", len(failures)),
		Facts:            facts,
		Markdown:         true,
	}
}

// FailureValue renders one failing outcome as a fact value.
func FailureValue(f report.Outcome, screenshotURL func(string) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s:%d\nStatus: %s\nError: %s", f.File, f.Line, f.Status, f.Error)
	if logs := f.Logs(); len(logs) > 0 {
		names := make([]string, 0, len(logs))
		for _, l := range logs {
			names = append(names, urlutil.FileName(l.Path))
		}
		b.WriteString("\nLogs: " + strings.Join(names, ", "))
	}
	if screenshotURL != nil {
		if shots := f.Screenshots(); len(shots) > 0 {
			fmt.Fprintf(&b, "\n[Screenshot](%s)", screenshotURL(urlutil.FileName(shots[0].Path)))
		}
	}
	return b.String()
}

func analysisSections(failures []report.Outcome) []Section {
	groups := Triage(failures)
	var sections []Section
	for _, g := range []struct {
		severity Severity
		title    string
		noun     string
	}{
		{SeverityCritical, "Critical Failures - Immediate Action Required", "critical"},
		{SeverityHigh, "High Priority Failures", "high priority"},
	} {
		items := groups[g.severity]
		if len(items) == 0 {
			continue
		}
		top := items
		if len(top) > analysisTopN {
			top = top[:analysisTopN]
		}
		facts := make([]Fact, 0, len(top))
		for _, item := range top {
			facts = append(facts, Fact{
				Name: item.Analysis.Description,
				Value: fmt.Sprintf("Test: %s\nImpact: %s\nRecommendation: %s",
					item.Outcome.Title, item.Analysis.Impact, item.Analysis.Recommendation),
			})
		}
		sections = append(sections, Section{
			ActivityTitle:    g.title,
			ActivitySubtitle: fmt.Sprintf("%d %s issue(s) detected", len(items), g.noun),
			Facts:            facts,
			Markdown:         true,
		})
	}
	return sections
}
