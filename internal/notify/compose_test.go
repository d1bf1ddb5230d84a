package notify

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/sitesmoke/internal/report"
)

var oneDecimal = regexp.MustCompile(`^\d+\.\d$`)

func testPassPercent_Format(t *rapid.T) {
	c := report.Counts{
		Passed:  rapid.IntRange(0, 5000).Draw(t, "passed"),
		Failed:  rapid.IntRange(0, 5000).Draw(t, "failed"),
		Skipped: rapid.IntRange(0, 5000).Draw(t, "skipped"),
	}
	got := c.PassPercent()
	if c.Total() == 0 {
		if got != "0.0" {
			t.Fatalf("empty run: got %q, want 0.0", got)
		}
		return
	}
	if !oneDecimal.MatchString(got) {
		t.Fatalf("PassPercent(%+v) = %q, want one decimal digit", c, got)
	}
	parsed, err := strconv.ParseFloat(got, 64)
	if err != nil {
		t.Fatalf("parse %q: %v", got, err)
	}
	exact := float64(c.Passed) / float64(c.Total()) * 100
	if math.Abs(parsed-exact) > 0.05+1e-9 {
		t.Fatalf("PassPercent(%+v) = %q, exact %f", c, got, exact)
	}
	// A tie at the second decimal always rounds up.
	if halves := 2 * c.Passed * 1000; halves%c.Total() == 0 && (halves/c.Total())%2 == 1 {
		if parsed < exact {
			t.Fatalf("PassPercent(%+v) = %q rounds a half down", c, got)
		}
	}
}

func TestPassPercent_Format(t *testing.T) {
	rapid.Check(t, testPassPercent_Format)
}

func outcomes(statuses ...report.Status) []report.Outcome {
	out := make([]report.Outcome, 0, len(statuses))
	for i, s := range statuses {
		out = append(out, report.Outcome{
			Title:     "case " + strconv.Itoa(i),
			File:      "smoke/main.go",
			Line:      10 + i,
			Status:    s,
			IsFailure: s.IsFailure(),
		})
	}
	return out
}

func TestSummarize_ThreePassedOneFailedOneSkipped(t *testing.T) {
	start := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	meta := RunMeta{StartTime: &start, Now: start.Add(95*time.Second + 400*time.Millisecond)}

	s := Summarize(outcomes(report.StatusPassed, report.StatusPassed, report.StatusPassed, report.StatusFailed, report.StatusSkipped), meta)
	assert.Equal(t, report.Counts{Passed: 3, Failed: 1, Skipped: 1}, s.Counts)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, "60.0", s.PassPercent)
	require.NotNil(t, s.Duration)
	assert.Equal(t, 95*time.Second, *s.Duration)
	assert.True(t, s.HasFailures())

	card := Composer{}.Compose(s, meta)
	assert.Equal(t, ColorFailure, card.ThemeColor)
	assert.Equal(t, TitleFailure, card.Title)
	assert.Equal(t, TitleFailure, card.Summary)
	require.Len(t, card.Sections, 2)
	require.Len(t, card.Sections[1].Facts, 1)
	assert.Equal(t, "case 3", card.Sections[1].Facts[0].Name)
}

func TestSummarize_UnknownStartOmitsDuration(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	s := Summarize(outcomes(report.StatusPassed), RunMeta{Now: now})
	assert.Nil(t, s.Duration)
	assert.Equal(t, now, s.Date)

	card := Composer{}.Compose(s, RunMeta{Now: now})
	for _, f := range card.Sections[0].Facts {
		assert.NotEqual(t, "Duration", f.Name)
	}
}

func TestCompose_AllPassedHasNoFailureSection(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	s := Summarize(outcomes(report.StatusPassed, report.StatusPassed), RunMeta{Now: now})
	card := Composer{FailureAnalysis: true}.Compose(s, RunMeta{Now: now})

	assert.Equal(t, ColorSuccess, card.ThemeColor)
	assert.Equal(t, TitleSuccess, card.Title)
	require.Len(t, card.Sections, 1)
	assert.Empty(t, card.PotentialAction)
}

func TestCompose_FullPayload(t *testing.T) {
	start := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	meta := RunMeta{
		RunID:     "smoke-1",
		StartTime: &start,
		Now:       start.Add(42 * time.Second),
		ReportURL: "https://reports.example.com/latest/index.html",
		ScreenshotURL: func(name string) string {
			return "https://reports.example.com/latest/data/" + name
		},
	}
	outs := []report.Outcome{
		{Title: "M001 homepage loads", File: "main", Line: 1, Status: report.StatusPassed},
		{
			Title: "M004 checkout form visible", File: "main", Line: 4, Status: report.StatusTimedOut,
			Error: "Timeout 30000ms exceeded", IsFailure: true,
			Attachments: []report.Attachment{
				{Name: "checkout-screenshot", Path: "/w/test-results/m004/failure.png"},
				{Name: "console.log", Path: "/w/test-results/m004/console.log"},
				{Name: "trace.zip", Path: "/w/test-results/m004/trace.zip"},
			},
		},
	}

	card := Composer{FailureAnalysis: true}.Compose(Summarize(outs, meta), meta)

	want := Card{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: ColorFailure,
		Summary:    TitleFailure,
		Title:      TitleFailure,
		Sections: []Section{
			{
				ActivityTitle:    "Smoke Run - Issues Detected",
				ActivitySubtitle: "Test Date: 2026-10-19 08:00:00 UTC",
				Text: "**[View Detailed HTML Report](https://reports.example.com/latest/index.html)**\n\n" +
					"**Issues detected in this run. Please review the failures below.**",
				Facts: []Fact{
					{Name: "Passed", Value: "1"},
					{Name: "Failed", Value: "1"},
					{Name: "Skipped", Value: "0"},
					{Name: "Total", Value: "2"},
					{Name: "Duration", Value: "42s"},
					{Name: "Date", Value: "2026-10-19 08:00:00 UTC"},
					{Name: "Pass %", Value: "50.0%"},
					{Name: "Run ID", Value: "smoke-1"},
				},
				Markdown: true,
			},
			{
				ActivityTitle:    "Failed Tests",
				ActivitySubtitle: "Showing 1 failure(s) below",
				Facts: []Fact{{
					Name: "M004 checkout form visible",
					Value: "File: main:4\nStatus: timedOut\nError: Timeout 30000ms exceeded" +
						"\nLogs: console.log" +
						"\n[Screenshot](https://reports.example.com/latest/data/failure.png)",
				}},
				Markdown: true,
			},
			{
				ActivityTitle:    "Critical Failures - Immediate Action Required",
				ActivitySubtitle: "1 critical issue(s) detected",
				Facts: []Fact{{
					Name:  "Checkout/payment flow failure",
					Value: "Test: M004 checkout form visible\nImpact: Users cannot complete purchases\nRecommendation: Check the payment integration and the checkout flow",
				}},
				Markdown: true,
			},
		},
		PotentialAction: []Action{{
			Type:    "OpenUri",
			Name:    "View Latest Test Report",
			Targets: []Target{{OS: "default", URI: "https://reports.example.com/latest/index.html"}},
		}},
	}
	if diff := cmp.Diff(want, card); diff != "" {
		t.Fatalf("card mismatch (-want +got):\n%s", diff)
	}
}

func TestCompose_WireFormat(t *testing.T) {
	card := NewCard(TitleSuccess, ColorSuccess)
	card.PotentialAction = []Action{OpenURI("open", "https://x.example.com")}
	raw, err := json.Marshal(card)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "MessageCard", decoded["@type"])
	assert.Equal(t, "http://schema.org/extensions", decoded["@context"])
	action := decoded["potentialAction"].([]any)[0].(map[string]any)
	assert.Equal(t, "OpenUri", action["@type"])
}

func TestFailureValue_ScreenshotOnlyWithBuilder(t *testing.T) {
	o := report.Outcome{
		File: "main", Line: 3, Status: report.StatusFailed, Error: "boom",
		Attachments: []report.Attachment{{Name: "homepage-screenshot.png", Path: `C:\r\data\shot.png`}},
	}
	assert.Equal(t, "File: main:3\nStatus: failed\nError: boom", FailureValue(o, nil))
	assert.Equal(t, "File: main:3\nStatus: failed\nError: boom\n[Screenshot](u/shot.png)",
		FailureValue(o, func(n string) string { return "u/" + n }))
}

func TestAnalysis_TopThreePerGroup(t *testing.T) {
	var fails []report.Outcome
	for i := 0; i < 5; i++ {
		fails = append(fails, report.Outcome{Title: "login attempt " + strconv.Itoa(i), Status: report.StatusFailed, IsFailure: true})
	}
	fails = append(fails, report.Outcome{Title: "signup CTA", Status: report.StatusFailed, IsFailure: true})
	fails = append(fails, report.Outcome{Title: "misc", Status: report.StatusFailed, IsFailure: true})

	sections := analysisSections(fails)
	require.Len(t, sections, 2)
	assert.Len(t, sections[0].Facts, 3)
	assert.Equal(t, "5 critical issue(s) detected", sections[0].ActivitySubtitle)
	assert.Len(t, sections[1].Facts, 1)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		title, err string
		want       Severity
	}{
		{"Checkout page loads", "", SeverityCritical},
		{"Homepage", "stripe.js failed to load", SeverityCritical},
		{"Homepage", "sms gateway unreachable", SeverityHigh},
		{"Signup form visible", "", SeverityHigh},
		{"Hero image", "", SeverityMedium},
		{"Dealer page", "404 not found", SeverityMedium},
		{"Footer links", "expected 3 got 2", SeverityLow},
	}
	for _, tc := range cases {
		if got := Classify(tc.title, tc.err).Severity; got != tc.want {
			t.Fatalf("Classify(%q, %q) = %s, want %s", tc.title, tc.err, got, tc.want)
		}
	}
	assert.Greater(t, SeverityCritical.Rank(), SeverityLow.Rank())
}
