package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/sitesmoke/internal/errs"
	"github.com/kuitang/sitesmoke/internal/obs"
)

var statusGen = rapid.SampledFrom([]Status{
	StatusPassed, StatusFailed, StatusSkipped, StatusTimedOut, StatusInterrupted, "unknownStatus",
})

// genSuite builds a random suite tree. Each result's Duration is stamped with
// its position in the expected flatten order.
func genSuite(t *rapid.T, depth int, seq *int64) Suite {
	s := Suite{Title: rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "suite")}
	if depth < 4 {
		for i, n := 0, rapid.IntRange(0, 2).Draw(t, "children"); i < n; i++ {
			s.Suites = append(s.Suites, genSuite(t, depth+1, seq))
		}
	}
	for i, n := 0, rapid.IntRange(0, 3).Draw(t, "specs"); i < n; i++ {
		spec := Spec{
			Title: rapid.StringMatching(`[a-z ]{1,12}`).Draw(t, "title"),
			File:  "tests/main.spec.ts",
			Line:  rapid.IntRange(1, 500).Draw(t, "line"),
		}
		for j, nt := 0, rapid.IntRange(0, 2).Draw(t, "tests"); j < nt; j++ {
			var test Test
			for k, nr := 0, rapid.IntRange(0, 3).Draw(t, "results"); k < nr; k++ {
				test.Results = append(test.Results, Result{
					Retry:    k,
					Status:   statusGen.Draw(t, "status"),
					Duration: *seq,
				})
				*seq++
			}
			spec.Tests = append(spec.Tests, test)
		}
		s.Specs = append(s.Specs, spec)
	}
	return s
}

func genReport(t *rapid.T) (*RunReport, int) {
	var seq int64
	r := &RunReport{}
	for i, n := 0, rapid.IntRange(0, 3).Draw(t, "roots"); i < n; i++ {
		r.Suites = append(r.Suites, genSuite(t, 1, &seq))
	}
	return r, int(seq)
}

func testFlatten_PreservesCountAndOrder(t *rapid.T) {
	r, results := genReport(t)
	outcomes := Flatten(r)
	if len(outcomes) != results {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), results)
	}
	for i, o := range outcomes {
		if o.Duration != time.Duration(i)*time.Millisecond {
			t.Fatalf("outcome %d out of order: duration %v", i, o.Duration)
		}
	}
}

func TestFlatten_PreservesCountAndOrder(t *testing.T) {
	rapid.Check(t, testFlatten_PreservesCountAndOrder)
}

func testFlatten_FailureClassification(t *rapid.T) {
	r, _ := genReport(t)
	for _, o := range Flatten(r) {
		want := o.Status != StatusPassed && o.Status != StatusSkipped
		if o.IsFailure != want {
			t.Fatalf("status %q: IsFailure=%v, want %v", o.Status, o.IsFailure, want)
		}
	}
}

func TestFlatten_FailureClassification(t *testing.T) {
	rapid.Check(t, testFlatten_FailureClassification)
}

func testTally_SumsToOutcomeCount(t *rapid.T) {
	r, _ := genReport(t)
	outcomes := Flatten(r)
	c := Tally(outcomes)
	if c.Passed+c.Failed+c.Skipped != len(outcomes) || c.Total() != len(outcomes) {
		t.Fatalf("counts %+v do not sum to %d", c, len(outcomes))
	}
	if c.Failed != len(Failures(outcomes)) {
		t.Fatalf("failed count %d != enumerated failures %d", c.Failed, len(Failures(outcomes)))
	}
}

func TestTally_SumsToOutcomeCount(t *testing.T) {
	rapid.Check(t, testTally_SumsToOutcomeCount)
}

func TestFlatten_NilReport(t *testing.T) {
	outcomes := Flatten(nil)
	require.NotNil(t, outcomes)
	assert.Empty(t, outcomes)
}

func TestFlatten_ChildSuitesBeforeOwnSpecs(t *testing.T) {
	r := &RunReport{Suites: []Suite{{
		Title: "root",
		Specs: []Spec{{Title: "own", Tests: []Test{{Results: []Result{{Status: StatusPassed}}}}}},
		Suites: []Suite{{
			Title: "child",
			Specs: []Spec{{Title: "nested", Tests: []Test{{Results: []Result{
				{Status: StatusFailed, Retry: 0, Error: &ReportError{Message: "boom"}},
				{Status: StatusPassed, Retry: 1},
			}}}}},
		}},
	}}}

	outcomes := Flatten(r)
	require.Len(t, outcomes, 3)
	assert.Equal(t, []string{"nested", "nested", "own"}, []string{outcomes[0].Title, outcomes[1].Title, outcomes[2].Title})
	assert.Equal(t, "boom", outcomes[0].Error)
	assert.True(t, outcomes[0].IsFailure)
	assert.Equal(t, 1, outcomes[1].Retry)
}

func TestFlatten_DepthGuardWarns(t *testing.T) {
	var buf bytes.Buffer
	agg := NewAggregator(obs.NewLogger(&buf))
	agg.maxDepth = 2

	leaf := Suite{Title: "deep", Specs: []Spec{{Title: "lost", Tests: []Test{{Results: []Result{{Status: StatusPassed}}}}}}}
	r := &RunReport{Suites: []Suite{{
		Title:  "l1",
		Specs:  []Spec{{Title: "kept", Tests: []Test{{Results: []Result{{Status: StatusPassed}}}}}},
		Suites: []Suite{{Title: "l2", Suites: []Suite{leaf}}},
	}}}

	outcomes := agg.Flatten(r)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "kept", outcomes[0].Title)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), "suite nesting exceeds limit")
}

func TestResult_ErrorTextFallsBackToErrors(t *testing.T) {
	assert.Equal(t, "first", Result{Errors: []ReportError{{Message: "first"}, {Message: "second"}}}.ErrorText())
	assert.Equal(t, "primary", Result{Error: &ReportError{Message: "primary"}, Errors: []ReportError{{Message: "first"}}}.ErrorText())
	assert.Equal(t, "", Result{}.ErrorText())
}

func TestAttachmentCategory(t *testing.T) {
	cases := []struct {
		att  Attachment
		want Category
	}{
		{Attachment{Name: "homepage-screenshot.png", Path: "/tmp/a.png"}, CategoryScreenshot},
		{Attachment{Name: "Checkout-SCREENSHOT", Path: "/tmp/b.png"}, CategoryScreenshot},
		{Attachment{Name: "console.log", Path: "/tmp/console.log"}, CategoryLog},
		{Attachment{Name: "trace.zip", Path: "/tmp/trace.zip"}, CategoryNone},
		{Attachment{Name: "homepage-screenshot.png"}, CategoryNone},
	}
	for _, tc := range cases {
		if got := tc.att.Category(); got != tc.want {
			t.Fatalf("Category(%q, path=%q) = %q, want %q", tc.att.Name, tc.att.Path, got, tc.want)
		}
	}

	both := Attachment{Name: "screenshot-log", Path: "/tmp/x"}
	assert.True(t, both.IsScreenshot())
	assert.True(t, both.IsLog())
}

func TestTally_ThreePassedOneFailedOneSkipped(t *testing.T) {
	outcomes := []Outcome{
		{Status: StatusPassed}, {Status: StatusPassed}, {Status: StatusPassed},
		{Status: StatusFailed, IsFailure: true}, {Status: StatusSkipped},
	}
	assert.Equal(t, Counts{Passed: 3, Failed: 1, Skipped: 1}, Tally(outcomes))
	assert.Equal(t, 5, Tally(outcomes).Total())
}

func TestCounts_PassPercentRoundsHalvesUp(t *testing.T) {
	tests := []struct {
		passed, total int
		want          string
	}{
		{0, 0, "0.0"},
		{1, 16, "6.3"},
		{5, 16, "31.3"},
		{1, 80, "1.3"},
		{3, 5, "60.0"},
		{2, 3, "66.7"},
		{1, 3, "33.3"},
		{7, 7, "100.0"},
	}
	for _, tt := range tests {
		c := Counts{Passed: tt.passed, Failed: tt.total - tt.passed}
		assert.Equal(t, tt.want, c.PassPercent(), "%d/%d", tt.passed, tt.total)
	}
}

func TestLoad_FirstExistingCandidateWins(t *testing.T) {
	dir := t.TempDir()
	second := filepath.Join(dir, "second.json")
	third := filepath.Join(dir, "third.json")
	require.NoError(t, os.WriteFile(second, []byte(`{"suites":[{"title":"a"}]}`), 0o644))
	require.NoError(t, os.WriteFile(third, []byte(`{"suites":[]}`), 0o644))

	r, path, err := Load([]string{filepath.Join(dir, "missing.json"), second, third})
	require.NoError(t, err)
	assert.Equal(t, second, path)
	require.Len(t, r.Suites, 1)
	assert.JSONEq(t, `{"suites":[{"title":"a"}]}`, string(r.Raw()))
}

func TestLoad_MissingEverywhere(t *testing.T) {
	dir := t.TempDir()
	_, _, err := Load([]string{filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json")})
	require.Error(t, err)
	assert.Equal(t, errs.ReportMissing, errs.CodeOf(err))
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"suites": [`), 0o644))

	_, path, err := Load([]string{bad})
	require.Error(t, err)
	assert.Equal(t, bad, path)
	assert.Equal(t, errs.ReportInvalid, errs.CodeOf(err))

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, _, err = Load([]string{empty})
	assert.True(t, errs.Is(err, errs.ReportInvalid))
}

func TestDecode_PlaywrightLayout(t *testing.T) {
	raw := []byte(`{
	  "config": {"version": "1.52.0"},
	  "suites": [{
	    "title": "main.spec.ts", "file": "main.spec.ts", "line": 0, "column": 0,
	    "specs": [{
	      "title": "M001 homepage loads", "ok": false, "tags": ["main:001"], "id": "abc",
	      "file": "main.spec.ts", "line": 12, "column": 3,
	      "tests": [{
	        "projectName": "chromium", "expectedStatus": "passed", "status": "unexpected",
	        "annotations": [],
	        "results": [{
	          "workerIndex": 0, "status": "timedOut", "duration": 30012, "retry": 0,
	          "startTime": "2026-10-19T08:00:00.000Z",
	          "errors": [{"message": "Test timeout of 30000ms exceeded."}],
	          "attachments": [
	            {"name": "screenshot", "contentType": "image/png", "path": "/w/test-results/m001/test-failed-1.png"},
	            {"name": "trace", "contentType": "application/zip", "path": "/w/test-results/m001/trace.zip"}
	          ]
	        }]
	      }]
	    }]
	  }],
	  "errors": [],
	  "stats": {"startTime": "2026-10-19T08:00:00.000Z", "duration": 30500.2, "expected": 0, "skipped": 0, "unexpected": 1, "flaky": 0}
	}`)

	r, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Stats.Unexpected)

	outcomes := Flatten(r)
	require.Len(t, outcomes, 1)
	o := outcomes[0]
	assert.Equal(t, "M001 homepage loads", o.Title)
	assert.Equal(t, 12, o.Line)
	assert.Equal(t, StatusTimedOut, o.Status)
	assert.True(t, o.IsFailure)
	assert.Equal(t, "Test timeout of 30000ms exceeded.", o.Error)
	assert.Equal(t, "chromium", o.Project)
	require.Len(t, o.Screenshots(), 1)
	assert.Empty(t, o.Logs())
}

func TestArchive_WritesRawCopy(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")
	raw := []byte(`{"suites":[]}`)

	path, err := Archive(dir, "smoke-1234/../x", raw)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "-results.json"))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	path, err = Archive(dir, "", raw)
	require.NoError(t, err)
	assert.Equal(t, "unknown-results.json", filepath.Base(path))

	_, err = Archive(dir, "x", nil)
	assert.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestWrite_RoundTripsThroughLoad(t *testing.T) {
	out := filepath.Join(t.TempDir(), "test-results", "results.json")
	in := &RunReport{Suites: []Suite{{Title: "smoke", Specs: []Spec{{Title: "x", Tests: []Test{{Results: []Result{{Status: StatusPassed}}}}}}}}}

	raw, err := Write(out, in)
	require.NoError(t, err)
	require.True(t, json.Valid(raw))

	loaded, path, err := Load([]string{out})
	require.NoError(t, err)
	assert.Equal(t, out, path)
	assert.Len(t, Flatten(loaded), 1)
}
