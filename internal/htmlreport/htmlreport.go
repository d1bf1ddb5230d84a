// Package htmlreport renders a run's outcomes as a self-contained HTML page
// with its screenshots copied alongside under data/.
package htmlreport

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/sitesmoke/internal/obs"
	"github.com/kuitang/sitesmoke/internal/report"
	"github.com/kuitang/sitesmoke/internal/urlutil"
)

const (
	IndexFile = "index.html"
	// AssetDir is the subdirectory screenshots are copied into. Publishers
	// upload it a second time under the screenshot prefix.
	AssetDir = "data"

	dateLayout = "2006-01-02 15:04:05 MST"
)

// Page is the input to a rendered report.
type Page struct {
	Title     string
	RunID     string
	Generated time.Time
	Duration  *time.Duration
	Outcomes  []report.Outcome
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        :root {
            --text-color: #1a1a1a;
            --bg-color: #ffffff;
            --link-color: #0066cc;
            --code-bg: #f5f5f5;
            --border-color: #e0e0e0;
        }

        @media (prefers-color-scheme: dark) {
            :root {
                --text-color: #e0e0e0;
                --bg-color: #1a1a1a;
                --link-color: #66b3ff;
                --code-bg: #2d2d2d;
                --border-color: #404040;
            }
        }

        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            color: var(--text-color);
            background: var(--bg-color);
            max-width: 1100px;
            margin: 0 auto;
            padding: 2rem 1rem;
            line-height: 1.6;
        }
        a { color: var(--link-color); }
        table { width: 100%; border-collapse: collapse; margin-bottom: 1.5rem; }
        th, td { border: 1px solid var(--border-color); padding: 0.4rem 0.75rem; text-align: left; }
        th { background: var(--code-bg); }
        pre { background: var(--code-bg); padding: 1rem; border-radius: 0.5rem; overflow-x: auto; }
        img { max-width: 100%; border: 1px solid var(--border-color); }
        footer { margin-top: 3rem; font-size: 0.85rem; opacity: 0.7; }
    </style>
</head>
<body>
    <article>
        {{.Content}}
    </article>
    <footer>Generated {{.Generated}}{{if .RunID}} for run {{.RunID}}{{end}}</footer>
</body>
</html>
`

var tmpl = template.Must(template.New("report").Parse(pageTemplate))

type pageData struct {
	Title     string
	Content   template.HTML
	Generated string
	RunID     string
}

// Render returns the full HTML document for p.
func Render(p Page) ([]byte, error) {
	title := p.Title
	if title == "" {
		title = "Smoke Test Report"
	}
	data := pageData{
		Title:     title,
		Content:   template.HTML(RenderMarkdown(Markdown(p))),
		Generated: p.Generated.UTC().Format(dateLayout),
		RunID:     p.RunID,
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("htmlreport: render: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderMarkdown converts markdown to sanitized HTML.
func RenderMarkdown(md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock)
	doc := p.Parse(md)

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})
	out := markdown.Render(doc, renderer)

	policy := bluemonday.UGCPolicy()
	policy.AllowElements("pre", "code")
	policy.AllowAttrs("class").OnElements("code", "pre")
	return policy.SanitizeBytes(out)
}

// Markdown builds the report document: a summary table, one row per
// attempt, then details for each failure.
func Markdown(p Page) []byte {
	title := p.Title
	if title == "" {
		title = "Smoke Test Report"
	}
	counts := report.Tally(p.Outcomes)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", EscapeMarkdown(title))

	b.WriteString("| Passed | Failed | Skipped | Total | Pass % | Duration |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	duration := "n/a"
	if p.Duration != nil {
		duration = fmt.Sprintf("%ds", int64(p.Duration.Seconds()))
	}
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %s%% | %s |\n\n",
		counts.Passed, counts.Failed, counts.Skipped, counts.Total(), counts.PassPercent(), duration)

	b.WriteString("## Results\n\n")
	if len(p.Outcomes) == 0 {
		b.WriteString("No tests were run.\n\n")
	} else {
		b.WriteString("| Status | Test | Project | Location | Attempt | Duration |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, o := range p.Outcomes {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %d | %s |\n",
				statusLabel(o.Status), EscapeMarkdown(o.Title), EscapeMarkdown(o.Project),
				EscapeMarkdown(fmt.Sprintf("%s:%d", o.File, o.Line)), o.Retry+1, o.Duration.Round(time.Millisecond))
		}
		b.WriteString("\n")
	}

	failures := report.Failures(p.Outcomes)
	if len(failures) == 0 {
		return []byte(b.String())
	}
	b.WriteString("## Failures\n\n")
	for _, f := range failures {
		fmt.Fprintf(&b, "### %s\n\n", EscapeMarkdown(f.Title))
		fmt.Fprintf(&b, "- Location: `%s:%d`\n", inlineCode(f.File), f.Line)
		fmt.Fprintf(&b, "- Status: `%s`\n", f.Status)
		fmt.Fprintf(&b, "- Attempt: %d\n\n", f.Retry+1)
		if msg := StripANSI(f.Error); strings.TrimSpace(msg) != "" {
			fence := fenceFor(msg)
			fmt.Fprintf(&b, "%stext\n%s\n%s\n\n", fence, strings.TrimRight(msg, "\n"), fence)
		}
		for _, l := range f.Logs() {
			fmt.Fprintf(&b, "Log attachment: `%s`\n\n", inlineCode(urlutil.FileName(l.Path)))
		}
		for _, s := range f.Screenshots() {
			name := urlutil.FileName(s.Path)
			fmt.Fprintf(&b, "![%s](%s/%s)\n\n", EscapeMarkdown(s.Name), AssetDir, name)
		}
	}
	return []byte(b.String())
}

func statusLabel(s report.Status) string {
	switch s {
	case report.StatusPassed:
		return "PASS"
	case report.StatusSkipped:
		return "SKIP"
	case report.StatusTimedOut:
		return "**TIMEOUT**"
	default:
		return "**FAIL**"
	}
}

var (
	ansiEscape   = regexp.MustCompile("\x1b\\[[0-9;]*[A-Za-z]")
	mdSpecial    = strings.NewReplacer("\\", "\\\\", "|", "\\|", "*", "\\*", "_", "\\_", "`", "\\`", "[", "\\[", "]", "\\]", "<", "&lt;", ">", "&gt;", "#", "\\#")
	lineBreaks   = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")
	backtickRuns = regexp.MustCompile("`+")
)

// StripANSI removes terminal color sequences, which browser test errors
// often carry.
func StripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// EscapeMarkdown escapes s for use inside a single markdown line.
func EscapeMarkdown(s string) string {
	return mdSpecial.Replace(lineBreaks.Replace(StripANSI(s)))
}

func inlineCode(s string) string {
	return strings.ReplaceAll(lineBreaks.Replace(s), "`", "'")
}

// fenceFor returns a backtick fence longer than any run inside s.
func fenceFor(s string) string {
	n := 3
	for _, run := range backtickRuns.FindAllString(s, -1) {
		if len(run) >= n {
			n = len(run) + 1
		}
	}
	return strings.Repeat("`", n)
}

// Result describes a written report.
type Result struct {
	IndexPath string
	Assets    int
}

// Writer writes reports to disk.
type Writer struct {
	logger *slog.Logger
}

// NewWriter returns a Writer. A nil logger discards diagnostics.
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = obs.Discard()
	}
	return &Writer{logger: logger}
}

// Write renders p into dir/index.html and copies every screenshot
// attachment of a failing outcome into dir/data. A screenshot that cannot be
// copied is logged and skipped.
func (w *Writer) Write(dir string, p Page) (Result, error) {
	res := Result{IndexPath: filepath.Join(dir, IndexFile)}
	if err := os.MkdirAll(filepath.Join(dir, AssetDir), 0o755); err != nil {
		return res, fmt.Errorf("htmlreport: create %s: %w", dir, err)
	}

	seen := map[string]string{}
	for _, f := range report.Failures(p.Outcomes) {
		for _, s := range f.Screenshots() {
			name := urlutil.FileName(s.Path)
			if prev, ok := seen[name]; ok {
				if prev != s.Path {
					w.logger.Warn("screenshot name collision; keeping first", "name", name, "path", s.Path, "kept", prev)
				}
				continue
			}
			if err := copyFile(s.Path, filepath.Join(dir, AssetDir, name)); err != nil {
				w.logger.Warn("screenshot not copied", "path", s.Path, "error", err)
				continue
			}
			seen[name] = s.Path
			res.Assets++
		}
	}

	html, err := Render(p)
	if err != nil {
		return res, err
	}
	if err := os.WriteFile(res.IndexPath, html, 0o644); err != nil {
		return res, fmt.Errorf("htmlreport: write %s: %w", res.IndexPath, err)
	}
	w.logger.Info("html report written",
		"path", res.IndexPath,
		"outcomes", len(p.Outcomes),
		"assets", res.Assets,
	)
	return res, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
