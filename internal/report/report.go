// Package report renders a best-effort HTML summary of a run. Report
// generation never affects the run outcome; failures are logged only.
package report

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"testforge/internal/executor"
	"testforge/internal/filestore"
	"testforge/internal/logging"
	"testforge/internal/plan"
)

// ArtifactPath is where the report lands inside the project store. The
// directory is on the store's listing denylist, so the artifact never
// shows up among generated files.
const ArtifactPath = ".testforge/report.html"

var reportTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}} - test report</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; }
.pass { color: #1a7f37; }
.fail { color: #cf222e; }
.skip { color: #9a6700; }
pre { background: #f6f8fa; padding: 8px; overflow-x: auto; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>Run {{.RunID}} · generated {{.Generated}}</p>
<p><strong>{{.Passed}}</strong> passed, <strong>{{.Failed}}</strong> failed, {{.Skipped}} skipped of {{.Total}} ({{.Duration}})</p>
<table>
<tr><th>Test</th><th>Category</th><th>Status</th><th>Elapsed</th></tr>
{{range .Rows}}<tr><td>{{.Name}}</td><td>{{.Category}}</td><td class="{{.Status}}">{{.Status}}</td><td>{{.Elapsed}}</td></tr>
{{end}}
</table>
{{if .Failures}}<h2>Failure output</h2>
{{range .Failures}}<h3>{{.Name}}</h3><pre>{{.Output}}</pre>
{{end}}{{end}}
</body>
</html>
`))

type row struct {
	Name     string
	Category string
	Status   string
	Elapsed  string
}

type failure struct {
	Name   string
	Output string
}

// Reporter writes run reports into a project store.
type Reporter struct {
	store *filestore.Store
}

// New creates a reporter over the given store.
func New(store *filestore.Store) *Reporter {
	return &Reporter{store: store}
}

// Generate renders the report artifact. The returned error is for the
// caller's log line only; the caller must not fail the run on it.
func (r *Reporter) Generate(runID string, p *plan.TestPlan, result *executor.ExecutionResult) error {
	if result == nil {
		return fmt.Errorf("no execution result to report")
	}

	data := struct {
		Title     string
		RunID     string
		Generated string
		Total     int
		Passed    int
		Failed    int
		Skipped   int
		Duration  string
		Rows      []row
		Failures  []failure
	}{
		Title:     p.Title,
		RunID:     runID,
		Generated: time.Now().Format(time.RFC1123),
		Total:     result.Total,
		Passed:    result.Passed,
		Failed:    result.Failed,
		Skipped:   result.Skipped,
		Duration:  result.Duration.Round(time.Millisecond).String(),
	}

	for _, d := range result.Details {
		category := ""
		if item, ok := p.ItemByName(d.Name); ok {
			category = string(item.Category)
		}
		data.Rows = append(data.Rows, row{
			Name:     d.Name,
			Category: category,
			Status:   string(d.Status),
			Elapsed:  d.Elapsed.Round(time.Millisecond).String(),
		})
		if d.Status == executor.StatusFail {
			data.Failures = append(data.Failures, failure{Name: d.Name, Output: d.Output})
		}
	}

	var sb strings.Builder
	if err := reportTmpl.Execute(&sb, data); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if err := r.store.WriteFile(ArtifactPath, sb.String()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	logging.Report("wrote %s (%d tests)", ArtifactPath, result.Total)
	return nil
}
