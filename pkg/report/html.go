package report

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/google/renameio/v2"

	"github.com/dkoosis/runledger/pkg/pattern"
)

// TimestampLayout stamps report file names.
const TimestampLayout = "20060102_150405"

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var reportTemplate = template.Must(
	template.New("report.html.tmpl").
		Funcs(sprig.FuncMap()).
		Funcs(template.FuncMap{"heat": pattern.HeatLevel}).
		ParseFS(templateFS, "templates/report.html.tmpl"),
)

type htmlView struct {
	Doc        Document
	Chart      TrendChart
	RecordJSON template.JS
}

// WriteHTML draws doc as a self-contained HTML page. The run record is
// embedded as JSON so later runs can rebuild history from old reports.
func WriteHTML(w io.Writer, doc Document) error {
	raw, err := json.Marshal(doc.Record)
	if err != nil {
		return fmt.Errorf("encoding run record: %w", err)
	}
	view := htmlView{
		Doc:        doc,
		Chart:      PlotTrend(doc.Trend),
		RecordJSON: template.JS(raw),
	}
	if err := reportTemplate.Execute(w, view); err != nil {
		return fmt.Errorf("executing report template: %w", err)
	}
	return nil
}

// FileName returns "<prefix>_<YYYYMMDD_HHMMSS>.html".
func FileName(prefix string, ts time.Time) string {
	return fmt.Sprintf("%s_%s.html", prefix, ts.Format(TimestampLayout))
}

// Save renders doc into dir and returns the report path. The file appears
// atomically or not at all.
func Save(dir, prefix string, doc Document) (string, error) {
	ts := doc.GeneratedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	var buf bytes.Buffer
	if err := WriteHTML(&buf, doc); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report dir: %w", err)
	}
	path := filepath.Join(dir, FileName(prefix, ts))
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("writing report %s: %w", path, err)
	}
	return path, nil
}
