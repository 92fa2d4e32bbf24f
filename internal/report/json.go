package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/stackcrawl/internal/model"
)

// JSONWriter outputs reports as JSON, one document per call.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the full report, summary included.
func (w *JSONWriter) Write(report *model.ScanReport) (int, error) {
	summaryOf(report)
	return w.writeJSON(report)
}

// WriteSimple outputs only the summary.
func (w *JSONWriter) WriteSimple(report *model.SimpleReport) (int, error) {
	return w.writeJSON(report)
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}

// JSONReport wraps a report with the version of the tool that produced it.
type JSONReport struct {
	Version string              `json:"version"`
	Report  *model.ScanReport   `json:"report"`
	Summary *model.SimpleReport `json:"summary,omitempty"`
}

// NewJSONReport creates a JSONReport wrapper with version information.
func NewJSONReport(report *model.ScanReport, version string) *JSONReport {
	return &JSONReport{
		Version: version,
		Report:  report,
		Summary: summaryOf(report),
	}
}

// FullJSONWriter writes reports wrapped in JSONReport.
type FullJSONWriter struct {
	*JSONWriter
	version string
}

// NewFullJSONWriter creates a writer for complete reports with metadata.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs the report wrapped with the version.
func (w *FullJSONWriter) Write(report *model.ScanReport) (int, error) {
	return w.writeJSON(NewJSONReport(report, w.version))
}
