package report

import (
	"io"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/stackcrawl/internal/model"
)

// Writer outputs scan reports in one format.
type Writer interface {
	// Write outputs the full report. It returns the bytes written.
	Write(report *model.ScanReport) (int, error)

	// WriteSimple outputs only the summary.
	WriteSimple(report *model.SimpleReport) (int, error)
}

// MultiWriter writes to several Writers in order and stops at the first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
func (m *MultiWriter) Write(report *model.ScanReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteSimple outputs the summary to all configured Writers.
func (m *MultiWriter) WriteSimple(report *model.SimpleReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteSimple(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// summaryOf returns the report's summary, building it if missing.
func summaryOf(report *model.ScanReport) *model.SimpleReport {
	if report.SimpleReport == nil {
		report.SimpleReport = model.NewSimpleReport(report)
	}
	return report.SimpleReport
}

var titleCaser = cases.Title(language.English)

// errorLabel turns NO_RESPONSE into "No Response".
func errorLabel(t model.ErrorType) string {
	return titleCaser.String(strings.ReplaceAll(strings.ToLower(string(t)), "_", " "))
}

// categoryNames returns the categories of a summary, sorted, with "Other" last.
func categoryNames(report *model.SimpleReport) []string {
	names := make([]string, 0, len(report.ByCategory))
	hasOther := false
	for name := range report.ByCategory {
		if name == model.OtherCategory {
			hasOther = true
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if hasOther {
		names = append(names, model.OtherCategory)
	}
	return names
}

// statusText summarizes the outcome of a scan in one line.
func statusText(report *model.SimpleReport) string {
	switch {
	case report.Error != "":
		return "ERROR - " + report.Error
	case report.PagesFailed > 0:
		return "Complete with failures"
	default:
		return "Complete"
	}
}

// truncateString shortens s to maxLen runes, ending with "...".
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
