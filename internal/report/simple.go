package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/stackcrawl/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs human-readable text reports for the terminal.
type SimpleWriter struct {
	baseWriter

	// showEmpty prints sections that have nothing to show.
	showEmpty bool

	// verbose lists every visited URL with its outcome.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose adds the per-URL visit list to full reports.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the full report. Technology versions and, in verbose
// mode, the visited URLs come from the crawl result.
func (w *SimpleWriter) Write(report *model.ScanReport) (int, error) {
	simple := summaryOf(report)

	var sb strings.Builder
	w.writeHeader(&sb, simple)
	w.writeVisits(&sb, simple)
	w.writeTechnologies(&sb, simple, report.Result)
	if w.verbose && report.Result != nil {
		w.writeURLs(&sb, report.Result)
	}
	w.writeFooter(&sb)
	return io.WriteString(w.output, sb.String())
}

// WriteSimple outputs the summary only.
func (w *SimpleWriter) WriteSimple(report *model.SimpleReport) (int, error) {
	var sb strings.Builder
	w.writeHeader(&sb, report)
	w.writeVisits(&sb, report)
	w.writeTechnologies(&sb, report, nil)
	w.writeFooter(&sb)
	return io.WriteString(w.output, sb.String())
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("-", ruleWidth) + "\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.SimpleReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	sb.WriteString("                        STACKCRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n\n")

	fmt.Fprintf(sb, "Seed:           %s\n", report.Seed)
	fmt.Fprintf(sb, "Scan Date:      %s\n", report.DateScanned.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Pages Visited:  %d\n", report.PagesVisited)
	if report.Language != "" {
		fmt.Fprintf(sb, "Language:       %s\n", report.Language)
	}
	fmt.Fprintf(sb, "Status:         %s\n\n", statusText(report))
}

func (w *SimpleWriter) writeVisits(sb *strings.Builder, report *model.SimpleReport) {
	if report.PagesVisited == 0 && !w.showEmpty {
		return
	}
	section(sb, "VISITS")

	fmt.Fprintf(sb, "  OK:      %d\n", report.PagesOK)
	fmt.Fprintf(sb, "  FAILED:  %d\n", report.PagesFailed)
	for _, t := range model.ErrorTypes() {
		n := report.ErrorCounts[t]
		if n == 0 && !w.showEmpty {
			continue
		}
		fmt.Fprintf(sb, "    %-18s %d\n", errorLabel(t)+":", n)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeTechnologies(sb *strings.Builder, report *model.SimpleReport, result *model.Result) {
	if report.ApplicationCount == 0 && !w.showEmpty {
		return
	}
	section(sb, "TECHNOLOGIES")

	if report.ApplicationCount == 0 {
		sb.WriteString("  No technologies detected\n\n")
		return
	}

	for _, category := range categoryNames(report) {
		fmt.Fprintf(sb, "[%s]\n", category)
		for _, name := range report.ByCategory[category] {
			fmt.Fprintf(sb, "  [+] %s\n", describeApplication(name, result))
		}
		sb.WriteString("\n")
	}
}

// describeApplication appends version and confidence when the result
// has them: "WordPress 6.4 (100%)".
func describeApplication(name string, result *model.Result) string {
	if result == nil {
		return name
	}
	app := result.Application(name)
	if app == nil {
		return name
	}
	s := name
	if app.Version != "" {
		s += " " + app.Version
	}
	return fmt.Sprintf("%s (%d%%)", s, app.Confidence)
}

func (w *SimpleWriter) writeURLs(sb *strings.Builder, result *model.Result) {
	section(sb, "URLS")
	for _, u := range result.SortedURLs() {
		rec := result.URLs[u]
		if rec.Failed() {
			fmt.Fprintf(sb, "  [%3d] %s\n        %s: %s\n", rec.Status, u, errorLabel(rec.Error.Type), rec.Error.Message)
			continue
		}
		fmt.Fprintf(sb, "  [%3d] %s\n", rec.Status, u)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	sb.WriteString("Report generated by stackcrawl\n")
	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n")
}
