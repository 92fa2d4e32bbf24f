package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/stackcrawl/internal/model"
)

// MarkdownWriter outputs reports as GitHub-flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the full report: summary, technology table with versions
// and the failed pages.
func (w *MarkdownWriter) Write(report *model.ScanReport) (int, error) {
	simple := summaryOf(report)
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, simple)
	w.writeSummary(md, simple)
	w.writeTechnologies(md, simple, report.Result)
	if report.Result != nil {
		w.writeFailures(md, report.Result)
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteSimple outputs the summary in Markdown format.
func (w *MarkdownWriter) WriteSimple(report *model.SimpleReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeTechnologies(md, report, nil)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.SimpleReport) {
	md.H1("stackcrawl Report")
	md.PlainText("")

	rows := [][]string{
		{"Seed", "`" + report.Seed + "`"},
		{"Scan Date", report.DateScanned.Format("2006-01-02 15:04:05 MST")},
		{"Pages Visited", strconv.Itoa(report.PagesVisited)},
	}
	if report.Language != "" {
		rows = append(rows, []string{"Language", report.Language})
	}
	rows = append(rows, []string{"Status", markdownStatus(report)})

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func markdownStatus(report *model.SimpleReport) string {
	switch {
	case report.Error != "":
		return "❌ Error - " + report.Error
	case report.PagesFailed > 0:
		return "⚠️ Complete with failures"
	default:
		return "✅ Complete"
	}
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.SimpleReport) {
	md.H2("Visit Summary")
	md.PlainText("")

	rows := [][]string{
		{"OK (200)", strconv.Itoa(report.PagesOK)},
		{"Failed", strconv.Itoa(report.PagesFailed)},
	}
	for _, t := range model.ErrorTypes() {
		if n := report.ErrorCounts[t]; n > 0 {
			rows = append(rows, []string{"↳ " + errorLabel(t), strconv.Itoa(n)})
		}
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(report.PagesVisited) + "**"})

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Pages"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writeAlert(md, report)
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.SimpleReport) {
	switch {
	case report.Error != "":
		md.Cautionf("The scan failed: %s", report.Error)
	case report.PagesVisited > 0 && report.PagesFailed == report.PagesVisited:
		md.Warningf("All %d visited page(s) failed. Detections may be incomplete.", report.PagesFailed)
	case report.PagesFailed > 0:
		md.Importantf("%d of %d visited page(s) failed.", report.PagesFailed, report.PagesVisited)
	case report.ApplicationCount == 0:
		md.Note("No technologies were detected.")
	default:
		md.Tip("All visited pages were analyzed.")
	}
	md.PlainText("")
}

// writePieChart charts the number of technologies per category.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.SimpleReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Technologies by Category"),
		piechart.WithShowData(true),
	)
	for _, category := range categoryNames(report) {
		chart.LabelAndIntValue(category, uint64(len(report.ByCategory[category])))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeTechnologies(md *markdown.Markdown, report *model.SimpleReport, result *model.Result) {
	md.H2("Technologies")
	md.PlainText("")

	if report.ApplicationCount == 0 {
		md.PlainText("No technologies detected.")
		md.PlainText("")
		return
	}

	if len(report.ByCategory) > 1 {
		w.writePieChart(md, report)
	}

	if result == nil {
		for _, category := range categoryNames(report) {
			md.PlainText("### " + category)
			md.PlainText("")
			md.BulletList(report.ByCategory[category]...)
			md.PlainText("")
		}
		return
	}

	rows := make([][]string, 0, len(result.Applications))
	for _, app := range result.Applications {
		version := app.Version
		if version == "" {
			version = "-"
		}
		names := make([]string, 0, len(app.Categories))
		for _, c := range app.Categories {
			names = append(names, c.Name)
		}
		category := model.OtherCategory
		if len(names) > 0 {
			category = strings.Join(names, ", ")
		}
		website := "-"
		if app.Website != "" {
			website = app.Website
		}
		rows = append(rows, []string{
			"**" + app.Name + "**",
			version,
			strconv.Itoa(app.Confidence) + "%",
			category,
			website,
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Name", "Version", "Confidence", "Categories", "Website"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, result *model.Result) {
	failed := result.Failed()
	if len(failed) == 0 {
		return
	}

	md.H2("Failed Pages")
	md.PlainText("")

	rows := make([][]string, 0, len(failed))
	for _, u := range failed {
		rec := result.URLs[u]
		status := "-"
		if rec.Status != 0 {
			status = strconv.Itoa(rec.Status)
		}
		rows = append(rows, []string{
			"`" + truncateString(u, 80) + "`",
			status,
			errorLabel(rec.Error.Type),
			truncateString(rec.Error.Message, 60),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status", "Error", "Message"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by stackcrawl*")
}
