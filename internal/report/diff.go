package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/nao1215/stackcrawl/internal/model"
)

// ScanDigest is the part of a scan shown in a comparison.
type ScanDigest struct {
	ID           string    `json:"id"`
	DateScanned  time.Time `json:"date_scanned"`
	PagesVisited int       `json:"pages_visited"`
	PagesFailed  int       `json:"pages_failed"`
	Applications int       `json:"applications"`
}

// VersionChange is an application detected in both scans with a
// different version.
type VersionChange struct {
	Name string `json:"name"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Comparison is the difference between two scans of the same host.
type Comparison struct {
	Host           string                      `json:"host"`
	Previous       ScanDigest                  `json:"previous"`
	Current        ScanDigest                  `json:"current"`
	Added          []model.DetectedApplication `json:"added,omitempty"`
	Removed        []model.DetectedApplication `json:"removed,omitempty"`
	VersionChanges []VersionChange             `json:"version_changes,omitempty"`
	UnchangedCount int                         `json:"unchanged_count"`
}

// HasChanges reports whether the application sets or versions differ.
func (c *Comparison) HasChanges() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0 || len(c.VersionChanges) > 0
}

func digest(report *model.ScanReport) ScanDigest {
	d := ScanDigest{ID: report.ID, DateScanned: report.DateScanned}
	if report.Result != nil {
		d.PagesVisited = len(report.Result.URLs)
		d.PagesFailed = len(report.Result.Failed())
		d.Applications = len(report.Result.Applications)
	}
	return d
}

func applicationsByName(report *model.ScanReport) map[string]model.DetectedApplication {
	apps := make(map[string]model.DetectedApplication)
	if report.Result == nil {
		return apps
	}
	for _, app := range report.Result.Applications {
		apps[app.Name] = app
	}
	return apps
}

// DiffApplications compares the technologies detected by two scans.
// Output slices are sorted by application name.
func DiffApplications(previous, current *model.ScanReport) *Comparison {
	c := &Comparison{
		Host:     current.Host,
		Previous: digest(previous),
		Current:  digest(current),
	}

	prev := applicationsByName(previous)
	curr := applicationsByName(current)

	for name, app := range curr {
		old, ok := prev[name]
		switch {
		case !ok:
			c.Added = append(c.Added, app)
		case old.Version != app.Version:
			c.VersionChanges = append(c.VersionChanges, VersionChange{Name: name, From: old.Version, To: app.Version})
		default:
			c.UnchangedCount++
		}
	}
	for name, app := range prev {
		if _, ok := curr[name]; !ok {
			c.Removed = append(c.Removed, app)
		}
	}

	sort.Slice(c.Added, func(i, j int) bool { return c.Added[i].Name < c.Added[j].Name })
	sort.Slice(c.Removed, func(i, j int) bool { return c.Removed[i].Name < c.Removed[j].Name })
	sort.Slice(c.VersionChanges, func(i, j int) bool { return c.VersionChanges[i].Name < c.VersionChanges[j].Name })
	return c
}

// WriteComparisonJSON writes c as indented JSON.
func WriteComparisonJSON(w io.Writer, c *Comparison) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}

// WriteComparisonText writes c for the terminal.
func WriteComparisonText(w io.Writer, c *Comparison) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Scan Comparison: %s\n", c.Host)
	sb.WriteString(strings.Repeat("=", 60) + "\n\n")
	fmt.Fprintf(&sb, "Previous scan: %s\n", c.Previous.DateScanned.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Current scan:  %s\n\n", c.Current.DateScanned.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(&sb, "  %-14s  %-10s  %-10s  %-10s\n", "", "Previous", "Current", "Change")
	sb.WriteString("  " + strings.Repeat("-", 50) + "\n")
	for _, row := range []struct {
		label      string
		prev, curr int
	}{
		{"Pages", c.Previous.PagesVisited, c.Current.PagesVisited},
		{"Failed", c.Previous.PagesFailed, c.Current.PagesFailed},
		{"Technologies", c.Previous.Applications, c.Current.Applications},
	} {
		fmt.Fprintf(&sb, "  %-14s  %-10d  %-10d  %-10s\n", row.label, row.prev, row.curr, formatDelta(row.curr-row.prev))
	}

	if !c.HasChanges() {
		sb.WriteString("\nNo technology changes.\n")
	}
	if len(c.Added) > 0 {
		fmt.Fprintf(&sb, "\nAdded (%d):\n", len(c.Added))
		for _, app := range c.Added {
			fmt.Fprintf(&sb, "  [+] %s %s\n", app.Name, app.Version)
		}
	}
	if len(c.Removed) > 0 {
		fmt.Fprintf(&sb, "\nRemoved (%d):\n", len(c.Removed))
		for _, app := range c.Removed {
			fmt.Fprintf(&sb, "  [-] %s %s\n", app.Name, app.Version)
		}
	}
	if len(c.VersionChanges) > 0 {
		fmt.Fprintf(&sb, "\nVersion changes (%d):\n", len(c.VersionChanges))
		for _, v := range c.VersionChanges {
			fmt.Fprintf(&sb, "  [~] %s: %s -> %s\n", v.Name, orDash(v.From), orDash(v.To))
		}
	}
	if c.UnchangedCount > 0 {
		fmt.Fprintf(&sb, "\nUnchanged: %d technologies\n", c.UnchangedCount)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteComparisonMarkdown writes c as Markdown.
func WriteComparisonMarkdown(w io.Writer, c *Comparison) error {
	md := markdown.NewMarkdown(w)

	md.H1("Scan Comparison: " + c.Host)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Date", c.Previous.DateScanned.Format("2006-01-02 15:04"), c.Current.DateScanned.Format("2006-01-02 15:04"), "-"},
			{"Pages", strconv.Itoa(c.Previous.PagesVisited), strconv.Itoa(c.Current.PagesVisited), formatDelta(c.Current.PagesVisited - c.Previous.PagesVisited)},
			{"Failed", strconv.Itoa(c.Previous.PagesFailed), strconv.Itoa(c.Current.PagesFailed), formatDelta(c.Current.PagesFailed - c.Previous.PagesFailed)},
			{"Technologies", strconv.Itoa(c.Previous.Applications), strconv.Itoa(c.Current.Applications), formatDelta(c.Current.Applications - c.Previous.Applications)},
		},
	})
	md.PlainText("")

	if !c.HasChanges() {
		md.Note("No technology changes between the two scans.")
		md.PlainText("")
	}
	if len(c.Added) > 0 {
		md.H2(fmt.Sprintf("Added (%d)", len(c.Added)))
		md.PlainText("")
		items := make([]string, 0, len(c.Added))
		for _, app := range c.Added {
			items = append(items, strings.TrimSpace("**"+app.Name+"** "+app.Version))
		}
		md.BulletList(items...)
		md.PlainText("")
	}
	if len(c.Removed) > 0 {
		md.H2(fmt.Sprintf("Removed (%d)", len(c.Removed)))
		md.PlainText("")
		items := make([]string, 0, len(c.Removed))
		for _, app := range c.Removed {
			items = append(items, "~~"+strings.TrimSpace(app.Name+" "+app.Version)+"~~")
		}
		md.BulletList(items...)
		md.PlainText("")
	}
	if len(c.VersionChanges) > 0 {
		md.H2(fmt.Sprintf("Version Changes (%d)", len(c.VersionChanges)))
		md.PlainText("")
		rows := make([][]string, 0, len(c.VersionChanges))
		for _, v := range c.VersionChanges {
			rows = append(rows, []string{v.Name, orDash(v.From), orDash(v.To)})
		}
		md.Table(markdown.TableSet{Header: []string{"Name", "From", "To"}, Rows: rows})
		md.PlainText("")
	}
	if c.UnchangedCount > 0 {
		md.PlainText(fmt.Sprintf("*%d technologies unchanged*", c.UnchangedCount))
	}
	return md.Build()
}
