package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/stackcrawl/internal/config"
	"github.com/nao1215/stackcrawl/internal/database"
	"github.com/nao1215/stackcrawl/internal/model"
	"github.com/nao1215/stackcrawl/internal/report"
)

// NewHistoryCmd creates the history command.
// It compares the technologies of stored scans of one host.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [host]",
		Short: "Compare scan results with historical data",
		Long: `History shows how the technologies detected on a host changed between scans.

By default the two latest scans of the host are compared: technologies that
appeared, disappeared, or changed version. Every 'stackcrawl scan' stores its
result unless --no-db was given.

The host may be given as a hostname or as a URL.

Examples:
  # Compare the two latest scans of a host
  stackcrawl history example.com

  # List the stored scans of a host
  stackcrawl history --list example.com

  # Compare the latest scan with scan #5
  stackcrawl history --with-scan-id 5 example.com

  # Compare the latest scan with the first one since a date
  stackcrawl history --since 2026-01-01 example.com

  # Show the status of every URL visited by the latest scan
  stackcrawl history --urls example.com

  # Show the URLs of scan #5
  stackcrawl history --urls --with-scan-id 5 example.com

  # List every host in the database
  stackcrawl history --list-hosts`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list", "l", false,
		"List scan history for the specified host")
	cmd.Flags().BoolP("list-hosts", "L", false,
		"List all scanned hosts in the database")
	cmd.Flags().BoolP("urls", "U", false,
		"Show the visited URLs of the latest scan, or of --with-scan-id")
	cmd.Flags().Int64P("with-scan-id", "i", 0,
		"Compare with a specific scan by ID (use --list to see available IDs)")
	cmd.Flags().StringP("since", "s", "",
		"Compare with the first scan on or after this date (format: YYYY-MM-DD)")
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory holding the history database")

	return cmd
}

// historyOptions holds the parsed history flags.
type historyOptions struct {
	host       string
	list       bool
	listHosts  bool
	urls       bool
	withScanID int64
	since      string
	json       bool
	markdown   bool
	dbDir      string
}

func parseHistoryFlags(cmd *cobra.Command, args []string) (*historyOptions, error) {
	opts := &historyOptions{}
	flags := cmd.Flags()
	var err error

	if opts.list, err = flags.GetBool("list"); err != nil {
		return nil, err
	}
	if opts.listHosts, err = flags.GetBool("list-hosts"); err != nil {
		return nil, err
	}
	if opts.urls, err = flags.GetBool("urls"); err != nil {
		return nil, err
	}
	if opts.withScanID, err = flags.GetInt64("with-scan-id"); err != nil {
		return nil, err
	}
	if opts.since, err = flags.GetString("since"); err != nil {
		return nil, err
	}
	if opts.json, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if opts.markdown, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if opts.dbDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}

	if opts.json && opts.markdown {
		return nil, config.ErrConflictingReportFormats
	}
	if opts.withScanID != 0 && opts.since != "" {
		return nil, errors.New("--with-scan-id and --since cannot be used together")
	}
	if opts.urls && opts.since != "" {
		return nil, errors.New("--urls and --since cannot be used together")
	}
	if opts.listHosts {
		return opts, nil
	}
	if len(args) == 0 {
		return nil, errors.New("host is required (use --list-hosts to see scanned hosts)")
	}
	if opts.host, err = normalizeHost(args[0]); err != nil {
		return nil, err
	}
	return opts, nil
}

// normalizeHost accepts "example.com", "Example.COM" or a URL and returns
// the lower-cased hostname the scan history is keyed by.
func normalizeHost(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if strings.Contains(arg, "://") {
		u, err := url.Parse(arg)
		if err != nil || u.Hostname() == "" {
			return "", fmt.Errorf("invalid host %q", arg)
		}
		return strings.ToLower(u.Hostname()), nil
	}
	host := strings.TrimSuffix(arg, "/")
	if host == "" || strings.ContainsAny(host, "/ ") {
		return "", fmt.Errorf("invalid host %q", arg)
	}
	return strings.ToLower(host), nil
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	// Validate before opening the database.
	opts, err := parseHistoryFlags(cmd, args)
	if err != nil {
		return err
	}

	db, err := database.Open(opts.dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case opts.listHosts:
		return listScannedHosts(ctx, out, db)
	case opts.list:
		return listScanHistory(ctx, out, db, opts.host)
	case opts.urls:
		return listScanVisits(ctx, out, db, opts)
	default:
		return runComparison(ctx, out, db, opts)
	}
}

// listScannedHosts lists all hosts that have scan records in the database.
func listScannedHosts(ctx context.Context, out io.Writer, db *database.CrawlDB) error {
	hosts, err := db.ListScannedHosts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list hosts: %w", err)
	}

	if len(hosts) == 0 {
		fmt.Fprintln(out, "No scanned hosts found in the database.")
		fmt.Fprintln(out, "\nUse 'stackcrawl scan <url>' to scan a site.")
		return nil
	}

	fmt.Fprintf(out, "Scanned hosts (%d):\n\n", len(hosts))
	for _, host := range hosts {
		fmt.Fprintf(out, "  • %s\n", host)
	}
	fmt.Fprintln(out, "\nUse 'stackcrawl history --list <host>' to see the scans of a host.")
	return nil
}

// listScanHistory lists all scan records for one host, newest first.
func listScanHistory(ctx context.Context, out io.Writer, db *database.CrawlDB, host string) error {
	metas, err := db.GetScanHistoryWithMetadata(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to get scan history: %w", err)
	}

	if len(metas) == 0 {
		fmt.Fprintf(out, "No scan history found for %s\n", host)
		fmt.Fprintln(out, "\nUse 'stackcrawl scan' to scan this host.")
		return nil
	}

	fmt.Fprintf(out, "Scan history for %s (%d scans):\n\n", host, len(metas))
	fmt.Fprintf(out, "  %-6s  %-20s  %-7s  %-7s  %s\n", "ID", "Date", "Pages", "Failed", "Technologies")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 70))
	for _, meta := range metas {
		fmt.Fprintf(out, "  %-6d  %-20s  %-7d  %-7d  %s\n",
			meta.ID,
			meta.Timestamp.Local().Format("2006-01-02 15:04:05"),
			meta.Summary.Pages,
			meta.Summary.Failed,
			formatApplications(meta.Summary.Applications),
		)
	}

	fmt.Fprintln(out, "\nUse 'stackcrawl history <host>' to compare the latest two scans.")
	fmt.Fprintln(out, "Use 'stackcrawl history --with-scan-id <id> <host>' to compare with a specific scan.")
	return nil
}

// listScanVisits prints the per-URL visit records of one stored scan.
func listScanVisits(ctx context.Context, out io.Writer, db *database.CrawlDB, opts *historyOptions) error {
	var (
		scan *model.ScanReport
		err  error
	)
	if opts.withScanID > 0 {
		scan, err = scanByID(ctx, db, opts.withScanID, opts.host)
	} else {
		scan, err = db.GetLatestScanReport(ctx, opts.host)
		if err == nil && scan == nil {
			err = fmt.Errorf("no scan history found for %s", opts.host)
		}
	}
	if err != nil {
		return err
	}

	visits, err := db.GetVisits(ctx, scan.ID)
	if err != nil {
		return fmt.Errorf("failed to get visits: %w", err)
	}

	fmt.Fprintf(out, "Visited URLs for %s, scan of %s (%d URLs):\n\n",
		opts.host, scan.DateScanned.Local().Format("2006-01-02 15:04:05"), len(visits))
	fmt.Fprintf(out, "  %-6s  %-16s  %s\n", "Status", "Error", "URL")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 70))
	for _, v := range visits {
		status := "-"
		if v.Status != 0 {
			status = fmt.Sprintf("%d", v.Status)
		}
		errType := "-"
		if v.ErrorType != "" {
			errType = v.ErrorType.String()
		}
		fmt.Fprintf(out, "  %-6s  %-16s  %s\n", status, errType, v.URL)
		if v.ErrorMessage != "" {
			fmt.Fprintf(out, "  %-6s  %-16s    %s\n", "", "", v.ErrorMessage)
		}
	}
	return nil
}

// formatApplications shortens an application list for one table cell.
func formatApplications(apps []string) string {
	const maxShown = 4
	switch {
	case len(apps) == 0:
		return "none"
	case len(apps) <= maxShown:
		return strings.Join(apps, ", ")
	default:
		return fmt.Sprintf("%s, +%d more", strings.Join(apps[:maxShown], ", "), len(apps)-maxShown)
	}
}

// runComparison compares the latest scan of a host with an earlier one.
func runComparison(ctx context.Context, out io.Writer, db *database.CrawlDB, opts *historyOptions) error {
	reports, err := db.GetScanHistory(ctx, opts.host)
	if err != nil {
		return fmt.Errorf("failed to get scan history: %w", err)
	}
	if len(reports) == 0 {
		return fmt.Errorf("no scan history found for %s", opts.host)
	}

	current := reports[0]
	previous, err := selectPrevious(ctx, db, reports, opts)
	if err != nil {
		return err
	}

	comparison := report.DiffApplications(previous, current)
	switch {
	case opts.json:
		return report.WriteComparisonJSON(out, comparison)
	case opts.markdown:
		return report.WriteComparisonMarkdown(out, comparison)
	default:
		return report.WriteComparisonText(out, comparison)
	}
}

// selectPrevious picks the baseline scan. reports is newest first.
func selectPrevious(ctx context.Context, db *database.CrawlDB, reports []*model.ScanReport, opts *historyOptions) (*model.ScanReport, error) {
	switch {
	case opts.withScanID > 0:
		return scanByID(ctx, db, opts.withScanID, opts.host)

	case opts.since != "":
		since, err := time.ParseInLocation("2006-01-02", opts.since, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}
		// Oldest first: the first scan on or after the date.
		for i := len(reports) - 1; i > 0; i-- {
			if !reports[i].DateScanned.Before(since) {
				return reports[i], nil
			}
		}
		if !reports[0].DateScanned.Before(since) {
			return nil, fmt.Errorf("only one scan found since %s; at least 2 scans are required for comparison", opts.since)
		}
		return nil, fmt.Errorf("no scans found since %s", opts.since)

	default:
		if len(reports) < 2 {
			return nil, fmt.Errorf("at least 2 scans are required for comparison (found %d)", len(reports))
		}
		return reports[1], nil
	}
}

// scanByID loads a stored scan and checks that it belongs to host.
func scanByID(ctx context.Context, db *database.CrawlDB, id int64, host string) (*model.ScanReport, error) {
	scan, err := db.GetScanReportByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan with ID %d: %w", id, err)
	}
	if scan == nil {
		return nil, fmt.Errorf("scan with ID %d not found", id)
	}
	if scan.Host != host {
		return nil, fmt.Errorf("scan ID %d belongs to %s, not %s", id, scan.Host, host)
	}
	return scan, nil
}
