package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/stackcrawl/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "stackcrawl.db"

// scannedAtLayout sorts lexically in chronological order.
const scannedAtLayout = "2006-01-02 15:04:05.000000"

// CrawlDB stores scan reports and their per-URL visit records in SQLite.
type CrawlDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the CrawlDB inside dbDir.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer. Parallel seeds serialize their saves through this pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := cdb.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

func (cdb *CrawlDB) createTables(ctx context.Context) error {
	schema := `
	-- One row per scanned seed. The full report is kept as JSON.
	CREATE TABLE IF NOT EXISTS scan_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL UNIQUE,
		host TEXT NOT NULL,
		seed TEXT NOT NULL,
		scanned_at TEXT NOT NULL,
		report_json TEXT NOT NULL,
		summary_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reports_host ON scan_reports(host);
	CREATE INDEX IF NOT EXISTS idx_reports_scanned_at ON scan_reports(scanned_at);

	-- One row per visit record of a scan.
	CREATE TABLE IF NOT EXISTS visits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL,
		url TEXT NOT NULL,
		status INTEGER NOT NULL DEFAULT 0,
		error_type TEXT,
		error_message TEXT,
		UNIQUE(scan_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_visits_scan ON visits(scan_id);
	CREATE INDEX IF NOT EXISTS idx_visits_error ON visits(error_type);
	`
	_, err := cdb.db.ExecContext(ctx, schema)
	return err
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// VisitRow is a stored visit record.
type VisitRow struct {
	ID           int64
	ScanID       string
	URL          string
	Status       int
	ErrorType    model.ErrorType
	ErrorMessage string
}

// insertVisit stores or replaces the visit record of url within a scan.
func insertVisit(ctx context.Context, ex execer, scanID, url string, rec *model.VisitRecord) error {
	if rec == nil {
		return errors.New("nil visit record")
	}
	var errType, errMsg sql.NullString
	if rec.Error != nil {
		errType = sql.NullString{String: rec.Error.Type.String(), Valid: true}
		errMsg = sql.NullString{String: rec.Error.Message, Valid: true}
	}

	query := `
	INSERT INTO visits (scan_id, url, status, error_type, error_message)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(scan_id, url) DO UPDATE SET
		status = excluded.status,
		error_type = excluded.error_type,
		error_message = excluded.error_message
	`
	if _, err := ex.ExecContext(ctx, query, scanID, url, rec.Status, errType, errMsg); err != nil {
		return fmt.Errorf("failed to insert visit: %w", err)
	}
	return nil
}

// GetVisits returns the visit rows of a scan ordered by URL.
func (cdb *CrawlDB) GetVisits(ctx context.Context, scanID string) ([]VisitRow, error) {
	query := `
	SELECT id, scan_id, url, status, error_type, error_message
	FROM visits
	WHERE scan_id = ?
	ORDER BY url
	`
	rows, err := cdb.db.QueryContext(ctx, query, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to get visits: %w", err)
	}
	defer rows.Close()

	var results []VisitRow
	for rows.Next() {
		var row VisitRow
		var errType, errMsg sql.NullString
		if err := rows.Scan(&row.ID, &row.ScanID, &row.URL, &row.Status, &errType, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		row.ErrorType = model.ErrorType(errType.String)
		row.ErrorMessage = errMsg.String
		results = append(results, row)
	}
	return results, rows.Err()
}

// Summary is the per-scan digest kept next to the report JSON.
type Summary struct {
	Pages        int      `json:"pages"`
	Failed       int      `json:"failed"`
	Applications []string `json:"applications"`
}

func summarize(report *model.ScanReport) Summary {
	s := Summary{Applications: report.ApplicationNames()}
	if report.Result != nil {
		s.Pages = len(report.Result.URLs)
		s.Failed = len(report.Result.Failed())
	}
	if s.Applications == nil {
		s.Applications = []string{}
	}
	return s
}

// SaveScanReport stores a scan report and its visit records in one
// transaction and returns the report's row ID.
func (cdb *CrawlDB) SaveScanReport(ctx context.Context, report *model.ScanReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}
	summaryJSON, err := json.Marshal(summarize(report))
	if err != nil {
		return 0, fmt.Errorf("failed to serialize summary: %w", err)
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	query := `
	INSERT INTO scan_reports (scan_id, host, seed, scanned_at, report_json, summary_json)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	res, err := tx.ExecContext(ctx, query,
		report.ID,
		report.Host,
		report.Seed,
		report.DateScanned.UTC().Format(scannedAtLayout),
		string(reportJSON),
		string(summaryJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save scan report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read report id: %w", err)
	}

	if report.Result != nil {
		for _, u := range report.Result.SortedURLs() {
			if err := insertVisit(ctx, tx, report.ID, u, report.Result.URLs[u]); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit scan report: %w", err)
	}
	return id, nil
}

func decodeReport(reportJSON string) (*model.ScanReport, error) {
	var report model.ScanReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	if report.ErrorMessage != "" {
		report.Error = errors.New(report.ErrorMessage)
	}
	return &report, nil
}

// GetLatestScanReport retrieves the most recent scan report for a host.
// It returns nil, nil when the host was never scanned.
func (cdb *CrawlDB) GetLatestScanReport(ctx context.Context, host string) (*model.ScanReport, error) {
	query := `
	SELECT report_json FROM scan_reports
	WHERE host = ?
	ORDER BY scanned_at DESC, id DESC
	LIMIT 1
	`
	var reportJSON string
	err := cdb.db.QueryRowContext(ctx, query, host).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan report: %w", err)
	}
	return decodeReport(reportJSON)
}

// ListScannedHosts returns every host with at least one stored report.
func (cdb *CrawlDB) ListScannedHosts(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT DISTINCT host FROM scan_reports ORDER BY host`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []string
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, host)
	}
	return hosts, rows.Err()
}

// GetScanHistory retrieves all scan reports for a host, newest first.
// Rows whose JSON no longer parses are skipped.
func (cdb *CrawlDB) GetScanHistory(ctx context.Context, host string) ([]*model.ScanReport, error) {
	query := `
	SELECT report_json FROM scan_reports
	WHERE host = ?
	ORDER BY scanned_at DESC, id DESC
	`
	rows, err := cdb.db.QueryContext(ctx, query, host)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan history: %w", err)
	}
	defer rows.Close()

	var reports []*model.ScanReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		report, err := decodeReport(reportJSON)
		if err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// ScanReportMetadata describes a stored scan without loading the full report.
type ScanReportMetadata struct {
	// ID is the database row ID, used by GetScanReportByID.
	ID int64

	// ScanID is the report's own identifier.
	ScanID string

	Host      string
	Seed      string
	Timestamp time.Time
	Summary   Summary
}

// GetScanHistoryWithMetadata lists scan metadata for a host, newest first.
func (cdb *CrawlDB) GetScanHistoryWithMetadata(ctx context.Context, host string) ([]ScanReportMetadata, error) {
	query := `
	SELECT id, scan_id, host, seed, scanned_at, summary_json
	FROM scan_reports
	WHERE host = ?
	ORDER BY scanned_at DESC, id DESC
	`
	rows, err := cdb.db.QueryContext(ctx, query, host)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan history: %w", err)
	}
	defer rows.Close()

	var results []ScanReportMetadata
	for rows.Next() {
		var meta ScanReportMetadata
		var scannedAt string
		var summaryJSON sql.NullString

		if err := rows.Scan(&meta.ID, &meta.ScanID, &meta.Host, &meta.Seed, &scannedAt, &summaryJSON); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta.Timestamp = parseTimestamp(scannedAt)
		if summaryJSON.Valid && summaryJSON.String != "" {
			// A damaged summary leaves the zero Summary.
			_ = json.Unmarshal([]byte(summaryJSON.String), &meta.Summary) //nolint:errcheck,errchkjson // best effort
		}
		results = append(results, meta)
	}
	return results, rows.Err()
}

// GetScanReportByID retrieves a scan report by its row ID.
// It returns nil, nil when no such row exists.
func (cdb *CrawlDB) GetScanReportByID(ctx context.Context, id int64) (*model.ScanReport, error) {
	var reportJSON string
	err := cdb.db.QueryRowContext(ctx, `SELECT report_json FROM scan_reports WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan report: %w", err)
	}
	return decodeReport(reportJSON)
}

// timestampFormats are tried in order by parseTimestamp.
var timestampFormats = []string{
	scannedAtLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

// parseTimestamp returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
