package model

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScanReport is the outcome of scanning one seed URL.
// It wraps the crawl Result with bookkeeping used by persistence and
// report output.
type ScanReport struct {
	// ID identifies the scan run.
	ID string `json:"id"`

	// Seed is the URL the crawl started from.
	Seed string `json:"seed"`

	// Host is the lower-cased hostname of the seed.
	Host string `json:"host"`

	// DateScanned is when the scan started.
	DateScanned time.Time `json:"date_scanned"`

	// Duration is how long the crawl took.
	Duration time.Duration `json:"duration"`

	// Result is the crawl result. Nil if the crawl never started.
	Result *Result `json:"result,omitempty"`

	// SimpleReport contains the summarized findings for human-readable output.
	SimpleReport *SimpleReport `json:"simple_report,omitempty"`

	// Error contains any error that occurred during scanning.
	Error error `json:"-"`

	// ErrorMessage is the string representation of Error for serialization.
	ErrorMessage string `json:"error,omitempty"` //nolint:tagliatelle // error is conventional
}

// NewScanReport creates a new report for the given seed URL.
func NewScanReport(seed string) *ScanReport {
	report := &ScanReport{
		ID:          uuid.NewString(),
		Seed:        seed,
		DateScanned: time.Now(),
	}
	if u, err := url.Parse(seed); err == nil {
		report.Host = strings.ToLower(u.Hostname())
	}
	return report
}

// SetResult attaches the crawl result and refreshes the summary.
func (r *ScanReport) SetResult(result *Result) {
	r.Result = result
	r.Duration = time.Since(r.DateScanned)
	r.SimpleReport = NewSimpleReport(r)
}

// SetError records a scan failure.
func (r *ScanReport) SetError(err error) {
	r.Error = err
	if err != nil {
		r.ErrorMessage = err.Error()
	}
}

// ApplicationNames returns the detected application names in detection order.
func (r *ScanReport) ApplicationNames() []string {
	if r.Result == nil {
		return nil
	}
	names := make([]string, 0, len(r.Result.Applications))
	for _, app := range r.Result.Applications {
		names = append(names, app.Name)
	}
	return names
}
