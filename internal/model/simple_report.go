package model

import "time"

// OtherCategory groups applications without a category.
const OtherCategory = "Other"

// SimpleReport is a summarized, human-readable report.
// It counts visit outcomes and lists detected technologies per category.
type SimpleReport struct {
	// Seed is the URL the crawl started from.
	Seed string `json:"seed"`

	// DateScanned is when the scan was performed.
	DateScanned time.Time `json:"date_scanned"`

	// PagesVisited is the number of URLs with a visit record.
	PagesVisited int `json:"pages_visited"`

	// PagesOK is the number of URLs answered with status 200.
	PagesOK int `json:"pages_ok"`

	// PagesFailed is the number of URLs whose visit ended with an error.
	PagesFailed int `json:"pages_failed"`

	// ErrorCounts counts failures per error type.
	ErrorCounts map[ErrorType]int `json:"error_counts,omitempty"`

	// ApplicationCount is the number of detected technologies.
	ApplicationCount int `json:"application_count"`

	// ByCategory lists application names per category name.
	ByCategory map[string][]string `json:"by_category,omitempty"`

	// Language is the reported document language.
	Language string `json:"language,omitempty"`

	// Error contains any error message if the scan failed.
	Error string `json:"error,omitempty"`
}

// NewSimpleReport creates a new SimpleReport from a ScanReport.
func NewSimpleReport(report *ScanReport) *SimpleReport {
	simple := &SimpleReport{
		Seed:        report.Seed,
		DateScanned: report.DateScanned,
		ErrorCounts: make(map[ErrorType]int),
		ByCategory:  make(map[string][]string),
		Error:       report.ErrorMessage,
	}
	if report.Result == nil {
		return simple
	}

	simple.countVisits(report.Result)
	simple.groupApplications(report.Result)
	simple.Language = report.Result.Meta.Language
	return simple
}

func (s *SimpleReport) countVisits(result *Result) {
	s.PagesVisited = len(result.URLs)
	for _, rec := range result.URLs {
		if rec.Failed() {
			s.PagesFailed++
			s.ErrorCounts[rec.Error.Type]++
			continue
		}
		if rec.Status == 200 {
			s.PagesOK++
		}
	}
}

func (s *SimpleReport) groupApplications(result *Result) {
	s.ApplicationCount = len(result.Applications)
	for _, app := range result.Applications {
		if len(app.Categories) == 0 {
			s.ByCategory[OtherCategory] = append(s.ByCategory[OtherCategory], app.Name)
			continue
		}
		for _, cat := range app.Categories {
			s.ByCategory[cat.Name] = append(s.ByCategory[cat.Name], app.Name)
		}
	}
}

// HasErrors reports whether any visit failed or the scan itself failed.
func (s *SimpleReport) HasErrors() bool {
	return s.PagesFailed > 0 || s.Error != ""
}
