package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/nao1215/stackcrawl/internal/browser"
	"github.com/nao1215/stackcrawl/internal/crawler"
	"github.com/nao1215/stackcrawl/internal/fingerprint"
	"github.com/nao1215/stackcrawl/internal/model"
)

const testFingerprints = `
categories:
  1: {name: CMS}
  59: {name: JavaScript libraries}
technologies:
  AcmeCMS:
    cats: [1]
    website: https://acme.example
    html: 'acme-cms-([\d.]+)\;version:\1'
  Zepto:
    cats: [59]
    scriptSrc: 'zepto\.js'
`

const testPage = `<!DOCTYPE html>
<html lang="en">
<head><title>Acme</title><script src="/static/zepto.js"></script></head>
<body class="acme-cms-2.1"><a href="/about">About</a></body>
</html>`

func newTestDatabase(t *testing.T) *fingerprint.Database {
	t.Helper()
	db, err := fingerprint.ParseDatabase([]byte(testFingerprints))
	if err != nil {
		t.Fatalf("ParseDatabase failed: %v", err)
	}
	return db
}

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(testPage))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// memoryStore is a ReportStore keeping reports in memory.
type memoryStore struct {
	mu      sync.Mutex
	reports []*model.ScanReport
	err     error
}

func (m *memoryStore) SaveScanReport(_ context.Context, report *model.ScanReport) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.reports = append(m.reports, report)
	return int64(len(m.reports)), nil
}

// TestNewCrawlStep tests the CrawlStep constructor and options.
func TestNewCrawlStep(t *testing.T) {
	t.Parallel()

	t.Run("creates with defaults", func(t *testing.T) {
		t.Parallel()

		step := NewCrawlStep(browser.NewHTTPFactory(), nil)
		if step.Name() != "crawl" {
			t.Errorf("expected name crawl, got %q", step.Name())
		}
		if step.logger == nil {
			t.Error("expected non-nil logger")
		}
		got := step.options("example.com")
		if got.MaxURLs != crawler.DefaultMaxURLs || got.ChunkSize != crawler.DefaultChunkSize {
			t.Errorf("expected default crawl options, got %+v", got)
		}
	})

	t.Run("applies WithCrawlOptions", func(t *testing.T) {
		t.Parallel()

		var asked string
		step := NewCrawlStep(browser.NewHTTPFactory(), nil, WithCrawlOptions(func(host string) crawler.Options {
			asked = host
			opts := crawler.DefaultOptions()
			opts.MaxURLs = 42
			return opts
		}))
		if got := step.options("example.com"); got.MaxURLs != 42 {
			t.Errorf("expected MaxURLs 42, got %d", got.MaxURLs)
		}
		if asked != "example.com" {
			t.Errorf("expected host example.com, got %q", asked)
		}
	})

	t.Run("ignores nil options func and logger", func(t *testing.T) {
		t.Parallel()

		step := NewCrawlStep(browser.NewHTTPFactory(), nil, WithCrawlOptions(nil), WithCrawlLogger(nil))
		if step.options == nil || step.logger == nil {
			t.Error("nil options must keep the defaults")
		}
	})
}

// TestCrawlStepDo tests crawling a live test server.
func TestCrawlStepDo(t *testing.T) {
	t.Parallel()

	t.Run("detects technologies on the seed page", func(t *testing.T) {
		t.Parallel()

		srv := newTestSite(t)
		var visits []string
		step := NewCrawlStep(browser.NewHTTPFactory(), newTestDatabase(t),
			WithVisitHandler(func(ev crawler.VisitEvent) {
				visits = append(visits, ev.URL.String())
			}),
		)

		report := model.NewScanReport(srv.URL + "/")
		if err := step.Do(t.Context(), report); err != nil {
			t.Fatalf("Do failed: %v", err)
		}

		if report.Result == nil {
			t.Fatal("expected result to be attached")
		}
		if len(report.Result.URLs) != 1 {
			t.Errorf("non-recursive crawl should record only the seed, got %v", report.Result.SortedURLs())
		}
		cms := report.Result.Application("AcmeCMS")
		if cms == nil {
			t.Fatalf("expected AcmeCMS detection, got %+v", report.Result.Applications)
		}
		if cms.Version != "2.1" {
			t.Errorf("expected version 2.1, got %q", cms.Version)
		}
		if report.Result.Application("Zepto") == nil {
			t.Error("expected Zepto detection from script src")
		}
		if report.Result.Meta.Language != "en" {
			t.Errorf("expected language en, got %q", report.Result.Meta.Language)
		}
		if report.SimpleReport == nil {
			t.Error("expected summary to be built")
		}
		if len(visits) != 1 {
			t.Errorf("expected one visit event, got %d", len(visits))
		}
	})

	t.Run("records failed seed without returning an error", func(t *testing.T) {
		t.Parallel()

		srv := newTestSite(t)
		var failures []string
		step := NewCrawlStep(browser.NewHTTPFactory(), newTestDatabase(t),
			WithLogHandler(func(ev crawler.LogEvent) {
				if ev.Message == "visit failed" {
					failures = append(failures, ev.URL)
				}
			}),
		)

		report := model.NewScanReport(srv.URL + "/missing")
		if err := step.Do(t.Context(), report); err != nil {
			t.Fatalf("Do failed: %v", err)
		}
		if len(failures) != 1 || failures[0] != srv.URL+"/missing" {
			t.Errorf("expected one failure log event for the seed, got %v", failures)
		}
		failed := report.Result.Failed()
		if len(failed) != 1 {
			t.Fatalf("expected one failed URL, got %v", failed)
		}
		rec := report.Result.URLs[failed[0]]
		if rec.Status != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Status)
		}
		if rec.Error.Type != model.ErrorResponseNotOK {
			t.Errorf("expected %s, got %s", model.ErrorResponseNotOK, rec.Error.Type)
		}
	})

	t.Run("fails without fingerprint database", func(t *testing.T) {
		t.Parallel()

		step := NewCrawlStep(browser.NewHTTPFactory(), nil)
		err := step.Do(t.Context(), model.NewScanReport("https://example.com/"))
		if !errors.Is(err, ErrNoFingerprints) {
			t.Errorf("expected ErrNoFingerprints, got %v", err)
		}
	})

	t.Run("fails for relative seed", func(t *testing.T) {
		t.Parallel()

		step := NewCrawlStep(browser.NewHTTPFactory(), newTestDatabase(t))
		err := step.Do(t.Context(), model.NewScanReport("not-a-url"))
		if !errors.Is(err, crawler.ErrNotAbsoluteURL) {
			t.Errorf("expected ErrNotAbsoluteURL, got %v", err)
		}
	})

	t.Run("fails without browser factory", func(t *testing.T) {
		t.Parallel()

		step := NewCrawlStep(nil, newTestDatabase(t))
		err := step.Do(t.Context(), model.NewScanReport("https://example.com/"))
		if !errors.Is(err, crawler.ErrNoBrowser) {
			t.Errorf("expected ErrNoBrowser, got %v", err)
		}
	})
}

// TestPersistStep tests saving reports through a ReportStore.
func TestPersistStep(t *testing.T) {
	t.Parallel()

	t.Run("saves the report", func(t *testing.T) {
		t.Parallel()

		store := &memoryStore{}
		step := NewPersistStep(store)
		if step.Name() != "persist" {
			t.Errorf("expected name persist, got %q", step.Name())
		}

		report := model.NewScanReport("https://example.com/")
		if err := step.Do(t.Context(), report); err != nil {
			t.Fatalf("Do failed: %v", err)
		}
		if len(store.reports) != 1 || store.reports[0] != report {
			t.Errorf("expected the report to be stored, got %v", store.reports)
		}
	})

	t.Run("wraps store errors", func(t *testing.T) {
		t.Parallel()

		errDisk := errors.New("disk full")
		step := NewPersistStep(&memoryStore{err: errDisk})
		err := step.Do(t.Context(), model.NewScanReport("https://example.com/"))
		if !errors.Is(err, errDisk) {
			t.Errorf("expected wrapped errDisk, got %v", err)
		}
	})
}

// TestDefaultPipeline tests the standard crawl-then-persist pipeline.
func TestDefaultPipeline(t *testing.T) {
	t.Parallel()

	t.Run("without store only crawls", func(t *testing.T) {
		t.Parallel()

		p := DefaultPipeline(browser.NewHTTPFactory(), newTestDatabase(t), nil, nil)
		if got := p.StepNames(); len(got) != 1 || got[0] != "crawl" {
			t.Errorf("expected [crawl], got %v", got)
		}
	})

	t.Run("persists successful crawls", func(t *testing.T) {
		t.Parallel()

		srv := newTestSite(t)
		store := &memoryStore{}
		p := DefaultPipeline(browser.NewHTTPFactory(), newTestDatabase(t), store, nil)
		if got := p.StepNames(); len(got) != 2 || got[1] != "persist" {
			t.Fatalf("expected [crawl persist], got %v", got)
		}

		report := model.NewScanReport(srv.URL + "/")
		if err := p.Execute(t.Context(), report); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if len(store.reports) != 1 {
			t.Fatalf("expected one stored report, got %d", len(store.reports))
		}
		if store.reports[0].Result.Application("AcmeCMS") == nil {
			t.Error("stored report should carry the detections")
		}
	})

	t.Run("persists failed crawls", func(t *testing.T) {
		t.Parallel()

		store := &memoryStore{}
		p := DefaultPipeline(browser.NewHTTPFactory(), nil, store, nil)

		report := model.NewScanReport("https://example.com/")
		if err := p.Execute(t.Context(), report); err != nil {
			t.Fatalf("Execute should not fail with continue-on-error: %v", err)
		}
		if !errors.Is(report.Error, ErrNoFingerprints) {
			t.Errorf("expected ErrNoFingerprints in report, got %v", report.Error)
		}
		if len(store.reports) != 1 {
			t.Errorf("expected the failed report to be stored, got %d", len(store.reports))
		}
	})
}
