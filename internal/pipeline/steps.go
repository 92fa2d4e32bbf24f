package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/stackcrawl/internal/browser"
	"github.com/nao1215/stackcrawl/internal/crawler"
	"github.com/nao1215/stackcrawl/internal/fingerprint"
	"github.com/nao1215/stackcrawl/internal/model"
)

// ErrNoFingerprints is returned by CrawlStep.Do when no fingerprint
// database was configured.
var ErrNoFingerprints = errors.New("fingerprint database is required")

// OptionsFunc returns the crawl options for a seed host.
// config.Config.CrawlOptions has this shape.
type OptionsFunc func(host string) crawler.Options

// CrawlStep crawls the report's seed and attaches the aggregated result.
// Each Do builds its own engine and crawler, so one CrawlStep may serve
// several seeds at the same time.
type CrawlStep struct {
	factory     browser.Factory
	fingerprint *fingerprint.Database
	options     OptionsFunc
	onVisit     func(crawler.VisitEvent)
	onLog       func(crawler.LogEvent)
	logger      *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlOptions sets the function resolving per-host crawl options.
func WithCrawlOptions(fn OptionsFunc) CrawlStepOption {
	return func(s *CrawlStep) {
		if fn != nil {
			s.options = fn
		}
	}
}

// WithCrawlLogger sets a custom logger for the crawl step.
// The crawler and engine log through it as well.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVisitHandler registers fn for every analyzed page.
func WithVisitHandler(fn func(crawler.VisitEvent)) CrawlStepOption {
	return func(s *CrawlStep) {
		s.onVisit = fn
	}
}

// WithLogHandler registers fn for every crawl log event, whatever the
// crawl's Debug setting.
func WithLogHandler(fn func(crawler.LogEvent)) CrawlStepOption {
	return func(s *CrawlStep) {
		s.onLog = fn
	}
}

// NewCrawlStep creates a crawl step navigating with factory and matching
// pages against db.
func NewCrawlStep(factory browser.Factory, db *fingerprint.Database, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		factory:     factory,
		fingerprint: db,
		options: func(string) crawler.Options {
			return crawler.DefaultOptions()
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step.
func (s *CrawlStep) Do(ctx context.Context, report *model.ScanReport) error {
	if s.fingerprint == nil {
		return ErrNoFingerprints
	}

	engine := fingerprint.NewEngine(s.fingerprint, fingerprint.WithLogger(s.logger))
	c, err := crawler.New(s.factory, engine,
		crawler.WithLogger(s.logger),
		crawler.WithOptions(s.options(report.Host)),
	)
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}
	if s.onVisit != nil {
		c.OnVisit(s.onVisit)
	}
	if s.onLog != nil {
		c.OnLog(s.onLog)
	}

	result, err := c.Analyze(ctx, report.Seed)
	if err != nil {
		return fmt.Errorf("failed to crawl %s: %w", report.Seed, err)
	}
	report.SetResult(result)

	s.logger.Info("crawl completed",
		"seed", report.Seed,
		"pages", len(result.URLs),
		"failed", len(result.Failed()),
		"applications", len(result.Applications),
		"duration", report.Duration,
	)
	return nil
}

// ReportStore persists finished scan reports.
// database.CrawlDB satisfies it.
type ReportStore interface {
	SaveScanReport(ctx context.Context, report *model.ScanReport) (int64, error)
}

// PersistStep saves the report to the scan history.
// Reports carrying an error are saved too, so history shows failed runs.
type PersistStep struct {
	store  ReportStore
	logger *slog.Logger
}

// PersistStepOption configures a PersistStep.
type PersistStepOption func(*PersistStep)

// WithPersistLogger sets a custom logger for the persist step.
func WithPersistLogger(logger *slog.Logger) PersistStepOption {
	return func(s *PersistStep) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewPersistStep creates a persist step writing to store.
func NewPersistStep(store ReportStore, opts ...PersistStepOption) *PersistStep {
	s := &PersistStep{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do executes the persist step.
func (s *PersistStep) Do(ctx context.Context, report *model.ScanReport) error {
	id, err := s.store.SaveScanReport(ctx, report)
	if err != nil {
		return fmt.Errorf("failed to save scan report: %w", err)
	}
	s.logger.Debug("scan report saved",
		"seed", report.Seed,
		"id", id,
		"scan_id", report.ID,
	)
	return nil
}

// DefaultPipeline creates the standard seed pipeline: crawl, then persist
// when store is non-nil. Failed crawls still reach the persist step.
func DefaultPipeline(
	factory browser.Factory,
	db *fingerprint.Database,
	store ReportStore,
	pipelineOpts []Option,
	crawlOpts ...CrawlStepOption,
) *Pipeline {
	p := New(append([]Option{WithContinueOnError(true)}, pipelineOpts...)...)
	p.AddStep(NewCrawlStep(factory, db, append([]CrawlStepOption{WithCrawlLogger(p.logger)}, crawlOpts...)...))
	if store != nil {
		p.AddStep(NewPersistStep(store, WithPersistLogger(p.logger)))
	}
	return p
}
