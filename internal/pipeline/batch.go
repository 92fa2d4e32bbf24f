package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/stackcrawl/internal/model"
)

// DefaultConcurrency is the number of seeds scanned at once when
// WithConcurrency is not given.
const DefaultConcurrency = 10

// BatchProcessor scans several seeds with bounded parallelism.
// Every seed gets a fresh Pipeline from the factory, so per-seed state
// such as the crawler's visit records never leaks between seeds.
type BatchProcessor struct {
	pipelineFactory func() *Pipeline
	concurrency     int
	logger          *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent seed scans.
// Non-positive values keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch scans seeds concurrently and returns one report per seed,
// in input order. A failed seed does not stop the others; its error is
// recorded in its report. Seeds not started before ctx was cancelled get
// a report carrying the context error, and ProcessBatch returns it.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, seeds []string) ([]*model.ScanReport, error) {
	bp.logger.Info("starting batch processing",
		"total_seeds", len(seeds),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	results := make([]*model.ScanReport, len(seeds))
	err := bp.run(ctx, seeds, func(report *model.ScanReport, index int) {
		results[index] = report
	})

	bp.logger.Info("batch processing complete",
		"total_seeds", len(seeds),
		"elapsed", time.Since(startTime),
	)
	return results, err
}

// ProcessBatchWithCallback scans seeds and hands each report to callback
// as soon as it completes, together with the seed's index in seeds.
// The callback runs on the scanning goroutine and must be safe for
// concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	seeds []string,
	callback func(report *model.ScanReport, index int),
) error {
	bp.logger.Info("starting batch processing with callback",
		"total_seeds", len(seeds),
		"concurrency", bp.concurrency,
	)
	return bp.run(ctx, seeds, callback)
}

func (bp *BatchProcessor) run(ctx context.Context, seeds []string, done func(*model.ScanReport, int)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			report := model.NewScanReport(seed)
			if err := ctx.Err(); err != nil {
				report.SetError(err)
				done(report, i)
				return err
			}

			bp.logger.Info("scanning seed",
				"seed", seed,
				"index", i+1,
				"total", len(seeds),
			)

			if err := bp.pipelineFactory().Execute(ctx, report); err != nil {
				bp.logger.Warn("scan failed",
					"seed", seed,
					"error", err,
				)
			} else {
				bp.logger.Info("scan completed",
					"seed", seed,
					"duration", report.Duration,
				)
			}
			done(report, i)
			// Failures stay in the report so the other seeds keep running.
			return nil
		})
	}
	return g.Wait()
}
