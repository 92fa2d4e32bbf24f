package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/stackcrawl/internal/model"
)

// Step is one stage of a seed scan. Steps run in sequence and share the
// report built by the steps before them.
type Step interface {
	// Do executes the step. A returned error marks the scan as failed;
	// per-page problems belong in the report, not here.
	Do(ctx context.Context, report *model.ScanReport) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline runs its steps in order for one seed.
type Pipeline struct {
	steps []Step

	logger *slog.Logger

	// continueOnError keeps running later steps after one fails.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to keep executing steps
// after one fails. The first failure stays recorded in the report.
// A failed crawl is still worth persisting so history shows the error.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps in sequence. Cancellation is checked between
// steps; each step is expected to honor ctx on its own.
//
// It returns the first step error unless continueOnError is set, in which
// case it returns nil and the error is only recorded in the report.
func (p *Pipeline) Execute(ctx context.Context, report *model.ScanReport) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"seed", report.Seed,
				"reason", err,
			)
			if report.Error == nil {
				report.SetError(err)
			}
			return err
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"seed", report.Seed,
		)

		if err := step.Do(ctx, report); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"seed", report.Seed,
				"error", err,
			)
			if report.Error == nil {
				report.SetError(err)
			}
			if !p.continueOnError {
				return err
			}
			continue
		}

		p.logger.Debug("step completed",
			"step", step.Name(),
			"seed", report.Seed,
		)
	}
	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
