package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/stackcrawl/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name   string
	doFunc func(ctx context.Context, report *model.ScanReport) error

	mu        sync.Mutex
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, report *model.ScanReport) error {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()
	if m.doFunc != nil {
		return m.doFunc(ctx, report)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func (m *mockStep) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.continueOnError {
			t.Error("expected continueOnError to default to false")
		}
		if p.logger == nil {
			t.Error("expected non-nil logger")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		p := New(WithContinueOnError(true))
		if !p.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

// TestPipelineAddStep tests adding steps to the pipeline.
func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddStep(&mockStep{name: "first"})
	p.AddSteps(&mockStep{name: "second"}, &mockStep{name: "third"})

	want := []string{"first", "second", "third"}
	if diff := cmp.Diff(want, p.StepNames()); diff != "" {
		t.Errorf("StepNames() mismatch (-want +got):\n%s", diff)
	}
	if p.StepCount() != 3 {
		t.Errorf("expected 3 steps, got %d", p.StepCount())
	}
}

// TestPipelineExecute tests pipeline execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		record := func(name string) func(context.Context, *model.ScanReport) error {
			return func(context.Context, *model.ScanReport) error {
				order = append(order, name)
				return nil
			}
		}

		p := New()
		p.AddSteps(
			&mockStep{name: "crawl", doFunc: record("crawl")},
			&mockStep{name: "persist", doFunc: record("persist")},
		)

		report := model.NewScanReport("https://example.com/")
		if err := p.Execute(t.Context(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]string{"crawl", "persist"}, order); diff != "" {
			t.Errorf("execution order mismatch (-want +got):\n%s", diff)
		}
		if report.Error != nil {
			t.Errorf("expected no report error, got %v", report.Error)
		}
	})

	t.Run("stops on first error by default", func(t *testing.T) {
		t.Parallel()

		errCrawl := errors.New("crawl failed")
		first := &mockStep{name: "crawl", doFunc: func(context.Context, *model.ScanReport) error {
			return errCrawl
		}}
		second := &mockStep{name: "persist"}

		p := New()
		p.AddSteps(first, second)

		report := model.NewScanReport("https://example.com/")
		err := p.Execute(t.Context(), report)
		if !errors.Is(err, errCrawl) {
			t.Fatalf("expected errCrawl, got %v", err)
		}
		if second.calls() != 0 {
			t.Error("second step should not run after a failure")
		}
		if report.ErrorMessage != "crawl failed" {
			t.Errorf("expected error message to be recorded, got %q", report.ErrorMessage)
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		second := &mockStep{name: "persist"}
		p := New(WithContinueOnError(true))
		p.AddSteps(
			&mockStep{name: "crawl", doFunc: func(context.Context, *model.ScanReport) error {
				return errors.New("first failure")
			}},
			second,
			&mockStep{name: "notify", doFunc: func(context.Context, *model.ScanReport) error {
				return errors.New("second failure")
			}},
		)

		report := model.NewScanReport("https://example.com/")
		if err := p.Execute(t.Context(), report); err != nil {
			t.Fatalf("expected nil error with continueOnError, got %v", err)
		}
		if second.calls() != 1 {
			t.Errorf("expected second step to run once, got %d", second.calls())
		}
		if report.ErrorMessage != "first failure" {
			t.Errorf("expected the first failure to be kept, got %q", report.ErrorMessage)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		step := &mockStep{name: "crawl"}
		p := New()
		p.AddStep(step)

		cancel()
		report := model.NewScanReport("https://example.com/")
		err := p.Execute(ctx, report)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if step.calls() != 0 {
			t.Error("step should not run after cancellation")
		}
		if !errors.Is(report.Error, context.Canceled) {
			t.Errorf("expected report error to be context.Canceled, got %v", report.Error)
		}
	})

	t.Run("empty pipeline succeeds", func(t *testing.T) {
		t.Parallel()

		if err := New().Execute(t.Context(), model.NewScanReport("https://example.com/")); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

// TestPipelineStepNames tests StepNames on an empty pipeline.
func TestPipelineStepNames(t *testing.T) {
	t.Parallel()

	names := New().StepNames()
	if names == nil || len(names) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", names)
	}
}
