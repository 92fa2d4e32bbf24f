package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/stackcrawl/internal/browser"
	"github.com/nao1215/stackcrawl/internal/model"
)

// Engine classifies page signals. Detections are delivered through the
// callback registered with OnDetected, on the goroutine calling Analyze.
type Engine interface {
	ScriptChains() model.ChainSet
	Analyze(ctx context.Context, pageURL *url.URL, signals *model.PageSignals) error
	OnDetected(fn model.DetectedFunc)
	CategoryName(id int) string
}

// Crawler drives a bounded crawl from a seed URL and aggregates what the
// fingerprinting engine detects along the way.
// A Crawler runs one crawl at a time.
type Crawler struct {
	factory browser.Factory
	engine  Engine
	opts    Options
	logger  *slog.Logger
	bus     eventBus

	running atomic.Bool

	mu      sync.Mutex
	current *traversalState
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// WithOptions sets the crawl options.
func WithOptions(opts Options) Option {
	return func(c *Crawler) {
		c.opts = opts
	}
}

// New creates a Crawler and registers its detection callback on engine.
func New(factory browser.Factory, engine Engine, opts ...Option) (*Crawler, error) {
	if factory == nil {
		return nil, ErrNoBrowser
	}
	if engine == nil {
		return nil, ErrNoEngine
	}

	c := &Crawler{
		factory: factory,
		engine:  engine,
		opts:    DefaultOptions(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.opts = c.opts.normalized()

	engine.OnDetected(func(detections []model.Detection, meta model.Meta) {
		c.mu.Lock()
		state := c.current
		c.mu.Unlock()
		if state == nil {
			return
		}
		state.upsert(detections, meta, engine.CategoryName)
	})

	return c, nil
}

// OnLog registers a handler for log events.
func (c *Crawler) OnLog(fn func(LogEvent)) {
	c.bus.onLog(fn)
}

// OnVisit registers a handler for visit events.
func (c *Crawler) OnVisit(fn func(VisitEvent)) {
	c.bus.onVisit(fn)
}

// Analyze crawls from seed and returns the aggregated result.
// Per-page failures are recorded in the result rather than returned.
// Canceling ctx stops pending pacing waits and navigations; the pages
// affected are recorded as failed.
func (c *Crawler) Analyze(ctx context.Context, seed string) (*model.Result, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrCrawlInProgress
	}
	defer c.running.Store(false)

	target, err := Normalize(seed)
	if err != nil {
		return nil, err
	}

	state := newTraversalState(c.opts.MaxURLs)
	c.mu.Lock()
	c.current = state
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()
	}()

	r := &run{
		crawler: c,
		opts:    c.opts,
		state:   state,
		chains:  c.engine.ScriptChains(),
		filter: LinkFilter{
			Hostname:       target.URL.Hostname(),
			IgnorePatterns: c.opts.IgnorePatterns,
			FollowPatterns: c.opts.FollowPatterns,
		},
	}
	if c.opts.RateLimit > 0 {
		burst := int(c.opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(c.opts.RateLimit), burst)
	}

	r.log(slog.LevelInfo, "crawler", "starting crawl",
		"seed", target.Href,
		"recursive", c.opts.Recursive,
		"max_depth", c.opts.MaxDepth,
		"max_urls", c.opts.MaxURLs,
	)

	// Depth d+1 starts only after every visit at depth d has finished.
	level := []string{target.Href}
	for depth := 1; len(level) > 0; depth++ {
		level = r.runLevel(ctx, level, depth)
	}

	result := state.snapshot()
	r.log(slog.LevelInfo, "crawler", "crawl finished",
		"urls", len(result.URLs),
		"applications", len(result.Applications),
	)
	return result, nil
}

// run carries the state of one Analyze call.
type run struct {
	crawler *Crawler
	opts    Options
	state   *traversalState
	chains  model.ChainSet
	filter  LinkFilter
	limiter *rate.Limiter
}

// log emits a log event and forwards it to the logger. Without Debug only
// errors reach the logger.
func (r *run) log(level slog.Level, source, msg string, args ...any) {
	ev := LogEvent{Message: msg, Source: source, Level: level}
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok && key == "url" {
			ev.URL, _ = args[i+1].(string)
			break
		}
	}
	r.crawler.bus.emitLog(ev)

	if !r.opts.Debug && level < slog.LevelError {
		return
	}
	args = append(args,
		"source", source,
		"elapsed", r.state.elapsed().Round(time.Millisecond).String(),
	)
	r.crawler.logger.Log(context.Background(), level, msg, args...)
}

// crawl schedules one URL and, in recursive mode below MaxDepth, returns
// at most MaxURLs of its outbound links for the next depth level.
func (r *run) crawl(ctx context.Context, raw string, batchIndex, depth int) []string {
	target, err := Normalize(raw)
	if err != nil {
		r.log(slog.LevelWarn, "crawler", "skipping invalid URL", "url", raw, "error", err)
		return nil
	}

	links := r.schedule(ctx, target, batchIndex, depth)

	if !r.opts.Recursive || depth >= r.opts.MaxDepth || len(links) == 0 {
		return nil
	}
	if r.opts.MaxURLs > 0 && len(links) > r.opts.MaxURLs {
		links = links[:r.opts.MaxURLs]
	}
	return links
}

// schedule deduplicates, paces and visits target. Failures are recorded on
// the visit record and never propagate.
func (r *run) schedule(ctx context.Context, target *NormalizedURL, batchIndex, depth int) []string {
	switch r.state.reserve(target.Href) {
	case duplicate:
		return nil
	case capReached:
		r.log(slog.LevelDebug, "scheduler", "URL limit reached, skipping", "url", target.Href)
		return nil
	}

	if err := r.pace(ctx, batchIndex); err != nil {
		r.fail(target, err)
		return nil
	}

	r.log(slog.LevelDebug, "scheduler", "visiting",
		"url", target.Canonical,
		"depth", depth,
		"batch_index", batchIndex,
	)

	links, err := r.safeVisit(ctx, target)
	if err != nil {
		r.fail(target, err)
		return nil
	}
	return links
}

// pace waits Delay*batchIndex and for a rate limiter token.
func (r *run) pace(ctx context.Context, batchIndex int) error {
	if wait := r.opts.Delay * time.Duration(batchIndex); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) fail(target *NormalizedURL, err error) {
	ve := classify(err)
	r.state.setError(target.Href, ve)
	r.log(slog.LevelWarn, "scheduler", "visit failed",
		"url", target.Href,
		"type", ve.Type.String(),
		"error", ve.Err,
	)
}

// safeVisit runs visit and converts a panic into an UNKNOWN_ERROR.
func (r *run) safeVisit(ctx context.Context, target *NormalizedURL) (links []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log(slog.LevelError, "scheduler", "visit panicked", "url", target.Href, "panic", rec)
			err = &VisitError{Type: model.ErrorUnknown, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	return r.visit(ctx, target)
}
