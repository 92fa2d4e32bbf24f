package crawler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/stackcrawl/internal/browser"
	"github.com/nao1215/stackcrawl/internal/model"
)

// visit fetches one page through a fresh browser, validates the response,
// hands the page signals to the engine and returns the outbound links.
func (r *run) visit(ctx context.Context, target *NormalizedURL) ([]string, error) {
	b, err := r.crawler.factory(r.browserOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create browser: %w", err)
	}

	res, err := b.Navigate(ctx, target.Href)
	if err != nil {
		return nil, &VisitError{Type: model.ErrorNoResponse, Err: err}
	}
	if res == nil || res.StatusCode == 0 {
		return nil, newVisitError(model.ErrorNoResponse, "no response from %s", target.Href)
	}

	r.state.setStatus(target.Href, res.StatusCode)
	if res.StatusCode != 200 {
		return nil, newVisitError(model.ErrorResponseNotOK, "response status %d", res.StatusCode)
	}

	if !res.IsHTML() {
		r.state.discard(target.Href)
		r.log(slog.LevelDebug, "visitor", "skipping non-HTML document",
			"url", target.Href,
			"content_type", res.ContentType,
		)
		return nil, nil
	}

	signals := &model.PageSignals{
		Cookies:       res.Cookies,
		Headers:       res.Headers,
		HTML:          Window(res.HTML, r.opts.HTMLMaxCols, r.opts.HTMLMaxRows),
		ScriptMatches: Extract(res.ScriptGlobal, r.chains),
		Scripts:       res.Scripts,
	}
	if err := r.crawler.engine.Analyze(ctx, target.URL, signals); err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	links := r.filter.FilterLinks(res.Links)
	r.log(slog.LevelDebug, "visitor", "page visited",
		"url", target.Href,
		"status", res.StatusCode,
		"links", len(links),
	)

	r.crawler.bus.emitVisit(VisitEvent{Result: res, URL: target.URL})
	return links, nil
}

func (r *run) browserOptions() browser.Options {
	return browser.Options{
		Proxy:        r.opts.Proxy,
		Username:     r.opts.Username,
		Password:     r.opts.Password,
		UserAgent:    r.opts.UserAgent,
		MaxWait:      r.opts.MaxWait,
		ScriptChains: r.chains.Chains(),
		Headers:      r.opts.Headers,
		Cookie:       r.opts.Cookie,
	}
}
