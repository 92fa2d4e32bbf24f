package crawler

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/nao1215/stackcrawl/internal/browser"
	"github.com/nao1215/stackcrawl/internal/model"
)

// fakePage describes how the fake site answers one href.
type fakePage struct {
	result  *browser.Result
	err     error
	panics  bool
	entered chan struct{}
	release chan struct{}
}

// fakeSite is an in-memory site served through fake browsers.
type fakeSite struct {
	mu          sync.Mutex
	pages       map[string]*fakePage
	latency     time.Duration
	calls       map[string]int
	events      []string
	starts      map[string]time.Time
	inFlight    int
	maxInFlight int
	options     []browser.Options
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:  make(map[string]*fakePage),
		calls:  make(map[string]int),
		starts: make(map[string]time.Time),
	}
}

func (s *fakeSite) html(href string, links ...string) {
	s.pages[href] = &fakePage{result: &browser.Result{
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
		Headers:     map[string][]string{"server": {"fake"}},
		Cookies:     map[string]string{},
		HTML:        "<html><body>" + href + "</body></html>",
		Links:       links,
	}}
}

func (s *fakeSite) factory() browser.Factory {
	return func(opts browser.Options) (browser.Browser, error) {
		s.mu.Lock()
		s.options = append(s.options, opts)
		s.mu.Unlock()
		return &fakeBrowser{site: s}, nil
	}
}

func (s *fakeSite) callCount(href string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[href]
}

func (s *fakeSite) indexOf(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.events {
		if e == event {
			return i
		}
	}
	return -1
}

type fakeBrowser struct {
	site *fakeSite
}

func (b *fakeBrowser) Navigate(ctx context.Context, href string) (*browser.Result, error) {
	s := b.site
	s.mu.Lock()
	s.calls[href]++
	s.events = append(s.events, "start:"+href)
	s.starts[href] = time.Now()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	page := s.pages[href]
	latency := s.latency
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.events = append(s.events, "end:"+href)
		s.mu.Unlock()
	}()

	if latency > 0 {
		time.Sleep(latency)
	}
	if page == nil {
		return &browser.Result{StatusCode: 404, ContentType: "text/html"}, nil
	}
	if page.entered != nil {
		close(page.entered)
	}
	if page.release != nil {
		select {
		case <-page.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if page.panics {
		panic("renderer crashed")
	}
	return page.result, page.err
}

// fakeEngine records the signals it receives and reports detections
// produced by detect.
type fakeEngine struct {
	mu       sync.Mutex
	chains   model.ChainSet
	detect   func(u *url.URL, signals *model.PageSignals) []model.Detection
	meta     model.Meta
	err      error
	callback model.DetectedFunc
	signals  map[string]*model.PageSignals
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{signals: make(map[string]*model.PageSignals)}
}

func (e *fakeEngine) ScriptChains() model.ChainSet {
	if e.chains == nil {
		return model.ChainSet{}
	}
	return e.chains
}

func (e *fakeEngine) OnDetected(fn model.DetectedFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callback = fn
}

func (e *fakeEngine) CategoryName(id int) string {
	switch id {
	case 1:
		return "CMS"
	case 22:
		return "Web servers"
	default:
		return ""
	}
}

func (e *fakeEngine) Analyze(_ context.Context, u *url.URL, signals *model.PageSignals) error {
	e.mu.Lock()
	e.signals[u.String()] = signals
	cb := e.callback
	e.mu.Unlock()

	if e.err != nil {
		return e.err
	}
	if e.detect != nil && cb != nil {
		cb(e.detect(u, signals), e.meta)
	}
	return nil
}

func (e *fakeEngine) signalsFor(href string) *model.PageSignals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signals[href]
}

var errEngine = errors.New("engine exploded")
