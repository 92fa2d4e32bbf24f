package crawler

import (
	"log/slog"
	"net/url"
	"sync"

	"github.com/nao1215/stackcrawl/internal/browser"
)

// LogEvent is emitted for every crawl log entry.
type LogEvent struct {
	Message string
	Source  string
	Level   slog.Level

	// URL is the page the entry is about, if any.
	URL string
}

// VisitEvent is emitted after a page was fetched and analyzed.
type VisitEvent struct {
	Result *browser.Result
	URL    *url.URL
}

// eventBus fans events out to registered handlers synchronously.
type eventBus struct {
	mu    sync.RWMutex
	logs  []func(LogEvent)
	visit []func(VisitEvent)
}

func (b *eventBus) onLog(fn func(LogEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logs = append(b.logs, fn)
}

func (b *eventBus) onVisit(fn func(VisitEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.visit = append(b.visit, fn)
}

func (b *eventBus) emitLog(ev LogEvent) {
	b.mu.RLock()
	handlers := b.logs
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(ev)
	}
}

func (b *eventBus) emitVisit(ev VisitEvent) {
	b.mu.RLock()
	handlers := b.visit
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(ev)
	}
}
