package fingerprint

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/nao1215/stackcrawl/internal/model"
)

// Engine matches page signals against a Database.
// It is safe for concurrent use; callbacks run on the analyzing goroutine.
type Engine struct {
	db     *Database
	logger *slog.Logger

	mu         sync.RWMutex
	onDetected model.DetectedFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an engine over db.
func NewEngine(db *Database, opts ...Option) *Engine {
	e := &Engine{
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnDetected registers the detection callback, replacing any previous one.
func (e *Engine) OnDetected(fn model.DetectedFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onDetected = fn
}

// CategoryName resolves a category id.
func (e *Engine) CategoryName(id int) string {
	return e.db.CategoryName(id)
}

// ScriptChains returns the script-global chains the database inspects.
func (e *Engine) ScriptChains() model.ChainSet {
	chains := make(model.ChainSet)
	for _, name := range e.db.names {
		tech := e.db.technologies[name]
		if len(tech.JS) == 0 {
			continue
		}
		byChain := make(map[string][]string, len(tech.JS))
		for chain, patterns := range tech.JS {
			byChain[chain] = append([]string(nil), patterns...)
		}
		chains[name] = byChain
	}
	return chains
}

// hit accumulates pattern matches for one technology.
type hit struct {
	confidence int
	version    string
}

func (h *hit) add(p *Pattern, version string) {
	h.confidence += p.Confidence
	if len(version) > len(h.version) {
		h.version = version
	}
}

// Analyze matches the signals of one page and reports detections through
// the registered callback. The callback fires when anything was detected or
// the page declares a language.
func (e *Engine) Analyze(ctx context.Context, pageURL *url.URL, signals *model.PageSignals) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if signals == nil {
		return fmt.Errorf("analyze %s: no page signals", pageURL)
	}

	page := scanMarkup(signals.HTML)
	hits := make(map[string]*hit)
	record := func(name string, p *Pattern, version string) {
		h, ok := hits[name]
		if !ok {
			h = &hit{}
			hits[name] = h
		}
		h.add(p, version)
	}

	for _, name := range e.db.names {
		tech := e.db.technologies[name]
		e.matchTechnology(tech, pageURL, signals, page, record)
	}
	for _, m := range signals.ScriptMatches {
		tech := e.db.technologies[m.App]
		if tech == nil {
			continue
		}
		patterns := tech.js[m.Chain]
		if m.Index < 0 || m.Index >= len(patterns) {
			continue
		}
		p := patterns[m.Index]
		if version, ok := p.Match(scriptValue(m.Value)); ok {
			record(tech.Name, p, version)
		}
	}

	detections := e.resolve(hits)
	meta := model.Meta{Language: page.language}

	e.logger.Debug("page analyzed",
		"url", pageURL.String(),
		"detections", len(detections),
		"language", meta.Language,
	)

	if len(detections) == 0 && meta.Language == "" {
		return nil
	}

	e.mu.RLock()
	fn := e.onDetected
	e.mu.RUnlock()
	if fn != nil {
		fn(detections, meta)
	}
	return nil
}

func (e *Engine) matchTechnology(tech *Technology, pageURL *url.URL, signals *model.PageSignals, page markup, record func(string, *Pattern, string)) {
	matchAll := func(patterns []*Pattern, values ...string) {
		for _, p := range patterns {
			for _, v := range values {
				if version, ok := p.Match(v); ok {
					record(tech.Name, p, version)
					break
				}
			}
		}
	}

	if pageURL != nil {
		matchAll(tech.url, pageURL.String())
	}
	if signals.HTML != "" {
		matchAll(tech.html, signals.HTML)
	}
	if len(signals.Scripts) > 0 {
		matchAll(tech.scriptSrc, signals.Scripts...)
	}
	for name, patterns := range tech.headers {
		if values, ok := signals.Headers[name]; ok {
			matchAll(patterns, values...)
		}
	}
	for name, patterns := range tech.cookies {
		if value, ok := signals.Cookies[name]; ok {
			matchAll(patterns, value)
		}
	}
	for name, patterns := range tech.meta {
		if values, ok := page.meta[name]; ok {
			matchAll(patterns, values...)
		}
	}
}

// resolve turns hits into detections, adds implied technologies and drops
// excluded ones. Direct detections come first in name order.
func (e *Engine) resolve(hits map[string]*hit) []model.Detection {
	names := make([]string, 0, len(hits))
	for name := range hits {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[string]bool, len(names))
	detections := make([]model.Detection, 0, len(names))
	for _, name := range names {
		seen[name] = true
		detections = append(detections, e.detection(e.db.technologies[name], hits[name].confidence, hits[name].version))
	}

	for i := 0; i < len(detections); i++ {
		tech := e.db.technologies[detections[i].Name]
		for _, implied := range tech.implies {
			if seen[implied.name] {
				continue
			}
			target := e.db.technologies[implied.name]
			if target == nil {
				continue
			}
			seen[implied.name] = true
			detections = append(detections, e.detection(target, implied.confidence, ""))
		}
	}

	excluded := make(map[string]bool)
	for _, d := range detections {
		for _, name := range e.db.technologies[d.Name].excludes {
			excluded[name] = true
		}
	}
	if len(excluded) == 0 {
		return detections
	}
	kept := detections[:0]
	for _, d := range detections {
		if !excluded[d.Name] {
			kept = append(kept, d)
		}
	}
	return kept
}

func (e *Engine) detection(tech *Technology, confidence int, version string) model.Detection {
	if confidence > maxConfidence {
		confidence = maxConfidence
	}
	return model.Detection{
		Name:        tech.Name,
		Confidence:  confidence,
		Version:     version,
		CategoryIDs: append([]int(nil), tech.Cats...),
		Icon:        tech.Icon,
		Website:     tech.Website,
	}
}

// scriptValue renders a resolved script value for pattern matching.
func scriptValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// markup holds what the engine reads from the document structure.
type markup struct {
	language string
	meta     map[string][]string
}

// scanMarkup tokenizes the document for <html lang> and <meta> tags.
func scanMarkup(doc string) markup {
	m := markup{meta: make(map[string][]string)}
	if doc == "" {
		return m
	}

	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return m
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		switch tok.Data {
		case "html":
			if m.language == "" {
				m.language = strings.TrimSpace(attr(tok, "lang"))
			}
		case "meta":
			name := attr(tok, "name")
			if name == "" {
				name = attr(tok, "property")
			}
			if name == "" {
				continue
			}
			name = strings.ToLower(name)
			m.meta[name] = append(m.meta[name], attr(tok, "content"))
		case "body":
			// Metadata lives in the head.
			return m
		}
	}
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
