package fingerprint

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/stackcrawl/internal/model"
)

const testDatabase = `
categories:
  1: {name: CMS}
  22: {name: Web servers}
  27: {name: Programming languages}
  59: {name: JavaScript libraries}
technologies:
  Nginx:
    cats: [22]
    website: https://nginx.org
    headers:
      Server: 'nginx(?:/([\d.]+))?\;version:\1'
  PHP:
    cats: [27]
    cookies:
      PHPSESSID: ''
    headers:
      X-Powered-By: '^php/?([\d.]+)?\;version:\1'
  WordPress:
    cats: [1]
    icon: WordPress.svg
    meta:
      generator: '^WordPress ?([\d.]+)?\;version:\1'
    html: '/wp-content/\;confidence:50'
    scriptSrc: '/wp-includes/\;confidence:75'
    implies: PHP\;confidence:50
    excludes: Joomla
  Joomla:
    cats: [1]
    html: 'joomla'
  jQuery:
    cats: [59]
    scriptSrc: 'jquery-([\d.]+)(?:\.min)?\.js\;version:\1'
    js:
      jQuery.fn.jquery: '([\d.]+)\;version:\1'
      jQuery: ''
  Shop:
    cats: [99]
    url: '/shop/'
`

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := ParseDatabase([]byte(testDatabase))
	if err != nil {
		t.Fatalf("ParseDatabase failed: %v", err)
	}
	return NewEngine(db)
}

type capture struct {
	mu    sync.Mutex
	calls int
	dets  []model.Detection
	meta  model.Meta
}

func (c *capture) fn(d []model.Detection, m model.Meta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.dets = d
	c.meta = m
}

func (c *capture) byName(name string) *model.Detection {
	for i := range c.dets {
		if c.dets[i].Name == name {
			return &c.dets[i]
		}
	}
	return nil
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse failed: %v", err)
	}
	return u
}

// TestEngineAnalyze tests detection across signal types.
func TestEngineAnalyze(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)
	c := &capture{}
	engine.OnDetected(c.fn)

	signals := &model.PageSignals{
		Headers: map[string][]string{
			"server": {"nginx/1.25.3"},
		},
		Cookies: map[string]string{},
		HTML: `<html lang="en-US"><head><meta name="generator" content="WordPress 6.4.2">` +
			`<link rel="stylesheet" href="/wp-content/themes/x.css"></head><body>joomla</body></html>`,
		Scripts: []string{"https://example.com/wp-includes/js/jquery-3.7.1.min.js"},
	}

	if err := engine.Analyze(context.Background(), mustURL(t, "https://example.com/"), signals); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if c.calls != 1 {
		t.Fatalf("expected 1 callback, got %d", c.calls)
	}
	if c.meta.Language != "en-US" {
		t.Errorf("expected language en-US, got %q", c.meta.Language)
	}

	nginx := c.byName("Nginx")
	if nginx == nil || nginx.Version != "1.25.3" || nginx.Confidence != 100 {
		t.Errorf("unexpected Nginx detection: %+v", nginx)
	}
	if nginx != nil {
		if diff := cmp.Diff([]int{22}, nginx.CategoryIDs); diff != "" {
			t.Errorf("category mismatch (-want +got):\n%s", diff)
		}
		if nginx.Website != "https://nginx.org" {
			t.Errorf("unexpected website %q", nginx.Website)
		}
	}

	wp := c.byName("WordPress")
	if wp == nil {
		t.Fatal("expected WordPress detection")
	}
	if wp.Confidence != 100 {
		t.Errorf("expected confidence capped at 100, got %d", wp.Confidence)
	}
	if wp.Version != "6.4.2" {
		t.Errorf("expected version 6.4.2, got %q", wp.Version)
	}
	if wp.Icon != "WordPress.svg" {
		t.Errorf("unexpected icon %q", wp.Icon)
	}

	php := c.byName("PHP")
	if php == nil || php.Confidence != 50 || php.Version != "" {
		t.Errorf("expected implied PHP at confidence 50, got %+v", php)
	}

	if j := c.byName("Joomla"); j != nil {
		t.Errorf("expected Joomla to be excluded, got %+v", j)
	}

	jq := c.byName("jQuery")
	if jq == nil || jq.Version != "3.7.1" {
		t.Errorf("unexpected jQuery detection: %+v", jq)
	}
}

// TestEngineScriptMatches tests detection from resolved script chains.
func TestEngineScriptMatches(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)
	c := &capture{}
	engine.OnDetected(c.fn)

	signals := &model.PageSignals{
		ScriptMatches: []model.ScriptMatch{
			{App: "jQuery", Chain: "jQuery.fn.jquery", Index: 0, Value: "3.6.0"},
			{App: "jQuery", Chain: "jQuery", Index: 0, Value: true},
			{App: "jQuery", Chain: "jQuery", Index: 5, Value: true},
			{App: "Unknown", Chain: "x", Index: 0, Value: true},
		},
	}
	if err := engine.Analyze(context.Background(), mustURL(t, "https://example.com/"), signals); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	jq := c.byName("jQuery")
	if jq == nil {
		t.Fatal("expected jQuery detection")
	}
	if jq.Version != "3.6.0" || jq.Confidence != 100 {
		t.Errorf("unexpected jQuery detection: %+v", jq)
	}
}

// TestEngineURLAndCookies tests URL and cookie patterns.
func TestEngineURLAndCookies(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)
	c := &capture{}
	engine.OnDetected(c.fn)

	signals := &model.PageSignals{
		Cookies: map[string]string{"PHPSESSID": "abc"},
	}
	if err := engine.Analyze(context.Background(), mustURL(t, "https://example.com/shop/cart"), signals); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if c.byName("Shop") == nil {
		t.Error("expected URL pattern detection")
	}
	if php := c.byName("PHP"); php == nil || php.Confidence != 100 {
		t.Errorf("expected PHP from cookie, got %+v", php)
	}
}

// TestEngineNoDetections tests that the callback stays silent for empty pages.
func TestEngineNoDetections(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)
	c := &capture{}
	engine.OnDetected(c.fn)

	err := engine.Analyze(context.Background(), mustURL(t, "https://example.com/"), &model.PageSignals{HTML: "<html><body>plain</body></html>"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if c.calls != 0 {
		t.Errorf("expected no callback, got %d", c.calls)
	}
}

// TestEngineCanceledContext tests that a canceled context aborts analysis.
func TestEngineCanceledContext(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := engine.Analyze(ctx, mustURL(t, "https://example.com/"), &model.PageSignals{}); err == nil {
		t.Error("expected error for canceled context")
	}
}

// TestEngineScriptChains tests the chain set exposed to the crawler.
func TestEngineScriptChains(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)
	chains := engine.ScriptChains()

	want := model.ChainSet{
		"jQuery": {
			"jQuery.fn.jquery": {`([\d.]+)\;version:\1`},
			"jQuery":           {``},
		},
	}
	if diff := cmp.Diff(want, chains); diff != "" {
		t.Errorf("chains mismatch (-want +got):\n%s", diff)
	}
	if got := chains.Chains(); len(got) != 2 || got[0] != "jQuery" {
		t.Errorf("unexpected chain list: %v", got)
	}
}

// TestCategoryName tests category lookup.
func TestCategoryName(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)
	if got := engine.CategoryName(22); got != "Web servers" {
		t.Errorf("expected Web servers, got %q", got)
	}
	if got := engine.CategoryName(12345); got != "" {
		t.Errorf("expected empty name for unknown id, got %q", got)
	}
}

// TestDefaultDatabase tests that the embedded database compiles.
func TestDefaultDatabase(t *testing.T) {
	t.Parallel()

	db, err := DefaultDatabase()
	if err != nil {
		t.Fatalf("DefaultDatabase failed: %v", err)
	}
	if db.Len() < 10 {
		t.Errorf("expected a populated database, got %d technologies", db.Len())
	}
	for _, name := range []string{"Nginx", "WordPress", "jQuery", "PHP"} {
		if db.Technology(name) == nil {
			t.Errorf("expected %s in the default database", name)
		}
	}
	for _, name := range db.Names() {
		for _, cat := range db.Technology(name).Cats {
			if db.CategoryName(cat) == "" {
				t.Errorf("%s references unknown category %d", name, cat)
			}
		}
		for _, imp := range db.Technology(name).implies {
			if db.Technology(imp.name) == nil {
				t.Errorf("%s implies unknown technology %q", name, imp.name)
			}
		}
	}
}

// TestLoadDatabase tests loading a database file.
func TestLoadDatabase(t *testing.T) {
	t.Parallel()

	t.Run("valid file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "tech.yaml")
		if err := os.WriteFile(path, []byte(testDatabase), 0o600); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
		db, err := LoadDatabase(path)
		if err != nil {
			t.Fatalf("LoadDatabase failed: %v", err)
		}
		if db.Len() != 6 {
			t.Errorf("expected 6 technologies, got %d", db.Len())
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		if _, err := LoadDatabase(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid pattern", func(t *testing.T) {
		t.Parallel()
		_, err := ParseDatabase([]byte("technologies:\n  Bad:\n    html: '(unclosed'\n"))
		if err == nil {
			t.Error("expected error for invalid pattern")
		}
	})
}
