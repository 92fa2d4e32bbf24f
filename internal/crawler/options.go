package crawler

import "time"

const (
	// DefaultChunkSize is the number of links crawled concurrently per batch.
	DefaultChunkSize = 5

	// DefaultDelay is the per-item pacing step in recursive mode.
	DefaultDelay = 500 * time.Millisecond

	// DefaultHTMLMaxCols is the row width used when windowing markup.
	DefaultHTMLMaxCols = 2000

	// DefaultHTMLMaxRows is the number of rows kept when windowing markup.
	DefaultHTMLMaxRows = 3000

	// DefaultMaxDepth is the deepest level visited in recursive mode.
	DefaultMaxDepth = 3

	// DefaultMaxURLs caps the visit records of one crawl.
	DefaultMaxURLs = 10

	// DefaultMaxWait bounds one navigation.
	DefaultMaxWait = 5 * time.Second
)

// Options controls one crawl.
type Options struct {
	// ChunkSize is the batch size. Values below 1 are treated as 1.
	ChunkSize int

	// Delay paces the n-th item of a batch by n*Delay. Ignored unless
	// Recursive is set.
	Delay time.Duration

	// MaxDepth bounds recursion. The seed is depth 1.
	MaxDepth int

	// MaxURLs caps the number of visit records and the number of links
	// followed from one page. 0 disables the cap.
	MaxURLs int

	// MaxWait bounds each navigation.
	MaxWait time.Duration

	// Recursive follows same-host links.
	Recursive bool

	// HTMLMaxCols and HTMLMaxRows shape markup before analysis.
	HTMLMaxCols int
	HTMLMaxRows int

	// Debug forwards every crawl log entry to the logger. Log events on
	// the event bus fire regardless.
	Debug bool

	// RateLimit caps navigations per second across the crawl. 0 disables it.
	RateLimit float64

	// IgnorePatterns and FollowPatterns filter outbound links by path glob.
	IgnorePatterns []string
	FollowPatterns []string

	// Transport options handed to the browser.
	Proxy     string
	Username  string
	Password  string
	UserAgent string
	Headers   map[string]string
	Cookie    string
}

// DefaultOptions returns the default crawl options.
func DefaultOptions() Options {
	return Options{
		ChunkSize:   DefaultChunkSize,
		Delay:       DefaultDelay,
		MaxDepth:    DefaultMaxDepth,
		MaxURLs:     DefaultMaxURLs,
		MaxWait:     DefaultMaxWait,
		HTMLMaxCols: DefaultHTMLMaxCols,
		HTMLMaxRows: DefaultHTMLMaxRows,
	}
}

// normalized clamps invalid values and applies the non-recursive rules.
func (o Options) normalized() Options {
	if o.ChunkSize < 1 {
		o.ChunkSize = 1
	}
	if o.MaxDepth < 1 {
		o.MaxDepth = 1
	}
	if o.MaxURLs < 0 {
		o.MaxURLs = 0
	}
	if o.MaxWait <= 0 {
		o.MaxWait = DefaultMaxWait
	}
	if !o.Recursive || o.Delay < 0 {
		o.Delay = 0
	}
	return o
}
