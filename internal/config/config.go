package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/stackcrawl/internal/crawler"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "stackcrawl"

	// DefaultChunkSize is the number of pages fetched concurrently per batch.
	DefaultChunkSize = crawler.DefaultChunkSize

	// DefaultDelay paces the n-th page of a batch by n*DefaultDelay.
	// Only applies to recursive crawls.
	DefaultDelay = crawler.DefaultDelay

	// DefaultMaxDepth bounds recursion. The seed is depth 1.
	DefaultMaxDepth = crawler.DefaultMaxDepth

	// DefaultMaxURLs caps the pages recorded per seed.
	DefaultMaxURLs = crawler.DefaultMaxURLs

	// DefaultMaxWait bounds one page navigation.
	DefaultMaxWait = crawler.DefaultMaxWait

	// DefaultHTMLMaxCols and DefaultHTMLMaxRows shape markup before analysis.
	DefaultHTMLMaxCols = crawler.DefaultHTMLMaxCols
	DefaultHTMLMaxRows = crawler.DefaultHTMLMaxRows

	// DefaultParallel is the number of seeds crawled at the same time.
	DefaultParallel = 1

	// DefaultBrowser is the browser implementation used for navigation.
	DefaultBrowser = "http"

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Config holds all configuration options for stackcrawl.
// It is populated from CLI flags and passed down explicitly.
type Config struct {
	// Targets are the seed URLs to crawl.
	Targets []string

	// Verbose enables debug logging and forwards crawl log events to the logger.
	Verbose bool

	// Recursive follows same-host links from each page.
	Recursive bool

	// MaxDepth bounds recursion. The seed is depth 1.
	MaxDepth int

	// MaxURLs caps the pages recorded per seed and the links followed per page.
	MaxURLs int

	// MaxWait bounds one page navigation.
	MaxWait time.Duration

	// ChunkSize is the number of pages fetched concurrently per batch.
	ChunkSize int

	// Delay paces the n-th page of a batch by n*Delay in recursive mode.
	Delay time.Duration

	// HTMLMaxCols and HTMLMaxRows shape markup before analysis. 0 disables.
	HTMLMaxCols int
	HTMLMaxRows int

	// RateLimit caps navigations per second for one seed. 0 disables it.
	RateLimit float64

	// Parallel is the number of seeds crawled at the same time.
	Parallel int

	// Proxy is the proxy URL (http, https or socks5).
	Proxy string

	// Username and Password are proxy credentials.
	Username string
	Password string

	// UserAgent overrides the browser's default User-Agent.
	UserAgent string

	// Browser selects the navigation backend: "http" or "chrome".
	Browser string

	// TechnologiesFile is a custom fingerprint database. Empty uses the
	// embedded one.
	TechnologiesFile string

	// UseTor starts an embedded Tor daemon and routes every request
	// through it. Mutually exclusive with Proxy.
	UseTor bool

	// TorStartupTimeout bounds the embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// ConfigFilePath is the path to the configuration file.
	// If empty, .stackcrawl is searched in the current and home directories.
	ConfigFilePath string

	// SiteConfigs holds per-host overrides loaded from the config file.
	SiteConfigs *File

	// JSONReport selects JSON output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown output. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path. Empty writes to stdout.
	ReportFile string

	// DBDir is the directory holding the SQLite history database.
	DBDir string

	// SaveToDB stores scan reports in the history database.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxDepth:          DefaultMaxDepth,
		MaxURLs:           DefaultMaxURLs,
		MaxWait:           DefaultMaxWait,
		ChunkSize:         DefaultChunkSize,
		Delay:             DefaultDelay,
		HTMLMaxCols:       DefaultHTMLMaxCols,
		HTMLMaxRows:       DefaultHTMLMaxRows,
		Parallel:          DefaultParallel,
		Browser:           DefaultBrowser,
		TorStartupTimeout: DefaultTorStartupTimeout,
		DBDir:             XDGDataDir(),
		SaveToDB:          true,
	}
}

// XDGDataDir returns the XDG data directory for stackcrawl.
// On Linux: ~/.local/share/stackcrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for stackcrawl.
// On Linux: ~/.config/stackcrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	for _, target := range c.Targets {
		if !isHTTPURL(target) {
			return ErrInvalidTarget
		}
	}
	if c.MaxWait <= 0 {
		return ErrInvalidMaxWait
	}
	if c.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if c.MaxDepth <= 0 {
		return ErrInvalidMaxDepth
	}
	if c.MaxURLs < 0 {
		return ErrInvalidMaxURLs
	}
	if c.Delay < 0 {
		return ErrInvalidDelay
	}
	if c.HTMLMaxCols < 0 || c.HTMLMaxRows < 0 {
		return ErrInvalidHTMLWindow
	}
	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	if c.Parallel <= 0 {
		return ErrInvalidParallel
	}
	switch strings.ToLower(c.Browser) {
	case "http", "chrome":
	default:
		return ErrUnknownBrowser
	}
	if c.UseTor && c.Proxy != "" {
		return ErrConflictingProxy
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}

// CrawlOptions returns the crawl options for a seed host, with the config
// file's defaults and the host's overrides applied on top of the flags.
func (c *Config) CrawlOptions(host string) crawler.Options {
	opts := crawler.Options{
		ChunkSize:   c.ChunkSize,
		Delay:       c.Delay,
		MaxDepth:    c.MaxDepth,
		MaxURLs:     c.MaxURLs,
		MaxWait:     c.MaxWait,
		Recursive:   c.Recursive,
		HTMLMaxCols: c.HTMLMaxCols,
		HTMLMaxRows: c.HTMLMaxRows,
		Debug:       c.Verbose,
		RateLimit:   c.RateLimit,
		Proxy:       c.Proxy,
		Username:    c.Username,
		Password:    c.Password,
		UserAgent:   c.UserAgent,
	}
	if c.SiteConfigs == nil {
		return opts
	}

	site := c.SiteConfigs.GetSiteConfig(strings.ToLower(host))
	if site.Depth > 0 {
		opts.MaxDepth = site.Depth
	}
	if site.MaxURLs > 0 {
		opts.MaxURLs = site.MaxURLs
	}
	if site.UserAgent != "" {
		opts.UserAgent = site.UserAgent
	}
	if site.Proxy != "" && !c.UseTor {
		opts.Proxy = site.Proxy
	}
	if site.Username != "" {
		opts.Username = site.Username
		opts.Password = site.Password
	}
	opts.Cookie = site.Cookie
	opts.Headers = site.Headers
	opts.IgnorePatterns = site.IgnorePatterns
	opts.FollowPatterns = site.FollowPatterns
	return opts
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
