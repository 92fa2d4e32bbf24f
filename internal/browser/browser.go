package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultUserAgent is sent when Options.UserAgent is empty.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 stackcrawl"

	// DefaultMaxWait bounds a navigation when Options.MaxWait is zero.
	DefaultMaxWait = 5 * time.Second

	// DefaultMaxBodySize limits how much of a response body is read.
	DefaultMaxBodySize int64 = 10 * 1024 * 1024
)

// Kind names a Browser implementation.
type Kind string

const (
	// KindHTTP selects HTTPBrowser.
	KindHTTP Kind = "http"

	// KindChrome selects ChromeBrowser.
	KindChrome Kind = "chrome"
)

var (
	// ErrUnsupportedProxy is returned for proxy URLs with an unknown scheme.
	ErrUnsupportedProxy = errors.New("unsupported proxy scheme")

	// ErrUnknownKind is returned by FactoryFor for unknown browser kinds.
	ErrUnknownKind = errors.New("unknown browser kind")
)

// Options configures one Browser instance.
type Options struct {
	// Proxy is the proxy URL (http, https or socks5). Empty means direct.
	Proxy string

	// Username and Password are proxy credentials.
	Username string
	Password string

	// UserAgent overrides DefaultUserAgent.
	UserAgent string

	// MaxWait bounds the navigation.
	MaxWait time.Duration

	// ScriptChains are dotted property paths to resolve against the
	// page's script-global object.
	ScriptChains []string

	// Headers are extra request headers.
	Headers map[string]string

	// Cookie is sent as the Cookie request header when set.
	Cookie string
}

func (o Options) userAgent() string {
	if o.UserAgent != "" {
		return o.UserAgent
	}
	return DefaultUserAgent
}

func (o Options) maxWait() time.Duration {
	if o.MaxWait > 0 {
		return o.MaxWait
	}
	return DefaultMaxWait
}

// Result is what a navigation produced.
type Result struct {
	// StatusCode is the document status. 0 means no response.
	StatusCode int

	// ContentType is the document Content-Type header.
	ContentType string

	// Cookies maps cookie names to values.
	Cookies map[string]string

	// Headers maps lower-cased header names to values.
	Headers map[string][]string

	// HTML is the document markup.
	HTML string

	// ScriptGlobal is a nested object holding the resolved script chains.
	ScriptGlobal map[string]any

	// Scripts are absolute URLs of external scripts.
	Scripts []string

	// Links are absolute URLs of anchors in the document.
	Links []string
}

// IsHTML reports whether the content type is missing or names an HTML
// document.
func (r *Result) IsHTML() bool {
	ct := strings.ToLower(strings.TrimSpace(r.ContentType))
	if ct == "" {
		return true
	}
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// Browser performs one page navigation.
type Browser interface {
	Navigate(ctx context.Context, pageURL string) (*Result, error)
}

// Factory builds a Browser for one visit.
type Factory func(opts Options) (Browser, error)

// NewHTTPFactory returns a Factory producing HTTPBrowser instances.
func NewHTTPFactory() Factory {
	return func(opts Options) (Browser, error) {
		return NewHTTPBrowser(opts)
	}
}

// NewChromeFactory returns a Factory producing ChromeBrowser instances.
func NewChromeFactory(chromeOpts ...ChromeOption) Factory {
	return func(opts Options) (Browser, error) {
		return NewChromeBrowser(opts, chromeOpts...)
	}
}

// FactoryFor returns the Factory for the named kind.
func FactoryFor(kind string) (Factory, error) {
	switch Kind(strings.ToLower(kind)) {
	case KindHTTP, "":
		return NewHTTPFactory(), nil
	case KindChrome:
		return NewChromeFactory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
