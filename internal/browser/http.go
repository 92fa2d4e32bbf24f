package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html/charset"
)

// HTTPBrowser fetches pages with net/http without executing scripts.
type HTTPBrowser struct {
	client *http.Client
	opts   Options

	// maxBodySize limits the bytes read from a response body.
	maxBodySize int64
}

// NewHTTPBrowser creates an HTTPBrowser for one visit.
func NewHTTPBrowser(opts Options) (*HTTPBrowser, error) {
	transport, err := newTransport(opts)
	if err != nil {
		return nil, err
	}

	return &HTTPBrowser{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.maxWait(),
		},
		opts:        opts,
		maxBodySize: DefaultMaxBodySize,
	}, nil
}

// Navigate issues a GET for pageURL and parses the document.
// Transport failures return an error and no result.
func (b *HTTPBrowser) Navigate(ctx context.Context, pageURL string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.maxWait())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", b.opts.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, v := range b.opts.Headers {
		req.Header.Set(k, v)
	}
	if b.opts.Cookie != "" {
		req.Header.Set("Cookie", b.opts.Cookie)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	result := &Result{
		StatusCode:   resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
		Cookies:      make(map[string]string),
		Headers:      make(map[string][]string, len(resp.Header)),
		ScriptGlobal: make(map[string]any),
		Scripts:      make([]string, 0),
		Links:        make([]string, 0),
	}
	for k, v := range resp.Header {
		result.Headers[strings.ToLower(k)] = append([]string(nil), v...)
	}
	for _, c := range resp.Cookies() {
		result.Cookies[c.Name] = c.Value
	}

	if !result.IsHTML() {
		return result, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, b.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	decoded, err := charset.NewReader(bytes.NewReader(body), result.ContentType)
	if err != nil {
		decoded = bytes.NewReader(body)
	}
	text, err := io.ReadAll(decoded)
	if err != nil {
		text = body
	}
	result.HTML = string(text)

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	parser, err := NewParser(finalURL)
	if err != nil {
		return result, nil
	}
	doc, err := parser.Parse(strings.NewReader(result.HTML))
	if err != nil {
		return result, nil
	}
	result.Links = doc.Links
	result.Scripts = doc.Scripts

	return result, nil
}
