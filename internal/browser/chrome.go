package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ChromeBrowser renders pages in a headless Chrome through chromedp.
// Each instance starts its own browser process for a single navigation.
type ChromeBrowser struct {
	opts     Options
	proxy    string
	headless bool
	execPath string
}

// ChromeOption configures a ChromeBrowser.
type ChromeOption func(*ChromeBrowser)

// WithHeadless toggles headless mode. Defaults to true.
func WithHeadless(headless bool) ChromeOption {
	return func(b *ChromeBrowser) {
		b.headless = headless
	}
}

// WithExecPath sets the Chrome executable. Empty lets chromedp search.
func WithExecPath(path string) ChromeOption {
	return func(b *ChromeBrowser) {
		b.execPath = path
	}
}

// NewChromeBrowser creates a ChromeBrowser for one visit.
func NewChromeBrowser(opts Options, chromeOpts ...ChromeOption) (*ChromeBrowser, error) {
	proxyURL, err := parseProxy(opts)
	if err != nil {
		return nil, err
	}

	b := &ChromeBrowser{
		opts:     opts,
		headless: true,
	}
	if proxyURL != nil {
		scheme := proxyURL.Scheme
		if scheme == "socks5h" {
			scheme = "socks5"
		}
		// Chrome takes credentials through the auth challenge, not the URL.
		b.proxy = scheme + "://" + proxyURL.Host
	}
	for _, opt := range chromeOpts {
		opt(b)
	}
	return b, nil
}

func (b *ChromeBrowser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", b.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(b.opts.userAgent()),
	)
	if b.proxy != "" {
		opts = append(opts, chromedp.ProxyServer(b.proxy))
	}
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}
	return opts
}

// Navigate loads pageURL and collects the document response, cookies,
// rendered markup and the requested script chains.
func (b *ChromeBrowser) Navigate(ctx context.Context, pageURL string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.maxWait())
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	defer allocCancel()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	result := &Result{
		Cookies:      make(map[string]string),
		Headers:      make(map[string][]string),
		ScriptGlobal: make(map[string]any),
		Scripts:      make([]string, 0),
		Links:        make([]string, 0),
	}

	var mu sync.Mutex
	captured := false
	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if e.Type != network.ResourceTypeDocument || e.Response == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if captured {
				return
			}
			captured = true
			captureResponse(result, e.Response)

		case *fetch.EventAuthRequired:
			go b.provideCredentials(tabCtx, e.RequestID)

		case *fetch.EventRequestPaused:
			go continueRequest(tabCtx, e.RequestID)
		}
	})

	var markup string
	var links, scripts []string
	global := make(map[string]any)

	actions := []chromedp.Action{network.Enable()}
	if b.opts.Username != "" {
		actions = append(actions, fetch.Enable().WithHandleAuthRequests(true))
	}
	if headers := b.extraHeaders(); len(headers) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	actions = append(actions,
		chromedp.Navigate(pageURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			cookies, err := network.GetCookies().Do(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, c := range cookies {
				result.Cookies[c.Name] = c.Value
			}
			return nil
		}),
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
		chromedp.Evaluate(linksExpression, &links),
		chromedp.Evaluate(scriptsExpression, &scripts),
	)
	if len(b.opts.ScriptChains) > 0 {
		actions = append(actions, chromedp.Evaluate(scriptProbe(b.opts.ScriptChains), &global))
	}

	err := chromedp.Run(tabCtx, actions...)

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		// Non-HTML documents abort the render after the response arrived.
		if captured && !result.IsHTML() {
			return result, nil
		}
		return nil, fmt.Errorf("chromedp run: %w", err)
	}

	result.HTML = markup
	result.Links = append(result.Links, links...)
	result.Scripts = append(result.Scripts, scripts...)
	result.ScriptGlobal = global
	return result, nil
}

func (b *ChromeBrowser) extraHeaders() network.Headers {
	headers := make(network.Headers)
	for k, v := range b.opts.Headers {
		headers[k] = v
	}
	if b.opts.Cookie != "" {
		headers["Cookie"] = b.opts.Cookie
	}
	return headers
}

func (b *ChromeBrowser) provideCredentials(ctx context.Context, id fetch.RequestID) {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(ctx, c.Target)
	_ = fetch.ContinueWithAuth(id, &fetch.AuthChallengeResponse{
		Response: fetch.AuthChallengeResponseResponseProvideCredentials,
		Username: b.opts.Username,
		Password: b.opts.Password,
	}).Do(execCtx)
}

func continueRequest(ctx context.Context, id fetch.RequestID) {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return
	}
	_ = fetch.ContinueRequest(id).Do(cdp.WithExecutor(ctx, c.Target))
}

// captureResponse copies status and headers of the document response.
func captureResponse(result *Result, resp *network.Response) {
	result.StatusCode = int(resp.Status)
	for k, v := range resp.Headers {
		result.Headers[strings.ToLower(k)] = strings.Split(fmt.Sprint(v), "\n")
	}
	if ct, ok := result.Headers["content-type"]; ok && len(ct) > 0 {
		result.ContentType = ct[0]
	} else {
		result.ContentType = resp.MimeType
	}
}

const linksExpression = `Array.from(document.querySelectorAll("a[href], area[href]")).map(a => a.href).filter(h => typeof h === "string" && h !== "")`

const scriptsExpression = `Array.from(document.scripts).map(s => s.src).filter(s => s !== "")`

// scriptProbe builds an expression returning a nested object that holds
// every chain resolving to a truthy value. Leaves are strings, numbers or
// true; a chain that is a prefix of another becomes an object.
func scriptProbe(chains []string) string {
	encoded, err := json.Marshal(chains)
	if err != nil {
		encoded = []byte("[]")
	}
	return `(() => {
  const out = {};
  for (const chain of ` + string(encoded) + `) {
    const parts = chain.split(".");
    let value = window;
    let ok = true;
    for (const part of parts) {
      try { value = value == null ? undefined : value[part]; } catch (e) { value = undefined; }
      if (!value) { ok = false; break; }
    }
    if (!ok) continue;
    const leaf = (typeof value === "string" || typeof value === "number") ? value : true;
    let node = out;
    parts.forEach((part, i) => {
      if (i === parts.length - 1) {
        if (typeof node[part] !== "object") node[part] = leaf;
        return;
      }
      if (typeof node[part] !== "object" || node[part] === null) node[part] = {};
      node = node[part];
    });
  }
  return out;
})()`
}
