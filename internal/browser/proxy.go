package browser

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"
)

// parseProxy parses the proxy URL and attaches credentials from opts when
// the URL carries none.
func parseProxy(opts Options) (*url.URL, error) {
	if opts.Proxy == "" {
		return nil, nil
	}

	u, err := url.Parse(opts.Proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)

	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProxy, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy URL: missing host")
	}

	if u.User == nil && opts.Username != "" {
		u.User = url.UserPassword(opts.Username, opts.Password)
	}
	return u, nil
}

// newTransport builds an http.Transport routed through the configured proxy.
func newTransport(opts Options) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	proxyURL, err := parseProxy(opts)
	if err != nil {
		return nil, err
	}
	if proxyURL == nil {
		return transport, nil
	}

	switch proxyURL.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(proxyURL)
		return transport, nil
	default:
		var auth *proxy.Auth
		if proxyURL.User != nil {
			password, _ := proxyURL.User.Password()
			auth = &proxy.Auth{User: proxyURL.User.Username(), Password: password}
		}

		dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		contextDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS5 dialer does not support contexts")
		}

		transport.Proxy = nil
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return contextDialer.DialContext(ctx, network, addr)
		}
		return transport, nil
	}
}
