// Package log provides the slog setup used across stackcrawl.
//
// SecureHandler wraps any slog.Handler and masks sensitive attributes
// before they are written:
//   - request headers and cookies from site configs (Cookie, Authorization)
//   - proxy and site credentials (password, token and similar keys)
//   - token-like values (JWT, bearer, long API keys)
//   - userinfo in URLs, e.g. an authenticated socks5 proxy address
//
// Masking applies in verbose mode too, so debug logs can be shared.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("using proxy", "proxy", "socks5://u:p@127.0.0.1:1080")
//	// proxy=socks5://***REDACTED***@127.0.0.1:1080
//
// The embedded Tor daemon accepts the same *slog.Logger.
package log
