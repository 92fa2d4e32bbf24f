// Package tor provides the proxy plumbing used to route crawls through Tor.
//
// EmbeddedTor starts a private Tor daemon with tornago so that --tor works
// without a system Tor installation. CheckSOCKS5 verifies that a SOCKS5
// proxy (embedded or user supplied) completes a handshake before any page
// is fetched through it, so a misconfigured proxy fails the scan up front
// instead of turning every visit into a NO_RESPONSE record.
package tor
