package tor

import "errors"

// Proxy check errors, one per failing ProxyStatus.
var (
	// ErrProxyNotSOCKS5 is returned when the address answers but does not
	// speak SOCKS5, e.g. an HTTP proxy on the configured port.
	ErrProxyNotSOCKS5 = errors.New("proxy is not a SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when no TCP connection to the proxy
	// can be established.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")

	// ErrProxyTimeout is returned when the proxy does not answer in time.
	ErrProxyTimeout = errors.New("timeout connecting to proxy")

	// ErrProxyAuthFailed is returned when the proxy rejects the credentials
	// or requires credentials that were not supplied.
	ErrProxyAuthFailed = errors.New("proxy authentication failed")

	// ErrInvalidProxyAddress is returned when the address is not host:port.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrNotRunning is returned when the embedded daemon has not been started.
	ErrNotRunning = errors.New("embedded Tor daemon is not running")
)

// ProxyStatus is the outcome of a proxy check.
type ProxyStatus int

const (
	// ProxyStatusOK indicates the proxy completed the handshake and
	// answered a CONNECT request.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType indicates the peer is not a SOCKS5 proxy.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect indicates the TCP connection failed.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout indicates the check ran out of time.
	ProxyStatusTimeout

	// ProxyStatusAuthFailed indicates the proxy refused authentication.
	ProxyStatusAuthFailed
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not SOCKS5)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	case ProxyStatusAuthFailed:
		return "authentication failed"
	default:
		return "unknown"
	}
}

// Error returns the error for this status, or nil if OK.
func (s ProxyStatus) Error() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyNotSOCKS5
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	case ProxyStatusAuthFailed:
		return ErrProxyAuthFailed
	default:
		return errors.New("unknown proxy status")
	}
}
