package tor

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultCheckTimeout bounds a proxy check when ctx carries no deadline.
// A CONNECT through Tor builds a circuit, so this is well above a LAN
// round trip.
const DefaultCheckTimeout = 30 * time.Second

// defaultProbeTarget is used when the caller has no seed to probe.
const defaultProbeTarget = "example.com:80"

// SOCKS5 protocol constants (RFC 1928, RFC 1929).
const (
	socks5Version        = 0x05
	socks5AuthNone       = 0x00
	socks5AuthPassword   = 0x02
	socks5AuthNoAccept   = 0xFF
	socks5CmdConnect     = 0x01
	socks5AddrTypeDomain = 0x03
	socks5PasswordVer    = 0x01
)

// CheckProxyURL checks a proxy given as a URL. Only socks5 and socks5h
// proxies are probed; other schemes report ProxyStatusOK since the
// browser reports their failures per visit.
func CheckProxyURL(ctx context.Context, rawProxy string, target string) ProxyStatus {
	u, err := url.Parse(rawProxy)
	if err != nil {
		return ProxyStatusWrongType
	}
	switch strings.ToLower(u.Scheme) {
	case "socks5", "socks5h":
	default:
		return ProxyStatusOK
	}

	var auth *proxy.Auth
	if u.User != nil {
		password, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: password}
	}
	return CheckSOCKS5(ctx, u.Host, auth, target)
}

// CheckSOCKS5 performs a SOCKS5 handshake against address and asks the
// proxy to CONNECT to target ("host:port"). Any well-formed CONNECT
// reply counts as success, including "host unreachable": the check is
// about the proxy, not the target.
func CheckSOCKS5(ctx context.Context, address string, auth *proxy.Auth, target string) ProxyStatus {
	if !isValidProxyAddress(address) {
		return ProxyStatusCannotConnect
	}
	if target == "" {
		target = defaultProbeTarget
	}
	host, port, err := splitTarget(target)
	if err != nil {
		return ProxyStatusWrongType
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCheckTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return ProxyStatusCannotConnect
	}
	// Unblock reads when ctx is cancelled before the deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now()) //nolint:errcheck // closing anyway
	})
	defer stop()

	methods := []byte{socks5AuthNone}
	if auth != nil {
		methods = append(methods, socks5AuthPassword)
	}
	greeting := append([]byte{socks5Version, byte(len(methods))}, methods...)
	if _, err := conn.Write(greeting); err != nil {
		return ProxyStatusCannotConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return readFailure(err)
	}
	if resp[0] != socks5Version {
		return ProxyStatusWrongType
	}

	switch resp[1] {
	case socks5AuthNone:
	case socks5AuthPassword:
		if auth == nil {
			return ProxyStatusAuthFailed
		}
		if status := authenticate(conn, auth); status != ProxyStatusOK {
			return status
		}
	case socks5AuthNoAccept:
		return ProxyStatusAuthFailed
	default:
		return ProxyStatusWrongType
	}

	req := []byte{socks5Version, socks5CmdConnect, 0x00, socks5AddrTypeDomain, byte(len(host))}
	req = append(req, host...)
	req = append(req, byte(port>>8), byte(port&0xFF))
	if _, err := conn.Write(req); err != nil {
		return ProxyStatusCannotConnect
	}

	// version + reply + reserved + address type
	reply := make([]byte, 4)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return readFailure(err)
	}
	if reply[0] != socks5Version {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

// authenticate runs the RFC 1929 username/password subnegotiation.
func authenticate(conn net.Conn, auth *proxy.Auth) ProxyStatus {
	if len(auth.User) > 255 || len(auth.Password) > 255 {
		return ProxyStatusAuthFailed
	}
	msg := []byte{socks5PasswordVer, byte(len(auth.User))}
	msg = append(msg, auth.User...)
	msg = append(msg, byte(len(auth.Password)))
	msg = append(msg, auth.Password...)
	if _, err := conn.Write(msg); err != nil {
		return ProxyStatusCannotConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return readFailure(err)
	}
	if resp[1] != 0x00 {
		return ProxyStatusAuthFailed
	}
	return ProxyStatusOK
}

func readFailure(err error) ProxyStatus {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ProxyStatusTimeout
	}
	// A short or garbled answer means the peer is not speaking SOCKS5.
	return ProxyStatusWrongType
}

func splitTarget(target string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, err
	}
	if host == "" || len(host) > 255 {
		return "", 0, ErrInvalidProxyAddress
	}
	return host, uint16(port), nil
}

// isValidProxyAddress reports whether address is host:port with a port
// in 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// ProbeTarget returns the host:port a proxy check should CONNECT to for
// the given seed URL.
func ProbeTarget(seed string) string {
	u, err := url.Parse(seed)
	if err != nil || u.Hostname() == "" {
		return defaultProbeTarget
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if strings.EqualFold(u.Scheme, "https") {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}
