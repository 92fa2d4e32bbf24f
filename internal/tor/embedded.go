package tor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultStartupTimeout is the maximum time to wait for the daemon to bootstrap.
const DefaultStartupTimeout = 3 * time.Minute

// EmbeddedTor manages a private Tor daemon started through tornago.
// Bootstrapping downloads directory information and builds circuits, so
// Start typically takes one to three minutes.
type EmbeddedTor struct {
	process        *tornago.TorProcess
	socksAddr      string
	controlAddr    string
	startupTimeout time.Duration
	logger         *slog.Logger
}

// EmbeddedTorOption configures an EmbeddedTor instance.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets the maximum time to wait for Tor to bootstrap.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		if timeout > 0 {
			e.startupTimeout = timeout
		}
	}
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(logger *slog.Logger) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEmbeddedTor creates a new embedded Tor manager.
// Call Start to launch the daemon.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{
		startupTimeout: DefaultStartupTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the daemon on OS-assigned ports and blocks until it has
// bootstrapped or the startup timeout expires.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	e.logger.Info("starting embedded Tor daemon", "timeout", e.startupTimeout)
	started := time.Now()

	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	if err := ctx.Err(); err != nil {
		_ = process.Stop() //nolint:errcheck // best effort cleanup
		return err
	}

	e.process = process
	e.socksAddr = process.SocksAddr()
	e.controlAddr = process.ControlAddr()
	e.logger.Info("embedded Tor daemon ready",
		"socks", e.socksAddr,
		"elapsed", time.Since(started).Round(time.Second),
	)
	return nil
}

// Stop shuts the daemon down. It is safe to call on an unstarted or
// already stopped instance.
func (e *EmbeddedTor) Stop() error {
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	e.socksAddr = ""
	e.controlAddr = ""
	return err
}

// SocksAddr returns the SOCKS5 listener ("host:port"), or "" if not running.
func (e *EmbeddedTor) SocksAddr() string {
	return e.socksAddr
}

// ControlAddr returns the control port address, or "" if not running.
func (e *EmbeddedTor) ControlAddr() string {
	return e.controlAddr
}

// IsRunning reports whether the daemon has been started and not stopped.
func (e *EmbeddedTor) IsRunning() bool {
	return e.process != nil
}

// ProxyURL returns the proxy URL to hand to the browsers. socks5h makes
// the proxy resolve hostnames, which keeps DNS lookups inside Tor.
func (e *EmbeddedTor) ProxyURL() (string, error) {
	if !e.IsRunning() {
		return "", ErrNotRunning
	}
	return "socks5h://" + e.socksAddr, nil
}

// Check probes the running daemon's SOCKS listener with a CONNECT to target.
func (e *EmbeddedTor) Check(ctx context.Context, target string) error {
	if !e.IsRunning() {
		return ErrNotRunning
	}
	return CheckSOCKS5(ctx, e.socksAddr, nil, target).Error()
}
