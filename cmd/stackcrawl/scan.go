package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/stackcrawl/internal/browser"
	"github.com/nao1215/stackcrawl/internal/config"
	"github.com/nao1215/stackcrawl/internal/crawler"
	"github.com/nao1215/stackcrawl/internal/database"
	"github.com/nao1215/stackcrawl/internal/fingerprint"
	"github.com/nao1215/stackcrawl/internal/model"
	"github.com/nao1215/stackcrawl/internal/pipeline"
	"github.com/nao1215/stackcrawl/internal/report"
	"github.com/nao1215/stackcrawl/internal/tor"
)

// errScansFailed is returned when at least one seed could not be scanned.
var errScansFailed = errors.New("some scans failed")

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [url...]",
		Short: "Crawl sites and detect the technologies they use",
		Long: `Scan crawls each seed URL and fingerprints the technologies found on the
visited pages.

Without --recursive only the seed page is analyzed. With --recursive,
same-host links are followed breadth-first in batches of --chunk-size pages,
down to --max-depth levels and at most --max-urls pages per seed.

Examples:
  # Analyze a single page
  stackcrawl scan https://example.com/

  # Crawl up to 50 pages, three levels deep
  stackcrawl scan -r -d 3 -u 50 https://example.com/

  # Scan several sites, two at a time, and print JSON
  stackcrawl scan -p 2 --json https://example.com/ https://example.org/

  # Render pages in headless Chrome through an authenticated SOCKS5 proxy
  stackcrawl scan --browser chrome -x socks5://127.0.0.1:1080 \
    --username user --password secret https://example.com/

  # Route every request through an embedded Tor daemon
  stackcrawl scan --tor https://example.com/

Configuration file (.stackcrawl) example:
  sites:
    example.com:
      cookie: "session_id=abc123"
      headers:
        Authorization: "Bearer token"
      depth: 5
      ignorePatterns:
        - "/logout*"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runScanCmd,
	}

	// Crawl shape
	cmd.Flags().BoolP("recursive", "r", false,
		"Follow same-host links from every visited page")
	cmd.Flags().IntP("max-depth", "d", config.DefaultMaxDepth,
		"Maximum crawl depth; the seed is depth 1")
	cmd.Flags().IntP("max-urls", "u", config.DefaultMaxURLs,
		"Maximum pages recorded per seed (0 = unlimited)")
	cmd.Flags().DurationP("max-wait", "w", config.DefaultMaxWait,
		"Timeout for one page navigation")
	cmd.Flags().Int("chunk-size", config.DefaultChunkSize,
		"Number of pages fetched concurrently per batch")
	cmd.Flags().Duration("delay", config.DefaultDelay,
		"Pacing step between pages of a batch in recursive mode")
	cmd.Flags().Float64("rate", 0,
		"Maximum navigations per second per seed (0 = unlimited)")
	cmd.Flags().Int("html-max-cols", config.DefaultHTMLMaxCols,
		"Row width used when trimming markup before analysis (0 = off)")
	cmd.Flags().Int("html-max-rows", config.DefaultHTMLMaxRows,
		"Rows kept when trimming markup before analysis (0 = off)")
	cmd.Flags().IntP("parallel", "p", config.DefaultParallel,
		"Number of seeds scanned at the same time")

	// Transport
	cmd.Flags().StringP("browser", "b", config.DefaultBrowser,
		"Navigation backend: http or chrome")
	cmd.Flags().StringP("proxy", "x", "",
		"Proxy URL (http://, https://, socks5:// or socks5h://)")
	cmd.Flags().String("username", "", "Proxy username")
	cmd.Flags().String("password", "", "Proxy password")
	cmd.Flags().StringP("user-agent", "a", "", "User-Agent header")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and route every request through it")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Inputs
	cmd.Flags().StringP("technologies", "t", "",
		"Custom fingerprint database (default: embedded)")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .stackcrawl in current, XDG config or home directory)")

	// Outputs
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("no-db", false,
		"Do not save scan results to the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory holding the history database")

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runScan(ctx, cmd, cfg, logger)
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()
	var err error

	if cfg.Recursive, err = flags.GetBool("recursive"); err != nil {
		return nil, err
	}
	if cfg.MaxDepth, err = flags.GetInt("max-depth"); err != nil {
		return nil, err
	}
	if cfg.MaxURLs, err = flags.GetInt("max-urls"); err != nil {
		return nil, err
	}
	if cfg.MaxWait, err = flags.GetDuration("max-wait"); err != nil {
		return nil, err
	}
	if cfg.ChunkSize, err = flags.GetInt("chunk-size"); err != nil {
		return nil, err
	}
	if cfg.Delay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = flags.GetFloat64("rate"); err != nil {
		return nil, err
	}
	if cfg.HTMLMaxCols, err = flags.GetInt("html-max-cols"); err != nil {
		return nil, err
	}
	if cfg.HTMLMaxRows, err = flags.GetInt("html-max-rows"); err != nil {
		return nil, err
	}
	if cfg.Parallel, err = flags.GetInt("parallel"); err != nil {
		return nil, err
	}
	if cfg.Browser, err = flags.GetString("browser"); err != nil {
		return nil, err
	}
	if cfg.Proxy, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.Username, err = flags.GetString("username"); err != nil {
		return nil, err
	}
	if cfg.Password, err = flags.GetString("password"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.TechnologiesFile, err = flags.GetString("technologies"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	// An explicit config path must exist; the default lookup may find nothing.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case explicitConfigPath:
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	}

	cfg.Targets = args
	return cfg, nil
}

// runScan scans every target and writes one report per seed.
func runScan(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	status := cmd.ErrOrStderr()

	logger.Info("starting scan",
		"targets", cfg.Targets,
		"recursive", cfg.Recursive,
		"browser", cfg.Browser,
		"parallel", cfg.Parallel,
		"save_to_db", cfg.SaveToDB,
	)

	fingerprints, err := loadFingerprints(cfg.TechnologiesFile)
	if err != nil {
		return err
	}
	logger.Debug("fingerprint database loaded", "technologies", fingerprints.Len())

	factory, err := browser.FactoryFor(cfg.Browser)
	if err != nil {
		return err
	}

	if cfg.UseTor {
		embedded, err := startEmbeddedTor(ctx, cfg, status, logger)
		if err != nil {
			return err
		}
		defer func() {
			logger.Info("stopping embedded Tor daemon")
			if err := embedded.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}()
	}

	if cfg.Proxy != "" {
		proxyURL := proxyWithCredentials(cfg.Proxy, cfg.Username, cfg.Password)
		if err := tor.CheckProxyURL(ctx, proxyURL, tor.ProbeTarget(cfg.Targets[0])).Error(); err != nil {
			return fmt.Errorf("proxy check failed for %s: %w", cfg.Proxy, err)
		}
		logger.Info("proxy verified", "proxy", proxyURL)
	}

	// A nil *CrawlDB must not become a non-nil ReportStore.
	var store pipeline.ReportStore
	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		store = db
		logger.Debug("database opened", "path", db.Path())
	}

	output, closeOutput, err := openOutput(cfg.ReportFile, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOutput()
	writer := newReportWriter(cfg, output)

	// Crawl handlers run on visit goroutines; mu serializes status output.
	var (
		mu     sync.Mutex
		failed int
	)
	crawlOpts := []pipeline.CrawlStepOption{
		pipeline.WithCrawlOptions(cfg.CrawlOptions),
	}
	if cfg.Verbose {
		crawlOpts = append(crawlOpts, pipeline.WithVisitHandler(func(ev crawler.VisitEvent) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(status, "  [%d] %s\n", ev.Result.StatusCode, ev.URL)
		}))
	} else {
		// Verbose runs already log these through the logger.
		crawlOpts = append(crawlOpts, pipeline.WithLogHandler(func(ev crawler.LogEvent) {
			if ev.Level < slog.LevelWarn || ev.URL == "" {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(status, "  [%s] %s: %s\n", ev.Level, ev.Message, ev.URL)
		}))
	}

	bp := pipeline.NewBatchProcessor(
		func() *pipeline.Pipeline {
			return pipeline.DefaultPipeline(factory, fingerprints, store,
				[]pipeline.Option{pipeline.WithLogger(logger)}, crawlOpts...)
		},
		pipeline.WithConcurrency(cfg.Parallel),
		pipeline.WithBatchLogger(logger),
	)

	startTime := time.Now()
	err = bp.ProcessBatchWithCallback(ctx, cfg.Targets, func(r *model.ScanReport, index int) {
		mu.Lock()
		defer mu.Unlock()

		if r.Error != nil {
			failed++
			fmt.Fprintf(status, "[%d/%d] Scan failed: %s: %v\n", index+1, len(cfg.Targets), r.Seed, r.Error)
		} else {
			fmt.Fprintf(status, "[%d/%d] Scan completed: %s (%s)\n",
				index+1, len(cfg.Targets), r.Seed, r.Duration.Round(time.Millisecond))
		}
		if _, err := writer.Write(r); err != nil {
			logger.Error("failed to write report", "seed", r.Seed, "error", err)
		}
	})
	logger.Info("scan finished",
		"targets", len(cfg.Targets),
		"failed", failed,
		"elapsed", time.Since(startTime).Round(time.Millisecond),
	)
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errScansFailed, failed, len(cfg.Targets))
	}
	return nil
}

// loadFingerprints loads the custom database at path, or the embedded one.
func loadFingerprints(path string) (*fingerprint.Database, error) {
	if path == "" {
		db, err := fingerprint.DefaultDatabase()
		if err != nil {
			return nil, fmt.Errorf("failed to load embedded fingerprint database: %w", err)
		}
		return db, nil
	}
	return fingerprint.LoadDatabase(path)
}

// startEmbeddedTor starts the Tor daemon and points cfg.Proxy at it.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, status io.Writer, logger *slog.Logger) (*tor.EmbeddedTor, error) {
	fmt.Fprintln(status, "Starting embedded Tor daemon...")
	fmt.Fprintln(status, "This may take 1-3 minutes while Tor bootstraps and connects to the network.")

	embedded := tor.NewEmbeddedTor(
		tor.WithStartupTimeout(cfg.TorStartupTimeout),
		tor.WithLogger(logger),
	)
	if err := embedded.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	proxyURL, err := embedded.ProxyURL()
	if err != nil {
		_ = embedded.Stop() //nolint:errcheck // Best effort cleanup
		return nil, err
	}
	cfg.Proxy = proxyURL
	fmt.Fprintf(status, "Embedded Tor ready, SOCKS proxy: %s\n\n", embedded.SocksAddr())
	return embedded, nil
}

// proxyWithCredentials adds username and password to rawProxy when it
// carries none, mirroring how the browsers combine them.
func proxyWithCredentials(rawProxy, username, password string) string {
	if username == "" {
		return rawProxy
	}
	u, err := url.Parse(rawProxy)
	if err != nil || u.User != nil {
		return rawProxy
	}
	u.User = url.UserPassword(username, password)
	return u.String()
}

// openOutput returns the report destination: the file at path, or
// fallback when path is empty.
func openOutput(path string, fallback io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return fallback, func() {}, nil
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	// Reports can carry cookies and internal URLs.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil //nolint:errcheck // nothing left to report on close
}

// newReportWriter picks the report format requested in cfg.
func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}
