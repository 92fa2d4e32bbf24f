package config

import "errors"

// Configuration validation errors returned by Config.Validate().
var (
	// ErrNoTarget is returned when no seed URL is specified.
	ErrNoTarget = errors.New("no target specified: provide at least one URL")

	// ErrInvalidTarget is returned when a seed is not an absolute http(s) URL.
	ErrInvalidTarget = errors.New("invalid target: must be an absolute http or https URL")

	// ErrInvalidMaxWait is returned when the navigation timeout is not positive.
	ErrInvalidMaxWait = errors.New("invalid max wait: must be positive")

	// ErrInvalidChunkSize is returned when the batch size is not positive.
	ErrInvalidChunkSize = errors.New("invalid chunk size: must be positive")

	// ErrInvalidMaxDepth is returned when the depth bound is not positive.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be positive")

	// ErrInvalidMaxURLs is returned when the URL cap is negative.
	ErrInvalidMaxURLs = errors.New("invalid max urls: must be non-negative")

	// ErrInvalidDelay is returned when the pacing delay is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidHTMLWindow is returned when a markup window bound is negative.
	ErrInvalidHTMLWindow = errors.New("invalid html window: bounds must be non-negative")

	// ErrInvalidRateLimit is returned when the request rate is negative.
	ErrInvalidRateLimit = errors.New("invalid rate: must be non-negative")

	// ErrInvalidParallel is returned when seed parallelism is not positive.
	ErrInvalidParallel = errors.New("invalid parallel: must be positive")

	// ErrUnknownBrowser is returned for browser names other than http and chrome.
	ErrUnknownBrowser = errors.New("unknown browser: must be http or chrome")

	// ErrConflictingProxy is returned when --tor and --proxy are combined.
	ErrConflictingProxy = errors.New("conflicting proxy settings: --tor and --proxy cannot be used together")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
