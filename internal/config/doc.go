// Package config provides configuration structures and utilities for
// stackcrawl. It defines the crawl limits, transport settings, report
// preferences and the per-host overrides read from the .stackcrawl file.
package config
