// Package main provides the entry point for the stackcrawl CLI.
//
// stackcrawl crawls a site from one or more seed URLs and reports the web
// technologies it detects on the visited pages.
//
// Usage:
//
//	stackcrawl scan https://example.com/
//	stackcrawl scan --recursive --max-depth 2 https://example.com/
//	stackcrawl history example.com
//
// See --help for all available options.
package main

func main() {
	Execute()
}
