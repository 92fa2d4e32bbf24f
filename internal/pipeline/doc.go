// Package pipeline runs the per-seed scan stages in sequence.
//
// A seed scan is a Pipeline of Steps sharing one model.ScanReport:
// CrawlStep crawls the seed and attaches the detected technologies, and
// PersistStep stores the finished report in the scan history. Each seed
// gets its own Pipeline, so steps never share crawl state.
//
// BatchProcessor scans several seeds with bounded parallelism using
// errgroup, keeping the reports in input order.
package pipeline
