// Package model defines the data structures shared by the crawler, the
// fingerprinting engine, persistence and report output.
//
// This package contains the following main types:
//   - VisitRecord: the outcome of one scheduled URL (status and error)
//   - DetectedApplication: a technology found on the crawled site
//   - PageSignals: the per-page payload handed to the fingerprinting engine
//   - Result: the aggregate outcome of one crawl
//   - ScanReport: a Result plus scan bookkeeping (seed, timing, run ID)
//   - SimpleReport: a summarized, human-readable view of a ScanReport
//
// The models are serializable to JSON for report output and database storage.
package model
