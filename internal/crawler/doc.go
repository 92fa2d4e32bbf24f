// Package crawler implements the crawl scheduler of stackcrawl.
//
// # Architecture
//
// A Crawler visits a bounded set of pages reachable from a seed URL and
// hands the signals of every HTML page to a fingerprinting Engine. The
// pieces, from the leaves up:
//
//   - Window: cuts oversized markup down to a head/tail window
//   - Extract: resolves dotted script-global chains requested by the engine
//   - visitor: one navigation through a fresh browser.Browser, response
//     validation, engine call and outbound link filtering
//   - scheduler: deduplication, the visit cap, pacing and failure recording
//   - recursor: collects the links of a page for the next depth level
//   - batch runner: fixed-size batches, concurrent inside a batch,
//     sequential across batches
//
// Traversal is level by level. The links found at depth d are gathered in
// discovery order and crawled at depth d+1 only after every visit at depth
// d has completed, so no more than ChunkSize visits are ever in flight.
//
// # Identity and limits
//
// URLs are deduplicated by href: fragment removed, scheme and host
// lower-cased, an empty path replaced by "/", query kept. The visit record
// for an href is created before any asynchronous work, under the state
// lock. MaxURLs caps the number of live records; pages dropped because
// they are not HTML free their slot.
//
// # Failures
//
// Page failures never abort a crawl. They are classified into
// model.ErrorType values and attached to the page's record. Panics inside
// a visit are recovered and recorded as UNKNOWN_ERROR.
//
// # Usage
//
//	engine := fingerprint.NewEngine(db)
//	c, err := crawler.New(browser.NewHTTPFactory(), engine,
//		crawler.WithOptions(opts), crawler.WithLogger(logger))
//	result, err := c.Analyze(ctx, "https://example.com")
package crawler
