// Package report renders scan reports and history comparisons.
//
// Writers for scan reports:
//   - SimpleWriter: plain text for the terminal
//   - JSONWriter / FullJSONWriter: structured output for other tools
//   - MarkdownWriter: a shareable document with a mermaid chart of the
//     detected technologies per category
//
// Report data lives in the model package; this package only formats it.
// DiffApplications compares two stored scans of the same host.
package report
