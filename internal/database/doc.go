// Package database stores scan history in SQLite.
//
// Each scanned seed produces one scan_reports row holding the full report
// as JSON plus a small summary, and one visits row per visit record so
// failures can be queried without decoding reports. The history command
// reads it back to compare runs.
//
// The driver is modernc.org/sqlite, which needs no cgo.
package database
