// Package fingerprint classifies the technologies a site uses from page
// signals.
//
// The engine follows the Wappalyzer data model. A technology declares
// patterns against response headers, cookies, markup, <meta> tags, script
// URLs, the page URL and script-global properties. Patterns are regular
// expressions with optional tags separated by `\;`:
//
//	jquery-([0-9.]+)\.js\;version:\1\;confidence:50
//
// Confidence of the matched patterns is summed per technology and capped at
// 100. Version templates reference capture groups with \N and support the
// ternary form \N?found:missing. Detected technologies pull in the
// technologies they imply and drop the ones they exclude.
//
// The built-in database is embedded from technologies.yaml. LoadDatabase
// reads a custom file in the same format.
package fingerprint
