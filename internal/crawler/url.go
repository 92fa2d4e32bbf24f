package crawler

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// pageExtensions are the path extensions that still count as pages.
// Paths without an extension are always pages.
var pageExtensions = map[string]bool{
	"asp":  true,
	"aspx": true,
	"cgi":  true,
	"htm":  true,
	"html": true,
	"jsp":  true,
	"php":  true,
}

// NormalizedURL is a parsed URL together with its identities.
type NormalizedURL struct {
	// URL is the parsed, normalized URL.
	URL *url.URL

	// Href is the deduplication key: query kept, fragment removed,
	// scheme and host lower-cased, empty path replaced by "/".
	Href string

	// Canonical is scheme, host and path only.
	Canonical string
}

// Normalize parses raw and derives its href and canonical forms.
func Normalize(raw string) (*NormalizedURL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: %w", raw, ErrNotAbsoluteURL)
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}

	return &NormalizedURL{
		URL:       u,
		Href:      u.String(),
		Canonical: u.Scheme + "://" + u.Host + u.Path,
	}, nil
}

// LinkFilter selects the outbound links worth following from a page.
type LinkFilter struct {
	// Hostname is the seed hostname links must share.
	Hostname string

	// IgnorePatterns are path globs that are never followed.
	IgnorePatterns []string

	// FollowPatterns, when set, are the only path globs followed.
	FollowPatterns []string
}

// FilterLinks keeps links with an http or https scheme, the seed's
// hostname and a page-like path, strips their fragments and drops
// duplicates. Order of first appearance is preserved.
func (f LinkFilter) FilterLinks(links []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(links))

	for _, link := range links {
		u, err := url.Parse(strings.TrimSpace(link))
		if err != nil {
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		if !strings.EqualFold(u.Hostname(), f.Hostname) {
			continue
		}
		if !isPageLike(u.Path) || !f.shouldFollow(u.Path) {
			continue
		}

		u.Fragment = ""
		u.RawFragment = ""
		s := u.String()
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// isPageLike reports whether the last path segment has no extension or
// one of the page extensions.
func isPageLike(p string) bool {
	ext := strings.TrimPrefix(path.Ext(path.Base(p)), ".")
	if ext == "" {
		return true
	}
	return pageExtensions[strings.ToLower(ext)]
}

// shouldFollow applies ignore patterns first, then follow patterns.
func (f LinkFilter) shouldFollow(p string) bool {
	if p == "" {
		p = "/"
	}
	for _, pattern := range f.IgnorePatterns {
		if matchPattern(pattern, p) {
			return false
		}
	}
	if len(f.FollowPatterns) == 0 {
		return true
	}
	for _, pattern := range f.FollowPatterns {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// matchPattern matches a path against a glob.
// "/admin/*" matches everything below /admin, "*.php" matches by suffix,
// anything else goes through filepath.Match against the full path and
// the last segment.
func matchPattern(pattern, p string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if strings.HasPrefix(p, prefix+"/") || p == prefix {
			return true
		}
	}
	if strings.HasPrefix(pattern, "*.") && strings.HasSuffix(p, pattern[1:]) {
		return true
	}
	if matched, err := filepath.Match(pattern, p); err == nil && matched {
		return true
	}
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, path.Base(p)); err == nil && matched {
			return true
		}
	}
	return false
}
