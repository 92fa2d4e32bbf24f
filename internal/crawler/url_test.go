package crawler

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestNormalize tests URL identities.
func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw           string
		wantHref      string
		wantCanonical string
	}{
		{raw: "https://Example.COM", wantHref: "https://example.com/", wantCanonical: "https://example.com/"},
		{raw: "HTTP://example.com/a?b=1#frag", wantHref: "http://example.com/a?b=1", wantCanonical: "http://example.com/a"},
		{raw: "  https://example.com/x/  ", wantHref: "https://example.com/x/", wantCanonical: "https://example.com/x/"},
		{raw: "https://example.com:8443/p", wantHref: "https://example.com:8443/p", wantCanonical: "https://example.com:8443/p"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			n, err := Normalize(tt.raw)
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if n.Href != tt.wantHref {
				t.Errorf("expected href %q, got %q", tt.wantHref, n.Href)
			}
			if n.Canonical != tt.wantCanonical {
				t.Errorf("expected canonical %q, got %q", tt.wantCanonical, n.Canonical)
			}
		})
	}

	t.Run("rejects relative URLs", func(t *testing.T) {
		t.Parallel()
		if _, err := Normalize("/relative/path"); !errors.Is(err, ErrNotAbsoluteURL) {
			t.Errorf("expected ErrNotAbsoluteURL, got %v", err)
		}
	})

	t.Run("rejects unparsable URLs", func(t *testing.T) {
		t.Parallel()
		if _, err := Normalize("http://exa mple.com/%zz"); err == nil {
			t.Error("expected error")
		}
	})
}

// TestFilterLinks tests outbound link selection.
func TestFilterLinks(t *testing.T) {
	t.Parallel()

	filter := LinkFilter{Hostname: "example.com"}
	links := []string{
		"https://example.com/about",
		"https://EXAMPLE.com/contact.php#form",
		"https://example.com/contact.php",
		"http://example.com/index.HTML",
		"https://example.com/report.pdf",
		"https://example.com/logo.png",
		"https://example.com/app.aspx?id=1",
		"https://example.com/cgi-bin/run.cgi",
		"https://example.com/page.jsp",
		"https://example.com/old.asp",
		"https://example.com/legacy.htm",
		"https://cdn.example.com/about",
		"https://other.org/about",
		"ftp://example.com/file",
		"mailto:me@example.com",
		"https://example.com:8080/ported",
		"https://example.com/v1.2/docs",
	}

	want := []string{
		"https://example.com/about",
		"https://EXAMPLE.com/contact.php",
		"https://example.com/contact.php",
		"http://example.com/index.HTML",
		"https://example.com/app.aspx?id=1",
		"https://example.com/cgi-bin/run.cgi",
		"https://example.com/page.jsp",
		"https://example.com/old.asp",
		"https://example.com/legacy.htm",
		"https://example.com:8080/ported",
		"https://example.com/v1.2/docs",
	}
	if diff := cmp.Diff(want, filter.FilterLinks(links)); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}
}

// TestFilterLinksPatterns tests ignore and follow globs.
func TestFilterLinksPatterns(t *testing.T) {
	t.Parallel()

	links := []string{
		"https://example.com/admin/users",
		"https://example.com/blog/post",
		"https://example.com/docs/intro",
		"https://example.com/logout.php",
	}

	t.Run("ignore patterns", func(t *testing.T) {
		t.Parallel()
		f := LinkFilter{Hostname: "example.com", IgnorePatterns: []string{"/admin/*", "*.php"}}
		want := []string{"https://example.com/blog/post", "https://example.com/docs/intro"}
		if diff := cmp.Diff(want, f.FilterLinks(links)); diff != "" {
			t.Errorf("links mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("follow patterns", func(t *testing.T) {
		t.Parallel()
		f := LinkFilter{Hostname: "example.com", FollowPatterns: []string{"/blog/*", "/docs/*"}, IgnorePatterns: []string{"/docs/*"}}
		want := []string{"https://example.com/blog/post"}
		if diff := cmp.Diff(want, f.FilterLinks(links)); diff != "" {
			t.Errorf("links mismatch (-want +got):\n%s", diff)
		}
	})
}
