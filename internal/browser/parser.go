package browser

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Document is what the parser extracts from a page's markup.
type Document struct {
	// Title is the text of the <title> element.
	Title string

	// Language is the lang attribute of the <html> element.
	Language string

	// Links are resolved anchor targets in document order.
	Links []string

	// Scripts are resolved <script src> references in document order.
	Scripts []string
}

// Parser extracts links and script references from HTML.
type Parser struct {
	// baseURL resolves relative references. A <base href> overrides it.
	baseURL *url.URL
}

// NewParser creates a parser resolving against baseURL.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse walks the document once and collects its references.
func (p *Parser) Parse(content io.Reader) (*Document, error) {
	root, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Links:   make([]string, 0),
		Scripts: make([]string, 0),
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			p.processElement(n, doc)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return doc, nil
}

func (p *Parser) processElement(n *html.Node, doc *Document) {
	switch n.Data {
	case "html":
		doc.Language = strings.TrimSpace(getAttr(n, "lang"))

	case "base":
		if href := getAttr(n, "href"); href != "" {
			if u, err := url.Parse(strings.TrimSpace(href)); err == nil {
				p.baseURL = p.baseURL.ResolveReference(u)
			}
		}

	case "title":
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			doc.Title = strings.TrimSpace(n.FirstChild.Data)
		}

	case "a", "area":
		if resolved := p.resolveURL(getAttr(n, "href")); resolved != "" {
			doc.Links = append(doc.Links, resolved)
		}

	case "script":
		if resolved := p.resolveURL(getAttr(n, "src")); resolved != "" {
			doc.Scripts = append(doc.Scripts, resolved)
		}
	}
}

// resolveURL resolves href against the base URL.
// Script pseudo-URLs and bare fragments resolve to "".
func (p *Parser) resolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" {
		return ""
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return p.baseURL.ResolveReference(u).String()
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
