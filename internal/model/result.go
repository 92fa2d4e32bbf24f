package model

import "sort"

// Result is the aggregate outcome of one crawl.
type Result struct {
	// URLs maps each scheduled href to its visit record.
	URLs map[string]*VisitRecord `json:"urls"`

	// Applications lists detected technologies in first-detection order.
	Applications []DetectedApplication `json:"applications"`

	// Meta is the page metadata most recently reported by the engine.
	Meta Meta `json:"meta"`
}

// NewResult creates an empty Result with initialized collections.
func NewResult() *Result {
	return &Result{
		URLs:         make(map[string]*VisitRecord),
		Applications: make([]DetectedApplication, 0),
	}
}

// SortedURLs returns the visited hrefs in lexical order.
func (r *Result) SortedURLs() []string {
	urls := make([]string, 0, len(r.URLs))
	for u := range r.URLs {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// Failed returns the hrefs whose visit ended with an error, in lexical order.
func (r *Result) Failed() []string {
	failed := make([]string, 0)
	for _, u := range r.SortedURLs() {
		if r.URLs[u].Failed() {
			failed = append(failed, u)
		}
	}
	return failed
}

// Application returns the detected application with the given name.
// Returns nil if the name was not detected.
func (r *Result) Application(name string) *DetectedApplication {
	for i := range r.Applications {
		if r.Applications[i].Name == name {
			return &r.Applications[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the result.
func (r *Result) Clone() *Result {
	c := &Result{
		URLs:         make(map[string]*VisitRecord, len(r.URLs)),
		Applications: make([]DetectedApplication, 0, len(r.Applications)),
		Meta:         r.Meta,
	}
	for u, rec := range r.URLs {
		c.URLs[u] = rec.Clone()
	}
	for _, app := range r.Applications {
		app.Categories = append([]Category(nil), app.Categories...)
		c.Applications = append(c.Applications, app)
	}
	return c
}
