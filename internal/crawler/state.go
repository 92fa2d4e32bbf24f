package crawler

import (
	"sync"
	"time"

	"github.com/nao1215/stackcrawl/internal/model"
)

// reservation is the outcome of trying to schedule an href.
type reservation int

const (
	reserved reservation = iota
	duplicate
	capReached
)

// traversalState is the mutable state of one Analyze call.
type traversalState struct {
	mu      sync.Mutex
	urls    map[string]*model.VisitRecord
	apps    []model.DetectedApplication
	meta    model.Meta
	start   time.Time
	maxURLs int
}

func newTraversalState(maxURLs int) *traversalState {
	return &traversalState{
		urls:    make(map[string]*model.VisitRecord),
		apps:    make([]model.DetectedApplication, 0),
		start:   time.Now(),
		maxURLs: maxURLs,
	}
}

// reserve creates the visit record for href unless it already exists or
// the cap is reached. Check and insert happen under one lock.
func (s *traversalState) reserve(href string) reservation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.urls[href]; ok {
		return duplicate
	}
	if s.maxURLs > 0 && len(s.urls) >= s.maxURLs {
		return capReached
	}
	s.urls[href] = &model.VisitRecord{}
	return reserved
}

func (s *traversalState) setStatus(href string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.urls[href]; ok {
		rec.Status = status
	}
}

func (s *traversalState) setError(href string, err *VisitError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.urls[href]; ok {
		rec.Error = err.info()
	}
}

// discard forgets href so it no longer counts towards the cap.
func (s *traversalState) discard(href string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.urls, href)
}

// upsert merges detections into the application list. The first detection
// of a name wins.
func (s *traversalState) upsert(detections []model.Detection, meta model.Meta, categoryName func(int) string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range detections {
		if s.hasApp(d.Name) {
			continue
		}
		categories := make([]model.Category, 0, len(d.CategoryIDs))
		for _, id := range d.CategoryIDs {
			categories = append(categories, model.Category{ID: id, Name: categoryName(id)})
		}
		s.apps = append(s.apps, model.DetectedApplication{
			Name:       d.Name,
			Confidence: d.Confidence,
			Version:    d.Version,
			Icon:       d.Icon,
			Website:    d.Website,
			Categories: categories,
		})
	}
	s.meta = meta
}

func (s *traversalState) hasApp(name string) bool {
	for _, app := range s.apps {
		if app.Name == name {
			return true
		}
	}
	return false
}

func (s *traversalState) elapsed() time.Duration {
	return time.Since(s.start)
}

// snapshot returns a deep copy of the state as a Result.
func (s *traversalState) snapshot() *model.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &model.Result{
		URLs:         s.urls,
		Applications: s.apps,
		Meta:         s.meta,
	}
	return result.Clone()
}
