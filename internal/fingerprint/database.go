package fingerprint

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed technologies.yaml
var embeddedDatabase []byte

// CategoryEntry is a category as written in the database file.
type CategoryEntry struct {
	Name     string `yaml:"name"`
	Priority int    `yaml:"priority"`
}

// Technology is one fingerprint entry.
type Technology struct {
	// Name is filled from the map key.
	Name string `yaml:"-"`

	Cats      []int               `yaml:"cats"`
	Website   string              `yaml:"website"`
	Icon      string              `yaml:"icon"`
	Headers   map[string]Patterns `yaml:"headers"`
	Cookies   map[string]Patterns `yaml:"cookies"`
	Meta      map[string]Patterns `yaml:"meta"`
	JS        map[string]Patterns `yaml:"js"`
	HTML      Patterns            `yaml:"html"`
	ScriptSrc Patterns            `yaml:"scriptSrc"`
	URL       Patterns            `yaml:"url"`
	Implies   Patterns            `yaml:"implies"`
	Excludes  Patterns            `yaml:"excludes"`

	headers   map[string][]*Pattern
	cookies   map[string][]*Pattern
	meta      map[string][]*Pattern
	js        map[string][]*Pattern
	html      []*Pattern
	scriptSrc []*Pattern
	url       []*Pattern
	implies   []implication
	excludes  []string
}

// compile prepares every pattern of the technology.
func (t *Technology) compile() error {
	var err error
	if t.headers, err = compileKeyed(t.Headers, true); err != nil {
		return err
	}
	if t.cookies, err = compileKeyed(t.Cookies, false); err != nil {
		return err
	}
	if t.meta, err = compileKeyed(t.Meta, true); err != nil {
		return err
	}
	if t.js, err = compileKeyed(t.JS, false); err != nil {
		return err
	}
	if t.html, err = compileAll(t.HTML); err != nil {
		return err
	}
	if t.scriptSrc, err = compileAll(t.ScriptSrc); err != nil {
		return err
	}
	if t.url, err = compileAll(t.URL); err != nil {
		return err
	}
	t.implies = make([]implication, 0, len(t.Implies))
	for _, raw := range t.Implies {
		imp, err := parseImplication(raw)
		if err != nil {
			return err
		}
		t.implies = append(t.implies, imp)
	}
	t.excludes = make([]string, 0, len(t.Excludes))
	for _, raw := range t.Excludes {
		t.excludes = append(t.excludes, strings.TrimSpace(raw))
	}
	return nil
}

// implication is an implied technology name with its confidence.
type implication struct {
	name       string
	confidence int
}

// parseImplication reads `Name\;confidence:N`. The name is not a regex.
func parseImplication(raw string) (implication, error) {
	parts := strings.Split(raw, tagSeparator)
	imp := implication{name: strings.TrimSpace(parts[0]), confidence: defaultConfidence}
	for _, tag := range parts[1:] {
		key, value, ok := strings.Cut(tag, ":")
		if !ok || key != "confidence" {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return imp, fmt.Errorf("%w %q: bad confidence %q", ErrInvalidPattern, raw, value)
		}
		imp.confidence = n
	}
	return imp, nil
}

// Database is a parsed fingerprint database.
type Database struct {
	categories   map[int]CategoryEntry
	technologies map[string]*Technology
	names        []string
}

type databaseFile struct {
	Categories   map[int]CategoryEntry  `yaml:"categories"`
	Technologies map[string]*Technology `yaml:"technologies"`
}

// ParseDatabase parses and compiles a YAML fingerprint database.
func ParseDatabase(data []byte) (*Database, error) {
	var file databaseFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse fingerprint database: %w", err)
	}

	db := &Database{
		categories:   file.Categories,
		technologies: make(map[string]*Technology, len(file.Technologies)),
		names:        make([]string, 0, len(file.Technologies)),
	}
	if db.categories == nil {
		db.categories = make(map[int]CategoryEntry)
	}

	for name, tech := range file.Technologies {
		if tech == nil {
			tech = &Technology{}
		}
		tech.Name = name
		if err := tech.compile(); err != nil {
			return nil, fmt.Errorf("technology %q: %w", name, err)
		}
		db.technologies[name] = tech
		db.names = append(db.names, name)
	}
	sort.Strings(db.names)

	return db, nil
}

// LoadDatabase reads a fingerprint database from path.
func LoadDatabase(path string) (*Database, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the --technologies flag
	if err != nil {
		return nil, fmt.Errorf("failed to read fingerprint database: %w", err)
	}
	return ParseDatabase(data)
}

var (
	defaultOnce sync.Once
	defaultDB   *Database
	defaultErr  error
)

// DefaultDatabase returns the embedded database, parsed once.
func DefaultDatabase() (*Database, error) {
	defaultOnce.Do(func() {
		defaultDB, defaultErr = ParseDatabase(embeddedDatabase)
	})
	return defaultDB, defaultErr
}

// Technology returns the named technology or nil.
func (db *Database) Technology(name string) *Technology {
	return db.technologies[name]
}

// Names returns the technology names in sorted order.
func (db *Database) Names() []string {
	return append([]string(nil), db.names...)
}

// CategoryName returns the category name for id, or "" if unknown.
func (db *Database) CategoryName(id int) string {
	return db.categories[id].Name
}

// Len returns the number of technologies.
func (db *Database) Len() int {
	return len(db.technologies)
}
