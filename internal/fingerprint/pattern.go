package fingerprint

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid pattern")

const (
	// tagSeparator separates the regex from its tags.
	tagSeparator = `\;`

	// defaultConfidence is used when a pattern carries no confidence tag.
	defaultConfidence = 100

	// maxConfidence caps the summed confidence of a technology.
	maxConfidence = 100
)

// Pattern is a compiled pattern with its tags.
type Pattern struct {
	// Raw is the pattern as written in the database.
	Raw string

	// Regex matches case-insensitively.
	Regex *regexp.Regexp

	// Version is the version template, e.g. `\1` or `\1?\1:legacy`.
	Version string

	// Confidence is the pattern's contribution to the technology's score.
	Confidence int
}

// ParsePattern compiles a raw `regex\;tag:value` pattern.
func ParsePattern(raw string) (*Pattern, error) {
	parts := strings.Split(raw, tagSeparator)

	re, err := regexp.Compile("(?i)" + parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, raw, err)
	}

	p := &Pattern{
		Raw:        raw,
		Regex:      re,
		Confidence: defaultConfidence,
	}
	for _, tag := range parts[1:] {
		key, value, ok := strings.Cut(tag, ":")
		if !ok {
			continue
		}
		switch key {
		case "version":
			p.Version = value
		case "confidence":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("%w %q: bad confidence %q", ErrInvalidPattern, raw, value)
			}
			p.Confidence = n
		}
	}
	return p, nil
}

// Match tests value and returns the resolved version when it matches.
func (p *Pattern) Match(value string) (version string, ok bool) {
	groups := p.Regex.FindStringSubmatch(value)
	if groups == nil {
		return "", false
	}
	return resolveVersion(p.Version, groups), true
}

var (
	ternaryRe = regexp.MustCompile(`\\(\d+)\?([^:]*):(.*)$`)
	groupRe   = regexp.MustCompile(`\\(\d+)`)
)

// resolveVersion expands a version template against regex submatches.
func resolveVersion(template string, groups []string) string {
	if template == "" {
		return ""
	}

	group := func(ref string) string {
		i, err := strconv.Atoi(ref)
		if err != nil || i >= len(groups) {
			return ""
		}
		return groups[i]
	}

	version := template
	if m := ternaryRe.FindStringSubmatch(version); m != nil {
		choice := m[3]
		if group(m[1]) != "" {
			choice = m[2]
		}
		version = version[:len(version)-len(m[0])] + choice
	}

	version = groupRe.ReplaceAllStringFunc(version, func(ref string) string {
		return group(ref[1:])
	})
	return strings.TrimSpace(version)
}

// Patterns is a list of raw patterns. In YAML it may be written as a single
// string or a sequence.
type Patterns []string

// UnmarshalYAML accepts both scalar and sequence forms.
func (p *Patterns) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*p = Patterns{value.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*p = list
		return nil
	default:
		return fmt.Errorf("line %d: patterns must be a string or a list", value.Line)
	}
}

func compileAll(raw Patterns) ([]*Pattern, error) {
	compiled := make([]*Pattern, 0, len(raw))
	for _, r := range raw {
		p, err := ParsePattern(r)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, p)
	}
	return compiled, nil
}

func compileKeyed(raw map[string]Patterns, lowerKeys bool) (map[string][]*Pattern, error) {
	compiled := make(map[string][]*Pattern, len(raw))
	for key, patterns := range raw {
		c, err := compileAll(patterns)
		if err != nil {
			return nil, err
		}
		if lowerKeys {
			key = strings.ToLower(key)
		}
		compiled[key] = c
	}
	return compiled, nil
}
