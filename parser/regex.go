// Package parser extracts a normalized answer token from raw model output.
package parser

import (
	"fmt"
	"regexp"
)

// Regex extracts the first capture group of the leftmost match.
type Regex struct {
	re *regexp.Regexp
}

// NewRegex compiles pattern. The pattern must contain at least one capture group.
func NewRegex(pattern string) (*Regex, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid parser pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("parser pattern %q has no capture group", pattern)
	}
	return &Regex{re: re}, nil
}

// MustRegex is like NewRegex but panics on an invalid pattern.
func MustRegex(pattern string) *Regex {
	p, err := NewRegex(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// Parse returns the first capture group of the leftmost match, or "" when
// nothing matches.
func (p *Regex) Parse(text string) string {
	m := p.re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

