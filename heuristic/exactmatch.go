// Package heuristic provides scorers that need no model calls.
package heuristic

import (
	"context"
	"strconv"
	"strings"

	"github.com/datar-psa/evalkit/api"
)

// ExactMatchOptions configures the ExactMatch scorer.
type ExactMatchOptions struct {
	CaseInsensitive bool
	TrimWhitespace  bool
	// StripCommas removes thousands separators such as "1,000" before comparing.
	StripCommas bool
	// Numeric compares both sides as numbers when both parse, so "4" matches
	// "4.0". Non-numeric values fall back to string comparison.
	Numeric bool
}

// ExactMatch returns a scorer that checks if the output matches the expected value.
func ExactMatch(opts ExactMatchOptions) api.Scorer {
	return &exactMatchScorer{opts: opts}
}

type exactMatchScorer struct {
	opts ExactMatchOptions
}

func (s *exactMatchScorer) normalize(v string) string {
	if s.opts.StripCommas {
		v = strings.ReplaceAll(v, ",", "")
	}
	if s.opts.TrimWhitespace || s.opts.Numeric {
		v = strings.TrimSpace(v)
	}
	if s.opts.CaseInsensitive {
		v = strings.ToLower(v)
	}
	return v
}

// match reports whether out and want are equal and how they were compared.
func (s *exactMatchScorer) match(out, want string) (bool, string) {
	if s.opts.Numeric {
		a, errA := strconv.ParseFloat(out, 64)
		b, errB := strconv.ParseFloat(want, 64)
		if errA == nil && errB == nil {
			return a == b, "numeric"
		}
	}
	return out == want, "string"
}

func (s *exactMatchScorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	result := api.Score{
		Name:     "ExactMatch",
		Metadata: make(map[string]any),
	}
	if in.Expected == "" {
		result.Error = api.ErrNoExpectedValue
		return result
	}

	out, want := s.normalize(in.Output), s.normalize(in.Expected)
	ok, mode := s.match(out, want)
	if ok {
		result.Score = 1
	}
	result.Metadata["comparison"] = mode
	result.Metadata["normalized_output"] = out
	result.Metadata["normalized_expected"] = want
	return result
}
