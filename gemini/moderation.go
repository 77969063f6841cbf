package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	language "cloud.google.com/go/language/apiv1"
	languagepb "cloud.google.com/go/language/apiv1/languagepb"

	"github.com/datar-psa/evalkit/api"
)

// Moderator implements api.ModerationProvider with the Cloud Natural Language
// ModerateText endpoint.
type Moderator struct {
	client        *language.Client
	minConfidence float64
}

// ModeratorOption configures a Moderator.
type ModeratorOption func(*Moderator)

// WithMinConfidence drops categories reported below c.
func WithMinConfidence(c float64) ModeratorOption {
	return func(m *Moderator) {
		m.minConfidence = c
	}
}

// NewModerator uses a preconfigured client; authentication is the caller's concern.
func NewModerator(client *language.Client, opts ...ModeratorOption) *Moderator {
	m := &Moderator{client: client}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Moderator) Moderate(ctx context.Context, content string) (*api.ModerationResult, error) {
	if m.client == nil {
		return nil, errors.New("language client is required")
	}
	resp, err := m.client.ModerateText(ctx, &languagepb.ModerateTextRequest{
		Document: &languagepb.Document{
			Type:   languagepb.Document_PLAIN_TEXT,
			Source: &languagepb.Document_Content{Content: content},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("moderate text failed: %w", err)
	}
	return moderationResult(resp.GetModerationCategories(), m.minConfidence), nil
}

func moderationResult(cats []*languagepb.ClassificationCategory, minConfidence float64) *api.ModerationResult {
	out := &api.ModerationResult{Categories: make([]api.ModerationCategory, 0, len(cats))}
	for _, c := range cats {
		conf := float64(c.GetConfidence())
		if conf < minConfidence {
			continue
		}
		out.Categories = append(out.Categories, api.ModerationCategory{
			Name:       categoryName(c.GetName()),
			Confidence: conf,
		})
	}
	return out
}

// categoryName turns an API label such as "Death, Harm & Tragedy" into the
// identifier form used by api.ModerationCategories.
func categoryName(label string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, label)
}

var _ api.ModerationProvider = (*Moderator)(nil)
