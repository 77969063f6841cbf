// Package embedding provides scorers based on vector embeddings.
package embedding

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/datar-psa/evalkit/api"
)

// SimilarityOptions configures the Similarity scorer
type SimilarityOptions struct {
	// RawCosine reports cosine similarity clamped to [0, 1] instead of
	// rescaling [-1, 1] onto [0, 1].
	RawCosine bool
	// MemoizeExpected keeps the embedding of each distinct expected text for the
	// lifetime of the scorer. Useful when many records share a reference answer.
	MemoizeExpected bool
}

// Similarity returns a scorer that measures semantic similarity using embeddings
// It computes cosine similarity between the output and expected text embeddings
func Similarity(embedder api.Embedder, opts SimilarityOptions) api.Scorer {
	return &similarityScorer{opts: opts, embedder: embedder}
}

type similarityScorer struct {
	opts     SimilarityOptions
	embedder api.Embedder
	memo     sync.Map // expected text -> []float64
}

func (s *similarityScorer) embedExpected(ctx context.Context, text string) ([]float64, error) {
	if s.opts.MemoizeExpected {
		if v, ok := s.memo.Load(text); ok {
			return v.([]float64), nil
		}
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if s.opts.MemoizeExpected {
		s.memo.Store(text, vec)
	}
	return vec, nil
}

func (s *similarityScorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	result := api.Score{
		Name:     "EmbeddingSimilarity",
		Metadata: make(map[string]any),
	}

	if in.Expected == "" {
		result.Error = api.ErrNoExpectedValue
		result.Score = 0
		return result
	}

	if s.embedder == nil {
		result.Error = fmt.Errorf("embedder is required")
		result.Score = 0
		return result
	}

	outputEmbed, err := s.embedder.Embed(ctx, in.Output)
	if err != nil {
		result.Error = fmt.Errorf("failed to embed output: %w", err)
		result.Score = 0
		return result
	}

	expectedEmbed, err := s.embedExpected(ctx, in.Expected)
	if err != nil {
		result.Error = fmt.Errorf("failed to embed expected: %w", err)
		result.Score = 0
		return result
	}

	similarity := cosineSimilarity(outputEmbed, expectedEmbed)

	score := similarity
	if !s.opts.RawCosine {
		score = (similarity + 1.0) / 2.0
	}
	result.Score = math.Max(0, math.Min(1, score))
	result.Metadata["cosine_similarity"] = similarity
	result.Metadata["embedding_dim"] = len(outputEmbed)

	return result
}

// cosineSimilarity computes the cosine similarity between two vectors
// Returns a value between -1 and 1, where 1 means identical direction
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	normA = math.Sqrt(normA)
	normB = math.Sqrt(normB)

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (normA * normB)
}
