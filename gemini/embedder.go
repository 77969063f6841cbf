package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/datar-psa/evalkit/api"
)

// Embedder embeds text with a Gemini or Vertex AI embedding model.
type Embedder struct {
	client    *genai.Client
	modelName string
	config    genai.EmbedContentConfig
}

// EmbedderOption configures an Embedder.
type EmbedderOption func(*Embedder)

// WithTaskType sends a task type hint with every request, e.g.
// "SEMANTIC_SIMILARITY".
func WithTaskType(taskType string) EmbedderOption {
	return func(e *Embedder) {
		e.config.TaskType = taskType
	}
}

// WithDimensions truncates returned vectors to n dimensions on the server.
func WithDimensions(n int32) EmbedderOption {
	return func(e *Embedder) {
		e.config.OutputDimensionality = &n
	}
}

// NewEmbedder creates an embedder for modelName, e.g. "text-embedding-005".
func NewEmbedder(client *genai.Client, modelName string, opts ...EmbedderOption) *Embedder {
	e := &Embedder{client: client, modelName: modelName}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed implements api.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. Vectors are returned in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	config := e.config
	resp, err := e.client.Models.EmbedContent(ctx, e.modelName, contents, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	return vectors(resp, len(texts))
}

func vectors(resp *genai.EmbedContentResponse, want int) ([][]float64, error) {
	if resp == nil || len(resp.Embeddings) != want {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("got %d embeddings for %d texts", got, want)
	}
	out := make([][]float64, want)
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding vector at %d", i)
		}
		vec := make([]float64, len(emb.Values))
		for j, v := range emb.Values {
			vec[j] = float64(v)
		}
		out[i] = vec
	}
	return out, nil
}

var _ api.Embedder = (*Embedder)(nil)
