// Package evalkit exposes the scorer constructors and core types of the
// evaluation harness under one import. Scorers judge a single output; the
// *Metric builders lift them into pipeline metrics averaged over a batch.
package evalkit

import (
	language "cloud.google.com/go/language/apiv1"
	"google.golang.org/genai"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/embedding"
	"github.com/datar-psa/evalkit/gemini"
	"github.com/datar-psa/evalkit/heuristic"
	"github.com/datar-psa/evalkit/llmjudge"
	"github.com/datar-psa/evalkit/metric"
)

type (
	Score       = api.Score
	ScoreInputs = api.ScoreInputs
	Scorer      = api.Scorer

	Record           = api.Record
	Records          = api.Records
	Params           = api.Params
	Model            = api.Model
	Metric           = api.Metric
	EvaluationResult = api.EvaluationResult

	// FieldMap names the record fields a scorer metric reads.
	FieldMap = metric.FieldMap
)

// AsMetric reports the mean score of scorer over every record under name.
func AsMetric(name string, scorer Scorer, fields FieldMap) Metric {
	return metric.Mean(name, scorer, fields)
}

// LLMJudge holds the judge model and moderation backend shared by the
// model-graded scorers.
type LLMJudge struct {
	llm        api.LLMGenerator
	moderation api.ModerationProvider
}

// LLMJudgeOptions configures LLMJudge creation
type LLMJudgeOptions struct {
	llm        api.LLMGenerator
	moderation api.ModerationProvider
}

// WithLLMGenerator sets the LLM generator for the judge
func WithLLMGenerator(llm api.LLMGenerator) func(*LLMJudgeOptions) {
	return func(opts *LLMJudgeOptions) {
		opts.llm = llm
	}
}

// WithModerationProvider sets the moderation provider for the judge
func WithModerationProvider(provider api.ModerationProvider) func(*LLMJudgeOptions) {
	return func(opts *LLMJudgeOptions) {
		opts.moderation = provider
	}
}

func NewLLMJudge(opts ...func(*LLMJudgeOptions)) *LLMJudge {
	options := &LLMJudgeOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return &LLMJudge{llm: options.llm, moderation: options.moderation}
}

// GeminiOptions configures the Gemini-backed judge and embedding builders.
type GeminiOptions struct {
	genaiClient *genai.Client
	modelName   string
	langClient  *language.Client
	embedOpts   []gemini.EmbedderOption
}

func WithGenaiClient(client *genai.Client) func(*GeminiOptions) {
	return func(opts *GeminiOptions) {
		opts.genaiClient = client
	}
}

// WithModelName sets the judge or embedding model, e.g. "gemini-2.5-flash"
// or "text-embedding-005".
func WithModelName(modelName string) func(*GeminiOptions) {
	return func(opts *GeminiOptions) {
		opts.modelName = modelName
	}
}

// WithLanguageClient enables moderation through Cloud Natural Language.
func WithLanguageClient(langClient *language.Client) func(*GeminiOptions) {
	return func(opts *GeminiOptions) {
		opts.langClient = langClient
	}
}

// WithEmbedderOptions is passed to gemini.NewEmbedder by NewGeminiEmbedding.
func WithEmbedderOptions(embedOpts ...gemini.EmbedderOption) func(*GeminiOptions) {
	return func(opts *GeminiOptions) {
		opts.embedOpts = append(opts.embedOpts, embedOpts...)
	}
}

func geminiOptions(opts []func(*GeminiOptions)) *GeminiOptions {
	options := &GeminiOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// NewGeminiLLMJudge builds a judge from whichever Gemini clients are set.
// The generator needs both a genai client and a model name.
func NewGeminiLLMJudge(opts ...func(*GeminiOptions)) *LLMJudge {
	options := geminiOptions(opts)
	var judgeOpts []func(*LLMJudgeOptions)
	if options.genaiClient != nil && options.modelName != "" {
		judgeOpts = append(judgeOpts, WithLLMGenerator(gemini.NewGenerator(options.genaiClient, options.modelName)))
	}
	if options.langClient != nil {
		judgeOpts = append(judgeOpts, WithModerationProvider(gemini.NewModerator(options.langClient)))
	}
	return NewLLMJudge(judgeOpts...)
}

type FactualityOptions = llmjudge.FactualityOptions

// Factuality returns a scorer that compares Output against Expected for factual consistency.
func (j *LLMJudge) Factuality(opts FactualityOptions) api.Scorer {
	return llmjudge.Factuality(j.llm, opts)
}

// FactualityMetric averages Factuality over a batch. fields.Input should name
// the question field so the judge sees the question.
func (j *LLMJudge) FactualityMetric(name string, opts FactualityOptions, fields FieldMap) Metric {
	return AsMetric(name, j.Factuality(opts), fields)
}

type ModerationOptions = llmjudge.ModerationOptions

// Moderation returns a scorer that evaluates content safety using a moderation provider.
func (j *LLMJudge) Moderation(opts ModerationOptions) api.Scorer {
	return llmjudge.Moderation(j.moderation, opts)
}

// Embedding builds embedding-based scorers over one embedder.
type Embedding struct{ embedder api.Embedder }

// EmbeddingOptions configures Embedding creation
type EmbeddingOptions struct {
	embedder api.Embedder
}

func WithEmbedder(embedder api.Embedder) func(*EmbeddingOptions) {
	return func(opts *EmbeddingOptions) {
		opts.embedder = embedder
	}
}

func NewEmbedding(opts ...func(*EmbeddingOptions)) *Embedding {
	options := &EmbeddingOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return &Embedding{embedder: options.embedder}
}

// NewGeminiEmbedding creates an Embedding using Gemini client and model name.
// Example model: "text-embedding-005".
func NewGeminiEmbedding(opts ...func(*GeminiOptions)) *Embedding {
	options := geminiOptions(opts)
	if options.genaiClient == nil || options.modelName == "" {
		return NewEmbedding()
	}
	return NewEmbedding(WithEmbedder(gemini.NewEmbedder(options.genaiClient, options.modelName, options.embedOpts...)))
}

type SimilarityOptions = embedding.SimilarityOptions

// Similarity returns a scorer that measures semantic similarity using embeddings.
func (e *Embedding) Similarity(opts SimilarityOptions) api.Scorer {
	return embedding.Similarity(e.embedder, opts)
}

// SimilarityMetric averages Similarity over a batch.
func (e *Embedding) SimilarityMetric(name string, opts SimilarityOptions, fields FieldMap) Metric {
	return AsMetric(name, e.Similarity(opts), fields)
}

// Heuristic exposes constructors for scorers that need no model calls.
type Heuristic struct{}

func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

type ExactMatchOptions = heuristic.ExactMatchOptions

// ExactMatch returns a scorer that checks if the output exactly matches the expected value.
func (h *Heuristic) ExactMatch(opts ExactMatchOptions) api.Scorer {
	return heuristic.ExactMatch(opts)
}

// ExactMatchMetric averages ExactMatch over a batch.
func (h *Heuristic) ExactMatchMetric(name string, opts ExactMatchOptions, fields FieldMap) Metric {
	return AsMetric(name, h.ExactMatch(opts), fields)
}
