package api

import (
	"context"
	"maps"
)

// Role is the author of a message in a model conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// FunctionCall is an optional function-call payload attached to a message.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one turn of a model conversation.
type Message struct {
	Role         Role          `json:"role"`
	Content      string        `json:"content"`
	Name         string        `json:"name,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// Messages is a compiled prompt: the ordered message sequence sent to a model for one record.
type Messages []Message

// Params carries model invocation parameters such as temperature or max_tokens.
type Params map[string]any

// MergeParams returns defaults overlaid with overrides. Overrides win on conflict.
// Neither input is modified.
func MergeParams(defaults, overrides Params) Params {
	merged := make(Params, len(defaults)+len(overrides))
	maps.Copy(merged, defaults)
	maps.Copy(merged, overrides)
	return merged
}

// Float returns the named parameter as a float64.
func (p Params) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	return AsFloat(v)
}

// Int returns the named parameter as an int.
func (p Params) Int(key string) (int, bool) {
	f, ok := p.Float(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Strings returns the named parameter as a string slice.
func (p Params) Strings(key string) ([]string, bool) {
	switch v := p[key].(type) {
	case []string:
		return v, true
	case string:
		return []string{v}, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// InvokeMode tells a Model how it may execute a batch of prompts.
type InvokeMode int

const (
	// InvokeSync asks for one blocking pass over the batch.
	InvokeSync InvokeMode = iota
	// InvokeConcurrent permits the model to fan out internally.
	InvokeConcurrent
)

func (m InvokeMode) String() string {
	switch m {
	case InvokeSync:
		return "sync"
	case InvokeConcurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// EvaluationResult pairs the merged metric scores with the fully populated records.
type EvaluationResult struct {
	Metrics map[string]float64 `json:"metrics"`
	Records Records            `json:"records"`
}

// Model turns a batch of compiled prompts into raw text outputs.
//
// Implementations must return exactly one output per prompt, in input order.
// Retries, rate limiting and fan-out are the implementation's concern.
type Model interface {
	Invoke(ctx context.Context, prompts []Messages, mode InvokeMode, params Params) ([]string, error)
}

// PromptCompiler turns record fields into a compiled prompt.
type PromptCompiler interface {
	// Compile builds the message sequence from the given fields.
	Compile(fields map[string]any) (Messages, error)
	// CompileParameters lists the record fields Compile consumes.
	// An empty list means Compile accepts the whole record.
	CompileParameters() []string
}

// Processor transforms a record collection before or after model invocation.
type Processor interface {
	Name() string
	Process(records Records) (Records, error)
}

// Parser extracts an answer token from raw model text.
// Parse returns "" when nothing matches.
type Parser interface {
	Parse(text string) string
}

// Metric scores a fully populated record collection.
type Metric interface {
	Name() string
	Compute(ctx context.Context, records Records) (map[string]float64, error)
}

// LLMGenerator is an interface for generating text using an LLM
// This interface must be implemented by library consumers
// A Gemini implementation is provided in the gemini subpackage
type LLMGenerator interface {
	// StructuredGenerate generates structured data based on the provided prompt and JSON schema
	// schema must be a valid JSON schema (map[string]interface{})
	// Returns the generated data as a map[string]interface{} or an error
	StructuredGenerate(ctx context.Context, prompt string, schema map[string]interface{}) (map[string]interface{}, error)
}

// Embedder generates vector embeddings for text
type Embedder interface {
	// Embed generates an embedding vector for the given text
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ModerationCategories contains all supported moderation category names
// These are developer-friendly names that map to Google Cloud Natural Language API categories
var ModerationCategories = []string{
	"Toxic",
	"Derogatory",
	"Violent",
	"Sexual",
	"Insult",
	"Profanity",
	"DeathHarmTragedy",
	"FirearmsWeapons",
	"PublicSafety",
	"Health",
	"ReligionBelief",
	"IllicitDrugs",
	"WarConflict",
	"Finance",
	"Politics",
	"Legal",
}

// ModerationCategory represents a safety category with confidence score
type ModerationCategory struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// ModerationResult represents the result of content moderation
type ModerationResult struct {
	Categories []ModerationCategory `json:"categories"`
}

// ModerationProvider analyzes content for safety
type ModerationProvider interface {
	Moderate(ctx context.Context, content string) (*ModerationResult, error)
}

// Score is the outcome of scoring a single record
type Score struct {
	// Name identifies the scorer that produced this result
	Name string
	// Score is a value between 0 and 1, where 1 is the best possible score
	Score float64
	// Metadata contains additional information about the scoring process
	Metadata map[string]any
	// Error contains any error that occurred during scoring
	Error error
}

// ScoreInputs carries the per-record inputs of a Scorer.
//
// Fields usage conventions:
// - Output:   the model's prediction (required for most scorers)
// - Expected: the reference answer (optional depending on scorer)
// - Input:    the question given to the model (optional)
type ScoreInputs struct {
	Output   string
	Expected string
	Input    string
}

// Scorer evaluates a single prediction. metric.Mean lifts a Scorer into a Metric.
type Scorer interface {
	Score(ctx context.Context, in ScoreInputs) Score
}
