// Package openai adapts OpenAI-compatible chat completion endpoints to evalkit.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/datar-psa/evalkit/api"
)

// Generator answers compiled prompts with the chat completions API.
type Generator struct {
	client    *goopenai.Client
	modelName string
}

// Options configures a Generator.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
}

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) func(*Options) {
	return func(opts *Options) {
		opts.BaseURL = url
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) func(*Options) {
	return func(opts *Options) {
		opts.HTTPClient = client
	}
}

// NewGenerator creates a generator for modelName, e.g. "gpt-4o-mini".
func NewGenerator(apiKey, modelName string, opts ...func(*Options)) *Generator {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	config := goopenai.DefaultConfig(apiKey)
	if options.BaseURL != "" {
		config.BaseURL = options.BaseURL
	}
	if options.HTTPClient != nil {
		config.HTTPClient = options.HTTPClient
	}
	return &Generator{
		client:    goopenai.NewClientWithConfig(config),
		modelName: modelName,
	}
}

// Generate sends one chat completion request and returns the first choice.
func (g *Generator) Generate(ctx context.Context, messages api.Messages, params api.Params) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model:    g.modelName,
		Messages: toMessages(messages),
	}
	applyParams(&req, params)

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

type jsonSchema map[string]interface{}

func (s jsonSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(s))
}

// StructuredGenerate implements api.LLMGenerator using a JSON schema response format.
func (g *Generator) StructuredGenerate(ctx context.Context, prompt string, schema map[string]interface{}) (map[string]interface{}, error) {
	resp, err := g.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: g.modelName,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &goopenai.ChatCompletionResponseFormatJSONSchema{
				Name:   "judgement",
				Schema: jsonSchema(schema),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("failed to decode structured response: %w", err)
	}
	return out, nil
}

func toMessages(messages api.Messages) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = goopenai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Name:    m.Name,
		}
		if m.FunctionCall != nil {
			out[i].FunctionCall = &goopenai.FunctionCall{
				Name:      m.FunctionCall.Name,
				Arguments: m.FunctionCall.Arguments,
			}
		}
	}
	return out
}

func applyParams(req *goopenai.ChatCompletionRequest, params api.Params) {
	if v, ok := params.Float("temperature"); ok {
		req.Temperature = float32(v)
		// Temperature is omitempty; the smallest nonzero value is the
		// client's way of requesting greedy decoding.
		if req.Temperature == 0 {
			req.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if v, ok := params.Float("top_p"); ok {
		req.TopP = float32(v)
	}
	if v, ok := params.Int("max_tokens"); ok {
		req.MaxTokens = v
	}
	if v, ok := params.Int("seed"); ok {
		req.Seed = &v
	}
	if v, ok := params.Strings("stop"); ok {
		req.Stop = v
	}
}

var _ api.LLMGenerator = (*Generator)(nil)
