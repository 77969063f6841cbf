package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/datar-psa/evalkit/api"
)

// Generator wraps a genai.Client. It answers chat prompts for model.Client
// and structured judge prompts for llmjudge scorers.
type Generator struct {
	client    *genai.Client
	modelName string
}

// NewGenerator creates a new Gemini generator
// client: genai.Client from google.golang.org/genai
// modelName: the model to use (e.g., "gemini-2.5-flash")
func NewGenerator(client *genai.Client, modelName string) *Generator {
	return &Generator{
		client:    client,
		modelName: modelName,
	}
}

// Generate answers one compiled prompt. System messages become the system
// instruction; assistant turns are sent with the "model" role.
func (g *Generator) Generate(ctx context.Context, messages api.Messages, params api.Params) (string, error) {
	contents, system := toContents(messages)
	config := generationConfig(params)
	config.SystemInstruction = system

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned")
	}
	return resp.Text(), nil
}

// StructuredGenerate implements api.LLMGenerator using JSON response mode
func (g *Generator) StructuredGenerate(ctx context.Context, prompt string, schema map[string]interface{}) (map[string]interface{}, error) {
	content := &genai.Content{
		Role: "user",
		Parts: []*genai.Part{
			{Text: prompt},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, []*genai.Content{content}, &genai.GenerateContentConfig{
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: schema,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates returned")
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(resp.Text()), &out); err != nil {
		return nil, fmt.Errorf("failed to decode structured response: %w", err)
	}
	return out, nil
}

func toContents(messages api.Messages) ([]*genai.Content, *genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case api.RoleSystem:
			system = append(system, m.Content)
		case api.RoleAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	if len(system) == 0 {
		return contents, nil
	}
	return contents, &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n")}}}
}

// generationConfig maps the common invocation parameters onto genai fields.
// Unknown parameters are ignored.
func generationConfig(params api.Params) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if v, ok := params.Float("temperature"); ok {
		config.Temperature = genai.Ptr(float32(v))
	}
	if v, ok := params.Float("top_p"); ok {
		config.TopP = genai.Ptr(float32(v))
	}
	if v, ok := params.Float("top_k"); ok {
		config.TopK = genai.Ptr(float32(v))
	}
	if v, ok := params.Int("max_tokens"); ok {
		config.MaxOutputTokens = int32(v)
	}
	if v, ok := params.Int("seed"); ok {
		config.Seed = genai.Ptr(int32(v))
	}
	if v, ok := params.Strings("stop"); ok {
		config.StopSequences = v
	}
	return config
}

var _ api.LLMGenerator = (*Generator)(nil)
