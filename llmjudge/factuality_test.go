package llmjudge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/metric"
)

// mockLLMGenerator replies with a fixed JSON document and records the last prompt.
type mockLLMGenerator struct {
	response string
	err      error
	prompt   string
}

func (m *mockLLMGenerator) StructuredGenerate(ctx context.Context, prompt string, schema map[string]interface{}) (map[string]interface{}, error) {
	m.prompt = prompt
	if m.err != nil {
		return nil, m.err
	}
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(m.response), &result); err != nil {
		return nil, fmt.Errorf("failed to parse mock response as JSON: %w", err)
	}
	return result, nil
}

func TestFactuality(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		llmErr     error
		expected   string
		wantErr    bool
		wantIs     error
		wantScore  float64
		wantChoice string
	}{
		{name: "same details", response: `{"choice": "A", "explanation": "both say 18"}`, expected: "18", wantScore: 1, wantChoice: "A"},
		{name: "subset", response: `{"choice": "D", "explanation": "less precise"}`, expected: "18 dollars per day", wantScore: 0.4, wantChoice: "D"},
		{name: "disagreement", response: `{"choice": "E", "explanation": "17 is not 18"}`, expected: "18", wantScore: 0, wantChoice: "E"},
		{name: "no expected value", wantErr: true, wantIs: api.ErrNoExpectedValue},
		{name: "llm error", llmErr: errors.New("quota exceeded"), expected: "18", wantErr: true, wantIs: api.ErrLLMGenerationFailed},
		{name: "missing choice", response: `{"explanation": "?"}`, expected: "18", wantErr: true},
		{name: "missing explanation", response: `{"choice": "C"}`, expected: "18", wantErr: true},
		{name: "unknown choice", response: `{"choice": "Z", "explanation": "?"}`, expected: "18", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &mockLLMGenerator{response: tt.response, err: tt.llmErr}
			result := Factuality(llm, FactualityOptions{}).Score(context.Background(), api.ScoreInputs{
				Input:    "Janet sells 16 eggs at $2 minus 7 she uses. How much does she make?",
				Output:   "She makes 18 dollars",
				Expected: tt.expected,
			})

			assert.Equal(t, "Factuality", result.Name)
			assert.Equal(t, tt.wantScore, result.Score)
			if tt.wantErr {
				require.Error(t, result.Error)
				if tt.wantIs != nil {
					assert.ErrorIs(t, result.Error, tt.wantIs)
				}
				return
			}
			require.NoError(t, result.Error)
			assert.Equal(t, tt.wantChoice, result.Metadata["choice"])
			assert.Contains(t, llm.prompt, "[Expert]: "+tt.expected)
			assert.Contains(t, llm.prompt, "[Submission]: She makes 18 dollars")
		})
	}
}

func TestFactualityWithoutLLM(t *testing.T) {
	result := Factuality(nil, FactualityOptions{}).Score(context.Background(), api.ScoreInputs{Output: "a", Expected: "b"})
	assert.Error(t, result.Error)
	assert.Zero(t, result.Score)
}

func TestFactualityChoiceOverride(t *testing.T) {
	llm := &mockLLMGenerator{response: `{"choice": "D", "explanation": "subset"}`}
	result := Factuality(llm, FactualityOptions{Choices: map[string]float64{"D": 0.75}}).
		Score(context.Background(), api.ScoreInputs{Input: "q", Output: "part", Expected: "part and more"})

	require.NoError(t, result.Error)
	assert.Equal(t, 0.75, result.Score)
}

func TestFactualityAsMetric(t *testing.T) {
	llm := &mockLLMGenerator{response: `{"choice": "B", "explanation": "adds the working"}`}
	records := api.Records{
		api.NewRecord().Set("question", "2+2?").Set(api.FieldResult, "2+2 is 4").Set(api.FieldTarget, "4"),
		api.NewRecord().Set("question", "3+3?").Set(api.FieldResult, "3+3 is 6").Set(api.FieldTarget, "6"),
	}
	m := metric.Mean("factuality", Factuality(llm, FactualityOptions{}), metric.FieldMap{Input: "question"})

	got, err := m.Compute(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"factuality": 0.8}, got)
	assert.Contains(t, llm.prompt, "[Question]: 3+3?")
}
