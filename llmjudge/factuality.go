// Package llmjudge provides scorers that ask a model to grade outputs.
package llmjudge

import (
	"context"
	"fmt"

	"github.com/datar-psa/evalkit/api"
)

// FactualityOptions configures the Factuality scorer
type FactualityOptions struct {
	// Choices overrides the score assigned to each grade letter.
	// Missing letters fall back to the defaults.
	Choices map[string]float64
}

// Factuality returns a scorer that asks an LLM whether the output is factually
// consistent with the expected answer. The judge picks one of five grades:
//
//	A  same details as the expert answer              1.0
//	B  superset of the expert answer, consistent      0.8
//	C  differs only in ways that do not affect facts  0.6
//	D  subset of the expert answer, consistent        0.4
//	E  disagrees with the expert answer               0.0
func Factuality(llm api.LLMGenerator, opts FactualityOptions) api.Scorer {
	choices := map[string]float64{"A": 1.0, "B": 0.8, "C": 0.6, "D": 0.4, "E": 0.0}
	for k, v := range opts.Choices {
		choices[k] = v
	}
	return &factualityScorer{llm: llm, choices: choices}
}

type factualityScorer struct {
	llm     api.LLMGenerator
	choices map[string]float64
}

const factualityPromptTemplate = `You are comparing a submitted answer to an expert answer on a given question.

[BEGIN DATA]
************
[Question]: %s
************
[Expert]: %s
************
[Submission]: %s
************
[END DATA]

Compare the factual content of the submitted answer with the expert answer. Ignore any differences in style, grammar, or punctuation.
The submitted answer may either be a subset or superset of the expert answer, or it may conflict with it. Determine which case applies. Answer the question by selecting one of the following options:
(A) The submitted answer contains all the same details as the expert answer.
(B) The submitted answer is a superset of the expert answer and is fully consistent with it.
(C) There are differences between the submitted answer and the expert answer, but these differences don't matter from the perspective of factuality.
(D) The submitted answer is a subset of the expert answer and is fully consistent with it.
(E) There is a disagreement between the submitted answer and the expert answer.

Explain your reasoning in the explanation field, then give your choice.`

var factualitySchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"explanation": map[string]interface{}{
			"type":        "string",
			"description": "Step by step reasoning behind the choice",
		},
		"choice": map[string]interface{}{
			"type": "string",
			"enum": []string{"A", "B", "C", "D", "E"},
		},
	},
	"required": []string{"explanation", "choice"},
}

func (s *factualityScorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	result := api.Score{
		Name:     "Factuality",
		Metadata: make(map[string]any),
	}

	if in.Expected == "" {
		result.Error = api.ErrNoExpectedValue
		result.Score = 0
		return result
	}

	if s.llm == nil {
		result.Error = fmt.Errorf("LLM generator is required")
		result.Score = 0
		return result
	}

	prompt := fmt.Sprintf(factualityPromptTemplate, in.Input, in.Expected, in.Output)

	resp, err := s.llm.StructuredGenerate(ctx, prompt, factualitySchema)
	if err != nil {
		result.Error = fmt.Errorf("%w: %v", api.ErrLLMGenerationFailed, err)
		result.Score = 0
		return result
	}
	result.Metadata["raw_response"] = resp

	choice, ok := resp["choice"].(string)
	if !ok {
		result.Error = fmt.Errorf("failed to extract choice from structured response")
		return result
	}
	explanation, ok := resp["explanation"].(string)
	if !ok {
		result.Error = fmt.Errorf("failed to extract explanation from structured response")
		return result
	}
	score, ok := s.choices[choice]
	if !ok {
		result.Error = fmt.Errorf("unknown choice %q", choice)
		return result
	}

	result.Score = score
	result.Metadata["choice"] = choice
	result.Metadata["explanation"] = explanation

	return result
}
