package prompt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/datar-psa/evalkit/api"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultZeroShotSystem is the zero-shot system message when none is configured.
	DefaultZeroShotSystem = "You are a helpful assistant to answer user's questions"
	// DefaultFewShotSystem is the few-shot system message when none is configured.
	DefaultFewShotSystem = "Follow the given examples and answer the question."

	defaultQuestionTemplate = "{question}"
	defaultAnswerTemplate   = "{answer}"
)

func question(fields map[string]any) (map[string]any, error) {
	q, ok := fields["question"]
	if !ok {
		return nil, fmt.Errorf("missing field %q", "question")
	}
	return map[string]any{"question": q}, nil
}

// ZeroShot compiles a system message followed by one user message holding the
// formatted question.
type ZeroShot struct {
	SystemContent    string
	QuestionTemplate string
}

// ZeroShotFromFile reads the system message from path.
func ZeroShotFromFile(path string) (*ZeroShot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read system prompt: %w", err)
	}
	return &ZeroShot{SystemContent: string(data)}, nil
}

func (p *ZeroShot) CompileParameters() []string {
	return []string{"question"}
}

func (p *ZeroShot) Compile(fields map[string]any) (api.Messages, error) {
	values, err := question(fields)
	if err != nil {
		return nil, err
	}
	content, err := Format(or(p.QuestionTemplate, defaultQuestionTemplate), values)
	if err != nil {
		return nil, err
	}
	return api.Messages{
		{Role: api.RoleSystem, Content: or(p.SystemContent, DefaultZeroShotSystem)},
		{Role: api.RoleUser, Content: content},
	}, nil
}

// Example is one few-shot demonstration.
type Example struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

// FewShot compiles demonstrations followed by the question.
//
// In flattened style every example becomes "question\nanswer\n" and the
// formatted question is appended, all in one user message. In dialog style each
// example is a user/assistant message pair and the question is the final user
// message.
type FewShot struct {
	Examples         []Example
	DialogStyle      bool
	SystemContent    string
	QuestionTemplate string
	AnswerTemplate   string
	// FinalTemplate formats the question being asked. Defaults to QuestionTemplate.
	FinalTemplate string
}

func (p *FewShot) CompileParameters() []string {
	return []string{"question"}
}

func (p *FewShot) Compile(fields map[string]any) (api.Messages, error) {
	values, err := question(fields)
	if err != nil {
		return nil, err
	}
	qt := or(p.QuestionTemplate, defaultQuestionTemplate)
	at := or(p.AnswerTemplate, defaultAnswerTemplate)

	final, err := Format(or(p.FinalTemplate, qt), values)
	if err != nil {
		return nil, err
	}

	messages := api.Messages{{Role: api.RoleSystem, Content: or(p.SystemContent, DefaultFewShotSystem)}}
	var flat strings.Builder
	for i, ex := range p.Examples {
		q, err := Format(qt, map[string]any{"question": ex.Question})
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
		a, err := Format(at, map[string]any{"answer": ex.Answer})
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
		if p.DialogStyle {
			messages = append(messages,
				api.Message{Role: api.RoleUser, Content: q},
				api.Message{Role: api.RoleAssistant, Content: a},
			)
			continue
		}
		flat.WriteString(q)
		flat.WriteByte('\n')
		flat.WriteString(a)
		flat.WriteByte('\n')
	}

	if p.DialogStyle {
		return append(messages, api.Message{Role: api.RoleUser, Content: final}), nil
	}
	flat.WriteString(final)
	return append(messages, api.Message{Role: api.RoleUser, Content: flat.String()}), nil
}

// LoadExamples reads few-shot examples from a JSON or YAML file, chosen by extension.
func LoadExamples(path string) ([]Example, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read examples: %w", err)
	}
	return ParseExamples(data, filepath.Ext(path))
}

// ParseExamples decodes examples; ext selects YAML for ".yaml"/".yml" and JSON otherwise.
func ParseExamples(data []byte, ext string) ([]Example, error) {
	var examples []Example
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &examples); err != nil {
			return nil, fmt.Errorf("failed to parse examples: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &examples); err != nil {
			return nil, fmt.Errorf("failed to parse examples: %w", err)
		}
	}
	return examples, nil
}

type funcCompiler struct {
	fn     func(map[string]any) (api.Messages, error)
	params []string
}

// Func adapts fn into a compiler. With no params the compiler is catch-all and
// receives every record field.
func Func(fn func(fields map[string]any) (api.Messages, error), params ...string) api.PromptCompiler {
	return &funcCompiler{fn: fn, params: params}
}

func (c *funcCompiler) Compile(fields map[string]any) (api.Messages, error) {
	return c.fn(fields)
}

func (c *funcCompiler) CompileParameters() []string {
	return c.params
}

// Fields selects the compile inputs of r for c: the declared parameters, or
// the whole record when c is catch-all. A missing declared field is an error.
func Fields(c api.PromptCompiler, r *api.Record) (map[string]any, error) {
	params := c.CompileParameters()
	if len(params) == 0 {
		return r.Map(), nil
	}
	fields := make(map[string]any, len(params))
	for _, name := range params {
		v, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("record has no field %q", name)
		}
		fields[name] = v
	}
	return fields, nil
}

func or(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
