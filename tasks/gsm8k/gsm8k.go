// Package gsm8k registers the GSM8K grade-school math dataset and its
// zero-shot, few-shot and dialog few-shot tasks.
package gsm8k

import (
	_ "embed"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/dataset"
	"github.com/datar-psa/evalkit/log"
	"github.com/datar-psa/evalkit/metric"
	"github.com/datar-psa/evalkit/parser"
	"github.com/datar-psa/evalkit/pipeline"
	"github.com/datar-psa/evalkit/processor"
	"github.com/datar-psa/evalkit/prompt"
	"github.com/datar-psa/evalkit/task"
)

const (
	DatasetName = "gsm8k"
	// DefaultURL serves the JSON Lines splits "train" and "test".
	DefaultURL = "https://raw.githubusercontent.com/openai/grade-school-math/master/grade_school_math/data/{split}.jsonl"

	ZeroShotTask      = "gsm8k_zero_shot"
	FewShotTask       = "gsm8k_few_shot"
	DialogFewShotTask = "gsm8k_dialog_few_shot"

	ZeroShotSystem  = "Answer the primary school math problem, YOU MUST end with this format: the answer is |<YOUR NUMBER ANSWER>|"
	ZeroShotPattern = `\|.*?(\d+).*?\|`
	FewShotPattern  = `answer is .*?(\d+).*?`
)

const (
	answerSeparator     = "####"
	stepByStep          = "\nLet's think step by step"
	zeroShotTemperature = 0.0
	fewShotTemperature  = 0.01
)

//go:embed fixtures/examples.json
var examplesJSON []byte

// Examples returns the built-in few-shot demonstrations.
func Examples() ([]prompt.Example, error) {
	return prompt.ParseExamples(examplesJSON, ".json")
}

// Options configures the GSM8K pipelines.
type Options struct {
	Logger        log.Logger
	InvokeMode    api.InvokeMode
	SystemContent string
	// Examples replaces the built-in few-shot demonstrations.
	Examples []prompt.Example
}

// Option configures Options.
type Option func(*Options)

func WithLogger(l log.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

func WithInvokeMode(m api.InvokeMode) Option {
	return func(o *Options) {
		o.InvokeMode = m
	}
}

// WithSystemContent overrides the system message of every pipeline.
func WithSystemContent(s string) Option {
	return func(o *Options) {
		o.SystemContent = s
	}
}

func WithExamples(examples []prompt.Example) Option {
	return func(o *Options) {
		o.Examples = examples
	}
}

func newOptions(opts []Option) *Options {
	o := &Options{Logger: log.Default}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// AnswerExtractor sets "target" to the number after the last "####" of the
// "answer" field. Thousands separators are ignored.
func AnswerExtractor() api.Processor {
	return processor.Single("gsm8k_answer_extractor", func(r *api.Record) (*api.Record, error) {
		answer, ok := r.String("answer")
		if !ok {
			return nil, fmt.Errorf("record has no field %q", "answer")
		}
		target, err := ExtractAnswer(answer)
		if err != nil {
			return nil, err
		}
		return r.Set(api.FieldTarget, target), nil
	})
}

// ExtractAnswer parses the final numeric answer of a GSM8K solution.
func ExtractAnswer(answer string) (float64, error) {
	i := strings.LastIndex(answer, answerSeparator)
	if i < 0 {
		return 0, fmt.Errorf("answer %q has no %s marker", answer, answerSeparator)
	}
	num := strings.ReplaceAll(strings.TrimSpace(answer[i+len(answerSeparator):]), ",", "")
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("answer %q is not a number: %w", num, err)
	}
	return f, nil
}

// zeroShotCompiler takes the whole record and asks the question verbatim.
func zeroShotCompiler(system string) api.PromptCompiler {
	return prompt.Func(func(fields map[string]any) (api.Messages, error) {
		q, ok := fields["question"]
		if !ok {
			return nil, fmt.Errorf("missing field %q", "question")
		}
		return api.Messages{
			{Role: api.RoleSystem, Content: system},
			{Role: api.RoleUser, Content: fmt.Sprint(q)},
		}, nil
	})
}

func stages(o *Options, compiler api.PromptCompiler, pattern string, temperature float64) (*pipeline.Pipeline, error) {
	p, err := parser.NewRegex(pattern)
	if err != nil {
		return nil, err
	}
	return pipeline.New(compiler,
		pipeline.WithPreprocessors(AnswerExtractor()),
		pipeline.WithParser(p),
		pipeline.WithPostprocessors(processor.ToFloat(api.FieldParsedResult, api.FieldPred, 0, o.Logger)),
		pipeline.WithMetrics(metric.Accuracy()),
		pipeline.WithDefaultParams(api.Params{"temperature": temperature}),
		pipeline.WithInvokeMode(o.InvokeMode),
		pipeline.WithLogger(o.Logger),
	)
}

// ZeroShotPipeline asks each question with a system message demanding the
// "the answer is |N|" format.
func ZeroShotPipeline(opts ...Option) (*pipeline.Pipeline, error) {
	o := newOptions(opts)
	system := o.SystemContent
	if system == "" {
		system = ZeroShotSystem
	}
	return stages(o, zeroShotCompiler(system), ZeroShotPattern, zeroShotTemperature)
}

// FewShotPipeline prefixes each question with worked examples, either inline
// or as prior dialog turns.
func FewShotPipeline(dialog bool, opts ...Option) (*pipeline.Pipeline, error) {
	o := newOptions(opts)
	examples := o.Examples
	if examples == nil {
		var err error
		if examples, err = Examples(); err != nil {
			return nil, err
		}
	}
	final := "\nQuestion: {question}" + stepByStep
	if dialog {
		final = "{question}" + stepByStep
	}
	compiler := &prompt.FewShot{
		Examples:      examples,
		DialogStyle:   dialog,
		SystemContent: o.SystemContent,
		FinalTemplate: final,
	}
	return stages(o, compiler, FewShotPattern, fewShotTemperature)
}

// RegisterDataset registers the GSM8K loader. A nil loader downloads the
// splits from DefaultURL.
func RegisterDataset(reg *dataset.Registry, loader dataset.Loader) {
	if loader == nil {
		loader = dataset.HTTP(http.DefaultClient, DefaultURL)
	}
	reg.Register(DatasetName, loader)
}

// RegisterTasks declares the three GSM8K tasks in reg.
func RegisterTasks(reg *task.Registry, opts ...Option) error {
	zeroShot, err := ZeroShotPipeline(opts...)
	if err != nil {
		return err
	}
	fewShot, err := FewShotPipeline(false, opts...)
	if err != nil {
		return err
	}
	dialog, err := FewShotPipeline(true, opts...)
	if err != nil {
		return err
	}

	for _, d := range []struct {
		name string
		p    *pipeline.Pipeline
		tags []string
	}{
		{ZeroShotTask, zeroShot, []string{"math", "zero-shot"}},
		{FewShotTask, fewShot, []string{"math", "few-shot"}},
		{DialogFewShotTask, dialog, []string{"math", "few-shot", "dialog"}},
	} {
		if _, err := reg.Declare(d.name, d.p, task.WithDataset(DatasetName), task.WithTags(d.tags...)); err != nil {
			return err
		}
	}
	return nil
}
